package questions

import (
	"context"
	"testing"

	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/schema"
)

type fakeChatProvider struct {
	responses []string
	calls     int
}

func (p *fakeChatProvider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	resp := p.responses[p.calls%len(p.responses)]
	p.calls++
	return llm.ChatResponse{Content: resp}, nil
}

type fakeQuestionStore struct {
	existing  []models.Question
	created   []models.Question
	merged    [][2]string
	mappings  []models.ClaimQuestionMapping
	nextIDNum int
}

func (s *fakeQuestionStore) ListByDomains(ctx context.Context, domains []string) ([]models.Question, error) {
	if len(domains) == 0 {
		return s.existing, nil
	}
	domainSet := map[string]bool{}
	for _, d := range domains {
		domainSet[d] = true
	}
	var out []models.Question
	for _, q := range s.existing {
		if domainSet[q.Domain] {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) CreateQuestion(ctx context.Context, q models.Question) (*models.Question, error) {
	s.nextIDNum++
	if q.QuestionID == "" {
		q.QuestionID = "q-" + string(rune('0'+s.nextIDNum))
	}
	s.created = append(s.created, q)
	return &q, nil
}

func (s *fakeQuestionStore) MergeInto(ctx context.Context, oldID, newID string) error {
	s.merged = append(s.merged, [2]string{oldID, newID})
	return nil
}

func (s *fakeQuestionStore) SaveMappings(ctx context.Context, minRelevance float64, mappings []models.ClaimQuestionMapping) (int, error) {
	saved := 0
	for _, m := range mappings {
		if m.RelevanceScore < minRelevance {
			continue
		}
		s.mappings = append(s.mappings, m)
		saved++
	}
	return saved, nil
}

func mustRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("schema.NewRegistry: %v", err)
	}
	return reg
}

// Scenario 5 (spec.md §8), reduced to a single claim in domain economics,
// no existing questions -> all merge recommendations are keep_distinct, questions
// created with reviewed=auto_approve, mappings persisted only where
// relevance_score >= min_relevance.
func TestProcessClaims_NoExistingQuestionsKeepsAllDistinct(t *testing.T) {
	discoveryResp := `[
		{"question_text": "Why does inflation erode savings?", "question_type": "causal", "domain": "economics", "claim_ids": ["c1"], "confidence": 0.9, "rationale": "core theme"}
	]`
	assignmentResp := `[
		{"claim_id": "c1", "question_id": "placeholder", "relation_type": "answers", "relevance_score": 0.8, "rationale": "direct"}
	]`
	provider := &fakeChatProvider{responses: []string{discoveryResp, assignmentResp}}
	qstore := &fakeQuestionStore{}
	reg := mustRegistry(t)

	m := NewMapper(provider, reg, qstore, Config{AutoApprove: true})
	claims := []ClaimInput{{ClaimID: "c1", ClaimText: "Inflation compounds against fixed savings over time."}}

	result, err := m.ProcessClaims(context.Background(), claims)
	if err != nil {
		t.Fatalf("ProcessClaims: %v", err)
	}
	if len(result.DiscoveredQuestions) != 1 {
		t.Fatalf("expected 1 discovered question, got %d", len(result.DiscoveredQuestions))
	}
	if len(result.MergeAnalyses) != 1 || result.MergeAnalyses[0].Decision != models.KeepDistinct {
		t.Fatalf("expected single keep_distinct merge analysis, got %+v", result.MergeAnalyses)
	}
	if len(qstore.created) != 1 || !qstore.created[0].Reviewed {
		t.Fatalf("expected 1 question created with reviewed=true (auto_approve), got %+v", qstore.created)
	}
	if len(qstore.mappings) != 1 {
		t.Fatalf("expected 1 mapping persisted, got %d", len(qstore.mappings))
	}
}

func TestProcessClaims_LowRelevanceMappingDropped(t *testing.T) {
	discoveryResp := `[
		{"question_text": "Q1", "question_type": "factual", "domain": "", "claim_ids": ["c1"], "confidence": 0.9, "rationale": "r"}
	]`
	assignmentResp := `[
		{"claim_id": "c1", "question_id": "placeholder", "relation_type": "context", "relevance_score": 0.2, "rationale": "weak"}
	]`
	provider := &fakeChatProvider{responses: []string{discoveryResp, assignmentResp}}
	qstore := &fakeQuestionStore{}
	reg := mustRegistry(t)

	m := NewMapper(provider, reg, qstore, Config{AutoApprove: true, MinRelevance: 0.5})
	claims := []ClaimInput{{ClaimID: "c1", ClaimText: "some claim"}}

	result, err := m.ProcessClaims(context.Background(), claims)
	if err != nil {
		t.Fatalf("ProcessClaims: %v", err)
	}
	if len(result.ClaimMappings) != 0 {
		t.Fatalf("expected 0.2-relevance mapping filtered before persistence, got %+v", result.ClaimMappings)
	}
	if len(qstore.mappings) != 0 {
		t.Fatalf("expected nothing persisted, got %+v", qstore.mappings)
	}
}

func TestProcessClaims_NoDiscoveredQuestionsShortCircuits(t *testing.T) {
	provider := &fakeChatProvider{responses: []string{`[]`}}
	qstore := &fakeQuestionStore{}
	reg := mustRegistry(t)

	m := NewMapper(provider, reg, qstore, Config{})
	claims := []ClaimInput{{ClaimID: "c1", ClaimText: "some claim"}}

	result, err := m.ProcessClaims(context.Background(), claims)
	if err != nil {
		t.Fatalf("ProcessClaims: %v", err)
	}
	if len(result.DiscoveredQuestions) != 0 {
		t.Fatalf("expected no discovered questions, got %+v", result.DiscoveredQuestions)
	}
	if len(qstore.created) != 0 {
		t.Fatalf("expected no questions created, got %+v", qstore.created)
	}
}

func TestProcessClaims_EmptyClaimsErrors(t *testing.T) {
	m := NewMapper(&fakeChatProvider{}, mustRegistry(t), &fakeQuestionStore{}, Config{})
	if _, err := m.ProcessClaims(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty claims batch")
	}
}

func TestFilterByDomain_FallsBackToFullSetWhenNoMatch(t *testing.T) {
	candidates := []models.CandidateQuestion{{QuestionText: "q", Domain: "biology"}}
	existing := []models.Question{{QuestionID: "q1", Domain: "economics"}}

	filtered, fallback := filterByDomain(candidates, existing)
	if !fallback {
		t.Error("expected fallback=true when no domain overlap")
	}
	if len(filtered) != 1 {
		t.Fatalf("expected conservative fallback to return full existing set, got %d", len(filtered))
	}
}

func TestFilterByDomain_NarrowsToMatchingDomain(t *testing.T) {
	candidates := []models.CandidateQuestion{{QuestionText: "q", Domain: "economics"}}
	existing := []models.Question{
		{QuestionID: "q1", Domain: "economics"},
		{QuestionID: "q2", Domain: "biology"},
	}

	filtered, fallback := filterByDomain(candidates, existing)
	if fallback {
		t.Error("expected fallback=false when a domain match exists")
	}
	if len(filtered) != 1 || filtered[0].QuestionID != "q1" {
		t.Fatalf("expected only q1 to survive domain filter, got %+v", filtered)
	}
}
