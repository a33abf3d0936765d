package questions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/schema"
	"github.com/msg43/knowledge-chipper-engine/pkg/store"
)

// Config controls the Question Mapper's batching and filtering thresholds,
// mirroring orchestrator.py's process_claims defaults.
type Config struct {
	BatchSize              int     `yaml:"batch_size" validate:"min=1"`
	MinDiscoveryConfidence float64 `yaml:"min_discovery_confidence" validate:"min=0,max=1"`
	MinMergeConfidence     float64 `yaml:"min_merge_confidence" validate:"min=0,max=1"`
	MinRelevance           float64 `yaml:"min_relevance" validate:"min=0,max=1"`
	AutoApprove            bool    `yaml:"auto_approve"`
}

// DefaultConfig mirrors process_claims' keyword defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:              50,
		MinDiscoveryConfidence: 0.6,
		MinMergeConfidence:     0.7,
		MinRelevance:           0.5,
		AutoApprove:            false,
	}
}

// Questions is the subset of *store.QuestionStore the Mapper depends on,
// narrowed to an interface for unit testing against an in-memory fake.
type Questions interface {
	ListByDomains(ctx context.Context, domains []string) ([]models.Question, error)
	CreateQuestion(ctx context.Context, q models.Question) (*models.Question, error)
	MergeInto(ctx context.Context, oldID, newID string) error
	SaveMappings(ctx context.Context, minRelevance float64, mappings []models.ClaimQuestionMapping) (int, error)
}

var _ Questions = (*store.QuestionStore)(nil)

// Mapper is the Question Mapper (C8): Discover -> Merge -> Assign -> Persist,
// grounded end to end on orchestrator.py's QuestionMapperOrchestrator.
type Mapper struct {
	llm      llm.ChatProvider
	registry *schema.Registry
	store    Questions
	cfg      Config
}

// NewMapper constructs a Mapper. A zero-value Config field falls back to
// DefaultConfig's value for everything except AutoApprove, which is a
// genuine boolean choice and has no "unset" sentinel.
func NewMapper(provider llm.ChatProvider, registry *schema.Registry, qstore Questions, cfg Config) *Mapper {
	d := DefaultConfig()
	if cfg.BatchSize > 0 {
		d.BatchSize = cfg.BatchSize
	}
	if cfg.MinDiscoveryConfidence > 0 {
		d.MinDiscoveryConfidence = cfg.MinDiscoveryConfidence
	}
	if cfg.MinMergeConfidence > 0 {
		d.MinMergeConfidence = cfg.MinMergeConfidence
	}
	if cfg.MinRelevance > 0 {
		d.MinRelevance = cfg.MinRelevance
	}
	d.AutoApprove = cfg.AutoApprove
	return &Mapper{llm: provider, registry: registry, store: qstore, cfg: d}
}

// Result mirrors QuestionMapperResult: everything the pipeline produced,
// for callers to log, persist, or surface for review.
type Result struct {
	DiscoveredQuestions []models.CandidateQuestion
	MergeAnalyses       []models.MergeAnalysis
	ClaimMappings       []models.ClaimQuestionMapping
	LLMCallsMade        int
}

// ProcessClaims runs the full pipeline over a batch of evaluated claims.
// Mirrors QuestionMapperOrchestrator.process_claims stage by stage.
func (m *Mapper) ProcessClaims(ctx context.Context, claims []ClaimInput) (Result, error) {
	var result Result
	if len(claims) == 0 {
		return result, fmt.Errorf("cannot process an empty claims batch")
	}

	// STAGE A: DISCOVERY
	discovered, calls, err := m.discoverBatched(ctx, claims)
	result.LLMCallsMade += calls
	if err != nil {
		return result, fmt.Errorf("discovery: %w", err)
	}
	result.DiscoveredQuestions = discovered
	if len(discovered) == 0 {
		slog.Info("question mapper: no questions discovered, pipeline complete")
		return result, nil
	}

	// STAGE B: MERGE ANALYSIS
	domains := uniqueDomains(discovered)
	existing, err := m.store.ListByDomains(ctx, domains)
	if err != nil {
		return result, fmt.Errorf("list existing questions: %w", err)
	}

	merges, domainFallback, mergeCalls, err := m.analyzeMerges(ctx, discovered, existing)
	result.LLMCallsMade += mergeCalls
	if err != nil {
		return result, fmt.Errorf("merge analysis: %w", err)
	}
	for i := range merges {
		merges[i].DomainFallback = domainFallback
	}
	result.MergeAnalyses = merges

	// STAGE C (finalize): create/reuse questions per merge decision.
	finalized, err := m.finalizeQuestions(ctx, discovered, merges)
	if err != nil {
		return result, fmt.Errorf("finalize questions: %w", err)
	}
	if len(finalized) == 0 {
		slog.Info("question mapper: no questions finalized, skipping assignment")
		return result, nil
	}

	finalQuestions := make([]models.Question, 0, len(finalized))
	for _, q := range finalized {
		finalQuestions = append(finalQuestions, q)
	}

	// STAGE C: ASSIGNMENT
	mappings, assignCalls, err := m.assignBatched(ctx, claims, finalQuestions)
	result.LLMCallsMade += assignCalls
	if err != nil {
		return result, fmt.Errorf("claim assignment: %w", err)
	}
	result.ClaimMappings = mappings

	// STAGE D: PERSISTENCE
	saved, err := m.store.SaveMappings(ctx, m.cfg.MinRelevance, mappings)
	if err != nil {
		return result, fmt.Errorf("save mappings: %w", err)
	}
	slog.Info("question mapper complete", "discovered", len(discovered), "finalized", len(finalized), "mappings_saved", saved)

	return result, nil
}

// mapperConcurrency bounds how many Stage A batches run in flight at
// once; Discovery/Assignment are synchronous ChatProvider calls (spec.md
// §4.8: these "don't warrant batch submission"), so fan-out happens at the
// Go-concurrency level instead of via the provider's batch API.
const mapperConcurrency = 4

// discoverBatched runs Stage A in chunks of cfg.BatchSize, concurrently
// (bounded by mapperConcurrency), generalizing discover_questions_batched's
// sequential for-loop the way pkg/batch's waitForCompletion bounds its own
// fan-out with golang.org/x/sync.
func (m *Mapper) discoverBatched(ctx context.Context, claims []ClaimInput) ([]models.CandidateQuestion, int, error) {
	batches := chunkClaims(claims, m.cfg.BatchSize)

	var mu sync.Mutex
	var all []models.CandidateQuestion
	calls := int32(0)

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(mapperConcurrency)
	for _, batch := range batches {
		batch := batch
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			prompt := BuildDiscoveryPrompt(batch)
			resp, err := m.llm.Chat(gctx, llm.ChatRequest{System: discoveryInstructions, Messages: []llm.Message{{Role: "user", Content: prompt}}, Temperature: 0.3, MaxTokens: 4000})
			atomic.AddInt32(&calls, 1)
			if err != nil {
				return fmt.Errorf("discovery LLM call: %w", err)
			}
			found, err := ParseDiscovery(m.registry, []byte(resp.Content), m.cfg.MinDiscoveryConfidence)
			if err != nil {
				slog.Error("discovery response parse failed", "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, int(calls), err
	}
	return all, int(calls), nil
}

// analyzeMerges runs Stage B. If there are no existing questions at all,
// every candidate is auto-keep_distinct without an LLM call, per merger.py's
// no-existing-questions fast path. When none pass the domain filter,
// filterByDomain falls back to the full existing set (reported as the
// returned bool) and the LLM is still called.
func (m *Mapper) analyzeMerges(ctx context.Context, candidates []models.CandidateQuestion, existing []models.Question) ([]models.MergeAnalysis, bool, int, error) {
	if len(existing) == 0 {
		return keepDistinctAll(candidates, 1.0, "no existing questions in database"), false, 0, nil
	}

	filtered, usedFallback := filterByDomain(candidates, existing)
	if len(filtered) == 0 {
		return keepDistinctAll(candidates, 0.95, "no existing questions in relevant domain/topic"), true, 0, nil
	}

	prompt := BuildMergePrompt(candidates, filtered)
	resp, err := m.llm.Chat(ctx, llm.ChatRequest{System: mergeInstructions, Messages: []llm.Message{{Role: "user", Content: prompt}}, Temperature: 0.2, MaxTokens: 4000})
	if err != nil {
		return nil, usedFallback, 1, fmt.Errorf("merge LLM call: %w", err)
	}
	analyses, err := ParseMergeAnalyses(m.registry, []byte(resp.Content), candidates, m.cfg.MinMergeConfidence)
	if err != nil {
		return nil, usedFallback, 1, fmt.Errorf("parse merge analyses: %w", err)
	}
	return analyses, usedFallback, 1, nil
}

func keepDistinctAll(candidates []models.CandidateQuestion, confidence float64, rationale string) []models.MergeAnalysis {
	out := make([]models.MergeAnalysis, len(candidates))
	for i, c := range candidates {
		out[i] = models.MergeAnalysis{Candidate: c, Decision: models.KeepDistinct, Confidence: confidence, Rationale: rationale}
	}
	return out
}

// filterByDomain narrows existing to the domains mentioned by candidates,
// falling back to the full existing set when no candidate has a domain or
// none match (spec.md §9 OQ4: the fallback is explicit, not incidental).
func filterByDomain(candidates []models.CandidateQuestion, existing []models.Question) ([]models.Question, bool) {
	domains := map[string]struct{}{}
	for _, c := range candidates {
		if c.Domain != "" {
			domains[strings.ToLower(c.Domain)] = struct{}{}
		}
	}
	if len(domains) == 0 {
		return existing, true
	}

	var filtered []models.Question
	for _, q := range existing {
		if _, ok := domains[strings.ToLower(q.Domain)]; ok {
			filtered = append(filtered, q)
		}
	}
	if len(filtered) == 0 {
		return existing, true
	}
	return filtered, false
}

// finalizeQuestions applies the merge decision per candidate, creating or
// reusing questions (orchestrator.py's _finalize_questions), keyed by
// question_text for the assignment stage.
func (m *Mapper) finalizeQuestions(ctx context.Context, discovered []models.CandidateQuestion, merges []models.MergeAnalysis) (map[string]models.Question, error) {
	byText := make(map[string]models.MergeAnalysis, len(merges))
	for _, a := range merges {
		byText[a.Candidate.QuestionText] = a
	}

	finalized := make(map[string]models.Question)
	for _, cand := range discovered {
		analysis, ok := byText[cand.QuestionText]
		if !ok {
			continue
		}

		switch analysis.Decision {
		case models.KeepDistinct:
			q, err := m.createQuestion(ctx, cand)
			if err != nil {
				return nil, err
			}
			if q != nil {
				finalized[cand.QuestionText] = *q
			}

		case models.MergeIntoExisting:
			if analysis.TargetQuestionID != "" {
				finalized[cand.QuestionText] = models.Question{QuestionID: analysis.TargetQuestionID, QuestionText: cand.QuestionText}
			}

		case models.MergeExistingIntoNew:
			if m.cfg.AutoApprove && analysis.TargetQuestionID != "" {
				q, err := m.createQuestion(ctx, cand)
				if err != nil {
					return nil, err
				}
				if q != nil {
					if err := m.store.MergeInto(ctx, analysis.TargetQuestionID, q.QuestionID); err != nil {
						return nil, fmt.Errorf("merge existing into new: %w", err)
					}
					finalized[cand.QuestionText] = *q
				}
			} else {
				q, err := m.createQuestionReviewed(ctx, cand, false)
				if err != nil {
					return nil, err
				}
				if q != nil {
					finalized[cand.QuestionText] = *q
				}
			}

		case models.LinkAsRelated:
			// Kept as its own question; relation bookkeeping between the two
			// questions is not modeled yet (no question_relations store exists).
			q, err := m.createQuestion(ctx, cand)
			if err != nil {
				return nil, err
			}
			if q != nil {
				finalized[cand.QuestionText] = *q
			}
		}
	}
	return finalized, nil
}

func (m *Mapper) createQuestion(ctx context.Context, cand models.CandidateQuestion) (*models.Question, error) {
	return m.createQuestionReviewed(ctx, cand, m.cfg.AutoApprove)
}

func (m *Mapper) createQuestionReviewed(ctx context.Context, cand models.CandidateQuestion, reviewed bool) (*models.Question, error) {
	q := models.Question{
		QuestionText:    cand.QuestionText,
		QuestionType:    cand.QuestionType,
		Domain:          cand.Domain,
		ImportanceScore: cand.Confidence,
		Reviewed:        reviewed,
	}
	created, err := m.store.CreateQuestion(ctx, q)
	if err != nil {
		slog.Error("failed to create question", "question_text", cand.QuestionText, "error", err)
		return nil, nil
	}
	return created, nil
}

// assignBatched runs Stage C in chunks of cfg.BatchSize, per
// assign_claims_batched. The finalized question set is never batched — every
// call sees the complete set, matching the original.
func (m *Mapper) assignBatched(ctx context.Context, claims []ClaimInput, questions []models.Question) ([]models.ClaimQuestionMapping, int, error) {
	if len(questions) == 0 {
		return nil, 0, nil
	}
	batches := chunkClaims(claims, m.cfg.BatchSize)

	var mu sync.Mutex
	var all []models.ClaimQuestionMapping
	calls := int32(0)

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(mapperConcurrency)
	for _, batch := range batches {
		batch := batch
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			prompt := BuildAssignmentPrompt(batch, questions)
			resp, err := m.llm.Chat(gctx, llm.ChatRequest{System: assignmentInstructions, Messages: []llm.Message{{Role: "user", Content: prompt}}, Temperature: 0.2, MaxTokens: 6000})
			atomic.AddInt32(&calls, 1)
			if err != nil {
				return fmt.Errorf("assignment LLM call: %w", err)
			}
			mapped, err := ParseAssignments(m.registry, []byte(resp.Content), m.cfg.MinRelevance)
			if err != nil {
				slog.Error("assignment response parse failed", "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, mapped...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, int(calls), err
	}
	return all, int(calls), nil
}

func chunkClaims(claims []ClaimInput, size int) [][]ClaimInput {
	if size <= 0 {
		size = len(claims)
	}
	var chunks [][]ClaimInput
	for len(claims) > 0 {
		n := size
		if n > len(claims) {
			n = len(claims)
		}
		chunks = append(chunks, claims[:n])
		claims = claims[n:]
	}
	return chunks
}

func uniqueDomains(candidates []models.CandidateQuestion) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range candidates {
		if c.Domain == "" {
			continue
		}
		if _, ok := seen[c.Domain]; ok {
			continue
		}
		seen[c.Domain] = struct{}{}
		out = append(out, c.Domain)
	}
	return out
}
