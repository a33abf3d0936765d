package questions

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/schema"
)

// parseArray unmarshals a raw LLM response as a JSON array of objects,
// repairs and validates each element against schemaName independently, and
// returns only the elements that validate. An element that fails repair is
// logged and skipped (mirrors discovery.py/merger.py/assignment.py's
// per-item ValidationError catch-and-continue, rather than failing the
// whole batch over one bad element).
func parseArray(registry *schema.Registry, raw []byte, schemaName string) ([]map[string]interface{}, error) {
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("invalid JSON array response: %w", err)
	}

	var out []map[string]interface{}
	for i, item := range items {
		repaired, valid, errs := registry.RepairAndValidate(item, schemaName)
		if !valid {
			slog.Warn("dropping invalid question-mapper item", "schema", schemaName, "index", i, "errors", errs)
			continue
		}
		out = append(out, repaired)
	}
	return out, nil
}

// remarshal re-encodes a repaired doc map back to JSON for decoding into its
// concrete struct type. Three thin callers below (one per stage) decode into
// their own doc types rather than a shared generic helper, since this
// module's one justified generic (pkg/taste/filter.go's filterEntities) is
// enough added indirection for the module.
func remarshal(m map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("re-marshal item: %w", err)
	}
	return data, nil
}

// candidateQuestionDoc mirrors the discovery schema's LLM-produced fields.
type candidateQuestionDoc struct {
	QuestionText string   `json:"question_text"`
	QuestionType string   `json:"question_type"`
	Domain       string   `json:"domain"`
	ClaimIDs     []string `json:"claim_ids"`
	Confidence   float64  `json:"confidence"`
	Rationale    string   `json:"rationale"`
}

// ParseDiscovery decodes Stage A's response, keeping only candidates whose
// confidence meets minConfidence (discovery.py's threshold filter).
func ParseDiscovery(registry *schema.Registry, raw []byte, minConfidence float64) ([]models.CandidateQuestion, error) {
	items, err := parseArray(registry, raw, "discovery")
	if err != nil {
		return nil, err
	}

	var out []models.CandidateQuestion
	for _, item := range items {
		data, err := remarshal(item)
		if err != nil {
			return nil, err
		}
		var d candidateQuestionDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode discovery item: %w", err)
		}
		if d.Confidence < minConfidence {
			slog.Debug("filtered low-confidence question", "question_text", d.QuestionText, "confidence", d.Confidence)
			continue
		}
		out = append(out, models.CandidateQuestion{
			QuestionText: d.QuestionText,
			QuestionType: models.QuestionType(d.QuestionType),
			Domain:       d.Domain,
			ClaimIDs:     d.ClaimIDs,
			Confidence:   d.Confidence,
			Rationale:    d.Rationale,
		})
	}
	return out, nil
}

// mergeAnalysisDoc mirrors the merge_analysis schema's LLM-produced fields.
type mergeAnalysisDoc struct {
	NewQuestionText  string  `json:"new_question_text"`
	Decision         string  `json:"decision"`
	TargetQuestionID string  `json:"target_question_id"`
	Confidence       float64 `json:"confidence"`
	Rationale        string  `json:"rationale"`
}

// ParseMergeAnalyses decodes Stage B's response and joins each recommendation
// back to its candidate by new_question_text (merger.py's rec_map), keeping
// only recommendations at or above minConfidence. Candidates with no
// matching recommendation are dropped by the caller's zip step, not here.
func ParseMergeAnalyses(registry *schema.Registry, raw []byte, candidates []models.CandidateQuestion, minConfidence float64) ([]models.MergeAnalysis, error) {
	items, err := parseArray(registry, raw, "merge_analysis")
	if err != nil {
		return nil, err
	}

	byText := make(map[string]models.CandidateQuestion, len(candidates))
	for _, c := range candidates {
		byText[c.QuestionText] = c
	}

	var out []models.MergeAnalysis
	for _, item := range items {
		data, err := remarshal(item)
		if err != nil {
			return nil, err
		}
		var d mergeAnalysisDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode merge analysis item: %w", err)
		}
		if d.Confidence < minConfidence {
			slog.Debug("filtered low-confidence merge recommendation", "question_text", d.NewQuestionText, "confidence", d.Confidence)
			continue
		}
		cand, ok := byText[d.NewQuestionText]
		if !ok {
			slog.Warn("merge recommendation referenced unknown candidate", "question_text", d.NewQuestionText)
			continue
		}
		out = append(out, models.MergeAnalysis{
			Candidate:        cand,
			Decision:         models.MergeDecision(d.Decision),
			TargetQuestionID: d.TargetQuestionID,
			Confidence:       d.Confidence,
			Rationale:        d.Rationale,
		})
	}
	return out, nil
}

// claimQuestionMappingDoc mirrors the assignment schema's LLM-produced fields.
type claimQuestionMappingDoc struct {
	ClaimID        string  `json:"claim_id"`
	QuestionID     string  `json:"question_id"`
	RelationType   string  `json:"relation_type"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ParseAssignments decodes Stage C's response, keeping only mappings whose
// relevance meets minRelevance (assignment.py's threshold filter).
func ParseAssignments(registry *schema.Registry, raw []byte, minRelevance float64) ([]models.ClaimQuestionMapping, error) {
	items, err := parseArray(registry, raw, "assignment")
	if err != nil {
		return nil, err
	}

	var out []models.ClaimQuestionMapping
	for _, item := range items {
		data, err := remarshal(item)
		if err != nil {
			return nil, err
		}
		var d claimQuestionMappingDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode assignment item: %w", err)
		}
		if d.RelevanceScore < minRelevance {
			slog.Debug("filtered low-relevance mapping", "claim_id", d.ClaimID, "question_id", d.QuestionID, "relevance", d.RelevanceScore)
			continue
		}
		out = append(out, models.ClaimQuestionMapping{
			ClaimID:        d.ClaimID,
			QuestionID:     d.QuestionID,
			RelationType:   models.RelationType(d.RelationType),
			RelevanceScore: d.RelevanceScore,
		})
	}
	return out, nil
}
