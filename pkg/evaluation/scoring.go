package evaluation

import (
	"sort"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// RawScore is one element of the Flagship Evaluator's parsed JSON response,
// before tier/rank are computed app-side (tier/rank are never trusted from
// the model — spec.md §4.4 invariant is enforced in code, not prompted for).
type RawScore struct {
	ClaimID         string `json:"claim_id"`
	Decision        string `json:"decision"`
	Importance      int    `json:"importance"`
	Novelty         int    `json:"novelty"`
	ConfidenceFinal int    `json:"confidence_final"`
	Reasoning       string `json:"reasoning"`
}

// ClaimContext is the information about a claim the scorer needs but the
// model doesn't re-emit: identity, provenance, and the Taste Filter's boost
// delta. Rank records the model's raw importance as
// EvaluatedClaim.PreFilterImportance for audit.
type ClaimContext struct {
	ClaimID             string
	EpisodeSourceID     string
	SegmentID           string
	ClaimText           string
	ClaimType           models.ClaimType
	Timestamp           float64
	PreFilterImportance int // not read by Rank, which takes the raw Importance from the score
	// BoostDelta is the Taste Filter's Positive Echo adjustment (spec.md §9
	// OQ3: applied exactly once, here, never re-applied downstream).
	BoostDelta int
}

// Rank combines raw LLM scores with claim context into the episode's final
// EvaluatedClaim list: tiers via models.TierFor, dense-ranks by importance
// with the tie-break ladder confidence → novelty → earlier timestamp (spec.md
// §4.4 "Invariant" + ranking note), and rejects anything below tier C or
// explicitly marked reject by the model.
func Rank(scores []RawScore, contexts map[string]ClaimContext) ([]models.EvaluatedClaim, models.SummaryAssessment) {
	claims := make([]models.EvaluatedClaim, 0, len(scores))
	for _, s := range scores {
		ctx, ok := contexts[s.ClaimID]
		if !ok {
			continue
		}
		importance := s.Importance + ctx.BoostDelta
		if importance > 10 {
			importance = 10
		}

		tier := models.TierFor(importance)
		decision := models.Decision(s.Decision)
		if tier == "" {
			decision = models.DecisionReject
		} else if decision == "" {
			decision = models.DecisionAccept
		}

		claims = append(claims, models.EvaluatedClaim{
			ClaimID:             s.ClaimID,
			EpisodeSourceID:     ctx.EpisodeSourceID,
			SegmentID:           ctx.SegmentID,
			Canonical:           ctx.ClaimText,
			ClaimText:           ctx.ClaimText,
			ClaimType:           ctx.ClaimType,
			Decision:            decision,
			Importance:          importance,
			PreFilterImportance: s.Importance,
			Novelty:             s.Novelty,
			ConfidenceFinal:     s.ConfidenceFinal,
			Tier:                tier,
			Reasoning:           s.Reasoning,
		})
	}

	accepted := make([]int, 0, len(claims))
	for i, c := range claims {
		if c.Decision == models.DecisionAccept {
			accepted = append(accepted, i)
		}
	}

	// Dense rank: sort accepted claims by importance desc, then the
	// confidence → novelty → earlier-timestamp tie-break ladder.
	sort.Slice(accepted, func(a, b int) bool {
		ca, cb := claims[accepted[a]], claims[accepted[b]]
		if ca.Importance != cb.Importance {
			return ca.Importance > cb.Importance
		}
		if ca.ConfidenceFinal != cb.ConfidenceFinal {
			return ca.ConfidenceFinal > cb.ConfidenceFinal
		}
		if ca.Novelty != cb.Novelty {
			return ca.Novelty > cb.Novelty
		}
		ta := contexts[ca.ClaimID].Timestamp
		tb := contexts[cb.ClaimID].Timestamp
		return ta < tb
	})
	for rank, idx := range accepted {
		claims[idx].Rank = rank + 1
	}

	return claims, summarize(claims)
}

func summarize(claims []models.EvaluatedClaim) models.SummaryAssessment {
	summary := models.SummaryAssessment{}
	if len(claims) == 0 {
		return summary
	}
	summary.EpisodeSourceID = claims[0].EpisodeSourceID
	summary.TotalClaimsProcessed = len(claims)

	var sumImportance, sumNovelty, sumConfidence float64
	for _, c := range claims {
		if c.Decision == models.DecisionAccept {
			summary.ClaimsAccepted++
			sumImportance += float64(c.Importance)
			sumNovelty += float64(c.Novelty)
			sumConfidence += float64(c.ConfidenceFinal)
		} else {
			summary.ClaimsRejected++
		}
	}
	if summary.ClaimsAccepted > 0 {
		n := float64(summary.ClaimsAccepted)
		summary.AverageScores = models.AverageScores{
			Importance: sumImportance / n,
			Novelty:    sumNovelty / n,
			Confidence: sumConfidence / n,
		}
	}
	return summary
}
