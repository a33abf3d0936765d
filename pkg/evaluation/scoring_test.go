package evaluation

import (
	"testing"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

func TestRank_TierInvariantAndDenseRanking(t *testing.T) {
	contexts := map[string]ClaimContext{
		"c1": {ClaimID: "c1", EpisodeSourceID: "ep-1", SegmentID: "seg-1", ClaimText: "claim one", Timestamp: 10},
		"c2": {ClaimID: "c2", EpisodeSourceID: "ep-1", SegmentID: "seg-2", ClaimText: "claim two", Timestamp: 5},
		"c3": {ClaimID: "c3", EpisodeSourceID: "ep-1", SegmentID: "seg-3", ClaimText: "claim three", Timestamp: 1},
	}
	scores := []RawScore{
		{ClaimID: "c1", Decision: "accept", Importance: 9, Novelty: 5, ConfidenceFinal: 7},
		{ClaimID: "c2", Decision: "accept", Importance: 9, Novelty: 5, ConfidenceFinal: 7},
		{ClaimID: "c3", Decision: "accept", Importance: 2, Novelty: 9, ConfidenceFinal: 9},
	}

	claims, summary := Rank(scores, contexts)
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}

	byID := map[string]models.EvaluatedClaim{}
	for _, c := range claims {
		byID[c.ClaimID] = c
	}

	if byID["c1"].Tier != models.TierA {
		t.Errorf("expected c1 tier A, got %s", byID["c1"].Tier)
	}
	if byID["c3"].Decision != models.DecisionReject {
		t.Errorf("expected c3 (importance 2) rejected, got %s", byID["c3"].Decision)
	}
	if byID["c3"].Rank != 0 {
		t.Errorf("expected rejected claim to carry no rank, got %d", byID["c3"].Rank)
	}

	// c1 and c2 tie on importance/confidence/novelty; c2 has the earlier
	// timestamp (5 < 10) so it must rank first.
	if byID["c2"].Rank != 1 {
		t.Errorf("expected c2 (earlier timestamp) ranked 1, got %d", byID["c2"].Rank)
	}
	if byID["c1"].Rank != 2 {
		t.Errorf("expected c1 ranked 2, got %d", byID["c1"].Rank)
	}

	if summary.ClaimsAccepted != 2 || summary.ClaimsRejected != 1 {
		t.Errorf("unexpected summary counts: %+v", summary)
	}
}

func TestRank_EmptyInputYieldsZeroedSummary(t *testing.T) {
	claims, summary := Rank(nil, map[string]ClaimContext{})
	if len(claims) != 0 {
		t.Fatalf("expected no claims, got %d", len(claims))
	}
	if summary.TotalClaimsProcessed != 0 || summary.ClaimsAccepted != 0 || summary.ClaimsRejected != 0 {
		t.Errorf("expected zeroed summary, got %+v", summary)
	}
}
