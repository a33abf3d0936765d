package batch

import (
	"context"
	"fmt"
	"testing"

	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

func makeEpisode(sourceID string, segmentCount int) models.Episode {
	ep := models.Episode{SourceID: sourceID}
	for i := 0; i < segmentCount; i++ {
		id := string(rune('a' + i))
		ep.Segments = append(ep.Segments, models.Segment{
			EpisodeSourceID: sourceID,
			SegmentID:       "seg-" + id,
			T0:              float64(i * 10),
			T1:              float64(i*10 + 9),
		})
	}
	return ep
}

// Scenario 2 (spec.md §8): 1 episode of 20 segments; 4 claims land in
// confidence_final=3 segments; remine_max_percent=15 caps re-mining at 3 of
// the 20 segments, not 4.
func TestIdentifySegmentsToRemine_CapsAtConfiguredPercent(t *testing.T) {
	ep := makeEpisode("ep-1", 20)
	claims := []models.EvaluatedClaim{
		{EpisodeSourceID: "ep-1", SegmentID: "seg-a", ConfidenceFinal: 3, Decision: models.DecisionAccept},
		{EpisodeSourceID: "ep-1", SegmentID: "seg-b", ConfidenceFinal: 3, Decision: models.DecisionAccept},
		{EpisodeSourceID: "ep-1", SegmentID: "seg-c", ConfidenceFinal: 3, Decision: models.DecisionAccept},
		{EpisodeSourceID: "ep-1", SegmentID: "seg-d", ConfidenceFinal: 3, Decision: models.DecisionAccept},
	}

	p := &Pipeline{cfg: Config{
		RemineConfidenceThreshold: 4,
		RemineEmptySegments:      false,
		RemineMaxPercent:         15,
	}}

	flagged := p.identifySegmentsToRemine([]models.Episode{ep}, map[string][]models.EvaluatedClaim{"ep-1": claims})
	if len(flagged) != 3 {
		t.Fatalf("expected exactly 3 flagged segments (15%% of 20), got %d", len(flagged))
	}
}

func TestIdentifySegmentsToRemine_IncludesEmptySegmentsWhenEnabled(t *testing.T) {
	ep := makeEpisode("ep-1", 4)
	claims := []models.EvaluatedClaim{
		{EpisodeSourceID: "ep-1", SegmentID: "seg-a", ConfidenceFinal: 9, Decision: models.DecisionAccept},
	}
	p := &Pipeline{cfg: Config{
		RemineConfidenceThreshold: 4,
		RemineEmptySegments:      true,
		RemineMaxPercent:         100,
	}}
	flagged := p.identifySegmentsToRemine([]models.Episode{ep}, map[string][]models.EvaluatedClaim{"ep-1": claims})
	// seg-b, seg-c, seg-d have no claims at all -> empty -> flagged.
	if len(flagged) != 3 {
		t.Fatalf("expected 3 empty segments flagged, got %d", len(flagged))
	}
}

// Scenario 4 (spec.md §8): a claim the Taste Filter boosts (Positive Echo)
// carries that boost delta through to its evaluation ClaimContext.
func TestApplyTasteFilter_BoostDeltaReachesClaimContext(t *testing.T) {
	minerOutputs := map[string]map[string]models.MinerOutput{
		"ep-1": {
			"seg-a": {
				EpisodeSourceID: "ep-1",
				SegmentID:       "seg-a",
				Claims:          []models.Claim{{ClaimText: "a familiar, well-supported claim"}},
			},
		},
	}

	p := &Pipeline{
		tasteFilter: func(ctx context.Context, out models.MinerOutput) (FilteredMinerOutput, error) {
			return FilteredMinerOutput{
				Claims:      out.Claims,
				ClaimBoosts: []int{2},
				ClaimFlags:  []string{""},
			}, nil
		},
	}

	boosts, err := p.applyTasteFilter(context.Background(), minerOutputs)
	if err != nil {
		t.Fatalf("applyTasteFilter: %v", err)
	}
	if got := boosts["ep-1"]["seg-a"]; len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected boost [2], got %v", got)
	}

	ep := models.Episode{SourceID: "ep-1", Segments: []models.Segment{{SegmentID: "seg-a"}}}
	_, contexts := p.buildFlagshipItems([]models.Episode{ep}, minerOutputs, boosts)
	found := false
	for _, ctx := range contexts {
		if ctx.BoostDelta != 2 {
			t.Errorf("expected BoostDelta 2, got %d", ctx.BoostDelta)
		}
		found = true
	}
	if !found {
		t.Fatal("expected one claim context to be built")
	}
}

func TestApplyTasteFilter_NilFilterFuncIsNoOp(t *testing.T) {
	minerOutputs := map[string]map[string]models.MinerOutput{
		"ep-1": {"seg-a": {Claims: []models.Claim{{ClaimText: "x"}}}},
	}
	p := &Pipeline{}
	boosts, err := p.applyTasteFilter(context.Background(), minerOutputs)
	if err != nil {
		t.Fatalf("applyTasteFilter: %v", err)
	}
	if len(boosts) != 0 {
		t.Errorf("expected no boosts when tasteFilter is nil, got %v", boosts)
	}
}

func TestChunkItemsRespectsMaxSize(t *testing.T) {
	var items []llm.BatchItem
	for i := 0; i < 25; i++ {
		items = append(items, llm.BatchItem{CustomID: fmt.Sprintf("mine:ep-1:seg-%d", i)})
	}
	chunks := chunkItems(items, 10)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks of <=10, got %d", len(chunks))
	}
	if len(chunks[0]) != 10 || len(chunks[1]) != 10 || len(chunks[2]) != 5 {
		t.Fatalf("unexpected chunk sizes: %v %v %v", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}
