package taste

import (
	"context"
	"testing"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// fakeEmbedder returns a fixed vector regardless of input, since the
// threshold-ladder tests drive behavior entirely through fakeStore's
// canned similarity results.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (fakeEmbedder) Dimension() int { return 3 }

// fakeStore returns canned similarity results keyed by verdict, ignoring
// the query embedding, so each test controls similarity_to_reject /
// similarity_to_accept directly.
type fakeStore struct {
	rejectSim float64
	acceptSim float64
}

func (s fakeStore) QuerySimilar(ctx context.Context, embedding []float32, filter QueryFilter, nResults int) ([]models.SimilarExample, error) {
	switch filter.Verdict {
	case models.VerdictReject:
		if s.rejectSim == 0 {
			return nil, nil
		}
		return []models.SimilarExample{{Text: "past rejection", Similarity: s.rejectSim, Verdict: models.VerdictReject, Metadata: map[string]string{"reason_category": "vague_filler"}}}, nil
	case models.VerdictAccept:
		if s.acceptSim == 0 {
			return nil, nil
		}
		return []models.SimilarExample{{Text: "past acceptance", Similarity: s.acceptSim, Verdict: models.VerdictAccept, Metadata: map[string]string{"reason_category": "novel_insight"}}}, nil
	}
	return nil, nil
}

func TestFilter_DiscardsHighSimilarityToRejection(t *testing.T) {
	f := &Filter{store: fakeStore{rejectSim: 0.97}, embedder: fakeEmbedder{}, cfg: DefaultFilterConfig()}
	out, err := f.ApplyTasteFilter(context.Background(), models.MinerOutput{
		Claims: []models.Claim{{ClaimText: "things were different back then"}},
	})
	if err != nil {
		t.Fatalf("ApplyTasteFilter: %v", err)
	}
	if len(out.Claims) != 0 {
		t.Fatalf("expected claim discarded, got %d claims", len(out.Claims))
	}
	if out.Stats.Discarded != 1 {
		t.Errorf("expected 1 discarded, got %d", out.Stats.Discarded)
	}
}

func TestFilter_FlagsMidRangeSimilarityToRejection(t *testing.T) {
	f := &Filter{store: fakeStore{rejectSim: 0.85}, embedder: fakeEmbedder{}, cfg: DefaultFilterConfig()}
	out, err := f.ApplyTasteFilter(context.Background(), models.MinerOutput{
		Claims: []models.Claim{{ClaimText: "somewhat suspicious claim"}},
	})
	if err != nil {
		t.Fatalf("ApplyTasteFilter: %v", err)
	}
	if len(out.Claims) != 1 {
		t.Fatalf("expected claim kept but flagged, got %d claims", len(out.Claims))
	}
	if out.ClaimFlags[0] == "" {
		t.Error("expected a flag warning message")
	}
	if out.Stats.Flagged != 1 {
		t.Errorf("expected 1 flagged, got %d", out.Stats.Flagged)
	}
}

// Positive Echo: a claim highly similar to a past acceptance gets boosted,
// never discarded (spec.md §8 scenario 4).
func TestFilter_BoostsHighSimilarityToAcceptance(t *testing.T) {
	f := &Filter{store: fakeStore{acceptSim: 0.99}, embedder: fakeEmbedder{}, cfg: DefaultFilterConfig()}
	out, err := f.ApplyTasteFilter(context.Background(), models.MinerOutput{
		Claims: []models.Claim{{ClaimText: "a well-established pattern claim"}},
	})
	if err != nil {
		t.Fatalf("ApplyTasteFilter: %v", err)
	}
	if len(out.Claims) != 1 {
		t.Fatalf("expected claim kept, got %d claims", len(out.Claims))
	}
	if out.ClaimBoosts[0] != DefaultFilterConfig().PositiveEchoBoost {
		t.Errorf("expected boost delta %d, got %d", DefaultFilterConfig().PositiveEchoBoost, out.ClaimBoosts[0])
	}
	if out.Stats.Boosted != 1 {
		t.Errorf("expected 1 boosted, got %d", out.Stats.Boosted)
	}
}

func TestFilter_KeepsUnremarkableEntities(t *testing.T) {
	f := &Filter{store: fakeStore{}, embedder: fakeEmbedder{}, cfg: DefaultFilterConfig()}
	out, err := f.ApplyTasteFilter(context.Background(), models.MinerOutput{
		Claims: []models.Claim{{ClaimText: "a brand new claim"}},
	})
	if err != nil {
		t.Fatalf("ApplyTasteFilter: %v", err)
	}
	if len(out.Claims) != 1 || out.ClaimBoosts[0] != 0 || out.ClaimFlags[0] != "" {
		t.Errorf("expected claim kept unmodified, got %+v / boost=%d / flag=%q", out.Claims, out.ClaimBoosts[0], out.ClaimFlags[0])
	}
	if out.Stats.Kept != 1 {
		t.Errorf("expected 1 kept, got %d", out.Stats.Kept)
	}
}
