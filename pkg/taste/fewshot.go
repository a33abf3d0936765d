package taste

import (
	"context"
	"log/slog"

	"github.com/msg43/knowledge-chipper-engine/pkg/mining"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// FewShotSource builds a segment's few-shot block from the nearest accepted
// and rejected claim-feedback examples; its Lookup method matches the
// batch.FewShotLookup function type (pkg/batch avoids importing this package
// directly; callers wire batch.FewShotLookup(<source>.Lookup) at startup).
type FewShotSource struct {
	store       *Store
	embedder    Embedder
	nPerVerdict int
}

// NewFewShotSource constructs a FewShotSource. nPerVerdict caps how many
// accept and how many reject examples are retrieved per segment (spec.md
// §4.3 "examples are sorted deterministically by similarity rank").
func NewFewShotSource(store *Store, embedder Embedder, nPerVerdict int) *FewShotSource {
	if nPerVerdict <= 0 {
		nPerVerdict = 3
	}
	return &FewShotSource{store: store, embedder: embedder, nPerVerdict: nPerVerdict}
}

// Lookup implements the signature pkg/batch.FewShotLookup expects:
// func(ctx, models.Segment) []mining.FewShotExample.
func (s *FewShotSource) Lookup(ctx context.Context, seg models.Segment) []mining.FewShotExample {
	if seg.Text == "" {
		return nil
	}

	embedding, err := s.embedder.Embed(ctx, seg.Text)
	if err != nil {
		slog.Warn("few-shot lookup: failed to embed segment text", "segment_id", seg.SegmentID, "error", err)
		return nil
	}

	var out []mining.FewShotExample
	rank := 0

	accepts, err := s.store.QuerySimilar(ctx, embedding, QueryFilter{EntityType: models.EntityClaim, Verdict: models.VerdictAccept}, s.nPerVerdict)
	if err != nil {
		slog.Warn("few-shot lookup: query accepts failed", "segment_id", seg.SegmentID, "error", err)
	}
	for _, ex := range accepts {
		rank++
		out = append(out, mining.FewShotExample{
			Verdict:        "accept",
			SimilarityRank: rank,
			ClaimText:      ex.Text,
			Reasoning:      ex.Metadata["reason_category"],
		})
	}

	rejects, err := s.store.QuerySimilar(ctx, embedding, QueryFilter{EntityType: models.EntityClaim, Verdict: models.VerdictReject}, s.nPerVerdict)
	if err != nil {
		slog.Warn("few-shot lookup: query rejects failed", "segment_id", seg.SegmentID, "error", err)
	}
	for _, ex := range rejects {
		rank++
		out = append(out, mining.FewShotExample{
			Verdict:        "reject",
			SimilarityRank: rank,
			ClaimText:      ex.Text,
			Reasoning:      ex.Metadata["reason_category"],
		})
	}

	return out
}
