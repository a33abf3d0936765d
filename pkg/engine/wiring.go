package engine

import (
	"context"

	"github.com/msg43/knowledge-chipper-engine/pkg/batch"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/questions"
	"github.com/msg43/knowledge-chipper-engine/pkg/store"
	"github.com/msg43/knowledge-chipper-engine/pkg/taste"
)

var (
	_ Jobs           = (*store.JobStore)(nil)
	_ Runs           = (*store.RunStore)(nil)
	_ Episodes       = (*store.EpisodeStore)(nil)
	_ Claims         = (*store.ClaimStore)(nil)
	_ Pipeline       = (*batch.Pipeline)(nil)
	_ QuestionMapper = (*questions.Mapper)(nil)
)

// NewTasteFilterFunc adapts a *taste.Filter to the batch.TasteFilterFunc
// signature pkg/batch expects, translating taste.FilteredOutput (which
// additionally carries per-call Stats) into pkg/batch's narrower
// FilteredMinerOutput shape so pkg/batch never imports pkg/taste directly.
func NewTasteFilterFunc(f *taste.Filter) batch.TasteFilterFunc {
	return func(ctx context.Context, out models.MinerOutput) (batch.FilteredMinerOutput, error) {
		filtered, err := f.ApplyTasteFilter(ctx, out)
		if err != nil {
			return batch.FilteredMinerOutput{}, err
		}
		return batch.FilteredMinerOutput{
			Claims:       filtered.Claims,
			ClaimBoosts:  filtered.ClaimBoosts,
			ClaimFlags:   filtered.ClaimFlags,
			Jargon:       filtered.Jargon,
			People:       filtered.People,
			MentalModels: filtered.MentalModels,
		}, nil
	}
}
