package taste

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// Action is the Taste Filter's per-entity verdict.
type Action string

const (
	ActionDiscard Action = "discard"
	ActionFlag    Action = "flag"
	ActionKeep    Action = "keep"
	ActionBoost   Action = "boost"
)

// FilterConfig carries the similarity-threshold ladder, grounded directly on
// taste_filter.py's TasteFilter class constants.
type FilterConfig struct {
	DiscardThreshold  float64 `yaml:"discard_threshold" validate:"min=0,max=1"`      // >= this similarity to a rejection => auto-discard
	FlagThreshold     float64 `yaml:"flag_threshold" validate:"min=0,max=1"`         // >= this similarity to a rejection => flag for review
	BoostThreshold    float64 `yaml:"boost_threshold" validate:"min=0,max=1"`        // >= this similarity to an acceptance => Positive Echo boost
	PositiveEchoBoost int     `yaml:"positive_echo_boost" validate:"min=0"`          // importance-score delta applied on boost
}

// DefaultFilterConfig mirrors taste_filter.py's class-level defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		DiscardThreshold:  0.95,
		FlagThreshold:     0.80,
		BoostThreshold:    0.95,
		PositiveEchoBoost: 2,
	}
}

// Verdict is the outcome of checking one entity against the taste engine.
type Verdict struct {
	Action            Action
	SimilarityReject  float64
	SimilarityAccept  float64
	MatchedExample    string
	ReasonCategory    string
	WarningMessage    string
	ScoreAdjustment   int
}

// Filter evaluates new extraction output against stored feedback, grounded
// on taste_filter.py's TasteFilter.filter / _check_entity. It never touches
// the network or the store for entities with empty text.
type Filter struct {
	store    similarityQuerier
	embedder Embedder
	cfg      FilterConfig
}

// similarityQuerier is the subset of *Store the Filter depends on, narrowed
// to an interface so tests can supply a fake without a live database.
type similarityQuerier interface {
	QuerySimilar(ctx context.Context, embedding []float32, filter QueryFilter, nResults int) ([]models.SimilarExample, error)
}

// NewFilter constructs a Filter.
func NewFilter(store *Store, embedder Embedder, cfg FilterConfig) *Filter {
	return &Filter{store: store, embedder: embedder, cfg: cfg}
}

// Stats tallies outcomes across one ApplyTasteFilter call.
type Stats struct {
	TotalProcessed int
	Discarded      int
	Flagged        int
	Boosted        int
	Kept           int
}

// FilteredOutput is a MinerOutput after the Taste Filter pass. Claims,
// Jargon, People, and MentalModels have had discards removed; ClaimBoosts
// and ClaimFlags are parallel to Claims (index-aligned) since models.Claim
// itself carries no review-state fields.
type FilteredOutput struct {
	Claims       []models.Claim
	ClaimBoosts  []int
	ClaimFlags   []string
	Jargon       []models.JargonTerm
	People       []models.Person
	MentalModels []models.MentalModel
	Stats        Stats
}

// ApplyTasteFilter runs the Taste Filter over one segment's mined output
// (spec.md §9 OQ3: the single point at which Positive Echo boosts are
// applied, between Mine and Evaluate).
func (f *Filter) ApplyTasteFilter(ctx context.Context, out models.MinerOutput) (FilteredOutput, error) {
	var result FilteredOutput

	claims, boosts, flags, err := filterEntities(ctx, f, out.Claims, models.EntityClaim,
		func(c models.Claim) string { return c.ClaimText }, &result.Stats)
	if err != nil {
		return result, fmt.Errorf("filter claims: %w", err)
	}
	result.Claims, result.ClaimBoosts, result.ClaimFlags = claims, boosts, flags

	jargon, _, _, err := filterEntities(ctx, f, out.Jargon, models.EntityJargon,
		func(j models.JargonTerm) string { return j.Term }, &result.Stats)
	if err != nil {
		return result, fmt.Errorf("filter jargon: %w", err)
	}
	result.Jargon = jargon

	people, _, _, err := filterEntities(ctx, f, out.People, models.EntityPerson,
		func(p models.Person) string { return p.Name }, &result.Stats)
	if err != nil {
		return result, fmt.Errorf("filter people: %w", err)
	}
	result.People = people

	mentalModels, _, _, err := filterEntities(ctx, f, out.MentalModels, models.EntityConcept,
		func(m models.MentalModel) string { return m.Name }, &result.Stats)
	if err != nil {
		return result, fmt.Errorf("filter mental models: %w", err)
	}
	result.MentalModels = mentalModels

	slog.Info("taste filter applied",
		"discarded", result.Stats.Discarded, "flagged", result.Stats.Flagged,
		"boosted", result.Stats.Boosted, "kept", result.Stats.Kept)

	return result, nil
}

// filterEntities runs the threshold ladder over one homogeneous entity
// list, returning the surviving items (discards removed) with parallel
// boost-delta and flag-message slices.
func filterEntities[T any](ctx context.Context, f *Filter, items []T, entityType models.EntityType, textOf func(T) string, stats *Stats) ([]T, []int, []string, error) {
	var kept []T
	var boosts []int
	var flags []string

	for _, item := range items {
		stats.TotalProcessed++
		text := textOf(item)
		if text == "" {
			kept = append(kept, item)
			boosts = append(boosts, 0)
			flags = append(flags, "")
			stats.Kept++
			continue
		}

		verdict, err := f.check(ctx, text, entityType)
		if err != nil {
			return nil, nil, nil, err
		}

		switch verdict.Action {
		case ActionDiscard:
			stats.Discarded++
		case ActionFlag:
			stats.Flagged++
			kept = append(kept, item)
			boosts = append(boosts, 0)
			flags = append(flags, verdict.WarningMessage)
		case ActionBoost:
			stats.Boosted++
			kept = append(kept, item)
			boosts = append(boosts, verdict.ScoreAdjustment)
			flags = append(flags, "")
		default:
			stats.Kept++
			kept = append(kept, item)
			boosts = append(boosts, 0)
			flags = append(flags, "")
		}
	}

	return kept, boosts, flags, nil
}

// check queries the store for the nearest rejection and nearest acceptance
// and applies the threshold ladder, mirroring taste_filter.py's
// _check_entity decision order: rejections are checked first (safety
// first), then Positive Echo, else keep.
func (f *Filter) check(ctx context.Context, text string, entityType models.EntityType) (Verdict, error) {
	embedding, err := f.embedder.Embed(ctx, text)
	if err != nil {
		return Verdict{}, fmt.Errorf("embed entity text: %w", err)
	}

	rejects, err := f.store.QuerySimilar(ctx, embedding, QueryFilter{EntityType: entityType, Verdict: models.VerdictReject}, 1)
	if err != nil {
		return Verdict{}, fmt.Errorf("query rejections: %w", err)
	}
	accepts, err := f.store.QuerySimilar(ctx, embedding, QueryFilter{EntityType: entityType, Verdict: models.VerdictAccept}, 1)
	if err != nil {
		return Verdict{}, fmt.Errorf("query acceptances: %w", err)
	}

	var rejectSim, acceptSim float64
	var rejectExample, acceptExample models.SimilarExample
	if len(rejects) > 0 {
		rejectExample = rejects[0]
		rejectSim = rejectExample.Similarity
	}
	if len(accepts) > 0 {
		acceptExample = accepts[0]
		acceptSim = acceptExample.Similarity
	}

	switch {
	case rejectSim >= f.cfg.DiscardThreshold:
		return Verdict{
			Action:           ActionDiscard,
			SimilarityReject: rejectSim,
			SimilarityAccept: acceptSim,
			MatchedExample:   rejectExample.Text,
			ReasonCategory:   rejectExample.Metadata["reason_category"],
			WarningMessage:   fmt.Sprintf("auto-discarded: %.0f%% similar to past rejection", rejectSim*100),
		}, nil

	case rejectSim >= f.cfg.FlagThreshold:
		return Verdict{
			Action:           ActionFlag,
			SimilarityReject: rejectSim,
			SimilarityAccept: acceptSim,
			MatchedExample:   rejectExample.Text,
			ReasonCategory:   rejectExample.Metadata["reason_category"],
			WarningMessage:   fmt.Sprintf("flagged: %.0f%% similar to past rejection", rejectSim*100),
		}, nil

	case acceptSim >= f.cfg.BoostThreshold:
		return Verdict{
			Action:           ActionBoost,
			SimilarityReject: rejectSim,
			SimilarityAccept: acceptSim,
			MatchedExample:   acceptExample.Text,
			ReasonCategory:   acceptExample.Metadata["reason_category"],
			ScoreAdjustment:  f.cfg.PositiveEchoBoost,
		}, nil

	default:
		return Verdict{Action: ActionKeep, SimilarityReject: rejectSim, SimilarityAccept: acceptSim}, nil
	}
}
