package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/msg43/knowledge-chipper-engine/pkg/evaluation"
	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
	"github.com/msg43/knowledge-chipper-engine/pkg/mining"
	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/schema"
)

// Config mirrors BatchPipelineConfig from original_source/batch_pipeline.py,
// carried over field-for-field (spec.md §6).
type Config struct {
	BatchProvider             string  `yaml:"batch_provider" validate:"required"`
	MiningModel               string  `yaml:"batch_mining_model" validate:"required"`
	FlagshipModel             string  `yaml:"batch_flagship_model" validate:"required"`
	RemineProvider            string  `yaml:"batch_remine_provider" validate:"required"`
	RemineModel               string  `yaml:"batch_remine_model" validate:"required"`
	RemineEnabled             bool    `yaml:"remine_enabled"`
	RemineConfidenceThreshold int     `yaml:"remine_confidence_threshold" validate:"omitempty,min=1,max=5"`
	RemineEmptySegments       bool    `yaml:"remine_empty_segments"`
	RemineMaxPercent          float64 `yaml:"remine_max_percent" validate:"min=0,max=100"`
	EnableCacheOptimization   bool    `yaml:"enable_cache_optimization"`
	SequentialBatchSubmission bool    `yaml:"sequential_batch_submission"`
	BatchDelaySeconds         int     `yaml:"batch_delay_seconds" validate:"min=0"`
	PollIntervalSeconds       int     `yaml:"poll_interval_seconds" validate:"min=1"`
	MaxRequestsPerBatch       int     `yaml:"max_requests_per_batch" validate:"min=1"`
	PollConcurrency           int     `yaml:"poll_concurrency" validate:"min=1"`
}

// DefaultConfig matches the original's constructor defaults.
func DefaultConfig() Config {
	return Config{
		BatchProvider:             "openai",
		MiningModel:               "gpt-5-mini",
		FlagshipModel:             "gpt-5-mini",
		RemineProvider:            "anthropic",
		RemineModel:               "claude-3.7-sonnet",
		RemineEnabled:             true,
		RemineConfidenceThreshold: 4,
		RemineEmptySegments:       true,
		RemineMaxPercent:          15.0,
		EnableCacheOptimization:   true,
		SequentialBatchSubmission: true,
		BatchDelaySeconds:         30,
		PollIntervalSeconds:      60,
		MaxRequestsPerBatch:      10000,
		PollConcurrency:          4,
	}
}

// ProgressFunc reports pipeline progress; stage is a human label, pct is
// 0-100 within the whole run.
type ProgressFunc func(stage string, pct float64, msg string)

// CacheStats accumulates prompt-cache accounting across every batch
// response in a run (spec.md §4.5 get_cache_stats).
type CacheStats struct {
	TotalInputTokens int
	CachedTokens     int
	CacheHitRate     float64
	CostSavings      float64
}

func (s *CacheStats) add(promptTokens, cachedTokens int) {
	s.TotalInputTokens += promptTokens
	s.CachedTokens += cachedTokens
}

// finalize computes hit rate and an approximate cost saving, mirroring the
// original's $0.25/M uncached vs $0.125/M cached estimate.
func (s *CacheStats) finalize() {
	if s.TotalInputTokens == 0 {
		return
	}
	s.CacheHitRate = float64(s.CachedTokens) / float64(s.TotalInputTokens)
	const uncachedRate = 0.25 / 1_000_000
	const cachedRate = 0.125 / 1_000_000
	uncachedCost := float64(s.TotalInputTokens) * uncachedRate
	cachedCost := float64(s.TotalInputTokens-s.CachedTokens)*uncachedRate + float64(s.CachedTokens)*cachedRate
	s.CostSavings = uncachedCost - cachedCost
}

// Result is everything ProcessEpisodes produces for persistence by C10.
type Result struct {
	MinerOutputs    map[string]map[string]models.MinerOutput // source_id -> segment_id -> output
	EvaluatedClaims map[string][]models.EvaluatedClaim        // source_id -> claims
	Summaries       map[string]models.SummaryAssessment        // source_id -> summary
	CacheStats      CacheStats
}

// Pipeline is the Batch Orchestrator (C5).
type Pipeline struct {
	cfg         Config
	providers   map[string]llm.ChatBatchProvider
	registry    *schema.Registry
	fewShot     FewShotLookup
	tasteFilter TasteFilterFunc
}

// FewShotLookup queries the Taste Engine for calibration examples to splice
// into a segment's mining prompt; implemented by pkg/taste, accepted here as
// an interface so pkg/batch never imports pkg/taste directly.
type FewShotLookup func(ctx context.Context, seg models.Segment) []mining.FewShotExample

// FilteredMinerOutput is a MinerOutput after the Taste Filter pass: claims
// with discards removed, plus parallel (index-aligned) per-claim boost
// deltas and flag messages. Mirrors taste.FilteredOutput's shape without
// this package importing pkg/taste.
type FilteredMinerOutput struct {
	Claims       []models.Claim
	ClaimBoosts  []int
	ClaimFlags   []string
	Jargon       []models.JargonTerm
	People       []models.Person
	MentalModels []models.MentalModel
}

// TasteFilterFunc applies the Taste Filter threshold ladder to one
// segment's mined output (spec.md §9 OQ3: the single point, between Mine
// and Evaluate, where Positive Echo boosts are applied). A nil
// TasteFilterFunc disables filtering entirely — every claim passes through
// unboosted and unflagged.
type TasteFilterFunc func(ctx context.Context, out models.MinerOutput) (FilteredMinerOutput, error)

func NewPipeline(cfg Config, providers map[string]llm.ChatBatchProvider, registry *schema.Registry, fewShot FewShotLookup, tasteFilter TasteFilterFunc) *Pipeline {
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = 4
	}
	return &Pipeline{cfg: cfg, providers: providers, registry: registry, fewShot: fewShot, tasteFilter: tasteFilter}
}

func (p *Pipeline) provider(name string) (llm.ChatBatchProvider, error) {
	prov, ok := p.providers[name]
	if !ok {
		return nil, fmt.Errorf("unconfigured batch provider %q", name)
	}
	return prov, nil
}

// ProcessEpisodes runs the full 3-stage pipeline, grounded end to end on
// original_source's BatchPipeline.process_episodes.
func (p *Pipeline) ProcessEpisodes(ctx context.Context, episodes []models.Episode, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(string, float64, string) {}
	}
	totalSegments := 0
	for _, ep := range episodes {
		totalSegments += len(ep.Segments)
	}
	slog.Info("batch pipeline starting", "episodes", len(episodes), "segments", totalSegments)

	// ── Stage 1: Mining ────────────────────────────────────────────────
	progress("Mining", 0, fmt.Sprintf("submitting %d segments", totalSegments))
	mineItems := p.buildMiningItems(ctx, episodes)
	if p.cfg.EnableCacheOptimization {
		sortForCacheHits(mineItems)
	}
	mineChunks := chunkItems(mineItems, p.cfg.MaxRequestsPerBatch)

	mineHandles, err := p.submitSequential(ctx, p.cfg.BatchProvider, mineChunks, "mining")
	if err != nil {
		return nil, fmt.Errorf("submit mining batches: %w", err)
	}
	progress("Mining", 10, fmt.Sprintf("submitted %d batches", len(mineHandles)))

	mineResults, cacheStats, err := p.waitForCompletion(ctx, p.cfg.BatchProvider, mineHandles, func(pct float64) {
		progress("Mining", 10+pct*0.3, "processing")
	})
	if err != nil {
		return nil, fmt.Errorf("wait for mining batches: %w", err)
	}
	minerOutputs := p.parseMiningResults(mineResults)
	progress("Mining", 40, fmt.Sprintf("complete: %d segments processed", len(mineResults)))

	// ── Taste Filter (spec.md §9 OQ3: applied exactly once, here) ─────────
	claimBoosts, err := p.applyTasteFilter(ctx, minerOutputs)
	if err != nil {
		return nil, fmt.Errorf("apply taste filter: %w", err)
	}

	// ── Stage 2: Flagship evaluation ─────────────────────────────────────
	progress("Flagship", 40, "preparing claim evaluation batch")
	flagshipItems, claimContexts := p.buildFlagshipItems(episodes, minerOutputs, claimBoosts)
	flagshipChunks := chunkItems(flagshipItems, p.cfg.MaxRequestsPerBatch)
	flagshipHandles, err := p.submitSequential(ctx, p.cfg.BatchProvider, flagshipChunks, "flagship")
	if err != nil {
		return nil, fmt.Errorf("submit flagship batch: %w", err)
	}
	progress("Flagship", 45, fmt.Sprintf("submitted %d batches", len(flagshipHandles)))

	flagshipResults, flagshipCacheStats, err := p.waitForCompletion(ctx, p.cfg.BatchProvider, flagshipHandles, func(pct float64) {
		progress("Flagship", 45+pct*0.2, "evaluating claims")
	})
	if err != nil {
		return nil, fmt.Errorf("wait for flagship batch: %w", err)
	}
	cacheStats.add(flagshipCacheStats.TotalInputTokens, flagshipCacheStats.CachedTokens)

	evaluatedClaims, summaries := p.parseFlagshipResults(flagshipResults, claimContexts)
	accepted := 0
	for _, claims := range evaluatedClaims {
		for _, c := range claims {
			if c.Decision == models.DecisionAccept {
				accepted++
			}
		}
	}
	progress("Flagship", 65, fmt.Sprintf("complete: %d claims accepted", accepted))

	// ── Stage 3: Re-mine (optional) ──────────────────────────────────────
	if p.cfg.RemineEnabled {
		flagged := p.identifySegmentsToRemine(episodes, evaluatedClaims)
		if len(flagged) > 0 {
			progress("Re-mining", 65, fmt.Sprintf("re-mining %d flagged segments with %s", len(flagged), p.cfg.RemineModel))
			remineItems := p.buildRemineItems(ctx, flagged)
			remineChunks := chunkItems(remineItems, p.cfg.MaxRequestsPerBatch)
			remineHandles, err := p.submitSequential(ctx, p.cfg.RemineProvider, remineChunks, "remine")
			if err != nil {
				return nil, fmt.Errorf("submit remine batch: %w", err)
			}
			remineResults, remineCacheStats, err := p.waitForCompletion(ctx, p.cfg.RemineProvider, remineHandles, func(pct float64) {
				progress("Re-mining", 65+pct*0.25, "processing")
			})
			if err != nil {
				return nil, fmt.Errorf("wait for remine batch: %w", err)
			}
			cacheStats.add(remineCacheStats.TotalInputTokens, remineCacheStats.CachedTokens)
			p.mergeRemineResults(minerOutputs, remineResults)
			progress("Re-mining", 90, fmt.Sprintf("complete: merged %d re-mined segments", len(remineResults)))
		} else {
			progress("Re-mining", 90, "no segments flagged for re-mining")
		}
	} else {
		progress("Re-mining", 90, "re-mining disabled")
	}

	cacheStats.finalize()
	progress("Complete", 100, "batch pipeline finished")

	return &Result{
		MinerOutputs:    minerOutputs,
		EvaluatedClaims: evaluatedClaims,
		Summaries:       summaries,
		CacheStats:      cacheStats,
	}, nil
}

// ── Stage 1 helpers ──────────────────────────────────────────────────────

func (p *Pipeline) buildMiningItems(ctx context.Context, episodes []models.Episode) []llm.BatchItem {
	var items []llm.BatchItem
	for _, ep := range episodes {
		for _, seg := range ep.Segments {
			var fewShot []mining.FewShotExample
			if p.fewShot != nil {
				fewShot = p.fewShot(ctx, seg)
			}
			prompt := mining.BuildPrompt(ep.SourceID, seg, fewShot)
			id := CustomID{Stage: StageMine, SourceID: ep.SourceID, SegmentID: seg.SegmentID}
			items = append(items, llm.BatchItem{
				CustomID: id.String(),
				Request: llm.ChatRequest{
					Model:       p.cfg.MiningModel,
					Messages:    []llm.Message{{Role: "user", Content: prompt}},
					MaxTokens:   4000,
					Temperature: 0.1,
				},
			})
		}
	}
	return items
}

// sortForCacheHits groups requests by source_id so similar content is
// processed together (original's _sort_for_cache_hits).
func sortForCacheHits(items []llm.BatchItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, _ := ParseCustomID(items[i].CustomID)
		cj, _ := ParseCustomID(items[j].CustomID)
		return ci.SourceID < cj.SourceID
	})
}

func chunkItems(items []llm.BatchItem, size int) [][]llm.BatchItem {
	if size <= 0 {
		size = len(items)
	}
	var chunks [][]llm.BatchItem
	for size > 0 && len(items) > 0 {
		n := size
		if n > len(items) {
			n = len(items)
		}
		chunks = append(chunks, items[:n])
		items = items[n:]
	}
	return chunks
}

// submitSequential submits each chunk as its own provider batch job,
// optionally sleeping batch_delay_seconds between submissions so the
// provider's prefix cache warms before the next chunk arrives (spec.md
// §4.5).
func (p *Pipeline) submitSequential(ctx context.Context, providerName string, chunks [][]llm.BatchItem, stage string) ([]llm.BatchHandle, error) {
	prov, err := p.provider(providerName)
	if err != nil {
		return nil, err
	}
	handles := make([]llm.BatchHandle, 0, len(chunks))
	for i, chunk := range chunks {
		slog.Info("submitting batch", "stage", stage, "batch", i+1, "of", len(chunks), "requests", len(chunk))
		handle, err := prov.SubmitBatch(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("submit %s batch %d: %w", stage, i+1, err)
		}
		handles = append(handles, handle)

		if p.cfg.SequentialBatchSubmission && i < len(chunks)-1 {
			slog.Info("waiting for cache warmup", "seconds", p.cfg.BatchDelaySeconds)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(p.cfg.BatchDelaySeconds) * time.Second):
			}
		}
	}
	return handles, nil
}

// waitForCompletion polls every pending handle until each reaches a
// terminal state, bounding concurrent polls with a semaphore (golang.org/x
// /sync), grounded on the original's asyncio polling loop generalized to Go
// concurrency primitives per spec.md §7's "rewrite dynamic dispatch as
// static contracts" guidance.
func (p *Pipeline) waitForCompletion(ctx context.Context, providerName string, handles []llm.BatchHandle, onProgress func(pct float64)) ([]llm.BatchResult, CacheStats, error) {
	prov, err := p.provider(providerName)
	if err != nil {
		return nil, CacheStats{}, err
	}

	var stats CacheStats
	var mu sync.Mutex
	var results []llm.BatchResult

	pending := make([]llm.BatchHandle, len(handles))
	copy(pending, handles)
	total := len(pending)

	for len(pending) > 0 {
		select {
		case <-ctx.Done():
			return nil, stats, ctx.Err()
		case <-time.After(time.Duration(p.cfg.PollIntervalSeconds) * time.Second):
		}

		sem := semaphore.NewWeighted(int64(p.cfg.PollConcurrency))
		g, gctx := errgroup.WithContext(ctx)
		var stillPending []llm.BatchHandle
		var pendingMu sync.Mutex

		for _, h := range pending {
			h := h
			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				defer sem.Release(1)
				status, err := prov.PollBatch(gctx, h)
				if err != nil {
					slog.Error("poll batch failed", "batch_id", h.ProviderBatchID, "error", err)
					pendingMu.Lock()
					stillPending = append(stillPending, h)
					pendingMu.Unlock()
					return nil
				}
				switch status {
				case llm.BatchStatusCompleted:
					batchResults, err := prov.FetchResults(gctx, h)
					if err != nil {
						return fmt.Errorf("fetch results for batch %s: %w", h.ProviderBatchID, err)
					}
					mu.Lock()
					results = append(results, batchResults...)
					for _, r := range batchResults {
						stats.add(r.Response.PromptTokens, r.Response.CachedTokens)
					}
					mu.Unlock()
				case llm.BatchStatusFailed, llm.BatchStatusExpired:
					slog.Warn("batch did not complete", "batch_id", h.ProviderBatchID, "status", status)
				default:
					pendingMu.Lock()
					stillPending = append(stillPending, h)
					pendingMu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, stats, err
		}

		pending = stillPending
		if onProgress != nil && total > 0 {
			onProgress(100 * float64(total-len(pending)) / float64(total))
		}
	}

	return results, stats, nil
}

func (p *Pipeline) parseMiningResults(results []llm.BatchResult) map[string]map[string]models.MinerOutput {
	outputs := make(map[string]map[string]models.MinerOutput)
	for _, r := range results {
		id, err := ParseCustomID(r.CustomID)
		if err != nil {
			slog.Warn("skipping mining result with malformed custom_id", "custom_id", r.CustomID)
			continue
		}
		if _, ok := outputs[id.SourceID]; !ok {
			outputs[id.SourceID] = map[string]models.MinerOutput{}
		}
		if r.Err != "" {
			outputs[id.SourceID][id.SegmentID] = errorMinerOutput(id.SourceID, id.SegmentID, r.Err)
			continue
		}
		out := mining.ParseOutput(p.registry, id.SourceID, id.SegmentID, []byte(r.Response.Content))
		out.Claims = mining.DedupClaims(out.Claims)
		outputs[id.SourceID][id.SegmentID] = out
	}
	return outputs
}

func errorMinerOutput(sourceID, segmentID, reason string) models.MinerOutput {
	return models.MinerOutput{
		EpisodeSourceID: sourceID,
		SegmentID:       segmentID,
		Claims:          []models.Claim{},
		Jargon:          []models.JargonTerm{},
		People:          []models.Person{},
		MentalModels:    []models.MentalModel{},
		EmptyWithError:  true,
		ErrorReason:     reason,
	}
}

// applyTasteFilter runs every mined segment through the configured
// TasteFilterFunc, replacing each MinerOutput's entity lists with the
// filtered (discards removed) versions in place, and returns the per-claim
// boost deltas keyed by source_id -> segment_id, index-aligned with the
// filtered Claims slice left on the MinerOutput.
func (p *Pipeline) applyTasteFilter(ctx context.Context, minerOutputs map[string]map[string]models.MinerOutput) (map[string]map[string][]int, error) {
	boosts := make(map[string]map[string][]int)
	if p.tasteFilter == nil {
		return boosts, nil
	}

	for sourceID, segments := range minerOutputs {
		for segID, out := range segments {
			if out.EmptyWithError {
				continue
			}
			filtered, err := p.tasteFilter(ctx, out)
			if err != nil {
				return nil, fmt.Errorf("taste filter %s/%s: %w", sourceID, segID, err)
			}
			out.Claims = filtered.Claims
			out.Jargon = filtered.Jargon
			out.People = filtered.People
			out.MentalModels = filtered.MentalModels
			minerOutputs[sourceID][segID] = out

			if _, ok := boosts[sourceID]; !ok {
				boosts[sourceID] = map[string][]int{}
			}
			boosts[sourceID][segID] = filtered.ClaimBoosts
		}
	}
	return boosts, nil
}

// ── Stage 2 helpers ──────────────────────────────────────────────────────

func (p *Pipeline) buildFlagshipItems(episodes []models.Episode, minerOutputs map[string]map[string]models.MinerOutput, claimBoosts map[string]map[string][]int) ([]llm.BatchItem, map[string]evaluation.ClaimContext) {
	var items []llm.BatchItem
	contexts := make(map[string]evaluation.ClaimContext)

	for _, ep := range episodes {
		outputs := minerOutputs[ep.SourceID]
		if len(outputs) == 0 {
			continue
		}
		// Deterministic aggregation order (spec.md §4.10: "sorted by segment_id
		// before Evaluation").
		segIDs := make([]string, 0, len(outputs))
		for segID := range outputs {
			segIDs = append(segIDs, segID)
		}
		sort.Strings(segIDs)

		segByID := map[string]models.Segment{}
		for _, seg := range ep.Segments {
			segByID[seg.SegmentID] = seg
		}

		segBoosts := claimBoosts[ep.SourceID]

		var evalInput []evalClaim
		for _, segID := range segIDs {
			boosts := segBoosts[segID]
			for i, c := range outputs[segID].Claims {
				claimID := uuid.NewString()
				var boost int
				if i < len(boosts) {
					boost = boosts[i]
				}
				contexts[claimID] = evaluation.ClaimContext{
					ClaimID:         claimID,
					EpisodeSourceID: ep.SourceID,
					SegmentID:       segID,
					ClaimText:       c.ClaimText,
					ClaimType:       c.ClaimType,
					Timestamp:       segByID[segID].T0 + c.Timestamp,
					BoostDelta:      boost,
				}
				evalInput = append(evalInput, evalClaim{
					ClaimID:      claimID,
					ClaimText:    c.ClaimText,
					ClaimType:    string(c.ClaimType),
					Stance:       string(c.Stance),
					ContextQuote: c.ContextQuote,
				})
			}
		}
		if len(evalInput) == 0 {
			continue
		}

		prompt := buildFlagshipPrompt(ep.SourceID, evalInput)
		id := CustomID{Stage: StageEvaluate, SourceID: ep.SourceID}
		items = append(items, llm.BatchItem{
			CustomID: id.String(),
			Request: llm.ChatRequest{
				Model:       p.cfg.FlagshipModel,
				Messages:    []llm.Message{{Role: "user", Content: prompt}},
				MaxTokens:   6000,
				Temperature: 0.2,
			},
		})
	}
	return items, contexts
}

func (p *Pipeline) parseFlagshipResults(results []llm.BatchResult, contexts map[string]evaluation.ClaimContext) (map[string][]models.EvaluatedClaim, map[string]models.SummaryAssessment) {
	claims := make(map[string][]models.EvaluatedClaim)
	summaries := make(map[string]models.SummaryAssessment)

	for _, r := range results {
		id, err := ParseCustomID(r.CustomID)
		if err != nil || id.Stage != StageEvaluate {
			continue
		}
		if r.Err != "" {
			slog.Error("flagship batch item failed", "source_id", id.SourceID, "error", r.Err)
			continue
		}
		scores := parseRawScores(r.Response.Content)
		episodeContexts := make(map[string]evaluation.ClaimContext)
		for claimID, ctx := range contexts {
			if ctx.EpisodeSourceID == id.SourceID {
				episodeContexts[claimID] = ctx
			}
		}
		ranked, summary := evaluation.Rank(scores, episodeContexts)
		claims[id.SourceID] = ranked
		summaries[id.SourceID] = summary
	}
	return claims, summaries
}

// ── Stage 3 helpers ──────────────────────────────────────────────────────

type flaggedSegment struct {
	EpisodeSourceID string
	Segment         models.Segment
}

// identifySegmentsToRemine mirrors the original's
// _identify_segments_to_remine: low-confidence and (optionally) empty
// segments, capped at remine_max_percent of the episode.
func (p *Pipeline) identifySegmentsToRemine(episodes []models.Episode, evaluated map[string][]models.EvaluatedClaim) []flaggedSegment {
	var flagged []flaggedSegment

	for _, ep := range episodes {
		claims := evaluated[ep.SourceID]
		lowConfidence := map[string]struct{}{}
		withClaims := map[string]struct{}{}
		for _, c := range claims {
			withClaims[c.SegmentID] = struct{}{}
			if c.ConfidenceFinal < p.cfg.RemineConfidenceThreshold {
				lowConfidence[c.SegmentID] = struct{}{}
			}
		}

		empty := map[string]struct{}{}
		if p.cfg.RemineEmptySegments {
			for _, seg := range ep.Segments {
				if _, ok := withClaims[seg.SegmentID]; !ok {
					empty[seg.SegmentID] = struct{}{}
				}
			}
		}

		all := map[string]struct{}{}
		for id := range lowConfidence {
			all[id] = struct{}{}
		}
		for id := range empty {
			all[id] = struct{}{}
		}

		ids := make([]string, 0, len(all))
		for id := range all {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		maxToRemine := int(float64(len(ep.Segments)) * p.cfg.RemineMaxPercent / 100)
		if maxToRemine < len(ids) {
			ids = ids[:maxToRemine]
		}
		capped := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			capped[id] = struct{}{}
		}

		for _, seg := range ep.Segments {
			if _, ok := capped[seg.SegmentID]; ok {
				flagged = append(flagged, flaggedSegment{EpisodeSourceID: ep.SourceID, Segment: seg})
			}
		}
	}

	slog.Info("identified segments for re-mining", "count", len(flagged))
	return flagged
}

func (p *Pipeline) buildRemineItems(ctx context.Context, flagged []flaggedSegment) []llm.BatchItem {
	items := make([]llm.BatchItem, 0, len(flagged))
	for _, f := range flagged {
		var fewShot []mining.FewShotExample
		if p.fewShot != nil {
			fewShot = p.fewShot(ctx, f.Segment)
		}
		prompt := mining.BuildPrompt(f.EpisodeSourceID, f.Segment, fewShot)
		id := CustomID{Stage: StageRemine, SourceID: f.EpisodeSourceID, SegmentID: f.Segment.SegmentID}
		items = append(items, llm.BatchItem{
			CustomID: id.String(),
			Request: llm.ChatRequest{
				Model:       p.cfg.RemineModel,
				Messages:    []llm.Message{{Role: "user", Content: prompt}},
				MaxTokens:   4000,
				Temperature: 0.1,
			},
		})
	}
	return items
}

func (p *Pipeline) mergeRemineResults(minerOutputs map[string]map[string]models.MinerOutput, results []llm.BatchResult) {
	for _, r := range results {
		id, err := ParseCustomID(r.CustomID)
		if err != nil || id.Stage != StageRemine {
			continue
		}
		if _, ok := minerOutputs[id.SourceID]; !ok {
			continue
		}
		if r.Err != "" {
			slog.Warn("remine item failed, keeping original output", "source_id", id.SourceID, "segment_id", id.SegmentID, "error", r.Err)
			continue
		}
		out := mining.ParseOutput(p.registry, id.SourceID, id.SegmentID, []byte(r.Response.Content))
		out.Claims = mining.DedupClaims(out.Claims)
		minerOutputs[id.SourceID][id.SegmentID] = out
		slog.Debug("merged re-mined output", "source_id", id.SourceID, "segment_id", id.SegmentID)
	}
}

func buildFlagshipPrompt(episodeSourceID string, claims []evalClaim) string {
	input := make([]evaluation.ClaimForEval, len(claims))
	for i, c := range claims {
		input[i] = evaluation.ClaimForEval(c)
	}
	return evaluation.BuildPrompt(episodeSourceID, input)
}

// evalClaim mirrors evaluation.ClaimForEval's field shape; kept as a
// distinct type here since this package assembles it from MinerOutput
// claims rather than from ToEvalInput.
type evalClaim struct {
	ClaimID      string `json:"claim_id"`
	ClaimText    string `json:"claim_text"`
	ClaimType    string `json:"claim_type"`
	Stance       string `json:"stance"`
	ContextQuote string `json:"context_quote"`
}

func parseRawScores(content string) []evaluation.RawScore {
	var scores []evaluation.RawScore
	if err := json.Unmarshal([]byte(content), &scores); err != nil {
		slog.Error("failed to parse flagship scores", "error", err)
		return nil
	}
	return scores
}
