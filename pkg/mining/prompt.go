// Package mining is the Miner (C3): turns one transcript Segment into a
// schema-valid MinerOutput, assembling prompts with a fixed static prefix so
// repeated calls within a batch share an identical cacheable prefix.
package mining

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// staticInstructions is the fixed, reusable portion of every mining prompt:
// task description, output schema, and decision policy. It never contains
// per-segment content, so providers that key prompt caching off a stable
// prefix see the identical bytes on every call (spec.md §4.3/§4.5).
const staticInstructions = `You are extracting structured knowledge from one transcript segment.

Produce a single JSON object with exactly these keys: "episode_source_id",
"segment_id", "claims", "jargon", "people", "mental_models".

- claims: standalone assertions. Each has claim_text, claim_type (one of
  factual, causal, normative, forecast, definition; default factual),
  stance (one of asserts, denies, hedges, questions; default asserts),
  context_quote, timestamp, evidence_spans (non-empty, each a verbatim quote
  from the segment).
- jargon: domain terms worth surfacing, with term, definition, context_quote,
  timestamp, evidence_spans.
- people: named individuals referenced, with name, role, context_quote,
  timestamp, evidence_spans.
- mental_models: named frameworks or heuristics referenced, with name,
  description, context_quote, timestamp, evidence_spans.

Every item must carry at least one evidence_spans entry whose quote appears
verbatim in the segment text below. Do not invent items without a quotable
source. If a segment has nothing worth extracting, return empty arrays for
all four keys rather than omitting them.`

// FewShotExample is one of the Taste Engine's nearest-neighbor accept/reject
// examples; renderFewShot lays a slice of them out as a deterministically
// ordered block whose size is set by how many the caller passes (spec.md
// §4.3: "examples are sorted deterministically by similarity rank so
// repeated calls within a batch produce identical prefixes"). Exported so
// pkg/taste can build it without this package importing pkg/taste.
type FewShotExample struct {
	Verdict        string // "accept" | "reject"
	SimilarityRank int
	ClaimText      string
	Reasoning      string
}

func renderFewShot(examples []FewShotExample) string {
	if len(examples) == 0 {
		return ""
	}
	sorted := make([]FewShotExample, len(examples))
	copy(sorted, examples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SimilarityRank < sorted[j].SimilarityRank })

	var b strings.Builder
	b.WriteString("\nEXAMPLES FROM PAST REVIEWS (for calibration only, not this segment's content):\n")
	for _, ex := range sorted {
		fmt.Fprintf(&b, "- [%s] %q — %s\n", ex.Verdict, ex.ClaimText, ex.Reasoning)
	}
	return b.String()
}

// segmentPayload is the dynamic, non-cached suffix of the mining prompt.
type segmentPayload struct {
	EpisodeSourceID string  `json:"episode_source_id"`
	SegmentID       string  `json:"segment_id"`
	Speaker         string  `json:"speaker,omitempty"`
	TimestampStart  float64 `json:"timestamp_start"`
	TimestampEnd    float64 `json:"timestamp_end"`
	Text            string  `json:"text"`
}

// BuildPrompt assembles a cache-optimized mining prompt: static instructions
// and few-shot block first, segment data last (spec.md §4.3/§4.5 "static
// content FIRST, dynamic content LAST").
func BuildPrompt(episodeSourceID string, seg models.Segment, fewShot []FewShotExample) string {
	payload := segmentPayload{
		EpisodeSourceID: episodeSourceID,
		SegmentID:       seg.SegmentID,
		Speaker:         seg.Speaker,
		TimestampStart:  seg.T0,
		TimestampEnd:    seg.T1,
		Text:            seg.Text,
	}
	data, _ := json.MarshalIndent(payload, "", "  ")

	var b strings.Builder
	b.WriteString(staticInstructions)
	b.WriteString(renderFewShot(fewShot))
	b.WriteString("\n\nSEGMENT TO ANALYZE:\n")
	b.Write(data)
	return b.String()
}
