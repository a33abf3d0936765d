// Package evaluation is the Flagship Evaluator (C4): scores, tiers, and
// ranks the union of a single episode's mined claims, grounded on
// original_source's batch_pipeline.py (_build_flagship_prompt,
// _parse_flagship_results) and spec.md §4.4.
package evaluation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

const flagshipInstructions = `You are evaluating transcript-derived claims for one episode.

For each claim, return a JSON array element with: claim_id, decision (one of
accept, reject), importance (0-10), novelty (0-10), confidence_final (0-10),
reasoning (one or two sentences).

Score importance by how consequential the claim is to the episode's core
argument. Score novelty by how much it adds beyond common knowledge. Score
confidence_final by how well the evidence supports the claim as stated.
Reject claims that are filler, tautological, or unsupported by their quoted
evidence even if well-phrased.`

// ClaimForEval is what the evaluator sees for one candidate claim: enough
// context to score without re-deriving it from the source segment.
type ClaimForEval struct {
	ClaimID      string `json:"claim_id"`
	ClaimText    string `json:"claim_text"`
	ClaimType    string `json:"claim_type"`
	Stance       string `json:"stance"`
	ContextQuote string `json:"context_quote"`
}

// BuildPrompt assembles the per-episode evaluation prompt: static
// instructions first, the full claim set last.
func BuildPrompt(episodeSourceID string, claims []ClaimForEval) string {
	data, _ := json.MarshalIndent(claims, "", "  ")
	var b strings.Builder
	b.WriteString(flagshipInstructions)
	fmt.Fprintf(&b, "\n\nEPISODE: %s\nTOTAL CLAIMS: %d\n\nCLAIMS TO EVALUATE:\n", episodeSourceID, len(claims))
	b.Write(data)
	return b.String()
}

// ToEvalInput converts MinerOutput claims (with generated claim_ids) into
// the evaluator-facing projection.
func ToEvalInput(claimID string, c models.Claim) ClaimForEval {
	return ClaimForEval{
		ClaimID:      claimID,
		ClaimText:    c.ClaimText,
		ClaimType:    string(c.ClaimType),
		Stance:       string(c.Stance),
		ContextQuote: c.ContextQuote,
	}
}
