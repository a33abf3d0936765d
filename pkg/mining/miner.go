package mining

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/schema"
)

// ParseOutput turns a raw provider response into a schema-valid MinerOutput,
// attempting one repair pass before giving up (spec.md §4.2/§4.3: "a segment
// whose Mine result is schema-invalid after one repair is marked
// empty-with-error and eligible for re-mine").
func ParseOutput(registry *schema.Registry, episodeSourceID, segmentID string, raw []byte) models.MinerOutput {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return emptyWithError(episodeSourceID, segmentID, fmt.Sprintf("invalid JSON: %v", err))
	}

	repaired, valid, errs := registry.RepairAndValidate(doc, "miner_output")
	if !valid {
		return emptyWithError(episodeSourceID, segmentID, fmt.Sprintf("schema invalid after repair: %v", errs))
	}

	normalized, err := json.Marshal(repaired)
	if err != nil {
		return emptyWithError(episodeSourceID, segmentID, fmt.Sprintf("re-marshal failed: %v", err))
	}

	var out models.MinerOutput
	if err := json.Unmarshal(normalized, &out); err != nil {
		return emptyWithError(episodeSourceID, segmentID, fmt.Sprintf("decode into MinerOutput failed: %v", err))
	}

	applyDefaults(&out)
	out.EpisodeSourceID = episodeSourceID
	out.SegmentID = segmentID
	return out
}

// applyDefaults fills the Miner's default decisions (spec.md §4.3): claim
// type defaults to factual, stance defaults to asserts, when the model
// omitted them (a repaired-in empty string, since the schema doesn't enum
// them, becomes the documented default rather than a validation failure).
func applyDefaults(out *models.MinerOutput) {
	for i := range out.Claims {
		if out.Claims[i].ClaimType == "" {
			out.Claims[i].ClaimType = models.ClaimFactual
		}
		if out.Claims[i].Stance == "" {
			out.Claims[i].Stance = models.StanceAsserts
		}
	}
}

func emptyWithError(episodeSourceID, segmentID, reason string) models.MinerOutput {
	return models.MinerOutput{
		EpisodeSourceID: episodeSourceID,
		SegmentID:       segmentID,
		Claims:          []models.Claim{},
		Jargon:          []models.JargonTerm{},
		People:          []models.Person{},
		MentalModels:    []models.MentalModel{},
		EmptyWithError:  true,
		ErrorReason:     reason,
	}
}

// DedupClaims removes claims whose normalized text already appeared earlier
// in the slice, keeping the first occurrence (spec.md §4.3 dedup policy for
// near-duplicate claims surfaced across overlapping segments).
func DedupClaims(claims []models.Claim) []models.Claim {
	seen := make(map[string]struct{}, len(claims))
	out := make([]models.Claim, 0, len(claims))
	for _, c := range claims {
		key := normalizeClaimText(c.ClaimText)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func normalizeClaimText(s string) string {
	out := make([]rune, 0, len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if !prevSpace {
				out = append(out, ' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return strings.TrimSpace(string(out))
}
