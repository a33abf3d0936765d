package mining

import (
	"encoding/json"
	"testing"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/schema"
)

func TestParseOutput_ValidDoc(t *testing.T) {
	reg, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	doc := map[string]interface{}{
		"episode_source_id": "ep-1",
		"segment_id":        "seg-1",
		"claims": []interface{}{
			map[string]interface{}{
				"claim_text":    "Rates will stay high.",
				"context_quote": "rates will stay high for a while",
				"evidence_spans": []interface{}{
					map[string]interface{}{"quote": "rates will stay high for a while"},
				},
			},
		},
		"jargon":        []interface{}{},
		"people":        []interface{}{},
		"mental_models": []interface{}{},
	}
	raw, _ := json.Marshal(doc)

	out := ParseOutput(reg, "ep-1", "seg-1", raw)
	if out.EmptyWithError {
		t.Fatalf("expected valid output, got error_reason=%s", out.ErrorReason)
	}
	if len(out.Claims) != 1 {
		t.Fatalf("expected 1 claim, got %d", len(out.Claims))
	}
	if out.Claims[0].ClaimType != models.ClaimFactual {
		t.Errorf("expected default claim_type factual, got %s", out.Claims[0].ClaimType)
	}
	if out.Claims[0].Stance != models.StanceAsserts {
		t.Errorf("expected default stance asserts, got %s", out.Claims[0].Stance)
	}
}

func TestParseOutput_InvalidJSONMarksEmptyWithError(t *testing.T) {
	reg, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	out := ParseOutput(reg, "ep-1", "seg-1", []byte("not json"))
	if !out.EmptyWithError {
		t.Fatal("expected empty_with_error for invalid JSON")
	}
	if len(out.Claims) != 0 {
		t.Errorf("expected no claims on error, got %d", len(out.Claims))
	}
}

func TestDedupClaims(t *testing.T) {
	claims := []models.Claim{
		{ClaimText: "Rates will stay high"},
		{ClaimText: "  rates   WILL stay high  "},
		{ClaimText: "Something else entirely"},
	}
	out := DedupClaims(claims)
	if len(out) != 2 {
		t.Fatalf("expected 2 deduped claims, got %d", len(out))
	}
}
