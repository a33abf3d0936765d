package taste

import (
	"testing"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

func TestLoadReasonsConfig_UsesEmbeddedTaxonomyByDefault(t *testing.T) {
	cfg, err := LoadReasonsConfig(nil)
	if err != nil {
		t.Fatalf("LoadReasonsConfig: %v", err)
	}
	if !cfg.Validate(models.EntityClaim, models.VerdictReject, "vague_filler") {
		t.Error("expected vague_filler to be a valid claim/reject reason")
	}
}

func TestNormalize_UnknownReasonFallsBackToOther(t *testing.T) {
	cfg, err := LoadReasonsConfig(nil)
	if err != nil {
		t.Fatalf("LoadReasonsConfig: %v", err)
	}
	got := cfg.Normalize(models.EntityClaim, models.VerdictReject, "not_a_real_reason")
	if got != "other" {
		t.Errorf("expected fallback to other, got %q", got)
	}
}

func TestGetReasons_UnconfiguredCombinationDefaultsToOther(t *testing.T) {
	cfg, err := LoadReasonsConfig(nil)
	if err != nil {
		t.Fatalf("LoadReasonsConfig: %v", err)
	}
	reasons := cfg.GetReasons("unknown_entity_type", models.VerdictAccept)
	if len(reasons) != 1 || reasons["other"] != "Other" {
		t.Errorf("expected default {other: Other}, got %+v", reasons)
	}
}
