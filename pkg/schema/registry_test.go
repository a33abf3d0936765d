package schema

import "testing"

func validMinerOutput() map[string]interface{} {
	return map[string]interface{}{
		"episode_source_id": "ep-1",
		"segment_id":        "seg-1",
		"claims": []interface{}{
			map[string]interface{}{
				"claim_text":    "The market overreacted.",
				"claim_type":    "factual",
				"stance":        "asserts",
				"context_quote": "the market clearly overreacted here",
				"timestamp":     12.5,
				"evidence_spans": []interface{}{
					map[string]interface{}{"quote": "the market clearly overreacted here"},
				},
			},
		},
		"jargon":        []interface{}{},
		"people":        []interface{}{},
		"mental_models": []interface{}{},
	}
}

func TestRegistry_ValidDocRoundTrips(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	doc := validMinerOutput()
	repaired, valid, errs := reg.RepairAndValidate(doc, "miner_output")
	if !valid {
		t.Fatalf("expected valid, got errors: %v", errs)
	}
	if len(repaired["claims"].([]interface{})) != 1 {
		t.Fatalf("repair must not alter an already-valid document")
	}
}

func TestRegistry_RepairFillsMissingArrays(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	doc := map[string]interface{}{
		"episode_source_id": "ep-1",
		"segment_id":        "seg-1",
		"claims":            []interface{}{},
		// jargon, people, mental_models omitted entirely
	}

	repaired, valid, errs := reg.RepairAndValidate(doc, "miner_output")
	if !valid {
		t.Fatalf("expected repair to produce a valid document, got errors: %v", errs)
	}
	for _, field := range []string{"jargon", "people", "mental_models"} {
		if _, ok := repaired[field].([]interface{}); !ok {
			t.Errorf("expected %s to be repaired to an empty array", field)
		}
	}
}

func TestRegistry_AliasPointsAtCurrentVersion(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, ok := reg.RawSchema("miner_output"); !ok {
		t.Fatal("expected miner_output alias to resolve")
	}
	if _, ok := reg.RawSchema("miner_output.v1"); !ok {
		t.Fatal("expected miner_output.v1 to resolve")
	}
}

func TestRegistry_RepairFillsMissingTopLevelStrings(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	// Missing episode_source_id and segment_id at the top level: repair
	// fills each required string with "" and the repaired doc validates.
	doc := map[string]interface{}{
		"jargon":        []interface{}{},
		"people":        []interface{}{},
		"mental_models": []interface{}{},
		"claims":        []interface{}{},
	}
	delete(doc, "episode_source_id")
	delete(doc, "segment_id")

	repaired, valid, _ := reg.RepairAndValidate(doc, "miner_output")
	if !valid {
		t.Fatalf("expected top-level required strings to repair to empty strings")
	}
	if repaired["episode_source_id"] != "" {
		t.Errorf("expected episode_source_id repaired to empty string, got %v", repaired["episode_source_id"])
	}
}
