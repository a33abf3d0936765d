package taste

import (
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

//go:embed data/feedback_reasons.yaml
var embeddedReasonsYAML []byte

// reasonMap is {entity_type: {verdict: {key: label}}}.
type reasonMap map[string]map[string]map[string]string

// ReasonsConfig validates reason_category keys against the feedback
// taxonomy, grounded on feedback_config.py's FeedbackConfig.
type ReasonsConfig struct {
	reasons reasonMap
}

// LoadReasonsConfig parses the embedded feedback_reasons.yaml. A caller may
// pass raw bytes from an operator-supplied override file instead; passing
// nil uses the Engine's built-in taxonomy.
func LoadReasonsConfig(raw []byte) (*ReasonsConfig, error) {
	if raw == nil {
		raw = embeddedReasonsYAML
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse feedback reasons yaml: %w", err)
	}
	delete(doc, "schema_version")

	out := reasonMap{}
	for entityType, v := range doc {
		byVerdict, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		out[entityType] = map[string]map[string]string{}
		for verdict, r := range byVerdict {
			reasons, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			labels := map[string]string{}
			for key, label := range reasons {
				if s, ok := label.(string); ok {
					labels[key] = s
				}
			}
			out[entityType][verdict] = labels
		}
	}

	return &ReasonsConfig{reasons: out}, nil
}

// GetReasons returns the {key: label} map for an entity type and verdict,
// defaulting to {"other": "Other"} when the combination is unconfigured.
func (c *ReasonsConfig) GetReasons(entityType models.EntityType, verdict models.Verdict) map[string]string {
	if byVerdict, ok := c.reasons[string(entityType)]; ok {
		if labels, ok := byVerdict[string(verdict)]; ok {
			return labels
		}
	}
	return map[string]string{"other": "Other"}
}

// Validate checks whether key is a known reason for entityType/verdict.
func (c *ReasonsConfig) Validate(entityType models.EntityType, verdict models.Verdict, key string) bool {
	_, ok := c.GetReasons(entityType, verdict)[key]
	return ok
}

// Normalize returns key unchanged if valid, otherwise "other" with a
// warning log (feedback_config.py / taste_engine.py's add_feedback
// behavior: unknown reasons are stored as "other" rather than rejected).
func (c *ReasonsConfig) Normalize(entityType models.EntityType, verdict models.Verdict, key string) string {
	if c.Validate(entityType, verdict, key) {
		return key
	}
	slog.Warn("unknown feedback reason_category, storing as other",
		"entity_type", entityType, "verdict", verdict, "reason_category", key)
	return "other"
}
