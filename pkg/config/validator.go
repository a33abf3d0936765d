package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validator validates configuration comprehensively with clear error
// messages, the same fail-fast chain shape as the teacher's
// pkg/config/validator.go, but backed by go-playground/validator/v10 struct
// tags for the per-field checks and hand-rolled cross-field checks for
// invariants tags can't express (threshold ordering, provider references).
type Validator struct {
	cfg *Config
	v   *validator.Validate
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg, v: validator.New()}
}

// ValidateAll performs comprehensive validation, stopping at the first
// failure so an operator sees one actionable error rather than a wall of
// them.
func (v *Validator) ValidateAll() error {
	if err := v.validateStructTags(); err != nil {
		return err
	}
	if err := v.validateLLMProviders(); err != nil {
		return fmt.Errorf("llm_providers validation failed: %w", err)
	}
	if err := v.validateBatch(); err != nil {
		return fmt.Errorf("batch validation failed: %w", err)
	}
	if err := v.validateTasteEngine(); err != nil {
		return fmt.Errorf("taste_engine validation failed: %w", err)
	}
	return nil
}

// validateStructTags runs the `validate:"..."` tags on every field group in
// one pass — required fields, numeric ranges, oneof enums.
func (v *Validator) validateStructTags() error {
	if err := v.v.Struct(v.cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return nil
}

// validateLLMProviders checks that batch_provider and batch_remine_provider
// both reference a declared llm_providers entry, since batch.Config only
// carries the provider name, not the credentials.
func (v *Validator) validateLLMProviders() error {
	for _, name := range []string{v.cfg.Batch.BatchProvider, v.cfg.Batch.RemineProvider} {
		if _, ok := v.cfg.LLMProviders[name]; !ok {
			return NewValidationError("llm_providers", name, ErrProviderNotFound)
		}
	}
	return nil
}

// validateBatch checks the re-mine invariant struct tags can't express: the
// confidence threshold only matters when re-mining is enabled, so it must
// be set (>= 1) only then. remine_max_percent is checked by its struct tag
// (0-100) alone.
func (v *Validator) validateBatch() error {
	b := v.cfg.Batch
	if b.RemineEnabled && b.RemineConfidenceThreshold < 1 {
		return NewValidationError("batch", "remine_confidence_threshold", ErrInvalidValue)
	}
	return nil
}

// validateTasteEngine checks the filter threshold ladder is internally
// ordered: a flagged claim must require less similarity than a discarded
// one, or nothing would ever reach "flag" before being auto-discarded.
func (v *Validator) validateTasteEngine() error {
	f := v.cfg.TasteEngine.Filter
	if f.FlagThreshold >= f.DiscardThreshold {
		return NewValidationError("taste_engine.filter", "flag_threshold", ErrInvalidValue)
	}
	return nil
}

// validate is the package-level entry point Initialize calls.
func validate(cfg *Config) error {
	return NewValidator(cfg).ValidateAll()
}
