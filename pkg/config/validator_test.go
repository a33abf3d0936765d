package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
)

func validConfig() Config {
	cfg := defaultConfig()
	cfg.LLMProviders = map[string]llm.Config{
		"openai":    {Backend: llm.BackendOpenAI, Model: "gpt-5-mini"},
		"anthropic": {Backend: llm.BackendAnthropic, Model: "claude-3.7-sonnet"},
	}
	cfg.Batch.BatchProvider = "openai"
	cfg.Batch.RemineProvider = "anthropic"
	return cfg
}

func TestValidateAllAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, NewValidator(&cfg).ValidateAll())
}

func TestValidateRejectsMissingLLMProviders(t *testing.T) {
	cfg := validConfig()
	cfg.LLMProviders = map[string]llm.Config{}

	err := NewValidator(&cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidateRejectsUnknownBatchProviderReference(t *testing.T) {
	cfg := validConfig()
	cfg.Batch.RemineProvider = "does-not-exist"

	err := NewValidator(&cfg).ValidateAll()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestValidateRejectsInvertedTasteThresholds(t *testing.T) {
	cfg := validConfig()
	// flag_threshold above discard_threshold would mean a claim is flagged
	// only after it would already have been auto-discarded.
	cfg.TasteEngine.Filter.FlagThreshold = 0.99
	cfg.TasteEngine.Filter.DiscardThreshold = 0.95

	err := NewValidator(&cfg).ValidateAll()
	require.Error(t, err)
	var valErr *ValidationError
	assert.True(t, errors.As(err, &valErr) || errors.Is(err, ErrInvalidValue))
}

func TestValidateRejectsRemineEnabledWithoutConfidenceThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.Batch.RemineEnabled = true
	cfg.Batch.RemineConfidenceThreshold = 0

	err := NewValidator(&cfg).ValidateAll()
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeFilterThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.TasteEngine.Filter.BoostThreshold = 1.5

	err := NewValidator(&cfg).ValidateAll()
	require.Error(t, err)
}
