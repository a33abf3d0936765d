package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEngineYAML(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yaml"), []byte(content), 0o600))
}

func TestInitializeAppliesUserOverridesOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	writeEngineYAML(t, dir, `
llm_providers:
  openai:
    backend: openai
    model: gpt-5-mini
    api_key: ${TEST_OPENAI_KEY}
  anthropic:
    backend: anthropic
    model: claude-3.7-sonnet
batch:
  batch_provider: openai
  batch_mining_model: gpt-5-mini
  batch_flagship_model: gpt-5-mini
  batch_remine_provider: anthropic
  batch_remine_model: claude-3.7-sonnet
  remine_max_percent: 20
question_mapper:
  auto_approve: true
`)
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	// User-supplied value wins.
	assert.Equal(t, 20.0, cfg.Batch.RemineMaxPercent)
	assert.True(t, cfg.QuestionMapper.AutoApprove)
	assert.Equal(t, "sk-test-123", cfg.LLMProviders["openai"].APIKey)

	// Untouched sections keep their package defaults.
	assert.Equal(t, 50, cfg.QuestionMapper.BatchSize)
	assert.Equal(t, 5, cfg.TasteEngine.BackupCount)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestInitializeMissingFileReturnsLoadError(t *testing.T) {
	dir := t.TempDir()

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)

	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAMLReturnsLoadError(t *testing.T) {
	dir := t.TempDir()
	writeEngineYAML(t, dir, "llm_providers: [this is not a map")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeRejectsUnknownProviderReference(t *testing.T) {
	dir := t.TempDir()
	writeEngineYAML(t, dir, `
llm_providers:
  openai:
    backend: openai
    model: gpt-5-mini
batch:
  batch_provider: openai
  batch_mining_model: gpt-5-mini
  batch_flagship_model: gpt-5-mini
  batch_remine_provider: does-not-exist
  batch_remine_model: claude-3.7-sonnet
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}
