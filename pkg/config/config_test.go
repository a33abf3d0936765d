package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/msg43/knowledge-chipper-engine/pkg/batch"
	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
	"github.com/msg43/knowledge-chipper-engine/pkg/questions"
)

func TestStats(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLMProviders = map[string]llm.Config{
		"openai":    {Backend: llm.BackendOpenAI, Model: "gpt-5-mini"},
		"anthropic": {Backend: llm.BackendAnthropic, Model: "claude-3.7-sonnet"},
	}
	cfg.Batch.RemineEnabled = true
	cfg.QuestionMapper.AutoApprove = true

	stats := cfg.Stats()
	assert.Equal(t, 2, stats.LLMProviders)
	assert.True(t, stats.RemineEnabled)
	assert.True(t, stats.AutoApprove)
}

func TestProvider(t *testing.T) {
	cfg := defaultConfig()
	cfg.LLMProviders = map[string]llm.Config{
		"openai": {Backend: llm.BackendOpenAI, Model: "gpt-5-mini"},
	}

	p, ok := cfg.Provider("openai")
	assert.True(t, ok)
	assert.Equal(t, "gpt-5-mini", p.Model)

	_, ok = cfg.Provider("missing")
	assert.False(t, ok)
}

func TestDefaultConfigMatchesComponentDefaults(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, batch.DefaultConfig(), cfg.Batch)
	assert.Equal(t, questions.DefaultConfig(), cfg.QuestionMapper)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}
