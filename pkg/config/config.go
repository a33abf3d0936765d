// Package config loads and validates the Engine's operational configuration:
// every option spec.md §6 enumerates as the recognized configuration
// surface, modeled on the teacher's pkg/config (an umbrella Config struct
// built by Initialize(ctx, configDir), YAML-driven, with ${ENV_VAR}
// expansion and validated before use) but scoped to the Engine's own
// sections instead of the teacher's agent/chain/MCP registries. Database
// connection settings are deliberately NOT part of this package — the
// teacher's own cmd/tarsy/main.go loads pkg/config and
// pkg/database.LoadConfigFromEnv as two independent sources, and the Engine
// keeps that split (see pkg/database/config.go).
package config

import (
	"github.com/msg43/knowledge-chipper-engine/pkg/batch"
	"github.com/msg43/knowledge-chipper-engine/pkg/feedback"
	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
	"github.com/msg43/knowledge-chipper-engine/pkg/questions"
	"github.com/msg43/knowledge-chipper-engine/pkg/taste"
)

// ServerConfig is the Gin HTTP listener's address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"required,min=1,max=65535"`
}

// LoggingConfig picks log/slog's handler and level.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json text"`
}

// Config is the fully resolved, validated configuration for one Engine
// process. Every field group maps onto a component's own Config type so
// Initialize can hand each component exactly the struct it already knows
// how to consume.
type Config struct {
	configDir string

	Server         ServerConfig          `yaml:"server"`
	Logging        LoggingConfig         `yaml:"logging"`
	LLMProviders   map[string]llm.Config `yaml:"llm_providers" validate:"required,min=1,dive"`
	Batch          batch.Config          `yaml:"batch"`
	TasteEngine    taste.Config          `yaml:"taste_engine"`
	FeedbackWorker feedback.Config       `yaml:"feedback_worker"`
	QuestionMapper questions.Config      `yaml:"question_mapper"`
}

// ConfigDir returns the directory Initialize loaded this Config from.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// Stats summarizes the loaded configuration for a health-check endpoint, the
// way the teacher's Config.Stats() does for its registries.
type Stats struct {
	LLMProviders  int  `json:"llm_providers"`
	RemineEnabled bool `json:"remine_enabled"`
	AutoApprove   bool `json:"question_mapper_auto_approve"`
}

// Stats returns a snapshot suitable for exposing over /health.
func (c *Config) Stats() Stats {
	return Stats{
		LLMProviders:  len(c.LLMProviders),
		RemineEnabled: c.Batch.RemineEnabled,
		AutoApprove:   c.QuestionMapper.AutoApprove,
	}
}

// Provider looks up a named entry from LLMProviders, mirroring the teacher's
// Config.GetLLMProvider convenience accessor.
func (c *Config) Provider(name string) (llm.Config, bool) {
	p, ok := c.LLMProviders[name]
	return p, ok
}

// defaultConfig seeds every section with its owning package's own
// DefaultConfig() before YAML overrides are merged in, so a deploy only has
// to specify the options it wants to change.
func defaultConfig() Config {
	return Config{
		Server:         ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging:        LoggingConfig{Level: "info", Format: "json"},
		LLMProviders:   map[string]llm.Config{},
		Batch:          batch.DefaultConfig(),
		TasteEngine:    taste.DefaultConfig(),
		FeedbackWorker: feedback.DefaultConfig(),
		QuestionMapper: questions.DefaultConfig(),
	}
}
