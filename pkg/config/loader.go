package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
)

// Initialize loads, defaults, and validates the Engine's configuration.
// This is the primary entry point a cmd package calls, the way the
// teacher's cmd/tarsy/main.go calls config.Initialize.
//
// Steps performed:
//  1. Read engine.yaml from configDir
//  2. Expand ${ENV_VAR} references
//  3. Parse YAML into a Config
//  4. Merge onto package-level defaults (user values override)
//  5. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.configDir = configDir

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"llm_providers", stats.LLMProviders,
		"remine_enabled", stats.RemineEnabled,
		"question_mapper_auto_approve", stats.AutoApprove)

	return cfg, nil
}

// load reads engine.yaml, expands environment variables, and merges the
// result onto each section's own package defaults (mergo.WithOverride, the
// same override-wins shape the teacher's loader.go uses for its Queue and
// Defaults sections) so an operator only has to specify what they want to
// change.
func load(configDir string) (*Config, error) {
	user, err := loadYAML(configDir, "engine.yaml")
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := mergo.Merge(&cfg, &user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge configuration: %w", err)
	}
	// llm_providers has no meaningful built-in default (there's nothing to
	// name a provider after); the YAML-declared map always wins outright
	// rather than being merged key-by-key against an empty default.
	if len(user.LLMProviders) > 0 {
		cfg.LLMProviders = user.LLMProviders
	}

	return &cfg, nil
}

func loadYAML(configDir, filename string) (Config, error) {
	var cfg Config
	cfg.LLMProviders = make(map[string]llm.Config)

	path := filepath.Join(configDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, NewLoadError(filename, fmt.Errorf("%w: %s", ErrConfigNotFound, path))
		}
		return Config{}, NewLoadError(filename, err)
	}

	// Expand ${VAR}/$VAR references (API keys, hosts) before parsing, the
	// way the teacher's configLoader.loadYAML does.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, NewLoadError(filename, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	return cfg, nil
}
