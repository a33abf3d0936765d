package llm

import (
	"fmt"
	"net/http"

	anthropicllm "github.com/msg43/knowledge-chipper-engine/pkg/llm/anthropic"
	openaillm "github.com/msg43/knowledge-chipper-engine/pkg/llm/openai"
)

// Backend names the configured provider, per spec.md §6 batch_provider
// setting.
type Backend string

const (
	BackendOpenAI    Backend = "openai"
	BackendAnthropic Backend = "anthropic"
	BackendLocal     Backend = "local"
)

// Config picks and configures a vendor backend, grounded on
// intelligencedev-manifold's providers.Build factory.
type Config struct {
	Backend Backend `yaml:"backend" validate:"required,oneof=openai anthropic local"`
	APIKey  string  `yaml:"api_key"`
	BaseURL string  `yaml:"base_url"`
	Model   string  `yaml:"model" validate:"required"`
}

// ChatBatchProvider is the combined surface concrete adapters implement.
// C5 calls only its BatchProvider half, submitting every stage as a batch;
// the Question Mapper (C8) uses the ChatProvider half.
type ChatBatchProvider interface {
	ChatProvider
	BatchProvider
}

// Build constructs a ChatBatchProvider for the configured backend.
func Build(cfg Config, httpClient *http.Client) (ChatBatchProvider, error) {
	switch cfg.Backend {
	case "", BackendOpenAI:
		return openaillm.New(openaillm.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, httpClient), nil
	case BackendLocal:
		return openaillm.New(openaillm.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, httpClient), nil
	case BackendAnthropic:
		return anthropicllm.New(anthropicllm.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported llm backend: %s", cfg.Backend)
	}
}
