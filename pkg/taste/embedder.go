// Package taste is the Taste Engine (C6): a pgvector-backed feedback store
// with golden-set cold start, backup rotation, reasons-taxonomy validation,
// and the Taste Filter threshold ladder. Grounded end to end on
// services/taste_engine.py and processors/two_pass/taste_filter.py, with the
// vector index shape grounded on MrWong99-glyphoxa's pgvector-go usage
// (pkg/memory/postgres/semantic_index.go) and the HTTP embedding client
// grounded on intelligencedev-manifold's internal/rag/embedder/embedder.go.
package taste

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Embedder converts text into a fixed-dimension vector. The Engine embeds
// entity text on write (pkg/feedback) and on read (Taste Filter queries).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// EmbedderConfig points at an OpenAI-embeddings-compatible HTTP endpoint
// (local sentence-transformer servers and hosted embedding APIs both speak
// this shape), mirroring the teacher corpus's config.EmbeddingConfig.
type EmbedderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"embedding_model" validate:"required"`
	Dim     int    `yaml:"dim" validate:"min=1"`
}

// DefaultEmbedderConfig points at a local all-MiniLM-L6-v2 sentence-transformer,
// whose 384-d output matches the feedback_examples.embedding vector(384)
// column.
func DefaultEmbedderConfig() EmbedderConfig {
	return EmbedderConfig{
		Model: "all-MiniLM-L6-v2",
		Dim:   384,
	}
}

type httpEmbedder struct {
	cfg    EmbedderConfig
	client *http.Client
}

// NewEmbedder constructs an Embedder that calls a configured embedding
// endpoint. One request per call, mirroring the teacher's single-item-batch
// choice to avoid batching issues with local inference servers.
func NewEmbedder(cfg EmbedderConfig, httpClient *http.Client) Embedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpEmbedder{cfg: cfg, client: httpClient}
}

func (e *httpEmbedder) Dimension() int { return e.cfg.Dim }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.cfg.Model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request: status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response: empty data")
	}
	return parsed.Data[0].Embedding, nil
}
