// Package openai adapts the OpenAI SDK to the llm.ChatProvider and
// llm.BatchProvider interfaces, grounded on intelligencedev-manifold's
// internal/llm/openai client construction and chat-completion call shape.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
)

// Config is the subset of connection settings the Engine needs for an
// OpenAI-compatible backend (including a self-hosted completions server run
// with a different BaseURL, same shape as the teacher's local-provider mode).
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Client struct {
	sdk   sdk.Client
	model string
}

func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}
	return &Client{sdk: sdk.NewClient(opts...), model: cfg.Model}
}

func adaptMessages(req llm.ChatRequest) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, sdk.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(model),
		Messages: adaptMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = shared.Int(int64(req.MaxTokens))
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(comp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("openai chat completion: no choices returned")
	}

	out := llm.ChatResponse{
		Content:          comp.Choices[0].Message.Content,
		PromptTokens:     int(comp.Usage.PromptTokens),
		CompletionTokens: int(comp.Usage.CompletionTokens),
	}
	out.CachedTokens = cachedTokensFromUsage(comp.Usage)
	return out, nil
}

// cachedTokensFromUsage pulls prompt_tokens_details.cached_tokens out of the
// usage payload; the typed SDK struct doesn't always surface nested detail
// fields, so this round-trips through JSON the way the teacher's logging
// path does for the same reason.
func cachedTokensFromUsage(usage sdk.CompletionUsage) int {
	b, err := json.Marshal(usage)
	if err != nil {
		return 0
	}
	var parsed struct {
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return 0
	}
	return parsed.PromptTokensDetails.CachedTokens
}

// batchLine is one JSONL row of an OpenAI Batch API input file.
type batchLine struct {
	CustomID string           `json:"custom_id"`
	Method   string           `json:"method"`
	URL      string           `json:"url"`
	Body     batchRequestBody `json:"body"`
}

type batchRequestBody struct {
	Model    string                                 `json:"model"`
	Messages []sdk.ChatCompletionMessageParamUnion   `json:"messages"`
}

// SubmitBatch uploads a JSONL input file and creates a Batch API job,
// mirroring the cache-optimized ordering C5 already assembled into each
// item's Request (static content first).
func (c *Client) SubmitBatch(ctx context.Context, items []llm.BatchItem) (llm.BatchHandle, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		model := item.Request.Model
		if model == "" {
			model = c.model
		}
		line := batchLine{
			CustomID: item.CustomID,
			Method:   "POST",
			URL:      "/v1/chat/completions",
			Body: batchRequestBody{
				Model:    model,
				Messages: adaptMessages(item.Request),
			},
		}
		if err := enc.Encode(line); err != nil {
			return llm.BatchHandle{}, fmt.Errorf("encode batch line %s: %w", item.CustomID, err)
		}
	}

	file, err := c.sdk.Files.New(ctx, sdk.FileNewParams{
		File:    bytes.NewReader(buf.Bytes()),
		Purpose: sdk.FilePurposeBatch,
	})
	if err != nil {
		return llm.BatchHandle{}, fmt.Errorf("upload batch input: %w", err)
	}

	batch, err := c.sdk.Batches.New(ctx, sdk.BatchNewParams{
		InputFileID:      file.ID,
		Endpoint:         sdk.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: sdk.BatchNewParamsCompletionWindow24h,
	})
	if err != nil {
		return llm.BatchHandle{}, fmt.Errorf("create batch: %w", err)
	}

	return llm.BatchHandle{ProviderBatchID: batch.ID}, nil
}

func (c *Client) PollBatch(ctx context.Context, handle llm.BatchHandle) (llm.BatchStatus, error) {
	batch, err := c.sdk.Batches.Get(ctx, handle.ProviderBatchID)
	if err != nil {
		return "", fmt.Errorf("poll batch %s: %w", handle.ProviderBatchID, err)
	}
	return normalizeStatus(string(batch.Status)), nil
}

func normalizeStatus(s string) llm.BatchStatus {
	switch s {
	case "validating", "in_progress", "finalizing":
		return llm.BatchStatusRunning
	case "completed":
		return llm.BatchStatusCompleted
	case "failed", "cancelling", "cancelled":
		return llm.BatchStatusFailed
	case "expired":
		return llm.BatchStatusExpired
	default:
		return llm.BatchStatusPending
	}
}

// FetchResults downloads the output file and parses each JSONL row back into
// a llm.BatchResult keyed by the custom_id C5 assigned at submission time.
func (c *Client) FetchResults(ctx context.Context, handle llm.BatchHandle) ([]llm.BatchResult, error) {
	batch, err := c.sdk.Batches.Get(ctx, handle.ProviderBatchID)
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", handle.ProviderBatchID, err)
	}
	if batch.OutputFileID == "" {
		return nil, fmt.Errorf("batch %s has no output file (status %s)", handle.ProviderBatchID, batch.Status)
	}

	content, err := c.sdk.Files.Content(ctx, batch.OutputFileID)
	if err != nil {
		return nil, fmt.Errorf("download batch output: %w", err)
	}
	defer content.Body.Close()

	var results []llm.BatchResult
	scanner := bufio.NewScanner(content.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var row struct {
			CustomID string `json:"custom_id"`
			Error    *struct {
				Message string `json:"message"`
			} `json:"error"`
			Response *struct {
				Body struct {
					Choices []struct {
						Message struct {
							Content string `json:"content"`
						} `json:"message"`
					} `json:"choices"`
					Usage sdk.CompletionUsage `json:"usage"`
				} `json:"body"`
			} `json:"response"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("parse batch output line: %w", err)
		}

		result := llm.BatchResult{CustomID: row.CustomID}
		if row.Error != nil {
			result.Err = row.Error.Message
		} else if row.Response != nil && len(row.Response.Body.Choices) > 0 {
			result.Response = llm.ChatResponse{
				Content:          row.Response.Body.Choices[0].Message.Content,
				PromptTokens:     int(row.Response.Body.Usage.PromptTokens),
				CompletionTokens: int(row.Response.Body.Usage.CompletionTokens),
				CachedTokens:     cachedTokensFromUsage(row.Response.Body.Usage),
			}
		} else {
			result.Err = "batch row had neither response nor error"
		}
		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan batch output: %w", err)
	}
	return results, nil
}
