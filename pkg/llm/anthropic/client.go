// Package anthropic adapts the Anthropic SDK to the llm.ChatProvider and
// llm.BatchProvider interfaces, grounded on intelligencedev-manifold's
// internal/llm/anthropic client construction.
package anthropic

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/msg43/knowledge-chipper-engine/pkg/llm"
)

const defaultMaxTokens int64 = 4096

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

type Client struct {
	sdk   anthropic.Client
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
	model := cfg.Model
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &Client{sdk: anthropic.NewClient(opts...), model: model}
}

// adaptMessages splits a ChatRequest into Anthropic's separate system-prompt
// slot and ordered user/assistant turns. It sets no cache_control marker;
// prompt-cache reuse of repeated static-prefix content (spec.md §4.5) rests
// on the request keeping that content first.
func adaptMessages(req llm.ChatRequest) (string, []anthropic.MessageParam) {
	system := req.System
	var out []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case "system":
			if system == "" {
				system = m.Content
			}
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	system, msgs := adaptMessages(req)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("anthropic message: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if text := block.Text; text != "" {
			content.WriteString(text)
		}
	}

	return llm.ChatResponse{
		Content:          content.String(),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
		CachedTokens:     int(resp.Usage.CacheReadInputTokens),
	}, nil
}

type batchRequestEntry struct {
	CustomID string                       `json:"custom_id"`
	Params   anthropic.MessageNewParams   `json:"params"`
}

// SubmitBatch creates an Anthropic Message Batch job. One request per item,
// addressed by CustomID the same way the OpenAI adapter does, so C5 can
// treat both providers identically above this package.
func (c *Client) SubmitBatch(ctx context.Context, items []llm.BatchItem) (llm.BatchHandle, error) {
	requests := make([]anthropic.MessageBatchNewParamsRequest, 0, len(items))
	for _, item := range items {
		model := item.Request.Model
		if model == "" {
			model = c.model
		}
		maxTokens := int64(item.Request.MaxTokens)
		if maxTokens == 0 {
			maxTokens = defaultMaxTokens
		}
		system, msgs := adaptMessages(item.Request)
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: maxTokens,
			Messages:  msgs,
		}
		if system != "" {
			params.System = []anthropic.TextBlockParam{{Text: system}}
		}
		requests = append(requests, anthropic.MessageBatchNewParamsRequest{
			CustomID: item.CustomID,
			Params:   params,
		})
	}

	batch, err := c.sdk.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{Requests: requests})
	if err != nil {
		return llm.BatchHandle{}, fmt.Errorf("create message batch: %w", err)
	}
	return llm.BatchHandle{ProviderBatchID: batch.ID}, nil
}

func (c *Client) PollBatch(ctx context.Context, handle llm.BatchHandle) (llm.BatchStatus, error) {
	batch, err := c.sdk.Messages.Batches.Get(ctx, handle.ProviderBatchID)
	if err != nil {
		return "", fmt.Errorf("poll message batch %s: %w", handle.ProviderBatchID, err)
	}
	return normalizeStatus(string(batch.ProcessingStatus)), nil
}

func normalizeStatus(s string) llm.BatchStatus {
	switch s {
	case "in_progress":
		return llm.BatchStatusRunning
	case "ended":
		return llm.BatchStatusCompleted
	case "canceling":
		return llm.BatchStatusFailed
	default:
		return llm.BatchStatusPending
	}
}

// FetchResults streams the batch's JSONL results file and parses each entry
// back into a llm.BatchResult.
func (c *Client) FetchResults(ctx context.Context, handle llm.BatchHandle) ([]llm.BatchResult, error) {
	batch, err := c.sdk.Messages.Batches.Get(ctx, handle.ProviderBatchID)
	if err != nil {
		return nil, fmt.Errorf("get message batch %s: %w", handle.ProviderBatchID, err)
	}
	if batch.ResultsURL == "" {
		return nil, fmt.Errorf("message batch %s has no results yet (status %s)", handle.ProviderBatchID, batch.ProcessingStatus)
	}

	body, err := c.sdk.Messages.Batches.ResultsStreaming(ctx, handle.ProviderBatchID)
	if err != nil {
		return nil, fmt.Errorf("download message batch results: %w", err)
	}
	defer body.Close()

	var results []llm.BatchResult
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var row struct {
			CustomID string `json:"custom_id"`
			Result   struct {
				Type    string `json:"type"`
				Message struct {
					Content []struct {
						Text string `json:"text"`
					} `json:"content"`
					Usage struct {
						InputTokens          int64 `json:"input_tokens"`
						OutputTokens         int64 `json:"output_tokens"`
						CacheReadInputTokens int64 `json:"cache_read_input_tokens"`
					} `json:"usage"`
				} `json:"message"`
				Error struct {
					Message string `json:"message"`
				} `json:"error"`
			} `json:"result"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("parse message batch result line: %w", err)
		}

		result := llm.BatchResult{CustomID: row.CustomID}
		switch row.Result.Type {
		case "succeeded":
			var content strings.Builder
			for _, block := range row.Result.Message.Content {
				content.WriteString(block.Text)
			}
			result.Response = llm.ChatResponse{
				Content:          content.String(),
				PromptTokens:     int(row.Result.Message.Usage.InputTokens),
				CompletionTokens: int(row.Result.Message.Usage.OutputTokens),
				CachedTokens:     int(row.Result.Message.Usage.CacheReadInputTokens),
			}
		default:
			if row.Result.Error.Message != "" {
				result.Err = row.Result.Error.Message
			} else {
				result.Err = fmt.Sprintf("message batch entry %s", row.Result.Type)
			}
		}
		results = append(results, result)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan message batch results: %w", err)
	}
	return results, nil
}
