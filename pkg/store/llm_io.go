package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// LLMIOStore persists the full request/response payload of every provider
// call, tied to a job_run_id, for audit, replay, and cost accounting.
type LLMIOStore struct {
	db *sql.DB
}

// NewLLMIOStore constructs an LLMIOStore.
func NewLLMIOStore(db *sql.DB) *LLMIOStore {
	return &LLMIOStore{db: db}
}

// RecordCall persists one request/response pair in a single transaction.
func (s *LLMIOStore) RecordCall(ctx context.Context, runID string, req models.LLMRequest, resp models.LLMResponse) error {
	reqPayload, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("marshal request payload: %w", err)
	}
	respPayload, err := json.Marshal(resp.Payload)
	if err != nil {
		return fmt.Errorf("marshal response payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if resp.ResponseID == "" {
		resp.ResponseID = uuid.NewString()
	}
	resp.RequestID = req.RequestID

	_, err = tx.ExecContext(ctx, `
		INSERT INTO llm_requests (request_id, job_run_id, provider, model, custom_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		req.RequestID, runID, req.Provider, req.Model, req.CustomID, reqPayload)
	if err != nil {
		return fmt.Errorf("insert llm_request: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO llm_responses (response_id, request_id, latency_ms, prompt_tokens, completion_tokens, cached_tokens, payload, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), now())`,
		resp.ResponseID, resp.RequestID, resp.LatencyMS, resp.PromptTokens, resp.CompletionTokens, resp.CachedTokens, respPayload, resp.Error)
	if err != nil {
		return fmt.Errorf("insert llm_response: %w", err)
	}

	return tx.Commit()
}

// AggregateTokens sums prompt/completion/cached tokens across every call
// recorded for a run, used by the Batch Orchestrator's cache-hit-rate math.
func (s *LLMIOStore) AggregateTokens(ctx context.Context, runID string) (promptTokens, cachedTokens int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT coalesce(sum(r.prompt_tokens), 0), coalesce(sum(r.cached_tokens), 0)
		FROM llm_responses r
		JOIN llm_requests q ON q.request_id = r.request_id
		WHERE q.job_run_id = $1`, runID)
	if err := row.Scan(&promptTokens, &cachedTokens); err != nil {
		return 0, 0, fmt.Errorf("aggregate tokens: %w", err)
	}
	return promptTokens, cachedTokens, nil
}
