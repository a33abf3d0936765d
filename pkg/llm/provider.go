// Package llm is the Provider Abstraction (C9): a capability-interface
// boundary between the Miner/Evaluator/Question Mapper and the concrete
// OpenAI/Anthropic/local SDKs, so batch orchestration (C5) never imports a
// vendor package directly.
package llm

import "context"

// Message is a single turn in a chat-style request.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ChatRequest is a single synchronous or batched completion request. Callers
// that care about provider-side prompt caching (spec.md §4.5 cache-optimized
// assembly) put the static, reusable content first in Messages/System and
// the per-item content last — providers that support caching key off a
// stable prefix, not an explicit flag.
type ChatRequest struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// ChatResponse is a provider's answer to a ChatRequest, normalized across
// vendors so C5's cache-hit-rate accounting doesn't need provider-specific
// branches.
type ChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// ChatProvider issues synchronous completions. Used for the Question
// Mapper's (C8) low-volume Discover/Merge/Assign calls, which don't warrant
// batch submission.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// BatchStatus is a provider batch job's lifecycle state, normalized to the
// canonical states C5 polls against (spec.md §4.5).
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusExpired   BatchStatus = "expired"
)

// BatchItem is one request within a submitted batch, addressed by CustomID
// (the engine encodes stage/source/segment into this — see pkg/batch).
type BatchItem struct {
	CustomID string
	Request  ChatRequest
}

// BatchResult is one line of a completed batch's output, matched back to
// its BatchItem by CustomID. Err is non-empty when the provider reports a
// per-item failure (malformed request, content filter, etc.) rather than a
// whole-batch failure.
type BatchResult struct {
	CustomID string
	Response ChatResponse
	Err      string
}

// BatchHandle is an opaque provider-side batch job reference. The Batch
// Orchestrator holds it in memory while it polls; ProviderBatchID is not
// written to any store, so a restarted Engine does not resume polling a
// batch submitted before the restart.
type BatchHandle struct {
	ProviderBatchID string
}

// BatchProvider submits a set of requests as one provider-side batch job and
// polls it to completion. Mining and Evaluation (C3/C4) both go through this
// surface when running under the Batch Orchestrator (C5).
type BatchProvider interface {
	SubmitBatch(ctx context.Context, items []BatchItem) (BatchHandle, error)
	PollBatch(ctx context.Context, handle BatchHandle) (BatchStatus, error)
	// FetchResults returns the completed batch's results. Callers must only
	// call this after PollBatch reports BatchStatusCompleted.
	FetchResults(ctx context.Context, handle BatchHandle) ([]BatchResult, error)
}

// Provider is the chat-only capability set. C5 has no sequential fallback
// for a backend that offers only ChatProvider: it submits every stage
// through a BatchProvider, and Build returns a ChatBatchProvider for each
// backend, including local (served by the OpenAI-compatible client).
type Provider interface {
	ChatProvider
}
