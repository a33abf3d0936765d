package models

import "time"

// JobType enumerates the kind of work a Job performs.
type JobType string

const (
	JobMine            JobType = "mine"
	JobEvaluate        JobType = "evaluate"
	JobRemine          JobType = "remine"
	JobMapQuestions    JobType = "map_questions"
	JobFeedbackProcess JobType = "feedback_process"
)

// Job is durable work description; re-runs create new Job rows sharing the
// same logical (job_type, input_id, config_fingerprint) key but each gets
// its own JobID.
type Job struct {
	JobID       string                 `json:"job_id"`
	JobType     JobType                `json:"job_type"`
	InputID     string                 `json:"input_id"`
	Config      map[string]interface{} `json:"config_json"`
	AutoProcess bool                   `json:"auto_process"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// RunStatus is the JobRun state-machine status.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether status is a terminal state that never
// transitions back (spec.md §3 JobRun invariants).
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// JobRun is one attempt at executing a Job.
type JobRun struct {
	RunID          string                 `json:"run_id"`
	JobID          string                 `json:"job_id"`
	AttemptNumber  int                    `json:"attempt_number"`
	Status         RunStatus              `json:"status"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	CheckpointJSON map[string]interface{} `json:"checkpoint_json,omitempty"`
	MetricsJSON    map[string]interface{} `json:"metrics_json,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// RunMetrics is the structured shape persisted into JobRun.MetricsJSON.
type RunMetrics struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CachedTokens     int     `json:"cached_tokens"`
	LatencyMS        int64   `json:"latency_ms"`
	CostUSD          float64 `json:"cost_usd"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// LLMRequest is a full persisted payload for a single provider call.
type LLMRequest struct {
	RequestID string                 `json:"request_id"`
	RunID     string                 `json:"job_run_id"`
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
	CustomID  string                 `json:"custom_id,omitempty"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

// LLMResponse is the persisted response to an LLMRequest.
type LLMResponse struct {
	ResponseID       string                 `json:"response_id"`
	RequestID        string                 `json:"request_id"`
	LatencyMS        int64                  `json:"latency_ms"`
	PromptTokens     int                    `json:"prompt_tokens"`
	CompletionTokens int                    `json:"completion_tokens"`
	CachedTokens     int                    `json:"cached_tokens"`
	Payload          map[string]interface{} `json:"payload"`
	Error            string                 `json:"error,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}
