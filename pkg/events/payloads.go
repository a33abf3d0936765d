package events

// RunStartedPayload is the payload for run.started events.
type RunStartedPayload struct {
	JobID     string `json:"job_id"`
	RunID     string `json:"run_id"`
	EpisodeID string `json:"episode_id"`
	Timestamp string `json:"timestamp"` // RFC3339Nano
}

// RunProgressPayload is the payload for run.progress events — one
// batch.ProgressFunc callback, carried through unchanged.
type RunProgressPayload struct {
	RunID     string  `json:"run_id"`
	Stage     string  `json:"stage"`
	Pct       float64 `json:"pct"`
	Message   string  `json:"message,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// CheckpointReachedPayload is the payload for run.checkpoint events.
type CheckpointReachedPayload struct {
	RunID     string `json:"run_id"`
	Cursor    string `json:"cursor"` // mine_complete, evaluate_complete, remine_complete, persisted
	Timestamp string `json:"timestamp"`
}

// RunCompletedPayload is the payload for run.completed events.
type RunCompletedPayload struct {
	RunID        string  `json:"run_id"`
	ClaimCount   int     `json:"claim_count"`
	CacheHitRate float64 `json:"cache_hit_rate"`
	CostUSD      float64 `json:"cost_usd"`
	Timestamp    string  `json:"timestamp"`
}

// RunFailedPayload is the payload for run.failed events.
type RunFailedPayload struct {
	RunID     string `json:"run_id"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
}
