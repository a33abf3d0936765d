package events

import "time"

// Publisher publishes run lifecycle and progress events through a Hub.
// Every public method accepts a specific typed payload struct (payloads.go)
// and fans it out to both the run's own channel and the global runs
// channel, mirroring the teacher's EventPublisher — minus the DB-persist
// step, since there is no catchup story for an in-process pub/sub to serve.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates a Publisher backed by hub.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

func now() string {
	return time.Now().Format(time.RFC3339Nano)
}

// PublishRunStarted announces a new run beginning.
func (p *Publisher) PublishRunStarted(jobID, runID, episodeID string) {
	payload := RunStartedPayload{JobID: jobID, RunID: runID, EpisodeID: episodeID, Timestamp: now()}
	p.publish(runID, EventTypeRunStarted, payload)
}

// PublishRunProgress forwards one batch.ProgressFunc callback.
func (p *Publisher) PublishRunProgress(runID, stage string, pct float64, msg string) {
	payload := RunProgressPayload{RunID: runID, Stage: stage, Pct: pct, Message: msg, Timestamp: now()}
	p.publish(runID, EventTypeRunProgress, payload)
}

// PublishCheckpointReached announces a checkpoint cursor being recorded.
func (p *Publisher) PublishCheckpointReached(runID, cursor string) {
	payload := CheckpointReachedPayload{RunID: runID, Cursor: cursor, Timestamp: now()}
	p.publish(runID, EventTypeCheckpointReached, payload)
}

// PublishRunCompleted announces a run's terminal success.
func (p *Publisher) PublishRunCompleted(runID string, claimCount int, cacheHitRate, costUSD float64) {
	payload := RunCompletedPayload{
		RunID:        runID,
		ClaimCount:   claimCount,
		CacheHitRate: cacheHitRate,
		CostUSD:      costUSD,
		Timestamp:    now(),
	}
	p.publish(runID, EventTypeRunCompleted, payload)
}

// PublishRunFailed announces a run's terminal failure.
func (p *Publisher) PublishRunFailed(runID string, reason error) {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	payload := RunFailedPayload{RunID: runID, Reason: msg, Timestamp: now()}
	p.publish(runID, EventTypeRunFailed, payload)
}

// publish fans evt out to the run's own channel and to GlobalRunsChannel,
// the way the teacher's PublishSessionStatus double-publishes to a
// session channel and the global sessions channel.
func (p *Publisher) publish(runID string, eventType EventType, payload any) {
	if p == nil || p.hub == nil {
		return
	}
	evt := Event{Type: eventType, RunID: runID, Payload: payload}
	p.hub.Publish(RunChannel(runID), evt)
	p.hub.Publish(GlobalRunsChannel, evt)
}
