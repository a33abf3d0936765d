// Package events is the Engine's run-progress fan-out: C5's batch.ProgressFunc
// callback and C10's checkpoint/completion hooks publish through it, and a
// REST client (or a test) subscribes to watch one run live.
//
// This is an in-process pub/sub, not the teacher's WebSocket transport over
// PostgreSQL NOTIFY/LISTEN for cross-pod delivery: spec.md places rendering
// a UI out of scope, so there is no browser client to fan events out to
// another pod, and nothing that needs a durable catchup-from-DB story. A
// single Go process publishing to its own in-memory subscribers covers
// every SPEC_FULL.md consumer of run progress.
package events

import "fmt"

// EventType names the kind of thing that happened during a run. Mirrors the
// shape of the teacher's timeline/stage/session event-type constants,
// renamed to the Engine's mine/evaluate/remine/persist/map-questions
// vocabulary (see pkg/engine.Engine.RunEpisode's six steps).
type EventType string

const (
	// EventTypeRunStarted fires once a Job/Run row exists and the pipeline
	// is about to begin processing an episode.
	EventTypeRunStarted EventType = "run.started"

	// EventTypeRunProgress carries one batch.ProgressFunc callback verbatim
	// (stage label, percent complete, message).
	EventTypeRunProgress EventType = "run.progress"

	// EventTypeCheckpointReached fires each time pkg/engine records a
	// checkpoint cursor (mine_complete, evaluate_complete, remine_complete,
	// persisted) on the run.
	EventTypeCheckpointReached EventType = "run.checkpoint"

	// EventTypeRunCompleted is terminal: the run's JobRun row has been
	// marked complete with final metrics.
	EventTypeRunCompleted EventType = "run.completed"

	// EventTypeRunFailed is terminal: the run's JobRun row has been marked
	// failed with a reason.
	EventTypeRunFailed EventType = "run.failed"
)

// RunChannel names the topic a single run's events are published on, the
// way the teacher's SessionChannel names a session's WebSocket topic.
func RunChannel(runID string) string {
	return fmt.Sprintf("run:%s", runID)
}

// GlobalRunsChannel carries a transient copy of every run's lifecycle
// events, the way the teacher's GlobalSessionsChannel feeds a session-list
// page; here it backs a "currently active runs" view.
const GlobalRunsChannel = "runs:global"

// Event is the envelope delivered to a subscriber. Payload is one of the
// typed structs in payloads.go.
type Event struct {
	Type    EventType
	RunID   string
	Payload any
}
