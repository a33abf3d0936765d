package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublisherFansOutToRunAndGlobalChannel(t *testing.T) {
	h := NewHub()
	p := NewPublisher(h)

	runCh, cancelRun := h.Subscribe(RunChannel("run-1"))
	defer cancelRun()
	globalCh, cancelGlobal := h.Subscribe(GlobalRunsChannel)
	defer cancelGlobal()

	p.PublishRunStarted("job-1", "run-1", "episode-1")

	onRun := recvEvent(t, runCh)
	onGlobal := recvEvent(t, globalCh)

	assert.Equal(t, EventTypeRunStarted, onRun.Type)
	assert.Equal(t, EventTypeRunStarted, onGlobal.Type)
	payload, ok := onRun.Payload.(RunStartedPayload)
	require.True(t, ok)
	assert.Equal(t, "job-1", payload.JobID)
	assert.Equal(t, "episode-1", payload.EpisodeID)
}

func TestPublisherRunProgressCarriesStageAndPct(t *testing.T) {
	h := NewHub()
	p := NewPublisher(h)
	ch, cancel := h.Subscribe(RunChannel("run-2"))
	defer cancel()

	p.PublishRunProgress("run-2", "Mining", 40, "mine complete")

	evt := recvEvent(t, ch)
	payload, ok := evt.Payload.(RunProgressPayload)
	require.True(t, ok)
	assert.Equal(t, "Mining", payload.Stage)
	assert.Equal(t, 40.0, payload.Pct)
	assert.Equal(t, "mine complete", payload.Message)
}

func TestPublisherCheckpointReachedCarriesCursor(t *testing.T) {
	h := NewHub()
	p := NewPublisher(h)
	ch, cancel := h.Subscribe(RunChannel("run-3"))
	defer cancel()

	p.PublishCheckpointReached("run-3", "evaluate_complete")

	evt := recvEvent(t, ch)
	payload, ok := evt.Payload.(CheckpointReachedPayload)
	require.True(t, ok)
	assert.Equal(t, "evaluate_complete", payload.Cursor)
}

func TestPublisherRunCompletedCarriesMetrics(t *testing.T) {
	h := NewHub()
	p := NewPublisher(h)
	ch, cancel := h.Subscribe(RunChannel("run-4"))
	defer cancel()

	p.PublishRunCompleted("run-4", 12, 0.8, 1.25)

	evt := recvEvent(t, ch)
	payload, ok := evt.Payload.(RunCompletedPayload)
	require.True(t, ok)
	assert.Equal(t, 12, payload.ClaimCount)
	assert.Equal(t, 0.8, payload.CacheHitRate)
	assert.Equal(t, 1.25, payload.CostUSD)
}

func TestPublisherRunFailedCarriesReasonText(t *testing.T) {
	h := NewHub()
	p := NewPublisher(h)
	ch, cancel := h.Subscribe(RunChannel("run-5"))
	defer cancel()

	p.PublishRunFailed("run-5", errors.New("provider timeout"))

	evt := recvEvent(t, ch)
	payload, ok := evt.Payload.(RunFailedPayload)
	require.True(t, ok)
	assert.Equal(t, "provider timeout", payload.Reason)
}

func TestNilPublisherPublishIsANoOp(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.PublishRunStarted("job", "run", "episode")
	})
}
