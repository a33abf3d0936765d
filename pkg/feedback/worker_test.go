package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/store"
)

type fakeQueue struct {
	rows      []store.PendingRow
	processed []int64
	failures  []int64
}

func (q *fakeQueue) ClaimNextBatch(ctx context.Context, limit int) ([]store.PendingRow, error) {
	if len(q.rows) > limit {
		return q.rows[:limit], nil
	}
	return q.rows, nil
}

func (q *fakeQueue) MarkProcessed(ctx context.Context, id int64) error {
	q.processed = append(q.processed, id)
	return nil
}

func (q *fakeQueue) RecordFailure(ctx context.Context, id int64, maxRetries int, cause error) error {
	q.failures = append(q.failures, id)
	return nil
}

type fakeDedupStore struct {
	existing map[string]bool
}

func (s *fakeDedupStore) HasExample(ctx context.Context, entityType models.EntityType, verdict models.Verdict, entityText string) (bool, error) {
	return s.existing[string(entityType)+"|"+string(verdict)+"|"+entityText], nil
}

type fakeEngine struct {
	added []models.FeedbackExample
	err   error
}

func (e *fakeEngine) AddFeedback(ctx context.Context, fb models.FeedbackExample) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.added = append(e.added, fb)
	return "fake-id", nil
}

func mustPayload(t *testing.T, fb models.FeedbackExample) []byte {
	t.Helper()
	b, err := json.Marshal(fb)
	if err != nil {
		t.Fatalf("marshal feedback: %v", err)
	}
	return b
}

func TestDrain_IngestsNewFeedback(t *testing.T) {
	fb := models.FeedbackExample{EntityType: models.EntityClaim, Verdict: models.VerdictAccept, EntityText: "a new claim"}
	q := &fakeQueue{rows: []store.PendingRow{{ID: 1, Payload: mustPayload(t, fb)}}}
	dedup := &fakeDedupStore{existing: map[string]bool{}}
	engine := &fakeEngine{}

	w := NewWorker(q, dedup, engine, Config{})
	n, err := w.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 processed, got %d", n)
	}
	if len(engine.added) != 1 {
		t.Fatalf("expected 1 item added to engine, got %d", len(engine.added))
	}
	if len(q.processed) != 1 || q.processed[0] != 1 {
		t.Fatalf("expected row 1 marked processed, got %v", q.processed)
	}
}

func TestDrain_SkipsButMarksProcessedOnDuplicate(t *testing.T) {
	fb := models.FeedbackExample{EntityType: models.EntityClaim, Verdict: models.VerdictReject, EntityText: "already seen"}
	q := &fakeQueue{rows: []store.PendingRow{{ID: 2, Payload: mustPayload(t, fb)}}}
	dedup := &fakeDedupStore{existing: map[string]bool{"claim|reject|already seen": true}}
	engine := &fakeEngine{}

	w := NewWorker(q, dedup, engine, Config{})
	n, err := w.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected duplicate to still count as processed, got %d", n)
	}
	if len(engine.added) != 0 {
		t.Fatalf("expected duplicate not re-embedded, got %d added", len(engine.added))
	}
	if len(q.processed) != 1 {
		t.Fatalf("expected duplicate row marked processed, got %v", q.processed)
	}
}

func TestDrain_RecordsFailureOnInvalidPayload(t *testing.T) {
	q := &fakeQueue{rows: []store.PendingRow{{ID: 3, Payload: []byte("not json")}}}
	dedup := &fakeDedupStore{existing: map[string]bool{}}
	engine := &fakeEngine{}

	w := NewWorker(q, dedup, engine, Config{})
	n, err := w.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 processed for invalid payload, got %d", n)
	}
	if len(q.failures) != 1 || q.failures[0] != 3 {
		t.Fatalf("expected row 3 recorded as failure, got %v", q.failures)
	}
	if len(q.processed) != 0 {
		t.Fatalf("expected no rows marked processed, got %v", q.processed)
	}
}

func TestDrain_RecordsFailureWhenEngineErrors(t *testing.T) {
	fb := models.FeedbackExample{EntityType: models.EntityJargon, Verdict: models.VerdictAccept, EntityText: "embedding endpoint down"}
	q := &fakeQueue{rows: []store.PendingRow{{ID: 4, Payload: mustPayload(t, fb)}}}
	dedup := &fakeDedupStore{existing: map[string]bool{}}
	engine := &fakeEngine{err: errors.New("embedding service unavailable")}

	w := NewWorker(q, dedup, engine, Config{})
	n, err := w.drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 processed when embedding fails, got %d", n)
	}
	if len(q.failures) != 1 || q.failures[0] != 4 {
		t.Fatalf("expected row 4 recorded as failure, got %v", q.failures)
	}
}

func TestNewWorker_AppliesDefaultsOnZeroConfig(t *testing.T) {
	w := NewWorker(&fakeQueue{}, &fakeDedupStore{}, &fakeEngine{}, Config{})
	if w.cfg.BatchSize != 50 {
		t.Errorf("expected default batch size 50, got %d", w.cfg.BatchSize)
	}
	if w.cfg.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", w.cfg.MaxRetries)
	}
}
