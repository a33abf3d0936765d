// Package feedback implements the Feedback Intake Worker (C7): a
// single-threaded background drain of the pending_feedback durable queue
// into the Taste Engine's vector store. Grounded on
// workers/feedback_processor.py's FeedbackProcessor for the poll/claim/mark
// shape, and on the teacher's pkg/queue/worker.go for the run/stop/sleep
// loop idiom (a select on a stop channel racing time.After, rather than a
// raw time.Sleep in a for loop).
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
	"github.com/msg43/knowledge-chipper-engine/pkg/store"
	"github.com/msg43/knowledge-chipper-engine/pkg/taste"
)

// Config controls the worker's polling and retry behavior.
type Config struct {
	PollInterval time.Duration `yaml:"poll_interval" validate:"min=1"` // time between drains when the queue is empty
	BatchSize    int           `yaml:"batch_size" validate:"min=1"`    // max rows claimed per drain (feedback_processor.py uses 50)
	MaxRetries   int           `yaml:"max_retries" validate:"min=0"`   // retry_count ceiling before a row is marked failed
}

// DefaultConfig mirrors FeedbackProcessor's constructor defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
		MaxRetries:   3,
	}
}

// Engine is the subset of *taste.Engine the worker depends on, narrowed to
// an interface so it can be unit-tested without a live embedding backend.
type Engine interface {
	AddFeedback(ctx context.Context, fb models.FeedbackExample) (string, error)
}

// Store is the subset of *taste.Store the worker uses for the dedup check
// ahead of embedding (has_example in the original).
type Store interface {
	HasExample(ctx context.Context, entityType models.EntityType, verdict models.Verdict, entityText string) (bool, error)
}

// Queue is the subset of *store.PendingFeedbackStore the worker drains.
type Queue interface {
	ClaimNextBatch(ctx context.Context, limit int) ([]store.PendingRow, error)
	MarkProcessed(ctx context.Context, id int64) error
	RecordFailure(ctx context.Context, id int64, maxRetries int, cause error) error
}

// Worker polls the pending_feedback queue and ingests each row into the
// Taste Engine, running as a single background goroutine per
// feedback_processor.py's daemon thread.
type Worker struct {
	queue  Queue
	dedup  Store
	engine Engine
	cfg    Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ Engine = (*taste.Engine)(nil)
var _ Store = (*taste.Store)(nil)
var _ Queue = (*store.PendingFeedbackStore)(nil)

// NewWorker constructs a Worker. Zero-value Config fields fall back to
// DefaultConfig's values.
func NewWorker(queue Queue, dedup Store, engine Engine, cfg Config) *Worker {
	d := DefaultConfig()
	if cfg.PollInterval > 0 {
		d.PollInterval = cfg.PollInterval
	}
	if cfg.BatchSize > 0 {
		d.BatchSize = cfg.BatchSize
	}
	if cfg.MaxRetries > 0 {
		d.MaxRetries = cfg.MaxRetries
	}
	return &Worker{
		queue:  queue,
		dedup:  dedup,
		engine: engine,
		cfg:    d,
		stopCh: make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the loop to exit and waits for it to finish. Safe to call
// more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	slog.Info("feedback intake worker started", "poll_interval", w.cfg.PollInterval)

	for {
		select {
		case <-w.stopCh:
			slog.Info("feedback intake worker shutting down")
			return
		case <-ctx.Done():
			slog.Info("feedback intake worker shutting down", "reason", "context cancelled")
			return
		default:
		}

		n, err := w.drain(ctx)
		if err != nil {
			slog.Error("feedback intake drain failed", "error", err)
		} else if n > 0 {
			slog.Info("feedback intake drained items", "count", n)
		}

		w.sleep(w.cfg.PollInterval)
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// drain claims and processes one batch, returning the number of rows handled
// without error (duplicates that were skipped but marked processed
// included). Mirrors _process_pending_items.
func (w *Worker) drain(ctx context.Context) (int, error) {
	rows, err := w.queue.ClaimNextBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim batch: %w", err)
	}

	processed := 0
	for _, row := range rows {
		if err := w.processRow(ctx, row); err != nil {
			slog.Error("feedback item processing failed", "id", row.ID, "error", err)
			if ferr := w.queue.RecordFailure(ctx, row.ID, w.cfg.MaxRetries, err); ferr != nil {
				slog.Error("failed to record feedback failure", "id", row.ID, "error", ferr)
			}
			continue
		}
		processed++
	}
	return processed, nil
}

// processRow decodes one raw payload, skips it (while still marking it
// processed) if an identical example already exists, otherwise embeds and
// stores it. Mirrors _process_item's duplicate-skip-but-mark-processed
// behavior.
func (w *Worker) processRow(ctx context.Context, row store.PendingRow) error {
	var fb models.FeedbackExample
	if err := json.Unmarshal(row.Payload, &fb); err != nil {
		return fmt.Errorf("invalid feedback payload: %w", err)
	}
	if fb.EntityType == "" {
		fb.EntityType = models.EntityClaim
	}
	if fb.Verdict == "" {
		fb.Verdict = models.VerdictReject
	}
	if fb.ReasonCategory == "" {
		fb.ReasonCategory = "other"
	}

	exists, err := w.dedup.HasExample(ctx, fb.EntityType, fb.Verdict, fb.EntityText)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if exists {
		slog.Debug("skipping duplicate feedback", "entity_text", truncate(fb.EntityText, 50))
		return w.queue.MarkProcessed(ctx, row.ID)
	}

	if _, err := w.engine.AddFeedback(ctx, fb); err != nil {
		return fmt.Errorf("add feedback: %w", err)
	}
	return w.queue.MarkProcessed(ctx, row.ID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
