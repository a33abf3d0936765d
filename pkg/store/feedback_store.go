package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PendingFeedbackStore is the append-only durable queue a collaborator
// writes FeedbackExample JSON into, and the Feedback Intake Worker (C7)
// drains in received_at order.
type PendingFeedbackStore struct {
	db *sql.DB
}

// NewPendingFeedbackStore constructs a PendingFeedbackStore.
func NewPendingFeedbackStore(db *sql.DB) *PendingFeedbackStore {
	return &PendingFeedbackStore{db: db}
}

// Enqueue appends a raw FeedbackExample JSON payload to the queue.
func (s *PendingFeedbackStore) Enqueue(ctx context.Context, payload []byte) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pending_feedback (payload, received_at) VALUES ($1, now()) RETURNING id`, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue feedback: %w", err)
	}
	return id, nil
}

// PendingRow mirrors models.PendingFeedback for the worker's claim loop.
type PendingRow struct {
	ID         int64
	Payload    []byte
	RetryCount int
}

// ClaimNextBatch returns up to limit unprocessed, non-failed rows in FIFO
// (received_at) order (spec.md §4.7 ordering guarantee).
func (s *PendingFeedbackStore) ClaimNextBatch(ctx context.Context, limit int) ([]PendingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, retry_count FROM pending_feedback
		WHERE processed_at IS NULL AND NOT failed
		ORDER BY received_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var out []PendingRow
	for rows.Next() {
		var r PendingRow
		if err := rows.Scan(&r.ID, &r.Payload, &r.RetryCount); err != nil {
			return nil, fmt.Errorf("scan pending row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkProcessed marks a row as successfully ingested.
func (s *PendingFeedbackStore) MarkProcessed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pending_feedback SET processed_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// RecordFailure increments retry_count and, once it reaches maxRetries,
// marks the row failed for operator inspection (spec.md §7
// FeedbackProcessingError).
func (s *PendingFeedbackStore) RecordFailure(ctx context.Context, id int64, maxRetries int, cause error) error {
	res := s.db.QueryRowContext(ctx, `
		UPDATE pending_feedback
		SET retry_count = retry_count + 1, last_error = $2,
		    failed = (retry_count + 1 >= $3)
		WHERE id = $1
		RETURNING retry_count`, id, cause.Error(), maxRetries)
	var retries int
	if err := res.Scan(&retries); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}
