package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// RunStore implements the JobRun state machine (spec.md §4.1).
type RunStore struct {
	db *sql.DB
}

// NewRunStore constructs a RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// StartRun creates a new JobRun in the running state with the next dense
// attempt_number for the job. Fails with ErrRunAlreadyRunning if one is
// already in progress — enforced both here and by a DB partial unique index
// so concurrent callers cannot race past the app-level check.
func (s *RunStore) StartRun(ctx context.Context, jobID string) (*models.JobRun, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var running int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM job_runs WHERE job_id = $1 AND status = 'running'`, jobID).Scan(&running); err != nil {
		return nil, fmt.Errorf("check running: %w", err)
	}
	if running > 0 {
		return nil, ErrRunAlreadyRunning
	}

	var maxAttempt sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT max(attempt_number) FROM job_runs WHERE job_id = $1`, jobID).Scan(&maxAttempt); err != nil {
		return nil, fmt.Errorf("max attempt: %w", err)
	}
	attempt := 1
	if maxAttempt.Valid {
		attempt = int(maxAttempt.Int64) + 1
	}

	now := time.Now().UTC()
	run := &models.JobRun{
		RunID:          uuid.NewString(),
		JobID:          jobID,
		AttemptNumber:  attempt,
		Status:         models.RunRunning,
		StartedAt:      &now,
		CheckpointJSON: map[string]interface{}{},
		MetricsJSON:    map[string]interface{}{},
		UpdatedAt:      now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_runs (run_id, job_id, attempt_number, status, started_at, checkpoint_json, metrics_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, '{}', '{}', $6)`,
		run.RunID, run.JobID, run.AttemptNumber, run.Status, run.StartedAt, run.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrRunAlreadyRunning
		}
		return nil, fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return run, nil
}

// Checkpoint records a resumption cursor on a running JobRun.
func (s *RunStore) Checkpoint(ctx context.Context, runID string, cursor map[string]interface{}) error {
	cursorJSON, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET checkpoint_json = $2, updated_at = now()
		WHERE run_id = $1 AND status = 'running'`, runID, cursorJSON)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	return mustAffectOne(res, ErrTerminalRun)
}

// CompleteRun transitions a running JobRun to succeeded, recording metrics.
func (s *RunStore) CompleteRun(ctx context.Context, runID string, metrics models.RunMetrics) error {
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET status = 'succeeded', completed_at = now(), metrics_json = $2, updated_at = now()
		WHERE run_id = $1 AND status = 'running'`, runID, metricsJSON)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return mustAffectOne(res, ErrTerminalRun)
}

// FailRun transitions a running JobRun to failed with a reason. Terminal
// states never transition back (spec.md invariant).
func (s *RunStore) FailRun(ctx context.Context, runID string, reason error) error {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET status = 'failed', completed_at = now(), error_message = $2, updated_at = now()
		WHERE run_id = $1 AND status = 'running'`, runID, msg)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return mustAffectOne(res, ErrTerminalRun)
}

// CancelRun transitions a running JobRun to cancelled.
func (s *RunStore) CancelRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs SET status = 'cancelled', completed_at = now(), updated_at = now()
		WHERE run_id = $1 AND status = 'running'`, runID)
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return mustAffectOne(res, ErrTerminalRun)
}

// ListRuns returns every JobRun for a job, newest attempt first.
func (s *RunStore) ListRuns(ctx context.Context, jobID string) ([]models.JobRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, job_id, attempt_number, status, started_at, completed_at, checkpoint_json, metrics_json, coalesce(error_message, ''), updated_at
		FROM job_runs WHERE job_id = $1 ORDER BY attempt_number DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []models.JobRun
	for rows.Next() {
		var r models.JobRun
		var checkpointJSON, metricsJSON []byte
		if err := rows.Scan(&r.RunID, &r.JobID, &r.AttemptNumber, &r.Status, &r.StartedAt, &r.CompletedAt, &checkpointJSON, &metricsJSON, &r.ErrorMessage, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		_ = json.Unmarshal(checkpointJSON, &r.CheckpointJSON)
		_ = json.Unmarshal(metricsJSON, &r.MetricsJSON)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun fetches a single JobRun by id.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*models.JobRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, job_id, attempt_number, status, started_at, completed_at, checkpoint_json, metrics_json, coalesce(error_message, ''), updated_at
		FROM job_runs WHERE run_id = $1`, runID)

	var r models.JobRun
	var checkpointJSON, metricsJSON []byte
	if err := row.Scan(&r.RunID, &r.JobID, &r.AttemptNumber, &r.Status, &r.StartedAt, &r.CompletedAt, &checkpointJSON, &metricsJSON, &r.ErrorMessage, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	_ = json.Unmarshal(checkpointJSON, &r.CheckpointJSON)
	_ = json.Unmarshal(metricsJSON, &r.MetricsJSON)
	return &r, nil
}

// SweepOrphans transitions runs stuck in `running` past heartbeatThreshold
// back to failed. Grounded on the teacher's pkg/queue/orphan.go sweep.
func (s *RunStore) SweepOrphans(ctx context.Context, heartbeatThreshold time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = 'failed', completed_at = now(), error_message = 'reaped: exceeded heartbeat threshold', updated_at = now()
		WHERE status = 'running' AND started_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(heartbeatThreshold.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("sweep orphans: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func mustAffectOne(res sql.Result, otherwise error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return otherwise
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "SQLSTATE 23505") || strings.Contains(err.Error(), "duplicate key value")
}
