package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/msg43/knowledge-chipper-engine/pkg/models"
)

// JobStore is the Job/Run Store's contract (spec.md §4.1), implemented over
// a plain *sql.DB connection pool.
type JobStore struct {
	db *sql.DB
}

// NewJobStore constructs a JobStore.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// CreateJob inserts a new Job row. Re-runs of the same logical
// (job_type, input_id, config) key are expected to call this again and get
// a fresh JobID — Jobs are never updated in place for that purpose.
func (s *JobStore) CreateJob(ctx context.Context, jobType models.JobType, inputID string, config map[string]interface{}, autoProcess bool) (*models.Job, error) {
	if config == nil {
		config = map[string]interface{}{}
	}
	cfgJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	job := &models.Job{
		JobID:       uuid.NewString(),
		JobType:     jobType,
		InputID:     inputID,
		Config:      config,
		AutoProcess: autoProcess,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, job_type, input_id, config_json, auto_process, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.JobID, job.JobType, job.InputID, cfgJSON, job.AutoProcess, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// GetJob fetches a Job by id.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_id, job_type, input_id, config_json, auto_process, created_at, updated_at
		FROM jobs WHERE job_id = $1`, jobID)

	var job models.Job
	var cfgJSON []byte
	if err := row.Scan(&job.JobID, &job.JobType, &job.InputID, &cfgJSON, &job.AutoProcess, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(cfgJSON, &job.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &job, nil
}
