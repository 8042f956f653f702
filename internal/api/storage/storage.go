package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudpipe/cloudpipe/internal/api/domain"
	"github.com/cloudpipe/cloudpipe/internal/api/model"
	"github.com/cloudpipe/cloudpipe/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

const jobColumns = `
	job_id, name, command, stdin, result_source, max_runtime_seconds,
	status, kill_requested, worker_id, stdout, stderr, result,
	return_code, error_message, retry_count, max_retries,
	created_at, started_at, finished_at, updated_at
`

func (s *Storage) CreateJob(ctx context.Context, job *model.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, name, command, stdin, result_source,
			max_runtime_seconds, status, max_retries, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.Name,
		job.Command,
		job.Stdin,
		job.ResultSource,
		job.MaxRuntimeSeconds,
		job.Status,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	Name     string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Name != "" {
		query += fmt.Sprintf(" AND name = $%d", argIdx)
		args = append(args, filter.Name)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// RequestKill records a cancellation request. A PENDING job never reaches a
// worker, so it moves straight to KILLED; a RUNNING job keeps its status and
// the worker's kill watcher observes kill_requested. Returns the job's status
// after the update.
func (s *Storage) RequestKill(ctx context.Context, jobID string) (string, error) {
	query := `
		UPDATE jobs
		SET kill_requested = TRUE,
		    status = CASE WHEN status = $1 THEN $2 ELSE status END,
		    finished_at = CASE WHEN status = $1 THEN NOW() ELSE finished_at END,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status NOT IN ($2, $4, $5)
		RETURNING status
	`

	var status string
	err := s.db.QueryRowContext(
		ctx,
		query,
		domain.JobStatusPending,
		domain.JobStatusKilled,
		jobID,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
	).Scan(&status)

	if err == nil {
		return status, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to request job kill: %w", err)
	}

	// No row updated: either the job does not exist or it already finished.
	if _, getErr := s.GetJobByID(ctx, jobID); getErr != nil {
		return "", getErr
	}
	return "", domain.ErrJobTerminal
}
