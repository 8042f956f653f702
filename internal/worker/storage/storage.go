package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudpipe/cloudpipe/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob attempts to claim a job using optimistic locking
// (PENDING → RUNNING). A job killed while queued is already KILLED and
// cannot be claimed.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING job_id, name, command, stdin, result_source,
		          max_runtime_seconds, retry_count, max_retries
	`

	var job domain.Job
	err := s.db.QueryRowContext(ctx, query, domain.JobStatusRunning, workerID, jobID, domain.JobStatusPending).Scan(
		&job.JobID,
		&job.Name,
		&job.Command,
		&job.Stdin,
		&job.ResultSource,
		&job.MaxRuntimeSeconds,
		&job.RetryCount,
		&job.MaxRetries,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed, killed, or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.Status = domain.JobStatusRunning
	job.WorkerID = workerID

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return &job, nil
}

// TouchJob refreshes the running job's heartbeat and reports whether a kill
// has been requested since the last poll.
func (s *Storage) TouchJob(ctx context.Context, jobID string) (killRequested bool, err error) {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND status = $2
		RETURNING kill_requested
	`

	err = s.db.QueryRowContext(ctx, query, jobID, domain.JobStatusRunning).Scan(&killRequested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Job left RUNNING underneath us; nothing to watch anymore.
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to touch job: %w", err)
	}

	return killRequested, nil
}

// FinishJob records the terminal state of an executed job in a single write.
func (s *Storage) FinishJob(ctx context.Context, jobID, status string, result []byte, stdout, stderr string, returnCode *int, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    stdout = $3,
		    stderr = $4,
		    return_code = $5,
		    error_message = $6,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $7
	`

	var rc sql.NullInt32
	if returnCode != nil {
		rc = sql.NullInt32{Int32: int32(*returnCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query, status, result, stdout, stderr, rc, errorMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}

// ReleaseJob returns a claimed job to the queue after an infrastructure
// failure, bumping its retry count. Once retries are exhausted the job is
// marked FAILED instead. Reports whether the job went back to PENDING.
func (s *Storage) ReleaseJob(ctx context.Context, jobID, errorMsg string) (requeued bool, err error) {
	query := `
		UPDATE jobs
		SET retry_count = retry_count + 1,
		    status = CASE WHEN retry_count < max_retries THEN $1 ELSE $2 END,
		    worker_id = NULL,
		    error_message = $3,
		    finished_at = CASE WHEN retry_count < max_retries THEN NULL ELSE NOW() END,
		    updated_at = NOW()
		WHERE job_id = $4 AND status = $5
		RETURNING status
	`

	var status string
	err = s.db.QueryRowContext(ctx, query,
		domain.JobStatusPending,
		domain.JobStatusFailed,
		errorMsg,
		jobID,
		domain.JobStatusRunning,
	).Scan(&status)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to release job: %w", err)
	}

	return status == domain.JobStatusPending, nil
}
