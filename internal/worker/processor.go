package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudpipe/cloudpipe/internal/worker/domain"
	"github.com/cloudpipe/cloudpipe/internal/worker/executor"
)

// errMaxRuntime is the cancellation cause when a job outlives its runtime limit.
var errMaxRuntime = errors.New("max runtime exceeded")

// processJob claims and executes a single job: PENDING → RUNNING → terminal.
// The returned error feeds the ACK/NACK decision in the pool loop.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	// Claim the job (PENDING → RUNNING). A miss means another worker has it
	// or it was killed while still queued.
	job, err := w.store.ClaimJob(ctx, msg.JobID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			return fmt.Errorf("job not claimable: %w", err)
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	// The job may request a shorter runtime than the worker cap, never a
	// longer one.
	timeout := w.jobTimeout
	if job.MaxRuntimeSeconds > 0 {
		if requested := time.Duration(job.MaxRuntimeSeconds) * time.Second; requested < timeout {
			timeout = requested
		}
	}

	// Two cancellation paths share the run context: a kill request observed
	// by the watcher, and the runtime limit. The cause distinguishes them.
	runCtx, cancelKill := context.WithCancelCause(ctx)
	defer cancelKill(nil)
	runCtx, cancelTimeout := context.WithTimeoutCause(runCtx, timeout, errMaxRuntime)
	defer cancelTimeout()

	watchStop := make(chan struct{})
	go w.watchForKill(ctx, runCtx, job.JobID, cancelKill, watchStop)
	defer close(watchStop)

	if w.metrics != nil {
		w.metrics.JobsExecuting.Inc()
		defer w.metrics.JobsExecuting.Dec()
	}

	res, runErr := w.executor.Run(runCtx, job.Command, job.Stdin)

	var (
		status   string
		result   []byte
		errMsg   string
		exitCode *int
	)

	switch {
	case errors.Is(runErr, domain.ErrKillRequested):
		status = domain.JobStatusKilled
		errMsg = "killed by user request"

	case errors.Is(runErr, errMaxRuntime):
		status = domain.JobStatusFailed
		errMsg = fmt.Sprintf("max runtime exceeded after %s", timeout)

	case runErr != nil:
		// The process never produced an outcome (start failure, shutdown).
		// Put the job back in the queue until its retries run out.
		return w.releaseForRetry(ctx, job, runErr)

	case res.ExitCode == 0:
		status = domain.JobStatusCompleted
		exitCode = &res.ExitCode

		result, err = executor.ResolveResult(job.ResultSource, res)
		if err != nil {
			status = domain.JobStatusFailed
			errMsg = err.Error()
			result = nil
		}

	default:
		status = domain.JobStatusFailed
		exitCode = &res.ExitCode
		errMsg = fmt.Sprintf("command exited with code %d", res.ExitCode)
	}

	if finishErr := w.store.FinishJob(ctx, job.JobID, status, result, res.Stdout, res.Stderr, exitCode, errMsg); finishErr != nil {
		w.logger.Error("Failed to record job completion",
			slog.String("job_id", job.JobID),
			slog.String("status", status),
			slog.String("error", finishErr.Error()),
		)
		return domain.NewRetryableError(finishErr)
	}

	w.recordOutcome(status, res.Runtime)

	w.logger.Info("Job finished",
		slog.String("job_id", job.JobID),
		slog.String("status", status),
		slog.Duration("runtime", res.Runtime),
	)

	return nil
}

// watchForKill polls the job row while the command runs, refreshing the
// heartbeat and canceling the run context when a kill request appears. This
// is the explicit wait-for-kill primitive; the API only flips a flag.
func (w *Worker) watchForKill(ctx, runCtx context.Context, jobID string, cancel context.CancelCauseFunc, stop <-chan struct{}) {
	ticker := time.NewTicker(w.killPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return

		case <-runCtx.Done():
			return

		case <-ticker.C:
			killRequested, err := w.store.TouchJob(ctx, jobID)
			if err != nil {
				if errors.Is(err, domain.ErrJobNotFound) {
					return
				}
				w.logger.Warn("Failed to poll job kill flag",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
				continue
			}

			if killRequested {
				w.logger.Info("Kill request observed, terminating job",
					slog.String("job_id", jobID),
				)
				cancel(domain.ErrKillRequested)
				return
			}
		}
	}
}

// releaseForRetry returns a job to the queue after an infrastructure failure.
func (w *Worker) releaseForRetry(ctx context.Context, job *domain.Job, cause error) error {
	requeued, err := w.store.ReleaseJob(ctx, job.JobID, cause.Error())
	if err != nil {
		w.logger.Error("Failed to release job for retry",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		return domain.NewRetryableError(err)
	}

	if !requeued {
		w.logger.Warn("Job exceeded max retries",
			slog.String("job_id", job.JobID),
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
		)
		w.recordOutcome(domain.JobStatusFailed, 0)
		return fmt.Errorf("%w: %v", domain.ErrMaxRetriesExceeded, cause)
	}

	w.logger.Info("Job released for retry",
		slog.String("job_id", job.JobID),
		slog.Int("retry_count", job.RetryCount+1),
		slog.Int("max_retries", job.MaxRetries),
	)
	return domain.NewRetryableError(cause)
}

func (w *Worker) recordOutcome(status string, runtime time.Duration) {
	if w.metrics == nil {
		return
	}

	switch status {
	case domain.JobStatusCompleted:
		w.metrics.JobsCompleted.Inc()
	case domain.JobStatusFailed:
		w.metrics.JobsFailed.Inc()
	case domain.JobStatusKilled:
		w.metrics.JobsKilled.Inc()
	}

	if runtime > 0 {
		w.metrics.JobRuntime.Observe(runtime.Seconds())
	}
}
