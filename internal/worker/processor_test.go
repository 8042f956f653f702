package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cloudpipe/cloudpipe/internal/worker/domain"
	"github.com/cloudpipe/cloudpipe/internal/worker/executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJobStore is an in-memory jobStore recording the calls processJob makes.
type fakeJobStore struct {
	mu sync.Mutex

	job      *domain.Job
	claimErr error

	// TouchJob reports a kill request after this many polls (0 = never).
	killAfter int
	touches   int

	finishCalled bool
	finishStatus string
	finishResult []byte
	finishStdout string
	finishStderr string
	finishCode   *int
	finishErrMsg string

	releaseCalled  bool
	releaseRequeue bool
}

func (f *fakeJobStore) ClaimJob(_ context.Context, jobID, workerID string) (*domain.Job, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	job := *f.job
	job.JobID = jobID
	job.WorkerID = workerID
	job.Status = domain.JobStatusRunning
	return &job, nil
}

func (f *fakeJobStore) TouchJob(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return f.killAfter > 0 && f.touches >= f.killAfter, nil
}

func (f *fakeJobStore) FinishJob(_ context.Context, _, status string, result []byte, stdout, stderr string, returnCode *int, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finishCalled = true
	f.finishStatus = status
	f.finishResult = result
	f.finishStdout = stdout
	f.finishStderr = stderr
	f.finishCode = returnCode
	f.finishErrMsg = errorMsg
	return nil
}

func (f *fakeJobStore) ReleaseJob(_ context.Context, _, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releaseCalled = true
	return f.releaseRequeue, nil
}

func newTestWorker(store jobStore) *Worker {
	return &Worker{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		store:            store,
		executor:         executor.New(),
		workerID:         "worker-test",
		jobTimeout:       30 * time.Second,
		killPollInterval: 20 * time.Millisecond,
	}
}

func TestProcessJob(t *testing.T) {
	msg := &domain.JobMessage{JobID: "11111111-1111-1111-1111-111111111111"}

	t.Run("completed job records stdout as result", func(t *testing.T) {
		store := &fakeJobStore{job: &domain.Job{
			Command:      `echo "success"`,
			ResultSource: domain.ResultSourceStdout,
		}}
		w := newTestWorker(store)

		err := w.processJob(context.Background(), msg)
		require.NoError(t, err)

		require.True(t, store.finishCalled)
		assert.Equal(t, domain.JobStatusCompleted, store.finishStatus)
		assert.Equal(t, []byte("success\n"), store.finishResult)
		assert.Equal(t, "success\n", store.finishStdout)
		require.NotNil(t, store.finishCode)
		assert.Equal(t, 0, *store.finishCode)
	})

	t.Run("non-zero exit fails the job", func(t *testing.T) {
		store := &fakeJobStore{job: &domain.Job{
			Command:      `echo "oops" >&2; exit 2`,
			ResultSource: domain.ResultSourceStdout,
		}}
		w := newTestWorker(store)

		err := w.processJob(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusFailed, store.finishStatus)
		assert.Equal(t, "oops\n", store.finishStderr)
		require.NotNil(t, store.finishCode)
		assert.Equal(t, 2, *store.finishCode)
		assert.Contains(t, store.finishErrMsg, "exited with code 2")
	})

	t.Run("kill request terminates a running job", func(t *testing.T) {
		store := &fakeJobStore{
			job:       &domain.Job{Command: "sleep 30", ResultSource: domain.ResultSourceStdout},
			killAfter: 2,
		}
		w := newTestWorker(store)

		start := time.Now()
		err := w.processJob(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusKilled, store.finishStatus)
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("runtime limit fails the job", func(t *testing.T) {
		store := &fakeJobStore{job: &domain.Job{
			Command:           "sleep 30",
			ResultSource:      domain.ResultSourceStdout,
			MaxRuntimeSeconds: 1,
		}}
		w := newTestWorker(store)

		err := w.processJob(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusFailed, store.finishStatus)
		assert.Contains(t, store.finishErrMsg, "max runtime exceeded")
	})

	t.Run("requested runtime cannot exceed the worker cap", func(t *testing.T) {
		store := &fakeJobStore{job: &domain.Job{
			Command:           `sleep 2; echo "done"`,
			ResultSource:      domain.ResultSourceStdout,
			MaxRuntimeSeconds: 60,
		}}
		w := newTestWorker(store)
		w.jobTimeout = time.Second

		start := time.Now()
		err := w.processJob(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusFailed, store.finishStatus)
		assert.Contains(t, store.finishErrMsg, "max runtime exceeded")
		assert.Less(t, time.Since(start), 4*time.Second)
	})

	t.Run("unresolvable result source fails the job", func(t *testing.T) {
		store := &fakeJobStore{job: &domain.Job{
			Command:      "true",
			ResultSource: "file:/nonexistent/result.out",
		}}
		w := newTestWorker(store)

		err := w.processJob(context.Background(), msg)
		require.NoError(t, err)

		assert.Equal(t, domain.JobStatusFailed, store.finishStatus)
		assert.Nil(t, store.finishResult)
	})

	t.Run("claim conflict is not requeued", func(t *testing.T) {
		store := &fakeJobStore{claimErr: domain.ErrJobAlreadyClaimed}
		w := newTestWorker(store)

		err := w.processJob(context.Background(), msg)
		require.Error(t, err)
		assert.False(t, w.shouldRequeueJob(err))
	})

	t.Run("claim infrastructure failure is requeued", func(t *testing.T) {
		store := &fakeJobStore{claimErr: errors.New("connection refused")}
		w := newTestWorker(store)

		err := w.processJob(context.Background(), msg)
		require.Error(t, err)
		assert.True(t, w.shouldRequeueJob(err))
	})

	t.Run("interrupted run releases the job for retry", func(t *testing.T) {
		store := &fakeJobStore{
			job:            &domain.Job{Command: "sleep 30", ResultSource: domain.ResultSourceStdout},
			releaseRequeue: true,
		}
		w := newTestWorker(store)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := w.processJob(ctx, msg)
		require.Error(t, err)

		assert.True(t, store.releaseCalled)
		assert.False(t, store.finishCalled)
		assert.True(t, w.shouldRequeueJob(err))
	})

	t.Run("retries exhausted stops the requeue loop", func(t *testing.T) {
		store := &fakeJobStore{
			job:            &domain.Job{Command: "sleep 30", ResultSource: domain.ResultSourceStdout},
			releaseRequeue: false,
		}
		w := newTestWorker(store)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := w.processJob(ctx, msg)
		require.Error(t, err)

		assert.ErrorIs(t, err, domain.ErrMaxRetriesExceeded)
		assert.False(t, w.shouldRequeueJob(err))
	})
}

func TestShouldRequeueJob(t *testing.T) {
	w := newTestWorker(&fakeJobStore{})

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"already claimed", domain.ErrJobAlreadyClaimed, false},
		{"max retries exceeded", domain.ErrMaxRetriesExceeded, false},
		{"retryable error", domain.NewRetryableError(errors.New("db down")), true},
		{"unknown error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldRequeueJob(tt.err))
		})
	}
}
