package handler

import (
	"context"
	"log/slog"

	"github.com/cloudpipe/cloudpipe/internal/api/model"
	"github.com/cloudpipe/cloudpipe/internal/api/storage"
	"github.com/cloudpipe/cloudpipe/internal/metrics"
)

// JobStore enumerates the storage interactions the handlers need, and allows
// tests to interject in-memory substitutes.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJobByID(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.Job, error)
	RequestKill(ctx context.Context, jobID string) (string, error)
}

// Publisher hands submitted job ids to the queue.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     JobStore
	Publisher Publisher
	Metrics   *metrics.Metrics
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     JobStore
	publisher Publisher
	metrics   *metrics.Metrics
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
	}
}
