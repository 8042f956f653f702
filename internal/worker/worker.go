package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cloudpipe/cloudpipe/internal/metrics"
	"github.com/cloudpipe/cloudpipe/internal/worker/domain"
	"github.com/cloudpipe/cloudpipe/internal/worker/executor"
	"github.com/cloudpipe/cloudpipe/internal/worker/storage"
	"github.com/cloudpipe/cloudpipe/shared/postgresql"
	"github.com/cloudpipe/cloudpipe/shared/rabbitmq"
	"github.com/google/uuid"
)

// jobStore enumerates the storage interactions the worker needs, and allows
// tests to interject in-memory substitutes.
type jobStore interface {
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	TouchJob(ctx context.Context, jobID string) (bool, error)
	FinishJob(ctx context.Context, jobID, status string, result []byte, stdout, stderr string, returnCode *int, errorMsg string) error
	ReleaseJob(ctx context.Context, jobID, errorMsg string) (bool, error)
}

// Config holds worker configuration
type Config struct {
	Logger           *slog.Logger
	DBClient         *postgresql.Client
	RabbitClient     *rabbitmq.Client
	Metrics          *metrics.Metrics
	Concurrency      int
	PrefetchCount    int
	JobTimeout       time.Duration
	KillPollInterval time.Duration
}

// Worker consumes submitted jobs from RabbitMQ and executes them.
type Worker struct {
	logger           *slog.Logger
	rabbitClient     *rabbitmq.Client
	store            jobStore
	executor         *executor.Executor
	metrics          *metrics.Metrics
	workerID         string
	concurrency      int
	prefetchCount    int
	jobTimeout       time.Duration
	killPollInterval time.Duration
	jobsChan         chan *domain.JobMessage
	wg               sync.WaitGroup
	stopChan         chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	killPoll := cfg.KillPollInterval
	if killPoll <= 0 {
		killPoll = 500 * time.Millisecond
	}

	return &Worker{
		logger:           cfg.Logger,
		rabbitClient:     cfg.RabbitClient,
		store:            storage.NewStorage(cfg.DBClient.GetDB(), cfg.Logger),
		executor:         executor.New(),
		metrics:          cfg.Metrics,
		workerID:         "worker-" + uuid.New().String()[:8],
		concurrency:      cfg.Concurrency,
		prefetchCount:    cfg.PrefetchCount,
		jobTimeout:       cfg.JobTimeout,
		killPollInterval: killPoll,
		jobsChan:         make(chan *domain.JobMessage),
		stopChan:         make(chan struct{}),
	}
}

// Start begins consuming and processing jobs until the context is canceled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer(ctx)
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	go w.startMessageDispatcher(ctx, deliveries)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
