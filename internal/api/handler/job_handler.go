package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudpipe/cloudpipe/internal/api/domain"
	"github.com/cloudpipe/cloudpipe/internal/api/dto"
	"github.com/cloudpipe/cloudpipe/internal/api/model"
	"github.com/cloudpipe/cloudpipe/internal/api/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// queueMessage is the payload published to RabbitMQ for each accepted job.
type queueMessage struct {
	JobID string `json:"job_id"`
}

// SubmitJob handles POST /api/v1/jobs
// Accepts a shell job, stores it as PENDING, and enqueues it for a worker.
// Returns immediately with the job snapshot; execution is asynchronous.
func (h *JobHandler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.ResultSource == "" {
		req.ResultSource = domain.ResultSourceStdout
	}
	if err := domain.ValidateResultSource(req.ResultSource); err != nil {
		h.logger.Error("Invalid result source",
			slog.String("result_source", req.ResultSource),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	now := time.Now().UTC()
	job := model.Job{
		JobID:             uuid.New().String(),
		Name:              req.Name,
		Command:           req.Command,
		Stdin:             req.Stdin,
		ResultSource:      req.ResultSource,
		MaxRuntimeSeconds: req.MaxRuntimeSeconds,
		Status:            domain.JobStatusPending,
		MaxRetries:        req.MaxRetries,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := h.store.CreateJob(c.Request.Context(), &job); err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	body, err := json.Marshal(queueMessage{JobID: job.JobID})
	if err != nil {
		h.logger.Error("Failed to marshal queue message", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to enqueue job",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.JobsSubmitted.Inc()
	}

	h.logger.Info("Job submitted",
		slog.String("job_id", job.JobID),
		slog.String("name", job.Name),
	)

	c.JSON(http.StatusOK, jobToDTO(&job))
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns the current job snapshot including status and captured streams.
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, jobToDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs with optional filtering and cursor pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		Name:     req.Name,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = *jobToDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		lastJob := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: lastJob.CreatedAt,
			JobID:     lastJob.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// KillJob handles POST /api/v1/jobs/:job_id/kill
// Requests cancellation. PENDING jobs are killed outright; for RUNNING jobs
// the kill flag is recorded and the worker terminates the process. The call
// returns once the request is recorded, not once the job is dead.
func (h *JobHandler) KillJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	status, err := h.store.RequestKill(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
		case errors.Is(err, domain.ErrJobTerminal):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Job already in a terminal state",
			})
		default:
			h.logger.Error("Failed to request job kill", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to request job kill",
			})
		}
		return
	}

	h.logger.Info("Job kill requested",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	c.JSON(http.StatusOK, gin.H{
		"jid":    jobID,
		"status": status,
	})
}

// GetJobResult handles GET /api/v1/jobs/:job_id/result
// Returns the job's result once it reaches a terminal state; 409 before that.
// Blocking-until-done lives in the client, which polls this endpoint.
func (h *JobHandler) GetJobResult(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	if !domain.IsTerminal(job.Status) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "Job has not finished",
			"status": job.Status,
		})
		return
	}

	resp := dto.JobResultResponse{
		JobID:        job.JobID,
		Status:       job.Status,
		Result:       job.Result,
		ErrorMessage: job.ErrorMessage,
	}
	if job.ReturnCode.Valid {
		rc := int(job.ReturnCode.Int32)
		resp.ReturnCode = &rc
	}

	c.JSON(http.StatusOK, resp)
}

func jobToDTO(job *model.Job) *dto.JobDTO {
	d := &dto.JobDTO{
		JobID:             job.JobID,
		Name:              job.Name,
		Command:           job.Command,
		ResultSource:      job.ResultSource,
		MaxRuntimeSeconds: job.MaxRuntimeSeconds,
		Status:            job.Status,
		KillRequested:     job.KillRequested,
		Stdout:            job.Stdout,
		Stderr:            job.Stderr,
		ErrorMessage:      job.ErrorMessage,
		CreatedAt:         job.CreatedAt.Format(time.RFC3339),
	}

	if job.ReturnCode.Valid {
		rc := int(job.ReturnCode.Int32)
		d.ReturnCode = &rc
	}
	if job.StartedAt.Valid {
		d.StartedAt = job.StartedAt.Time.Format(time.RFC3339)
	}
	if job.FinishedAt.Valid {
		d.FinishedAt = job.FinishedAt.Time.Format(time.RFC3339)
	}

	return d
}
