package dto

// SubmitJobRequest is the POST /api/v1/jobs payload. Stdin and the result
// bytes travel as base64 via encoding/json's []byte handling.
type SubmitJobRequest struct {
	Command           string `json:"cmd" binding:"required"`
	Name              string `json:"name"`
	Stdin             []byte `json:"stdin"`
	ResultSource      string `json:"result_source"`
	MaxRuntimeSeconds int    `json:"max_runtime_seconds"`
	MaxRetries        int    `json:"max_retries"`
}

// ListJobsRequest carries the list filters and cursor pagination parameters.
type ListJobsRequest struct {
	Name     string `form:"name"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is the paginated job listing.
type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// JobDTO is the job snapshot returned by submit, get, and list.
type JobDTO struct {
	JobID             string `json:"jid"`
	Name              string `json:"name,omitempty"`
	Command           string `json:"cmd"`
	ResultSource      string `json:"result_source"`
	MaxRuntimeSeconds int    `json:"max_runtime_seconds"`
	Status            string `json:"status"`
	KillRequested     bool   `json:"kill_requested,omitempty"`
	Stdout            string `json:"stdout"`
	Stderr            string `json:"stderr"`
	ReturnCode        *int   `json:"return_code,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
	CreatedAt         string `json:"created_at"`
	StartedAt         string `json:"started_at,omitempty"`
	FinishedAt        string `json:"finished_at,omitempty"`
}

// JobResultResponse is returned by GET /api/v1/jobs/:job_id/result once the
// job has reached a terminal state.
type JobResultResponse struct {
	JobID        string `json:"jid"`
	Status       string `json:"status"`
	Result       []byte `json:"result"`
	ReturnCode   *int   `json:"return_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
