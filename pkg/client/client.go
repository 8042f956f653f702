// Package client is the job-submission client for the cloudpipe API.
// Configuration is explicit: credentials and endpoint live on a Config passed
// to New, never in process-global state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// DefaultBaseURL assumes /etc/hosts points "docker" at the local backend,
// matching the sample setup. CLOUDPIPE_URL overrides it.
const DefaultBaseURL = "http://docker:8000"

// EnvBaseURL is the environment variable consulted by ConfigFromEnv.
const EnvBaseURL = "CLOUDPIPE_URL"

const defaultPollInterval = 500 * time.Millisecond

var (
	// ErrJobFailed is wrapped by Result when the job finished with an error.
	ErrJobFailed = errors.New("job failed")
	// ErrJobKilled is wrapped by Result when the job was killed.
	ErrJobKilled = errors.New("job killed")
	// ErrJobNotFound is returned for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

// Config holds the client configuration.
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string

	// PollInterval is the delay between status polls in Wait, WaitStatus,
	// and Result. Defaults to 500ms.
	PollInterval time.Duration

	// HTTPClient overrides the underlying HTTP client.
	HTTPClient *http.Client
}

// ConfigFromEnv builds a Config from the CLOUDPIPE_URL environment variable,
// falling back to DefaultBaseURL.
func ConfigFromEnv(apiKey, apiSecret string) Config {
	baseURL := os.Getenv(EnvBaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return Config{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
}

// Client talks to the cloudpipe job API.
type Client struct {
	baseURL      string
	apiKey       string
	apiSecret    string
	pollInterval time.Duration
	httpClient   *http.Client
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("client: BaseURL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("client: invalid BaseURL: %w", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		apiSecret:    cfg.APISecret,
		pollInterval: pollInterval,
		httpClient:   httpClient,
	}, nil
}

// JobSpec describes a unit of work to submit. Every job is a shell job: the
// command runs under `sh -c` on a worker.
type JobSpec struct {
	// Command is the shell command to execute. Required.
	Command string
	// Name is an optional human-readable label.
	Name string
	// Stdin is piped to the command's standard input.
	Stdin []byte
	// ResultFile, when set, makes the job's result the contents of this file
	// path after the command exits. Otherwise the result is captured stdout.
	ResultFile string
	// MaxRuntime bounds execution time. Zero means the worker default.
	MaxRuntime time.Duration
	// MaxRetries bounds requeues after infrastructure failures.
	MaxRetries int
}

// Job is a point-in-time snapshot of a submitted job.
type Job struct {
	JID           string `json:"jid"`
	Name          string `json:"name"`
	Command       string `json:"cmd"`
	ResultSource  string `json:"result_source"`
	Status        string `json:"status"`
	KillRequested bool   `json:"kill_requested"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	ReturnCode    *int   `json:"return_code"`
	ErrorMessage  string `json:"error_message"`
	CreatedAt     string `json:"created_at"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at"`
}

// Job status values reported by the API.
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusKilled    = "KILLED"
)

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusKilled:
		return true
	}
	return false
}

// statusRank orders the lifecycle so WaitStatus treats a passed state as
// reached: a job that went PENDING→RUNNING→COMPLETED between polls has been
// running.
func statusRank(status string) int {
	switch status {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	default:
		return 2
	}
}

type submitRequest struct {
	Command           string `json:"cmd"`
	Name              string `json:"name,omitempty"`
	Stdin             []byte `json:"stdin,omitempty"`
	ResultSource      string `json:"result_source,omitempty"`
	MaxRuntimeSeconds int    `json:"max_runtime_seconds,omitempty"`
	MaxRetries        int    `json:"max_retries,omitempty"`
}

type resultResponse struct {
	JID          string `json:"jid"`
	Status       string `json:"status"`
	Result       []byte `json:"result"`
	ReturnCode   *int   `json:"return_code"`
	ErrorMessage string `json:"error_message"`
}

type apiError struct {
	Error string `json:"error"`
}

// Submit sends a job to the backend and returns its id immediately; the job
// runs asynchronously.
func (c *Client) Submit(ctx context.Context, spec JobSpec) (string, error) {
	if spec.Command == "" {
		return "", errors.New("client: JobSpec.Command is required")
	}

	req := submitRequest{
		Command:    spec.Command,
		Name:       spec.Name,
		Stdin:      spec.Stdin,
		MaxRetries: spec.MaxRetries,
	}
	if spec.ResultFile != "" {
		req.ResultSource = "file:" + spec.ResultFile
	}
	if spec.MaxRuntime > 0 {
		req.MaxRuntimeSeconds = int(spec.MaxRuntime / time.Second)
	}

	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &job); err != nil {
		return "", err
	}

	return job.JID, nil
}

// Get returns the current snapshot of a job.
func (c *Client) Get(ctx context.Context, jid string) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+jid, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Wait blocks until the job reaches a terminal state and returns its final
// snapshot. Bound the wait with a context deadline.
func (c *Client) Wait(ctx context.Context, jid string) (*Job, error) {
	return c.poll(ctx, jid, func(j *Job) bool {
		return j.Terminal()
	})
}

// WaitStatus blocks until the job reaches (or has passed) the given status.
// This is the primitive to use instead of a fixed sleep before a kill:
// WaitStatus(ctx, jid, StatusRunning) with a context deadline guarantees the
// job is actually running.
func (c *Client) WaitStatus(ctx context.Context, jid, status string) (*Job, error) {
	want := statusRank(status)
	return c.poll(ctx, jid, func(j *Job) bool {
		return statusRank(j.Status) >= want
	})
}

// Kill requests cancellation of a job. Best-effort and asynchronous: the job
// transitions to KILLED once a worker observes the request (or immediately if
// it never started). Use Wait to observe the transition.
func (c *Client) Kill(ctx context.Context, jid string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/jobs/"+jid+"/kill", nil, nil)
}

// Result blocks until the job reaches a terminal state, then returns the
// job's result bytes. Failed jobs yield an error wrapping ErrJobFailed;
// killed jobs wrap ErrJobKilled.
func (c *Client) Result(ctx context.Context, jid string) ([]byte, error) {
	if _, err := c.Wait(ctx, jid); err != nil {
		return nil, err
	}

	var res resultResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+jid+"/result", nil, &res); err != nil {
		return nil, err
	}

	switch res.Status {
	case StatusFailed:
		return nil, fmt.Errorf("%w: %s", ErrJobFailed, res.ErrorMessage)
	case StatusKilled:
		return nil, fmt.Errorf("%w: %s", ErrJobKilled, res.ErrorMessage)
	}

	return res.Result, nil
}

// poll fetches the job on the configured interval until done reports true.
func (c *Client) poll(ctx context.Context, jid string, done func(*Job) bool) (*Job, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.Get(ctx, jid)
		if err != nil {
			return nil, err
		}
		if done(job) {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("client: waiting for job %s: %w", jid, ctx.Err())
		case <-ticker.C:
		}
	}
}

// do performs an authenticated request and decodes the JSON response.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("client: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Api-Secret", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("client: %s %s: %w", method, path, ErrJobNotFound)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("client: %s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("client: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decoding response: %w", err)
		}
	}

	return nil
}
