package domain

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusKilled    = "KILLED"
)

const (
	// ResultSourceStdout yields the captured standard output as the result.
	ResultSourceStdout = "stdout"
	// ResultSourceFilePrefix marks a result read from a file after the
	// command exits.
	ResultSourceFilePrefix = "file:"
)
