package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Job lifecycle. PENDING jobs sit in the queue, RUNNING jobs have been
// claimed by a worker, and the remaining three states are terminal.
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusKilled    = "KILLED"
)

const (
	// ResultSourceStdout yields the job's captured standard output as its result.
	ResultSourceStdout = "stdout"
	// ResultSourceFilePrefix marks a result read from a file path after the
	// command exits, e.g. "file:/tmp/out".
	ResultSourceFilePrefix = "file:"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobTerminal = errors.New("job already in a terminal state")
)

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case JobStatusCompleted, JobStatusFailed, JobStatusKilled:
		return true
	}
	return false
}

// ValidateResultSource checks that a result source is either "stdout" or a
// "file:{path}" reference.
func ValidateResultSource(source string) error {
	if source == ResultSourceStdout {
		return nil
	}
	if strings.HasPrefix(source, ResultSourceFilePrefix) && len(source) > len(ResultSourceFilePrefix) {
		return nil
	}
	return fmt.Errorf("invalid result source %q: must be %q or %q{path}", source, ResultSourceStdout, ResultSourceFilePrefix)
}
