package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cloudpipe/cloudpipe/internal/worker/domain"
)

// Executor runs job commands through a shell with captured streams.
type Executor struct {
	shell string
}

// New creates an Executor using /bin/sh.
func New() *Executor {
	return &Executor{shell: "/bin/sh"}
}

// Result carries the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Runtime  time.Duration
}

// Run executes the command as `sh -c cmd` with the given bytes piped to its
// standard input. A non-zero exit is not an error here: the Result carries
// the exit code and the caller decides the job status. The returned error is
// non-nil only when the process could not be started or the context was
// canceled (kill request or runtime limit).
func (e *Executor) Run(ctx context.Context, command string, stdin []byte) (*Result, error) {
	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Bound the wait after a context kill so a wedged process cannot hang
	// the worker goroutine.
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Runtime: time.Since(start),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, context.Cause(ctx)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("failed to run command: %w", err)
	}

	return res, nil
}

// ResolveResult extracts the job result from its configured source: the
// captured stdout, or the contents of a file the command wrote.
func ResolveResult(source string, res *Result) ([]byte, error) {
	if source == domain.ResultSourceStdout {
		return []byte(res.Stdout), nil
	}

	if strings.HasPrefix(source, domain.ResultSourceFilePrefix) {
		path := strings.TrimPrefix(source, domain.ResultSourceFilePrefix)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read result file %s: %w", path, err)
		}
		return content, nil
	}

	return nil, fmt.Errorf("invalid result source %q", source)
}
