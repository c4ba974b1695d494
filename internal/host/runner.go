package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"deskbot/internal/domain"
)

const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultMaxOutputBytes = 64 * 1024
)

// Runner executes host commands with a bounded timeout and bounded
// output. It never returns a Go error: every failure mode (missing
// binary, non-zero exit, timeout) is encoded in the CommandResult so
// the caller can relay it verbatim.
type Runner struct {
	timeout        time.Duration
	maxOutputBytes int
	logger         *slog.Logger
}

func NewRunner(timeout time.Duration, maxOutputBytes int, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if maxOutputBytes <= 0 {
		maxOutputBytes = DefaultMaxOutputBytes
	}
	return &Runner{timeout: timeout, maxOutputBytes: maxOutputBytes, logger: logger}
}

func (r *Runner) RunCommand(ctx context.Context, command string, args []string) *domain.CommandResult {
	if command == "" {
		return &domain.CommandResult{Success: false, ExitCode: -1, Error: "empty command"}
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	result := &domain.CommandResult{
		Success:  err == nil,
		Stdout:   truncate(stdout.String(), r.maxOutputBytes),
		Stderr:   truncate(stderr.String(), r.maxOutputBytes),
		ExitCode: 0,
	}

	switch {
	case err == nil:
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		result.Error = fmt.Sprintf("command timed out after %s", r.timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			result.Error = fmt.Sprintf("exit status %d", result.ExitCode)
		} else {
			result.ExitCode = -1
			result.Error = err.Error()
		}
	}

	r.logger.Debug("host command finished",
		"command", command, "success", result.Success,
		"exit", result.ExitCode, "elapsed", elapsed)
	return result
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (output truncated)"
}
