// Package agent wraps the external droidrun automation driver behind a narrow
// interface: run one exploration turn with a goal and a step budget, return
// the agent's report.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Report is the result of one exploration turn.
type Report struct {
	Success bool
	Text    string // the agent's markdown report
}

// Runner runs one exploration turn. The call may block for minutes; callers
// are expected to run it off the request-handling goroutine. Implementations
// never retry internally.
type Runner interface {
	RunTurn(ctx context.Context, goal string, maxSteps int) (*Report, error)
}

// Failure classes surfaced by the adapter.
var (
	ErrDeviceUnreachable = errors.New("device unreachable")
	ErrTimeout           = errors.New("automation timeout")
	ErrEmptyReport       = errors.New("agent returned an empty report")
)

// CLIRunner drives the droidrun binary. Each turn is one process invocation;
// the agent writes screenshots and action logs into SessionDir as a byproduct
// and prints its report to stdout.
type CLIRunner struct {
	Binary     string        // droidrun binary, defaults to "droidrun"
	Timeout    time.Duration // per-turn wall clock limit, 0 = no limit
	SessionDir string        // where the agent may dump session artifacts
}

// NewCLIRunner creates a CLIRunner for the given binary path.
func NewCLIRunner(binary string, timeout time.Duration) *CLIRunner {
	if binary == "" {
		binary = "droidrun"
	}
	return &CLIRunner{Binary: binary, Timeout: timeout}
}

// WithSessionDir returns a copy of the runner writing session byproducts
// under dir.
func (r *CLIRunner) WithSessionDir(dir string) *CLIRunner {
	cp := *r
	cp.SessionDir = dir
	return &cp
}

// RunTurn executes one agent turn and returns its report.
func (r *CLIRunner) RunTurn(ctx context.Context, goal string, maxSteps int) (*Report, error) {
	if _, err := exec.LookPath(r.Binary); err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrDeviceUnreachable, r.Binary)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := []string{"run", "--steps", fmt.Sprintf("%d", maxSteps)}
	if r.SessionDir != "" {
		args = append(args, "--output", r.SessionDir)
	}
	args = append(args, goal)

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, r.Timeout)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		if looksUnreachable(detail) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnreachable, detail)
		}
		return nil, fmt.Errorf("agent turn failed: %s", detail)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil, ErrEmptyReport
	}
	return &Report{Success: true, Text: text}, nil
}

// looksUnreachable classifies stderr output from the driver as a device
// connectivity failure.
func looksUnreachable(detail string) bool {
	s := strings.ToLower(detail)
	return strings.Contains(s, "no devices") ||
		strings.Contains(s, "device offline") ||
		strings.Contains(s, "device not found") ||
		strings.Contains(s, "adb")
}
