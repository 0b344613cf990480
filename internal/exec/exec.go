// Package exec runs the external tools of a feedback run: the simulator that
// produces a coverage database and the copy used for database backups.
package exec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// ExecutionResult holds the outcome of a command execution.
type ExecutionResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Executor defines an interface for running external commands.
// This allows for mocking in tests.
type Executor interface {
	Run(command string, args ...string) (*ExecutionResult, error)
}

// CommandExecutor is a concrete implementation of the Executor interface
// that runs actual commands on the host system.
type CommandExecutor struct {
	// Dir is the working directory; empty means the current one.
	Dir string
	// Timeout kills the command after the given duration; zero disables it.
	Timeout time.Duration
}

// NewCommandExecutor creates a new CommandExecutor.
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

// NewCommandExecutorIn creates an executor running in dir with a timeout.
func NewCommandExecutorIn(dir string, timeout time.Duration) *CommandExecutor {
	return &CommandExecutor{Dir: dir, Timeout: timeout}
}

// Run executes the given command and returns its result.
func (e *CommandExecutor) Run(command string, args ...string) (*ExecutionResult, error) {
	return e.RunContext(context.Background(), command, args...)
}

// RunContext is Run bound to ctx. A non-zero exit status is reported through
// ExitCode, not as an error. A timeout is reported through TimedOut.
func (e *CommandExecutor) RunContext(ctx context.Context, command string, args ...string) (*ExecutionResult, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = e.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	result := &ExecutionResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		return result, nil
	}

	// cmd.Run() returns an error for non-zero exit codes, but we handle
	// the exit code explicitly. So, we only return other kinds of errors
	// (e.g., command not found).
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
	}

	return result, nil
}

// ExpandArgs returns args with every "{key}" replaced by vars[key].
func ExpandArgs(args []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}
