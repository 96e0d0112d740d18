package tactile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"codesmith/internal/logging"
)

// ErrInterpreterNotFound is returned when the configured Python binary cannot be found on PATH.
var ErrInterpreterNotFound = errors.New("python interpreter not found")

// RunError reports a program that ran but did not exit cleanly.
// Message is the last non-empty line of stderr, which for an uncaught
// Python exception is "ExceptionType: message".
type RunError struct {
	ExitCode int
	Message  string
	Stderr   string
	Killed   bool
}

func (e *RunError) Error() string {
	return e.Message
}

// PythonRunner executes Python source through an Executor.
type PythonRunner struct {
	executor Executor
	python   string
	timeout  time.Duration
	tempDir  string
}

// RunnerOption configures a PythonRunner.
type RunnerOption func(*PythonRunner)

// WithTimeout sets the per-run wall clock limit.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *PythonRunner) { r.timeout = d }
}

// WithTempDir sets where source files are written before running.
func WithTempDir(dir string) RunnerOption {
	return func(r *PythonRunner) { r.tempDir = dir }
}

// NewPythonRunner creates a runner that invokes python via executor.
func NewPythonRunner(executor Executor, python string, opts ...RunnerOption) *PythonRunner {
	if python == "" {
		python = "python3"
	}
	r := &PythonRunner{executor: executor, python: python}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Python returns the configured interpreter.
func (r *PythonRunner) Python() string {
	return r.python
}

// Run writes source to a temporary file and executes it. A nil error means
// the program exited with status 0. A program that raised or exited non-zero
// yields a *RunError; infrastructure failures are returned as plain errors.
func (r *PythonRunner) Run(ctx context.Context, source string) (*ExecutionResult, error) {
	binary, err := exec.LookPath(r.python)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInterpreterNotFound, r.python)
	}

	f, err := os.CreateTemp(r.tempDir, "codesmith-*.py")
	if err != nil {
		return nil, fmt.Errorf("failed to create source file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(source); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write source file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close source file: %w", err)
	}

	cmd := Command{
		Binary:           binary,
		Arguments:        []string{filepath.Base(path)},
		WorkingDirectory: filepath.Dir(path),
	}
	if r.timeout > 0 {
		cmd.Limits = &ResourceLimits{TimeoutMs: r.timeout.Milliseconds()}
	}

	logging.TactileDebug("Running %d bytes of python with %s", len(source), binary)
	result, err := r.executor.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, fmt.Errorf("failed to run %s: %s", r.python, result.Error)
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	if result.Passed() {
		return result, nil
	}

	runErr := &RunError{
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr,
		Killed:   result.Killed,
	}
	switch {
	case result.Killed:
		runErr.Message = result.KillReason
	default:
		runErr.Message = lastLine(result.StderrTail)
		if runErr.Message == "" {
			runErr.Message = lastLine(result.Stderr)
		}
		if runErr.Message == "" {
			runErr.Message = fmt.Sprintf("exit status %d", result.ExitCode)
		}
	}
	return result, runErr
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
