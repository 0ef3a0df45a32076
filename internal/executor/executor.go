// SPDX-License-Identifier: AGPL-3.0-or-later
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

const defaultTailLines = 20

// Command is one child process invocation. Dir is handed to the child as its
// working directory; the orchestrator's own working directory never changes.
type Command struct {
	Dir    string
	Argv   []string
	Env    []string // KEY=VALUE entries layered over the parent environment
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of a child process.
type Result struct {
	ExitCode int
	Duration time.Duration
	// Stderr holds the last lines the child wrote to standard error.
	Stderr string
	Err    error
	// Interrupted is set when the child ended because of SIGINT or SIGTERM,
	// or because ctx was cancelled.
	Interrupted bool
}

// OK reports whether the child ran and exited with status zero.
func (r Result) OK() bool { return r.Err == nil && r.ExitCode == 0 }

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// SpawnError means the child process could not be started at all.
type SpawnError struct {
	Name string
	Code int
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ProcRunner runs commands as real child processes and blocks until they exit.
type ProcRunner struct {
	// TailLines bounds how much stderr is kept for failure reports.
	TailLines int
}

func NewProcRunner() *ProcRunner {
	return &ProcRunner{TailLines: defaultTailLines}
}

func (r *ProcRunner) Run(ctx context.Context, c Command) Result {
	if len(c.Argv) == 0 {
		return Result{ExitCode: 1, Err: &SpawnError{Name: "<empty>", Code: 1, Err: errors.New("empty command line")}}
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		env := os.Environ()
		for _, kv := range c.Env {
			k, v, _ := strings.Cut(kv, "=")
			env = upsertEnv(env, k, v)
		}
		cmd.Env = env
	}

	stdoutSink := c.Stdout
	if stdoutSink == nil {
		stdoutSink = os.Stdout
	}
	stderrSink := c.Stderr
	if stderrSink == nil {
		stderrSink = os.Stderr
	}
	tailLines := r.TailLines
	if tailLines <= 0 {
		tailLines = defaultTailLines
	}
	tail := newTailWriter(tailLines)
	cmd.Stdout = stdoutSink
	cmd.Stderr = io.MultiWriter(stderrSink, tail)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{ExitCode: 1, Duration: time.Since(start), Err: ctxErr, Interrupted: true}
		}
		code := spawnExitCode(err)
		return Result{ExitCode: code, Duration: time.Since(start), Err: &SpawnError{Name: c.Argv[0], Code: code, Err: err}}
	}
	err := cmd.Wait()
	result := Result{Duration: time.Since(start), Stderr: tail.String()}
	if err == nil {
		return result
	}

	result.Err = err
	result.Interrupted = ctx.Err() != nil
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if interruptedBy(exitErr.ProcessState) {
			result.Interrupted = true
		}
	}
	if result.ExitCode <= 0 {
		// killed by a signal or the wait failed
		result.ExitCode = 1
	}
	return result
}

// interruptedBy reports whether the child was stopped by SIGINT or SIGTERM,
// either directly or by a shell exiting with 128+signal.
func interruptedBy(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		return sig == syscall.SIGINT || sig == syscall.SIGTERM
	}
	switch state.ExitCode() {
	case 128 + int(syscall.SIGINT), 128 + int(syscall.SIGTERM):
		return true
	}
	return false
}

func spawnExitCode(err error) int {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return 127
	case errors.Is(err, fs.ErrPermission):
		return 126
	default:
		return 1
	}
}

func upsertEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
