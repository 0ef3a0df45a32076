// SPDX-License-Identifier: AGPL-3.0-or-later
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/forgotten-org/forgerun/internal/events"
	"github.com/forgotten-org/forgerun/internal/executor"
	"github.com/forgotten-org/forgerun/internal/report"
	"github.com/kballard/go-shellquote"
)

// ErrInterrupted is returned when the run context is cancelled, usually by
// SIGINT. It is not a failure.
var ErrInterrupted = errors.New("pipeline interrupted")

// StageError reports a fatal stage failure.
type StageError struct {
	Result StageResult
}

func (e *StageError) Error() string {
	if e.Result.Reason == "" {
		return fmt.Sprintf("stage %s failed with exit code %d", e.Result.Stage, e.Result.ExitCode)
	}
	return fmt.Sprintf("stage %s failed with exit code %d: %s", e.Result.Stage, e.Result.ExitCode, e.Result.Reason)
}

func (e *StageError) Unwrap() error { return e.Result.Err }

// ExitCode is the code the process should exit with. It is never zero.
func (e *StageError) ExitCode() int {
	if e.Result.ExitCode <= 0 {
		return 1
	}
	return e.Result.ExitCode
}

// Summary lists the results of every stage the run reached.
type Summary struct {
	RunID   string        `json:"run_id"`
	Results []StageResult `json:"results"`
}

// Result returns the outcome of name, if the run reached it.
func (s *Summary) Result(name StageName) (StageResult, bool) {
	for _, r := range s.Results {
		if r.Stage == name {
			return r, true
		}
	}
	return StageResult{}, false
}

// Orchestrator runs the stages one after another. It owns no state between
// runs.
type Orchestrator struct {
	Runner  executor.Runner
	Console *report.Console
	Sink    events.Sink
	Log     *slog.Logger
	CMake   CMake

	// Stdout and Stderr receive child output; nil means the process streams.
	Stdout io.Writer
	Stderr io.Writer
	// Env is added to the environment of every child.
	Env []string

	stages []Stage
}

type runState struct {
	id      string
	bc      *BuildContext
	sink    events.Sink
	console *report.Console
}

func (o *Orchestrator) cmake() CMake { return o.CMake }

func (o *Orchestrator) logger() *slog.Logger {
	if o.Log == nil {
		return slog.Default()
	}
	return o.Log
}

// Run drives bc through the pipeline. It returns a *StageError when a fatal
// stage fails and ErrInterrupted when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, bc *BuildContext) (*Summary, error) {
	if o.Runner == nil {
		return nil, errors.New("pipeline: runner required")
	}
	console := o.Console
	if console == nil {
		console = report.NewConsole(nil, nil)
	}
	stages := o.stages
	if stages == nil {
		stages = Stages()
	}

	run := &runState{id: events.GenerateRunID(), bc: bc, sink: events.NewCompositeSink(o.Sink), console: console}
	summary := &Summary{RunID: run.id}
	log := o.logger().With("run_id", run.id)
	run.emitRunStart(bc.BuildDir)

	for _, stage := range stages {
		if ctx.Err() != nil {
			return summary, o.interrupted(run)
		}

		ok, why := stage.Guard(bc)
		if !ok {
			log.Debug("stage skipped", "stage", stage.Name, "reason", why)
			run.emitStageSkip(stage.Name, why)
			summary.Results = append(summary.Results, StageResult{Stage: stage.Name, Status: StatusSkipped, Reason: why})
			continue
		}

		log.Debug("stage started", "stage", stage.Name, "reason", why)
		run.emitStageStart(stage.Name)
		res := stage.Exec(ctx, o, run)
		res.Stage = stage.Name
		run.emitStageFinish(stage.Name, res.ExitCode, res.Err)
		summary.Results = append(summary.Results, res)

		// A child killed by the same Ctrl-C may exit before ctx is cancelled.
		if ctx.Err() != nil || res.Interrupted {
			return summary, o.interrupted(run)
		}
		if res.Status != StatusFailed {
			log.Debug("stage finished", "stage", stage.Name, "duration", res.Duration)
			continue
		}
		if !stage.Fatal {
			log.Warn("stage failed, continuing", "stage", stage.Name, "exit_code", res.ExitCode, "reason", res.Reason)
			continue
		}

		console.StageFailed(string(stage.Name), res.ExitCode, res.Reason)
		stageErr := &StageError{Result: res}
		run.emitRunFinish("failed", stageErr.ExitCode(), stageErr)
		return summary, stageErr
	}

	run.emitRunFinish("succeeded", 0, nil)
	return summary, nil
}

func (o *Orchestrator) interrupted(run *runState) error {
	run.console.Info("Exiting.")
	run.emitRunFinish("interrupted", 0, ErrInterrupted)
	return ErrInterrupted
}

// exec runs one child command for stage and converts its outcome.
func (o *Orchestrator) exec(ctx context.Context, run *runState, stage StageName, dir string, argv []string) StageResult {
	o.logger().Debug("exec", "stage", stage, "dir", dir, "cmd", shellquote.Join(argv...))

	stdout := events.NewStageWriter(run.sink, run.id, string(stage), "stdout", orStd(o.Stdout, os.Stdout))
	stderr := events.NewStageWriter(run.sink, run.id, string(stage), "stderr", orStd(o.Stderr, os.Stderr))
	cmd := executor.Command{Dir: dir, Argv: argv, Env: o.Env, Stdout: stdout, Stderr: stderr}
	res := o.Runner.Run(ctx, cmd)
	stdout.Flush()
	stderr.Flush()

	out := StageResult{Stage: stage, Status: StatusSucceeded, Duration: res.Duration}
	if res.OK() {
		return out
	}
	out.Status = StatusFailed
	out.ExitCode = res.ExitCode
	out.Err = res.Err
	out.Interrupted = res.Interrupted
	out.Reason = failureReason(res)
	return out
}

func failureReason(res executor.Result) string {
	var spawn *executor.SpawnError
	if errors.As(res.Err, &spawn) {
		return spawn.Error()
	}
	if tail := strings.TrimSpace(res.Stderr); tail != "" {
		return tail
	}
	if res.Err != nil {
		return res.Err.Error()
	}
	return fmt.Sprintf("exit code %d", res.ExitCode)
}

func orStd(w, std io.Writer) io.Writer {
	if w == nil {
		return std
	}
	return w
}

func (r *runState) emitRunStart(target string) {
	if r.sink != nil {
		r.sink.EmitRunStart(r.id, target)
	}
}

func (r *runState) emitRunFinish(status string, exitCode int, err error) {
	if r.sink != nil {
		r.sink.EmitRunFinish(r.id, status, exitCode, err)
	}
}

func (r *runState) emitStageStart(stage StageName) {
	if r.sink != nil {
		r.sink.EmitStageStart(r.id, string(stage))
	}
}

func (r *runState) emitStageSkip(stage StageName, reason string) {
	if r.sink != nil {
		r.sink.EmitStageSkip(r.id, string(stage), reason)
	}
}

func (r *runState) emitStageFinish(stage StageName, exitCode int, err error) {
	if r.sink != nil {
		r.sink.EmitStageFinish(r.id, string(stage), exitCode, err)
	}
}
