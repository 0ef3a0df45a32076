// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline drives a build target through its stages:
// clean, configure, build, compile-db, install and run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type StageName string

const (
	StageClean     StageName = "clean"
	StageConfigure StageName = "configure"
	StageBuild     StageName = "build"
	StageCompileDB StageName = "compile-db"
	StageInstall   StageName = "install"
	StageRun       StageName = "run"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageResult records the outcome of one stage.
type StageResult struct {
	Stage    StageName     `json:"stage"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	// Interrupted marks a child stopped by SIGINT, SIGTERM or cancellation.
	Interrupted bool `json:"-"`
}

// Guard decides whether a stage runs for bc. The string explains the decision.
type Guard func(bc *BuildContext) (bool, string)

// Stage is one state of the pipeline. A failed fatal stage stops the run.
type Stage struct {
	Name  StageName
	Fatal bool
	Guard Guard
	Exec  func(ctx context.Context, o *Orchestrator, run *runState) StageResult
}

// Stages returns the pipeline in execution order.
func Stages() []Stage {
	return []Stage{
		{Name: StageClean, Fatal: true, Guard: ShouldClean, Exec: execClean},
		{Name: StageConfigure, Fatal: true, Guard: ShouldConfigure, Exec: execConfigure},
		{Name: StageBuild, Fatal: true, Guard: always, Exec: execBuild},
		{Name: StageCompileDB, Fatal: false, Guard: always, Exec: execCompileDB},
		{Name: StageInstall, Fatal: false, Guard: ShouldInstall, Exec: execInstall},
		{Name: StageRun, Fatal: true, Guard: always, Exec: execRun},
	}
}

func ShouldClean(bc *BuildContext) (bool, string) {
	if bc.Clean {
		return true, "clean requested"
	}
	return false, "clean not requested"
}

// ShouldConfigure regenerates the build tree only when it is missing or was
// explicitly invalidated.
func ShouldConfigure(bc *BuildContext) (bool, string) {
	switch {
	case bc.Clean:
		return true, "clean requested"
	case bc.ForceRegenerate:
		return true, "regeneration forced"
	}
	if info, err := os.Stat(bc.BuildDir); err != nil || !info.IsDir() {
		return true, "build directory missing"
	}
	return false, "build directory exists"
}

func ShouldInstall(bc *BuildContext) (bool, string) {
	if bc.Install {
		return true, "install requested"
	}
	return false, "install not requested"
}

func always(*BuildContext) (bool, string) { return true, "" }

func execClean(ctx context.Context, o *Orchestrator, run *runState) StageResult {
	bc := run.bc
	res := o.exec(ctx, run, StageClean, bc.Root, o.cmake().Clean(bc))
	if res.Status == StatusSucceeded {
		run.console.Success("Cleaned %s.", bc.BuildDir)
	}
	return res
}

func execConfigure(ctx context.Context, o *Orchestrator, run *runState) StageResult {
	bc := run.bc
	run.console.Info("Configuring %s (%s, %s)...", bc.AppName, bc.Generator, bc.BuildType)
	res := o.exec(ctx, run, StageConfigure, bc.Root, o.cmake().Configure(bc))
	if res.Status == StatusSucceeded {
		run.console.Success("Configured %s.", bc.AppName)
	}
	return res
}

func execBuild(ctx context.Context, o *Orchestrator, run *runState) StageResult {
	bc := run.bc
	run.console.Info("Building %s...", bc.AppName)
	res := o.exec(ctx, run, StageBuild, bc.BuildDir, o.cmake().Build(bc))
	if res.Status == StatusSucceeded {
		run.console.Success("Built %s.", bc.AppName)
	}
	return res
}

func execCompileDB(ctx context.Context, o *Orchestrator, run *runState) StageResult {
	bc := run.bc
	res := o.exec(ctx, run, StageCompileDB, bc.Root, stageCommands(StageCompileDB, o.cmake(), bc)[0])
	if res.Status != StatusSucceeded {
		run.console.Info("Could not link compile_commands.json into %s.", bc.Root)
	}
	return res
}

// execInstall copies the resources and the executable. Each step is attempted
// even when an earlier one failed.
func execInstall(ctx context.Context, o *Orchestrator, run *runState) StageResult {
	bc := run.bc
	start := time.Now()
	result := StageResult{Stage: StageInstall, Status: StatusSucceeded}
	fail := func(r StageResult, what string) {
		if r.Interrupted {
			result.Interrupted = true
			return
		}
		run.console.Failure("Could not install %s: %s", what, r.Reason)
		if result.Status == StatusSucceeded {
			result.Status = StatusFailed
			result.ExitCode = r.ExitCode
			result.Reason = r.Reason
			result.Err = r.Err
		}
	}

	if err := os.MkdirAll(bc.InstallPath, 0o755); err != nil {
		fail(StageResult{ExitCode: 1, Reason: err.Error(), Err: err}, bc.InstallPath)
		result.Duration = time.Since(start)
		return result
	}

	cmds := stageCommands(StageInstall, o.cmake(), bc)
	resources := o.exec(ctx, run, StageInstall, bc.Root, cmds[0])
	if resources.Status != StatusSucceeded {
		fail(resources, "resources")
	}
	if ctx.Err() == nil {
		exe := o.exec(ctx, run, StageInstall, bc.Root, cmds[1])
		if exe.Status != StatusSucceeded {
			fail(exe, bc.Executable())
		}
	}

	result.Duration = time.Since(start)
	if result.Status == StatusSucceeded {
		run.console.Success("Installed %s to %s.", bc.AppName, bc.InstallPath)
	}
	return result
}

func execRun(ctx context.Context, o *Orchestrator, run *runState) StageResult {
	bc := run.bc
	run.console.Info("Running %s...", bc.AppName)
	res := o.exec(ctx, run, StageRun, bc.AppDir, stageCommands(StageRun, o.cmake(), bc)[0])
	if res.Status == StatusSucceeded {
		run.console.Success("%s exited.", bc.AppName)
	}
	return res
}

// Decision is the planned outcome of one stage.
type Decision struct {
	Stage    StageName  `json:"stage"`
	Run      bool       `json:"run"`
	Fatal    bool       `json:"fatal"`
	Reason   string     `json:"reason,omitempty"`
	Commands [][]string `json:"commands,omitempty"`
}

// Plan evaluates every guard against bc without running anything. Stages that
// would run carry the command lines they would spawn.
func Plan(bc *BuildContext, c CMake) []Decision {
	stages := Stages()
	out := make([]Decision, 0, len(stages))
	for _, s := range stages {
		ok, why := s.Guard(bc)
		d := Decision{Stage: s.Name, Run: ok, Fatal: s.Fatal, Reason: why}
		if ok {
			d.Commands = stageCommands(s.Name, c, bc)
		}
		out = append(out, d)
	}
	return out
}

func stageCommands(name StageName, c CMake, bc *BuildContext) [][]string {
	switch name {
	case StageClean:
		return [][]string{c.Clean(bc)}
	case StageConfigure:
		return [][]string{c.Configure(bc)}
	case StageBuild:
		return [][]string{c.Build(bc)}
	case StageCompileDB:
		return [][]string{c.Symlink(filepath.Join(bc.BuildDir, "compile_commands.json"), filepath.Join(bc.Root, "compile_commands.json"))}
	case StageInstall:
		return [][]string{
			c.CopyDir(filepath.Join(bc.AppBuildDir, "resources"), filepath.Join(bc.InstallPath, "resources")),
			c.CopyFile(filepath.Join(bc.AppDir, bc.Executable()), bc.InstallPath),
		}
	case StageRun:
		return [][]string{append([]string{filepath.Join(bc.AppDir, bc.Executable())}, bc.RunArgs...)}
	}
	return nil
}

func (d Decision) String() string {
	verb := "skip"
	if d.Run {
		verb = "run"
	}
	if d.Reason == "" {
		return fmt.Sprintf("%-10s %s", d.Stage, verb)
	}
	return fmt.Sprintf("%-10s %s (%s)", d.Stage, verb, d.Reason)
}
