// SPDX-License-Identifier: AGPL-3.0-or-later
package pipeline

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/forgotten-org/forgerun/internal/engine"
)

// Option names the orchestrator reads from the parsed configuration.
const (
	OptBuildType       = "build_type"
	OptGenerator       = "generator"
	OptLinker          = "linker"
	OptOS              = "os"
	OptClean           = "clean"
	OptForceRegenerate = "force_regenerate"
	OptInstall         = "install"
	OptInstallPath     = "install_path"
)

// runArgOptions are forwarded to the launched application as --name=value.
var runArgOptions = []string{"width", "name", "height"}

const (
	defaultBuildType = "Debug"
	defaultGenerator = "Ninja"
)

// Options carries the settings that shape a BuildContext but do not come from
// the command line.
type Options struct {
	AppName       string
	Parallel      int
	ConfigureArgs []string
}

// BuildContext describes one pipeline target. It is built once per invocation
// and only read afterwards.
type BuildContext struct {
	Root      string
	BuildRoot string
	BuildDir  string

	BuildType string
	Generator string
	Linker    string
	TargetOS  string

	Clean           bool
	ForceRegenerate bool
	Install         bool
	InstallPath     string

	AppName     string
	AppBuildDir string
	AppDir      string
	RunArgs     []string

	Parallel      int
	ConfigureArgs []string
}

// NewBuildContext derives the pipeline target from the parsed configuration.
func NewBuildContext(root string, cfg *engine.Configuration, opts Options) (*BuildContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("build context: configuration required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("build context: %w", err)
	}

	bc := &BuildContext{
		Root:            absRoot,
		BuildType:       nonEmpty(cfg.String(OptBuildType, ""), defaultBuildType),
		Generator:       nonEmpty(cfg.String(OptGenerator, ""), defaultGenerator),
		Linker:          cfg.String(OptLinker, ""),
		TargetOS:        cfg.String(OptOS, ""),
		Clean:           cfg.Bool(OptClean),
		ForceRegenerate: cfg.Bool(OptForceRegenerate),
		Install:         cfg.Bool(OptInstall),
		AppName:         nonEmpty(opts.AppName, "ForgottenApp"),
		Parallel:        opts.Parallel,
		ConfigureArgs:   append([]string(nil), opts.ConfigureArgs...),
	}
	if bc.Parallel <= 0 {
		bc.Parallel = 1
	}

	bc.BuildRoot = filepath.Join(absRoot, "build-"+strings.ReplaceAll(bc.Generator, " ", ""))
	bc.BuildDir = filepath.Join(bc.BuildRoot, bc.BuildType)
	bc.AppBuildDir = filepath.Join(bc.BuildDir, bc.AppName)
	bc.AppDir = bc.AppBuildDir
	if multiConfig(bc.Generator) {
		bc.AppDir = filepath.Join(bc.AppDir, bc.BuildType)
	}

	bc.InstallPath = cfg.String(OptInstallPath, "")
	if bc.InstallPath == "" {
		bc.InstallPath = filepath.Join(absRoot, "install")
	} else if !filepath.IsAbs(bc.InstallPath) {
		bc.InstallPath = filepath.Join(absRoot, bc.InstallPath)
	}

	for _, name := range runArgOptions {
		if v, ok := cfg.Get(name); ok {
			bc.RunArgs = append(bc.RunArgs, fmt.Sprintf("--%s=%s", name, v.String()))
		}
	}
	return bc, nil
}

// Executable is the file name of the built application.
func (bc *BuildContext) Executable() string {
	if runtime.GOOS == "windows" {
		return bc.AppName + ".exe"
	}
	return bc.AppName
}

// multiConfig reports generators that put outputs in a per-configuration
// subdirectory. Only Ninja and the Makefile generators are single-config.
func multiConfig(generator string) bool {
	return generator != "Ninja" && !strings.HasSuffix(generator, "Makefiles")
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
