// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgotten-org/forgerun/internal/argsloader"
	"github.com/forgotten-org/forgerun/internal/engine"
	"github.com/forgotten-org/forgerun/internal/events"
	"github.com/forgotten-org/forgerun/internal/executor"
	"github.com/forgotten-org/forgerun/internal/pipeline"
	"github.com/forgotten-org/forgerun/internal/rundb"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRunCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   a.usageLine("run"),
		Short: "Clean, configure, build, install and launch the application",
		Long: `Runs the build pipeline for the selected build type. Options come from
the project's cli_defaults.yml; run "forgerun schema" to list them.`,
		// Options are parsed against the schema by the engine so that errors
		// carry the offending token.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.parseArgs(cmd, args)
			if err != nil || cfg == nil {
				return err
			}
			return a.runPipeline(cmd, cfg)
		},
	}
	a.attachHelpFlags(c)
	return c
}

// attachHelpFlags registers the schema options on c so help lists them.
func (a *app) attachHelpFlags(c *cobra.Command) {
	if a.schemaErr != nil {
		return
	}
	if err := argsloader.AttachFlags(c.Flags(), a.schema); err != nil {
		a.log.Debug("attach help flags", "error", err)
	}
}

// parseArgs binds args against the schema. It returns a nil configuration
// without error when help was requested.
func (a *app) parseArgs(cmd *cobra.Command, args []string) (*engine.Configuration, error) {
	if err := a.requireSchema(); err != nil {
		return nil, err
	}
	cfg, err := engine.Parse(a.schema, args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil, cmd.Help()
	}
	if err != nil {
		return nil, err
	}
	a.log.Debug("configuration", "options", cfg.Map())
	return cfg, nil
}

func (a *app) buildContext(cfg *engine.Configuration) (*pipeline.BuildContext, error) {
	return pipeline.NewBuildContext(a.settings.Root, cfg, pipeline.Options{
		AppName:       a.settings.AppName,
		Parallel:      a.settings.Parallel,
		ConfigureArgs: a.settings.ConfigureArgs,
	})
}

func (a *app) runPipeline(cmd *cobra.Command, cfg *engine.Configuration) error {
	bc, err := a.buildContext(cfg)
	if err != nil {
		return err
	}
	if err := a.publishSchema(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeSinks := a.openSinks(ctx, cmd.ErrOrStderr())
	defer closeSinks()

	orch := &pipeline.Orchestrator{
		Runner:  executor.NewProcRunner(),
		Console: a.console,
		Sink:    sink,
		Log:     a.log,
		Stdout:  cmd.OutOrStdout(),
		Stderr:  cmd.ErrOrStderr(),
	}
	summary, err := orch.Run(ctx, bc)
	if summary != nil {
		a.log.Debug("run finished", "run_id", summary.RunID, "stages", len(summary.Results))
	}
	return err
}

// openSinks wires the run history and the optional event stream. Neither is
// required for the pipeline to run.
func (a *app) openSinks(ctx context.Context, stderr io.Writer) (events.Sink, func()) {
	var (
		sinks   []events.Sink
		closers []func() error
	)

	if a.settings.History {
		db, err := rundb.Open(ctx, rundb.Options{DataDir: a.settings.DataDir})
		if err != nil {
			a.log.Warn("run history disabled", "error", err)
		} else {
			sinks = append(sinks, rundb.NewRecorder(db, a.log))
			closers = append(closers, db.Close)
		}
	}

	switch path := a.settings.EventsPath; path {
	case "":
	case "-":
		sinks = append(sinks, events.NewEmitter(stderr, true))
	default:
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			a.log.Warn("event log disabled", "path", path, "error", err)
			break
		}
		sinks = append(sinks, events.NewEmitter(f, true))
		closers = append(closers, f.Close)
	}

	return events.NewCompositeSink(sinks...), func() {
		for _, c := range closers {
			if err := c(); err != nil {
				a.log.Debug("close sink", "error", err)
			}
		}
	}
}
