// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgotten-org/forgerun/internal/coerce"
	"github.com/forgotten-org/forgerun/internal/paths"
	"github.com/forgotten-org/forgerun/internal/report"
	"github.com/forgotten-org/forgerun/internal/schemaloader"
	"github.com/forgotten-org/forgerun/internal/settings"
	"github.com/forgotten-org/forgerun/internal/types"
	"github.com/spf13/cobra"
)

// app carries what every command needs once startup has finished.
type app struct {
	settings   *settings.Settings
	log        *slog.Logger
	console    *report.Console
	schemaPath string
	schema     []types.OptionDescriptor
	schemaErr  error
}

func Execute() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}

// Main runs the CLI and returns the process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	console := report.NewConsole(stdout, stderr)

	root, err := settings.ResolveRoot()
	if err != nil {
		console.Failure("Cannot resolve project root: %v", err)
		return ExitFailure
	}
	st, err := settings.Load(root)
	if err != nil {
		console.Failure("%v", err)
		return ExitUsage
	}
	if st.DataDir != "" {
		paths.SetDataDirOverride(st.DataDir)
	}

	log := st.NewLogger(stderr)
	slog.SetDefault(log)

	a := &app{settings: st, log: log, console: console}
	a.loadSchema()

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err = rootCmd.ExecuteContext(context.Background())
	code := exitCode(err)
	if err != nil && code != ExitSuccess && !reported(err) {
		console.Failure("%v", err)
	}
	log.Debug("exit", "code", code, "error", err)
	return code
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "forgerun",
		Short:         "Configure, build and launch the Forgotten application",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newPlanCmd(a))
	rootCmd.AddCommand(newSchemaCmd(a))
	rootCmd.AddCommand(newHistoryCmd(a))
	rootCmd.AddCommand(NewCompletionCmd(rootCmd))
	return rootCmd
}

// loadSchema reads and validates the option schema. A failure is kept and
// returned by the commands that need options.
func (a *app) loadSchema() {
	a.schemaPath = schemaloader.Path(a.settings.Root, a.settings.SchemaPath)
	descs, err := schemaloader.Load(a.schemaPath)
	if err != nil {
		a.schemaErr = err
		return
	}
	for _, d := range descs {
		if d.Required() {
			continue
		}
		if !coerce.Known(d.Default.Type) {
			a.log.Warn("unknown default type, treating as string", "option", d.Name, "type", d.Default.Type)
		}
		if _, err := coerce.Default(d); err != nil {
			a.schemaErr = err
			return
		}
	}
	a.schema = descs
}

func (a *app) requireSchema() error {
	return a.schemaErr
}

// usageLine names the positional options after the command.
func (a *app) usageLine(name string) string {
	var parts []string
	for _, d := range a.schema {
		if d.Positional() {
			parts = append(parts, "["+d.Name+"]")
		}
	}
	parts = append(parts, "[flags]")
	return name + " " + strings.Join(parts, " ")
}

// publishSchema mirrors the schema into the application's resources.
func (a *app) publishSchema() error {
	dst := filepath.Join(a.settings.Root, a.settings.AppName, "resources", schemaloader.FileName)
	ok, err := schemaloader.Publish(a.schemaPath, dst)
	if err != nil {
		return fmt.Errorf("publish schema: %w", err)
	}
	if !ok {
		a.log.Debug("resources directory missing, schema not published", "dst", dst)
	}
	return nil
}

// reported reports errors the console has already printed.
func reported(err error) bool {
	var stageErr interface{ ExitCode() int }
	return errors.As(err, &stageErr)
}
