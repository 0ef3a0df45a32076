// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/forgotten-org/forgerun/internal/rundb"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
		logsOf string
	)
	c := &cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := rundb.Open(ctx, rundb.Options{DataDir: a.settings.DataDir})
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if logsOf != "" {
				if _, err := db.GetRun(ctx, logsOf); err != nil {
					return fmt.Errorf("run %s: %w", logsOf, err)
				}
				return db.ForEachLog(ctx, logsOf, 0, func(l rundb.LogLine) error {
					if asJSON {
						return json.NewEncoder(out).Encode(l)
					}
					_, err := fmt.Fprintf(out, "[%s/%s] %s\n", l.Stage, l.Channel, l.Message)
					return err
				})
			}

			runs, err := db.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}

			if len(runs) == 0 {
				fmt.Fprintln(out, "(no runs recorded)")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tEXIT\tDURATION\tTARGET")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					shortID(r.ID), humanize.Time(r.StartedAt), r.Status, r.ExitCode, runDuration(r), r.Target)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if stats, err := db.Stats(ctx); err == nil {
				fmt.Fprintf(out, "\n%s runs, %s of %s used (%s)\n",
					humanize.Comma(stats.Runs),
					humanize.Bytes(uint64(stats.BytesUsed)),
					humanize.Bytes(uint64(stats.MaxBytes)),
					db.Path())
			}
			return nil
		},
	}
	c.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	c.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	c.Flags().StringVar(&logsOf, "logs", "", "Print the captured output of a run")
	return c
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(r rundb.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}
