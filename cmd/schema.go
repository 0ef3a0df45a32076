// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/forgotten-org/forgerun/internal/coerce"
	"github.com/spf13/cobra"
)

type schemaEntry struct {
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Type        string      `json:"type"`
	Positional  bool        `json:"positional"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

func newSchemaCmd(a *app) *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "schema",
		Short: "List the options declared in cli_defaults.yml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSchema(); err != nil {
				return err
			}

			entries := make([]schemaEntry, 0, len(a.schema))
			for _, d := range a.schema {
				e := schemaEntry{
					Name:        d.Name,
					Kind:        d.Kind,
					Positional:  d.Positional(),
					Required:    d.Required(),
					Description: d.Description,
				}
				if !d.Required() {
					e.Type = coerce.KindOf(d.Default.Type).String()
					v, err := coerce.Default(d)
					if err != nil {
						return err
					}
					e.Default = v.Interface()
				}
				entries = append(entries, e)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			fmt.Fprintf(out, "Schema: %s\n\n", a.schemaPath)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tTYPE\tDEFAULT\tDESCRIPTION")
			for _, e := range entries {
				name, def := "--"+e.Name, fmt.Sprint(e.Default)
				if e.Positional {
					name = e.Name
				}
				if e.Required {
					def = "(required)"
				} else if e.Type == "bool" {
					def = "(presence)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, e.Kind, e.Type, def, e.Description)
			}
			return tw.Flush()
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "Output the schema as JSON")
	return c
}
