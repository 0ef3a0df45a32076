// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forgotten-org/forgerun/internal/coerce"
	"github.com/forgotten-org/forgerun/internal/pipeline"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
)

type planOutput struct {
	Target        string              `json:"target"`
	Configuration interface{}         `json:"configuration"`
	Stages        []pipeline.Decision `json:"stages"`
}

func newPlanCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   a.usageLine("plan"),
		Short: "Preview which stages would run (no execution)",
		Long: `Takes the same options as "run" and prints each stage, whether its guard
passes and the commands it would spawn. Add --json for machine output.`,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON := false
			if !a.schemaDeclares("json") {
				args, asJSON = stripFlag(args, "--json", a.valueFlags())
			}
			cfg, err := a.parseArgs(cmd, args)
			if err != nil || cfg == nil {
				return err
			}
			bc, err := a.buildContext(cfg)
			if err != nil {
				return err
			}
			decisions := pipeline.Plan(bc, pipeline.CMake{})

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(planOutput{Target: bc.BuildDir, Configuration: cfg, Stages: decisions})
			}

			fmt.Fprintf(out, "Target: %s\n", bc.BuildDir)
			fmt.Fprintln(out, "Options:")
			for _, name := range cfg.Names() {
				v, _ := cfg.Get(name)
				fmt.Fprintf(out, "  - %s: %s\n", name, v.String())
			}
			fmt.Fprintln(out, "Stages:")
			for _, d := range decisions {
				fmt.Fprintf(out, "  %s\n", d)
				for _, argv := range d.Commands {
					fmt.Fprintf(out, "      $ %s\n", shellquote.Join(argv...))
				}
			}
			return nil
		},
	}
	a.attachHelpFlags(c)
	if c.Flags().Lookup("json") == nil {
		c.Flags().Bool("json", false, "Output plan as JSON")
	}
	return c
}

// stripFlag removes a boolean flag the schema does not own. Arguments after
// "--" and values of the flags in takesValue are left alone.
func stripFlag(args []string, flag string, takesValue map[string]bool) ([]string, bool) {
	out := make([]string, 0, len(args))
	found := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if arg == flag {
			found = true
			continue
		}
		out = append(out, arg)
		if name := strings.TrimPrefix(arg, "--"); name != arg && takesValue[name] && i+1 < len(args) {
			i++
			out = append(out, args[i])
		}
	}
	return out, found
}

func (a *app) schemaDeclares(name string) bool {
	for _, d := range a.schema {
		if d.Name == name {
			return true
		}
	}
	return false
}

// valueFlags names the schema flags that consume the following argument.
func (a *app) valueFlags() map[string]bool {
	names := map[string]bool{}
	for _, d := range a.schema {
		if d.Positional() {
			continue
		}
		if d.Required() || !coerce.IsBool(d.Default.Type) {
			names[d.Name] = true
		}
	}
	return names
}
