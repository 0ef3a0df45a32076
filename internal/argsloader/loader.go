// SPDX-License-Identifier: AGPL-3.0-or-later
package argsloader

import (
	"fmt"

	"github.com/forgotten-org/forgerun/internal/coerce"
	"github.com/forgotten-org/forgerun/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AttachFlags registers a flag on fs for every flag-style descriptor.
// Positional descriptors are bound from the remaining arguments instead.
// Unknown default types register string flags.
func AttachFlags(fs *pflag.FlagSet, descs []types.OptionDescriptor) error {
	for _, d := range descs {
		if d.Positional() {
			continue
		}
		name := d.Name
		desc := d.Description

		if d.Required() {
			fs.String(name, "", desc)
			_ = cobra.MarkFlagRequired(fs, name)
			continue
		}

		tag := d.Default.Type
		if coerce.IsBool(tag) {
			f := fs.VarPF(&presenceValue{}, name, "", desc)
			f.NoOptDefVal = "true"
			continue
		}

		def, err := coerce.Default(d)
		if err != nil {
			return err
		}
		switch def.Kind() {
		case coerce.KindInt:
			fs.Int64(name, def.Int(), desc)
		case coerce.KindFloat:
			fs.Float64(name, def.Float(), desc)
		case coerce.KindString:
			fs.String(name, def.String(), desc)
		default:
			return fmt.Errorf("unsupported default kind %s for %s", def.Kind(), name)
		}
	}
	return nil
}

// presenceValue is a zero-argument flag: naming it on the command line turns it
// on, whatever value is attached with =.
type presenceValue struct {
	set bool
}

func (p *presenceValue) String() string {
	if p.set {
		return "true"
	}
	return "false"
}

func (p *presenceValue) Set(string) error {
	p.set = true
	return nil
}

func (p *presenceValue) Type() string { return "bool" }

func (p *presenceValue) IsBoolFlag() bool { return true }
