// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Option kinds as they appear in cli_defaults.yml. Optional is historical
// naming for a positional argument; everything that is not positional is
// registered as a --flag.
const (
	KindOptional   = "Optional"
	KindPositional = "Positional"
	KindFlag       = "Flag"
)

// OptionDescriptor is one entry of the option schema.
type OptionDescriptor struct {
	Name        string       `yaml:"name" json:"name"`
	Kind        string       `yaml:"type" json:"type"`
	Default     *DefaultSpec `yaml:"default,omitempty" json:"default,omitempty"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
}

// Positional reports whether the option is bound by position instead of by --name.
func (d OptionDescriptor) Positional() bool {
	switch strings.TrimSpace(d.Kind) {
	case KindOptional, KindPositional:
		return true
	}
	return false
}

// Required reports whether the option has no default and must be supplied.
func (d OptionDescriptor) Required() bool { return d.Default == nil }

// DefaultSpec describes how to materialise an option default.
type DefaultSpec struct {
	Type  string   `yaml:"type" json:"type"`
	Value RawValue `yaml:"value,omitempty" json:"value,omitempty"`
}

// RawValue keeps a YAML scalar verbatim, whatever type YAML would resolve it to,
// so 1280, Debug and "Unix Makefiles" all arrive as their literal text.
type RawValue string

func (v *RawValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: default value must be a scalar", node.Line)
	}
	*v = RawValue(node.Value)
	return nil
}

func (v RawValue) String() string { return string(v) }
