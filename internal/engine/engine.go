// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/forgotten-org/forgerun/internal/argsloader"
	"github.com/forgotten-org/forgerun/internal/coerce"
	"github.com/forgotten-org/forgerun/internal/types"
	"github.com/spf13/pflag"
)

// MissingRequiredOptionError is returned when an option without a default is
// not supplied.
type MissingRequiredOptionError struct {
	Name string
}

func (e *MissingRequiredOptionError) Error() string {
	return fmt.Sprintf("missing required option %s", e.Name)
}

// ArgumentParseError carries the command-line token that could not be parsed.
type ArgumentParseError struct {
	Token string
	Err   error
}

func (e *ArgumentParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("parse arguments: %v", e.Err)
	}
	return fmt.Sprintf("invalid argument %q: %v", e.Token, e.Err)
}

func (e *ArgumentParseError) Unwrap() error { return e.Err }

// Parse registers descs on a fresh flag set, parses argv against it and binds
// the result. pflag.ErrHelp is returned untouched for -h/--help.
func Parse(descs []types.OptionDescriptor, argv []string) (*Configuration, error) {
	fs := pflag.NewFlagSet("forgerun", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := argsloader.AttachFlags(fs, descs); err != nil {
		return nil, err
	}
	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, &ArgumentParseError{Token: offendingToken(fs, argv), Err: err}
	}
	return Bind(fs, fs.Args(), descs)
}

// Bind resolves every descriptor against parsed flags and positional
// arguments. No configuration is returned when any option fails.
func Bind(fs *pflag.FlagSet, positionals []string, descs []types.OptionDescriptor) (*Configuration, error) {
	cfg := &Configuration{values: make(map[string]coerce.Value, len(descs))}
	next := 0

	for _, d := range descs {
		var (
			v   coerce.Value
			err error
		)
		if d.Positional() {
			v, err = bindPositional(d, positionals, &next)
		} else {
			v, err = bindFlag(fs, d)
		}
		if err != nil {
			return nil, err
		}
		cfg.order = append(cfg.order, d.Name)
		cfg.values[d.Name] = v
	}

	if next < len(positionals) {
		return nil, &ArgumentParseError{Token: positionals[next], Err: errors.New("unexpected positional argument")}
	}
	return cfg, nil
}

func bindPositional(d types.OptionDescriptor, positionals []string, next *int) (coerce.Value, error) {
	if *next < len(positionals) {
		tok := positionals[*next]
		*next++
		tag := "str"
		if d.Default != nil {
			tag = d.Default.Type
		}
		v, err := coerce.Parse(tag, tok)
		if err != nil {
			return coerce.Value{}, &ArgumentParseError{Token: tok, Err: fmt.Errorf("%s: %w", d.Name, err)}
		}
		return v, nil
	}
	if d.Required() {
		return coerce.Value{}, &MissingRequiredOptionError{Name: d.Name}
	}
	return coerce.Default(d)
}

func bindFlag(fs *pflag.FlagSet, d types.OptionDescriptor) (coerce.Value, error) {
	name := d.Name
	f := fs.Lookup(name)
	if f == nil {
		return coerce.Value{}, fmt.Errorf("option %s not registered", name)
	}
	if d.Required() {
		if !f.Changed {
			return coerce.Value{}, &MissingRequiredOptionError{Name: name}
		}
		return coerce.StringValue(f.Value.String()), nil
	}

	switch coerce.KindOf(d.Default.Type) {
	case coerce.KindBool:
		return coerce.BoolValue(f.Changed), nil
	case coerce.KindInt:
		i, err := fs.GetInt64(name)
		if err != nil {
			return coerce.Value{}, err
		}
		return coerce.IntValue(i), nil
	case coerce.KindFloat:
		fl, err := fs.GetFloat64(name)
		if err != nil {
			return coerce.Value{}, err
		}
		return coerce.FloatValue(fl), nil
	default:
		s, err := fs.GetString(name)
		if err != nil {
			return coerce.Value{}, err
		}
		return coerce.StringValue(s), nil
	}
}

// offendingToken finds the argv entry pflag rejected: an unknown flag, a flag
// missing its value, or a value its flag type cannot hold.
func offendingToken(fs *pflag.FlagSet, argv []string) string {
	for i := 0; i < len(argv); i++ {
		tok := argv[i]
		if tok == "--" {
			break
		}
		if !strings.HasPrefix(tok, "-") || tok == "-" {
			continue
		}

		var f *pflag.Flag
		val, hasVal := "", false
		if strings.HasPrefix(tok, "--") {
			name := tok[2:]
			if eq := strings.IndexByte(name, '='); eq >= 0 {
				name, val, hasVal = name[:eq], name[eq+1:], true
			}
			f = fs.Lookup(name)
		} else {
			f = fs.ShorthandLookup(tok[1:2])
			if len(tok) > 2 {
				val, hasVal = strings.TrimPrefix(tok[2:], "="), true
			}
		}
		if f == nil {
			return tok
		}
		if f.NoOptDefVal != "" {
			continue
		}

		valTok := tok
		if !hasVal {
			if i+1 >= len(argv) {
				return tok
			}
			i++
			val, valTok = argv[i], argv[i]
		}
		var err error
		switch f.Value.Type() {
		case "int64":
			_, err = strconv.ParseInt(val, 0, 64)
		case "float64":
			_, err = strconv.ParseFloat(val, 64)
		}
		if err != nil {
			return valTok
		}
	}
	return ""
}
