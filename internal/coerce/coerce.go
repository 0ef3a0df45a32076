// SPDX-License-Identifier: AGPL-3.0-or-later
package coerce

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/forgotten-org/forgerun/internal/types"
)

// DefaultCoercionError reports a schema default that none of its type's
// constructors accept. It is a schema authoring bug.
type DefaultCoercionError struct {
	Name  string
	Type  string
	Value string
	Err   error
}

func (e *DefaultCoercionError) Error() string {
	return fmt.Sprintf("option %s: cannot build %s default from %q: %v", e.Name, e.Type, e.Value, e.Err)
}

func (e *DefaultCoercionError) Unwrap() error { return e.Err }

type constructor struct {
	kind Kind
	// literal interprets the raw text as a source literal of the type.
	literal func(raw string) (Value, error)
	// fromString interprets the raw text as the contents of a quoted string.
	fromString func(s string) (Value, error)
}

var constructors = map[string]constructor{
	"int":     intConstructor,
	"integer": intConstructor,
	"float":   floatConstructor,
	"str":     strConstructor,
	"string":  strConstructor,
}

var boolTags = map[string]struct{}{
	"bool":    {},
	"boolean": {},
}

var intConstructor = constructor{
	kind: KindInt,
	literal: func(raw string) (Value, error) {
		if s, err := strconv.Unquote(raw); err == nil {
			return parseIntString(s)
		}
		base := 0
		if legacyOctal(raw) {
			base = 10
		}
		i, err := strconv.ParseInt(raw, base, 64)
		if err == nil {
			return IntValue(i), nil
		}
		// A float literal converts by truncation toward zero.
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) >= math.MaxInt64 {
			return Value{}, err
		}
		return IntValue(int64(f)), nil
	},
	fromString: parseIntString,
}

var floatConstructor = constructor{
	kind: KindFloat,
	literal: func(raw string) (Value, error) {
		if s, err := strconv.Unquote(raw); err == nil {
			return parseFloatString(s)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	},
	fromString: parseFloatString,
}

var strConstructor = constructor{
	kind: KindString,
	literal: func(raw string) (Value, error) {
		if s, err := strconv.Unquote(raw); err == nil {
			return StringValue(s), nil
		}
		return StringValue(raw), nil
	},
	fromString: func(s string) (Value, error) { return StringValue(s), nil },
}

func parseIntString(s string) (Value, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return Value{}, err
	}
	return IntValue(i), nil
}

// legacyOctal matches literals like 0755 that only a base-10 reading accepts.
func legacyOctal(raw string) bool {
	return len(raw) > 1 && raw[0] == '0' && raw[1] >= '0' && raw[1] <= '9'
}

func parseFloatString(s string) (Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Value{}, err
	}
	return FloatValue(f), nil
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// IsBool reports whether tag names the boolean type.
func IsBool(tag string) bool {
	_, ok := boolTags[normalizeTag(tag)]
	return ok
}

// Known reports whether tag has a constructor. Unknown tags fall back to strings.
func Known(tag string) bool {
	if IsBool(tag) {
		return true
	}
	_, ok := constructors[normalizeTag(tag)]
	return ok
}

// KindOf returns the value kind a tag produces.
func KindOf(tag string) Kind {
	if IsBool(tag) {
		return KindBool
	}
	if c, ok := constructors[normalizeTag(tag)]; ok {
		return c.kind
	}
	return KindString
}

// Default materialises the default of desc. Boolean defaults are always false;
// presence on the command line is what turns them on.
func Default(desc types.OptionDescriptor) (Value, error) {
	if desc.Default == nil {
		return Value{}, fmt.Errorf("option %s has no default", desc.Name)
	}
	tag := desc.Default.Type
	raw := desc.Default.Value.String()
	if IsBool(tag) {
		return BoolValue(false), nil
	}
	c, ok := constructors[normalizeTag(tag)]
	if !ok {
		return StringValue(raw), nil
	}
	if v, err := c.literal(raw); err == nil {
		return v, nil
	}
	v, err := c.fromString(raw)
	if err != nil {
		return Value{}, &DefaultCoercionError{Name: desc.Name, Type: tag, Value: raw, Err: err}
	}
	return v, nil
}

// Parse converts a command-line supplied string into a value of the tag's kind.
func Parse(tag, s string) (Value, error) {
	switch KindOf(tag) {
	case KindBool:
		return BoolValue(true), nil
	case KindInt:
		return parseIntString(s)
	case KindFloat:
		return parseFloatString(s)
	default:
		return StringValue(s), nil
	}
}
