// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"encoding/json"

	"github.com/forgotten-org/forgerun/internal/coerce"
)

// Configuration holds the resolved value of every schema option for one
// invocation. It is never modified after Bind returns it.
type Configuration struct {
	order  []string
	values map[string]coerce.Value
}

// Get returns the value bound to name.
func (c *Configuration) Get(name string) (coerce.Value, bool) {
	if c == nil {
		return coerce.Value{}, false
	}
	v, ok := c.values[name]
	return v, ok
}

// Has reports whether the schema declared name.
func (c *Configuration) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// String returns the textual form of name, or fallback when it is not declared.
func (c *Configuration) String(name, fallback string) string {
	if v, ok := c.Get(name); ok {
		return v.String()
	}
	return fallback
}

// Bool reports whether name is a set presence flag. Undeclared options are false.
func (c *Configuration) Bool(name string) bool {
	v, ok := c.Get(name)
	if !ok {
		return false
	}
	if v.Kind() == coerce.KindBool {
		return v.Bool()
	}
	return v.String() == "true"
}

// Names lists option names in schema order.
func (c *Configuration) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// Map returns the values as plain Go values.
func (c *Configuration) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(c.Names()))
	for _, name := range c.Names() {
		out[name] = c.values[name].Interface()
	}
	return out
}

func (c *Configuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}
