// SPDX-License-Identifier: AGPL-3.0-or-later

package schemaloader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/forgotten-org/forgerun/internal/types"
	"gopkg.in/yaml.v3"
)

// FileName is the schema document expected at the project root.
const FileName = "cli_defaults.yml"

// ErrSchemaUnavailable is matched by every SchemaUnavailableError.
var ErrSchemaUnavailable = errors.New("option schema unavailable")

// SchemaUnavailableError means no options can be parsed: the schema document is
// missing, unreadable or malformed.
type SchemaUnavailableError struct {
	Path string
	Err  error
}

func (e *SchemaUnavailableError) Error() string {
	return fmt.Sprintf("option schema %s: %v", e.Path, e.Err)
}

func (e *SchemaUnavailableError) Unwrap() []error { return []error{ErrSchemaUnavailable, e.Err} }

// Path returns the schema location for a project root. A non-empty override
// wins; relative overrides are resolved against root.
func Path(root, override string) string {
	if override = strings.TrimSpace(override); override != "" {
		if filepath.IsAbs(override) {
			return override
		}
		return filepath.Join(root, override)
	}
	return filepath.Join(root, FileName)
}

// Load reads the ordered option descriptors from the YAML document at path.
func Load(path string) ([]types.OptionDescriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &SchemaUnavailableError{Path: path, Err: fmt.Errorf("open schema: %w", err)}
	}
	defer f.Close()

	var descs []types.OptionDescriptor
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&descs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &SchemaUnavailableError{Path: path, Err: errors.New("decode schema: empty document")}
		}
		return nil, &SchemaUnavailableError{Path: path, Err: fmt.Errorf("decode schema: %w", err)}
	}

	seen := make(map[string]struct{}, len(descs))
	for i := range descs {
		d := &descs[i]
		d.Name = strings.TrimSpace(d.Name)
		d.Kind = strings.TrimSpace(d.Kind)
		if d.Name == "" {
			return nil, &SchemaUnavailableError{Path: path, Err: fmt.Errorf("entry %d: name required", i)}
		}
		if _, dup := seen[d.Name]; dup {
			return nil, &SchemaUnavailableError{Path: path, Err: fmt.Errorf("entry %d: duplicate option %q", i, d.Name)}
		}
		seen[d.Name] = struct{}{}
		if d.Default != nil {
			d.Default.Type = strings.TrimSpace(d.Default.Type)
		}
	}
	return descs, nil
}
