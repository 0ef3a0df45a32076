// SPDX-License-Identifier: AGPL-3.0-or-later

package schemaloader

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Publish mirrors the schema into the application's resources so the launched
// binary reads the same defaults. It reports false without error when the
// destination directory does not exist.
func Publish(src, dst string) (bool, error) {
	if _, err := os.Stat(filepath.Dir(dst)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat resources dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return false, fmt.Errorf("open schema: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return false, fmt.Errorf("copy schema: %w", err)
	}
	if err := out.Close(); err != nil {
		return false, fmt.Errorf("close %s: %w", dst, err)
	}
	return true, nil
}
