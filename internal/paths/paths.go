// SPDX-License-Identifier: AGPL-3.0-or-later

// Package paths resolves where forgerun keeps its state between invocations.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
)

const (
	appDirName     = "forgerun"
	envDataDir     = "DATA_DIR"
	envXDGState    = "XDG_STATE_HOME"
	envLocalAppDir = "LOCALAPPDATA"
	windowsVendor  = "Forgerun"

	historyDBName = "history.db"
)

var override atomic.Pointer[string]

// SetDataDirOverride pins the data directory. An empty dir clears the pin.
func SetDataDirOverride(dir string) {
	if dir == "" {
		override.Store(nil)
		return
	}
	clean := filepath.Clean(dir)
	override.Store(&clean)
}

// DataDir returns the directory holding the run history.
// Order of precedence:
//  1. SetDataDirOverride.
//  2. DATA_DIR.
//  3. Platform state directory:
//     * Windows: %LOCALAPPDATA%\Forgerun
//     * macOS: ~/Library/Application Support/forgerun
//     * others: $XDG_STATE_HOME/forgerun, or ~/.local/state/forgerun
//  4. <tmp>/forgerun
func DataDir() string {
	if ptr := override.Load(); ptr != nil && *ptr != "" {
		return *ptr
	}
	if dir := os.Getenv(envDataDir); dir != "" {
		return filepath.Clean(dir)
	}
	if dir := platformStateDir(runtime.GOOS); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), appDirName)
}

func platformStateDir(goos string) string {
	home, _ := os.UserHomeDir()
	switch goos {
	case "windows":
		if base := os.Getenv(envLocalAppDir); base != "" {
			return filepath.Join(base, windowsVendor)
		}
		if home != "" {
			return filepath.Join(home, "AppData", "Local", windowsVendor)
		}
	case "darwin":
		if home != "" {
			return filepath.Join(home, "Library", "Application Support", appDirName)
		}
	default:
		if xdg := os.Getenv(envXDGState); xdg != "" {
			return filepath.Join(xdg, appDirName)
		}
		if home != "" {
			return filepath.Join(home, ".local", "state", appDirName)
		}
	}
	return ""
}

// HistoryDB returns the history database file inside dir, or inside DataDir
// when dir is empty.
func HistoryDB(dir string) string {
	if dir == "" {
		dir = DataDir()
	}
	return filepath.Join(dir, historyDBName)
}
