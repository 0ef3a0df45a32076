package paths

import (
	"path/filepath"
	"testing"
)

func TestDataDirPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDataDirOverride("") })

	env := t.TempDir()
	t.Setenv("DATA_DIR", env)
	if got := DataDir(); got != filepath.Clean(env) {
		t.Fatalf("DataDir = %s, want DATA_DIR %s", got, env)
	}

	pinned := t.TempDir()
	SetDataDirOverride(pinned)
	if got := DataDir(); got != pinned {
		t.Fatalf("DataDir = %s, want override %s", got, pinned)
	}
	if got := HistoryDB(""); got != filepath.Join(pinned, "history.db") {
		t.Fatalf("HistoryDB = %s", got)
	}

	SetDataDirOverride("")
	if got := DataDir(); got != filepath.Clean(env) {
		t.Fatalf("override not cleared: %s", got)
	}
}

func TestPlatformStateDir(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	if got := platformStateDir("linux"); got != filepath.Join(state, "forgerun") {
		t.Fatalf("linux state dir = %s", got)
	}

	local := t.TempDir()
	t.Setenv("LOCALAPPDATA", local)
	if got := platformStateDir("windows"); got != filepath.Join(local, "Forgerun") {
		t.Fatalf("windows state dir = %s", got)
	}
}

func TestHistoryDBExplicitDir(t *testing.T) {
	dir := t.TempDir()
	if got := HistoryDB(dir); got != filepath.Join(dir, "history.db") {
		t.Fatalf("HistoryDB = %s", got)
	}
}
