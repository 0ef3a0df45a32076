//go:build unix

package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sh(dir, script string) Command {
	return Command{Dir: dir, Argv: []string{"/bin/sh", "-c", script}, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}}
}

func TestRunSuccessUsesDirAndKeepsCwd(t *testing.T) {
	before, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	res := NewProcRunner().Run(context.Background(), sh(dir, "pwd > where.txt"))
	if !res.OK() {
		t.Fatalf("expected success, got %+v", res)
	}

	after, _ := os.Getwd()
	if before != after {
		t.Fatalf("working directory changed: %s -> %s", before, after)
	}
	out, err := os.ReadFile(filepath.Join(dir, "where.txt"))
	if err != nil {
		t.Fatalf("child did not run in %s: %v", dir, err)
	}
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(strings.TrimSpace(string(out)))
	if gotDir != wantDir {
		t.Fatalf("child cwd = %s, want %s", gotDir, wantDir)
	}
}

func TestRunFailureCarriesExitCodeAndStderr(t *testing.T) {
	before, _ := os.Getwd()
	stderr := &bytes.Buffer{}
	cmd := sh(t.TempDir(), "echo first >&2; echo 'no rule to make target' >&2; exit 3")
	cmd.Stderr = stderr

	res := NewProcRunner().Run(context.Background(), cmd)
	if res.OK() {
		t.Fatalf("expected failure")
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code = %d, want 3", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "no rule to make target") {
		t.Fatalf("stderr tail = %q", res.Stderr)
	}
	if !strings.Contains(stderr.String(), "first") {
		t.Fatalf("stderr not streamed to sink: %q", stderr.String())
	}
	var spawn *SpawnError
	if errors.As(res.Err, &spawn) {
		t.Fatalf("exit failure must not be a spawn error")
	}
	if res.Interrupted {
		t.Fatalf("plain exit must not count as an interrupt")
	}
	if after, _ := os.Getwd(); after != before {
		t.Fatalf("working directory changed: %s -> %s", before, after)
	}
}

func TestRunMissingExecutableIsSpawnError(t *testing.T) {
	before, _ := os.Getwd()
	res := NewProcRunner().Run(context.Background(), Command{Dir: t.TempDir(), Argv: []string{"forgerun-definitely-missing-tool"}})
	var spawn *SpawnError
	if !errors.As(res.Err, &spawn) {
		t.Fatalf("expected SpawnError, got %v", res.Err)
	}
	if res.ExitCode != 127 || spawn.Code != 127 {
		t.Fatalf("exit code = %d, want 127", res.ExitCode)
	}
	if after, _ := os.Getwd(); after != before {
		t.Fatalf("working directory changed: %s -> %s", before, after)
	}
}

func TestRunNotExecutableIsSpawnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := NewProcRunner().Run(context.Background(), Command{Dir: dir, Argv: []string{path}})
	var spawn *SpawnError
	if !errors.As(res.Err, &spawn) || res.ExitCode != 126 {
		t.Fatalf("expected permission spawn error, got code=%d err=%v", res.ExitCode, res.Err)
	}
}

func TestRunEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cmd := sh(dir, `test "$FORGERUN_STAGE" = build`)
	cmd.Env = []string{"FORGERUN_STAGE=build"}
	if res := NewProcRunner().Run(context.Background(), cmd); !res.OK() {
		t.Fatalf("env override not visible: %+v", res)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewProcRunner().Run(ctx, sh(t.TempDir(), "sleep 5"))
	if res.OK() {
		t.Fatalf("expected cancelled run to fail")
	}
	if !res.Interrupted {
		t.Fatalf("cancelled run must be marked interrupted")
	}
}

func TestRunKilledBySignalIsInterrupted(t *testing.T) {
	for _, script := range []string{"kill -TERM $$; sleep 1", "exit 130"} {
		res := NewProcRunner().Run(context.Background(), sh(t.TempDir(), script))
		if res.OK() {
			t.Fatalf("%q: expected failure", script)
		}
		if !res.Interrupted {
			t.Fatalf("%q: expected interrupted result, got %+v", script, res)
		}
		if res.ExitCode <= 0 {
			t.Fatalf("%q: exit code = %d, want positive", script, res.ExitCode)
		}
	}
}

func TestTailWriterKeepsLastLines(t *testing.T) {
	w := newTailWriter(2)
	_, _ = w.Write([]byte("one\ntwo\nthr"))
	_, _ = w.Write([]byte("ee\nfour"))
	if got := w.String(); got != "two\nthree\nfour" {
		t.Fatalf("tail = %q", got)
	}
}

func TestUpsertEnv(t *testing.T) {
	env := upsertEnv([]string{"A=1", "B=2"}, "A", "3")
	env = upsertEnv(env, "C", "4")
	if strings.Join(env, ",") != "A=3,B=2,C=4" {
		t.Fatalf("env = %v", env)
	}
}
