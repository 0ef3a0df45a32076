package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forgotten-org/forgerun/internal/engine"
	"github.com/forgotten-org/forgerun/internal/pipeline"
	"github.com/forgotten-org/forgerun/internal/schemaloader"
	"github.com/forgotten-org/forgerun/internal/settings"
)

const testSchema = `- name: build_type
  type: Optional
  default: {type: str, value: Debug}
- name: generator
  type: Flag
  default: {type: str, value: Ninja}
- name: width
  type: Flag
  default: {type: int, value: 1280}
- name: clean
  type: Flag
  default: {type: bool}
`

func setupProject(t *testing.T, schema string) string {
	t.Helper()
	root := t.TempDir()
	if schema != "" {
		if err := os.WriteFile(filepath.Join(root, schemaloader.FileName), []byte(schema), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv(settings.EnvRoot, root)
	t.Setenv(settings.EnvHistory, "off")
	t.Setenv(settings.EnvDataDir, t.TempDir())
	for _, key := range []string{settings.EnvSchema, settings.EnvEvents, settings.EnvLogLevel, settings.EnvLogFormat, settings.EnvParallel, settings.EnvConfigureArgs, settings.EnvApp} {
		t.Setenv(key, "")
	}
	return root
}

func runMain(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Main(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSchemaJSON(t *testing.T) {
	setupProject(t, testSchema)
	code, out, errOut := runMain("schema", "--json")
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	var entries []schemaEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if !entries[0].Positional || entries[0].Default != "Debug" {
		t.Fatalf("unexpected build_type entry %+v", entries[0])
	}
	if entries[2].Type != "int" || entries[2].Default != float64(1280) {
		t.Fatalf("unexpected width entry %+v", entries[2])
	}
}

func TestPlanJSON(t *testing.T) {
	root := setupProject(t, testSchema)
	code, out, errOut := runMain("plan", "Release", "--generator", "Unix Makefiles", "--clean", "--json")
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	var plan struct {
		Target        string                 `json:"target"`
		Configuration map[string]interface{} `json:"configuration"`
		Stages        []pipeline.Decision    `json:"stages"`
	}
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if want := filepath.Join(root, "build-UnixMakefiles", "Release"); plan.Target != want {
		t.Fatalf("target=%s want %s", plan.Target, want)
	}
	if plan.Configuration["clean"] != true || plan.Configuration["build_type"] != "Release" {
		t.Fatalf("unexpected configuration %v", plan.Configuration)
	}
	if len(plan.Stages) != 6 || plan.Stages[0].Stage != pipeline.StageClean || !plan.Stages[0].Run {
		t.Fatalf("unexpected stages %+v", plan.Stages)
	}
	if _, err := os.Stat(plan.Target); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("plan must not create the build directory")
	}
}

func TestPlanText(t *testing.T) {
	setupProject(t, testSchema)
	code, out, errOut := runMain("plan")
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	for _, want := range []string{"Target:", "- width: 1280", "configure  run (build directory missing)", "$ cmake --build . --parallel 6"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	setupProject(t, testSchema)
	cases := map[string][]string{
		"--bogus": {"run", "--bogus"},
		"wide":    {"run", "--width", "wide"},
		"extra":   {"run", "Debug", "extra"},
	}
	for token, args := range cases {
		code, _, errOut := runMain(args...)
		if code != ExitUsage {
			t.Fatalf("%v: exit=%d want %d", args, code, ExitUsage)
		}
		if !strings.Contains(errOut, fmt.Sprintf("%q", token)) {
			t.Fatalf("%v: stderr does not name %q: %s", args, token, errOut)
		}
	}
}

func TestRunHelpListsSchemaFlags(t *testing.T) {
	setupProject(t, testSchema)
	code, out, _ := runMain("run", "--help")
	if code != ExitSuccess {
		t.Fatalf("exit=%d", code)
	}
	if !strings.Contains(out, "--width") || !strings.Contains(out, "run [build_type] [flags]") {
		t.Fatalf("help output missing schema flags:\n%s", out)
	}
}

func TestMissingSchemaFails(t *testing.T) {
	setupProject(t, "")
	code, _, errOut := runMain("plan")
	if code != ExitFailure {
		t.Fatalf("exit=%d want %d", code, ExitFailure)
	}
	if !strings.Contains(errOut, "option schema") {
		t.Fatalf("stderr=%s", errOut)
	}
}

func TestBadDefaultIsUsageError(t *testing.T) {
	setupProject(t, "- name: width\n  type: Flag\n  default: {type: int, value: wide}\n")
	code, _, _ := runMain("schema")
	if code != ExitUsage {
		t.Fatalf("exit=%d want %d", code, ExitUsage)
	}
}

func TestHistoryEmpty(t *testing.T) {
	setupProject(t, testSchema)
	code, out, errOut := runMain("history")
	if code != ExitSuccess {
		t.Fatalf("exit=%d stderr=%s", code, errOut)
	}
	if !strings.Contains(out, "(no runs recorded)") {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestInvalidSettingsIsUsageError(t *testing.T) {
	setupProject(t, testSchema)
	t.Setenv(settings.EnvLogLevel, "loud")
	if code, _, _ := runMain("schema"); code != ExitUsage {
		t.Fatalf("exit=%d want %d", code, ExitUsage)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"interrupted", fmt.Errorf("run: %w", pipeline.ErrInterrupted), ExitSuccess},
		{"stage", &pipeline.StageError{Result: pipeline.StageResult{Stage: pipeline.StageBuild, ExitCode: 3}}, 3},
		{"stage without code", &pipeline.StageError{}, ExitFailure},
		{"missing option", &engine.MissingRequiredOptionError{Name: "os"}, ExitUsage},
		{"bad token", &engine.ArgumentParseError{Token: "--x"}, ExitUsage},
		{"schema", &schemaloader.SchemaUnavailableError{Path: "x", Err: errors.New("boom")}, ExitFailure},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("%s: exitCode=%d want %d", tc.name, got, tc.want)
		}
	}
}

func TestStripFlag(t *testing.T) {
	got, found := stripFlag([]string{"Release", "--json", "--clean", "--", "--json"}, "--json", nil)
	if !found {
		t.Fatal("expected flag to be found")
	}
	want := []string{"Release", "--clean", "--", "--json"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v want %v", got, want)
	}

	got, found = stripFlag([]string{"--generator", "--json", "--clean"}, "--json", map[string]bool{"generator": true})
	if found {
		t.Fatal("flag value must not be taken as --json")
	}
	want = []string{"--generator", "--json", "--clean"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestPlanLeavesSchemaJSONOption(t *testing.T) {
	setupProject(t, testSchema+`- name: json
  type: Flag
  default: {type: bool}
`)
	code, stdout, stderr := runMain("plan", "--json")
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, stderr)
	}
	if strings.HasPrefix(strings.TrimSpace(stdout), "{") {
		t.Fatalf("schema json option was taken by plan: %s", stdout)
	}
	if !strings.Contains(stdout, "  - json: true") {
		t.Fatalf("json option not bound from the command line:\n%s", stdout)
	}
}
