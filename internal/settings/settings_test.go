package settings

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvLogLevel, EnvLogFormat, EnvSchema, EnvApp, EnvParallel, EnvConfigureArgs, EnvHistory, EnvEvents, EnvDataDir} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
	assert.Equal(t, DefaultAppName, s.AppName)
	assert.Equal(t, DefaultParallel, s.Parallel)
	assert.True(t, s.History)
	assert.Empty(t, s.ConfigureArgs)
}

func TestLoadFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvParallel, "12")
	t.Setenv(EnvConfigureArgs, `-DFOO=1 "-DBAR=two words"`)
	t.Setenv(EnvHistory, "off")

	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, 12, s.Parallel)
	assert.Equal(t, []string{"-DFOO=1", "-DBAR=two words"}, s.ConfigureArgs)
	assert.False(t, s.History)
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("FORGERUN_APP=Sandbox\nFORGERUN_PARALLEL=3\n"), 0o644))
	t.Setenv(EnvParallel, "8")
	// godotenv sets variables process-wide; restore them after the test.
	t.Setenv(EnvApp, "")
	require.NoError(t, os.Unsetenv(EnvApp))

	s, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "Sandbox", s.AppName)
	assert.Equal(t, 8, s.Parallel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	for key, val := range map[string]string{
		EnvLogLevel:      "loud",
		EnvLogFormat:     "xml",
		EnvParallel:      "-1",
		EnvConfigureArgs: `"unterminated`,
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load(t.TempDir())
			require.Error(t, err)
		})
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	s := &Settings{LogLevel: "warn", LogFormat: "json"}
	log := s.NewLogger(&buf)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvRoot, dir)
	root, err := ResolveRoot()
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}
