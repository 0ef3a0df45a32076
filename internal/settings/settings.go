// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings resolves the ambient configuration of forgerun: the project
// root, logging, history and tool knobs. Values come from the environment,
// optionally seeded from a .env file at the project root.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
)

const (
	EnvRoot          = "FORGERUN_ROOT"
	EnvLogLevel      = "FORGERUN_LOG_LEVEL"
	EnvLogFormat     = "FORGERUN_LOG_FORMAT"
	EnvSchema        = "FORGERUN_SCHEMA"
	EnvApp           = "FORGERUN_APP"
	EnvParallel      = "FORGERUN_PARALLEL"
	EnvConfigureArgs = "FORGERUN_CONFIGURE_ARGS"
	EnvHistory       = "FORGERUN_HISTORY"
	EnvEvents        = "FORGERUN_EVENTS"
	EnvDataDir       = "DATA_DIR"

	DefaultAppName  = "ForgottenApp"
	DefaultParallel = 6
)

type Settings struct {
	Root          string
	LogLevel      string
	LogFormat     string
	SchemaPath    string
	AppName       string
	Parallel      int
	ConfigureArgs []string
	History       bool
	EventsPath    string
	DataDir       string
}

// ResolveRoot returns FORGERUN_ROOT when set, otherwise the working directory.
func ResolveRoot() (string, error) {
	if root := strings.TrimSpace(os.Getenv(EnvRoot)); root != "" {
		return filepath.Abs(root)
	}
	return os.Getwd()
}

// Load reads <root>/.env, when present, without overriding variables that are
// already set, then resolves every setting.
func Load(root string) (*Settings, error) {
	envFile := filepath.Join(root, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	s := &Settings{
		Root:       root,
		LogLevel:   strings.ToLower(envOr(EnvLogLevel, "info")),
		LogFormat:  strings.ToLower(envOr(EnvLogFormat, "text")),
		SchemaPath: strings.TrimSpace(os.Getenv(EnvSchema)),
		AppName:    envOr(EnvApp, DefaultAppName),
		Parallel:   DefaultParallel,
		History:    true,
		EventsPath: strings.TrimSpace(os.Getenv(EnvEvents)),
		DataDir:    strings.TrimSpace(os.Getenv(EnvDataDir)),
	}

	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid %s %q: must be debug, info, warn or error", EnvLogLevel, s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid %s %q: must be text or json", EnvLogFormat, s.LogFormat)
	}

	if raw := strings.TrimSpace(os.Getenv(EnvParallel)); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be a positive integer", EnvParallel, raw)
		}
		s.Parallel = n
	}

	if raw := strings.TrimSpace(os.Getenv(EnvConfigureArgs)); raw != "" {
		args, err := shellquote.Split(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvConfigureArgs, err)
		}
		s.ConfigureArgs = args
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvHistory))) {
	case "off", "false", "0", "no":
		s.History = false
	}
	return s, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
