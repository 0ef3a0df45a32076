// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rundb persists pipeline runs, stage results and captured child
// output in a local SQLite database.
package rundb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/forgotten-org/forgerun/internal/paths"
	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"
	sqlitePageSize   = 4096

	defaultMaxBytes    = 128 << 20 // 128 MiB
	defaultLogMaxBytes = 32 << 20  // 32 MiB
)

// Options controls how the history DB is opened.
type Options struct {
	// DataDir holds the DB file. Empty means the platform data directory.
	DataDir string
	// MaxBytes bounds the whole DB. Zero uses defaults.
	MaxBytes int64
	// LogMaxBytes bounds captured output; the oldest lines are evicted first.
	LogMaxBytes int64
}

// DB wraps the SQLite connection holding run history.
type DB struct {
	sql  *sql.DB
	opts Options
	path string

	// logMu guards logBytes, the total message bytes held in stage_log.
	logMu    sync.Mutex
	logBytes int64
}

// Open creates or opens the history DB and applies its schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.DataDir == "" {
		opts.DataDir = paths.DataDir()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.LogMaxBytes <= 0 {
		opts.LogMaxBytes = defaultLogMaxBytes
	}
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	dbPath := paths.HistoryDB(opts.DataDir)
	conn, err := sql.Open(sqliteDriverName, dsn(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; runs are recorded from a single process.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	if err := applyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	db := &DB{sql: conn, opts: opts, path: dbPath}
	if err := db.loadLogBytes(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// dsn carries the pragmas so the driver applies them to every connection.
func dsn(path string, opts Options) string {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", (5 * time.Second).Milliseconds()),
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"foreign_keys(ON)",
		fmt.Sprintf("max_page_count(%d)", opts.MaxBytes/sqlitePageSize),
	}
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

// Path is the location of the DB file.
func (db *DB) Path() string {
	if db == nil {
		return ""
	}
	return db.path
}
