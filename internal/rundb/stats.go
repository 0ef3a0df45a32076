// SPDX-License-Identifier: AGPL-3.0-or-later

package rundb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Stats summarises the size of the history DB.
type Stats struct {
	Runs          int64 `json:"runs"`
	BytesUsed     int64 `json:"bytes_used"`
	MaxBytes      int64 `json:"max_bytes"`
	LogBytes      int64 `json:"log_bytes"`
	LogMaxBytes   int64 `json:"log_max_bytes"`
	SchemaVersion int64 `json:"schema_version"`
}

func (db *DB) Stats(ctx context.Context) (Stats, error) {
	if db == nil || db.sql == nil {
		return Stats{}, errors.New("rundb: database not initialised")
	}
	conn := db.sql
	stats := Stats{LogMaxBytes: db.opts.LogMaxBytes}

	pageSize, err := querySingleInt(ctx, conn, "PRAGMA page_size;")
	if err != nil {
		return stats, fmt.Errorf("rundb: lookup page_size: %w", err)
	}
	pageCount, err := querySingleInt(ctx, conn, "PRAGMA page_count;")
	if err != nil {
		return stats, fmt.Errorf("rundb: lookup page_count: %w", err)
	}
	maxPages, err := querySingleInt(ctx, conn, "PRAGMA max_page_count;")
	if err != nil {
		return stats, fmt.Errorf("rundb: lookup max_page_count: %w", err)
	}
	if stats.SchemaVersion, err = querySingleInt(ctx, conn, "PRAGMA user_version;"); err != nil {
		return stats, fmt.Errorf("rundb: lookup user_version: %w", err)
	}
	if stats.Runs, err = querySingleInt(ctx, conn, "SELECT COUNT(*) FROM runs;"); err != nil {
		return stats, fmt.Errorf("rundb: count runs: %w", err)
	}
	if stats.LogBytes, err = querySingleInt(ctx, conn, "SELECT COALESCE(SUM(length(CAST(message AS BLOB))), 0) FROM stage_log;"); err != nil {
		return stats, fmt.Errorf("rundb: log size: %w", err)
	}

	stats.BytesUsed = pageCount * pageSize
	stats.MaxBytes = maxPages * pageSize
	return stats, nil
}

func querySingleInt(ctx context.Context, conn *sql.DB, stmt string) (int64, error) {
	var out sql.NullInt64
	if err := conn.QueryRowContext(ctx, stmt).Scan(&out); err != nil {
		return 0, err
	}
	return out.Int64, nil
}
