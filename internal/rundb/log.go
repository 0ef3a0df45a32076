// SPDX-License-Identifier: AGPL-3.0-or-later

package rundb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LogLine is one captured line of child output.
type LogLine struct {
	Seq       int64     `json:"seq"`
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Channel   string    `json:"channel"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// loadLogBytes seeds the running size of stage_log. It is the only full scan
// of the table.
func (db *DB) loadLogBytes(ctx context.Context) error {
	db.logMu.Lock()
	defer db.logMu.Unlock()
	var total int64
	if err := db.sql.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(CAST(message AS BLOB))), 0) FROM stage_log`).Scan(&total); err != nil {
		return fmt.Errorf("log size lookup: %w", err)
	}
	db.logBytes = total
	return nil
}

// AppendLog stores a line, evicting the oldest lines first when the log
// budget would be exceeded. Eviction and insert share one transaction.
func (db *DB) AppendLog(ctx context.Context, line LogLine) (seq int64, err error) {
	if line.RunID == "" {
		return 0, errors.New("append log: run id required")
	}
	size := int64(len(line.Message))
	if size > db.opts.LogMaxBytes {
		return 0, ErrLogQuotaExceeded
	}
	ts := line.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	db.logMu.Lock()
	defer db.logMu.Unlock()

	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin log tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing := db.logBytes
	for existing+size > db.opts.LogMaxBytes {
		var oldest, oldSize int64
		err = tx.QueryRowContext(ctx, `SELECT seq, length(CAST(message AS BLOB)) FROM stage_log ORDER BY seq ASC LIMIT 1`).Scan(&oldest, &oldSize)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			existing = 0
			break
		}
		if err != nil {
			return 0, fmt.Errorf("log eviction lookup: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM stage_log WHERE seq = ?`, oldest); err != nil {
			return 0, fmt.Errorf("log eviction delete seq=%d: %w", oldest, err)
		}
		existing -= oldSize
	}

	res, err := tx.ExecContext(ctx, `
INSERT INTO stage_log (run_id, stage, channel, message, ts)
VALUES (?, ?, ?, ?, ?)
`, line.RunID, line.Stage, line.Channel, line.Message, ts.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("log insert: %w", err)
	}
	if seq, err = res.LastInsertId(); err != nil {
		return 0, fmt.Errorf("log last insert id: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("log commit: %w", err)
	}
	db.logBytes = existing + size
	return seq, nil
}

// ForEachLog streams the retained lines of runID with seq > afterSeq in order.
// Iteration stops at the first error fn returns.
func (db *DB) ForEachLog(ctx context.Context, runID string, afterSeq int64, fn func(LogLine) error) error {
	rows, err := db.sql.QueryContext(ctx, `
SELECT seq, stage, channel, message, ts
FROM stage_log
WHERE run_id = ? AND seq > ?
ORDER BY seq ASC
`, runID, afterSeq)
	if err != nil {
		return fmt.Errorf("log query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		line := LogLine{RunID: runID}
		var ms int64
		if err := rows.Scan(&line.Seq, &line.Stage, &line.Channel, &line.Message, &ms); err != nil {
			return fmt.Errorf("log scan: %w", err)
		}
		line.Timestamp = time.UnixMilli(ms).UTC()
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("log rows: %w", err)
	}
	return nil
}
