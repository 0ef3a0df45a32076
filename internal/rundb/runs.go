// SPDX-License-Identifier: AGPL-3.0-or-later

package rundb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("rundb: run not found")

type Run struct {
	ID         string        `json:"id"`
	Target     string        `json:"target"`
	Status     string        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Stages     []StageRecord `json:"stages,omitempty"`
}

type StageRecord struct {
	Stage    string        `json:"stage"`
	Status   string        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (db *DB) BeginRun(ctx context.Context, id, target string, at time.Time) error {
	_, err := db.sql.ExecContext(ctx, `
INSERT INTO runs (id, target, status, started_at) VALUES (?, ?, 'running', ?)
`, id, target, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", id, err)
	}
	return nil
}

func (db *DB) FinishRun(ctx context.Context, id, status string, exitCode int, runErr error, at time.Time) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := db.sql.ExecContext(ctx, `
UPDATE runs SET status = ?, exit_code = ?, error = ?, finished_at = ? WHERE id = ?
`, status, exitCode, msg, at.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// RecordStage stores the outcome of one stage; a later record for the same
// stage replaces the earlier one.
func (db *DB) RecordStage(ctx context.Context, runID string, rec StageRecord) error {
	_, err := db.sql.ExecContext(ctx, `
INSERT INTO stage_results (run_id, position, stage, status, exit_code, reason, duration_ms)
VALUES (?, (SELECT COUNT(*) FROM stage_results WHERE run_id = ?), ?, ?, ?, ?, ?)
ON CONFLICT(run_id, stage) DO UPDATE SET
	status = excluded.status,
	exit_code = excluded.exit_code,
	reason = excluded.reason,
	duration_ms = excluded.duration_ms
`, runID, runID, rec.Stage, rec.Status, rec.ExitCode, rec.Reason, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("record stage %s/%s: %w", runID, rec.Stage, err)
	}
	return nil
}

// ListRuns returns the most recent runs first, with their stages.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.sql.QueryContext(ctx, `
SELECT id, target, status, exit_code, error, started_at, finished_at
FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		if runs[i].Stages, err = db.stages(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// GetRun loads one run by ID.
func (db *DB) GetRun(ctx context.Context, id string) (Run, error) {
	row := db.sql.QueryRowContext(ctx, `
SELECT id, target, status, exit_code, error, started_at, finished_at
FROM runs WHERE id = ?
`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	r.Stages, err = db.stages(ctx, id)
	return r, err
}

func (db *DB) stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := db.sql.QueryContext(ctx, `
SELECT stage, status, exit_code, reason, duration_ms
FROM stage_results WHERE run_id = ? ORDER BY position ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var rec StageRecord
		var ms int64
		if err := rows.Scan(&rec.Stage, &rec.Status, &rec.ExitCode, &rec.Reason, &ms); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		rec.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var started, finished int64
	if err := s.Scan(&r.ID, &r.Target, &r.Status, &r.ExitCode, &r.Error, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished > 0 {
		r.FinishedAt = time.UnixMilli(finished).UTC()
	}
	return r, nil
}
