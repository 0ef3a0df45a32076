// SPDX-License-Identifier: AGPL-3.0-or-later

package rundb

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Recorder stores pipeline events in the history DB. Write failures are logged
// and never reach the pipeline.
type Recorder struct {
	db  *DB
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	started map[string]time.Time
}

func NewRecorder(db *DB, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{db: db, log: log, now: time.Now, started: map[string]time.Time{}}
}

func (r *Recorder) EmitRunStart(runID, target string) {
	r.check("begin run", runID, r.db.BeginRun(context.Background(), runID, target, r.now()))
}

func (r *Recorder) EmitRunFinish(runID, status string, exitCode int, err error) {
	r.check("finish run", runID, r.db.FinishRun(context.Background(), runID, status, exitCode, err, r.now()))
}

func (r *Recorder) EmitStageStart(runID, stage string) {
	r.mu.Lock()
	r.started[runID+"/"+stage] = r.now()
	r.mu.Unlock()
}

func (r *Recorder) EmitStageSkip(runID, stage, reason string) {
	rec := StageRecord{Stage: stage, Status: "skipped", Reason: reason}
	r.check("record stage", runID, r.db.RecordStage(context.Background(), runID, rec))
}

func (r *Recorder) EmitStageLog(runID, stage, channel, message string) {
	_, err := r.db.AppendLog(context.Background(), LogLine{
		RunID: runID, Stage: stage, Channel: channel, Message: message, Timestamp: r.now(),
	})
	if errors.Is(err, ErrLogQuotaExceeded) {
		r.log.Debug("log line dropped", "run_id", runID, "stage", stage, "bytes", len(message))
		return
	}
	r.check("append log", runID, err)
}

func (r *Recorder) EmitStageFinish(runID, stage string, exitCode int, err error) {
	key := runID + "/" + stage
	r.mu.Lock()
	start, ok := r.started[key]
	delete(r.started, key)
	r.mu.Unlock()

	rec := StageRecord{Stage: stage, Status: "succeeded", ExitCode: exitCode}
	if ok {
		rec.Duration = r.now().Sub(start)
	}
	if exitCode != 0 || err != nil {
		rec.Status = "failed"
		if err != nil {
			rec.Reason = err.Error()
		}
	}
	r.check("record stage", runID, r.db.RecordStage(context.Background(), runID, rec))
}

func (r *Recorder) check(op, runID string, err error) {
	if err == nil {
		return
	}
	if IsQuotaExceeded(err) {
		r.log.Warn("run history is full", "op", op, "run_id", runID, "db", r.db.Path())
		return
	}
	r.log.Warn("run history write failed", "op", op, "run_id", runID, "error", err)
}
