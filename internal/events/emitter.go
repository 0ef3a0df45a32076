// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeRunStart    = "run.start"
	TypeRunFinish   = "run.finish"
	TypeStageStart  = "stage.start"
	TypeStageSkip   = "stage.skip"
	TypeStageLog    = "stage.log"
	TypeStageFinish = "stage.finish"
)

// RunEvent is one line of the event stream.
type RunEvent struct {
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage,omitempty"`
	Target    string    `json:"target,omitempty"`
	Status    string    `json:"status,omitempty"`
	ExitCode  *int      `json:"exit_code,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Emitter writes run events to a stream, one per line, as NDJSON or as
// key=value text.
type Emitter struct {
	mu   sync.Mutex
	seq  int64
	out  io.Writer
	json bool
	now  func() time.Time
}

// NewEmitter returns nil for a nil writer; a nil *Emitter drops every event.
func NewEmitter(out io.Writer, json bool) *Emitter {
	if out == nil {
		return nil
	}
	return &Emitter{out: out, json: json, now: time.Now}
}

func (e *Emitter) emit(ev RunEvent) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	ev.Sequence = e.seq
	ev.Timestamp = e.now().UTC()

	var line []byte
	if e.json {
		var err error
		if line, err = json.Marshal(ev); err != nil {
			line = []byte(`{"error":` + strconv.Quote(err.Error()) + `}`)
		}
	} else {
		line = []byte(formatText(ev))
	}
	_, _ = e.out.Write(append(line, '\n'))
}

func formatText(ev RunEvent) string {
	var b strings.Builder
	b.WriteString("#")
	b.WriteString(strconv.FormatInt(ev.Sequence, 10))
	b.WriteString(" ")
	b.WriteString(ev.Type)
	field := func(k, v string) {
		if v == "" {
			return
		}
		if strings.ContainsAny(v, " \t\"=") {
			v = strconv.Quote(v)
		}
		b.WriteString(" " + k + "=" + v)
	}
	field("run", ev.RunID)
	field("stage", ev.Stage)
	field("target", ev.Target)
	field("status", ev.Status)
	if ev.ExitCode != nil {
		field("exit", strconv.Itoa(*ev.ExitCode))
	}
	field("channel", ev.Channel)
	field("msg", ev.Message)
	field("error", ev.Error)
	return b.String()
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (e *Emitter) EmitRunStart(runID, target string) {
	e.emit(RunEvent{Type: TypeRunStart, RunID: runID, Target: target})
}

func (e *Emitter) EmitRunFinish(runID, status string, exitCode int, err error) {
	e.emit(RunEvent{Type: TypeRunFinish, RunID: runID, Status: status, ExitCode: &exitCode, Error: errText(err)})
}

func (e *Emitter) EmitStageStart(runID, stage string) {
	e.emit(RunEvent{Type: TypeStageStart, RunID: runID, Stage: stage})
}

func (e *Emitter) EmitStageSkip(runID, stage, reason string) {
	e.emit(RunEvent{Type: TypeStageSkip, RunID: runID, Stage: stage, Status: "skipped", Message: reason})
}

func (e *Emitter) EmitStageLog(runID, stage, channel, message string) {
	if message == "" {
		return
	}
	e.emit(RunEvent{Type: TypeStageLog, RunID: runID, Stage: stage, Channel: channel, Message: message})
}

func (e *Emitter) EmitStageFinish(runID, stage string, exitCode int, err error) {
	status := "succeeded"
	if exitCode != 0 || err != nil {
		status = "failed"
	}
	e.emit(RunEvent{Type: TypeStageFinish, RunID: runID, Stage: stage, Status: status, ExitCode: &exitCode, Error: errText(err)})
}

// GenerateRunID returns a random UUID identifying one pipeline run.
func GenerateRunID() string {
	return uuid.NewString()
}
