// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"bytes"
	"io"
)

// StageWriter passes child output through to out and emits every complete
// line as a stage.log event.
type StageWriter struct {
	emitter Sink
	runID   string
	stage   string
	channel string
	out     io.Writer
	buf     bytes.Buffer
}

func NewStageWriter(em Sink, runID, stage, channel string, out io.Writer) *StageWriter {
	return &StageWriter{emitter: em, runID: runID, stage: stage, channel: channel, out: out}
}

func (w *StageWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if w.out != nil {
		if _, err := w.out.Write(p); err != nil {
			return 0, err
		}
	}
	start := 0
	for i, b := range p {
		if b == '\n' {
			w.buf.Write(p[start:i])
			w.flushLine()
			start = i + 1
		}
	}
	if start < len(p) {
		w.buf.Write(p[start:])
	}
	return len(p), nil
}

func (w *StageWriter) Flush() {
	if w.buf.Len() > 0 {
		w.flushLine()
	}
}

func (w *StageWriter) flushLine() {
	line := w.buf.String()
	w.buf.Reset()
	if w.emitter != nil {
		w.emitter.EmitStageLog(w.runID, w.stage, w.channel, line)
	}
}
