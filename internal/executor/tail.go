// SPDX-License-Identifier: AGPL-3.0-or-later
package executor

import (
	"bytes"
	"strings"
	"sync"
)

// tailWriter keeps the last max complete lines written to it, plus any
// unterminated remainder.
type tailWriter struct {
	mu    sync.Mutex
	max   int
	lines []string
	buf   bytes.Buffer
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	start := 0
	for i, b := range p {
		if b == '\n' {
			w.buf.Write(p[start:i])
			w.pushLine()
			start = i + 1
		}
	}
	if start < len(p) {
		w.buf.Write(p[start:])
	}
	return len(p), nil
}

func (w *tailWriter) pushLine() {
	line := strings.TrimRight(w.buf.String(), "\r")
	w.buf.Reset()
	w.lines = append(w.lines, line)
	if len(w.lines) > w.max {
		w.lines = w.lines[len(w.lines)-w.max:]
	}
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	lines := w.lines
	if w.buf.Len() > 0 {
		lines = append(append([]string(nil), lines...), w.buf.String())
	}
	return strings.Join(lines, "\n")
}
