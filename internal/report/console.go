// SPDX-License-Identifier: AGPL-3.0-or-later

// Package report prints the operator-facing status lines of a pipeline run.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
)

// Console writes timestamped, colour-coded status lines. Failures go to the
// error stream.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	plain bool
	now   func() time.Time
}

func NewConsole(out, errOut io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Console{out: out, err: errOut, plain: !color.SupportColor(), now: time.Now}
}

// Plain disables colour codes, e.g. when output is captured.
func (c *Console) Plain() *Console {
	c.plain = true
	return c
}

func (c *Console) Info(format string, args ...interface{}) {
	c.line(c.out, color.FgYellow, format, args...)
}

func (c *Console) Success(format string, args ...interface{}) {
	c.line(c.out, color.FgGreen, format, args...)
}

func (c *Console) Failure(format string, args ...interface{}) {
	c.line(c.err, color.FgRed, format, args...)
}

// StageFailed reports a stage failure with its cause on a single line.
func (c *Console) StageFailed(stage string, exitCode int, reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		c.Failure("Stage %s failed (exit %d).", stage, exitCode)
		return
	}
	c.Failure("Stage %s failed (exit %d), reason: %s", stage, exitCode, strings.ReplaceAll(reason, "\n", " | "))
}

func (c *Console) line(w io.Writer, col color.Color, format string, args ...interface{}) {
	msg := fmt.Sprintf("[%s] - %s", c.now().Format("15:04:05"), fmt.Sprintf(format, args...))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.plain {
		fmt.Fprintln(w, msg)
		return
	}
	fmt.Fprintln(w, col.Render(msg))
}
