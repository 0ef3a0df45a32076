// SPDX-License-Identifier: AGPL-3.0-or-later
package events

// Sink represents something that can consume run events.
type Sink interface {
	EmitRunStart(runID, target string)
	EmitRunFinish(runID, status string, exitCode int, err error)
	EmitStageStart(runID, stage string)
	EmitStageSkip(runID, stage, reason string)
	EmitStageLog(runID, stage, channel, message string)
	EmitStageFinish(runID, stage string, exitCode int, err error)
}

// CompositeSink fan-outs emitted events to multiple sinks.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink returns a sink that forwards events to all provided sinks.
func NewCompositeSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		return &CompositeSink{sinks: filtered}
	}
}

func (c *CompositeSink) EmitRunStart(runID, target string) {
	for _, s := range c.sinks {
		s.EmitRunStart(runID, target)
	}
}

func (c *CompositeSink) EmitRunFinish(runID, status string, exitCode int, err error) {
	for _, s := range c.sinks {
		s.EmitRunFinish(runID, status, exitCode, err)
	}
}

func (c *CompositeSink) EmitStageStart(runID, stage string) {
	for _, s := range c.sinks {
		s.EmitStageStart(runID, stage)
	}
}

func (c *CompositeSink) EmitStageSkip(runID, stage, reason string) {
	for _, s := range c.sinks {
		s.EmitStageSkip(runID, stage, reason)
	}
}

func (c *CompositeSink) EmitStageLog(runID, stage, channel, message string) {
	for _, s := range c.sinks {
		s.EmitStageLog(runID, stage, channel, message)
	}
}

func (c *CompositeSink) EmitStageFinish(runID, stage string, exitCode int, err error) {
	for _, s := range c.sinks {
		s.EmitStageFinish(runID, stage, exitCode, err)
	}
}
