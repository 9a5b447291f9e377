package logging

import (
	"log/slog"
)

// Debug states passed with each trace line.
const (
	StateError    = -1
	StateProgress = 1
	StateDone     = 1000
)

// StateName returns the log label of a debug state
func StateName(state int) string {
	switch {
	case state < 0:
		return "error"
	case state >= StateDone:
		return "done"
	}
	return "progress"
}

// DebugSink receives rule-level trace lines keyed by book source URL.
// It is the only channel through which rule evaluation errors surface.
type DebugSink interface {
	Log(sourceKey, message string, state int)
}

// SinkFunc adapts a function to DebugSink
type SinkFunc func(sourceKey, message string, state int)

// Log implements DebugSink
func (f SinkFunc) Log(sourceKey, message string, state int) {
	f(sourceKey, message, state)
}

// SlogSink writes trace lines to a slog logger.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink creates a sink; a nil logger means the default logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Log implements DebugSink
func (s *SlogSink) Log(sourceKey, message string, state int) {
	logger := s.logger
	if logger == nil {
		logger = GetLogger()
	}
	switch {
	case state < 0:
		logger.Warn(message, "source_key", sourceKey, "state", state)
	case state >= StateDone:
		logger.Info(message, "source_key", sourceKey, "state", state)
	default:
		logger.Debug(message, "source_key", sourceKey, "state", state)
	}
}
