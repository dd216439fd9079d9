package trace

import (
	"context"
	"log/slog"
)

// SlogLogger renders trace events through a log/slog logger for
// human-readable output.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates an adapter around the given slog logger.
// Pass nil to use slog.Default().
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Log renders one event. Error-category events log at error level,
// everything else at debug level.
func (l *SlogLogger) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("layer", event.Layer.String()),
		slog.String("dir", event.Direction.String()),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session", event.SessionID))
	}
	if event.Instrument != "" {
		attrs = append(attrs, slog.String("instrument", event.Instrument))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	msg := event.Category.String()
	level := slog.LevelDebug

	switch {
	case event.Line != nil:
		attrs = append(attrs, slog.String("line", event.Line.Text))
		if event.Line.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("state", event.StateChange.NewState))
		if event.StateChange.OldState != "" {
			attrs = append(attrs, slog.String("from", event.StateChange.OldState))
		}
	case event.Error != nil:
		level = slog.LevelError
		attrs = append(attrs, slog.String("error", event.Error.Message))
		if event.Error.Status != "" {
			attrs = append(attrs, slog.String("status", event.Error.Status))
		}
	}

	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogLogger)(nil)
