// Package logging holds slog helpers shared by the relay components.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Discard - returns logger which drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard - returns l or discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// ParseLevel - converts level name (case insensitive) into slog.Level.
func ParseLevel(str string) (slog.Level, error) {
	switch strings.ToUpper(str) {
	case slog.LevelError.String():
		return slog.LevelError, nil
	case slog.LevelWarn.String(), "WARNING":
		return slog.LevelWarn, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging.ParseLevel: invalid level %q", str)
}

// New - builds text logger for w with the given minimal level.
func New(w io.Writer, level slog.Level, attrs ...any) *slog.Logger {
	var logLevel slog.LevelVar
	logLevel.Set(level)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: &logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format(time.DateTime))
			}
			return a
		},
	})
	return slog.New(handler).With(attrs...)
}
