// Package logger builds the slog handlers used by the command-line tools.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var (
	ErrEmptyOption   = errors.New("logLevel and logFormat must not be empty")
	ErrInvalidLevel  = errors.New("invalid logLevel")
	ErrInvalidFormat = errors.New("invalid logFormat")
)

// TimestampKey replaces slog's "time" key in every record.
const TimestampKey = "timestamp"

// ParseLevel maps "debug", "info", "warn" and "error" to a slog.Level.
func ParseLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, logLevel)
}

// New sets up a slog logger writing to w with level and format from arguments.
// logLevel: "info", "debug", "warn", "error"
// logFormat: "json" or "text"
func New(w io.Writer, logLevel, logFormat string) (*slog.Logger, error) {
	if strings.TrimSpace(logLevel) == "" || strings.TrimSpace(logFormat) == "" {
		return nil, ErrEmptyOption
	}
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: TimestampKey, Value: a.Value}
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidFormat, logFormat)
	}

	return slog.New(handler), nil
}
