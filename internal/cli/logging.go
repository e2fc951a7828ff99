package cli

import (
	"io"
	"log/slog"

	"github.com/spresense-arduino/pkgindex/internal/logger"
)

// NewLoggers creates the progress (stdout) and problem (stderr) loggers.
// Both write to w, normally the app's ErrWriter, so stdout stays clean for
// JSON documents and diffs.
func NewLoggers(w io.Writer, level, format string) (*slog.Logger, *slog.Logger, error) {
	l, err := logger.New(w, level, format)
	if err != nil {
		return nil, nil, err
	}
	return l, l, nil
}
