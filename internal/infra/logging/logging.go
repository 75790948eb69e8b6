package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

// New builds a logger writing to w in the given format. Unknown formats are an error.
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// SetupJSON sets slog's default logger to use JSON output at the given level.
func SetupJSON(level slog.Level) {
	logger, _ := New(os.Stdout, level, FormatJSON)
	slog.SetDefault(logger)
}

// Setup installs a default logger on stderr. The CLI uses it so stdout stays
// free for command output.
func Setup(level slog.Level, format string) error {
	logger, err := New(os.Stderr, level, format)
	if err != nil {
		return err
	}

	slog.SetDefault(logger)

	return nil
}
