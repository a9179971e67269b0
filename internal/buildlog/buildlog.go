// Package buildlog provides the structured logger every build operation
// runs under, tagged with a per-invocation correlation ID so multi-step
// output (collect, encrypt, assemble) can be tied back to one build in
// aggregated logs.
package buildlog

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// New returns a slog.Logger writing text-handler output to stderr at the
// given level, with a "build_id" attribute attached to every record so a
// single invocation's log lines can be grepped out of concurrent runs.
func New(level slog.Level) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("build_id", uuid.NewString())
}

// ParseLevel maps a level name ("debug", "info", "warn", "error") onto a
// slog.Level, defaulting to Info for an empty or unrecognized value.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
