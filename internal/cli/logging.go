package cli

import (
	"fmt"
	"log/slog"

	"github.com/MANCHTOOLS/pkgforge/internal/buildlog"
	"github.com/MANCHTOOLS/pkgforge/internal/overwrite"
)

func loggerAtLevel(level slog.Level) *slog.Logger {
	return buildlog.New(level)
}

// parseOverwrite maps the --overwrite flag value onto an overwrite.Policy.
func parseOverwrite(s string) (overwrite.Policy, error) {
	switch s {
	case "", "prompt":
		return overwrite.Prompt, nil
	case "force":
		return overwrite.Force, nil
	case "fail":
		return overwrite.Fail, nil
	default:
		return overwrite.Prompt, fmt.Errorf("invalid --overwrite value %q (want prompt, force, or fail)", s)
	}
}
