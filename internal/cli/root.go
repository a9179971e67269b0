// Package cli implements the pkgforge command line: the cobra command
// tree for building and extracting .intunewin packages and building
// macOS flat .pkg installers, plus a thin interactive fallback when the
// tool is invoked with no subcommand on a terminal.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MANCHTOOLS/pkgforge/internal/pkgerrors"
)

// Version is set by Execute from the version string main.go passes in.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "pkgforge",
	Short: "Build Intune .intunewin packages and macOS flat installer packages",
	Long: `pkgforge packages application source trees into the two installer
formats Intune and macOS Apple's installer expect:

  - Microsoft Intune Win32 apps (.intunewin)
  - macOS flat installer packages (.pkg)`,
	Version: Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return cmd.Help()
		}
		if !stdinIsTerminal() {
			return cmd.Help()
		}
		return runInteractive()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

// Execute runs the CLI, mapping any returned error's pkgerrors.Kind to
// the spec's process exit code and returning that code to main.
func Execute(version string) int {
	Version = version
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pkgforge:", err)
		return pkgerrors.KindOf(err).ExitCode()
	}
	return 0
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func levelFromFlags(quiet, silent bool) slog.Level {
	switch {
	case silent:
		return slog.LevelError + 1 // above Error: suppresses all handler output
	case quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func newLogger(quiet, silent bool) *slog.Logger {
	return loggerAtLevel(levelFromFlags(quiet, silent))
}
