// Package overwrite implements the shared output-overwrite policy both
// assemblers (intune and macpkg) enforce before creating their output
// file (spec.md §3, §7).
package overwrite

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/MANCHTOOLS/pkgforge/internal/pkgerrors"
)

// Policy controls what happens when the target output file already
// exists.
type Policy int

const (
	// Prompt asks on stdin when stdin is a character device (normally a
	// TTY), and behaves like Fail otherwise; an unanswered prompt counts
	// as declined (spec.md supplemented feature, see SPEC_FULL.md).
	Prompt Policy = iota
	Force
	Fail
)

// Check enforces policy against an existing file at path.
func Check(path string, policy Policy) error {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return pkgerrors.New(pkgerrors.OutputWriteError, path, err)
	}

	switch policy {
	case Force:
		return nil
	case Fail:
		return pkgerrors.New(pkgerrors.OutputExists, path, nil)
	case Prompt:
		if !stdinIsTerminal() {
			return pkgerrors.New(pkgerrors.OutputExists, path, nil)
		}
		ok, err := askYesNo(fmt.Sprintf("%s exists, overwrite?", path))
		if err != nil || !ok {
			// No readable answer (e.g. EOF from /dev/null, which is also a
			// character device) counts as declined.
			return pkgerrors.New(pkgerrors.OutputExists, path, nil)
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.OutputExists, path, nil)
	}
}

func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func askYesNo(prompt string) (bool, error) {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
