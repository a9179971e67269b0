package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/MANCHTOOLS/pkgforge/internal/intune"
	"github.com/MANCHTOOLS/pkgforge/internal/overwrite"
)

// runInteractive is the minimal prompt sequence that runs when pkgforge
// is invoked with no subcommand on a terminal: it collects the four
// values an Intune create needs and runs the build directly, rather than
// requiring the caller to already know the flag names.
func runInteractive() error {
	reader := bufio.NewReader(os.Stdin)

	source, err := ask(reader, "Source folder")
	if err != nil {
		return err
	}
	setup, err := ask(reader, "Setup file (within source folder)")
	if err != nil {
		return err
	}
	outputDir, err := ask(reader, "Output directory")
	if err != nil {
		return err
	}
	stem, err := ask(reader, "Output name (blank to use setup file name)")
	if err != nil {
		return err
	}

	log := newLogger(false, false)
	result, err := intune.Build(intune.BuildRequest{
		SourceRoot:    source,
		SetupFileName: setup,
		OutputDir:     outputDir,
		OutputStem:    stem,
		Overwrite:     overwrite.Prompt,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	fmt.Printf("wrote %s (%d bytes unencrypted content)\n", result.OutputPath, result.UnencryptedContentSize)
	return nil
}

func ask(reader *bufio.Reader, prompt string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
