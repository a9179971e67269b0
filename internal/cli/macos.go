package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MANCHTOOLS/pkgforge/internal/macpkg"
)

var macosCmd = &cobra.Command{
	Use:   "macos",
	Short: "Build macOS flat installer packages",
}

func init() {
	rootCmd.AddCommand(macosCmd)
	macosCmd.AddCommand(macosPkgCmd)
}

var (
	macosPkgSource          string
	macosPkgOutputDir       string
	macosPkgIdentifier      string
	macosPkgVersion         string
	macosPkgInstallLocation string
	macosPkgScriptsDir      string
	macosPkgStem            string
	macosPkgOverwrite       string
	macosPkgQuiet           bool
	macosPkgSilent          bool
)

var macosPkgCmd = &cobra.Command{
	Use:   "pkg",
	Short: "Package a source folder into a macOS flat .pkg installer",
	Example: `  pkgforge macos pkg -c ./MyApp.app -o ./dist --identifier com.example.myapp --version 1.0
  pkgforge macos pkg -c ./payload -o ./dist --identifier com.example.tool --version 2.1 \
    --install-location /usr/local --scripts ./scripts`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runMacosPkg,
}

func init() {
	f := macosPkgCmd.Flags()
	f.StringVarP(&macosPkgSource, "content", "c", "", "Source folder whose contents become the package payload (required)")
	f.StringVarP(&macosPkgOutputDir, "output", "o", "", "Output directory for the .pkg file (required)")
	f.StringVar(&macosPkgIdentifier, "identifier", "", "Package identifier, e.g. com.example.myapp (required)")
	f.StringVar(&macosPkgVersion, "version", "", "Package version string (required)")
	f.StringVar(&macosPkgInstallLocation, "install-location", "/", "Absolute install location for the payload")
	f.StringVar(&macosPkgScriptsDir, "scripts", "", "Directory containing optional preinstall/postinstall scripts")
	f.StringVarP(&macosPkgStem, "name", "n", "", "Output file stem, defaults to the identifier")
	f.StringVar(&macosPkgOverwrite, "overwrite", "prompt", "Overwrite policy if the output already exists: prompt, force, or fail")
	f.BoolVarP(&macosPkgQuiet, "quiet", "q", false, "Reduce log verbosity to warnings and above")
	f.BoolVar(&macosPkgSilent, "silent", false, "Suppress all log output")

	_ = macosPkgCmd.MarkFlagRequired("content")
	_ = macosPkgCmd.MarkFlagRequired("output")
	_ = macosPkgCmd.MarkFlagRequired("identifier")
	_ = macosPkgCmd.MarkFlagRequired("version")
}

func runMacosPkg(cmd *cobra.Command, args []string) error {
	policy, err := parseOverwrite(macosPkgOverwrite)
	if err != nil {
		return err
	}
	log := newLogger(macosPkgQuiet, macosPkgSilent)

	result, err := macpkg.Build(macpkg.BuildRequest{
		SourceRoot:      macosPkgSource,
		Identifier:      macosPkgIdentifier,
		Version:         macosPkgVersion,
		InstallLocation: macosPkgInstallLocation,
		ScriptsDir:      macosPkgScriptsDir,
		OutputDir:       macosPkgOutputDir,
		OutputStem:      macosPkgStem,
		Overwrite:       policy,
		CreationTime:    buildStartTime(),
		Logger:          log,
	})
	if err != nil {
		return err
	}

	if !macosPkgSilent {
		fmt.Printf("wrote %s (%d files, %d KB)\n", result.OutputPath, result.NumberOfFiles, result.InstallKBytes)
	}
	return nil
}
