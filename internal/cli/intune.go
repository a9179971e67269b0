package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MANCHTOOLS/pkgforge/internal/intune"
)

var intuneCmd = &cobra.Command{
	Use:   "intune",
	Short: "Build or extract Intune Win32 .intunewin packages",
}

func init() {
	rootCmd.AddCommand(intuneCmd)
	intuneCmd.AddCommand(intuneCreateCmd)
	intuneCmd.AddCommand(intuneExtractCmd)
}

var (
	intuneCreateSource    string
	intuneCreateSetup     string
	intuneCreateOutputDir string
	intuneCreateStem      string
	intuneCreateOverwrite string
	intuneCreateQuiet     bool
	intuneCreateSilent    bool
)

var intuneCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Package a source folder into an .intunewin file",
	Example: `  pkgforge intune create -c ./myapp -s install.exe -o ./dist
  pkgforge intune create -c ./myapp -s install.exe -o ./dist -n MyApp --overwrite force`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runIntuneCreate,
}

func init() {
	f := intuneCreateCmd.Flags()
	f.StringVarP(&intuneCreateSource, "content", "c", "", "Source folder containing the application files (required)")
	f.StringVarP(&intuneCreateSetup, "setup", "s", "", "Name of the setup file within the source folder (required)")
	f.StringVarP(&intuneCreateOutputDir, "output", "o", "", "Output directory for the .intunewin file (required)")
	f.StringVarP(&intuneCreateStem, "name", "n", "", "Output file stem, defaults to the setup file's name without its extension")
	f.StringVar(&intuneCreateOverwrite, "overwrite", "prompt", "Overwrite policy if the output already exists: prompt, force, or fail")
	f.BoolVarP(&intuneCreateQuiet, "quiet", "q", false, "Reduce log verbosity to warnings and above")
	f.BoolVar(&intuneCreateSilent, "silent", false, "Suppress all log output")

	_ = intuneCreateCmd.MarkFlagRequired("content")
	_ = intuneCreateCmd.MarkFlagRequired("setup")
	_ = intuneCreateCmd.MarkFlagRequired("output")
}

func runIntuneCreate(cmd *cobra.Command, args []string) error {
	policy, err := parseOverwrite(intuneCreateOverwrite)
	if err != nil {
		return err
	}
	log := newLogger(intuneCreateQuiet, intuneCreateSilent)

	result, err := intune.Build(intune.BuildRequest{
		SourceRoot:    intuneCreateSource,
		SetupFileName: intuneCreateSetup,
		OutputDir:     intuneCreateOutputDir,
		OutputStem:    intuneCreateStem,
		Overwrite:     policy,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	if !intuneCreateSilent {
		fmt.Printf("wrote %s (%d bytes unencrypted content)\n", result.OutputPath, result.UnencryptedContentSize)
	}
	return nil
}

var (
	intuneExtractInput     string
	intuneExtractOutputDir string
	intuneExtractQuiet     bool
	intuneExtractSilent    bool
)

var intuneExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract an .intunewin file's contents",
	Example: `  pkgforge intune extract -u ./MyApp.intunewin -o ./extracted`,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runIntuneExtract,
}

func init() {
	f := intuneExtractCmd.Flags()
	f.StringVarP(&intuneExtractInput, "unpack", "u", "", "Path to the .intunewin file to extract (required)")
	f.StringVarP(&intuneExtractOutputDir, "output", "o", "", "Directory to extract contents into (required)")
	f.BoolVarP(&intuneExtractQuiet, "quiet", "q", false, "Reduce log verbosity to warnings and above")
	f.BoolVar(&intuneExtractSilent, "silent", false, "Suppress all log output")

	_ = intuneExtractCmd.MarkFlagRequired("unpack")
	_ = intuneExtractCmd.MarkFlagRequired("output")
}

func runIntuneExtract(cmd *cobra.Command, args []string) error {
	log := newLogger(intuneExtractQuiet, intuneExtractSilent)

	if err := intune.Extract(intune.ExtractRequest{
		InputFile: intuneExtractInput,
		OutputDir: intuneExtractOutputDir,
		Logger:    log,
	}); err != nil {
		return err
	}

	if !intuneExtractSilent {
		fmt.Printf("extracted to %s\n", intuneExtractOutputDir)
	}
	return nil
}
