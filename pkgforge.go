// Package pkgforge is a Go library for building Microsoft Intune Win32
// .intunewin packages and macOS flat installer .pkg packages.
//
// This package can be used as a library or via the pkgforge CLI tool
// whose main package is cmd/pkgforge.
//
// Library usage:
//
//	import "github.com/MANCHTOOLS/pkgforge"
//
//	result, err := pkgforge.CreateIntunePackage(pkgforge.IntunePackageRequest{
//	    SourceDir: "/path/to/app",
//	    SetupFile: "install.exe",
//	    OutputDir: "/path/to/output",
//	})
//
// The implementation lives in internal packages, which Go does not let
// code outside this module import:
//   - github.com/MANCHTOOLS/pkgforge/internal/intune - Intune assembler
//   - github.com/MANCHTOOLS/pkgforge/internal/macpkg - macOS assembler
//   - github.com/MANCHTOOLS/pkgforge/internal/intunecrypto - AES-256-CBC + HMAC
//   - github.com/MANCHTOOLS/pkgforge/internal/intunexml - Detection.xml codec
package pkgforge

import (
	"log/slog"
	"time"

	"github.com/MANCHTOOLS/pkgforge/internal/intune"
	"github.com/MANCHTOOLS/pkgforge/internal/macpkg"
	"github.com/MANCHTOOLS/pkgforge/internal/overwrite"
)

// OverwritePolicy controls what CreateIntunePackage/CreateMacosPackage do
// when the target output file already exists.
type OverwritePolicy = overwrite.Policy

const (
	OverwritePrompt = overwrite.Prompt
	OverwriteForce  = overwrite.Force
	OverwriteFail   = overwrite.Fail
)

// IntunePackageRequest is the library entry point's configuration for
// building an .intunewin package (spec.md §3).
type IntunePackageRequest struct {
	SourceDir  string
	SetupFile  string
	OutputDir  string
	OutputName string // optional; defaults to SetupFile's name without its extension
	Overwrite  OverwritePolicy
	Logger     *slog.Logger
}

// IntunePackageResult describes the package CreateIntunePackage produced.
type IntunePackageResult struct {
	OutputPath             string
	UnencryptedContentSize int64
}

// CreateIntunePackage builds an .intunewin package from a source directory.
func CreateIntunePackage(req IntunePackageRequest) (*IntunePackageResult, error) {
	result, err := intune.Build(intune.BuildRequest{
		SourceRoot:    req.SourceDir,
		SetupFileName: req.SetupFile,
		OutputDir:     req.OutputDir,
		OutputStem:    req.OutputName,
		Overwrite:     req.Overwrite,
		Logger:        req.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &IntunePackageResult{
		OutputPath:             result.OutputPath,
		UnencryptedContentSize: result.UnencryptedContentSize,
	}, nil
}

// ExtractIntunePackageRequest configures ExtractIntunePackage.
type ExtractIntunePackageRequest struct {
	InputFile string
	OutputDir string
	Logger    *slog.Logger
}

// ExtractIntunePackage unpacks an .intunewin file's verified, decrypted
// contents into OutputDir.
func ExtractIntunePackage(req ExtractIntunePackageRequest) error {
	return intune.Extract(intune.ExtractRequest{
		InputFile: req.InputFile,
		OutputDir: req.OutputDir,
		Logger:    req.Logger,
	})
}

// MacosPackageRequest is the library entry point's configuration for
// building a macOS flat installer package (spec.md §3).
type MacosPackageRequest struct {
	SourceDir       string
	Identifier      string
	Version         string
	InstallLocation string // optional; defaults to "/"
	ScriptsDir      string // optional
	OutputDir       string
	OutputName      string // optional; defaults to Identifier
	Overwrite       OverwritePolicy
	CreationTime    string // RFC 3339; optional, defaults to time of build
	Logger          *slog.Logger
}

// MacosPackageResult describes the package CreateMacosPackage produced.
type MacosPackageResult struct {
	OutputPath    string
	InstallKBytes int64
	NumberOfFiles int64
	HasScripts    bool
}

// CreateMacosPackage builds a macOS flat .pkg installer from a source
// directory.
func CreateMacosPackage(req MacosPackageRequest) (*MacosPackageResult, error) {
	creationTime := req.CreationTime
	if creationTime == "" {
		creationTime = time.Now().UTC().Format(time.RFC3339)
	}

	result, err := macpkg.Build(macpkg.BuildRequest{
		SourceRoot:      req.SourceDir,
		Identifier:      req.Identifier,
		Version:         req.Version,
		InstallLocation: req.InstallLocation,
		ScriptsDir:      req.ScriptsDir,
		OutputDir:       req.OutputDir,
		OutputStem:      req.OutputName,
		Overwrite:       req.Overwrite,
		CreationTime:    creationTime,
		Logger:          req.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &MacosPackageResult{
		OutputPath:    result.OutputPath,
		InstallKBytes: result.InstallKBytes,
		NumberOfFiles: result.NumberOfFiles,
		HasScripts:    result.HasScripts,
	}, nil
}
