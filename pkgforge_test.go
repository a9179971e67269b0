package pkgforge

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndExtractIntunePackage(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "install.exe"), "fake installer bytes")

	outDir := t.TempDir()
	result, err := CreateIntunePackage(IntunePackageRequest{
		SourceDir:  src,
		SetupFile:  "install.exe",
		OutputDir:  outDir,
		OutputName: "MyApp",
		Overwrite:  OverwriteFail,
	})
	if err != nil {
		t.Fatalf("CreateIntunePackage: %v", err)
	}
	if result.OutputPath != filepath.Join(outDir, "MyApp.intunewin") {
		t.Errorf("OutputPath = %q", result.OutputPath)
	}

	extractDir := t.TempDir()
	if err := ExtractIntunePackage(ExtractIntunePackageRequest{
		InputFile: result.OutputPath,
		OutputDir: extractDir,
	}); err != nil {
		t.Fatalf("ExtractIntunePackage: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(extractDir, "install.exe"))
	if err != nil {
		t.Fatalf("read extracted install.exe: %v", err)
	}
	if string(got) != "fake installer bytes" {
		t.Errorf("install.exe content = %q", got)
	}
}

func TestCreateMacosPackage(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "bin", "tool"), "tool content")

	outDir := t.TempDir()
	result, err := CreateMacosPackage(MacosPackageRequest{
		SourceDir:  src,
		Identifier: "com.example.tool",
		Version:    "1.0",
		OutputDir:  outDir,
		Overwrite:  OverwriteFail,
	})
	if err != nil {
		t.Fatalf("CreateMacosPackage: %v", err)
	}
	if result.OutputPath != filepath.Join(outDir, "com.example.tool-1.0.pkg") {
		t.Errorf("OutputPath = %q", result.OutputPath)
	}
	if result.NumberOfFiles != 1 {
		t.Errorf("NumberOfFiles = %d, want 1", result.NumberOfFiles)
	}
}
