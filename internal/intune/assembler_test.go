package intune

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MANCHTOOLS/pkgforge/internal/overwrite"
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

func TestBuildExtractRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "install.exe"), "fake installer bytes")
	writeTestFile(t, filepath.Join(src, "lib", "helper.dll"), "fake dll bytes")

	outDir := t.TempDir()

	result, err := Build(BuildRequest{
		SourceRoot:    src,
		SetupFileName: "install.exe",
		OutputDir:     outDir,
		OutputStem:    "MyApp",
		Overwrite:     overwrite.Fail,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.OutputPath != filepath.Join(outDir, "MyApp.intunewin") {
		t.Errorf("OutputPath = %q", result.OutputPath)
	}
	if result.UnencryptedContentSize <= 0 {
		t.Errorf("UnencryptedContentSize = %d", result.UnencryptedContentSize)
	}

	extractDir := t.TempDir()
	if err := Extract(ExtractRequest{InputFile: result.OutputPath, OutputDir: extractDir}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(extractDir, "install.exe"))
	if err != nil {
		t.Fatalf("read extracted install.exe: %v", err)
	}
	if string(got) != "fake installer bytes" {
		t.Errorf("install.exe content = %q", got)
	}

	got, err = os.ReadFile(filepath.Join(extractDir, "lib", "helper.dll"))
	if err != nil {
		t.Fatalf("read extracted lib/helper.dll: %v", err)
	}
	if string(got) != "fake dll bytes" {
		t.Errorf("lib/helper.dll content = %q", got)
	}
}

func TestBuildMissingSetupFile(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "readme.txt"), "nothing executable here")

	_, err := Build(BuildRequest{
		SourceRoot:    src,
		SetupFileName: "install.exe",
		OutputDir:     t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for missing setup file")
	}
}

func TestBuildRefusesOverwrite(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "install.exe"), "fake installer bytes")
	outDir := t.TempDir()

	req := BuildRequest{
		SourceRoot:    src,
		SetupFileName: "install.exe",
		OutputDir:     outDir,
		OutputStem:    "MyApp",
		Overwrite:     overwrite.Fail,
	}
	if _, err := Build(req); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	if _, err := Build(req); err == nil {
		t.Fatal("expected OutputExists error on second build")
	}
}

func TestSafeJoinRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	if _, err := safeJoin(dir, "../../etc/passwd"); err == nil {
		t.Fatal("expected path traversal rejection")
	}
	if _, err := safeJoin(dir, "nested/ok.txt"); err != nil {
		t.Fatalf("unexpected error for benign path: %v", err)
	}
}
