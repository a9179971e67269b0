package pkgdescriptor

import (
	"strings"
	"testing"
)

func TestGeneratePackageInfoNoScripts(t *testing.T) {
	data, err := GeneratePackageInfo(PackageInfoOptions{
		Identifier:      "com.x.app",
		Version:         "1.0",
		InstallLocation: "/Applications",
		InstallKBytes:   1,
		NumberOfFiles:   1,
	})
	if err != nil {
		t.Fatalf("GeneratePackageInfo: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, `<?xml version="1.0"`) {
		t.Fatalf("missing xml declaration: %q", text[:40])
	}
	if !strings.Contains(text, `identifier="com.x.app"`) {
		t.Error("missing identifier attribute")
	}
	if !strings.Contains(text, `numberOfFiles="1"`) {
		t.Error("missing numberOfFiles attribute")
	}
	if strings.Contains(text, "<scripts>") {
		t.Error("scripts block should be absent when no scripts present")
	}
}

func TestGeneratePackageInfoWithScripts(t *testing.T) {
	data, err := GeneratePackageInfo(PackageInfoOptions{
		Identifier:     "com.x.app",
		Version:        "1.0",
		HasPreinstall:  true,
		HasPostinstall: true,
	})
	if err != nil {
		t.Fatalf("GeneratePackageInfo: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `<preinstall file="./preinstall">`) && !strings.Contains(text, `<preinstall file="./preinstall"`) {
		t.Errorf("missing preinstall element: %s", text)
	}
	if !strings.Contains(text, `<postinstall file="./postinstall"`) {
		t.Errorf("missing postinstall element: %s", text)
	}
}

func TestGeneratePackageInfoOnlyPreinstall(t *testing.T) {
	data, err := GeneratePackageInfo(PackageInfoOptions{
		Identifier:    "com.x.app",
		Version:       "1.0",
		HasPreinstall: true,
	})
	if err != nil {
		t.Fatalf("GeneratePackageInfo: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "postinstall") {
		t.Errorf("postinstall should be absent: %s", text)
	}
	if !strings.Contains(text, "preinstall") {
		t.Errorf("preinstall should be present: %s", text)
	}
}

func TestGenerateDistribution(t *testing.T) {
	data, err := GenerateDistribution(DistributionOptions{
		Title:         "MyApp",
		Identifier:    "com.x.app",
		Version:       "1.0",
		InstallKBytes: 42,
	})
	if err != nil {
		t.Fatalf("GenerateDistribution: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "<title>MyApp</title>") {
		t.Errorf("missing title: %s", text)
	}
	if !strings.Contains(text, `customize="never"`) {
		t.Error("missing customize attribute")
	}
	if !strings.Contains(text, `<pkg-ref id="com.x.app">#base.pkg</pkg-ref>`) &&
		!strings.Contains(text, `>#base.pkg<`) {
		t.Errorf("missing terminal pkg-ref: %s", text)
	}
	if strings.Count(text, "pkg-ref") < 2 {
		t.Error("expected both the choice's pkg-ref and the terminal pkg-ref")
	}
}
