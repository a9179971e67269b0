package buildlog

import (
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG",
		"warn":  "WARN",
		"error": "ERROR",
		"info":  "INFO",
		"":      "INFO",
		"bogus": "INFO",
	}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewAttachesBuildID(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stderr-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	orig := os.Stderr
	os.Stderr = f // New binds its handler to os.Stderr at call time
	log := New(ParseLevel("info"))
	os.Stderr = orig
	if log == nil {
		t.Fatal("New returned nil logger")
	}
	log.Info("hello")
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "build_id=") {
		t.Errorf("log record %q has no build_id attribute", data)
	}
}
