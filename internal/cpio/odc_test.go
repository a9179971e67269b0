package cpio

import (
	"bytes"
	"strconv"
	"strings"
	"testing"
)

func TestWriteEntryHeaderFields(t *testing.T) {
	var out bytes.Buffer
	w := New(&out)

	if err := w.WriteEntry(Entry{Name: "./Applications", IsDir: true, Mode: 0o755}); err != nil {
		t.Fatalf("WriteEntry dir: %v", err)
	}
	content := []byte("hello")
	if err := w.WriteEntry(Entry{
		Name: "./Applications/a.txt",
		Mode: 0o644,
		Size: int64(len(content)),
		Body: bytes.NewReader(content),
	}); err != nil {
		t.Fatalf("WriteEntry file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data := out.Bytes()

	if string(data[:6]) != magic {
		t.Fatalf("magic = %q, want %q", data[:6], magic)
	}

	mode, err := strconv.ParseInt(string(data[18:24]), 8, 64)
	if err != nil {
		t.Fatalf("parse mode: %v", err)
	}
	if mode&modeDir == 0 {
		t.Error("first entry should have directory mode bit set")
	}

	ino1, _ := strconv.ParseInt(string(data[6+6:6+12]), 8, 64)
	if ino1 != 1 {
		t.Errorf("first inode = %d, want 1", ino1)
	}

	if !strings.Contains(string(data), "TRAILER!!!") {
		t.Fatal("missing TRAILER!!! terminator")
	}
	if !bytes.Contains(data, content) {
		t.Fatal("file content missing from archive")
	}
}

func TestInodesAreMonotonic(t *testing.T) {
	var out bytes.Buffer
	w := New(&out)
	for i := 0; i < 3; i++ {
		if err := w.WriteEntry(Entry{Name: "f", IsDir: true}); err != nil {
			t.Fatalf("WriteEntry %d: %v", i, err)
		}
	}
	if w.nextIno != 4 {
		t.Errorf("nextIno = %d, want 4", w.nextIno)
	}
}
