package gzipframe

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestWrapProducesValidGzipMember(t *testing.T) {
	payload := bytes.Repeat([]byte("cpio-odc-bytes"), 500)

	var out bytes.Buffer
	if err := Wrap(&out, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading decompressed stream: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestWrapEmptyInput(t *testing.T) {
	var out bytes.Buffer
	if err := Wrap(&out, bytes.NewReader(nil)); err != nil {
		t.Fatalf("Wrap empty: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty output, got %d bytes", len(got))
	}
}
