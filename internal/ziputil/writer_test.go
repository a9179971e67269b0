package ziputil

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"
)

func TestAddBytesAndStream(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)
	if err := w.AddBytes("a.txt", []byte("hello")); err != nil {
		t.Fatalf("AddBytes: %v", err)
	}
	n, err := w.AddStream("b.txt", bytes.NewReader([]byte("world!!")))
	if err != nil {
		t.Fatalf("AddStream: %v", err)
	}
	if n != 7 {
		t.Errorf("AddStream returned %d, want 7", n)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("got %d entries, want 2", len(zr.File))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		switch f.Name {
		case "a.txt":
			if string(data) != "hello" {
				t.Errorf("a.txt = %q", data)
			}
		case "b.txt":
			if string(data) != "world!!" {
				t.Errorf("b.txt = %q", data)
			}
		default:
			t.Errorf("unexpected entry %s", f.Name)
		}
	}
}
