package bom

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteHeaderShape(t *testing.T) {
	entries := []Entry{
		ForDir("./Applications", 0o755),
		ForFile("./Applications/MyApp.app/Contents/Info.plist", 0o644, []byte("plist-bytes")),
	}

	var out bytes.Buffer
	if err := Write(&out, entries); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data := out.Bytes()
	if len(data) < 24 {
		t.Fatalf("output too short: %d bytes", len(data))
	}
	if string(data[:8]) != magic {
		t.Fatalf("magic = %q, want %q", data[:8], magic)
	}
	version := binary.BigEndian.Uint32(data[8:])
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	numBlocks := binary.BigEndian.Uint32(data[12:])
	indexOffset := binary.BigEndian.Uint32(data[16:])
	indexLength := binary.BigEndian.Uint32(data[20:])

	if indexOffset == 0 || indexOffset >= uint32(len(data)) {
		t.Fatalf("indexOffset %d out of range for %d-byte file", indexOffset, len(data))
	}
	tableCount := binary.BigEndian.Uint32(data[indexOffset:])
	if tableCount != numBlocks {
		t.Errorf("block table count = %d, want %d", tableCount, numBlocks)
	}
	if indexLength != 4+numBlocks*8 {
		t.Errorf("indexLength = %d, want %d", indexLength, 4+numBlocks*8)
	}
}

func TestForFileComputesCRC32(t *testing.T) {
	e := ForFile("./a", 0o644, []byte("hello"))
	if e.CRC32 == 0 {
		t.Fatal("expected non-zero CRC32 for non-empty content")
	}
	if e.Size != 5 {
		t.Errorf("Size = %d, want 5", e.Size)
	}
	if e.Mode&0o100000 == 0 {
		t.Error("expected regular-file type bit set")
	}
}

func TestForDirHasNoContent(t *testing.T) {
	e := ForDir("./dir", 0o755)
	if e.Size != 0 || e.CRC32 != 0 {
		t.Errorf("directory entry should have zero size/crc, got size=%d crc=%d", e.Size, e.CRC32)
	}
	if e.Mode&0o040000 == 0 {
		t.Error("expected directory type bit set")
	}
}
