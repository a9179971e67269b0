package xar

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"encoding/xml"
	"io"
	"testing"
)

func TestWriteHeaderAndTOC(t *testing.T) {
	distSum := sha1.Sum([]byte("<installer-script/>"))
	bomSum := sha1.Sum([]byte("bom-bytes"))

	members := []Member{
		BytesMember("Distribution", []byte("<installer-script/>"), 19, distSum, ""),
		BytesMember("base.pkg/Bom", []byte("bom-bytes"), 9, bomSum, ""),
	}

	var out bytes.Buffer
	if err := Write(&out, members, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data := out.Bytes()
	if len(data) < headerSize {
		t.Fatalf("output too short: %d bytes", len(data))
	}
	if binary.BigEndian.Uint32(data[0:]) != magic {
		t.Fatal("missing xar! magic")
	}
	if binary.BigEndian.Uint16(data[4:]) != headerSize {
		t.Fatal("unexpected header size field")
	}
	if binary.BigEndian.Uint16(data[6:]) != version {
		t.Fatal("unexpected version field")
	}
	tocCLen := binary.BigEndian.Uint64(data[8:])
	tocULen := binary.BigEndian.Uint64(data[16:])
	if binary.BigEndian.Uint32(data[24:]) != checksumSHA1 {
		t.Fatal("unexpected checksum algorithm field")
	}

	rest := data[headerSize:]
	compressedTOC := rest[:tocCLen]
	tocSum := rest[tocCLen : tocCLen+20]
	heap := rest[tocCLen+20:]

	gotSum := sha1.Sum(compressedTOC)
	if !bytes.Equal(gotSum[:], tocSum) {
		t.Fatal("toc checksum mismatch")
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressedTOC))
	if err != nil {
		t.Fatalf("zlib.NewReader: %v", err)
	}
	tocXMLBytes, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading decompressed toc: %v", err)
	}
	if uint64(len(tocXMLBytes)) != tocULen {
		t.Fatalf("toc uncompressed length = %d, want %d", len(tocXMLBytes), tocULen)
	}

	var doc tocXML
	if err := xml.Unmarshal(tocXMLBytes, &doc); err != nil {
		t.Fatalf("unmarshal toc: %v", err)
	}
	if len(doc.TOC.Files) != 2 {
		t.Fatalf("top-level file count = %d, want 2", len(doc.TOC.Files))
	}
	if doc.TOC.Files[0].Name != "Distribution" {
		t.Errorf("first file = %q", doc.TOC.Files[0].Name)
	}
	if doc.TOC.Files[1].Name != "base.pkg" || doc.TOC.Files[1].Type != "directory" {
		t.Fatalf("expected base.pkg directory, got %+v", doc.TOC.Files[1])
	}
	if len(doc.TOC.Files[1].Files) != 1 || doc.TOC.Files[1].Files[0].Name != "Bom" {
		t.Fatalf("expected Bom under base.pkg, got %+v", doc.TOC.Files[1].Files)
	}

	bomFile := doc.TOC.Files[1].Files[0]
	archived := heap[bomFile.Data.Offset : bomFile.Data.Offset+bomFile.Data.Length]
	if !bytes.Equal(archived, []byte("bom-bytes")) {
		t.Errorf("heap slice for Bom = %q", archived)
	}
}

func TestSplitPath(t *testing.T) {
	got := splitPath("base.pkg/Payload")
	if len(got) != 2 || got[0] != "base.pkg" || got[1] != "Payload" {
		t.Fatalf("splitPath = %v", got)
	}
	if got := splitPath("Distribution"); len(got) != 1 || got[0] != "Distribution" {
		t.Fatalf("splitPath(no slash) = %v", got)
	}
}
