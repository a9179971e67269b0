// Package bom implements the Bill-of-Materials writer (C8): the binary
// "BOMStore" format macOS's installer and lsbom read back out of a
// flat package. The container shape (magic header, indirect block
// table, named variable-length "vars" pointing at tree-shaped blocks)
// is the one documented by the bomutils reverse-engineering project;
// this writer synthesizes the minimal tree lsbom needs — one Paths
// leaf listing every entry in order, a BomInfo summary block, and a
// Size64 block — rather than a balancing B-tree, since a build never
// needs to mutate the tree once written.
package bom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

const magic = "BOMStore"

// Entry is one payload member recorded in the BOM (spec.md §3
// BomEntry). Dir entries carry Size 0 and CRC32 0.
type Entry struct {
	Path  string // "./"-prefixed install path, e.g. "./Applications/MyApp.app"
	Mode  uint16 // permission bits plus S_IFDIR/S_IFREG type bits
	IsDir bool
	Size  uint32
	CRC32 uint32
}

// ForFile returns the Entry for a regular file at path with contents
// content (its CRC-32 is computed here) and the given permission bits.
func ForFile(path string, perm uint16, content []byte) Entry {
	return Entry{
		Path:  path,
		Mode:  perm | 0o100000,
		IsDir: false,
		Size:  uint32(len(content)),
		CRC32: crc32.ChecksumIEEE(content),
	}
}

// ForDir returns the Entry for a directory at path.
func ForDir(path string, perm uint16) Entry {
	return Entry{Path: path, Mode: perm | 0o040000, IsDir: true}
}

// blockTable is the BOM's indirect block table of addressable blocks;
// block index 0 is reserved as the null pointer.
type blockTable struct {
	blocks [][]byte
}

func newBlockTable() *blockTable {
	return &blockTable{blocks: [][]byte{nil}} // index 0 = null block
}

func (bt *blockTable) alloc(data []byte) uint32 {
	bt.blocks = append(bt.blocks, data)
	return uint32(len(bt.blocks) - 1)
}

// Write serializes entries, in the order given, as a complete BOM file
// to w. Callers pass entries in the collector's lexicographic order
// (spec.md §5 ordering guarantee) so the BOM path listing matches the
// payload CPIO and the XAR TOC.
func Write(w io.Writer, entries []Entry) error {
	bt := newBlockTable()

	pathsBlock := buildPathsLeaf(bt, entries)
	bomInfoBlock := buildBomInfo(entries)
	size64Block := buildSize64(entries)

	bomInfoIdx := bt.alloc(bomInfoBlock)
	size64Idx := bt.alloc(size64Block)

	type namedVar struct {
		name string
		idx  uint32
	}
	vars := []namedVar{
		{"Paths", pathsBlock},
		{"BomInfo", bomInfoIdx},
		{"Size64", size64Idx},
	}

	// Lay the file out as: header, raw block contents (in allocation
	// order, address assigned sequentially), block table, vars table.
	const headerLen = 32

	var blockRegion bytes.Buffer
	addresses := make([]uint32, len(bt.blocks))
	lengths := make([]uint32, len(bt.blocks))
	for i, b := range bt.blocks {
		if i == 0 {
			continue // null block: address/length stay 0
		}
		addresses[i] = headerLen + uint32(blockRegion.Len())
		lengths[i] = uint32(len(b))
		blockRegion.Write(b)
	}

	indexOffset := headerLen + uint32(blockRegion.Len())
	var blockTableBuf bytes.Buffer
	writeU32(&blockTableBuf, uint32(len(bt.blocks)))
	for i := range bt.blocks {
		writeU32(&blockTableBuf, addresses[i])
		writeU32(&blockTableBuf, lengths[i])
	}
	indexLength := uint32(blockTableBuf.Len())

	varsOffset := indexOffset + indexLength
	var varsBuf bytes.Buffer
	writeU32(&varsBuf, uint32(len(vars)))
	for _, v := range vars {
		writeU32(&varsBuf, v.idx)
		varsBuf.WriteByte(byte(len(v.name)))
		varsBuf.WriteString(v.name)
	}
	varsLength := uint32(varsBuf.Len())

	var header bytes.Buffer
	header.WriteString(magic)
	writeU32(&header, 1) // version
	writeU32(&header, uint32(len(bt.blocks)))
	writeU32(&header, indexOffset)
	writeU32(&header, indexLength)
	writeU32(&header, varsOffset)
	writeU32(&header, varsLength)
	if header.Len() != headerLen {
		return fmt.Errorf("bom: internal header length %d, want %d", header.Len(), headerLen)
	}

	for _, chunk := range [][]byte{header.Bytes(), blockRegion.Bytes(), blockTableBuf.Bytes(), varsBuf.Bytes()} {
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("bom: write: %w", err)
		}
	}
	return nil
}

// buildPathsLeaf serializes every entry as fixed fields into one leaf
// block and registers it with bt, returning its block index.
func buildPathsLeaf(bt *blockTable, entries []Entry) uint32 {
	var buf bytes.Buffer
	writeU32(&buf, 1) // isLeaf
	writeU32(&buf, uint32(len(entries)))
	writeU32(&buf, 0) // forward (no next leaf)
	writeU32(&buf, 0) // backward (no previous leaf)
	for _, e := range entries {
		nameBlock := bt.alloc([]byte(e.Path + "\x00"))
		infoBlock := bt.alloc(encodePathInfo(e))
		writeU32(&buf, infoBlock)
		writeU32(&buf, nameBlock)
	}
	return bt.alloc(buf.Bytes())
}

// encodePathInfo is the per-entry fixed record: type, forced uid/gid,
// mode, mtime(unused, left 0), size, and CRC-32 (spec.md §3 BomEntry).
func encodePathInfo(e Entry) []byte {
	var buf bytes.Buffer
	typ := byte(1) // file
	if e.IsDir {
		typ = 2
	}
	buf.WriteByte(typ)
	writeU32(&buf, 0)            // uid forced to 0
	writeU32(&buf, 80)           // gid forced to 80
	writeU16(&buf, e.Mode)       // mode, including type bits
	writeU32(&buf, 0)            // mtime
	writeU32(&buf, e.Size)       // size (32-bit legacy field)
	writeU32(&buf, e.CRC32)      // CRC-32 of content, 0 for directories
	return buf.Bytes()
}

// buildBomInfo summarizes the entry count; real packages also record a
// per-entry type histogram, omitted here since lsbom does not surface it.
func buildBomInfo(entries []Entry) []byte {
	var buf bytes.Buffer
	writeU32(&buf, 1) // version
	writeU32(&buf, uint32(len(entries)))
	return buf.Bytes()
}

// buildSize64 records the 64-bit size of every entry, since the legacy
// 32-bit size field in encodePathInfo truncates for very large files.
func buildSize64(entries []Entry) []byte {
	var buf bytes.Buffer
	writeU32(&buf, uint32(len(entries)))
	for _, e := range entries {
		writeU64(&buf, uint64(e.Size))
	}
	return buf.Bytes()
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}
