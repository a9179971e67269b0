// Package cpio implements the CPIO-odc writer (C6): the ASCII-header
// portable-format archive macOS flat packages use for both the payload
// and the scripts archive.
package cpio

import (
	"fmt"
	"io"
)

const (
	magic        = "070707"
	trailerName  = "TRAILER!!!"
	odcHeaderLen = 76

	// forcedUID and forcedGID are stamped on every entry regardless of
	// the source file's ownership (spec.md §3 PayloadEntry).
	forcedUID = 0
	forcedGID = 80

	modeDir = 0o040000
	modeReg = 0o100000
)

// Entry is one file or directory to archive.
type Entry struct {
	Name  string // archive-relative path, forward-slash separated
	Mode  uint32 // permission bits only (no type bits); see modeDir/modeReg handling
	IsDir bool
	Size  int64
	Body  io.Reader // nil for directories
	Mtime int64     // unix seconds
}

// Writer emits entries in CPIO-odc form to an underlying sink, assigning
// monotonically increasing inode numbers starting at 1.
type Writer struct {
	w       io.Writer
	nextIno uint32
}

// New returns a Writer over w.
func New(w io.Writer) *Writer {
	return &Writer{w: w, nextIno: 1}
}

// WriteEntry emits one header, its NUL-terminated name, and its
// unpadded content (odc entries are not block-aligned).
func (cw *Writer) WriteEntry(e Entry) error {
	mode := e.Mode & 0o7777
	size := e.Size
	if e.IsDir {
		mode |= modeDir
		size = 0
	} else {
		mode |= modeReg
	}

	header := fmt.Sprintf(
		"%s%06o%06o%06o%06o%06o%06o%06o%011o%06o%011o",
		magic,
		0,                   // c_dev
		cw.nextIno,          // c_ino
		mode,                // c_mode
		forcedUID,           // c_uid
		forcedGID,           // c_gid
		1,                   // c_nlink
		0,                   // c_rdev
		e.Mtime,             // c_mtime
		len(e.Name)+1,       // c_namesize (includes NUL)
		size,                // c_filesize
	)
	if len(header) != odcHeaderLen {
		return fmt.Errorf("cpio: internal header length %d, want %d", len(header), odcHeaderLen)
	}
	cw.nextIno++

	if _, err := io.WriteString(cw.w, header); err != nil {
		return fmt.Errorf("cpio: write header for %q: %w", e.Name, err)
	}
	if _, err := io.WriteString(cw.w, e.Name+"\x00"); err != nil {
		return fmt.Errorf("cpio: write name for %q: %w", e.Name, err)
	}
	if !e.IsDir && e.Body != nil {
		n, err := io.Copy(cw.w, e.Body)
		if err != nil {
			return fmt.Errorf("cpio: write body for %q: %w", e.Name, err)
		}
		if n != size {
			return fmt.Errorf("cpio: %q wrote %d bytes, expected %d", e.Name, n, size)
		}
	}
	return nil
}

// Close writes the TRAILER!!! terminator entry.
func (cw *Writer) Close() error {
	return cw.WriteEntry(Entry{Name: trailerName, Mode: 0, IsDir: false, Size: 0})
}
