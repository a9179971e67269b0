// Package ziputil implements the streaming ZIP writer (C2): ZIP-2.0 local
// file records with DEFLATE, a central directory and EOCD, written over
// an arbitrary sink with bounded memory — one DEFLATE buffer per entry.
package ziputil

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/MANCHTOOLS/pkgforge/internal/collect"
)

// copyBufSize bounds the working memory per streamed entry (spec.md
// §4.2: "≤ 256 KiB").
const copyBufSize = 256 * 1024

// Writer wraps archive/zip.Writer: forward-slash names, DEFLATE, and no
// ZIP-level encryption. General-purpose bit 0x0800 is set only where
// archive/zip sets it, for names that need UTF-8; plain-ASCII names are
// written without it. Every entry records Unix permission bits in its
// external attributes: 0644 from AddBytes/AddStream, and the source
// file's permission bits from AddPackage.
type Writer struct {
	zw *zip.Writer
}

// New wraps w in a streaming ZIP writer.
func New(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// AddBytes writes a single DEFLATE entry with the given content.
func (w *Writer) AddBytes(name string, content []byte) error {
	header := &zip.FileHeader{
		Name:   toArchiveName(name),
		Method: zip.Deflate,
	}
	header.SetMode(0o644)
	entry, err := w.zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = entry.Write(content)
	return err
}

// AddStream writes a single DEFLATE entry by copying from r in bounded
// chunks, returning the number of uncompressed bytes written.
func (w *Writer) AddStream(name string, r io.Reader) (int64, error) {
	header := &zip.FileHeader{
		Name:   toArchiveName(name),
		Method: zip.Deflate,
	}
	header.SetMode(0o644)
	entry, err := w.zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, copyBufSize)
	return io.CopyBuffer(entry, r, buf)
}

// AddPackage streams every member of pkg into the archive, rooted under
// baseDir (pass "" for no extra prefix). Entries are written in the
// package's already-deterministic order.
func (w *Writer) AddPackage(pkg *collect.Package, baseDir string) error {
	buf := make([]byte, copyBufSize)
	for _, f := range pkg.Files {
		name := f.RelPath
		if baseDir != "" {
			name = baseDir + "/" + name
		}
		header := &zip.FileHeader{
			Name:   toArchiveName(name),
			Method: zip.Deflate,
		}
		header.SetMode(f.Mode.Perm())
		entry, err := w.zw.CreateHeader(header)
		if err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		_, err = io.CopyBuffer(entry, src, buf)
		closeErr := src.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

// Close finalizes the central directory and EOCD.
func (w *Writer) Close() error {
	return w.zw.Close()
}

func toArchiveName(name string) string {
	return strings.ReplaceAll(name, "\\", "/")
}
