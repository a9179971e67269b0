// Package gzipframe implements the gzip framing component (C7): a
// standard single-member gzip wrapper around a CPIO-odc byte stream, as
// consumed by the macOS installer's Payload and Scripts members.
package gzipframe

import (
	"compress/gzip"
	"fmt"
	"io"
)

// Wrap copies everything read from r through a gzip encoder at the
// default compression level and into w, with no filename or comment
// fields set.
func Wrap(w io.Writer, r io.Reader) error {
	gw, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("gzipframe: create writer: %w", err)
	}
	if _, err := io.Copy(gw, r); err != nil {
		gw.Close()
		return fmt.Errorf("gzipframe: compress: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("gzipframe: close: %w", err)
	}
	return nil
}
