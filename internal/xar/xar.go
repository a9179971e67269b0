// Package xar implements the XAR writer (C9): the cross-archive
// container format that wraps a macOS flat installer package. The wire
// layout mirrors the reader golang.org/x/build's gorebuild and
// x/build/internal/task use to verify release .pkg files — this is the
// encoder side of that same format.
//
// Members are spooled to temp files one at a time rather than held
// together in a single in-memory heap, since the TOC that must precede
// the heap on disk depends on each member's length and checksum.
package xar

import (
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// heapCopyBufSize bounds the working memory per member while it's
// spooled into or out of the heap (spec.md §4.2/§9).
const heapCopyBufSize = 256 * 1024

const (
	magic        = 0x78617221 // "xar!"
	headerSize   = 28
	version      = 1
	checksumSHA1 = 1

	// EncodingOctet marks a member stored without additional
	// compression; EncodingGzip marks one that was already
	// gzip-compressed upstream (e.g. by the gzipframe package).
	EncodingOctet = "application/octet-stream"
	EncodingGzip  = "application/x-gzip"
)

// Member is one file to place in the heap, already archived (compressed
// or not, per Encoding). Offsets and IDs are assigned during Write.
type Member struct {
	// Path is the slash-separated location inside the TOC, e.g.
	// "base.pkg/Payload" or "Distribution".
	Path string
	// Open lazily opens the exact byte stream to place in the heap. It
	// is called once by Write and the returned ReadCloser is read to
	// completion and closed before the next member is opened, so the
	// heap is built one member's spool at a time rather than all of
	// them resident in memory together (spec.md §4.2/§9).
	Open func() (io.ReadCloser, error)
	// ExtractedSize is the decompressed/decoded byte length.
	ExtractedSize int64
	// ExtractedSHA1 is the SHA-1 of the extracted (pre-compression)
	// content. Write only ever sees the archived stream from Open, so
	// this must be computed by the caller while the plain bytes are
	// still at hand.
	ExtractedSHA1 [sha1.Size]byte
	// Encoding is "application/octet-stream" (stored) or
	// "application/x-gzip" (already gzip-compressed upstream).
	Encoding string
}

// BytesMember builds a Member whose archived content is the in-memory
// slice data, for small metadata documents (Distribution, Bom,
// PackageInfo) where holding the whole thing in memory is negligible
// and the caller has no streaming source to offer.
func BytesMember(path string, data []byte, extractedSize int64, extractedSHA1 [sha1.Size]byte, encoding string) Member {
	return Member{
		Path: path,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
		ExtractedSize: extractedSize,
		ExtractedSHA1: extractedSHA1,
		Encoding:      encoding,
	}
}

type tocXML struct {
	XMLName xml.Name       `xml:"xar"`
	TOC     tocBody        `xml:"toc"`
}

type tocBody struct {
	CreationTime string       `xml:"creation-time"`
	Checksum     styleOnlyEl  `xml:"checksum"`
	Files        []*fileEl    `xml:"file"`
}

// styleOnlyEl is the toc-level <checksum style="sha1"/> declaration;
// it carries no inline digest (only per-file checksums do).
type styleOnlyEl struct {
	Style string `xml:"style,attr"`
}

// hexChecksumEl is a <extracted-checksum style="sha1">hex-digest</...>
// element: the digest is the element's text content, matching how the
// xarFile/xarFileData readers in golang-build's gorebuild and
// x/build/internal/task parse these archives.
type hexChecksumEl struct {
	Style string `xml:"style,attr"`
	Hex   string `xml:",chardata"`
}

type fileEl struct {
	ID       int        `xml:"id,attr"`
	Name     string     `xml:"name"`
	Type     string     `xml:"type"`
	Data     *fileData  `xml:"data,omitempty"`
	Files    []*fileEl  `xml:"file,omitempty"`
}

type fileData struct {
	Length             int64         `xml:"length"`
	Offset             int64         `xml:"offset"`
	Size               int64         `xml:"size"`
	Encoding           encodingEl    `xml:"encoding"`
	ExtractedChecksum  hexChecksumEl `xml:"extracted-checksum"`
	ArchivedChecksum   hexChecksumEl `xml:"archived-checksum"`
}

type encodingEl struct {
	Style string `xml:"style,attr"`
}

// spooledMember is one member's archived bytes, already copied to a
// temp file so its length and archived-content checksum are known
// before the TOC (which must precede the heap on disk) is written.
type spooledMember struct {
	member      Member
	path        string
	length      int64
	archivedSum [sha1.Size]byte
}

// Write assembles a complete XAR archive from members into w. Members
// whose Path contains a "/" are nested under directory nodes matching
// each path segment, mirroring the base.pkg/ subtree the macOS
// installer expects. creationTime is an RFC 3339 timestamp (spec.md §9
// records this as deterministic: caller passes a fixed build-start
// time, not wall-clock, to keep output reproducible).
//
// The xar wire format requires the TOC — which records each member's
// heap offset and length — before the heap itself, but those offsets
// and lengths are only known once a member's archived bytes exist. So
// Write runs in two passes: first it spools every member's archived
// stream to its own temp file (one member's copy buffer in memory at a
// time, never the whole heap), then it writes the header and TOC, then
// it streams each spool straight into the heap region. All spools stay
// on disk until Write returns, when they are removed.
func Write(w io.Writer, members []Member, creationTime string) (err error) {
	spools := make([]spooledMember, 0, len(members))
	defer func() {
		for _, s := range spools {
			os.Remove(s.path)
		}
	}()

	buf := make([]byte, heapCopyBufSize)
	for _, m := range members {
		rc, openErr := m.Open()
		if openErr != nil {
			return fmt.Errorf("xar: open %q: %w", m.Path, openErr)
		}

		spool, createErr := os.CreateTemp("", "pkgforge-xar-member-*")
		if createErr != nil {
			rc.Close()
			return fmt.Errorf("xar: spool %q: %w", m.Path, createErr)
		}

		hasher := sha1.New()
		n, copyErr := io.CopyBuffer(io.MultiWriter(spool, hasher), rc, buf)
		closeErr := rc.Close()
		spool.Close()
		if copyErr != nil {
			return fmt.Errorf("xar: copy %q into heap spool: %w", m.Path, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("xar: close source for %q: %w", m.Path, closeErr)
		}

		var sum [sha1.Size]byte
		copy(sum[:], hasher.Sum(nil))
		spools = append(spools, spooledMember{member: m, path: spool.Name(), length: n, archivedSum: sum})
	}

	root := &fileEl{}
	dirs := map[string]*fileEl{}
	nextID := 1

	assignID := func() int {
		id := nextID
		nextID++
		return id
	}

	var heapLen int64
	for _, s := range spools {
		segs := splitPath(s.member.Path)
		parent := root
		prefix := ""
		for i := 0; i < len(segs)-1; i++ {
			prefix = joinPath(prefix, segs[i])
			dir, ok := dirs[prefix]
			if !ok {
				dir = &fileEl{ID: assignID(), Name: segs[i], Type: "directory"}
				dirs[prefix] = dir
				parent.Files = append(parent.Files, dir)
			}
			parent = dir
		}

		enc := s.member.Encoding
		if enc == "" {
			enc = EncodingOctet
		}

		f := &fileEl{
			ID:   assignID(),
			Name: segs[len(segs)-1],
			Type: "file",
			Data: &fileData{
				Length:   s.length,
				Offset:   heapLen,
				Size:     s.member.ExtractedSize,
				Encoding: encodingEl{Style: enc},
				ExtractedChecksum: hexChecksumEl{
					Style: "sha1",
					Hex:   fmt.Sprintf("%x", s.member.ExtractedSHA1),
				},
				ArchivedChecksum: hexChecksumEl{
					Style: "sha1",
					Hex:   fmt.Sprintf("%x", s.archivedSum),
				},
			},
		}
		parent.Files = append(parent.Files, f)
		heapLen += s.length
	}

	doc := tocXML{
		TOC: tocBody{
			CreationTime: creationTime,
			Checksum:     styleOnlyEl{Style: "sha1"},
			Files:        root.Files,
		},
	}

	tocBytes, err := xml.MarshalIndent(doc, "", " ")
	if err != nil {
		return fmt.Errorf("xar: marshal toc: %w", err)
	}
	tocBytes = append([]byte(xml.Header), tocBytes...)

	var compressedTOC bytes.Buffer
	zw := zlib.NewWriter(&compressedTOC)
	if _, err := zw.Write(tocBytes); err != nil {
		return fmt.Errorf("xar: compress toc: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("xar: close toc compressor: %w", err)
	}

	tocSum := sha1.Sum(compressedTOC.Bytes())

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header[0:], magic)
	binary.BigEndian.PutUint16(header[4:], headerSize)
	binary.BigEndian.PutUint16(header[6:], version)
	binary.BigEndian.PutUint64(header[8:], uint64(compressedTOC.Len()))
	binary.BigEndian.PutUint64(header[16:], uint64(len(tocBytes)))
	binary.BigEndian.PutUint32(header[24:], checksumSHA1)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("xar: write header: %w", err)
	}
	if _, err := w.Write(compressedTOC.Bytes()); err != nil {
		return fmt.Errorf("xar: write compressed toc: %w", err)
	}
	if _, err := w.Write(tocSum[:]); err != nil {
		return fmt.Errorf("xar: write toc checksum: %w", err)
	}

	for _, s := range spools {
		f, openErr := os.Open(s.path)
		if openErr != nil {
			return fmt.Errorf("xar: reopen heap spool for %q: %w", s.member.Path, openErr)
		}
		_, copyErr := io.CopyBuffer(w, f, buf)
		closeErr := f.Close()
		if copyErr != nil {
			return fmt.Errorf("xar: write heap for %q: %w", s.member.Path, copyErr)
		}
		if closeErr != nil {
			return fmt.Errorf("xar: close heap spool for %q: %w", s.member.Path, closeErr)
		}
	}
	return nil
}

func splitPath(p string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			segs = append(segs, p[start:i])
			start = i + 1
		}
	}
	segs = append(segs, p[start:])
	return segs
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "/" + seg
}
