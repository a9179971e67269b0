// Package intune implements the Intune package assembler (C5): gluing
// the file collector, streaming ZIP writer, authenticated-encryption
// engine and manifest codec into the outer .intunewin archive, plus its
// extract/verify inverse.
package intune

import (
	"archive/zip"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MANCHTOOLS/pkgforge/internal/collect"
	"github.com/MANCHTOOLS/pkgforge/internal/intunecrypto"
	"github.com/MANCHTOOLS/pkgforge/internal/intunexml"
	"github.com/MANCHTOOLS/pkgforge/internal/overwrite"
	"github.com/MANCHTOOLS/pkgforge/internal/pkgerrors"
	"github.com/MANCHTOOLS/pkgforge/internal/ziputil"
)

const (
	metadataEntry = "IntuneWinPackage/Metadata/Detection.xml"
	contentsEntry = "IntuneWinPackage/Contents/" + intunexml.EncryptedFileName
)

// BuildRequest is the Intune build request (spec.md §3
// IntunePackageRequest).
type BuildRequest struct {
	SourceRoot    string
	SetupFileName string
	OutputDir     string
	OutputStem    string // optional; defaults to the setup file's name without its extension
	Overwrite     overwrite.Policy
	Logger        *slog.Logger
}

// BuildResult describes the package that was produced.
type BuildResult struct {
	OutputPath             string
	UnencryptedContentSize int64
}

func (r BuildRequest) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Build runs the Idle→Validating→Collecting→Streaming→Finalizing
// lifecycle (spec.md §4.12): collect the source tree, verify the setup
// file, stream-build and encrypt the inner ZIP, emit Detection.xml, and
// assemble the outer .intunewin. On any failure the in-progress output
// file is unlinked before the error surfaces (spec.md §5/§7).
func Build(req BuildRequest) (result *BuildResult, err error) {
	log := req.logger()

	pkg, err := collect.Collect(req.SourceRoot)
	if err != nil {
		return nil, err
	}
	if !pkg.HasMember(req.SetupFileName) {
		return nil, pkgerrors.New(pkgerrors.SetupFileMissing, req.SetupFileName, nil)
	}

	stem := req.OutputStem
	if stem == "" {
		base := filepath.Base(filepath.FromSlash(req.SetupFileName))
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}
	outputPath := filepath.Join(req.OutputDir, stem+".intunewin")

	if err := overwrite.Check(outputPath, req.Overwrite); err != nil {
		return nil, err
	}

	log.Info("collecting source", "files", len(pkg.Files), "root", pkg.Root)

	material, err := intunecrypto.GenerateMaterial()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, req.OutputDir, err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, outputPath, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(outputPath)
		}
	}()

	// The inner ZIP is never held in memory as a whole: streamInnerZip
	// writes straight into zipPW, the Encrypt goroutine reads that through
	// zipPR as its plaintext source, and outerZip.AddStream below reads
	// Encrypt's output through encPR as the outer archive's content entry.
	// Encrypt spools the ciphertext to a temporary file and only then
	// writes mac ‖ iv ‖ ciphertext into encPW, because the MAC that leads
	// the blob is known only after the last block; memory use stays at
	// about one chunk per stage (spec.md §4.2/§4.3).
	//
	// Each stage closes both ends it touches with CloseWithError: if any
	// stage fails, that error propagates to its neighbor's blocked
	// Read/Write, so a failure anywhere unwinds the whole pipeline instead
	// of leaving a goroutine parked on an unread pipe forever.
	zipPR, zipPW := io.Pipe()
	go func() {
		zipPW.CloseWithError(streamInnerZip(zipPW, pkg))
	}()

	encPR, encPW := io.Pipe()
	encDone := make(chan error, 1)
	var plainSize int64
	go func() {
		n, encErr := intunecrypto.Encrypt(encPW, zipPR, material)
		plainSize = n
		zipPR.CloseWithError(encErr)
		encPW.CloseWithError(encErr)
		encDone <- encErr
	}()

	outerZip := ziputil.New(out)
	_, streamErr := outerZip.AddStream(contentsEntry, encPR)
	if streamErr != nil {
		encPR.CloseWithError(streamErr)
	}
	if err = <-encDone; err != nil {
		return nil, err
	}
	if streamErr != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, outputPath, streamErr)
	}

	log.Info("encrypted inner package", "unencrypted_size", plainSize)

	detectionXML, err := intunexml.Generate(intunexml.Options{
		Name:                   stem,
		SetupFile:              req.SetupFileName,
		UnencryptedContentSize: plainSize,
		Material:               material,
	})
	if err != nil {
		return nil, err
	}

	if err = outerZip.AddBytes(metadataEntry, detectionXML); err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, outputPath, err)
	}
	if err = outerZip.Close(); err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, outputPath, err)
	}
	if err = out.Close(); err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, outputPath, err)
	}

	log.Info("wrote package", "path", outputPath)
	return &BuildResult{OutputPath: outputPath, UnencryptedContentSize: plainSize}, nil
}

// streamInnerZip streams pkg into a fresh inner ZIP written to w. It's a
// thin wrapper so the pipe-feeding goroutine in Build reads as a single
// call.
func streamInnerZip(w io.Writer, pkg *collect.Package) error {
	inner := ziputil.New(w)
	if err := inner.AddPackage(pkg, ""); err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, pkg.Root, err)
	}
	return inner.Close()
}

// ExtractRequest is the Intune extract request (spec.md §4.5 Extract
// path).
type ExtractRequest struct {
	InputFile string
	OutputDir string
	Logger    *slog.Logger
}

func (r ExtractRequest) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Extract opens an .intunewin file, parses its manifest, verifies and
// decrypts the inner package, and unpacks it into OutputDir. Any entry
// whose path would escape OutputDir is rejected (path-traversal
// defense); no plaintext is written until the whole inner blob's HMAC
// has been verified.
func Extract(req ExtractRequest) error {
	log := req.logger()

	zr, err := zip.OpenReader(req.InputFile)
	if err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, req.InputFile, err)
	}
	defer zr.Close()

	var metaFile, contentFile *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case metadataEntry:
			metaFile = f
		case contentsEntry:
			contentFile = f
		}
	}
	if metaFile == nil || contentFile == nil {
		return pkgerrors.New(pkgerrors.MalformedManifest, req.InputFile, fmt.Errorf("missing metadata or contents entry"))
	}

	metaRC, err := metaFile.Open()
	if err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, metadataEntry, err)
	}
	metaBytes, err := io.ReadAll(metaRC)
	metaRC.Close()
	if err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, metadataEntry, err)
	}

	info, err := intunexml.Parse(metaBytes)
	if err != nil {
		return err
	}

	encKey, err := base64.StdEncoding.DecodeString(info.EncryptionInfo.EncryptionKey)
	if err != nil {
		return pkgerrors.New(pkgerrors.MalformedManifest, "EncryptionKey", err)
	}
	macKey, err := base64.StdEncoding.DecodeString(info.EncryptionInfo.MacKey)
	if err != nil {
		return pkgerrors.New(pkgerrors.MalformedManifest, "MacKey", err)
	}

	contentRC, err := contentFile.Open()
	if err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, contentsEntry, err)
	}
	defer contentRC.Close()

	// The decrypted inner ZIP is spooled to a temp file rather than held
	// as a single []byte: archive/zip.NewReader needs random access to
	// read the central directory, but nothing requires the whole blob to
	// be memory-resident at once (spec.md §4.3/§9).
	plainSpool, err := os.CreateTemp("", "pkgforge-plaintext-*")
	if err != nil {
		return fmt.Errorf("spool plaintext: %w", err)
	}
	plainSpoolPath := plainSpool.Name()
	defer os.Remove(plainSpoolPath)
	defer plainSpool.Close()

	if err := intunecrypto.Decrypt(plainSpool, contentRC, encKey, macKey); err != nil {
		return err
	}

	plainInfo, err := plainSpool.Stat()
	if err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, plainSpoolPath, err)
	}
	if plainInfo.Size() != info.UnencryptedContentSize {
		log.Warn("unencrypted size mismatch", "manifest", info.UnencryptedContentSize, "actual", plainInfo.Size())
	}
	if _, err := plainSpool.Seek(0, io.SeekStart); err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, plainSpoolPath, err)
	}

	return unzipTo(plainSpool, plainInfo.Size(), req.OutputDir)
}

// unzipTo extracts the inner ZIP read from ra (size bytes long) into dir,
// rejecting any entry whose resolved path would escape dir.
func unzipTo(ra io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return pkgerrors.New(pkgerrors.MalformedManifest, "", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return pkgerrors.New(pkgerrors.OutputWriteError, dir, err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return pkgerrors.New(pkgerrors.OutputWriteError, absDir, err)
	}

	for _, f := range zr.File {
		target, err := safeJoin(absDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return pkgerrors.New(pkgerrors.OutputWriteError, target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return pkgerrors.New(pkgerrors.OutputWriteError, target, err)
		}

		rc, err := f.Open()
		if err != nil {
			return pkgerrors.New(pkgerrors.SourceReadError, f.Name, err)
		}
		out, err := os.Create(target)
		if err != nil {
			rc.Close()
			return pkgerrors.New(pkgerrors.OutputWriteError, target, err)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return pkgerrors.New(pkgerrors.OutputWriteError, target, copyErr)
		}
		if closeErr != nil {
			return pkgerrors.New(pkgerrors.OutputWriteError, target, closeErr)
		}
	}
	return nil
}

// safeJoin joins dir and name, rejecting any name that is an absolute
// path, contains a ".." component, or would resolve outside dir.
func safeJoin(dir, name string) (string, error) {
	slashed := filepath.ToSlash(name)
	if strings.HasPrefix(slashed, "/") || filepath.IsAbs(name) {
		return "", pkgerrors.New(pkgerrors.PathTraversal, name, nil)
	}
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", pkgerrors.New(pkgerrors.PathTraversal, name, nil)
		}
	}
	joined := filepath.Join(dir, filepath.FromSlash(name))
	if !strings.HasPrefix(joined, filepath.Clean(dir)+string(filepath.Separator)) && joined != filepath.Clean(dir) {
		return "", pkgerrors.New(pkgerrors.PathTraversal, name, nil)
	}
	return joined, nil
}
