// Package macpkg implements the macOS package assembler (C11): gluing
// the file collector, CPIO-odc writer, gzip framing, BOM writer,
// package-descriptor codec and XAR writer into a flat installer
// package.
package macpkg

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/MANCHTOOLS/pkgforge/internal/bom"
	"github.com/MANCHTOOLS/pkgforge/internal/collect"
	"github.com/MANCHTOOLS/pkgforge/internal/cpio"
	"github.com/MANCHTOOLS/pkgforge/internal/gzipframe"
	"github.com/MANCHTOOLS/pkgforge/internal/overwrite"
	"github.com/MANCHTOOLS/pkgforge/internal/pkgdescriptor"
	"github.com/MANCHTOOLS/pkgforge/internal/pkgerrors"
	"github.com/MANCHTOOLS/pkgforge/internal/xar"
)

const scriptMode = 0o755

// BuildRequest is the macOS build request (spec.md §3
// MacosPackageRequest).
type BuildRequest struct {
	SourceRoot      string
	Identifier      string
	Version         string
	InstallLocation string // defaults to "/"
	ScriptsDir      string // optional
	OutputDir       string
	OutputStem      string // optional; defaults to Identifier
	Overwrite       overwrite.Policy
	CreationTime    string // RFC 3339; deterministic build-start timestamp
	Logger          *slog.Logger
}

// BuildResult describes the package that was produced.
type BuildResult struct {
	OutputPath    string
	InstallKBytes int64
	NumberOfFiles int64
	HasScripts    bool
}

func (r BuildRequest) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func (r BuildRequest) installLocation() string {
	if r.InstallLocation == "" {
		return "/"
	}
	return r.InstallLocation
}

// Build runs the macOS flat-package lifecycle: collect the source
// tree, optionally collect pre/post-install scripts, build the payload
// and (optional) scripts CPIO archives, emit the BOM and the two
// descriptor XML documents, and assemble everything into a XAR
// container at OutputDir/<stem>-<version>.pkg.
func Build(req BuildRequest) (result *BuildResult, err error) {
	log := req.logger()

	pkg, err := collect.Collect(req.SourceRoot)
	if err != nil {
		return nil, err
	}

	var scripts []scriptFile
	if req.ScriptsDir != "" {
		scripts, err = collectScripts(req.ScriptsDir, log)
		if err != nil {
			return nil, err
		}
	}

	stem := req.OutputStem
	if stem == "" {
		stem = req.Identifier
	}
	outputPath := filepath.Join(req.OutputDir, fmt.Sprintf("%s-%s.pkg", stem, req.Version))

	if err := overwrite.Check(outputPath, req.Overwrite); err != nil {
		return nil, err
	}

	// The payload CPIO archive and its gzip framing are spooled to temp
	// files rather than held in memory: a source tree can be many
	// gigabytes, but each stage here only ever has one copy buffer (or
	// one file's content, streamed through a hash) resident at a time
	// (spec.md §4.2/§9).
	payloadCPIOPath, bomEntries, uncompressedTotal, fileCount, err := spoolPayloadCPIO(pkg, req.installLocation())
	if err != nil {
		return nil, err
	}
	defer os.Remove(payloadCPIOPath)

	payloadGzPath, payloadExtractedSize, payloadExtractedSum, err := spoolGzipFromCPIO(payloadCPIOPath, "Payload")
	if err != nil {
		return nil, err
	}
	defer os.Remove(payloadGzPath)

	var bomBuf bytes.Buffer
	if err := bom.Write(&bomBuf, bomEntries); err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, "Bom", err)
	}

	installKBytes := (uncompressedTotal + 1023) / 1024
	log.Info("collected payload", "files", fileCount, "install_kbytes", installKBytes)

	pkgInfoXML, err := pkgdescriptor.GeneratePackageInfo(pkgdescriptor.PackageInfoOptions{
		Identifier:      req.Identifier,
		Version:         req.Version,
		InstallLocation: req.installLocation(),
		InstallKBytes:   installKBytes,
		NumberOfFiles:   fileCount,
		HasPreinstall:   hasScript(scripts, "preinstall"),
		HasPostinstall:  hasScript(scripts, "postinstall"),
	})
	if err != nil {
		return nil, err
	}

	distributionXML, err := pkgdescriptor.GenerateDistribution(pkgdescriptor.DistributionOptions{
		Title:         stem,
		Identifier:    req.Identifier,
		Version:       req.Version,
		InstallKBytes: installKBytes,
	})
	if err != nil {
		return nil, err
	}
	distSum := sha1.Sum(distributionXML)
	bomSum := sha1.Sum(bomBuf.Bytes())
	pkgInfoSum := sha1.Sum(pkgInfoXML)

	members := []xar.Member{
		xar.BytesMember("Distribution", distributionXML, int64(len(distributionXML)), distSum, ""),
		xar.BytesMember("base.pkg/Bom", bomBuf.Bytes(), int64(bomBuf.Len()), bomSum, ""),
		xar.BytesMember("base.pkg/PackageInfo", pkgInfoXML, int64(len(pkgInfoXML)), pkgInfoSum, ""),
		spooledMember("base.pkg/Payload", payloadGzPath, payloadExtractedSize, payloadExtractedSum, xar.EncodingGzip),
	}

	hasScripts := len(scripts) > 0
	if hasScripts {
		scriptsCPIOPath, err := spoolScriptsCPIO(scripts)
		if err != nil {
			return nil, err
		}
		defer os.Remove(scriptsCPIOPath)

		scriptsGzPath, scriptsExtractedSize, scriptsExtractedSum, err := spoolGzipFromCPIO(scriptsCPIOPath, "Scripts")
		if err != nil {
			return nil, err
		}
		defer os.Remove(scriptsGzPath)

		members = append(members, spooledMember("base.pkg/Scripts", scriptsGzPath, scriptsExtractedSize, scriptsExtractedSum, xar.EncodingGzip))
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

	if err = xar.Write(out, members, req.CreationTime); err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, outputPath, err)
	}
	if err = out.Close(); err != nil {
		return nil, pkgerrors.New(pkgerrors.OutputWriteError, outputPath, err)
	}

	log.Info("wrote package", "path", outputPath)
	return &BuildResult{
		OutputPath:    outputPath,
		InstallKBytes: installKBytes,
		NumberOfFiles: fileCount,
		HasScripts:    hasScripts,
	}, nil
}

// spoolPayloadCPIO streams pkg into a CPIO-odc archive spooled at a temp
// file (never held whole in memory), rooted at installLocation, and
// returns that spool's path alongside the parallel BOM entries and the
// running uncompressed-byte total and file count spec.md §4.10 needs
// for installKBytes/numberOfFiles. Each file's content is read exactly
// once: the same stream that feeds the CPIO writer is teed through a
// CRC-32 hash for its BOM entry. Directories along each file's path are
// synthesized once, in first-seen (i.e. lexicographic) order. The
// caller is responsible for removing the returned spool.
func spoolPayloadCPIO(pkg *collect.Package, installLocation string) (spoolPath string, boms []bom.Entry, totalBytes int64, fileCount int64, err error) {
	spool, err := os.CreateTemp("", "pkgforge-payload-cpio-*")
	if err != nil {
		return "", nil, 0, 0, fmt.Errorf("spool payload cpio: %w", err)
	}
	spoolPath = spool.Name()
	defer spool.Close()

	cw := cpio.New(spool)
	seenDirs := map[string]bool{}
	root := "." + path.Clean("/"+strings.TrimPrefix(installLocation, "/"))

	addDir := func(dirPath string) error {
		if dirPath == "." || seenDirs[dirPath] {
			return nil
		}
		seenDirs[dirPath] = true
		if err := cw.WriteEntry(cpio.Entry{Name: dirPath, IsDir: true, Mode: 0o755}); err != nil {
			return pkgerrors.New(pkgerrors.SourceReadError, dirPath, err)
		}
		boms = append(boms, bom.ForDir(dirPath, 0o755))
		return nil
	}

	for _, f := range pkg.Files {
		dirPath := root
		segs := strings.Split(f.RelPath, "/")
		for i := 0; i < len(segs)-1; i++ {
			dirPath = dirPath + "/" + segs[i]
			if err := addDir(dirPath); err != nil {
				os.Remove(spoolPath)
				return "", nil, 0, 0, err
			}
		}

		archivePath := root + "/" + f.RelPath
		rc, openErr := f.Open()
		if openErr != nil {
			os.Remove(spoolPath)
			return "", nil, 0, 0, pkgerrors.New(pkgerrors.SourceReadError, f.RelPath, openErr)
		}

		crc := crc32.NewIEEE()
		writeErr := cw.WriteEntry(cpio.Entry{
			Name:  archivePath,
			Mode:  uint32(f.Mode.Perm()),
			Size:  f.Size,
			Body:  io.TeeReader(rc, crc),
			Mtime: 0,
		})
		closeErr := rc.Close()
		if writeErr != nil {
			os.Remove(spoolPath)
			return "", nil, 0, 0, pkgerrors.New(pkgerrors.SourceReadError, f.RelPath, writeErr)
		}
		if closeErr != nil {
			os.Remove(spoolPath)
			return "", nil, 0, 0, pkgerrors.New(pkgerrors.SourceReadError, f.RelPath, closeErr)
		}

		boms = append(boms, bom.Entry{
			Path:  archivePath,
			Mode:  uint16(f.Mode.Perm()) | 0o100000,
			Size:  uint32(f.Size),
			CRC32: crc.Sum32(),
		})
		totalBytes += f.Size
		fileCount++
	}

	if err := cw.Close(); err != nil {
		os.Remove(spoolPath)
		return "", nil, 0, 0, pkgerrors.New(pkgerrors.SourceReadError, pkg.Root, err)
	}
	return spoolPath, boms, totalBytes, fileCount, nil
}

// spoolScriptsCPIO streams scripts into a CPIO-odc archive spooled at a
// temp file. Script payloads are individually tiny (shell scripts), so
// their content already lives as a []byte from collectScripts; only the
// archive itself is kept off the heap. The caller is responsible for
// removing the returned spool.
func spoolScriptsCPIO(scripts []scriptFile) (spoolPath string, err error) {
	spool, err := os.CreateTemp("", "pkgforge-scripts-cpio-*")
	if err != nil {
		return "", fmt.Errorf("spool scripts cpio: %w", err)
	}
	spoolPath = spool.Name()
	defer spool.Close()

	sw := cpio.New(spool)
	for _, s := range scripts {
		if err := sw.WriteEntry(cpio.Entry{
			Name:  "./" + s.name,
			Mode:  scriptMode,
			Size:  int64(len(s.content)),
			Body:  bytes.NewReader(s.content),
			Mtime: 0,
		}); err != nil {
			os.Remove(spoolPath)
			return "", pkgerrors.New(pkgerrors.SourceReadError, s.name, err)
		}
	}
	if err := sw.Close(); err != nil {
		os.Remove(spoolPath)
		return "", pkgerrors.New(pkgerrors.SourceReadError, "", err)
	}
	return spoolPath, nil
}

// spoolGzipFromCPIO reopens the CPIO archive at cpioPath, gzip-frames it
// into a fresh temp-file spool, and returns that spool's path along with
// the uncompressed archive's size and SHA-1 — computed in the same pass
// via a TeeReader, so the CPIO bytes are only read once. label names the
// XAR member for error messages. The caller is responsible for removing
// the returned spool.
func spoolGzipFromCPIO(cpioPath, label string) (spoolPath string, extractedSize int64, extractedSHA1 [sha1.Size]byte, err error) {
	cpioFile, err := os.Open(cpioPath)
	if err != nil {
		return "", 0, extractedSHA1, fmt.Errorf("reopen %s cpio: %w", label, err)
	}
	defer cpioFile.Close()

	info, err := cpioFile.Stat()
	if err != nil {
		return "", 0, extractedSHA1, fmt.Errorf("stat %s cpio: %w", label, err)
	}

	gzSpool, err := os.CreateTemp("", "pkgforge-gz-*")
	if err != nil {
		return "", 0, extractedSHA1, fmt.Errorf("spool %s gzip: %w", label, err)
	}
	spoolPath = gzSpool.Name()
	defer gzSpool.Close()

	hasher := sha1.New()
	if err := gzipframe.Wrap(gzSpool, io.TeeReader(cpioFile, hasher)); err != nil {
		os.Remove(spoolPath)
		return "", 0, extractedSHA1, pkgerrors.New(pkgerrors.OutputWriteError, label, err)
	}

	copy(extractedSHA1[:], hasher.Sum(nil))
	return spoolPath, info.Size(), extractedSHA1, nil
}

// spooledMember builds an xar.Member whose archived content is read
// lazily from the temp file at spoolPath when xar.Write spools it into
// the heap.
func spooledMember(archivePath, spoolPath string, extractedSize int64, extractedSHA1 [sha1.Size]byte, encoding string) xar.Member {
	return xar.Member{
		Path:          archivePath,
		Open:          func() (io.ReadCloser, error) { return os.Open(spoolPath) },
		ExtractedSize: extractedSize,
		ExtractedSHA1: extractedSHA1,
		Encoding:      encoding,
	}
}

type scriptFile struct {
	name    string
	content []byte
}

func hasScript(scripts []scriptFile, name string) bool {
	for _, s := range scripts {
		if s.name == name {
			return true
		}
	}
	return false
}

// collectScripts reads preinstall/postinstall from dir if present. A
// missing dir is an error (ScriptsDirMissing); a dir with neither
// script is a warning, not an error (spec.md §7 ScriptsEmpty).
func collectScripts(dir string, log *slog.Logger) ([]scriptFile, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, pkgerrors.New(pkgerrors.ScriptsDirMissing, dir, err)
	}

	var out []scriptFile
	for _, name := range []string{"preinstall", "postinstall"} {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, pkgerrors.New(pkgerrors.SourceReadError, p, err)
		}
		out = append(out, scriptFile{name: name, content: data})
	}
	if len(out) == 0 {
		log.Warn("scripts directory has neither preinstall nor postinstall", "dir", dir)
	}
	return out, nil
}
