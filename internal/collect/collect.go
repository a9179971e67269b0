// Package collect implements the file-collection substrate (C1) shared by
// both package assemblers: a depth-first walk of a source directory that
// yields entries in a deterministic, reproducible order.
package collect

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MANCHTOOLS/pkgforge/internal/pkgerrors"
)

// File is one collected member of a source tree: its slash-separated
// path relative to the root, its size, and its mode. Hidden entries
// (dot-prefixed) are included; symlinks are followed once.
type File struct {
	RelPath string
	Size    int64
	Mode    os.FileMode
	abs     string
}

// Open opens the underlying file for reading.
func (f File) Open() (*os.File, error) {
	return os.Open(f.abs)
}

// Package is an ordered, deterministic collection of Files rooted at Root.
type Package struct {
	Root                  string
	Files                 []File
	TotalUncompressedSize int64
}

// Collect walks root depth-first, following symlinks once (erroring on a
// cycle), including hidden and dot-prefixed entries, and returns the
// members in lexicographic order of their normalized relative path. It
// rejects entries that resolve outside root.
func Collect(root string) (*Package, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.New(pkgerrors.SourceMissing, root, err)
		}
		return nil, pkgerrors.New(pkgerrors.SourceReadError, root, err)
	}
	if !info.IsDir() {
		return nil, pkgerrors.New(pkgerrors.SourceMissing, root, nil)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.SourceReadError, root, err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.SourceReadError, root, err)
	}

	var files []File
	var total int64
	seen := map[string]bool{} // visited real paths, to break symlink cycles

	var walk func(dir, relPrefix string) error
	walk = func(dir, relPrefix string) error {
		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return pkgerrors.New(pkgerrors.SourceReadError, dir, err)
		}
		if seen[real] {
			return pkgerrors.New(pkgerrors.SourceReadError, dir, errCycle)
		}
		seen[real] = true
		defer delete(seen, real)

		entries, err := os.ReadDir(dir)
		if err != nil {
			return pkgerrors.New(pkgerrors.SourceReadError, dir, err)
		}
		for _, ent := range entries {
			name := ent.Name()
			childAbs := filepath.Join(dir, name)
			childRel := name
			if relPrefix != "" {
				childRel = relPrefix + "/" + name
			}

			st, err := os.Stat(childAbs) // follows symlinks to their target
			if err != nil {
				return pkgerrors.New(pkgerrors.SourceReadError, childAbs, err)
			}

			resolved, err := filepath.EvalSymlinks(childAbs)
			if err != nil {
				return pkgerrors.New(pkgerrors.SourceReadError, childAbs, err)
			}
			if err := rejectEscape(realRoot, resolved); err != nil {
				return err
			}

			if st.IsDir() {
				if err := walk(childAbs, childRel); err != nil {
					return err
				}
				continue
			}

			files = append(files, File{
				RelPath: childRel,
				Size:    st.Size(),
				Mode:    st.Mode(),
				abs:     childAbs,
			})
			total += st.Size()
		}
		return nil
	}

	if err := walk(absRoot, ""); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.SourceEmpty, root, nil)
	}

	return &Package{Root: absRoot, Files: files, TotalUncompressedSize: total}, nil
}

// HasMember reports whether relPath (forward-slash, root-relative) is a
// collected member. Directories are never members.
func (p *Package) HasMember(relPath string) bool {
	for _, f := range p.Files {
		if f.RelPath == relPath {
			return true
		}
	}
	return false
}

func rejectEscape(absRoot, childAbs string) error {
	rel, err := filepath.Rel(absRoot, childAbs)
	if err != nil {
		return pkgerrors.New(pkgerrors.SourceReadError, childAbs, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") || filepath.IsAbs(rel) {
		return pkgerrors.New(pkgerrors.PathTraversal, childAbs, nil)
	}
	return nil
}

type cycleError struct{}

func (cycleError) Error() string { return "symlink cycle detected" }

var errCycle = cycleError{}
