// Package fs is the storage abstraction the OCFL object engine is built
// against. It is intentionally minimal: the core never imports os or an
// object-storage SDK directly, only this interface and its local/s3
// implementations do (spec.md §1, "the core sees only an abstract storage
// interface").
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path"
	"slices"
	"strings"
)

var (
	// ErrNotSupported is returned by operations a backend doesn't implement.
	ErrNotSupported = errors.New("operation not supported by this storage backend")
	// ErrNotFile is returned when a name expected to be a regular file
	// turns out to be a directory or other type.
	ErrNotFile = errors.New("not a regular file")
)

// FS is the minimal abstraction needed to read a storage root.
type FS interface {
	// OpenFile opens the named file for reading. Unlike io/fs.FS.Open, it
	// must return an error if name names a directory.
	OpenFile(ctx context.Context, name string) (fs.File, error)
}

// DirEntriesFS can list directory entries.
type DirEntriesFS interface {
	FS
	// DirEntries yields the entries of the named directory in sorted
	// order, or an error. Iteration stops after an error is yielded.
	DirEntries(ctx context.Context, name string) iter.Seq2[fs.DirEntry, error]
}

// WriteFS is a storage backend that supports mutation.
type WriteFS interface {
	FS
	// Write creates or truncates the named file with the contents of r,
	// creating parent directories as needed.
	Write(ctx context.Context, name string, r io.Reader) (int64, error)
	// Remove deletes the named file.
	Remove(ctx context.Context, name string) error
	// RemoveAll recursively deletes the named directory and its contents.
	// Removing a path that doesn't exist is not an error.
	RemoveAll(ctx context.Context, name string) error
}

// CopyFS is a WriteFS that can copy within itself without a round trip
// through the caller, which local disk and many object stores can do more
// cheaply than a generic read+write.
type CopyFS interface {
	WriteFS
	Copy(ctx context.Context, dst, src string) (int64, error)
}

// MoveFS is a WriteFS that can rename/move a path atomically, which the
// staging→main promotion on commit (spec.md §4.5 "Commit") depends on.
type MoveFS interface {
	WriteFS
	// Move renames src to dst. Move must fail (and leave both src and dst
	// untouched) if dst already exists, so commit can rely on it never
	// silently overwriting a committed version.
	Move(ctx context.Context, dst, src string) error
}

// FileRef identifies a file encountered while walking a directory tree.
type FileRef struct {
	FS      FS
	BaseDir string
	Path    string // BaseDir-relative
	Info    fs.FileInfo
}

// FileWalker is an FS with a backend-optimized recursive walk.
type FileWalker interface {
	FS
	WalkFiles(ctx context.Context, dir string) iter.Seq2[*FileRef, error]
}

// DirEntries lists name's entries, using fsys's optimized implementation if
// it has one.
func DirEntries(ctx context.Context, fsys FS, name string) iter.Seq2[fs.DirEntry, error] {
	if d, ok := fsys.(DirEntriesFS); ok {
		return d.DirEntries(ctx, name)
	}
	return func(yield func(fs.DirEntry, error) bool) {
		yield(nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrNotSupported})
	}
}

// ReadDir collects DirEntries into a sorted slice.
func ReadDir(ctx context.Context, fsys FS, name string) ([]fs.DirEntry, error) {
	var entries []fs.DirEntry
	for entry, err := range DirEntries(ctx, fsys, name) {
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}

// ReadAll reads the full contents of the named file.
func ReadAll(ctx context.Context, fsys FS, name string) ([]byte, error) {
	f, err := fsys.OpenFile(ctx, name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Exists reports whether name can be opened as a file.
func Exists(ctx context.Context, fsys FS, name string) (bool, error) {
	f, err := fsys.OpenFile(ctx, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	f.Close()
	return true, nil
}

// Write writes r to name in fsys, which must be a WriteFS.
func Write(ctx context.Context, fsys FS, name string, r io.Reader) (int64, error) {
	w, ok := fsys.(WriteFS)
	if !ok {
		return 0, &fs.PathError{Op: "write", Path: name, Err: ErrNotSupported}
	}
	return w.Write(ctx, name, r)
}

// Remove deletes name from fsys, which must be a WriteFS.
func Remove(ctx context.Context, fsys FS, name string) error {
	w, ok := fsys.(WriteFS)
	if !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: ErrNotSupported}
	}
	return w.Remove(ctx, name)
}

// RemoveAll deletes the named directory tree from fsys, which must be a
// WriteFS.
func RemoveAll(ctx context.Context, fsys FS, name string) error {
	w, ok := fsys.(WriteFS)
	if !ok {
		return &fs.PathError{Op: "remove_all", Path: name, Err: ErrNotSupported}
	}
	return w.RemoveAll(ctx, name)
}

// Copy copies src to dst, using fsys's CopyFS implementation when both
// paths are in the same backend.
func Copy(ctx context.Context, dstFS FS, dst string, srcFS FS, src string) (int64, error) {
	if dstFS == srcFS {
		if c, ok := dstFS.(CopyFS); ok {
			n, err := c.Copy(ctx, dst, src)
			if err != nil {
				return n, fmt.Errorf("copy: %w", err)
			}
			return n, nil
		}
	}
	f, err := srcFS.OpenFile(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("copy: opening source: %w", err)
	}
	defer f.Close()
	n, err := Write(ctx, dstFS, dst, f)
	if err != nil {
		return n, fmt.Errorf("copy: writing destination: %w", err)
	}
	return n, nil
}

// Move moves src to dst using fsys's MoveFS implementation, which fails if
// dst already exists. Without a MoveFS implementation it returns an
// ErrNotSupported error; there is no copy-based fallback here.
func Move(ctx context.Context, fsys FS, dst, src string) error {
	m, ok := fsys.(MoveFS)
	if !ok {
		return &fs.PathError{Op: "move", Path: src, Err: ErrNotSupported}
	}
	return m.Move(ctx, dst, src)
}

// WalkFiles recursively lists the files under dir, using fsys's optimized
// walker if it has one.
func WalkFiles(ctx context.Context, fsys FS, dir string) iter.Seq2[*FileRef, error] {
	if w, ok := fsys.(FileWalker); ok {
		return w.WalkFiles(ctx, dir)
	}
	return func(yield func(*FileRef, error) bool) {
		walk(ctx, fsys, dir, ".", yield)
	}
}

func walk(ctx context.Context, fsys FS, base, sub string, yield func(*FileRef, error) bool) bool {
	if err := ctx.Err(); err != nil {
		return yield(nil, err)
	}
	for entry, err := range DirEntries(ctx, fsys, path.Join(base, sub)) {
		if err != nil {
			if !yield(nil, err) {
				return false
			}
			continue
		}
		entryPath := path.Join(sub, entry.Name())
		if entry.IsDir() {
			if !walk(ctx, fsys, base, entryPath, yield) {
				return false
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !yield(nil, err) {
				return false
			}
			continue
		}
		ref := &FileRef{FS: fsys, BaseDir: base, Path: entryPath, Info: info}
		if !yield(ref, nil) {
			return false
		}
	}
	return true
}
