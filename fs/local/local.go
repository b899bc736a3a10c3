// Package local implements ocflkit's fs.FS/WriteFS/MoveFS over a directory
// on the host filesystem, grounded on the teacher's backend/local package.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	ocflfs "github.com/ocflkit/ocflkit/fs"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FS implements fs.WriteFS, fs.CopyFS, fs.MoveFS and fs.FileWalker rooted
// at an absolute directory path.
type FS struct {
	root string
}

var (
	_ ocflfs.WriteFS      = (*FS)(nil)
	_ ocflfs.CopyFS       = (*FS)(nil)
	_ ocflfs.MoveFS       = (*FS)(nil)
	_ ocflfs.DirEntriesFS = (*FS)(nil)
	_ ocflfs.FileWalker   = (*FS)(nil)
)

// New returns an FS rooted at dir. dir is created if it doesn't exist.
func New(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("local: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the backend's absolute root directory.
func (f *FS) Root() string { return f.root }

func (f *FS) osPath(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("%w: %q", fs.ErrInvalid, name)
	}
	return filepath.Join(f.root, filepath.FromSlash(name)), nil
}

func (f *FS) OpenFile(ctx context.Context, name string) (fs.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.osPath(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: name, Err: ocflfs.ErrNotFile}
	}
	return os.Open(p)
}

func (f *FS) DirEntries(ctx context.Context, name string) iter.Seq2[fs.DirEntry, error] {
	return func(yield func(fs.DirEntry, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		p, err := f.osPath(name)
		if err != nil {
			yield(nil, &fs.PathError{Op: "readdir", Path: name, Err: err})
			return
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			yield(nil, &fs.PathError{Op: "readdir", Path: name, Err: err})
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (f *FS) WalkFiles(ctx context.Context, dir string) iter.Seq2[*ocflfs.FileRef, error] {
	return func(yield func(*ocflfs.FileRef, error) bool) {
		p, err := f.osPath(dir)
		if err != nil {
			yield(nil, &fs.PathError{Op: "walk", Path: dir, Err: err})
			return
		}
		_ = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if !yield(nil, err) {
					return filepath.SkipAll
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(p, path)
			if err != nil {
				if !yield(nil, err) {
					return filepath.SkipAll
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if !yield(nil, err) {
					return filepath.SkipAll
				}
				return nil
			}
			ref := &ocflfs.FileRef{FS: f, BaseDir: dir, Path: filepath.ToSlash(rel), Info: info}
			if !yield(ref, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (f *FS) Write(ctx context.Context, name string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := f.osPath(name)
	if err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerm); err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	dst, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	n, err := io.Copy(dst, r)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	return n, nil
}

func (f *FS) Remove(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := f.osPath(name)
	if err != nil {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	return nil
}

func (f *FS) RemoveAll(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "." {
		return &fs.PathError{Op: "remove_all", Path: name, Err: errors.New("cannot remove storage root")}
	}
	p, err := f.osPath(name)
	if err != nil {
		return &fs.PathError{Op: "remove_all", Path: name, Err: err}
	}
	if err := os.RemoveAll(p); err != nil {
		return &fs.PathError{Op: "remove_all", Path: name, Err: err}
	}
	return nil
}

func (f *FS) Copy(ctx context.Context, dst, src string) (int64, error) {
	srcFile, err := f.OpenFile(ctx, src)
	if err != nil {
		return 0, err
	}
	defer srcFile.Close()
	return f.Write(ctx, dst, srcFile)
}

// Move renames src to dst atomically within the backend. It fails if dst
// already exists, which the staging→main commit path (spec.md §4.5) relies
// on never clobbering a previously committed version.
func (f *FS) Move(ctx context.Context, dst, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	srcPath, err := f.osPath(src)
	if err != nil {
		return &fs.PathError{Op: "move", Path: src, Err: err}
	}
	dstPath, err := f.osPath(dst)
	if err != nil {
		return &fs.PathError{Op: "move", Path: dst, Err: err}
	}
	if _, err := os.Stat(dstPath); err == nil {
		return &fs.PathError{Op: "move", Path: dst, Err: fs.ErrExist}
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), dirPerm); err != nil {
		return &fs.PathError{Op: "move", Path: dst, Err: err}
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return &fs.PathError{Op: "move", Path: dst, Err: err}
	}
	return nil
}
