package repo

import (
	"context"
	"fmt"
	"path"
	"strings"

	ocflfs "github.com/ocflkit/ocflkit/fs"

	"github.com/ocflkit/ocflkit"
)

// Remove expands each pattern against the staged object's HEAD state
// (recursively if requested) and drops every match, deleting any content
// file that removal leaves orphaned (spec.md §4.5 "Remove").
func (m *Mutation) Remove(ctx context.Context, patterns []string, recursive bool) ([]string, error) {
	return m.stage.RemoveLogicalPaths(ctx, patterns, recursive)
}

// Reset partitions the logical paths matched by patterns into adds
// introduced this version (dropped) and modifications or deletes relative
// to the previous version (restored to the previous version's mapping),
// instead of discarding the whole mutation (spec.md §4.5 "Reset").
func (m *Mutation) Reset(ctx context.Context, patterns []string, recursive bool) error {
	return m.stage.Reset(ctx, patterns, recursive)
}

// CopyFromExternal stages sources from an external filesystem under dst,
// applying the shared destination-resolution rules and, when recursive is
// set, walking directory sources preserving their relative structure
// (spec.md §4.5 "Copy/move from external source").
func (m *Mutation) CopyFromExternal(ctx context.Context, srcFS ocflfs.FS, sources []string, dst string, recursive bool) error {
	return m.transferFromExternal(ctx, srcFS, sources, dst, recursive, false)
}

// MoveFromExternal is CopyFromExternal followed by deleting each source
// from srcFS and pruning any ancestor directories left empty (spec.md §4.5
// "Copy/move from external source").
func (m *Mutation) MoveFromExternal(ctx context.Context, srcFS ocflfs.FS, sources []string, dst string, recursive bool) error {
	return m.transferFromExternal(ctx, srcFS, sources, dst, recursive, true)
}

func (m *Mutation) transferFromExternal(ctx context.Context, srcFS ocflfs.FS, sources []string, dst string, recursive, move bool) error {
	if len(sources) == 0 {
		return fmt.Errorf("%w: no source given", ocfl.ErrInvalidValue)
	}
	destIsDir := m.stage.Head().HasDirectory(dst)
	dests := destinationFor(dst, sources, destIsDir)
	var errs ocfl.CopyMoveErr
	for _, src := range sources {
		target := dests[src]
		if isExternalDir(ctx, srcFS, src) {
			if !recursive {
				errs.Add(fmt.Errorf("%w: %q is a directory (use --recursive)", ocfl.ErrIllegalOperation, src))
				continue
			}
			if err := m.transferExternalTree(ctx, srcFS, src, target, move); err != nil {
				errs.Add(err)
			}
			continue
		}
		if _, err := m.stage.FileCopy(ctx, target, srcFS, src); err != nil {
			errs.Add(fmt.Errorf("%s: %w", src, err))
			continue
		}
		if move {
			if wfs, ok := srcFS.(ocflfs.WriteFS); ok {
				if err := wfs.Remove(ctx, src); err != nil {
					errs.Add(fmt.Errorf("%s: %w", src, err))
					continue
				}
				pruneEmptyAncestors(ctx, wfs, path.Dir(src))
			}
		}
	}
	return errs.OrNil()
}

func (m *Mutation) transferExternalTree(ctx context.Context, srcFS ocflfs.FS, srcRoot, dstRoot string, move bool) error {
	var errs ocfl.CopyMoveErr
	for ref, err := range ocflfs.WalkFiles(ctx, srcFS, srcRoot) {
		if err != nil {
			errs.Add(err)
			continue
		}
		dstLogical := path.Join(dstRoot, ref.Path)
		if _, err := m.stage.FileCopy(ctx, dstLogical, srcFS, path.Join(srcRoot, ref.Path)); err != nil {
			errs.Add(fmt.Errorf("%s: %w", ref.Path, err))
		}
	}
	if err := errs.OrNil(); err != nil {
		return err
	}
	if move {
		if wfs, ok := srcFS.(ocflfs.WriteFS); ok {
			if err := wfs.RemoveAll(ctx, srcRoot); err != nil {
				return fmt.Errorf("%s: %w", srcRoot, err)
			}
			pruneEmptyAncestors(ctx, wfs, path.Dir(srcRoot))
		}
	}
	return nil
}

// CopyWithinObject resolves sources as glob patterns against srcVNum's
// state and stages the matches under dst, applying the shared
// destination-resolution rules. Directory sources are expanded preserving
// relative structure when recursive is set (spec.md §4.5 "Copy/move within
// an object").
func (m *Mutation) CopyWithinObject(ctx context.Context, srcVNum ocfl.VNum, patterns []string, dst string, recursive bool) error {
	return m.transferWithinObject(ctx, srcVNum, patterns, dst, recursive, false)
}

// MoveWithinObject is like CopyWithinObject but reuses the existing content
// path rather than copying bytes, and only ever reads from HEAD, since
// earlier versions' states are immutable (spec.md §4.5 "Copy/move within an
// object").
func (m *Mutation) MoveWithinObject(ctx context.Context, patterns []string, dst string, recursive bool) error {
	return m.transferWithinObject(ctx, m.stage.Inventory.Head, patterns, dst, recursive, true)
}

func (m *Mutation) transferWithinObject(ctx context.Context, srcVNum ocfl.VNum, patterns []string, dst string, recursive, move bool) error {
	if len(patterns) == 0 {
		return fmt.Errorf("%w: no source pattern given", ocfl.ErrInvalidValue)
	}
	destIsDir := m.stage.Head().HasDirectory(dst)
	multiPattern := len(patterns) > 1
	var errs ocfl.CopyMoveErr
	for _, pattern := range patterns {
		srcVersion, err := m.stage.State(srcVNum)
		if err != nil {
			return err
		}
		if recursive && srcVersion.HasDirectory(pattern) {
			base := dst
			if strings.HasSuffix(dst, "/") || multiPattern || destIsDir {
				base = path.Join(strings.TrimSuffix(dst, "/"), path.Base(pattern))
			}
			matches, err := m.stage.ResolveGlob(srcVNum, pattern, true)
			if err != nil {
				errs.Add(err)
				continue
			}
			for _, src := range matches {
				rel := strings.TrimPrefix(src, pattern+"/")
				target := path.Join(base, rel)
				errs.Add(m.transferOne(ctx, srcVNum, src, target, move))
			}
			continue
		}
		matches, err := m.stage.ResolveGlob(srcVNum, pattern, recursive)
		if err != nil {
			errs.Add(err)
			continue
		}
		if len(matches) == 0 {
			errs.Add(fmt.Errorf("%w: no path in version %s matches %q", ocfl.ErrNotFound, srcVNum, pattern))
			continue
		}
		dests := destinationFor(dst, matches, destIsDir || multiPattern)
		for _, src := range matches {
			errs.Add(m.transferOne(ctx, srcVNum, src, dests[src], move))
		}
	}
	return errs.OrNil()
}

func (m *Mutation) transferOne(ctx context.Context, srcVNum ocfl.VNum, src, target string, move bool) error {
	if move {
		return m.stage.MoveStagedFile(target, src)
	}
	return m.stage.CopyLogicalPath(ctx, target, srcVNum, src)
}

// destinationFor implements the shared destination-resolution rules for
// copy/move operations (spec.md §4.5): a source's basename is appended
// under dst when dst ends in "/", more than one source is given, or
// appendBasename is already true (the caller's "dst already names a
// virtual directory" check); otherwise the single source maps directly
// onto dst, overwriting any logical file already there.
func destinationFor(dst string, sources []string, appendBasename bool) map[string]string {
	appendBasename = appendBasename || strings.HasSuffix(dst, "/") || len(sources) > 1
	base := strings.TrimSuffix(dst, "/")
	out := make(map[string]string, len(sources))
	for _, src := range sources {
		if appendBasename {
			out[src] = path.Join(base, path.Base(strings.TrimSuffix(src, "/")))
		} else {
			out[src] = dst
		}
	}
	return out
}

// isExternalDir reports whether p names a directory on fsys.
func isExternalDir(ctx context.Context, fsys ocflfs.FS, p string) bool {
	if _, ok := fsys.(ocflfs.DirEntriesFS); !ok {
		return false
	}
	_, err := ocflfs.ReadDir(ctx, fsys, p)
	return err == nil
}

// pruneEmptyAncestors removes dir and its ancestors while they're empty,
// stopping at the first non-empty directory or any error — a best-effort
// cleanup after a move, not a correctness requirement (spec.md §4.5 "source
// directories are pruned of now-empty ancestors after successful
// staging").
func pruneEmptyAncestors(ctx context.Context, fsys ocflfs.WriteFS, dir string) {
	for dir != "." && dir != "/" && dir != "" {
		entries, err := ocflfs.ReadDir(ctx, fsys, dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := fsys.RemoveAll(ctx, dir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}
