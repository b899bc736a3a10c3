// Package stage implements the staging engine: a working copy of an
// object's next version, built up by copy/move/remove operations against a
// shadow OCFL object under a staging area before being promoted into the
// main store by a commit (spec.md §4.3 "Staging Engine").
//
// The shadow object's root directory is whatever path the caller passes to
// New; no storage-layout extension is applied to it. repo.Repo.Stage uses
// lock.StagingName, a hash of the id plus a random UUID, under the staging
// root.
package stage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/ocflkit/ocflkit/digest"
	ocflfs "github.com/ocflkit/ocflkit/fs"

	"github.com/ocflkit/ocflkit"
)

// Stage is a working copy of the next version of one object.
type Stage struct {
	ID         string
	ObjectRoot string // root-relative path in the staging FS
	Inventory  *ocfl.Inventory
	fsys       ocflfs.WriteFS
	alg        string
}

// New builds a Stage for id's next version. If base is non-nil it is a
// shallow clone of the object's current HEAD inventory (the common case:
// staging a change against an existing object); if base is nil, a brand
// new v1 skeleton is created (spec.md §4.3 "stage_object").
func New(fsys ocflfs.WriteFS, objectRoot, id string, base *ocfl.Inventory, alg string) (*Stage, error) {
	s := &Stage{ID: id, ObjectRoot: objectRoot, fsys: fsys, alg: alg}
	if base == nil {
		s.Inventory = &ocfl.Inventory{
			ID:              id,
			Type:            ocfl.Spec1_1,
			DigestAlgorithm: alg,
			Head:            ocfl.V(1),
			Manifest:        ocfl.DigestMap{},
			Versions:        map[ocfl.VNum]*ocfl.Version{},
			ObjectRoot:      objectRoot,
		}
		s.Inventory.Versions[ocfl.V(1)] = &ocfl.Version{Created: time.Now(), State: ocfl.DigestMap{}}
		return s, nil
	}
	next, err := base.Head.Next()
	if err != nil {
		return nil, fmt.Errorf("stage: %w", err)
	}
	inv := &ocfl.Inventory{
		ID:               base.ID,
		Type:             base.Type,
		DigestAlgorithm:  base.DigestAlgorithm,
		Head:             next,
		ContentDirectory: base.ContentDirectory,
		Manifest:         base.Manifest.Clone(),
		Versions:         map[ocfl.VNum]*ocfl.Version{},
		Fixity:           base.Fixity,
		ObjectRoot:       objectRoot,
	}
	for vn, v := range base.Versions {
		inv.Versions[vn] = v
	}
	inv.Versions[next] = &ocfl.Version{Created: time.Now(), State: base.HeadVersion().State.Clone()}
	s.Inventory = inv
	return s, nil
}

func (s *Stage) head() *ocfl.Version { return s.Inventory.HeadVersion() }

// Head returns the version currently being staged.
func (s *Stage) Head() *ocfl.Version { return s.head() }

// State returns the Version record for vnum, which may be any version the
// stage knows about — the one being staged or any of its ancestors — since
// a new Stage retains every prior committed version's record (spec.md §4.5
// "Copy/move within an object" evaluates sources "against a specified
// version's state").
func (s *Stage) State(vnum ocfl.VNum) (*ocfl.Version, error) {
	v, ok := s.Inventory.Versions[vnum]
	if !ok {
		return nil, fmt.Errorf("%w: version %s", ocfl.ErrNotFound, vnum)
	}
	return v, nil
}

func (s *Stage) contentPath(logicalPath string) string {
	return fmt.Sprintf("%s/%s/%s", s.Inventory.Head, s.Inventory.ContentDir(), logicalPath)
}

// isNewToHead reports whether a manifest content path was written during
// the version currently being staged, as opposed to inherited from an
// earlier, already-committed version.
func (s *Stage) isNewToHead(contentPath string) bool {
	return strings.HasPrefix(contentPath, s.Inventory.Head.String()+"/")
}

// checkConflict reports an error if adding logicalPath to the head
// version's state would conflict with a path already there — a file name
// clashing with a directory name. Called before any on-disk change, so
// rejection leaves no trace (spec.md §4.5, §8 "S4 — conflict rejection").
func (s *Stage) checkConflict(logicalPath string) error {
	if err := ocfl.ConflictsWithPath(s.head().State.AllPaths(), logicalPath); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	return nil
}

// ResolveGlob expands pattern against the logical paths of version vnum's
// state. In recursive mode a pattern that matches a virtual directory also
// matches every path nested under it (spec.md §4.5 "Copy/move within an
// object": sources are "glob patterns evaluated against a specified
// version's state [...] and optionally against virtual directories for
// recursive mode").
func (s *Stage) ResolveGlob(vnum ocfl.VNum, pattern string, recursive bool) ([]string, error) {
	v, err := s.State(vnum)
	if err != nil {
		return nil, err
	}
	var matches []string
	for _, p := range v.State.AllPaths() {
		if ok, _ := path.Match(pattern, p); ok {
			matches = append(matches, p)
			continue
		}
		if !recursive {
			continue
		}
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if ok, _ := path.Match(pattern, dir); ok {
				matches = append(matches, p)
				break
			}
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// FileCopy streams src into the stage under logicalDst, computing its
// digest and adding it to both the manifest and the head version's state.
// Every call gets its own content path; duplicate digests staged within one
// mutation are collapsed later, at commit, not here (spec.md §4.5.1 "dedup
// on commit").
func (s *Stage) FileCopy(ctx context.Context, logicalDst string, srcFS ocflfs.FS, srcPath string) (string, error) {
	if err := s.checkConflict(logicalDst); err != nil {
		return "", err
	}
	f, err := srcFS.OpenFile(ctx, srcPath)
	if err != nil {
		return "", fmt.Errorf("stage: opening source %s: %w", srcPath, err)
	}
	defer f.Close()
	algo := digest.Get(s.alg)
	d := algo.Digester()
	buf := make([]byte, 32*1024)
	cp := s.contentPath(logicalDst)
	if _, err := ocflfs.Write(ctx, s.fsys, join(s.ObjectRoot, cp), teeReader(f, d, buf)); err != nil {
		return "", fmt.Errorf("stage: writing content for %s: %w", logicalDst, err)
	}
	digestHex := d.String()
	s.Inventory.Manifest[digestHex] = appendUnique(s.Inventory.Manifest[digestHex], cp)
	head := s.head()
	head.State.Mutate(ocfl.RemovePaths(logicalDst))
	head.State[digestHex] = appendUnique(head.State[digestHex], logicalDst)
	head.Invalidate()
	return digestHex, nil
}

// CopyLogicalPath adds dstLogical to the head version's state, pointing at
// whatever digest srcLogical names in version srcVNum's state. If every
// manifest content path for that digest belongs to the version currently
// being staged, the bytes are physically duplicated under dstLogical's own
// content path first: because content paths here are derived from logical
// paths rather than from the digest itself, a later overwrite of the
// original logical path would otherwise silently corrupt the copy. No such
// duplication is needed when the digest also has a content path inherited
// from an earlier, immutable version (spec.md §4.5 "Copy/move within an
// object").
func (s *Stage) CopyLogicalPath(ctx context.Context, dstLogical string, srcVNum ocfl.VNum, srcLogical string) error {
	srcVersion, err := s.State(srcVNum)
	if err != nil {
		return err
	}
	d := srcVersion.State.DigestFor(srcLogical)
	if d == "" {
		return fmt.Errorf("%w: %q is not present in version %s", ocfl.ErrNotFound, srcLogical, srcVNum)
	}
	if err := s.checkConflict(dstLogical); err != nil {
		return err
	}
	contentPaths := s.Inventory.Manifest[d]
	if len(contentPaths) == 0 {
		return fmt.Errorf("ocfl: manifest has no content path for digest %s", d)
	}
	onlyInHead := true
	for _, cp := range contentPaths {
		if !s.isNewToHead(cp) {
			onlyInHead = false
			break
		}
	}
	if onlyInHead {
		newCP := s.contentPath(dstLogical)
		if _, err := ocflfs.Copy(ctx, s.fsys, join(s.ObjectRoot, newCP), s.fsys, join(s.ObjectRoot, contentPaths[0])); err != nil {
			return fmt.Errorf("stage: physically copying %s: %w", srcLogical, err)
		}
		s.Inventory.Manifest[d] = appendUnique(s.Inventory.Manifest[d], newCP)
	}
	head := s.head()
	head.State.Mutate(ocfl.RemovePaths(dstLogical))
	head.State[d] = appendUnique(head.State[d], dstLogical)
	head.Invalidate()
	return nil
}

// CopyStagedFile adds a new logical path pointing at the digest already
// held by srcLogical in the head version — the free case of
// content-addressed storage, unless srcLogical's only content exists in
// this staged version, in which case CopyLogicalPath physically duplicates
// it (spec.md §4.3 "copy_staged_file").
func (s *Stage) CopyStagedFile(ctx context.Context, dstLogical, srcLogical string) error {
	return s.CopyLogicalPath(ctx, dstLogical, s.Inventory.Head, srcLogical)
}

// MoveStagedFile renames a logical path within the staged state, touching
// no bytes: the content path is unaffected by the logical name it's
// currently addressed under (spec.md §4.3 "move_staged_file").
func (s *Stage) MoveStagedFile(dst, src string) error {
	head := s.head()
	d := head.DigestFor(src)
	if d == "" {
		return fmt.Errorf("%w: %q is not staged", ocfl.ErrNotFound, src)
	}
	if err := s.checkConflict(dst); err != nil {
		return err
	}
	head.State.Mutate(ocfl.RemovePaths(dst), ocfl.RenamePath(src, dst))
	head.Invalidate()
	return nil
}

// RemoveStagedFiles drops logical paths from the head version's state. It
// never touches the manifest: content introduced by earlier versions must
// stay addressable by those versions' states (spec.md §4.3
// "rm_staged_files").
func (s *Stage) RemoveStagedFiles(paths ...string) {
	head := s.head()
	head.State.Mutate(ocfl.RemovePaths(paths...))
	head.Invalidate()
}

// RemoveLogicalPaths expands each pattern against the head version's state
// (recursively if requested), drops every match from state, and sweeps any
// content file that removal leaves unreferenced and that was new to this
// staged version. It returns the removed logical paths (spec.md §4.5
// "Remove").
func (s *Stage) RemoveLogicalPaths(ctx context.Context, patterns []string, recursive bool) ([]string, error) {
	var removed []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := s.ResolveGlob(s.Inventory.Head, pattern, recursive)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: no path in version %s matches %q", ocfl.ErrNotFound, s.Inventory.Head, pattern)
		}
		for _, p := range matches {
			if !seen[p] {
				seen[p] = true
				removed = append(removed, p)
			}
		}
	}
	s.RemoveStagedFiles(removed...)
	if err := s.RemoveOrphanedFiles(ctx); err != nil {
		return nil, err
	}
	sort.Strings(removed)
	return removed, nil
}

// Reset partitions the logical paths matched by patterns (expanded against
// both the head version's state and its predecessor's, recursively if
// requested) into adds introduced this version, which are dropped, and
// modifications or deletes relative to the predecessor, which are restored
// to the predecessor's mapping. Adds are processed first, to free up path
// space before a restored path re-occupies it (spec.md §4.5 "Reset").
func (s *Stage) Reset(ctx context.Context, patterns []string, recursive bool) error {
	prevNum, err := s.Inventory.Head.Prev()
	if err != nil {
		return fmt.Errorf("stage: reset: %w", err)
	}
	prev, err := s.State(prevNum)
	if err != nil {
		return err
	}
	prevPaths := prev.State.PathMap()

	candidates := make(map[string]bool)
	for _, pattern := range patterns {
		headMatches, err := s.ResolveGlob(s.Inventory.Head, pattern, recursive)
		if err != nil {
			return err
		}
		prevMatches, err := s.ResolveGlob(prevNum, pattern, recursive)
		if err != nil {
			return err
		}
		for _, p := range headMatches {
			candidates[p] = true
		}
		for _, p := range prevMatches {
			candidates[p] = true
		}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no path matches the given pattern", ocfl.ErrNotFound)
	}

	var adds, restores []string
	for p := range candidates {
		if _, inPrev := prevPaths[p]; inPrev {
			restores = append(restores, p)
		} else {
			adds = append(adds, p)
		}
	}
	sort.Strings(adds)
	sort.Strings(restores)

	if len(adds) > 0 {
		s.RemoveStagedFiles(adds...)
	}
	head := s.head()
	for _, p := range restores {
		d := prevPaths[p]
		head.State.Mutate(ocfl.RemovePaths(p))
		head.State[d] = appendUnique(head.State[d], p)
	}
	head.Invalidate()
	return s.RemoveOrphanedFiles(ctx)
}

// RemoveContentPaths deletes content files from the staging area, tolerating
// paths that are already gone. Used to sweep content dropped by commit-time
// dedup (spec.md §4.5.1).
func (s *Stage) RemoveContentPaths(ctx context.Context, paths ...string) error {
	for _, p := range paths {
		if err := s.fsys.Remove(ctx, join(s.ObjectRoot, p)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// RemoveOrphanedFiles prunes manifest entries whose digest is no longer
// referenced by any version's state, then deletes any content files under
// the staged version's content directory that aren't left in the manifest —
// garbage left behind by a copy that was immediately renamed or removed
// before commit (spec.md §4.3 "rm_orphaned_files").
func (s *Stage) RemoveOrphanedFiles(ctx context.Context) error {
	referenced := make(map[string]bool, len(s.Inventory.Manifest))
	for _, v := range s.Inventory.Versions {
		for d := range v.State {
			referenced[d] = true
		}
	}
	for d := range s.Inventory.Manifest {
		if !referenced[d] {
			delete(s.Inventory.Manifest, d)
		}
	}

	live := make(map[string]bool, len(s.Inventory.Manifest))
	for _, paths := range s.Inventory.Manifest {
		for _, p := range paths {
			live[p] = true
		}
	}
	versionDir := join(s.ObjectRoot, s.Inventory.Head.String(), s.Inventory.ContentDir())
	for ref, err := range ocflfs.WalkFiles(ctx, s.fsys, versionDir) {
		if err != nil {
			// A version that only copies/renames prior content never
			// creates its own content directory; nothing to sweep.
			if errors.Is(err, fs.ErrNotExist) {
				break
			}
			return err
		}
		cp := join(s.Inventory.Head.String(), s.Inventory.ContentDir(), ref.Path)
		if !live[cp] {
			if err := s.fsys.Remove(ctx, join(s.ObjectRoot, cp)); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteInventory marshals and writes the staged inventory.json and its
// digest sidecar into the staging object root (spec.md §4.3
// "stage_inventory").
func (s *Stage) WriteInventory(ctx context.Context) error {
	if err := s.Inventory.Valid(); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	data, err := marshalJSON(s.Inventory)
	if err != nil {
		return err
	}
	if _, err := ocflfs.Write(ctx, s.fsys, join(s.ObjectRoot, "inventory.json"), bytesReader(data)); err != nil {
		return err
	}
	algo := digest.Get(s.alg)
	sum := algo.Digester()
	sum.Write(data)
	sidecar := fmt.Sprintf("%s  inventory.json\n", sum.String())
	_, err = ocflfs.Write(ctx, s.fsys, join(s.ObjectRoot, "inventory.json."+s.alg), bytesReader([]byte(sidecar)))
	return err
}

func appendUnique(paths []string, p string) []string {
	for _, q := range paths {
		if q == p {
			return paths
		}
	}
	return append(paths, p)
}
