// Package repo implements the repository façade: the operations a caller
// actually drives — list, get, diff, copy, move, remove, reset, commit,
// upgrade — layered over a main Store and a staging Store, serialized by a
// per-object lock (spec.md §4.4 "Repository Façade").
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	ocflfs "github.com/ocflkit/ocflkit/fs"
	"github.com/ocflkit/ocflkit/internal/lock"
	"github.com/ocflkit/ocflkit/stage"
	"github.com/ocflkit/ocflkit/store"

	"github.com/ocflkit/ocflkit"
)

// Repo is a storage root ready to serve reads and serialize writes.
type Repo struct {
	Main    *store.Store
	Staging *store.Store
	locks   *lock.Manager
}

// Open opens an existing storage root for reading and writing, using
// stagingRoot as the backing area for in-progress stages (the CLI uses
// ".ocfl-staging", a subdirectory of the storage root). The staging area
// is initialized here if it does not exist yet.
func Open(ctx context.Context, fsys ocflfs.FS, root, stagingRoot string) (*Repo, error) {
	main, err := store.Open(ctx, fsys, root)
	if err != nil {
		return nil, err
	}
	wfs, ok := fsys.(ocflfs.WriteFS)
	var staging *store.Store
	if ok {
		if s, err := store.Open(ctx, fsys, stagingRoot); err == nil {
			staging = s
		} else {
			cfg, err := marshalLayoutConfig(main.Layout)
			if err != nil {
				return nil, err
			}
			staging, err = store.Init(ctx, wfs, stagingRoot, main.Spec, main.Layout, cfg, "internal staging area")
			if err != nil {
				return nil, fmt.Errorf("initializing staging area: %w", err)
			}
		}
	}
	return &Repo{Main: main, Staging: staging, locks: lock.NewManager()}, nil
}

// List returns every object id in the repository (spec.md §4.4 "list").
func (r *Repo) List(ctx context.Context) ([]string, error) {
	var ids []string
	for inv, err := range r.Main.IterInventories(ctx) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, inv.ID)
	}
	return ids, nil
}

// Get returns object id's root inventory, which records every version
// (spec.md §4.4 "get", "log", "show").
func (r *Repo) Get(ctx context.Context, id string) (*ocfl.Inventory, error) {
	return r.Main.GetInventory(ctx, id)
}

// Cat opens a logical path within object id's HEAD version for reading
// (spec.md §4.4 "cat").
func (r *Repo) Cat(ctx context.Context, id, logicalPath string) (io.ReadCloser, error) {
	fsys, path, err := r.Main.GetObjectFile(ctx, id, logicalPath)
	if err != nil {
		return nil, err
	}
	return fsys.OpenFile(ctx, path)
}

// Diff reports the logical paths added, removed, and changed between two
// versions of an object's state (spec.md §4.4 "diff").
type Diff struct {
	Added, Removed, Modified []string
}

func (r *Repo) Diff(ctx context.Context, id string, a, b ocfl.VNum) (*Diff, error) {
	inv, err := r.Main.GetInventory(ctx, id)
	if err != nil {
		return nil, err
	}
	va, ok := inv.Versions[a]
	if !ok {
		return nil, fmt.Errorf("%w: object %q has no version %s", ocfl.ErrNotFound, id, a)
	}
	vb, ok := inv.Versions[b]
	if !ok {
		return nil, fmt.Errorf("%w: object %q has no version %s", ocfl.ErrNotFound, id, b)
	}
	pa, pb := va.State.PathMap(), vb.State.PathMap()
	d := &Diff{}
	for p, digest := range pb {
		if prior, ok := pa[p]; !ok {
			d.Added = append(d.Added, p)
		} else if prior != digest {
			d.Modified = append(d.Modified, p)
		}
	}
	for p := range pa {
		if _, ok := pb[p]; !ok {
			d.Removed = append(d.Removed, p)
		}
	}
	return d, nil
}

// Mutation is a handle on an in-progress change to one object: a locked
// Stage plus the bookkeeping needed to commit or abandon it (spec.md §4.4
// "staging-promotion on first mutation").
type Mutation struct {
	repo   *Repo
	id     string
	handle *lock.Handle
	stage  *stage.Stage

	// mutationID correlates the Stage/Commit/Abort log lines for one
	// mutation without requiring a caller to thread a request id through.
	mutationID string
}

// Stage begins a mutation against object id in a fresh staging directory,
// loading its current HEAD inventory as the base if it already exists. A
// staging directory left by an earlier uncommitted mutation is not
// resumed. The returned Mutation holds id's lock until Commit or Abort is
// called.
func (r *Repo) Stage(ctx context.Context, id, digestAlgorithm string) (*Mutation, error) {
	h, err := r.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	base, err := r.Main.GetInventory(ctx, id)
	if err != nil && !isNotFound(err) {
		h.Unlock()
		return nil, err
	}
	if base == nil {
		if digestAlgorithm == "" {
			digestAlgorithm = "sha512"
		}
	} else {
		digestAlgorithm = base.DigestAlgorithm
	}
	stagingRoot := lock.StagingName(id)
	wfs, ok := r.Staging.FS.(ocflfs.WriteFS)
	if !ok {
		h.Unlock()
		return nil, fmt.Errorf("%w: staging area is read-only", ocfl.ErrIllegalOperation)
	}
	s, err := stage.New(wfs, join(r.Staging.Root, stagingRoot), id, base, digestAlgorithm)
	if err != nil {
		h.Unlock()
		return nil, err
	}
	mutationID := newMutationID()
	slog.Debug("staged mutation", "id", id, "mutation", mutationID, "head", s.Inventory.Head.String())
	return &Mutation{repo: r, id: id, handle: h, stage: s, mutationID: mutationID}, nil
}

// Stage returns the underlying working-copy handle for direct
// copy/move/remove calls (spec.md §4.3's stage_file_copy/move etc).
func (m *Mutation) Stage() *stage.Stage { return m.stage }

// Abort releases id's lock without committing, leaving the staging area's
// shadow object in place for inspection; a later Stage does not reuse it
// (spec.md §4.4 "abandoned mutation").
func (m *Mutation) Abort() {
	slog.Debug("aborted mutation", "id", m.id, "mutation", m.mutationID)
	m.handle.Unlock()
}

// Commit finalizes the mutation: it collapses duplicate content the stage
// introduced (spec.md §4.5.1 "dedup on commit"), writes the final
// inventory, and promotes the object into the main store. A new object is
// promoted with one directory move. An existing object gets its new version
// directory moved first and its root inventory rewritten second; a failure
// between those two steps is not rolled back.
func (m *Mutation) Commit(ctx context.Context, message string, user *ocfl.User) error {
	defer m.handle.Unlock()
	head := m.stage.Inventory.HeadVersion()
	head.Message = message
	head.User = user
	head.Created = time.Now()

	dropped := m.dedup()
	if err := m.stage.RemoveContentPaths(ctx, dropped...); err != nil {
		return fmt.Errorf("commit: dedup cleanup: %w", err)
	}
	if err := m.stage.RemoveOrphanedFiles(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := m.stage.WriteInventory(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	isNewObject := m.stage.Inventory.Head == ocfl.V(1)
	mainRoot, err := m.repo.Main.ResolvePath(m.id)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	mainObjectRoot := join(m.repo.Main.Root, mainRoot)
	m.stage.Inventory.ObjectRoot = mainObjectRoot

	if isNewObject {
		wfs := m.repo.Staging.FS.(ocflfs.WriteFS)
		if err := ocfl.WriteObjectNamaste(ctx, wfs, m.stage.ObjectRoot, m.stage.Inventory.Type); err != nil {
			return fmt.Errorf("commit: writing object declaration: %w", err)
		}
		if err := moveTree(ctx, m.repo.Main.FS, mainObjectRoot, m.stage.ObjectRoot); err != nil {
			return fmt.Errorf("commit: promoting new object: %w", err)
		}
		slog.Debug("committed mutation", "id", m.id, "mutation", m.mutationID, "head", m.stage.Inventory.Head.String(), "new", true)
		return nil
	}
	// An existing object only gains the new version directory (when the
	// version added content) and a replaced root inventory+sidecar; earlier
	// version directories are untouched (spec.md §4.5 "Commit" step for
	// existing objects).
	versionDir := m.stage.Inventory.Head.String()
	hasContent := false
	for _, cp := range m.stage.Inventory.Manifest.AllPaths() {
		if strings.HasPrefix(cp, versionDir+"/") {
			hasContent = true
			break
		}
	}
	if hasContent {
		if err := moveTree(ctx, m.repo.Main.FS, join(mainObjectRoot, versionDir), join(m.stage.ObjectRoot, versionDir)); err != nil {
			return fmt.Errorf("commit: promoting version %s: %w", versionDir, err)
		}
	}
	if err := m.repo.Main.WriteNewVersion(ctx, m.stage.Inventory); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if err := m.repo.Staging.FS.(ocflfs.WriteFS).RemoveAll(ctx, m.stage.ObjectRoot); err != nil {
		return err
	}
	slog.Debug("committed mutation", "id", m.id, "mutation", m.mutationID, "head", versionDir, "new", false)
	return nil
}

// dedup collapses duplicate content paths the stage introduced for one
// digest. For each manifest entry with more than one content path carrying
// the staged version's own prefix: if the digest is only present under that
// prefix, one of the new paths is kept and the rest are dropped; if the
// digest is also present under an earlier version's path, all of the new
// paths are dropped in favor of the existing one. The dropped content paths
// are returned so the caller can delete them from disk (spec.md §4.5.1
// "dedup on commit").
func (m *Mutation) dedup() []string {
	headPrefix := m.stage.Inventory.Head.String() + "/"
	var dropped []string
	for d, paths := range m.stage.Inventory.Manifest {
		var newPaths, oldPaths []string
		for _, p := range paths {
			if strings.HasPrefix(p, headPrefix) {
				newPaths = append(newPaths, p)
			} else {
				oldPaths = append(oldPaths, p)
			}
		}
		if len(newPaths) <= 1 {
			continue
		}
		sort.Strings(newPaths)
		if len(oldPaths) > 0 {
			dropped = append(dropped, newPaths...)
			m.stage.Inventory.Manifest[d] = oldPaths
			continue
		}
		dropped = append(dropped, newPaths[1:]...)
		m.stage.Inventory.Manifest[d] = newPaths[:1]
	}
	return dropped
}

// Upgrade rewrites object id's inventory to declare a newer spec version,
// without touching content (spec.md §4.4 "upgrade").
func (r *Repo) Upgrade(ctx context.Context, id string, to ocfl.Spec) error {
	h, err := r.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer h.Unlock()
	inv, err := r.Main.GetInventory(ctx, id)
	if err != nil {
		return err
	}
	if !inv.Type.Before(to) {
		return fmt.Errorf("%w: object %q is already at spec %s", ocfl.ErrIllegalOperation, id, inv.Type)
	}
	inv.Type = to
	wfs, ok := r.Main.FS.(ocflfs.WriteFS)
	if !ok {
		return fmt.Errorf("%w: storage backend is read-only", ocfl.ErrIllegalOperation)
	}
	if err := ocfl.WriteObjectNamaste(ctx, wfs, inv.ObjectRoot, to); err != nil {
		return err
	}
	return r.Main.WriteNewVersion(ctx, inv)
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, ocfl.ErrNotFound)
}

func join(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" || p == "." {
			continue
		}
		if out == "" {
			out = p
		} else {
			out += "/" + p
		}
	}
	if out == "" {
		return "."
	}
	return out
}

// newMutationID returns a fresh id correlating one mutation's log lines.
func newMutationID() string { return uuid.NewString() }
