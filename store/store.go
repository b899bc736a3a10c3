// Package store implements the OCFL storage-root object store: resolving
// object ids to storage paths via a layout extension, reading and writing
// object inventories, and iterating every object under a root (spec.md §4.2
// "Object Store").
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/ocflkit/ocflkit/digest"
	"github.com/ocflkit/ocflkit/extension"
	ocflfs "github.com/ocflkit/ocflkit/fs"

	"github.com/ocflkit/ocflkit"
)

const (
	layoutConfigDir  = "extensions"
	layoutConfigFile = "ocfl_layout.json"
)

// Store is a storage root: a filesystem backend, its declared spec
// version, and the layout extension that maps object ids to root-relative
// directories.
type Store struct {
	FS     ocflfs.FS
	Root   string // root directory within FS, "." for the backend's root
	Spec   ocfl.Spec
	Layout extension.Layout

	mu        sync.RWMutex
	pathCache map[string]string // object id -> resolved root-relative path
}

// ocflLayoutDoc is the shape of the optional ocfl_layout.json description
// file at the storage root (spec.md §4.2: "a human-readable ocfl_layout.json
// naming the active layout").
type ocflLayoutDoc struct {
	Extension   string `json:"extension"`
	Description string `json:"description,omitempty"`
}

// Open reads a storage root's namaste declaration and layout extension,
// returning a ready-to-use Store.
func Open(ctx context.Context, fsys ocflfs.FS, root string) (*Store, error) {
	spec, err := ocfl.ReadRootNamaste(ctx, fsys, root)
	if err != nil {
		return nil, fmt.Errorf("opening storage root: %w", err)
	}
	s := &Store{FS: fsys, Root: root, Spec: spec, pathCache: make(map[string]string)}
	if err := s.loadLayout(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init declares a new storage root at root: writes the namaste file,
// ocfl_layout.json, and the layout's config.json under extensions/
// (spec.md §4.2 "init"). It does not write a copy of the spec text.
func Init(ctx context.Context, fsys ocflfs.WriteFS, root string, spec ocfl.Spec, layout extension.Layout, layoutConfig []byte, description string) (*Store, error) {
	if err := ocfl.WriteRootNamaste(ctx, fsys, root, spec); err != nil {
		return nil, fmt.Errorf("writing storage root declaration: %w", err)
	}
	doc := ocflLayoutDoc{Extension: layout.Name(), Description: description}
	data, err := jsonMarshalIndent(doc)
	if err != nil {
		return nil, err
	}
	if _, err := ocflfs.Write(ctx, fsys, join(root, layoutConfigFile), newReader(data)); err != nil {
		return nil, fmt.Errorf("writing ocfl_layout.json: %w", err)
	}
	cfgPath := join(root, layoutConfigDir, layout.Name(), "config.json")
	if _, err := ocflfs.Write(ctx, fsys, cfgPath, newReader(layoutConfig)); err != nil {
		return nil, fmt.Errorf("writing layout config.json: %w", err)
	}
	return &Store{FS: fsys, Root: root, Spec: spec, Layout: layout, pathCache: make(map[string]string)}, nil
}

func (s *Store) loadLayout(ctx context.Context) error {
	data, err := ocflfs.ReadAll(ctx, s.FS, join(s.Root, layoutConfigFile))
	if err != nil {
		return ErrNoLayout
	}
	var doc ocflLayoutDoc
	if err := jsonUnmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing ocfl_layout.json: %w", err)
	}
	cfgPath := join(s.Root, layoutConfigDir, doc.Extension, "config.json")
	cfgData, err := ocflfs.ReadAll(ctx, s.FS, cfgPath)
	if err != nil {
		return fmt.Errorf("reading layout config for %s: %w", doc.Extension, err)
	}
	layout, err := extension.Config(doc.Extension, cfgData)
	if err != nil {
		return err
	}
	s.Layout = layout
	return nil
}

// ResolvePath maps an object id to its root-relative directory, using and
// populating an id->path cache guarded by a RWMutex so concurrent reads
// (validation, iteration) don't all recompute the same digest (spec.md
// §4.2 "id -> path cache").
func (s *Store) ResolvePath(id string) (string, error) {
	s.mu.RLock()
	if p, ok := s.pathCache[id]; ok {
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	p, err := s.Layout.Resolve(id)
	if err != nil {
		return "", fmt.Errorf("resolving object id %q: %w", id, err)
	}
	s.mu.Lock()
	s.pathCache[id] = p
	s.mu.Unlock()
	return p, nil
}

// GetInventory loads and parses the HEAD inventory.json for object id in
// strict mode (spec.md §4.2 "get_inventory").
func (s *Store) GetInventory(ctx context.Context, id string) (*ocfl.Inventory, error) {
	rel, err := s.ResolvePath(id)
	if err != nil {
		return nil, err
	}
	return s.readInventory(ctx, join(s.Root, rel))
}

func (s *Store) readInventory(ctx context.Context, objectRoot string) (*ocfl.Inventory, error) {
	data, err := ocflfs.ReadAll(ctx, s.FS, join(objectRoot, "inventory.json"))
	if err != nil {
		return nil, fmt.Errorf("%w: reading inventory at %s", ocfl.ErrNotFound, objectRoot)
	}
	res, err := ocfl.ParseInventory(data, ocfl.ModeStrict)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", &ocfl.CorruptObjectErr{ObjectID: objectRoot, Message: "inventory failed to parse"}, err)
	}
	inv := res.Inventory
	inv.ObjectRoot = objectRoot
	return inv, nil
}

// GetObjectFile resolves a logical path within object id's HEAD version
// through the manifest to a content path, returning the FS and path to
// open; it does not open the file itself (spec.md §4.2 "get_object_file").
func (s *Store) GetObjectFile(ctx context.Context, id, logicalPath string) (ocflfs.FS, string, error) {
	inv, err := s.GetInventory(ctx, id)
	if err != nil {
		return nil, "", err
	}
	v := inv.HeadVersion()
	if v == nil {
		return nil, "", fmt.Errorf("%w: object %q has no head version", ocfl.ErrNotFound, id)
	}
	d := v.DigestFor(logicalPath)
	if d == "" {
		return nil, "", fmt.Errorf("%w: logical path %q not in object %q", ocfl.ErrNotFound, logicalPath, id)
	}
	cp := inv.ContentPathForDigest(d)
	if cp == "" {
		return nil, "", fmt.Errorf("%w: digest %s has no content path", ocfl.ErrNotFound, d)
	}
	return s.FS, join(inv.ObjectRoot, cp), nil
}

// WriteNewObject writes a brand-new object (its v1) directly at
// inv.ObjectRoot: the namaste declaration, content files, and the
// inventory + sidecar, failing if an inventory.json already exists there
// (spec.md §4.2 "write_new_object"). Nothing is staged or moved.
func (s *Store) WriteNewObject(ctx context.Context, inv *ocfl.Inventory, content map[string]func() (int64, error)) error {
	wfs, ok := s.FS.(ocflfs.WriteFS)
	if !ok {
		return fmt.Errorf("%w: storage backend is read-only", ocfl.ErrIllegalOperation)
	}
	if exists, _ := ocflfs.Exists(ctx, s.FS, join(inv.ObjectRoot, "inventory.json")); exists {
		return fmt.Errorf("%w: object already exists at %s", ocfl.ErrAlreadyExists, inv.ObjectRoot)
	}
	if err := ocfl.WriteObjectNamaste(ctx, wfs, inv.ObjectRoot, inv.Type); err != nil {
		return err
	}
	for _, write := range content {
		if _, err := write(); err != nil {
			return fmt.Errorf("writing object content: %w", err)
		}
	}
	return s.writeInventory(ctx, wfs, inv)
}

// WriteNewVersion overwrites the root inventory+sidecar for an object that
// already exists, after new version content has already been staged
// (spec.md §4.2 "write_new_version").
func (s *Store) WriteNewVersion(ctx context.Context, inv *ocfl.Inventory) error {
	wfs, ok := s.FS.(ocflfs.WriteFS)
	if !ok {
		return fmt.Errorf("%w: storage backend is read-only", ocfl.ErrIllegalOperation)
	}
	return s.writeInventory(ctx, wfs, inv)
}

func (s *Store) writeInventory(ctx context.Context, wfs ocflfs.WriteFS, inv *ocfl.Inventory) error {
	data, err := marshalInventory(inv)
	if err != nil {
		return err
	}
	if _, err := ocflfs.Write(ctx, wfs, join(inv.ObjectRoot, "inventory.json"), newReader(data)); err != nil {
		return err
	}
	sum := digest.Get(inv.DigestAlgorithm).Digester()
	sum.Write(data)
	sidecar := fmt.Sprintf("%s  inventory.json\n", sum.String())
	_, err = ocflfs.Write(ctx, wfs, join(inv.ObjectRoot, "inventory.json."+inv.DigestAlgorithm), newReader([]byte(sidecar)))
	return err
}

// PurgeObject removes an object's entire root directory (spec.md §4.2
// "purge_object").
func (s *Store) PurgeObject(ctx context.Context, id string) error {
	wfs, ok := s.FS.(ocflfs.WriteFS)
	if !ok {
		return fmt.Errorf("%w: storage backend is read-only", ocfl.ErrIllegalOperation)
	}
	rel, err := s.ResolvePath(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.pathCache, id)
	s.mu.Unlock()
	return wfs.RemoveAll(ctx, join(s.Root, rel))
}

// IterInventories lazily walks every object root under the store, yielding
// each parsed inventory or an error for an object that failed to read
// (spec.md §4.2 "iter_inventories", a cancellable iterator so callers like
// `ls`/`validate` can stop early).
func (s *Store) IterInventories(ctx context.Context) iter.Seq2[*ocfl.Inventory, error] {
	return func(yield func(*ocfl.Inventory, error) bool) {
		for ref, err := range ocflfs.WalkFiles(ctx, s.FS, s.Root) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if ref.Info.Name() != "inventory.json" {
				continue
			}
			objectRoot := dirOf(join(s.Root, ref.Path))
			inv, err := s.readInventory(ctx, objectRoot)
			if !yield(inv, err) {
				return
			}
		}
	}
}

// ErrNoLayout is returned by Open when the storage root's
// ocfl_layout.json cannot be read.
var ErrNoLayout = errors.New("store: no storage layout configured")
