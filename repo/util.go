package repo

import (
	"context"
	"encoding/json"
	"fmt"

	ocflfs "github.com/ocflkit/ocflkit/fs"
	"github.com/ocflkit/ocflkit/extension"
)

// moveTree promotes the directory tree at src to dst. Backends with an
// atomic directory-level Move (local disk's os.Rename) do this in one
// step; backends that can only move individual objects (object stores)
// fall back to a copy-then-delete walk, which is not atomic — an
// interruption midway leaves dst partially populated and src still present,
// so a retried commit must be able to tell the two apart (spec.md §4.5.2
// "Atomicity", acknowledging the object-store case can't fully achieve it).
func moveTree(ctx context.Context, fsys ocflfs.FS, dst, src string) error {
	if m, ok := fsys.(ocflfs.MoveFS); ok {
		if err := m.Move(ctx, dst, src); err == nil {
			return nil
		} else if !isUnsupported(err) {
			return err
		}
	}
	wfs, ok := fsys.(ocflfs.WriteFS)
	if !ok {
		return fmt.Errorf("moveTree: backend is read-only")
	}
	for ref, err := range ocflfs.WalkFiles(ctx, fsys, src) {
		if err != nil {
			return err
		}
		if _, err := ocflfs.Copy(ctx, fsys, dst+"/"+ref.Path, fsys, src+"/"+ref.Path); err != nil {
			return fmt.Errorf("moveTree: copying %s: %w", ref.Path, err)
		}
	}
	return wfs.RemoveAll(ctx, src)
}

func isUnsupported(err error) bool {
	return err != nil && (err == ocflfs.ErrNotSupported)
}

func marshalLayoutConfig(l extension.Layout) ([]byte, error) {
	if l == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(l)
}
