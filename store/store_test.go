package store_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/ocflkit/ocflkit/digest"
	"github.com/ocflkit/ocflkit/extension"
	"github.com/ocflkit/ocflkit/fs"
	"github.com/ocflkit/ocflkit/fs/local"
	"github.com/ocflkit/ocflkit/store"

	"github.com/ocflkit/ocflkit"
)

func newTestStore(t *testing.T) (*store.Store, *local.FS) {
	t.Helper()
	ctx := context.Background()
	fsys, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	layout, err := extension.Config(extension.HashedNTuple, []byte(`{"digestAlgorithm":"sha256","tupleSize":3,"numberOfTuples":3}`))
	if err != nil {
		t.Fatalf("extension.Config: %v", err)
	}
	s, err := store.Init(ctx, fsys, ".", ocfl.Spec1_1, layout, []byte(`{"extensionName":"0004-hashed-n-tuple-storage-layout","digestAlgorithm":"sha256","tupleSize":3,"numberOfTuples":3}`), "test root")
	if err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	return s, fsys
}

func writeObject(t *testing.T, ctx context.Context, s *store.Store, id, path, content string) {
	t.Helper()
	rel, err := s.ResolvePath(id)
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	objectRoot := rel
	alg := "sha256"
	digester := digest.Get(alg).Digester()
	digester.Write([]byte(content))
	sum := digester.String()
	inv := &ocfl.Inventory{
		ID:              id,
		Type:            ocfl.Spec1_1,
		DigestAlgorithm: alg,
		Head:            ocfl.V(1),
		Manifest:        ocfl.DigestMap{sum: {"v1/content/" + path}},
		Versions: map[ocfl.VNum]*ocfl.Version{
			ocfl.V(1): {State: ocfl.DigestMap{sum: {path}}},
		},
		ObjectRoot: objectRoot,
	}
	contentWrites := map[string]func() (int64, error){
		path: func() (int64, error) {
			wfs := s.FS.(fs.WriteFS)
			return wfs.Write(ctx, objectRoot+"/v1/content/"+path, bytes.NewReader([]byte(content)))
		},
	}
	if err := s.WriteNewObject(ctx, inv, contentWrites); err != nil {
		t.Fatalf("WriteNewObject(%s): %v", id, err)
	}
}

func TestOpenInitRoundTrip(t *testing.T) {
	s, fsys := newTestStore(t)
	ctx := context.Background()

	s2, err := store.Open(ctx, fsys, ".")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if s2.Spec != s.Spec {
		t.Fatalf("Spec = %v, want %v", s2.Spec, s.Spec)
	}
	if s2.Layout.Name() != s.Layout.Name() {
		t.Fatalf("Layout = %v, want %v", s2.Layout.Name(), s.Layout.Name())
	}
}

func TestResolvePathIsStableAndCached(t *testing.T) {
	s, _ := newTestStore(t)
	first, err := s.ResolvePath("info:example/obj1")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	second, err := s.ResolvePath("info:example/obj1")
	if err != nil {
		t.Fatalf("ResolvePath (cached): %v", err)
	}
	if first != second {
		t.Fatalf("ResolvePath should be stable across calls: %q != %q", first, second)
	}
	want, err := s.Layout.Resolve("info:example/obj1")
	if err != nil {
		t.Fatalf("Layout.Resolve: %v", err)
	}
	if first != want {
		t.Fatalf("ResolvePath = %q, want %q", first, want)
	}
}

func TestWriteNewObjectThenGetInventory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	writeObject(t, ctx, s, "info:example/obj1", "a.txt", "hello")

	inv, err := s.GetInventory(ctx, "info:example/obj1")
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if inv.Head != ocfl.V(1) {
		t.Fatalf("Head = %v, want v1", inv.Head)
	}
	if d := inv.HeadVersion().DigestFor("a.txt"); d == "" {
		t.Fatal("expected a.txt in head version state")
	}
}

func TestWriteNewObjectRejectsDuplicate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	writeObject(t, ctx, s, "info:example/obj1", "a.txt", "hello")

	rel, _ := s.ResolvePath("info:example/obj1")
	inv := &ocfl.Inventory{
		ID: "info:example/obj1", Type: ocfl.Spec1_1, DigestAlgorithm: "sha256",
		Head: ocfl.V(1), Manifest: ocfl.DigestMap{}, Versions: map[ocfl.VNum]*ocfl.Version{ocfl.V(1): {State: ocfl.DigestMap{}}},
		ObjectRoot: rel,
	}
	err := s.WriteNewObject(ctx, inv, nil)
	if err == nil {
		t.Fatal("expected writing a second object at the same resolved path to fail")
	}
}

func TestPurgeObjectRemovesRootAndCacheEntry(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	writeObject(t, ctx, s, "info:example/obj1", "a.txt", "hello")

	if err := s.PurgeObject(ctx, "info:example/obj1"); err != nil {
		t.Fatalf("PurgeObject: %v", err)
	}
	if _, err := s.GetInventory(ctx, "info:example/obj1"); err == nil {
		t.Fatal("expected GetInventory to fail after purge")
	}
}

func TestIterInventoriesCoversAllObjects(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	writeObject(t, ctx, s, "info:example/obj1", "a.txt", "hello")
	writeObject(t, ctx, s, "info:example/obj2", "b.txt", "world")

	seen := map[string]bool{}
	for inv, err := range s.IterInventories(ctx) {
		if err != nil {
			t.Fatalf("IterInventories: %v", err)
		}
		seen[inv.ID] = true
	}
	if !seen["info:example/obj1"] || !seen["info:example/obj2"] {
		t.Fatalf("expected both objects to be found, got %v", seen)
	}
}
