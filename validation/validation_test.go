package validation_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ocflkit/ocflkit/extension"
	"github.com/ocflkit/ocflkit/fs/local"
	"github.com/ocflkit/ocflkit/repo"
	"github.com/ocflkit/ocflkit/store"
	"github.com/ocflkit/ocflkit/validation"

	"github.com/ocflkit/ocflkit"
)

func newCommittedRepo(t *testing.T) (*repo.Repo, *local.FS) {
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
	if _, err := store.Init(ctx, fsys, ".", ocfl.Spec1_1, layout, []byte(`{"extensionName":"0004-hashed-n-tuple-storage-layout","digestAlgorithm":"sha256","tupleSize":3,"numberOfTuples":3}`), "test root"); err != nil {
		t.Fatalf("store.Init: %v", err)
	}
	r, err := repo.Open(ctx, fsys, ".", ".ocfl-staging")
	if err != nil {
		t.Fatalf("repo.Open: %v", err)
	}

	srcFS, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	if _, err := srcFS.Write(ctx, "a.txt", bytes.NewReader([]byte("hello world"))); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	m, err := r.Stage(ctx, "info:example/valid1", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := m.Stage().FileCopy(ctx, "a.txt", srcFS, "a.txt"); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	if err := m.Commit(ctx, "initial version", &ocfl.User{Name: "tester", Address: "mailto:t@example.com"}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return r, fsys
}

func objectRoot(t *testing.T, r *repo.Repo, id string) string {
	t.Helper()
	inv, err := r.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return inv.ObjectRoot
}

func TestValidateObjectValid(t *testing.T) {
	r, fsys := newCommittedRepo(t)
	root := objectRoot(t, r, "info:example/valid1")

	res := validation.ValidateObject(context.Background(), fsys, root, true)
	if !res.Valid() {
		t.Fatalf("expected a freshly committed object to validate cleanly, got errors: %+v", res.Errors)
	}
}

func TestValidateObjectMissingNamaste(t *testing.T) {
	r, fsys := newCommittedRepo(t)
	root := objectRoot(t, r, "info:example/valid1")
	ctx := context.Background()

	if err := fsys.Remove(ctx, root+"/0=ocfl_object_1.1"); err != nil {
		t.Fatalf("removing namaste: %v", err)
	}

	res := validation.ValidateObject(ctx, fsys, root, false)
	if res.Valid() {
		t.Fatal("expected missing object declaration to be invalid")
	}
	var sawE003 bool
	for _, e := range res.Errors {
		if e.Code == ocfl.E003 {
			sawE003 = true
		}
	}
	if !sawE003 {
		t.Fatalf("expected E003 for missing namaste, got %+v", res.Errors)
	}
}

func TestValidateObjectBadSidecarDigest(t *testing.T) {
	r, fsys := newCommittedRepo(t)
	root := objectRoot(t, r, "info:example/valid1")
	ctx := context.Background()

	if _, err := fsys.Write(ctx, root+"/inventory.json.sha256", strings.NewReader("0000000000000000000000000000000000000000000000000000000000000000  inventory.json\n")); err != nil {
		t.Fatalf("corrupting sidecar: %v", err)
	}

	res := validation.ValidateObject(ctx, fsys, root, false)
	if res.Valid() {
		t.Fatal("expected a tampered sidecar digest to be invalid")
	}
	var sawE061 bool
	for _, e := range res.Errors {
		if e.Code == ocfl.E061 {
			sawE061 = true
		}
	}
	if !sawE061 {
		t.Fatalf("expected E061 for sidecar digest mismatch, got %+v", res.Errors)
	}
}

func TestValidateObjectUnexpectedEntry(t *testing.T) {
	r, fsys := newCommittedRepo(t)
	root := objectRoot(t, r, "info:example/valid1")
	ctx := context.Background()

	if _, err := fsys.Write(ctx, root+"/stray.txt", strings.NewReader("not part of the object")); err != nil {
		t.Fatalf("writing stray file: %v", err)
	}

	res := validation.ValidateObject(ctx, fsys, root, false)
	if res.Valid() {
		t.Fatal("expected a stray object-root entry to be invalid")
	}
	var sawE001 bool
	for _, e := range res.Errors {
		if e.Code == ocfl.E001 {
			sawE001 = true
		}
	}
	if !sawE001 {
		t.Fatalf("expected E001 for unexpected object-root entry, got %+v", res.Errors)
	}
}

func TestValidateObjectFixityMismatch(t *testing.T) {
	r, fsys := newCommittedRepo(t)
	root := objectRoot(t, r, "info:example/valid1")
	ctx := context.Background()

	if _, err := fsys.Write(ctx, root+"/v1/content/a.txt", strings.NewReader("tampered content")); err != nil {
		t.Fatalf("tampering with content: %v", err)
	}

	res := validation.ValidateObject(ctx, fsys, root, true)
	if res.Valid() {
		t.Fatal("expected tampered content to fail fixity checking")
	}
	var sawE092 bool
	for _, e := range res.Errors {
		if e.Code == ocfl.E092 {
			sawE092 = true
		}
	}
	if !sawE092 {
		t.Fatalf("expected E092 for fixity mismatch, got %+v", res.Errors)
	}
}

func TestValidateRepoAggregatesAcrossObjects(t *testing.T) {
	r, fsys := newCommittedRepo(t)
	ctx := context.Background()

	srcFS, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	if _, err := srcFS.Write(ctx, "b.txt", bytes.NewReader([]byte("second object"))); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	m, err := r.Stage(ctx, "info:example/valid2", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := m.Stage().FileCopy(ctx, "b.txt", srcFS, "b.txt"); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	if err := m.Commit(ctx, "initial version", nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	s, err := store.Open(ctx, fsys, ".")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	results, err := validation.ValidateRepo(ctx, s, false)
	if err != nil {
		t.Fatalf("ValidateRepo: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected results for 2 objects, got %d", len(results))
	}
	for root, res := range results {
		if !res.Valid() {
			t.Fatalf("object at %q expected to validate cleanly, got errors: %+v", root, res.Errors)
		}
	}
}
