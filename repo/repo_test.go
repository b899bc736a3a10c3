package repo_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ocflkit/ocflkit/extension"
	"github.com/ocflkit/ocflkit/fs/local"
	"github.com/ocflkit/ocflkit/repo"
	"github.com/ocflkit/ocflkit/store"

	"github.com/ocflkit/ocflkit"
)

func newTestRepo(t *testing.T) *repo.Repo {
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
	return r
}

func stageSource(t *testing.T) (*local.FS, string) {
	t.Helper()
	srcFS, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	if _, err := srcFS.Write(context.Background(), "hello.txt", bytes.NewReader([]byte("hello world"))); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	return srcFS, "hello.txt"
}

func TestCommitNewObjectAndRead(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	srcFS, srcPath := stageSource(t)

	m, err := r.Stage(ctx, "info:example/obj1", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := m.Stage().FileCopy(ctx, "hello.txt", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	user := &ocfl.User{Name: "tester", Address: "mailto:t@example.com"}
	if err := m.Commit(ctx, "initial version", user); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	inv, err := r.Get(ctx, "info:example/obj1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.Head != ocfl.V(1) {
		t.Fatalf("Head = %v, want v1", inv.Head)
	}
	if d := inv.HeadVersion().DigestFor("hello.txt"); d == "" {
		t.Fatal("expected hello.txt in head version state")
	}

	rc, err := r.Cat(ctx, "info:example/obj1", "hello.txt")
	if err != nil {
		t.Fatalf("Cat: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading cat output: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("cat contents = %q, want %q", data, "hello world")
	}
}

func TestCommitSecondVersionAppendsHistory(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	srcFS, srcPath := stageSource(t)

	m1, err := r.Stage(ctx, "info:example/obj2", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := m1.Stage().FileCopy(ctx, "a.txt", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	if err := m1.Commit(ctx, "v1", nil); err != nil {
		t.Fatalf("Commit v1: %v", err)
	}

	m2, err := r.Stage(ctx, "info:example/obj2", "")
	if err != nil {
		t.Fatalf("Stage v2: %v", err)
	}
	if err := m2.Stage().CopyStagedFile(ctx, "b.txt", "a.txt"); err != nil {
		t.Fatalf("CopyStagedFile: %v", err)
	}
	if err := m2.Commit(ctx, "v2", nil); err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	inv, err := r.Get(ctx, "info:example/obj2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.Head != ocfl.V(2) {
		t.Fatalf("Head = %v, want v2", inv.Head)
	}
	if len(inv.Versions) != 2 {
		t.Fatalf("expected 2 versions in history, got %d", len(inv.Versions))
	}
	da := inv.HeadVersion().DigestFor("a.txt")
	db := inv.HeadVersion().DigestFor("b.txt")
	if da == "" || da != db {
		t.Fatalf("expected a.txt and b.txt to share a digest after CopyStagedFile, got %q and %q", da, db)
	}
}

func TestDiffReportsAddedPaths(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	srcFS, srcPath := stageSource(t)

	m1, _ := r.Stage(ctx, "info:example/obj3", "sha256")
	m1.Stage().FileCopy(ctx, "a.txt", srcFS, srcPath)
	if err := m1.Commit(ctx, "v1", nil); err != nil {
		t.Fatalf("Commit v1: %v", err)
	}
	m2, _ := r.Stage(ctx, "info:example/obj3", "")
	m2.Stage().CopyStagedFile(ctx, "b.txt", "a.txt")
	if err := m2.Commit(ctx, "v2", nil); err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	d, err := r.Diff(ctx, "info:example/obj3", ocfl.V(1), ocfl.V(2))
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(d.Added) != 1 || d.Added[0] != "b.txt" {
		t.Fatalf("Added = %v, want [b.txt]", d.Added)
	}
	if len(d.Removed) != 0 || len(d.Modified) != 0 {
		t.Fatalf("expected no removed/modified paths, got %+v", d)
	}
}

func TestCopyWithinObjectPhysicallyDuplicatesStagedOnlyContent(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	srcFS, srcPath := stageSource(t)

	m, err := r.Stage(ctx, "info:example/obj4", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := m.Stage().FileCopy(ctx, "a.txt", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	if err := m.CopyWithinObject(ctx, ocfl.V(1), []string{"a.txt"}, "b.txt", false); err != nil {
		t.Fatalf("CopyWithinObject: %v", err)
	}
	d := m.Stage().Inventory.HeadVersion().DigestFor("a.txt")
	if d != m.Stage().Inventory.HeadVersion().DigestFor("b.txt") {
		t.Fatal("expected a.txt and b.txt to share a digest")
	}
	if len(m.Stage().Inventory.Manifest[d]) != 2 {
		t.Fatalf("expected the copy to physically duplicate content staged only in this version, got %v", m.Stage().Inventory.Manifest[d])
	}
	if err := m.Commit(ctx, "v1", nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	inv, err := r.Get(ctx, "info:example/obj4")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(inv.Manifest[d]) != 1 {
		t.Fatalf("expected commit-time dedup to collapse the duplicate back to one content path, got %v", inv.Manifest[d])
	}
}

func TestResetRestoresPreviousVersionAndDropsAdds(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	srcFS, srcPath := stageSource(t)

	m1, err := r.Stage(ctx, "info:example/obj5", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := m1.Stage().FileCopy(ctx, "keep.txt", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	if err := m1.Commit(ctx, "v1", nil); err != nil {
		t.Fatalf("Commit v1: %v", err)
	}

	m2, err := r.Stage(ctx, "info:example/obj5", "")
	if err != nil {
		t.Fatalf("Stage v2: %v", err)
	}
	if _, err := m2.Stage().FileCopy(ctx, "added.txt", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy added.txt: %v", err)
	}
	m2.Stage().RemoveStagedFiles("keep.txt")
	if err := m2.Reset(ctx, []string{"keep.txt", "added.txt"}, false); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := m2.Commit(ctx, "v2", nil); err != nil {
		t.Fatalf("Commit v2: %v", err)
	}

	inv, err := r.Get(ctx, "info:example/obj5")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inv.HeadVersion().DigestFor("keep.txt") == "" {
		t.Fatal("expected keep.txt to be restored by reset")
	}
	if inv.HeadVersion().DigestFor("added.txt") != "" {
		t.Fatal("expected added.txt to be dropped by reset")
	}
}

func TestRemoveExpandsGlobAgainstHead(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	srcFS, srcPath := stageSource(t)

	m, err := r.Stage(ctx, "info:example/obj6", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := m.Stage().FileCopy(ctx, "dir/a.txt", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy a: %v", err)
	}
	if _, err := m.Stage().FileCopy(ctx, "dir/b.txt", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy b: %v", err)
	}
	removed, err := m.Remove(ctx, []string{"dir/*.txt"}, false)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected both files to match the glob, got %v", removed)
	}
	if err := m.Commit(ctx, "v1", nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	inv, err := r.Get(ctx, "info:example/obj6")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(inv.HeadVersion().State) != 0 {
		t.Fatalf("expected an empty state after removing all matched files, got %+v", inv.HeadVersion().State)
	}
}

func TestCopyFromExternalRejectsPathConflict(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	srcFS, srcPath := stageSource(t)

	m, err := r.Stage(ctx, "info:example/obj7", "sha256")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	defer m.Abort()
	if _, err := m.Stage().FileCopy(ctx, "a", srcFS, srcPath); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	err = m.CopyFromExternal(ctx, srcFS, []string{srcPath}, "a/b", false)
	if err == nil {
		t.Fatal("expected a conflict error")
	}
	if !errors.Is(err, ocfl.ErrIllegalState) {
		t.Fatalf("expected ErrIllegalState, got %v", err)
	}
}
