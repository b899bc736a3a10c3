package stage_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	ocflfs "github.com/ocflkit/ocflkit/fs"
	"github.com/ocflkit/ocflkit/fs/local"
	"github.com/ocflkit/ocflkit/stage"

	"github.com/ocflkit/ocflkit"
)

func newTestStage(t *testing.T) (*stage.Stage, *local.FS) {
	t.Helper()
	fsys, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	s, err := stage.New(fsys, "staged-obj1", "info:example/obj1", nil, "sha256")
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	return s, fsys
}

func TestNewBuildsV1Skeleton(t *testing.T) {
	s, _ := newTestStage(t)
	if s.Inventory.Head != ocfl.V(1) {
		t.Fatalf("Head = %v, want v1", s.Inventory.Head)
	}
	if len(s.Inventory.Manifest) != 0 {
		t.Fatal("expected an empty manifest for a brand-new v1 skeleton")
	}
}

func TestNewClonesBaseHeadState(t *testing.T) {
	fsys, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	base := &ocfl.Inventory{
		ID: "info:example/obj1", Type: ocfl.Spec1_1, DigestAlgorithm: "sha256",
		Head:     ocfl.V(1),
		Manifest: ocfl.DigestMap{"aaaa": {"v1/content/a.txt"}},
		Versions: map[ocfl.VNum]*ocfl.Version{
			ocfl.V(1): {State: ocfl.DigestMap{"aaaa": {"a.txt"}}},
		},
	}
	s, err := stage.New(fsys, "staged-obj1", "info:example/obj1", base, "sha256")
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	if s.Inventory.Head != ocfl.V(2) {
		t.Fatalf("Head = %v, want v2", s.Inventory.Head)
	}
	if d := s.Inventory.HeadVersion().DigestFor("a.txt"); d != "aaaa" {
		t.Fatalf("expected v2 to inherit a.txt from v1, got digest %q", d)
	}
	if len(base.Versions) != 1 {
		t.Fatal("staging a new version must not mutate the base inventory's version history")
	}
}

func TestFileCopyDefersDedupOfIdenticalContent(t *testing.T) {
	s, srcFS := newTestStage(t)
	ctx := context.Background()
	if _, err := srcFS.Write(ctx, "src.txt", bytes.NewReader([]byte("same bytes"))); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	d1, err := s.FileCopy(ctx, "a.txt", srcFS, "src.txt")
	if err != nil {
		t.Fatalf("FileCopy a.txt: %v", err)
	}
	d2, err := s.FileCopy(ctx, "b.txt", srcFS, "src.txt")
	if err != nil {
		t.Fatalf("FileCopy b.txt: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("identical content should produce the same digest, got %q and %q", d1, d2)
	}
	// Collapsing duplicate content paths is deferred to commit, so both
	// writes keep their own content path until then.
	if len(s.Inventory.Manifest[d1]) != 2 {
		t.Fatalf("expected two content paths for the shared digest before commit, got %v", s.Inventory.Manifest[d1])
	}
}

func TestMoveStagedFileRenamesWithoutTouchingManifest(t *testing.T) {
	s, srcFS := newTestStage(t)
	ctx := context.Background()
	if _, err := srcFS.Write(ctx, "src.txt", bytes.NewReader([]byte("payload"))); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	if _, err := s.FileCopy(ctx, "old.txt", srcFS, "src.txt"); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	manifestBefore := len(s.Inventory.Manifest)

	if err := s.MoveStagedFile("new.txt", "old.txt"); err != nil {
		t.Fatalf("MoveStagedFile: %v", err)
	}
	if s.Inventory.HeadVersion().DigestFor("old.txt") != "" {
		t.Fatal("old.txt should no longer be present after MoveStagedFile")
	}
	if s.Inventory.HeadVersion().DigestFor("new.txt") == "" {
		t.Fatal("new.txt should be present after MoveStagedFile")
	}
	if len(s.Inventory.Manifest) != manifestBefore {
		t.Fatal("MoveStagedFile must not touch the manifest, only the version state")
	}
}

func TestMoveStagedFileMissingSourceFails(t *testing.T) {
	s, _ := newTestStage(t)
	if err := s.MoveStagedFile("new.txt", "nope.txt"); err == nil {
		t.Fatal("expected moving an unstaged logical path to fail")
	}
}

func TestRemoveOrphanedFilesSweepsUnreferencedContent(t *testing.T) {
	s, srcFS := newTestStage(t)
	ctx := context.Background()
	if _, err := srcFS.Write(ctx, "src.txt", bytes.NewReader([]byte("orphan me"))); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	if _, err := s.FileCopy(ctx, "keep.txt", srcFS, "src.txt"); err != nil {
		t.Fatalf("FileCopy: %v", err)
	}
	s.RemoveStagedFiles("keep.txt")

	if err := s.RemoveOrphanedFiles(ctx); err != nil {
		t.Fatalf("RemoveOrphanedFiles: %v", err)
	}
	if len(s.Inventory.Manifest) != 0 {
		t.Fatal("RemoveOrphanedFiles must prune manifest entries no version's state references any longer")
	}
	exists, err := ocflfs.Exists(ctx, srcFS, "staged-obj1/v1/content/keep.txt")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected the orphaned content file to be removed")
	}
}

func TestRemoveOrphanedFilesToleratesEmptyVersionDir(t *testing.T) {
	fsys, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	base := &ocfl.Inventory{
		ID: "info:example/obj1", Type: ocfl.Spec1_1, DigestAlgorithm: "sha256",
		Head:     ocfl.V(1),
		Manifest: ocfl.DigestMap{"aaaa": {"v1/content/a.txt"}},
		Versions: map[ocfl.VNum]*ocfl.Version{
			ocfl.V(1): {State: ocfl.DigestMap{"aaaa": {"a.txt"}}},
		},
	}
	s, err := stage.New(fsys, "staged-obj1", "info:example/obj1", base, "sha256")
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	if err := s.CopyStagedFile(context.Background(), "b.txt", "a.txt"); err != nil {
		t.Fatalf("CopyStagedFile: %v", err)
	}
	// v2 never writes any bytes of its own, so its content directory is
	// never created; sweeping it must not treat that as an error.
	if err := s.RemoveOrphanedFiles(context.Background()); err != nil {
		t.Fatalf("RemoveOrphanedFiles on a version with no content dir: %v", err)
	}
}

func TestFileCopyRejectsPathConflictBeforeWriting(t *testing.T) {
	s, srcFS := newTestStage(t)
	ctx := context.Background()
	if _, err := srcFS.Write(ctx, "src.txt", bytes.NewReader([]byte("payload"))); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	if _, err := s.FileCopy(ctx, "a", srcFS, "src.txt"); err != nil {
		t.Fatalf("FileCopy a: %v", err)
	}
	if _, err := s.FileCopy(ctx, "a/b", srcFS, "src.txt"); !errors.Is(err, ocfl.ErrIllegalState) {
		t.Fatalf("FileCopy a/b: want ErrIllegalState, got %v", err)
	}
	exists, err := ocflfs.Exists(ctx, srcFS, "staged-obj1/v1/content/a/b")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("rejecting a path conflict must not write any content")
	}
}

func TestResolveGlobMatchesRecursivelyAgainstVirtualDirs(t *testing.T) {
	s, srcFS := newTestStage(t)
	ctx := context.Background()
	if _, err := srcFS.Write(ctx, "src.txt", bytes.NewReader([]byte("payload"))); err != nil {
		t.Fatalf("writing source: %v", err)
	}
	for _, p := range []string{"dir/a.txt", "dir/sub/b.txt", "other.txt"} {
		if _, err := s.FileCopy(ctx, p, srcFS, "src.txt"); err != nil {
			t.Fatalf("FileCopy %s: %v", p, err)
		}
	}
	matches, err := s.ResolveGlob(s.Inventory.Head, "dir", true)
	if err != nil {
		t.Fatalf("ResolveGlob: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected the two paths under dir/, got %v", matches)
	}
	flat, err := s.ResolveGlob(s.Inventory.Head, "dir", false)
	if err != nil {
		t.Fatalf("ResolveGlob non-recursive: %v", err)
	}
	if len(flat) != 0 {
		t.Fatalf("a directory name shouldn't match any logical path non-recursively, got %v", flat)
	}
}

func TestCopyLogicalPathReusesContentFromEarlierVersion(t *testing.T) {
	fsys, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	base := &ocfl.Inventory{
		ID: "info:example/obj1", Type: ocfl.Spec1_1, DigestAlgorithm: "sha256",
		Head:     ocfl.V(1),
		Manifest: ocfl.DigestMap{"aaaa": {"v1/content/a.txt"}},
		Versions: map[ocfl.VNum]*ocfl.Version{
			ocfl.V(1): {State: ocfl.DigestMap{"aaaa": {"a.txt"}}},
		},
	}
	s, err := stage.New(fsys, "staged-obj1", "info:example/obj1", base, "sha256")
	if err != nil {
		t.Fatalf("stage.New: %v", err)
	}
	ctx := context.Background()
	if err := s.CopyLogicalPath(ctx, "b.txt", ocfl.V(1), "a.txt"); err != nil {
		t.Fatalf("CopyLogicalPath: %v", err)
	}
	if len(s.Inventory.Manifest["aaaa"]) != 1 {
		t.Fatalf("copying content that already exists in an earlier version must not duplicate bytes, got %v", s.Inventory.Manifest["aaaa"])
	}
}
