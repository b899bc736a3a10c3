// Package validation implements object- and repository-level OCFL
// conformance checking (spec.md §4.6 "Validator"): the per-object
// procedure that walks an object root and cross-checks every version's
// inventory, and a repository-wide pass that runs it over every object
// concurrently.
package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	ocflfs "github.com/ocflkit/ocflkit/fs"
	"github.com/ocflkit/ocflkit/store"

	"github.com/ocflkit/ocflkit"
)

// Result collects every Diagnostic found while validating one object.
type Result struct {
	ObjectRoot string
	Errors     []ocfl.Diagnostic
	Warnings   []ocfl.Diagnostic
}

// Valid reports whether the object has no errors (warnings don't fail
// validation).
func (r *Result) Valid() bool { return len(r.Errors) == 0 }

func (r *Result) addErr(c ocfl.Code, format string, args ...any) {
	r.Errors = append(r.Errors, ocfl.Diagnostic{Code: c, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addWarn(c ocfl.Code, format string, args ...any) {
	r.Warnings = append(r.Warnings, ocfl.Diagnostic{Code: c, Message: fmt.Sprintf(format, args...)})
}

// ValidateObject runs the full per-object validation procedure against
// objectRoot (spec.md §4.6 "per-object validation procedure"):
//  1. check the object namaste declaration
//  2. load the root inventory in validating mode
//  3. check the inventory sidecar digest
//  4. enumerate the object root's entries and flag unexpected ones
//  5. check every version's inventory is internally consistent with the
//     root inventory's record of it
//  6. optionally verify fixity by re-hashing every content file
func ValidateObject(ctx context.Context, fsys ocflfs.FS, objectRoot string, checkFixity bool) *Result {
	res := &Result{ObjectRoot: objectRoot}

	spec, err := ocfl.ReadObjectNamaste(ctx, fsys, objectRoot)
	if err != nil {
		res.addErr(ocfl.E003, "%v", err)
		return res
	}

	data, err := ocflfs.ReadAll(ctx, fsys, objectRoot+"/inventory.json")
	if err != nil {
		res.addErr(ocfl.E064, "reading root inventory: %v", err)
		return res
	}
	parsed, err := ocfl.ParseInventory(data, ocfl.ModeValidating)
	if err != nil {
		res.addErr(ocfl.E033, "root inventory is not valid JSON: %v", err)
		return res
	}
	res.Errors = append(res.Errors, parsed.Errors...)
	res.Warnings = append(res.Warnings, parsed.Warnings...)
	inv := parsed.Inventory
	if inv == nil {
		return res
	}
	inv.ObjectRoot = objectRoot
	if inv.Type != spec {
		res.addWarn(ocfl.W000, "namaste declares spec %s but inventory type is %s", spec, inv.Type)
	}

	checkSidecar(ctx, fsys, objectRoot, "inventory.json", inv.DigestAlgorithm, res)

	entries, err := ocflfs.ReadDir(ctx, fsys, objectRoot)
	if err != nil {
		res.addErr(ocfl.E001, "reading object root: %v", err)
		return res
	}
	allowed := map[string]bool{
		"inventory.json": true, "inventory.json." + inv.DigestAlgorithm: true,
		spec.ObjectDeclarationFile(): true, "extensions": true,
	}
	for vn := range inv.Versions {
		allowed[vn.String()] = true
	}
	for _, e := range entries {
		if !allowed[e.Name()] {
			res.addErr(ocfl.E001, "unexpected entry %q in object root", e.Name())
		}
	}

	for _, vn := range inv.SortedVersions() {
		validateVersionDir(ctx, fsys, objectRoot, inv, vn, res)
	}

	if checkFixity {
		checkManifestFixity(ctx, fsys, objectRoot, inv, res)
	}
	return res
}

func checkSidecar(ctx context.Context, fsys ocflfs.FS, objectRoot, name, alg string, res *Result) {
	data, err := ocflfs.ReadAll(ctx, fsys, objectRoot+"/"+name)
	if err != nil {
		res.addErr(ocfl.E060, "reading %s: %v", name, err)
		return
	}
	sidecar, err := ocflfs.ReadAll(ctx, fsys, objectRoot+"/"+name+"."+alg)
	if err != nil {
		res.addErr(ocfl.E060, "reading %s.%s: %v", name, alg, err)
		return
	}
	want := sumDigest(alg, data)
	got := parseSidecarDigest(string(sidecar))
	if got == "" {
		res.addErr(ocfl.E061, "%s.%s is not in the form '<digest>  %s'", name, alg, name)
		return
	}
	if got != want {
		res.addErr(ocfl.E061, "%s.%s digest %s does not match computed digest %s", name, alg, got, want)
	}
}

// validateVersionDir checks one version directory's inventory.json (when
// present — earlier versions may only carry the root-level copy) against
// the root inventory's record of that version (spec.md §4.6 step on
// "per-version inventory consistency checks"). The files under the
// version's content directory are not listed or checked here.
func validateVersionDir(ctx context.Context, fsys ocflfs.FS, objectRoot string, root *ocfl.Inventory, vn ocfl.VNum, res *Result) {
	versionDir := objectRoot + "/" + vn.String()
	data, err := ocflfs.ReadAll(ctx, fsys, versionDir+"/inventory.json")
	if err != nil {
		return // not every version directory carries its own inventory copy
	}
	parsed, err := ocfl.ParseInventory(data, ocfl.ModeValidating)
	if err != nil {
		res.addErr(ocfl.E033, "%s/inventory.json: %v", vn, err)
		return
	}
	res.Errors = append(res.Errors, parsed.Errors...)
	if parsed.Inventory == nil {
		return
	}
	if vn == root.Head {
		rootData, _ := ocflfs.ReadAll(ctx, fsys, objectRoot+"/inventory.json")
		if string(rootData) != string(data) {
			res.addErr(ocfl.E064, "the %s inventory copy differs from the root inventory", vn)
		}
		return
	}
	rootVersion := root.Versions[vn]
	if rootVersion == nil {
		res.addErr(ocfl.E066, "root inventory has no record of version %s", vn)
		return
	}
	priorVersion := parsed.Inventory.Versions[vn]
	if priorVersion == nil || !stateEqual(priorVersion.State, rootVersion.State) {
		res.addErr(ocfl.E066, "version %s state in the root inventory is inconsistent with its own inventory copy", vn)
	}
}

func stateEqual(a, b ocfl.DigestMap) bool {
	am, bm := a.PathMap(), b.PathMap()
	if len(am) != len(bm) {
		return false
	}
	for p, d := range am {
		if bm[p] != d {
			return false
		}
	}
	return true
}

func checkManifestFixity(ctx context.Context, fsys ocflfs.FS, objectRoot string, inv *ocfl.Inventory, res *Result) {
	for contentPath, expected := range inv.Manifest.PathMap() {
		data, err := ocflfs.ReadAll(ctx, fsys, objectRoot+"/"+contentPath)
		if err != nil {
			res.addErr(ocfl.E092, "manifest content path %q: %v", contentPath, err)
			continue
		}
		if got := sumDigest(inv.DigestAlgorithm, data); got != expected {
			res.addErr(ocfl.E092, "content path %q has digest %s, manifest declares %s", contentPath, got, expected)
		}
	}
}

// ValidateRepo runs ValidateObject over every object in store s, bounding
// concurrency with an errgroup (spec.md §4.6 "repository-level
// validation"). An object whose inventory fails to parse is validated
// too, so the failure shows up in its Result.
func ValidateRepo(ctx context.Context, s *store.Store, checkFixity bool) (map[string]*Result, error) {
	results := make(map[string]*Result)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for inv, err := range s.IterInventories(ctx) {
		var objectRoot string
		var corrupt *ocfl.CorruptObjectErr
		switch {
		case err == nil:
			objectRoot = inv.ObjectRoot
		case errors.As(err, &corrupt):
			objectRoot = corrupt.ObjectID
		default:
			continue
		}
		g.Go(func() error {
			res := ValidateObject(gctx, s.FS, objectRoot, checkFixity)
			mu.Lock()
			results[res.ObjectRoot] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
