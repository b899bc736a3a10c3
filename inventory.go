package ocfl

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ocflkit/ocflkit/digest"
)

// DefaultContentDirectory is used when an inventory omits contentDirectory.
const DefaultContentDirectory = "content"

// User identifies the author of a version (spec.md §3 "Version").
type User struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// Version is one entry in an inventory's "versions" map: spec.md §3
// "Version".
type Version struct {
	Created time.Time `json:"created"`
	State   DigestMap `json:"state"`
	Message string    `json:"message,omitempty"`
	User    *User     `json:"user,omitempty"`

	virtualDirs map[string]bool // lazy, see VirtualDirs
}

// DigestFor returns the digest associated with logical path p in this
// version, or "" if p isn't present.
func (v *Version) DigestFor(p string) string { return v.State.DigestFor(p) }

// VirtualDirs returns the set of directory paths implied by this version's
// logical paths, computing and caching it on first use (spec.md §3: "A
// derived virtual directories set (lazy, invalidated on state mutation)").
func (v *Version) VirtualDirs() map[string]bool {
	if v.virtualDirs == nil {
		v.virtualDirs = VirtualDirs(v.State.AllPaths())
	}
	return v.virtualDirs
}

// Invalidate clears the cached virtual-directories set; every mutation of
// v.State must call this.
func (v *Version) Invalidate() { v.virtualDirs = nil }

// HasLogicalPath reports whether p names a file in this version's state.
func (v *Version) HasLogicalPath(p string) bool { return v.State.DigestFor(p) != "" }

// HasDirectory reports whether p names a virtual directory in this
// version's state.
func (v *Version) HasDirectory(p string) bool { return v.VirtualDirs()[p] }

// Clone returns a deep copy of v.
func (v *Version) Clone() *Version {
	cp := &Version{Created: v.Created, State: v.State.Clone(), Message: v.Message}
	if v.User != nil {
		u := *v.User
		cp.User = &u
	}
	return cp
}

// Inventory is the parsed and validated representation of one OCFL
// object's inventory.json (spec.md §3 "Inventory").
type Inventory struct {
	ID               string           `json:"id"`
	Type             Spec             `json:"-"` // derived from the "type" URI
	DigestAlgorithm  string           `json:"digestAlgorithm"`
	Head             VNum             `json:"head"`
	ContentDirectory string           `json:"contentDirectory,omitempty"`
	Manifest         DigestMap        `json:"manifest"`
	Versions         map[VNum]*Version `json:"versions"`
	Fixity           map[string]DigestMap `json:"fixity,omitempty"`

	// Runtime-only fields, not serialized (spec.md §3 "Inventory" last
	// sentence).
	ObjectRoot  string `json:"-"`
	MutableHead bool   `json:"-"`
}

// ContentDir returns the inventory's content directory name, defaulting to
// DefaultContentDirectory.
func (inv *Inventory) ContentDir() string {
	if inv.ContentDirectory == "" {
		return DefaultContentDirectory
	}
	return inv.ContentDirectory
}

// HeadVersion returns the Version record for inv.Head.
func (inv *Inventory) HeadVersion() *Version { return inv.Versions[inv.Head] }

// SortedVersions returns inv's version numbers in ascending order.
func (inv *Inventory) SortedVersions() VNums {
	vs := make(VNums, 0, len(inv.Versions))
	for v := range inv.Versions {
		vs = append(vs, v)
	}
	sort.Sort(vs)
	return vs
}

// ContentPathForDigest returns one content path in the manifest for digest,
// or "" if absent.
func (inv *Inventory) ContentPathForDigest(digest string) string {
	paths := inv.Manifest[digest]
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}

// ContentPathVersion parses the leading "vN/" segment of a content path and
// returns the version that introduced it (spec.md §3 "content path ...
// carries a parsed version-number prefix").
func ContentPathVersion(p string) (VNum, error) {
	idx := strings.IndexByte(p, '/')
	if idx < 0 {
		return VNum{}, fmt.Errorf("%w: %q has no version prefix", ErrInvalidValue, p)
	}
	return ParseVNum(p[:idx])
}

// inventoryWire is the on-disk JSON shape of an Inventory: it differs from
// the Go struct only in "type" (a URI string here, a parsed Spec in
// Inventory) and the head field (sourced from inv.Head via VNum's own
// TextMarshaler).
type inventoryWire struct {
	ID               string               `json:"id"`
	Type             string               `json:"type"`
	DigestAlgorithm  string               `json:"digestAlgorithm"`
	Head             VNum                 `json:"head"`
	ContentDirectory string               `json:"contentDirectory,omitempty"`
	Manifest         DigestMap            `json:"manifest"`
	Versions         map[VNum]*Version    `json:"versions"`
	Fixity           map[string]DigestMap `json:"fixity,omitempty"`
}

// MarshalJSON renders the canonical wire format of an inventory.json.
func (inv *Inventory) MarshalJSON() ([]byte, error) {
	w := inventoryWire{
		ID:               inv.ID,
		Type:             inv.Type.InventoryType(),
		DigestAlgorithm:  inv.DigestAlgorithm,
		Head:             inv.Head,
		ContentDirectory: inv.ContentDirectory,
		Manifest:         inv.Manifest,
		Versions:         inv.Versions,
		Fixity:           inv.Fixity,
	}
	return json.Marshal(w)
}

// Valid checks the inventory-level invariants from spec.md §3 that aren't
// already checked by DigestMap.Valid: head/version consistency, digest
// algorithm, content directory name, and that every state digest resolves
// in the manifest.
func (inv *Inventory) Valid() error {
	if inv.DigestAlgorithm != "sha512" && inv.DigestAlgorithm != "sha256" {
		return fmt.Errorf("%w: digestAlgorithm must be sha512 or sha256, got %q (%s)", ErrInvalidValue, inv.DigestAlgorithm, E025)
	}
	if inv.ContentDirectory == "." || inv.ContentDirectory == ".." || strings.Contains(inv.ContentDirectory, "/") {
		return fmt.Errorf("%w: invalid contentDirectory %q (%s/%s)", ErrInvalidValue, inv.ContentDirectory, E017, E018)
	}
	vnums := inv.SortedVersions()
	if err := vnums.Valid(); err != nil {
		return fmt.Errorf("%w: %w (%s)", ErrInvalidValue, err, E010)
	}
	if vnums.Head() != inv.Head {
		return fmt.Errorf("%w: head %s does not match highest version %s (%s)", ErrInvalidValue, inv.Head, vnums.Head(), E040)
	}
	if err := inv.Manifest.Valid(); err != nil {
		return fmt.Errorf("%w: manifest: %w (%s/%s)", ErrInvalidValue, err, E099, E100)
	}
	manifestDigests := make(map[string]bool, len(inv.Manifest))
	for d := range inv.Manifest {
		manifestDigests[d] = true
	}
	for vn, v := range inv.Versions {
		if err := v.State.Valid(); err != nil {
			return fmt.Errorf("%w: %s state: %w (%s/%s)", ErrInvalidValue, vn, err, E052, E053)
		}
		for d := range v.State {
			if !manifestDigests[d] {
				return fmt.Errorf("%w: %s state references digest %s not in manifest (%s)", ErrInvalidValue, vn, d, E050)
			}
		}
	}
	for alg, fixityMap := range inv.Fixity {
		manifestPaths := make(map[string]bool, inv.Manifest.NumPaths())
		for _, p := range inv.Manifest.AllPaths() {
			manifestPaths[p] = true
		}
		for d, paths := range fixityMap {
			if err := digest.Validate(alg, d); err != nil {
				return fmt.Errorf("%w: fixity[%s]: %w", ErrInvalidValue, alg, err)
			}
			for _, p := range paths {
				if !manifestPaths[p] {
					return fmt.Errorf("%w: fixity[%s] content path %q not in manifest", ErrInvalidValue, alg, p)
				}
			}
		}
	}
	return nil
}
