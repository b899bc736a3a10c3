package ocfl

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// DigestMap maps a content digest to the set of paths that hold those
// bytes. It backs both the inventory manifest (digest → content paths) and
// each version's state (digest → logical paths), spec.md §3.
type DigestMap map[string][]string

// PathMutation transforms the list of paths for one digest; used by
// DigestMap.Mutate.
type PathMutation func([]string) []string

// AllPaths returns every path in m, sorted.
func (m DigestMap) AllPaths() []string {
	paths := make([]string, 0, len(m))
	for _, ps := range m {
		paths = append(paths, ps...)
	}
	sort.Strings(paths)
	return paths
}

// PathMap inverts m into a new path → digest map, built afresh on every
// call; the parser does not keep one, and DigestFor scans m linearly.
func (m DigestMap) PathMap() map[string]string {
	out := make(map[string]string, len(m))
	for digest, paths := range m {
		for _, p := range paths {
			out[p] = digest
		}
	}
	return out
}

// DigestFor returns the digest that owns path p, or "" if none does.
func (m DigestMap) DigestFor(p string) string {
	for digest, paths := range m {
		for _, q := range paths {
			if q == p {
				return digest
			}
		}
	}
	return ""
}

// Clone returns a deep copy of m.
func (m DigestMap) Clone() DigestMap {
	out := make(DigestMap, len(m))
	for d, paths := range m {
		cp := make([]string, len(paths))
		copy(cp, paths)
		out[d] = cp
	}
	return out
}

// NumPaths returns the total number of paths across all digests.
func (m DigestMap) NumPaths() int {
	n := 0
	for _, paths := range m {
		n += len(paths)
	}
	return n
}

// Mutate applies fns in order to the path list for every digest, deleting
// digests whose path list becomes empty.
func (m DigestMap) Mutate(fns ...PathMutation) {
	for digest, paths := range m {
		for _, fn := range fns {
			paths = fn(paths)
		}
		if len(paths) == 0 {
			delete(m, digest)
			continue
		}
		m[digest] = paths
	}
}

// RemovePaths returns a PathMutation that drops any path in toRemove.
func RemovePaths(toRemove ...string) PathMutation {
	remove := make(map[string]bool, len(toRemove))
	for _, p := range toRemove {
		remove[p] = true
	}
	return func(paths []string) []string {
		out := paths[:0]
		for _, p := range paths {
			if !remove[p] {
				out = append(out, p)
			}
		}
		return out
	}
}

// RenamePath returns a PathMutation that renames from to to wherever it
// occurs.
func RenamePath(from, to string) PathMutation {
	return func(paths []string) []string {
		for i, p := range paths {
			if p == from {
				paths[i] = to
			}
		}
		return paths
	}
}

// Merge combines m with other, erroring if a path appears in both with a
// different digest unless replace is true (in which case other wins).
func (m DigestMap) Merge(other DigestMap, replace bool) (DigestMap, error) {
	merged := m.PathMap()
	otherPaths := other.PathMap()
	for p, d := range otherPaths {
		if existing, ok := merged[p]; ok && existing != d {
			if !replace {
				return nil, fmt.Errorf("ocfl: path %q maps to different digests in merged maps", p)
			}
		}
		merged[p] = d
	}
	out := DigestMap{}
	for p, d := range merged {
		out[d] = append(out[d], p)
	}
	for d := range out {
		sort.Strings(out[d])
	}
	return out, out.Valid()
}

// Valid checks the structural invariants of a DigestMap: no path listed
// twice, and no path is a directory-prefix of another (spec.md §3).
func (m DigestMap) Valid() error {
	all := m.AllPaths()
	seen := make(map[string]bool, len(all))
	for _, p := range all {
		if err := validPath(p); err != nil {
			return err
		}
		if seen[p] {
			return fmt.Errorf("ocfl: duplicate path %q", p)
		}
		seen[p] = true
	}
	return checkPathConflicts(all)
}

// validPath checks a single content/logical path: no leading/trailing '/',
// no empty/'.'/'..' segments (spec.md §3 "Paths").
func validPath(p string) error {
	if p == "" {
		return fmt.Errorf("ocfl: empty path")
	}
	if strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return fmt.Errorf("ocfl: path %q must not begin or end with '/'", p)
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".", "..":
			return fmt.Errorf("ocfl: path %q contains an invalid segment %q", p, seg)
		}
	}
	return nil
}

// checkPathConflicts reports an error if any path in a sorted slice is a
// proper directory-prefix of another, i.e. a file/directory name clash
// (spec.md §3: "no content path is a proper prefix of another").
func checkPathConflicts(sortedPaths []string) error {
	set := make(map[string]bool, len(sortedPaths))
	for _, p := range sortedPaths {
		set[p] = true
	}
	for _, p := range sortedPaths {
		for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
			if set[dir] {
				return PathConflictErr(dir, p)
			}
		}
	}
	return nil
}

// ConflictsWithPath reports whether adding newPath alongside the logical
// paths already in existing would create a file/directory conflict: one
// path naming a directory the other names as a file (spec.md §3, §8 "S4 —
// conflict rejection"). A path identical to newPath is not a conflict
// (overwriting a path with itself is allowed). Checking this before any
// on-disk write is what makes conflict rejection leave no trace.
func ConflictsWithPath(existing []string, newPath string) error {
	for _, p := range existing {
		if p == newPath {
			continue
		}
		switch {
		case strings.HasPrefix(p, newPath+"/"):
			return PathConflictErr(newPath, p)
		case strings.HasPrefix(newPath, p+"/"):
			return PathConflictErr(p, newPath)
		}
	}
	return nil
}

// VirtualDirs returns every proper prefix directory implied by paths, used
// to answer "is X a directory in this version's state" (spec.md §3
// Version's "virtual directories" set).
func VirtualDirs(paths []string) map[string]bool {
	dirs := make(map[string]bool)
	for _, p := range paths {
		dir := path.Dir(p)
		for dir != "." && dir != "/" {
			dirs[dir] = true
			dir = path.Dir(dir)
		}
	}
	return dirs
}
