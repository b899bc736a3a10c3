// Package digest provides the pluggable digest-algorithm registry used
// throughout the OCFL object engine: manifest keys, fixity entries, and
// storage-layout extensions all resolve an algorithm name to a Digester
// through this package rather than calling into crypto/* directly.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Algorithm identifies a digest algorithm recognized by OCFL or one of its
// registered extensions.
type Algorithm interface {
	// ID is the algorithm's name as it appears in inventories
	// (e.g. "sha512", "blake2b-160").
	ID() string
	// Digester returns a new Digester for this algorithm.
	Digester() Digester
}

// Digester computes a digest incrementally.
type Digester interface {
	io.Writer
	// String returns the lowercase hex digest of everything written so far.
	String() string
}

type algorithm struct {
	id  string
	new func() hash.Hash
}

func (a algorithm) ID() string { return a.id }

func (a algorithm) Digester() Digester {
	return &hashDigester{Hash: a.new()}
}

type hashDigester struct {
	hash.Hash
}

func (h *hashDigester) String() string {
	return hex.EncodeToString(h.Sum(nil))
}

func mustBlake2b(size int) func() hash.Hash {
	return func() hash.Hash {
		h, err := blake2b.New(size, nil)
		if err != nil {
			// size is a compile-time constant in every caller below;
			// blake2b.New only fails for an invalid size or bad key.
			panic(fmt.Sprintf("digest: blake2b-%d: %v", size*8, err))
		}
		return h
	}
}

// Names of the algorithms recognized by this package.
const (
	SHA512     = "sha512"
	SHA256     = "sha256"
	SHA1       = "sha1"
	MD5        = "md5"
	Blake2b160 = "blake2b-160"
	Blake2b256 = "blake2b-256"
	Blake2b384 = "blake2b-384"
	Blake2b512 = "blake2b-512"
)

// Registry maps algorithm names to Algorithm implementations.
type Registry map[string]Algorithm

// Get returns the Algorithm for name, or nil if name isn't registered.
func (r Registry) Get(name string) Algorithm { return r[name] }

// DefaultRegistry includes every algorithm this package implements: the two
// OCFL-permitted manifest algorithms (sha512, sha256), the fixity-only
// algorithms (sha1, md5), and the extension 0001/0009 algorithms
// (blake2b-*).
var DefaultRegistry = Registry{
	SHA512:     algorithm{id: SHA512, new: sha512.New},
	SHA256:     algorithm{id: SHA256, new: sha256.New},
	SHA1:       algorithm{id: SHA1, new: sha1.New},
	MD5:        algorithm{id: MD5, new: md5.New},
	Blake2b160: algorithm{id: Blake2b160, new: mustBlake2b(20)},
	Blake2b256: algorithm{id: Blake2b256, new: mustBlake2b(32)},
	Blake2b384: algorithm{id: Blake2b384, new: mustBlake2b(48)},
	Blake2b512: algorithm{id: Blake2b512, new: mustBlake2b(64)},
}

// Get is shorthand for DefaultRegistry.Get.
func Get(name string) Algorithm { return DefaultRegistry.Get(name) }

// Normalize lowercases a hex digest string for case-insensitive comparison
// and map keys. OCFL digests are case-insensitive hex; inventories may be
// written with mixed-case sha1/md5 fixity values from other tools.
func Normalize(digest string) string {
	return strings.ToLower(digest)
}

// Validate reports whether digest is a syntactically valid lowercase-or-mixed
// hex string of the length expected for alg.
func Validate(alg, digest string) error {
	a := Get(alg)
	if a == nil {
		return fmt.Errorf("digest: unknown algorithm %q", alg)
	}
	wantLen := len(a.Digester().String())
	if len(digest) != wantLen {
		return fmt.Errorf("digest: %q is not a valid %s digest: wrong length", digest, alg)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return fmt.Errorf("digest: %q is not a valid %s digest: %w", digest, alg, err)
	}
	return nil
}

// MultiDigester computes several digests from a single stream in one pass.
// The validator's fixity check and the staging engine each compute a single
// digest with a Digester and do not use it.
type MultiDigester struct {
	w        io.Writer
	digeters map[string]Digester
}

// NewMultiDigester returns a MultiDigester that computes the digest for
// every named algorithm as bytes are written to it.
func NewMultiDigester(algs ...string) (*MultiDigester, error) {
	md := &MultiDigester{digeters: make(map[string]Digester, len(algs))}
	writers := make([]io.Writer, 0, len(algs))
	for _, name := range algs {
		a := Get(name)
		if a == nil {
			return nil, fmt.Errorf("digest: unknown algorithm %q", name)
		}
		d := a.Digester()
		md.digeters[name] = d
		writers = append(writers, d)
	}
	md.w = io.MultiWriter(writers...)
	return md, nil
}

func (md *MultiDigester) Write(p []byte) (int, error) { return md.w.Write(p) }

// Sum returns the hex digest computed for alg, or "" if alg wasn't
// requested in NewMultiDigester.
func (md *MultiDigester) Sum(alg string) string {
	d, ok := md.digeters[alg]
	if !ok {
		return ""
	}
	return d.String()
}
