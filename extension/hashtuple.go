package extension

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ocflkit/ocflkit/digest"
)

// LayoutHashAndIDTuple implements 0003-hash-and-id-n-tuple-storage-layout:
// digest the id, split the hex digest into tupleSize-character tuples, then
// append a percent-encoded form of the id (truncated to 100 chars, with the
// digest appended, if truncation occurred).
type LayoutHashAndIDTuple struct {
	DigestAlgorithm string `json:"digestAlgorithm"`
	TupleSize       int    `json:"tupleSize"`
	NumberOfTuples  int    `json:"numberOfTuples"`
}

func defaultHashAndIDTuple() *LayoutHashAndIDTuple {
	return &LayoutHashAndIDTuple{DigestAlgorithm: digest.SHA256, TupleSize: 3, NumberOfTuples: 3}
}

func (l *LayoutHashAndIDTuple) Name() string { return HashAndIDTuple }

func (l *LayoutHashAndIDTuple) valid() error {
	return validateTupleConfig(l.DigestAlgorithm, l.TupleSize, l.NumberOfTuples)
}

func (l *LayoutHashAndIDTuple) Resolve(id string) (string, error) {
	if err := l.valid(); err != nil {
		return "", err
	}
	alg := digest.Get(l.DigestAlgorithm)
	d := alg.Digester()
	d.Write([]byte(id))
	hexDigest := d.String()
	tuples := tupleSplit(hexDigest, l.TupleSize, l.NumberOfTuples)
	encoded := percentEncode(id)
	if len(encoded) > 100 {
		encoded = encoded[:100] + "-" + hexDigest
	}
	return strings.Join(append(tuples, encoded), "/"), nil
}

func (l *LayoutHashAndIDTuple) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"extensionName":   HashAndIDTuple,
		"digestAlgorithm": l.DigestAlgorithm,
		"tupleSize":       l.TupleSize,
		"numberOfTuples":  l.NumberOfTuples,
	})
}

// LayoutHashedNTuple implements 0004-hashed-n-tuple-storage-layout: like
// 0003, but the final path segment is either the full digest or, if
// shortObjectRoot is set, only the digest bytes not already consumed by the
// tuple prefix.
type LayoutHashedNTuple struct {
	DigestAlgorithm string `json:"digestAlgorithm"`
	TupleSize       int    `json:"tupleSize"`
	NumberOfTuples  int    `json:"numberOfTuples"`
	ShortObjectRoot bool   `json:"shortObjectRoot"`
}

func defaultHashedNTuple() *LayoutHashedNTuple {
	return &LayoutHashedNTuple{DigestAlgorithm: digest.SHA256, TupleSize: 3, NumberOfTuples: 3}
}

func (l *LayoutHashedNTuple) Name() string { return HashedNTuple }

func (l *LayoutHashedNTuple) valid() error {
	return validateTupleConfig(l.DigestAlgorithm, l.TupleSize, l.NumberOfTuples)
}

func (l *LayoutHashedNTuple) Resolve(id string) (string, error) {
	if err := l.valid(); err != nil {
		return "", err
	}
	alg := digest.Get(l.DigestAlgorithm)
	d := alg.Digester()
	d.Write([]byte(id))
	hexDigest := d.String()
	tuples := tupleSplit(hexDigest, l.TupleSize, l.NumberOfTuples)
	last := hexDigest
	if l.ShortObjectRoot {
		last = hexDigest[l.TupleSize*l.NumberOfTuples:]
	}
	return strings.Join(append(tuples, last), "/"), nil
}

func (l *LayoutHashedNTuple) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"extensionName":   HashedNTuple,
		"digestAlgorithm": l.DigestAlgorithm,
		"tupleSize":       l.TupleSize,
		"numberOfTuples":  l.NumberOfTuples,
		"shortObjectRoot": l.ShortObjectRoot,
	})
}

func validateTupleConfig(alg string, tupleSize, numberOfTuples int) error {
	a := digest.Get(alg)
	if a == nil {
		return fmt.Errorf("extension: unknown digest algorithm %q", alg)
	}
	if (tupleSize == 0) != (numberOfTuples == 0) {
		return fmt.Errorf("extension: tupleSize and numberOfTuples must both be zero or both be positive")
	}
	digestLen := len(a.Digester().String())
	if tupleSize*numberOfTuples > digestLen {
		return fmt.Errorf("extension: tupleSize*numberOfTuples exceeds %s digest length", alg)
	}
	return nil
}

func tupleSplit(hexDigest string, tupleSize, numberOfTuples int) []string {
	tuples := make([]string, numberOfTuples)
	for i := 0; i < numberOfTuples; i++ {
		tuples[i] = hexDigest[i*tupleSize : (i+1)*tupleSize]
	}
	return tuples
}

const lowerhex = "0123456789abcdef"

// percentEncode lowercase-percent-encodes every byte of in other than an
// ASCII letter, digit, '-' or '_', matching the teacher's extension 0003
// implementation (spec.md §4.2: "URL-encoded (lowercase percent escapes)").
func percentEncode(in string) string {
	shouldEscape := func(c byte) bool {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '-', c == '_':
			return false
		}
		return true
	}
	n := 0
	for i := 0; i < len(in); i++ {
		if shouldEscape(in[i]) {
			n++
		}
	}
	if n == 0 {
		return in
	}
	out := make([]byte, 0, len(in)+2*n)
	for i := 0; i < len(in); i++ {
		if shouldEscape(in[i]) {
			out = append(out, '%', lowerhex[in[i]>>4], lowerhex[in[i]&0xf])
			continue
		}
		out = append(out, in[i])
	}
	return string(out)
}
