package ocfl

import (
	"encoding"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Errors returned while parsing or validating version number sequences.
var (
	ErrVNumInvalid = errors.New("ocfl: invalid version number")
	ErrVNumPadding = errors.New("ocfl: inconsistent version padding")
	ErrVNumMissing = errors.New("ocfl: missing version in sequence")
	ErrVNumEmpty   = errors.New("ocfl: no versions found")
)

// Head is the zero-value VNum, used by some functions to mean "most recent
// version".
var Head = VNum{}

// VNum is an OCFL version number ("v1", "v02", ...): spec.md §3's
// VersionNum. Padding is the number of digits after the leading "v"
// (0 means unpadded).
type VNum struct {
	num     int
	padding int
}

// V constructs a VNum from a sequence number and optional padding.
func V(num int, padding ...int) VNum {
	v := VNum{num: num}
	if len(padding) > 0 {
		v.padding = padding[0]
	}
	return v
}

// ParseVNum parses s (e.g. "v3", "v0003") into a VNum.
func ParseVNum(s string) (VNum, error) {
	if len(s) < 2 || s[0] != 'v' {
		return VNum{}, fmt.Errorf("%q: %w", s, ErrVNumInvalid)
	}
	digits := s[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return VNum{}, fmt.Errorf("%q: %w", s, ErrVNumInvalid)
		}
	}
	if digits[0] == '0' && len(digits) == 1 {
		return VNum{}, fmt.Errorf("%q: %w", s, ErrVNumInvalid)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return VNum{}, fmt.Errorf("%q: %w", s, ErrVNumInvalid)
	}
	padding := 0
	if digits[0] == '0' {
		padding = len(digits)
	}
	v := VNum{num: n, padding: padding}
	if v.paddingOverflow() {
		return VNum{}, fmt.Errorf("%q: %w", s, ErrVNumInvalid)
	}
	return v, nil
}

// MustParseVNum is ParseVNum but panics on error; useful in tests and
// static table initializers.
func MustParseVNum(s string) VNum {
	v, err := ParseVNum(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Num returns the version's sequence number.
func (v VNum) Num() int { return v.num }

// Padding returns the version's zero-padding width (0 means unpadded).
func (v VNum) Padding() int { return v.padding }

// IsZero reports whether v is the Head sentinel.
func (v VNum) IsZero() bool { return v == Head }

// First reports whether v is version 1.
func (v VNum) First() bool { return v.num == 1 }

func (v VNum) paddingOverflow() bool {
	return v.padding > 0 && v.num >= int(math.Pow10(v.padding-1))
}

// Valid reports whether v is a well-formed, non-overflowing version number.
func (v VNum) Valid() error {
	if v.num <= 0 {
		return fmt.Errorf("%w: num=%d", ErrVNumInvalid, v.num)
	}
	if v.paddingOverflow() {
		return fmt.Errorf("%w: v%d overflows padding %d", ErrVNumInvalid, v.num, v.padding)
	}
	return nil
}

// Next returns the next version after v, preserving padding. It errors if
// incrementing would overflow the padding width (spec.md §3: "width N≥2
// imposes a cap of 10^(N-1)-1 versions").
func (v VNum) Next() (VNum, error) {
	next := VNum{num: v.num + 1, padding: v.padding}
	if err := next.Valid(); err != nil {
		return VNum{}, err
	}
	return next, nil
}

// Prev returns the version before v, preserving padding. It errors if
// v is version 1.
func (v VNum) Prev() (VNum, error) {
	if v.num <= 1 {
		return VNum{}, errors.New("ocfl: version 1 has no predecessor")
	}
	return VNum{num: v.num - 1, padding: v.padding}, nil
}

// String renders v in OCFL form, e.g. "v3" or "v0003".
func (v VNum) String() string {
	return fmt.Sprintf("v%0*d", v.padding, v.num)
}

var (
	_ encoding.TextMarshaler   = VNum{}
	_ encoding.TextUnmarshaler = (*VNum)(nil)
)

func (v VNum) MarshalText() ([]byte, error) {
	if err := v.Valid(); err != nil {
		return nil, err
	}
	return []byte(v.String()), nil
}

func (v *VNum) UnmarshalText(text []byte) error {
	parsed, err := ParseVNum(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// VNums is a set of version numbers belonging to one object, used to check
// the "v1, v2, ... contiguous, consistent padding" invariant (spec.md §3).
type VNums []VNum

// Valid reports whether vs is non-empty, numbered 1..N with no gaps, and
// uses one consistent padding width throughout.
func (vs VNums) Valid() error {
	if len(vs) == 0 {
		return ErrVNumEmpty
	}
	sorted := append(VNums(nil), vs...)
	sort.Sort(sorted)
	padding := sorted[0].padding
	for i, v := range sorted {
		if v.num != i+1 {
			return fmt.Errorf("%w: expected v%d", ErrVNumMissing, i+1)
		}
		if v.padding != padding {
			return ErrVNumPadding
		}
	}
	return sorted[len(sorted)-1].Valid()
}

// Head returns the highest version number in vs.
func (vs VNums) Head() VNum {
	if len(vs) == 0 {
		return VNum{}
	}
	max := vs[0]
	for _, v := range vs[1:] {
		if v.num > max.num {
			max = v
		}
	}
	return max
}

func (vs VNums) Len() int           { return len(vs) }
func (vs VNums) Less(i, j int) bool { return vs[i].num < vs[j].num }
func (vs VNums) Swap(i, j int)      { vs[i], vs[j] = vs[j], vs[i] }
