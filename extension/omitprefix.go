package extension

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// LayoutFlatOmitPrefix implements 0006-flat-omit-prefix-storage-layout:
// strip everything up to and including the last occurrence of Delimiter
// (case-insensitive when Delimiter has no case), and fail if id ends with
// the delimiter.
type LayoutFlatOmitPrefix struct {
	Delimiter string `json:"delimiter"`
}

func (l *LayoutFlatOmitPrefix) Name() string { return FlatOmitPrefix }

func (l *LayoutFlatOmitPrefix) valid() error {
	if l.Delimiter == "" {
		return fmt.Errorf("extension: %s: missing required delimiter", FlatOmitPrefix)
	}
	return nil
}

func (l *LayoutFlatOmitPrefix) Resolve(id string) (string, error) {
	if err := l.valid(); err != nil {
		return "", err
	}
	dir := id
	if idx := strings.LastIndex(strings.ToLower(id), strings.ToLower(l.Delimiter)); idx > -1 {
		dir = id[idx+len(l.Delimiter):]
	}
	if dir == "" || dir == "extensions" || !fs.ValidPath(dir) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLayoutID, id)
	}
	return dir, nil
}

func (l *LayoutFlatOmitPrefix) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"extensionName": FlatOmitPrefix,
		"delimiter":     l.Delimiter,
	})
}

// LayoutNTupleOmitPrefix implements 0007-n-tuple-omit-prefix-storage-layout:
// as 0006, then zero-pad the remainder to tupleSize*numberOfTuples
// characters (optionally reversed) and split into tuples, ending with the
// un-padded id remainder.
type LayoutNTupleOmitPrefix struct {
	Delimiter         string `json:"delimiter"`
	TupleSize         int    `json:"tupleSize"`
	NumberOfTuples    int    `json:"numberOfTuples"`
	ZeroPadding       string `json:"zeroPadding"`       // "left" or "right"
	ReverseObjectRoot bool   `json:"reverseObjectRoot"`
}

func defaultNTupleOmitPrefix() *LayoutNTupleOmitPrefix {
	return &LayoutNTupleOmitPrefix{Delimiter: ":", TupleSize: 3, NumberOfTuples: 3, ZeroPadding: "left"}
}

func (l *LayoutNTupleOmitPrefix) Name() string { return NTupleOmitPrefix }

func (l *LayoutNTupleOmitPrefix) valid() error {
	if l.TupleSize < 1 || l.TupleSize > 32 {
		return fmt.Errorf("extension: %s: tupleSize must be in 1..=32, got %d", NTupleOmitPrefix, l.TupleSize)
	}
	if l.NumberOfTuples < 1 || l.NumberOfTuples > 32 {
		return fmt.Errorf("extension: %s: numberOfTuples must be in 1..=32, got %d", NTupleOmitPrefix, l.NumberOfTuples)
	}
	if l.ZeroPadding != "left" && l.ZeroPadding != "right" {
		return fmt.Errorf("extension: %s: zeroPadding must be \"left\" or \"right\", got %q", NTupleOmitPrefix, l.ZeroPadding)
	}
	if l.Delimiter == "" {
		return fmt.Errorf("extension: %s: missing required delimiter", NTupleOmitPrefix)
	}
	return nil
}

func (l *LayoutNTupleOmitPrefix) Resolve(id string) (string, error) {
	if err := l.valid(); err != nil {
		return "", err
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x20 || id[i] > 0x7f {
			return "", fmt.Errorf("%w: %q: only ASCII characters are permitted", ErrInvalidLayoutID, id)
		}
	}
	trimmed := id
	if idx := strings.LastIndex(id, l.Delimiter); idx > 0 {
		prefix := id[:idx+len(l.Delimiter)]
		if prefix == id {
			return "", fmt.Errorf("%w: %q", ErrInvalidLayoutID, id)
		}
		trimmed = strings.TrimPrefix(id, prefix)
	}
	if strings.IndexByte(trimmed, '/') > 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidLayoutID, id)
	}
	size := l.TupleSize * l.NumberOfTuples
	padded := trimmed
	if padLen := size - len(padded); padLen > 0 {
		pad := strings.Repeat("0", padLen)
		if l.ZeroPadding == "left" {
			padded = pad + padded
		} else {
			padded = padded + pad
		}
	}
	if l.ReverseObjectRoot {
		runes := []rune(padded)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		padded = string(runes)
	}
	dir := ""
	for i := 0; i < l.NumberOfTuples; i++ {
		dir = path.Join(dir, padded[i*l.TupleSize:(i+1)*l.TupleSize])
	}
	return path.Join(dir, trimmed), nil
}

func (l *LayoutNTupleOmitPrefix) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"extensionName":     NTupleOmitPrefix,
		"delimiter":         l.Delimiter,
		"tupleSize":         l.TupleSize,
		"numberOfTuples":    l.NumberOfTuples,
		"zeroPadding":       l.ZeroPadding,
		"reverseObjectRoot": l.ReverseObjectRoot,
	})
}
