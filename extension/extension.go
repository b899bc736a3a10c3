// Package extension implements the OCFL storage-layout extensions: pure
// functions mapping an object id to a storage-root-relative path (spec.md
// §4.2), grounded on the teacher's extension package.
package extension

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Names of the five layout extensions this package implements.
const (
	FlatDirect      = "0002-flat-direct-storage-layout"
	HashAndIDTuple   = "0003-hash-and-id-n-tuple-storage-layout"
	HashedNTuple     = "0004-hashed-n-tuple-storage-layout"
	FlatOmitPrefix   = "0006-flat-omit-prefix-storage-layout"
	NTupleOmitPrefix = "0007-n-tuple-omit-prefix-storage-layout"
)

// ErrInvalidLayoutID is returned by Resolve when an object id can't be
// mapped under the layout's rules.
var ErrInvalidLayoutID = errors.New("extension: object id is invalid for this layout")

// Layout maps an object id to a storage-root-relative directory.
type Layout interface {
	// Name is the extension name, as it appears in extensions/<name>/config.json.
	Name() string
	// Resolve maps id to a path relative to the storage root.
	Resolve(id string) (string, error)
}

// Config unmarshals a layout's extensions/<name>/config.json document and
// returns the corresponding Layout, validating the documented config
// constraints (spec.md §4.2 "Config validation").
func Config(name string, data []byte) (Layout, error) {
	var probe struct {
		ExtensionName string `json:"extensionName"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("extension: parsing config.json: %w", err)
	}
	if probe.ExtensionName != "" && probe.ExtensionName != name {
		return nil, fmt.Errorf("extension: config.json extensionName %q does not match layout %q", probe.ExtensionName, name)
	}
	switch name {
	case FlatDirect:
		return &LayoutFlatDirect{}, nil
	case HashAndIDTuple:
		l := defaultHashAndIDTuple()
		if err := json.Unmarshal(data, l); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		if err := l.valid(); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		return l, nil
	case HashedNTuple:
		l := defaultHashedNTuple()
		if err := json.Unmarshal(data, l); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		if err := l.valid(); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		return l, nil
	case FlatOmitPrefix:
		l := &LayoutFlatOmitPrefix{}
		if err := json.Unmarshal(data, l); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		if err := l.valid(); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		return l, nil
	case NTupleOmitPrefix:
		l := defaultNTupleOmitPrefix()
		if err := json.Unmarshal(data, l); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		if err := l.valid(); err != nil {
			return nil, fmt.Errorf("extension: %s: %w", name, err)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("extension: unsupported layout %q", name)
	}
}
