package main

import (
	"encoding/json"
	"fmt"

	"github.com/ocflkit/ocflkit/extension"
)

// defaultLayout builds a Layout and its config.json bytes for name using
// the defaults documented for each storage-layout extension (spec.md §4.2
// "Config validation"), since `ocfl init` only takes an extension name on
// the command line, not a full config document.
func defaultLayout(name string) (extension.Layout, []byte, error) {
	var cfg []byte
	switch name {
	case extension.FlatDirect:
		cfg = []byte(`{"extensionName":"` + name + `"}`)
	case extension.HashAndIDTuple:
		cfg, _ = json.Marshal(map[string]any{
			"extensionName": name, "digestAlgorithm": "sha256", "tupleSize": 3, "numberOfTuples": 3,
		})
	case extension.HashedNTuple:
		cfg, _ = json.Marshal(map[string]any{
			"extensionName": name, "digestAlgorithm": "sha256", "tupleSize": 3, "numberOfTuples": 3, "shortObjectRoot": false,
		})
	case extension.FlatOmitPrefix:
		cfg, _ = json.Marshal(map[string]any{"extensionName": name, "delimiter": ":"})
	case extension.NTupleOmitPrefix:
		cfg, _ = json.Marshal(map[string]any{
			"extensionName": name, "delimiter": ":", "tupleSize": 3, "numberOfTuples": 3,
			"zeroPadding": "left", "reverseObjectRoot": false,
		})
	default:
		return nil, nil, fmt.Errorf("unsupported storage layout %q", name)
	}
	layout, err := extension.Config(name, cfg)
	if err != nil {
		return nil, nil, err
	}
	return layout, cfg, nil
}
