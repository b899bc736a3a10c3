package store

import (
	"bytes"
	"encoding/json"
	"path"
	"strings"

	"github.com/ocflkit/ocflkit"
)

func join(parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" && p != "." {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return "."
	}
	return strings.Join(nonEmpty, "/")
}

func dirOf(p string) string { return path.Dir(p) }

func newReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func jsonMarshalIndent(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }

func jsonUnmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func marshalInventory(inv *ocfl.Inventory) ([]byte, error) {
	return json.MarshalIndent(inv, "", "   ")
}
