package main

import (
	"encoding/json"
	"testing"

	"github.com/ocflkit/ocflkit/extension"
)

func TestDefaultLayoutKnownNames(t *testing.T) {
	names := []string{
		extension.FlatDirect,
		extension.HashAndIDTuple,
		extension.HashedNTuple,
		extension.FlatOmitPrefix,
		extension.NTupleOmitPrefix,
	}
	for _, name := range names {
		layout, cfg, err := defaultLayout(name)
		if err != nil {
			t.Fatalf("defaultLayout(%q): %v", name, err)
		}
		if layout == nil {
			t.Fatalf("defaultLayout(%q) returned a nil Layout", name)
		}
		var doc map[string]any
		if err := json.Unmarshal(cfg, &doc); err != nil {
			t.Fatalf("defaultLayout(%q) config is not valid JSON: %v", name, err)
		}
		if doc["extensionName"] != name {
			t.Fatalf("config extensionName = %v, want %q", doc["extensionName"], name)
		}
	}
}

func TestDefaultLayoutUnknownName(t *testing.T) {
	if _, _, err := defaultLayout("0099-not-a-real-layout"); err == nil {
		t.Fatal("expected an error for an unsupported layout name")
	}
}
