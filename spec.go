package ocfl

import "fmt"

// Spec identifies an OCFL specification version, e.g. "1.0" or "1.1".
type Spec string

// Versions of the OCFL specification this module understands.
const (
	Spec1_0 Spec = "1.0"
	Spec1_1 Spec = "1.1"
)

// InventoryType is the URI that appears in an inventory's "type" field.
func (s Spec) InventoryType() string {
	return fmt.Sprintf("https://ocfl.io/%s/spec/#inventory", s)
}

// ObjectNamaste is the canonical content of an object root's "0=..." marker
// file for this spec version (spec.md §6 "On-disk layout").
func (s Spec) ObjectNamaste() string {
	return fmt.Sprintf("ocfl_object_%s", s)
}

// ObjectDeclarationFile is the name of the object namaste marker file.
func (s Spec) ObjectDeclarationFile() string {
	return "0=" + s.ObjectNamaste()
}

// RootNamaste is the canonical content of a storage root's "0=..." marker
// file.
func (s Spec) RootNamaste() string {
	return fmt.Sprintf("ocfl_%s", s)
}

// RootDeclarationFile is the name of the storage root namaste marker file.
func (s Spec) RootDeclarationFile() string {
	return "0=" + s.RootNamaste()
}

// SpecFileName is the name of the spec-text copy placed at the storage
// root (".txt" for 1.0, ".md" for 1.1 — spec.md §6).
func (s Spec) SpecFileName() string {
	if s == Spec1_1 {
		return s.RootNamaste() + ".md"
	}
	return s.RootNamaste() + ".txt"
}

// inventoryTypeURIs maps recognized "type" field values to a Spec,
// grounded on spec.md §4.1 ("type must be one of the recognized
// inventory-type URIs").
var inventoryTypeURIs = map[string]Spec{
	Spec1_0.InventoryType(): Spec1_0,
	Spec1_1.InventoryType(): Spec1_1,
}

// ParseInventoryType resolves an inventory "type" URI to a Spec.
func ParseInventoryType(uri string) (Spec, bool) {
	s, ok := inventoryTypeURIs[uri]
	return s, ok
}

// Before reports whether s is an earlier spec version than other. Only the
// two recognized versions exist today, so this is a simple lookup.
func (s Spec) Before(other Spec) bool {
	order := map[Spec]int{Spec1_0: 0, Spec1_1: 1}
	return order[s] < order[other]
}

// Known reports whether s is a spec version this module understands.
func (s Spec) Known() bool {
	_, ok := inventoryTypeURIs[s.InventoryType()]
	return ok
}
