package extension

// LayoutFlatDirect implements 0002-flat-direct-storage-layout: the object
// id is used verbatim as the storage-root-relative directory name.
type LayoutFlatDirect struct{}

func (LayoutFlatDirect) Name() string                  { return FlatDirect }
func (LayoutFlatDirect) Resolve(id string) (string, error) { return id, nil }
