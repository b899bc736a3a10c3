package ocfl

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	ocflfs "github.com/ocflkit/ocflkit/fs"
)

// WriteObjectNamaste writes the object root declaration file for spec at
// dir (spec.md §6).
func WriteObjectNamaste(ctx context.Context, fsys ocflfs.WriteFS, dir string, spec Spec) error {
	content := spec.ObjectNamaste() + "\n"
	name := dir + "/" + spec.ObjectDeclarationFile()
	_, err := ocflfs.Write(ctx, fsys, name, strings.NewReader(content))
	return err
}

// WriteRootNamaste writes the storage root declaration file for spec at
// dir.
func WriteRootNamaste(ctx context.Context, fsys ocflfs.WriteFS, dir string, spec Spec) error {
	content := spec.RootNamaste() + "\n"
	name := joinPath(dir, spec.RootDeclarationFile())
	_, err := ocflfs.Write(ctx, fsys, name, strings.NewReader(content))
	return err
}

// ReadObjectNamaste finds and validates the object declaration file in dir,
// returning the declared Spec. It returns ErrNotFound if no declaration
// file is present, and an error wrapping ErrInvalidValue (OCFL code E003,
// E004 or E007) if one is present but malformed (spec.md §4.6 step 1).
func ReadObjectNamaste(ctx context.Context, fsys ocflfs.FS, dir string) (Spec, error) {
	entries, err := ocflfs.ReadDir(ctx, fsys, dir)
	if err != nil {
		return "", fmt.Errorf("%w: reading object root: %w", ErrNotFound, err)
	}
	var declName string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "0=ocfl_object_") {
			declName = e.Name()
			break
		}
	}
	if declName == "" {
		return "", fmt.Errorf("%w: no OCFL object declaration in %q", ErrNotFound, dir)
	}
	spec := Spec(strings.TrimPrefix(declName, "0=ocfl_object_"))
	if !spec.Known() {
		return "", fmt.Errorf("%w: unrecognized object declaration %q (E004)", ErrInvalidValue, declName)
	}
	data, err := ocflfs.ReadAll(ctx, fsys, joinPath(dir, declName))
	if err != nil {
		return "", fmt.Errorf("%w: reading %q: %w (E003)", ErrInvalidValue, declName, err)
	}
	if !bytes.Equal(data, []byte(spec.ObjectNamaste()+"\n")) {
		return "", fmt.Errorf("%w: content of %q does not match its filename (E007)", ErrInvalidValue, declName)
	}
	return spec, nil
}

// ReadRootNamaste finds and validates the storage root declaration file.
func ReadRootNamaste(ctx context.Context, fsys ocflfs.FS, dir string) (Spec, error) {
	entries, err := ocflfs.ReadDir(ctx, fsys, dir)
	if err != nil {
		return "", fmt.Errorf("%w: reading storage root: %w", ErrNotFound, err)
	}
	var declName string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "0=ocfl_") && !strings.HasPrefix(e.Name(), "0=ocfl_object_") {
			declName = e.Name()
			break
		}
	}
	if declName == "" {
		return "", fmt.Errorf("%w: no OCFL storage root declaration in %q", ErrNotFound, dir)
	}
	spec := Spec(strings.TrimPrefix(declName, "0=ocfl_"))
	if !spec.Known() {
		return "", fmt.Errorf("%w: unrecognized storage root declaration %q", ErrInvalidValue, declName)
	}
	data, err := ocflfs.ReadAll(ctx, fsys, joinPath(dir, declName))
	if err != nil {
		return "", fmt.Errorf("%w: reading %q: %w", ErrInvalidValue, declName, err)
	}
	if !bytes.Equal(data, []byte(spec.RootNamaste()+"\n")) {
		return "", fmt.Errorf("%w: content of %q does not match its filename", ErrInvalidValue, declName)
	}
	return spec, nil
}

func joinPath(parts ...string) string {
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
