package ocfl_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/matryer/is"

	"github.com/ocflkit/ocflkit"
	"github.com/ocflkit/ocflkit/fs/local"
)

func TestWriteReadObjectNamaste(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys, err := local.New(t.TempDir())
	is.NoErr(err)

	err = ocfl.WriteObjectNamaste(ctx, fsys, "obj", ocfl.Spec1_1)
	is.NoErr(err)

	spec, err := ocfl.ReadObjectNamaste(ctx, fsys, "obj")
	is.NoErr(err)
	is.Equal(spec, ocfl.Spec1_1)
}

func TestReadObjectNamasteMissing(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys, err := local.New(t.TempDir())
	is.NoErr(err)

	_, err = ocfl.ReadObjectNamaste(ctx, fsys, "obj")
	is.True(err != nil)
	is.True(errors.Is(err, ocfl.ErrNotFound))
}

func TestReadObjectNamasteContentMismatch(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys, err := local.New(t.TempDir())
	is.NoErr(err)

	err = ocfl.WriteObjectNamaste(ctx, fsys, "obj", ocfl.Spec1_1)
	is.NoErr(err)
	_, err = fsys.Write(ctx, "obj/0=ocfl_object_1.1", strings.NewReader("garbage\n"))
	is.NoErr(err)

	_, err = ocfl.ReadObjectNamaste(ctx, fsys, "obj")
	is.True(err != nil)
	is.True(errors.Is(err, ocfl.ErrInvalidValue))
}

func TestWriteReadRootNamaste(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	fsys, err := local.New(t.TempDir())
	is.NoErr(err)

	err = ocfl.WriteRootNamaste(ctx, fsys, ".", ocfl.Spec1_1)
	is.NoErr(err)

	spec, err := ocfl.ReadRootNamaste(ctx, fsys, ".")
	is.NoErr(err)
	is.Equal(spec, ocfl.Spec1_1)
}
