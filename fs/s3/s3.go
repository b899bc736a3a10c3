// Package s3 implements ocflkit's fs.WriteFS/fs.CopyFS over an S3-compatible
// bucket, grounded on the teacher's backend/s3 and fs/s3 packages. Move is
// implemented as CopyObject+DeleteObject since S3 has no rename primitive;
// writes larger than 5MiB use the SDK's multipart manager.Uploader, aborting
// the upload on error (spec.md §4.3, §7 "S3 batch uploads").
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	ocflfs "github.com/ocflkit/ocflkit/fs"
)

const multipartThreshold int64 = 5 * 1024 * 1024

// FS implements the fs.FS family over one S3 bucket, optionally scoped to a
// key prefix.
type FS struct {
	client *s3.Client
	bucket string
	prefix string
}

var (
	_ ocflfs.WriteFS      = (*FS)(nil)
	_ ocflfs.CopyFS       = (*FS)(nil)
	_ ocflfs.MoveFS       = (*FS)(nil)
	_ ocflfs.DirEntriesFS = (*FS)(nil)
)

// New returns an FS backed by bucket, with all keys resolved relative to
// prefix (which may be "").
func New(client *s3.Client, bucket, prefix string) *FS {
	return &FS{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewFromEnv builds an FS using the standard AWS credential chain
// (environment variables, shared config, EC2/ECS role), matching the
// credentials the CLI is documented to respect (spec.md §6). endpoint may
// be empty to use AWS's default S3 endpoints; set it for S3-compatible
// services (MinIO, etc).
func NewFromEnv(ctx context.Context, bucket, prefix, endpoint string) (*FS, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: loading AWS credentials: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, bucket, prefix), nil
}

func (f *FS) key(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", fs.ErrInvalid
	}
	if name == "." {
		return f.prefix, nil
	}
	if f.prefix == "" {
		return name, nil
	}
	return f.prefix + "/" + name, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	var apiErr smithy.APIError
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}

func (f *FS) OpenFile(ctx context.Context, name string) (fs.File, error) {
	key, err := f.key(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &f.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &object{body: out.Body, info: objInfo{name: path.Base(name), size: aws.ToInt64(out.ContentLength)}}, nil
}

type object struct {
	body io.ReadCloser
	info objInfo
}

func (o *object) Read(p []byte) (int, error)  { return o.body.Read(p) }
func (o *object) Close() error                { return o.body.Close() }
func (o *object) Stat() (fs.FileInfo, error)  { return o.info, nil }

type objInfo struct {
	name string
	size int64
	dir  bool
	mod  time.Time
}

func (i objInfo) Name() string       { return i.name }
func (i objInfo) Size() int64        { return i.size }
func (i objInfo) ModTime() time.Time { return i.mod }
func (i objInfo) IsDir() bool        { return i.dir }
func (i objInfo) Sys() any           { return nil }
func (i objInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
func (i objInfo) Type() fs.FileMode          { return i.Mode().Type() }
func (i objInfo) Info() (fs.FileInfo, error) { return i, nil }

func (f *FS) DirEntries(ctx context.Context, name string) iter.Seq2[fs.DirEntry, error] {
	return func(yield func(fs.DirEntry, error) bool) {
		prefix, err := f.key(name)
		if err != nil {
			yield(nil, &fs.PathError{Op: "readdir", Path: name, Err: err})
			return
		}
		if prefix != "" {
			prefix += "/"
		}
		delim := "/"
		var token *string
		found := false
		for {
			out, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            &f.bucket,
				Prefix:            &prefix,
				Delimiter:         &delim,
				ContinuationToken: token,
			})
			if err != nil {
				yield(nil, &fs.PathError{Op: "readdir", Path: name, Err: err})
				return
			}
			entries := make([]fs.DirEntry, 0, len(out.CommonPrefixes)+len(out.Contents))
			for _, cp := range out.CommonPrefixes {
				found = true
				entries = append(entries, objInfo{name: path.Base(strings.TrimSuffix(*cp.Prefix, "/")), dir: true})
			}
			for _, c := range out.Contents {
				if *c.Key == prefix {
					continue // the directory placeholder object itself
				}
				found = true
				entries = append(entries, objInfo{name: path.Base(*c.Key), size: aws.ToInt64(c.Size), mod: aws.ToTime(c.LastModified)})
			}
			slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
			}
			if !aws.ToBool(out.IsTruncated) {
				break
			}
			token = out.NextContinuationToken
		}
		if !found {
			yield(nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist})
		}
	}
}

func (f *FS) Write(ctx context.Context, name string, r io.Reader) (int64, error) {
	key, err := f.key(name)
	if err != nil {
		return 0, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	counter := &countingReader{r: r}
	uploader := manager.NewUploader(f.client, func(u *manager.Uploader) {
		u.PartSize = multipartThreshold
	})
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{Bucket: &f.bucket, Key: &key, Body: counter})
	if err != nil {
		return counter.n, &fs.PathError{Op: "write", Path: name, Err: err}
	}
	return counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (f *FS) Remove(ctx context.Context, name string) error {
	key, err := f.key(name)
	if err != nil {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	_, err = f.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &f.bucket, Key: &key})
	if err != nil {
		return &fs.PathError{Op: "remove", Path: name, Err: err}
	}
	return nil
}

// RemoveAll deletes every object under the name prefix, batching deletes up
// to 1000 keys per request as the S3 DeleteObjects API allows.
func (f *FS) RemoveAll(ctx context.Context, name string) error {
	prefix, err := f.key(name)
	if err != nil {
		return &fs.PathError{Op: "remove_all", Path: name, Err: err}
	}
	if prefix != "" {
		prefix += "/"
	}
	var token *string
	for {
		out, err := f.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &f.bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			return &fs.PathError{Op: "remove_all", Path: name, Err: err}
		}
		if len(out.Contents) > 0 {
			ids := make([]types.ObjectIdentifier, len(out.Contents))
			for i, c := range out.Contents {
				ids[i] = types.ObjectIdentifier{Key: c.Key}
			}
			_, err := f.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: &f.bucket,
				Delete: &types.Delete{Objects: ids},
			})
			if err != nil {
				return &fs.PathError{Op: "remove_all", Path: name, Err: err}
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (f *FS) Copy(ctx context.Context, dst, src string) (int64, error) {
	srcKey, err := f.key(src)
	if err != nil {
		return 0, &fs.PathError{Op: "copy", Path: src, Err: err}
	}
	dstKey, err := f.key(dst)
	if err != nil {
		return 0, &fs.PathError{Op: "copy", Path: dst, Err: err}
	}
	source := f.bucket + "/" + srcKey
	_, err = f.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     &f.bucket,
		Key:        &dstKey,
		CopySource: &source,
	})
	if err != nil {
		// CopyObject is limited to 5GiB; fall back to a streamed
		// read+multipart-write for larger sources.
		if strings.Contains(err.Error(), "larger than the maximum allowable size") {
			r, openErr := f.OpenFile(ctx, src)
			if openErr != nil {
				return 0, &fs.PathError{Op: "copy", Path: src, Err: openErr}
			}
			defer r.Close()
			return f.Write(ctx, dst, r)
		}
		return 0, &fs.PathError{Op: "copy", Path: dst, Err: err}
	}
	head, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &f.bucket, Key: &dstKey})
	if err != nil {
		return 0, nil
	}
	return aws.ToInt64(head.ContentLength), nil
}

// Move copies src to dst then deletes src. S3 has no atomic rename, so a
// Move interrupted between the copy and the delete leaves src in place;
// callers (the staging→main promotion in spec.md §4.5/§7) treat that as a
// failed move and do not depend on src having been removed.
func (f *FS) Move(ctx context.Context, dst, src string) error {
	dstKey, err := f.key(dst)
	if err != nil {
		return &fs.PathError{Op: "move", Path: dst, Err: err}
	}
	if _, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &f.bucket, Key: &dstKey}); err == nil {
		return &fs.PathError{Op: "move", Path: dst, Err: fs.ErrExist}
	}
	if _, err := f.Copy(ctx, dst, src); err != nil {
		return fmt.Errorf("move: %w", err)
	}
	if err := f.RemoveAll(ctx, src); err != nil {
		return fmt.Errorf("move: copied but failed to remove source: %w", err)
	}
	return nil
}
