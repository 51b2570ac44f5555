package media

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// Object describes a stored file.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the bucket holding uploaded media.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Put(ctx context.Context, key string, r io.Reader, contentType string, overwrite bool) error
	Delete(ctx context.Context, keys ...string) error
}

// MaxDeleteBatch is the most keys OSS accepts in one DeleteObjects request.
const MaxDeleteBatch = 1000

// ErrObjectExists is returned by Put when overwrite is false and key is taken.
var ErrObjectExists = errors.New("media: object already exists")

// OSSStore keeps media in an Aliyun OSS bucket.
type OSSStore struct {
	bucket *oss.Bucket
}

// NewOSSStore connects to bucketName at endpoint,
// e.g. http://oss-cn-hangzhou.aliyuncs.com.
func NewOSSStore(endpoint, accessKey, secretKey, bucketName string) (*OSSStore, error) {
	cli, err := oss.New(endpoint, accessKey, secretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := cli.Bucket(bucketName)
	if err != nil {
		return nil, err
	}
	return &OSSStore{bucket: bucket}, nil
}

// List returns every object under prefix.
func (s *OSSStore) List(ctx context.Context, prefix string) ([]Object, error) {
	marker := oss.Marker("")
	pre := oss.Prefix(prefix)
	var out []Object
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// default page size is 100
		r, err := s.bucket.ListObjects(marker, pre)
		if err != nil {
			return nil, err
		}
		for _, o := range r.Objects {
			out = append(out, Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified})
		}
		if !r.IsTruncated {
			return out, nil
		}
		pre = oss.Prefix(r.Prefix)
		marker = oss.Marker(r.NextMarker)
	}
}

// Put uploads r under key.
func (s *OSSStore) Put(ctx context.Context, key string, r io.Reader, contentType string, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.bucket.PutObject(key, r,
		oss.ContentType(contentType),
		oss.CacheControl("max-age=3600"),
		oss.ForbidOverWrite(!overwrite))
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) && svcErr.Code == "FileAlreadyExists" {
		return ErrObjectExists
	}
	return err
}

// Delete removes keys. Missing keys are not an error.
func (s *OSSStore) Delete(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(keys) == 1 {
		return s.bucket.DeleteObject(keys[0])
	}
	return inBatches(ctx, keys, MaxDeleteBatch, func(batch []string) error {
		_, err := s.bucket.DeleteObjects(batch, oss.DeleteObjectsQuiet(true))
		return err
	})
}

// inBatches calls fn with consecutive slices of keys holding at most size
// keys each, stopping at the first error.
func inBatches(ctx context.Context, keys []string, size int, fn func([]string) error) error {
	for len(keys) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(size, len(keys))
		if err := fn(keys[:n]); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}
