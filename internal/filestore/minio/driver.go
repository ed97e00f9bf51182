// Package minio provides a MinIO implementation of filestore.Store.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	for info := range store.ListenBucketNotification(ctx, "media", "assets/", "", events) { ... }
package minio

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/filestore"
	"github.com/koustreak/derivr/internal/metrics"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"
)

const provider = string(filestore.ProviderMinIO)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	d := &Driver{client: client}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

var _ filestore.Store = (*Driver)(nil)

func record(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(provider, op, time.Since(start), err == nil)
}

// --- filestore.Store implementation ---

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.client.ListBuckets(ctx)
	if err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op for MinIO; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// ListObjects returns objects in bucket that match opts. The SDK walks
// continuation tokens for us; the channel is drained until it closes.
func (d *Driver) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) (results []filestore.ObjectInfo, err error) {
	start := time.Now()
	defer func() { record("list_objects", start, err) }()

	// Cancelling stops the SDK's listing goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	listOpts := miniogo.ListObjectsOptions{
		Prefix:    opts.Prefix,
		Recursive: opts.Recursive,
	}

	for obj := range d.client.ListObjects(ctx, bucket, listOpts) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "failed to list objects")
		}

		results = append(results, filestore.ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			ETag:         obj.ETag,
			LastModified: obj.LastModified,
			IsDir:        strings.HasSuffix(obj.Key, "/"),
		})

		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}

	return results, nil
}

// GetObject opens a streaming handle to the object at key inside bucket.
// MinIO defers the request until first read, so the object is stat'ed
// here to surface not-found before any bytes are consumed.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (_ filestore.Object, err error) {
	start := time.Now()
	defer func() { record("get_object", start, err) }()

	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, mapError(err, "failed to stat object after get")
	}

	return &object{
		ReadCloser: obj,
		info:       toObjectInfo(key, stat),
	}, nil
}

// StatObject returns metadata for the object at key inside bucket
// without downloading its content.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (_ *filestore.ObjectInfo, err error) {
	start := time.Now()
	defer func() { record("stat_object", start, err) }()

	stat, err := d.client.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}
	return toObjectInfo(key, stat), nil
}

// PutObject uploads body to key with the given content type and user metadata.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts filestore.PutOptions) (err error) {
	start := time.Now()
	defer func() { record("put_object", start, err) }()

	_, err = d.client.PutObject(ctx, bucket, key, body, size, miniogo.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

// DeleteObject removes key from bucket.
func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	start := time.Now()
	defer func() { record("delete_object", start, err) }()

	if err = d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

// ListenBucketNotification subscribes to bucket events. The channel closes
// when ctx is cancelled.
func (d *Driver) ListenBucketNotification(ctx context.Context, bucket, prefix, suffix string, events []string) <-chan notification.Info {
	return d.client.ListenBucketNotification(ctx, bucket, prefix, suffix, events)
}

// --- internal types ---

func toObjectInfo(key string, stat miniogo.ObjectInfo) *filestore.ObjectInfo {
	return &filestore.ObjectInfo{
		Key:          key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
		Metadata:     filestore.NormalizeMetadata(stat.UserMetadata),
	}
}

// object wraps a MinIO GetObject response and exposes filestore.Object.
type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
