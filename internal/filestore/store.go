// Package filestore defines the object-store contract consumed by the
// derivative pipeline.
//
// All providers (MinIO, AWS S3, in-memory) implement the Store interface.
// Pipeline packages depend only on this package, never on a provider.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	keys, err := store.ListObjects(ctx, "media", filestore.ListOptions{Prefix: "assets/foo/", Recursive: true})
package filestore

import (
	"context"
	"io"
)

// Store is the single interface all object storage providers implement.
//
// Errors are *errs.Error; a missing object or bucket is reported with
// errs.ErrKindNotFound so callers can branch with errs.IsNotFound.
type Store interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources.
	Close() error

	// ListObjects returns every object in bucket that matches opts.
	// Providers follow continuation tokens internally; the result is the
	// full listing unless opts.Limit caps it.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// GetObject opens a streaming handle to the object at key inside bucket.
	// The caller MUST call Object.Close() after reading.
	GetObject(ctx context.Context, bucket, key string) (Object, error)

	// StatObject returns metadata for the object at key without its content.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	// PutObject writes size bytes from body to key, replacing any existing
	// object. Pass size -1 when unknown.
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts PutOptions) error

	// DeleteObject removes the object at key. Deleting a missing key
	// succeeds, matching S3 semantics.
	DeleteObject(ctx context.Context, bucket, key string) error
}
