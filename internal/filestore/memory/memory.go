// Package memory provides an in-process implementation of filestore.Store.
//
// It backs local development runs (provider "memory") and the pipeline
// tests. Buckets spring into existence on first write.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/filestore"
)

type entry struct {
	data []byte
	info filestore.ObjectInfo
}

// Store is an in-memory filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	mu      sync.RWMutex
	buckets map[string]map[string]*entry
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		buckets: make(map[string]map[string]*entry),
		now:     time.Now,
	}
}

var _ filestore.Store = (*Store)(nil)

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// ListObjects returns objects in bucket matching opts, sorted by key.
func (s *Store) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "failed to list objects", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	objects := s.buckets[bucket]
	keys := make([]string, 0, len(objects))
	for k := range objects {
		if strings.HasPrefix(k, opts.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var results []filestore.ObjectInfo
	seenDirs := make(map[string]bool)
	for _, k := range keys {
		if !opts.Recursive {
			rest := k[len(opts.Prefix):]
			if i := strings.Index(rest, "/"); i >= 0 {
				dir := opts.Prefix + rest[:i+1]
				if !seenDirs[dir] {
					seenDirs[dir] = true
					results = append(results, filestore.ObjectInfo{Key: dir, Size: -1, IsDir: true})
				}
				continue
			}
		}
		info := objects[k].info
		info.Metadata = nil
		results = append(results, info)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

// GetObject returns a handle over a copy of the stored bytes.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (filestore.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "failed to get object", err)
	}
	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	info := e.info
	info.Metadata = maps.Clone(e.info.Metadata)
	return &object{Reader: bytes.NewReader(e.data), info: &info}, nil
}

// StatObject returns the stored metadata for key.
func (s *Store) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindTimeout, "failed to stat object", err)
	}
	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil, err
	}
	info := e.info
	info.Metadata = maps.Clone(e.info.Metadata)
	return &info, nil
}

// PutObject stores the content of body under key, overwriting any existing object.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts filestore.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "failed to put object", err)
	}
	if bucket == "" || key == "" {
		return errs.New(errs.ErrKindInvalidInput, "bucket and key are required")
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to read object body", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return errs.Newf(errs.ErrKindInvalidInput, "body has %d bytes, expected %d", len(data), size)
	}

	sum := md5.Sum(data)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		objects = make(map[string]*entry)
		s.buckets[bucket] = objects
	}
	objects[key] = &entry{
		data: data,
		info: filestore.ObjectInfo{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  contentType,
			ETag:         hex.EncodeToString(sum[:]),
			LastModified: s.now(),
			Metadata:     filestore.NormalizeMetadata(opts.Metadata),
		},
	}
	return nil
}

// DeleteObject removes key. Missing keys are not an error.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrKindTimeout, "failed to delete object", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets[bucket], key)
	return nil
}

// Keys returns every key in bucket with the given prefix, sorted.
func (s *Store) Keys(bucket, prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Bytes returns a copy of the content stored at key, or nil.
func (s *Store) Bytes(bucket, key string) []byte {
	e, err := s.lookup(bucket, key)
	if err != nil {
		return nil
	}
	return bytes.Clone(e.data)
}

func (s *Store) lookup(bucket, key string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "bucket %q does not exist", bucket)
	}
	e, ok := objects[key]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "object %q does not exist", key)
	}
	return e, nil
}

type object struct {
	*bytes.Reader
	info *filestore.ObjectInfo
}

func (o *object) Close() error { return nil }

func (o *object) Info() *filestore.ObjectInfo { return o.info }
