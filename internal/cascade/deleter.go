// Package cascade removes the derivatives of an original that has been
// deleted. Membership is decided from key names alone.
package cascade

import (
	"context"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/filestore"
	"github.com/koustreak/derivr/internal/logger"
	"github.com/koustreak/derivr/internal/metrics"
	"github.com/koustreak/derivr/internal/pathrules"
)

// Store is the part of filestore.Store the deleter needs.
type Store interface {
	ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Result summarises one cascade. Errs holds one delete_failed error per
// entry of Failed, in the same order.
type Result struct {
	Deleted []string
	Failed  []string
	Errs    []error
}

// Deleter implements the delete path.
type Deleter struct {
	store Store
	log   *logger.Logger
}

// New returns a Deleter removing objects through store.
func New(store Store, log *logger.Logger) *Deleter {
	if log == nil {
		log = logger.Nop()
	}
	return &Deleter{store: store, log: log}
}

// Cascade deletes every assets/<asset>/w_<n>/<file> sibling of originalKey.
// Individual delete failures are logged and skipped; only a failed listing
// or a malformed key is returned as an error.
func (d *Deleter) Cascade(ctx context.Context, bucket, originalKey string) error {
	_, err := d.Run(ctx, bucket, originalKey)
	return err
}

// Run is Cascade returning which keys were and were not removed.
func (d *Deleter) Run(ctx context.Context, bucket, originalKey string) (*Result, error) {
	log := logger.FromContext(ctx, d.log).With().
		Str("bucket", bucket).
		Str("key", originalKey).
		Logger()

	prefix, err := pathrules.SearchPrefix(originalKey)
	if err != nil {
		return nil, err
	}
	filename := pathrules.Filename(originalKey)

	// The trailing slash keeps assets/foo from matching assets/foobar.
	objects, err := d.store.ListObjects(ctx, bucket, filestore.ListOptions{
		Prefix:    prefix + "/",
		Recursive: true,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindListFailed, "failed to list "+prefix, err)
	}

	res := &Result{}
	for _, obj := range objects {
		if obj.IsDir || !pathrules.IsDerivativeOf(obj.Key, filename) {
			continue
		}
		if err := d.store.DeleteObject(ctx, bucket, obj.Key); err != nil {
			err = errs.Wrap(errs.ErrKindDeleteFailed, "failed to delete "+obj.Key, err)
			metrics.RecordCascadeDelete(false)
			log.ErrorWith("failed to delete derivative", err, map[string]interface{}{"target_key": obj.Key})
			res.Failed = append(res.Failed, obj.Key)
			res.Errs = append(res.Errs, err)
			continue
		}
		metrics.RecordCascadeDelete(true)
		log.Infof("deleted s3://%s/%s", bucket, obj.Key)
		res.Deleted = append(res.Deleted, obj.Key)
	}

	if len(res.Deleted) == 0 && len(res.Failed) == 0 {
		log.Debug("no derivatives to delete")
	}
	return res, nil
}
