// Package derivative turns a staged upload into its published variants:
// one resized copy per configured width plus the untouched original, then
// removes the staging object.
package derivative

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"strconv"

	"github.com/koustreak/derivr/internal/codec"
	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/filestore"
	"github.com/koustreak/derivr/internal/logger"
	"github.com/koustreak/derivr/internal/metrics"
	"github.com/koustreak/derivr/internal/pathrules"
)

// DefaultWidths are the published widths, ascending.
var DefaultWidths = []int{180, 256, 384, 640, 750, 828, 1080, 1200, 1920, 2048, 3840}

// Metadata keys written on every published object.
const (
	MetaOriginalWidth  = "original_width"
	MetaOriginalHeight = "original_height"
	MetaWidth          = "width"
	MetaHeight         = "height"
)

// Store is the part of filestore.Store the generator needs.
type Store interface {
	GetObject(ctx context.Context, bucket, key string) (filestore.Object, error)
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts filestore.PutOptions) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Codec decodes, resizes and encodes images.
type Codec interface {
	Decode(data []byte) (*codec.Asset, error)
	Resize(img image.Image, width, height int) image.Image
	Encode(img image.Image, f codec.Format) ([]byte, error)
}

// Options tunes a Generator.
type Options struct {
	// Widths to publish, in order. Nil means DefaultWidths.
	Widths []int

	// KeepStagingOnFailure leaves the staging object in place when some
	// widths failed, so a redelivered event can fill the gaps. When false
	// the staging object is removed once the original is stored, even if
	// the derivative set is incomplete.
	KeepStagingOnFailure bool
}

// Generator implements the create path.
// It holds no per-invocation state and is safe for concurrent use.
type Generator struct {
	store       Store
	codec       Codec
	widths      []int
	keepStaging bool
	log         *logger.Logger
}

// New returns a Generator writing through store.
func New(store Store, c Codec, log *logger.Logger, opts Options) *Generator {
	widths := opts.Widths
	if widths == nil {
		widths = DefaultWidths
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Generator{
		store:       store,
		codec:       c,
		widths:      append([]int(nil), widths...),
		keepStaging: opts.KeepStagingOnFailure,
		log:         log,
	}
}

// Widths returns a copy of the configured widths.
func (g *Generator) Widths() []int {
	return append([]int(nil), g.widths...)
}

// TargetSize scales (w, h) so the width is at most width, never upscaling.
// Dimensions are rounded to the nearest pixel and kept at least 1.
func TargetSize(w, h, width int) (int, int) {
	ratio := math.Min(float64(width)/float64(w), 1)
	tw := int(math.Round(float64(w) * ratio))
	th := int(math.Round(float64(h) * ratio))
	return max(tw, 1), max(th, 1)
}

// Metadata builds the user metadata stored with a published object.
func Metadata(origW, origH, w, h int) map[string]string {
	return map[string]string{
		MetaOriginalWidth:  strconv.Itoa(origW),
		MetaOriginalHeight: strconv.Itoa(origH),
		MetaWidth:          strconv.Itoa(w),
		MetaHeight:         strconv.Itoa(h),
	}
}

type target struct {
	width int
	key   string
}

// Generate publishes every derivative of stagingKey and the original, then
// deletes the staging object. A missing staging object is not an error.
//
// Writes are plain overwrites, so a failed invocation can be retried as is.
func (g *Generator) Generate(ctx context.Context, bucket, stagingKey string) error {
	log := logger.FromContext(ctx, g.log).With().
		Str("bucket", bucket).
		Str("key", stagingKey).
		Logger()

	originalKey, err := pathrules.OriginalKey(stagingKey)
	if err != nil {
		return err
	}
	targets := make([]target, 0, len(g.widths))
	for _, w := range g.widths {
		key, err := pathrules.DerivativeKey(stagingKey, w)
		if err != nil {
			return err
		}
		targets = append(targets, target{width: w, key: key})
	}

	data, err := g.fetch(ctx, bucket, stagingKey)
	if err != nil {
		if errs.IsNotFound(err) {
			log.Warn("staging object not found, nothing to do")
			return nil
		}
		return err
	}

	asset, err := g.codec.Decode(data)
	if err != nil {
		return ensureKind(errs.ErrKindDecodeFailed, "failed to decode "+stagingKey, err)
	}
	log.Infof("original dimensions: %d x %d", asset.Width, asset.Height)

	format := codec.FormatFor(stagingKey)
	var failures []error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.ErrKindTimeout, "generation abandoned", err)
		}
		if err := g.publish(ctx, log, bucket, t, asset, format); err != nil {
			metrics.RecordDerivative(false)
			log.ErrorWith("failed to publish derivative", err, map[string]interface{}{
				"width":      t.width,
				"target_key": t.key,
			})
			failures = append(failures, err)
			continue
		}
		metrics.RecordDerivative(true)
	}

	log.Infof("uploading original to %s", originalKey)
	meta := Metadata(asset.Width, asset.Height, asset.Width, asset.Height)
	if err := g.put(ctx, bucket, originalKey, data, format.ContentType(), meta); err != nil {
		metrics.RecordDerivative(false)
		return err
	}
	metrics.RecordDerivative(true)

	var result error
	if len(failures) > 0 {
		result = errs.Wrap(errs.KindOf(failures[0]),
			fmt.Sprintf("%d of %d derivatives failed for %s", len(failures), len(targets), stagingKey),
			errors.Join(failures...))
		if g.keepStaging {
			log.Warnf("keeping staging object after %d failed widths", len(failures))
			return result
		}
	}

	if err := g.store.DeleteObject(ctx, bucket, stagingKey); err != nil {
		log.ErrorWith("failed to delete staging object", err, nil)
		return result
	}
	log.Infof("deleted staging object s3://%s/%s", bucket, stagingKey)
	return result
}

func (g *Generator) fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := g.store.GetObject(ctx, bucket, key)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, err
		}
		return nil, errs.Wrap(errs.ErrKindFetchFailed, "failed to fetch "+key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindFetchFailed, "failed to read "+key, err)
	}
	return data, nil
}

// publish resizes the full-resolution source to one width and uploads it.
func (g *Generator) publish(ctx context.Context, log *logger.Logger, bucket string, t target, asset *codec.Asset, format codec.Format) error {
	w, h := TargetSize(asset.Width, asset.Height, t.width)
	log.With().Int("width", t.width).Str("target_key", t.key).Logger().
		Infof("resizing to %d x %d", w, h)

	encoded, err := g.codec.Encode(g.codec.Resize(asset.Image, w, h), format)
	if err != nil {
		return ensureKind(errs.ErrKindEncodeFailed, "failed to encode "+t.key, err)
	}
	return g.put(ctx, bucket, t.key, encoded, format.ContentType(), Metadata(asset.Width, asset.Height, w, h))
}

func (g *Generator) put(ctx context.Context, bucket, key string, data []byte, contentType string, meta map[string]string) error {
	err := g.store.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), filestore.PutOptions{
		ContentType: contentType,
		Metadata:    meta,
	})
	if err != nil {
		return errs.Wrap(errs.ErrKindUploadFailed, "failed to upload "+key, err)
	}
	return nil
}

// ensureKind returns err unchanged when it already carries kind.
func ensureKind(kind errs.ErrKind, msg string, err error) error {
	if errs.KindOf(err) == kind {
		return err
	}
	return errs.Wrap(kind, msg, err)
}
