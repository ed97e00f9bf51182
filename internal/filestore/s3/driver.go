// Package s3 provides an AWS S3 (and S3-compatible) implementation of
// filestore.Store on top of aws-sdk-go-v2.
//
// Usage:
//
//	store, err := s3.New(ctx, &filestore.Config{Provider: filestore.ProviderS3, Region: "eu-west-1"})
//	if err != nil { ... }
//	defer store.Close()
package s3

import (
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/filestore"
	"github.com/koustreak/derivr/internal/metrics"
)

const (
	provider      = string(filestore.ProviderS3)
	defaultRegion = "us-east-1"
)

// API is the subset of *awss3.Client the driver calls.
type API interface {
	awss3.ListObjectsV2APIClient
	ListBuckets(ctx context.Context, in *awss3.ListBucketsInput, optFns ...func(*awss3.Options)) (*awss3.ListBucketsOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
}

// Driver is an S3 implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client API
}

// New builds an S3 client from cfg and pings it.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	awsCfg, err := buildAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL())
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	d := NewWithClient(client)
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client API) *Driver {
	return &Driver{client: client}
}

var _ filestore.Store = (*Driver)(nil)

func buildAWSConfig(ctx context.Context, cfg *filestore.Config) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errs.Wrap(errs.ErrKindConnectionFailed, "failed to load aws config", err)
	}
	return awsCfg, nil
}

func record(op string, start time.Time, err error) {
	metrics.RecordStoreOperation(provider, op, time.Since(start), err == nil)
}

// Ping verifies the endpoint is reachable and the credentials are accepted.
func (d *Driver) Ping(ctx context.Context) error {
	if _, err := d.client.ListBuckets(ctx, &awss3.ListBucketsInput{}); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op; the SDK client owns no resources that need releasing.
func (d *Driver) Close() error {
	return nil
}

// ListObjects walks every ListObjectsV2 page for the prefix.
func (d *Driver) ListObjects(ctx context.Context, bucket string, opts filestore.ListOptions) (results []filestore.ObjectInfo, err error) {
	start := time.Now()
	defer func() { record("list_objects", start, err) }()

	in := &awss3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(opts.Prefix),
	}
	if !opts.Recursive {
		in.Delimiter = aws.String("/")
	}

	pages := awss3.NewListObjectsV2Paginator(d.client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, mapError(err, "failed to list objects")
		}

		for _, p := range page.CommonPrefixes {
			results = append(results, filestore.ObjectInfo{Key: aws.ToString(p.Prefix), Size: -1, IsDir: true})
		}
		for _, obj := range page.Contents {
			results = append(results, filestore.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if opts.Limit > 0 && len(results) >= opts.Limit {
				return results, nil
			}
		}
	}
	return results, nil
}

// GetObject streams the object body.
func (d *Driver) GetObject(ctx context.Context, bucket, key string) (_ filestore.Object, err error) {
	start := time.Now()
	defer func() { record("get_object", start, err) }()

	out, err := d.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err, "failed to get object")
	}

	return &object{
		ReadCloser: out.Body,
		info: &filestore.ObjectInfo{
			Key:          key,
			Size:         sizeOf(out.ContentLength),
			ContentType:  aws.ToString(out.ContentType),
			ETag:         aws.ToString(out.ETag),
			LastModified: aws.ToTime(out.LastModified),
			Metadata:     filestore.NormalizeMetadata(out.Metadata),
		},
	}, nil
}

// StatObject issues a HeadObject.
func (d *Driver) StatObject(ctx context.Context, bucket, key string) (_ *filestore.ObjectInfo, err error) {
	start := time.Now()
	defer func() { record("stat_object", start, err) }()

	out, err := d.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(err, "failed to stat object")
	}

	return &filestore.ObjectInfo{
		Key:          key,
		Size:         sizeOf(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     filestore.NormalizeMetadata(out.Metadata),
	}, nil
}

// PutObject uploads body in a single request.
func (d *Driver) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts filestore.PutOptions) (err error) {
	start := time.Now()
	defer func() { record("put_object", start, err) }()

	in := &awss3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: opts.Metadata,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}

	if _, err = d.client.PutObject(ctx, in); err != nil {
		return mapError(err, "failed to put object")
	}
	return nil
}

// DeleteObject removes key. S3 answers 204 for missing keys too.
func (d *Driver) DeleteObject(ctx context.Context, bucket, key string) (err error) {
	start := time.Now()
	defer func() { record("delete_object", start, err) }()

	_, err = d.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}

func sizeOf(n *int64) int64 {
	if n == nil {
		return -1
	}
	return *n
}

type object struct {
	io.ReadCloser
	info *filestore.ObjectInfo
}

func (o *object) Info() *filestore.ObjectInfo {
	return o.info
}
