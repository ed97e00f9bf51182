package s3

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/derivr/internal/errs"
	"github.com/koustreak/derivr/internal/filestore"
)

// fakeAPI serves ListObjectsV2 in pages of pageSize keys.
type fakeAPI struct {
	keys     []string
	pageSize int
	calls    int

	puts    []*awss3.PutObjectInput
	deletes []string
	getErr  error
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	f.calls++
	var matching []string
	for _, k := range f.keys {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			matching = append(matching, k)
		}
	}

	offset := 0
	if in.ContinuationToken != nil {
		for i, k := range matching {
			if k == *in.ContinuationToken {
				offset = i
			}
		}
	}
	end := min(offset+f.pageSize, len(matching))

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(matching))}
	for _, k := range matching[offset:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(1)})
	}
	if end < len(matching) {
		out.NextContinuationToken = aws.String(matching[end])
	}
	return out, nil
}

func (f *fakeAPI) ListBuckets(context.Context, *awss3.ListBucketsInput, ...func(*awss3.Options)) (*awss3.ListBucketsOutput, error) {
	return &awss3.ListBucketsOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader("data")),
		ContentLength: aws.Int64(4),
		ContentType:   aws.String("image/png"),
		Metadata:      map[string]string{"Width": "10"},
	}, nil
}

func (f *fakeAPI) HeadObject(context.Context, *awss3.HeadObjectInput, ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	return nil, &types.NotFound{}
}

func (f *fakeAPI) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func TestDriver_ListObjectsPaginates(t *testing.T) {
	api := &fakeAPI{pageSize: 2, keys: []string{
		"assets/foo/w_100/a.jpg",
		"assets/foo/w_200/a.jpg",
		"assets/foo/w_300/a.jpg",
		"assets/foo/w_400/a.jpg",
		"assets/foo/w_500/a.jpg",
		"assets/bar/w_100/a.jpg",
	}}
	d := NewWithClient(api)

	got, err := d.ListObjects(context.Background(), "media", filestore.ListOptions{Prefix: "assets/foo/", Recursive: true})
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, 3, api.calls)
	assert.Equal(t, "assets/foo/w_500/a.jpg", got[4].Key)
}

func TestDriver_ListObjectsLimit(t *testing.T) {
	api := &fakeAPI{pageSize: 2, keys: []string{"a/1", "a/2", "a/3", "a/4"}}

	got, err := NewWithClient(api).ListObjects(context.Background(), "media", filestore.ListOptions{Prefix: "a/", Recursive: true, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 2, api.calls)
}

func TestDriver_GetObject(t *testing.T) {
	d := NewWithClient(&fakeAPI{})

	obj, err := d.GetObject(context.Background(), "media", "k")
	require.NoError(t, err)
	defer obj.Close()

	assert.Equal(t, int64(4), obj.Info().Size)
	assert.Equal(t, "10", obj.Info().Metadata["width"])

	_, err = NewWithClient(&fakeAPI{getErr: &types.NoSuchKey{}}).GetObject(context.Background(), "media", "k")
	assert.True(t, errs.IsNotFound(err))
}

func TestDriver_StatObjectNotFound(t *testing.T) {
	_, err := NewWithClient(&fakeAPI{}).StatObject(context.Background(), "media", "k")
	assert.True(t, errs.IsNotFound(err))
}

func TestDriver_PutAndDelete(t *testing.T) {
	api := &fakeAPI{}
	d := NewWithClient(api)
	ctx := context.Background()

	err := d.PutObject(ctx, "media", "k", strings.NewReader("abc"), 3, filestore.PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{"width": "3"},
	})
	require.NoError(t, err)
	require.Len(t, api.puts, 1)
	assert.Equal(t, int64(3), aws.ToInt64(api.puts[0].ContentLength))
	assert.Equal(t, "image/jpeg", aws.ToString(api.puts[0].ContentType))
	assert.Equal(t, "3", api.puts[0].Metadata["width"])

	require.NoError(t, d.DeleteObject(ctx, "media", "k"))
	assert.Equal(t, []string{"k"}, api.deletes)
}

func TestMapError(t *testing.T) {
	respErr := func(code int) error {
		return &awshttp.ResponseError{ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: code}},
			Err:      errors.New("http error"),
		}}
	}

	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no such key", &types.NoSuchKey{}, errs.ErrKindNotFound},
		{"generic code", &smithy.GenericAPIError{Code: "AccessDenied"}, errs.ErrKindPermissionDenied},
		{"status 404", respErr(http.StatusNotFound), errs.ErrKindNotFound},
		{"status 400", respErr(http.StatusBadRequest), errs.ErrKindInvalidInput},
		{"status 500", respErr(http.StatusInternalServerError), errs.ErrKindConnectionFailed},
		{"plain", errors.New("dial tcp"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err, "op").Kind)
		})
	}
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", (&filestore.Config{Endpoint: "localhost:9000"}).EndpointURL())
	assert.Equal(t, "https://s3.local", (&filestore.Config{Endpoint: "s3.local", UseSSL: true}).EndpointURL())
	assert.Equal(t, "https://x.y", (&filestore.Config{Endpoint: "https://x.y"}).EndpointURL())
}
