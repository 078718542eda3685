package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/assetcache/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockS3 mocks the subset of s3iface.S3API used by S3Driver
type mockS3 struct {
	s3iface.S3API
	mock.Mock
}

func (m *mockS3) ListObjectsV2WithContext(ctx aws.Context, in *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.ListObjectsV2Output)
	return out, args.Error(1)
}

func (m *mockS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	args := m.Called(ctx, aws.StringValue(in.Key), string(body))
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, aws.StringValue(in.Key))
	if err := args.Error(1); err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(args.String(0)))}, nil
}

func (m *mockS3) HeadObjectWithContext(ctx aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, aws.StringValue(in.Key))
	return &s3.HeadObjectOutput{}, args.Error(0)
}

func (m *mockS3) DeleteObjectWithContext(ctx aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 3, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func newTestS3Driver(t *testing.T, client *mockS3) *S3Driver {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d, err := NewS3Driver("bucket", S3Config{}, client, DriverOptions{Retry: fastRetry(), Log: logger})
	require.NoError(t, err)
	return d
}

func TestS3Driver_IterateObjectsPages(t *testing.T) {
	client := &mockS3{}
	client.On("ListObjectsV2WithContext", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return in.ContinuationToken == nil && aws.StringValue(in.Prefix) == "p/"
	})).Return(&s3.ListObjectsV2Output{
		Contents:              []*s3.Object{{Key: aws.String("p/a")}, {Key: aws.String("p/b")}},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("t1"),
	}, nil).Once()
	client.On("ListObjectsV2WithContext", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
		return aws.StringValue(in.ContinuationToken) == "t1"
	})).Return(&s3.ListObjectsV2Output{
		Contents:    []*s3.Object{{Key: aws.String("p/c")}},
		IsTruncated: aws.Bool(false),
	}, nil).Once()

	d := newTestS3Driver(t, client)
	assert.Equal(t, []string{"p/a", "p/b", "p/c"}, collect(t, d, "p/"))
	client.AssertExpectations(t)
}

func TestS3Driver_IterateObjectsMissingBucket(t *testing.T) {
	client := &mockS3{}
	client.On("ListObjectsV2WithContext", mock.Anything, mock.Anything).
		Return(nil, awserr.New(s3.ErrCodeNoSuchBucket, "no bucket", nil)).Once()

	d := newTestS3Driver(t, client)
	var lastErr error
	for _, err := range d.IterateObjects(context.Background(), "") {
		lastErr = err
	}
	assert.ErrorIs(t, lastErr, interfaces.ErrBucketDoesNotExist)
	client.AssertExpectations(t)
}

func TestS3Driver_Upload(t *testing.T) {
	src := writeTestFile(t, filepath.Join(t.TempDir(), "src"), "payload")

	client := &mockS3{}
	// the file is re-read on every attempt
	client.On("PutObjectWithContext", mock.Anything, "obj", "payload").
		Return(awserr.New("SlowDown", "slow down", nil)).Once()
	client.On("PutObjectWithContext", mock.Anything, "obj", "payload").Return(nil).Once()

	d := newTestS3Driver(t, client)
	require.NoError(t, d.UploadObject(context.Background(), src, "obj"))
	client.AssertExpectations(t)
}

func TestS3Driver_Download(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient errors", func(t *testing.T) {
		client := &mockS3{}
		client.On("GetObjectWithContext", mock.Anything, "obj").
			Return("", awserr.New(request.ErrCodeRequestError, "connection reset", nil)).Once()
		client.On("GetObjectWithContext", mock.Anything, "obj").Return("content", nil).Once()

		d := newTestS3Driver(t, client)
		dst := filepath.Join(t.TempDir(), "dir", "out")
		require.NoError(t, d.DownloadObject(ctx, "obj", dst))
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "content", string(data))
		client.AssertExpectations(t)
	})

	t.Run("missing object is not retried", func(t *testing.T) {
		client := &mockS3{}
		client.On("GetObjectWithContext", mock.Anything, "obj").
			Return("", awserr.New(s3.ErrCodeNoSuchKey, "no key", nil)).Once()

		d := newTestS3Driver(t, client)
		dst := filepath.Join(t.TempDir(), "out")
		err := d.DownloadObject(ctx, "obj", dst)
		assert.ErrorIs(t, err, interfaces.ErrObjectDoesNotExist)
		assert.NoFileExists(t, dst)
		client.AssertExpectations(t)
	})

	t.Run("gives up after the attempts", func(t *testing.T) {
		client := &mockS3{}
		client.On("GetObjectWithContext", mock.Anything, "obj").
			Return("", awserr.New(request.ErrCodeResponseTimeout, "timeout", nil)).Times(3)

		d := newTestS3Driver(t, client)
		err := d.DownloadObject(ctx, "obj", filepath.Join(t.TempDir(), "out"))
		assert.ErrorIs(t, err, interfaces.ErrStorageDriver)
		assert.NotErrorIs(t, err, interfaces.ErrObjectDoesNotExist)
		client.AssertExpectations(t)
	})
}

func TestS3Driver_Exists(t *testing.T) {
	client := &mockS3{}
	client.On("HeadObjectWithContext", mock.Anything, "present").Return(nil)
	client.On("HeadObjectWithContext", mock.Anything, "absent").
		Return(awserr.NewRequestFailure(awserr.New("NotFound", "not found", nil), 404, "req"))
	client.On("HeadObjectWithContext", mock.Anything, "forbidden").
		Return(awserr.NewRequestFailure(awserr.New("Forbidden", "forbidden", nil), 403, "req"))

	d := newTestS3Driver(t, client)
	ctx := context.Background()

	ok, err := d.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Exists(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Exists(ctx, "forbidden")
	assert.ErrorIs(t, err, interfaces.ErrStorageDriver)
}

func TestS3Driver_DeleteAndNames(t *testing.T) {
	client := &mockS3{}
	client.On("DeleteObjectWithContext", mock.Anything, "obj").Return(nil).Once()

	d := newTestS3Driver(t, client)
	require.NoError(t, d.DeleteObject(context.Background(), "obj"))
	assert.Equal(t, "s3://bucket/obj", d.ObjectURI("obj", ""))
	assert.Equal(t, "s3://bucket/obj/sub/part", d.ObjectURI("obj", "sub/part"))
	assert.Equal(t, "bucket", d.Bucket())
	assert.Equal(t, "s3-bucket", d.Name())
	client.AssertExpectations(t)
}

func TestNewS3Driver(t *testing.T) {
	_, err := NewS3Driver("", S3Config{}, nil, DriverOptions{})
	assert.ErrorIs(t, err, interfaces.ErrStorageDriver)

	// sessions are built without network access
	d, err := NewS3Driver("bucket", S3Config{Region: "eu-west-1", Endpoint: "http://localhost:9000", AccessKeyID: "id", SecretAccessKey: "secret"}, nil, DriverOptions{Lazy: true})
	require.NoError(t, err)
	assert.Nil(t, d.client)
	client, err := d.api()
	require.NoError(t, err)
	assert.NotNil(t, client)
}
