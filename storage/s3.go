package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/ruteri/assetcache/interfaces"
)

// S3Config holds the connection settings of an S3 or S3 compatible service.
// Empty keys fall back to the SDK's default credential chain.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Driver implements a storage driver using Amazon S3 or compatible services.
type S3Driver struct {
	bucket string
	cfg    S3Config
	retry  RetryPolicy
	log    *slog.Logger

	mu     sync.Mutex
	client s3iface.S3API
}

var _ interfaces.StorageDriver = (*S3Driver)(nil)

// NewS3Driver creates a driver for bucket. A non-nil client is used as is;
// otherwise one is built from cfg, immediately or on first use if opts.Lazy.
func NewS3Driver(bucket string, cfg S3Config, client s3iface.S3API, opts DriverOptions) (*S3Driver, error) {
	opts = opts.withDefaults()
	if bucket == "" {
		return nil, fmt.Errorf("%w: empty S3 bucket", interfaces.ErrStorageDriver)
	}

	d := &S3Driver{
		bucket: bucket,
		cfg:    cfg,
		retry:  opts.Retry,
		log:    opts.Log,
		client: client,
	}
	if client == nil && !opts.Lazy {
		if _, err := d.api(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *S3Driver) api() (s3iface.S3API, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}

	region := d.cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg := aws.NewConfig().WithRegion(region)
	if d.cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(d.cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	if d.cfg.AccessKeyID != "" && d.cfg.SecretAccessKey != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(d.cfg.AccessKeyID, d.cfg.SecretAccessKey, d.cfg.SessionToken))
	} else {
		d.log.Debug("No static S3 credentials provided, using the default credential chain")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create AWS session: %w", interfaces.ErrStorageDriver, err)
	}
	d.client = s3.New(sess)
	return d.client, nil
}

// IterateObjects lists keys page by page; each page request is retried on its own.
func (d *S3Driver) IterateObjects(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := d.api()
		if err != nil {
			yield("", err)
			return
		}

		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(d.bucket),
			Prefix: aws.String(prefix),
		}
		for {
			var page *s3.ListObjectsV2Output
			err := d.retry.Do(ctx, d.log, "s3 list", IsTransientS3Error, func() error {
				var err error
				page, err = client.ListObjectsV2WithContext(ctx, input)
				return d.mapError(err, prefix)
			})
			if err != nil {
				yield("", err)
				return
			}

			for _, obj := range page.Contents {
				if !yield(aws.StringValue(obj.Key), nil) {
					return
				}
			}
			if !aws.BoolValue(page.IsTruncated) || page.NextContinuationToken == nil {
				return
			}
			input.ContinuationToken = page.NextContinuationToken
		}
	}
}

// UploadObject puts the file at localPath under objectName.
func (d *S3Driver) UploadObject(ctx context.Context, localPath, objectName string) error {
	client, err := d.api()
	if err != nil {
		return err
	}

	start := time.Now()
	err = d.retry.Do(ctx, d.log, "s3 upload", IsTransientS3Error, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
		}
		defer f.Close()

		_, err = client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(objectName),
			Body:   f,
		})
		return d.mapError(err, objectName)
	})
	if err != nil {
		return err
	}

	d.log.Debug("Uploaded object to S3",
		slog.String("bucket", d.bucket),
		slog.String("key", objectName),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// DownloadObject streams objectName into destinationPath.
func (d *S3Driver) DownloadObject(ctx context.Context, objectName, destinationPath string) error {
	client, err := d.api()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", interfaces.ErrStorageDriver, err)
	}

	start := time.Now()
	err = d.retry.Do(ctx, d.log, "s3 download", IsTransientS3Error, func() error {
		result, err := client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(objectName),
		})
		if err != nil {
			return d.mapError(err, objectName)
		}
		defer result.Body.Close()
		return writeStream(destinationPath, result.Body)
	})
	if err != nil {
		os.Remove(destinationPath)
		return wrapDriverError(err)
	}

	d.log.Debug("Downloaded object from S3",
		slog.String("bucket", d.bucket),
		slog.String("key", objectName),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// DeleteObject removes objectName. S3 does not report missing keys on delete.
func (d *S3Driver) DeleteObject(ctx context.Context, objectName string) error {
	client, err := d.api()
	if err != nil {
		return err
	}
	return d.retry.Do(ctx, d.log, "s3 delete", IsTransientS3Error, func() error {
		_, err := client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(objectName),
		})
		return d.mapError(err, objectName)
	})
}

// Exists issues a HEAD request for objectName.
func (d *S3Driver) Exists(ctx context.Context, objectName string) (bool, error) {
	client, err := d.api()
	if err != nil {
		return false, err
	}

	exists := false
	err = d.retry.Do(ctx, d.log, "s3 exists", IsTransientS3Error, func() error {
		_, err := client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(objectName),
		})
		if err != nil {
			return d.mapError(err, objectName)
		}
		exists = true
		return nil
	})
	if errors.Is(err, interfaces.ErrObjectDoesNotExist) {
		return false, nil
	}
	return exists, err
}

// ObjectURI returns s3://bucket/object[/subPart].
func (d *S3Driver) ObjectURI(objectName, subPart string) string {
	return "s3://" + path.Join(d.bucket, objectName, subPart)
}

// Bucket returns the S3 bucket name.
func (d *S3Driver) Bucket() string {
	return d.bucket
}

// Name returns a unique identifier for this driver.
func (d *S3Driver) Name() string {
	return fmt.Sprintf("s3-%s", d.bucket)
}

// mapError translates S3 error codes into driver errors, keeping the
// SDK error in the chain for the retry predicate.
func (d *S3Driver) mapError(err error, key string) error {
	if err == nil {
		return nil
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("%w: %s: %w", interfaces.ErrObjectDoesNotExist, d.ObjectURI(key, ""), err)
		case s3.ErrCodeNoSuchBucket:
			return fmt.Errorf("%w: %s: %w", interfaces.ErrBucketDoesNotExist, d.bucket, err)
		}
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %w", interfaces.ErrObjectDoesNotExist, d.ObjectURI(key, ""), err)
	}
	return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
}

// IsTransientS3Error reports S3 failures worth retrying: SDK retryable and
// throttling errors, S3 throttle and internal error codes, 429 and 5xx responses.
func IsTransientS3Error(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		if request.IsErrorRetryable(aerr) || request.IsErrorThrottle(aerr) {
			return true
		}
		switch aerr.Code() {
		case "SlowDown", "InternalError", "ServiceUnavailable":
			return true
		}
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		if code := reqErr.StatusCode(); code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return true
		}
	}
	return isTransientNetwork(err)
}
