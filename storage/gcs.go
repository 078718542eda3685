package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"
	"github.com/ruteri/assetcache/interfaces"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const gcsListPageSize = 1000

// GCSConfig holds Google Cloud Storage settings. An empty
// ServiceAccountPath uses application default credentials.
type GCSConfig struct {
	ServiceAccountPath string
}

// GCSDriver implements a storage driver using Google Cloud Storage.
type GCSDriver struct {
	*objectStoreDriver
}

var _ interfaces.StorageDriver = (*GCSDriver)(nil)

// NewGCSDriver creates a driver for bucket. A non-nil api replaces the SDK
// transport.
func NewGCSDriver(bucket string, cfg GCSConfig, api ObjectAPI, opts DriverOptions) (*GCSDriver, error) {
	opts = opts.withDefaults()
	if bucket == "" {
		return nil, fmt.Errorf("%w: empty GCS bucket", interfaces.ErrStorageDriver)
	}

	d := &GCSDriver{&objectStoreDriver{
		kind:        "gcs",
		scheme:      "gs",
		bucket:      bucket,
		retry:       opts.Retry,
		isTransient: IsTransientGCSError,
		log:         opts.Log,
		api:         api,
		newAPI: func() (ObjectAPI, error) {
			var clientOpts []option.ClientOption
			if cfg.ServiceAccountPath != "" {
				clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.ServiceAccountPath))
			}
			client, err := gcs.NewClient(context.Background(), clientOpts...)
			if err != nil {
				return nil, err
			}
			return &gcsObjects{bucket: client.Bucket(bucket)}, nil
		},
	}}
	if err := d.init(opts.Lazy); err != nil {
		return nil, err
	}
	return d, nil
}

// IsTransientGCSError reports GCS failures worth retrying.
func IsTransientGCSError(err error) bool {
	return gcs.ShouldRetry(err) || isTransientNetwork(err)
}

type gcsObjects struct {
	bucket *gcs.BucketHandle
}

func (g *gcsObjects) ListPage(ctx context.Context, prefix, token string) ([]string, string, error) {
	it := g.bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	var attrs []*gcs.ObjectAttrs
	next, err := iterator.NewPager(it, gcsListPageSize, token).NextPage(&attrs)
	if err != nil {
		return nil, "", mapGCSError(err, prefix)
	}
	names := make([]string, 0, len(attrs))
	for _, a := range attrs {
		names = append(names, a.Name)
	}
	return names, next, nil
}

func (g *gcsObjects) Upload(ctx context.Context, objectName string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		// cancelling before Close aborts the upload
		cancel()
		w.Close()
		return err
	}
	return mapGCSError(w.Close(), objectName)
}

func (g *gcsObjects) Download(ctx context.Context, objectName string, w io.Writer) error {
	rc, err := g.bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return mapGCSError(err, objectName)
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

func (g *gcsObjects) Delete(ctx context.Context, objectName string) error {
	return mapGCSError(g.bucket.Object(objectName).Delete(ctx), objectName)
}

func (g *gcsObjects) Exists(ctx context.Context, objectName string) (bool, error) {
	_, err := g.bucket.Object(objectName).Attrs(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, mapGCSError(err, objectName)
	}
	return true, nil
}

func mapGCSError(err error, objectName string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gcs.ErrObjectNotExist):
		return fmt.Errorf("%w: %s: %w", interfaces.ErrObjectDoesNotExist, objectName, err)
	case errors.Is(err, gcs.ErrBucketNotExist):
		return fmt.Errorf("%w: %w", interfaces.ErrBucketDoesNotExist, err)
	}
	return err
}
