package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/ruteri/assetcache/interfaces"
)

// ObjectAPI is the minimal transport a cloud object store has to offer.
// Implementations report missing objects with interfaces.ErrObjectDoesNotExist
// and missing buckets with interfaces.ErrBucketDoesNotExist, keeping the SDK
// error in the chain.
type ObjectAPI interface {
	// ListPage returns one page of object names under prefix starting at
	// token, and the token of the next page or "" after the last one.
	ListPage(ctx context.Context, prefix, token string) (names []string, next string, err error)
	Upload(ctx context.Context, objectName string, r io.Reader) error
	Download(ctx context.Context, objectName string, w io.Writer) error
	Delete(ctx context.Context, objectName string) error
	Exists(ctx context.Context, objectName string) (bool, error)
}

// objectStoreDriver implements the driver contract over an ObjectAPI.
// The GCS and Azure drivers share it and differ in transport, URI scheme and
// transient error classification.
type objectStoreDriver struct {
	kind        string
	scheme      string
	bucket      string
	retry       RetryPolicy
	isTransient func(error) bool
	log         *slog.Logger

	mu     sync.Mutex
	api    ObjectAPI
	newAPI func() (ObjectAPI, error)
}

func (d *objectStoreDriver) init(lazy bool) error {
	if d.api != nil || lazy {
		return nil
	}
	_, err := d.transport()
	return err
}

func (d *objectStoreDriver) transport() (ObjectAPI, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.api != nil {
		return d.api, nil
	}
	api, err := d.newAPI()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create %s client: %w", interfaces.ErrStorageDriver, d.kind, err)
	}
	d.api = api
	return api, nil
}

func (d *objectStoreDriver) IterateObjects(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		api, err := d.transport()
		if err != nil {
			yield("", err)
			return
		}

		token := ""
		for {
			var names []string
			var next string
			err := d.retry.Do(ctx, d.log, d.kind+" list", d.isTransient, func() error {
				var err error
				names, next, err = api.ListPage(ctx, prefix, token)
				return err
			})
			if err != nil {
				yield("", wrapDriverError(err))
				return
			}
			for _, name := range names {
				if !yield(name, nil) {
					return
				}
			}
			if next == "" {
				return
			}
			token = next
		}
	}
}

func (d *objectStoreDriver) UploadObject(ctx context.Context, localPath, objectName string) error {
	api, err := d.transport()
	if err != nil {
		return err
	}

	start := time.Now()
	err = d.retry.Do(ctx, d.log, d.kind+" upload", d.isTransient, func() error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return api.Upload(ctx, objectName, f)
	})
	if err != nil {
		return wrapDriverError(err)
	}

	d.log.Debug("Uploaded object",
		slog.String("driver", d.kind),
		slog.String("uri", d.ObjectURI(objectName, "")),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (d *objectStoreDriver) DownloadObject(ctx context.Context, objectName, destinationPath string) error {
	api, err := d.transport()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destinationPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", interfaces.ErrStorageDriver, err)
	}

	start := time.Now()
	err = d.retry.Do(ctx, d.log, d.kind+" download", d.isTransient, func() error {
		f, err := os.Create(destinationPath)
		if err != nil {
			return err
		}
		if err := api.Download(ctx, objectName, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		os.Remove(destinationPath)
		return wrapDriverError(err)
	}

	d.log.Debug("Downloaded object",
		slog.String("driver", d.kind),
		slog.String("uri", d.ObjectURI(objectName, "")),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (d *objectStoreDriver) DeleteObject(ctx context.Context, objectName string) error {
	api, err := d.transport()
	if err != nil {
		return err
	}
	err = d.retry.Do(ctx, d.log, d.kind+" delete", d.isTransient, func() error {
		return api.Delete(ctx, objectName)
	})
	return wrapDriverError(err)
}

func (d *objectStoreDriver) Exists(ctx context.Context, objectName string) (bool, error) {
	api, err := d.transport()
	if err != nil {
		return false, err
	}
	var exists bool
	err = d.retry.Do(ctx, d.log, d.kind+" exists", d.isTransient, func() error {
		var err error
		exists, err = api.Exists(ctx, objectName)
		return err
	})
	if err != nil {
		return false, wrapDriverError(err)
	}
	return exists, nil
}

func (d *objectStoreDriver) ObjectURI(objectName, subPart string) string {
	return d.scheme + "://" + path.Join(d.bucket, objectName, subPart)
}

func (d *objectStoreDriver) Bucket() string {
	return d.bucket
}

func (d *objectStoreDriver) Name() string {
	return fmt.Sprintf("%s-%s", d.kind, d.bucket)
}

// wrapDriverError roots err under ErrStorageDriver unless it already is.
func wrapDriverError(err error) error {
	if err == nil || errors.Is(err, interfaces.ErrStorageDriver) {
		return err
	}
	return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
}

// writeStream writes r to a new file at dst, removing it on failure.
func writeStream(dst string, r io.Reader) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}
	return nil
}
