package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ruteri/assetcache/interfaces"
)

// DriverOptions are the settings shared by every network driver.
type DriverOptions struct {
	// Retry applies to every remote call. The zero value selects DefaultRetryPolicy.
	Retry RetryPolicy
	// Lazy defers building SDK clients until the first call.
	Lazy bool
	Log  *slog.Logger
}

func (o DriverOptions) withDefaults() DriverOptions {
	o.Retry = o.Retry.withDefaults()
	if o.Log == nil {
		o.Log = slog.Default()
	}
	return o
}

// DriverConfig describes one storage driver. Only the section matching
// Provider is read.
type DriverConfig struct {
	Provider interfaces.StorageProviderKind
	// Bucket is the bucket, container or local directory.
	Bucket string
	Lazy   bool
	Retry  RetryPolicy

	S3    S3Config
	GCS   GCSConfig
	Azure AzureConfig

	// Mirrors are written alongside the primary driver and read from when
	// the primary misses an object.
	Mirrors []DriverConfig
}

// DriverFactory builds storage drivers from configuration or URLs.
type DriverFactory struct {
	log *slog.Logger
}

// NewDriverFactory creates a new factory instance.
func NewDriverFactory(log *slog.Logger) *DriverFactory {
	if log == nil {
		log = slog.Default()
	}
	return &DriverFactory{log: log}
}

// DriverFor creates the driver described by cfg, wrapped in a MirrorDriver
// when mirrors are configured.
func (f *DriverFactory) DriverFor(cfg DriverConfig) (interfaces.StorageDriver, error) {
	primary, err := f.single(cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.Mirrors) == 0 {
		return primary, nil
	}

	drivers := []interfaces.StorageDriver{primary}
	for _, mirrorCfg := range cfg.Mirrors {
		mirror, err := f.single(mirrorCfg)
		if err != nil {
			f.log.Warn("Failed to create mirror driver",
				"err", err,
				slog.String("provider", mirrorCfg.Provider.String()),
				slog.String("bucket", mirrorCfg.Bucket))
			continue
		}
		drivers = append(drivers, mirror)
	}
	return NewMirrorDriver(drivers, f.log), nil
}

func (f *DriverFactory) single(cfg DriverConfig) (interfaces.StorageDriver, error) {
	opts := DriverOptions{Retry: cfg.Retry, Lazy: cfg.Lazy, Log: f.log}

	f.log.Debug("Creating storage driver",
		slog.String("provider", cfg.Provider.String()),
		slog.String("bucket", cfg.Bucket))

	switch cfg.Provider {
	case interfaces.LocalProvider:
		return NewLocalDriver(cfg.Bucket, f.log)
	case interfaces.S3Provider:
		return NewS3Driver(cfg.Bucket, cfg.S3, nil, opts)
	case interfaces.GCSProvider:
		return NewGCSDriver(cfg.Bucket, cfg.GCS, nil, opts)
	case interfaces.AzureProvider:
		return NewAzureDriver(cfg.Bucket, cfg.Azure, nil, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported storage provider %q", interfaces.ErrStorageDriver, cfg.Provider)
	}
}

// DriverForURL creates a driver for an ad-hoc object location and returns
// it with the object name inside its bucket. Credentials come from base.
//
// Supported schemes:
//   - s3://bucket/object
//   - gs://bucket/object
//   - azfs://container/object
//   - file:///absolute/path or a plain local path
func (f *DriverFactory) DriverForURL(rawURL string, base DriverConfig) (interfaces.StorageDriver, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain paths, including Windows drive letters
		return f.localForPath(rawURL)
	}

	cfg := base
	cfg.Mirrors = nil
	cfg.Bucket = u.Host
	objectName := strings.TrimPrefix(u.Path, "/")

	switch strings.ToLower(u.Scheme) {
	case "s3":
		cfg.Provider = interfaces.S3Provider
	case "gs", "gcs":
		cfg.Provider = interfaces.GCSProvider
	case "az", "azfs":
		cfg.Provider = interfaces.AzureProvider
	case "file":
		return f.localForPath(u.Path)
	default:
		return nil, "", fmt.Errorf("%w: unsupported URL scheme %q", interfaces.ErrStorageDriver, u.Scheme)
	}
	if objectName == "" {
		return nil, "", fmt.Errorf("%w: no object in %s", interfaces.ErrStorageDriver, rawURL)
	}

	driver, err := f.single(cfg)
	if err != nil {
		return nil, "", err
	}
	return driver, objectName, nil
}

func (f *DriverFactory) localForPath(p string) (interfaces.StorageDriver, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}
	driver, err := NewLocalDriver(filepath.Dir(abs), f.log)
	if err != nil {
		return nil, "", err
	}
	return driver, filepath.Base(abs), nil
}
