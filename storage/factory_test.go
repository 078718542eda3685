package storage

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ruteri/assetcache/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFactory_DriverFor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewDriverFactory(logger)
	dir := t.TempDir()

	tests := []struct {
		name     string
		cfg      DriverConfig
		expected interface{}
		wantErr  bool
	}{
		{
			name:     "local",
			cfg:      DriverConfig{Provider: interfaces.LocalProvider, Bucket: filepath.Join(dir, "local")},
			expected: &LocalDriver{},
		},
		{
			name:     "s3",
			cfg:      DriverConfig{Provider: interfaces.S3Provider, Bucket: "bucket", Lazy: true},
			expected: &S3Driver{},
		},
		{
			name:     "gcs",
			cfg:      DriverConfig{Provider: interfaces.GCSProvider, Bucket: "bucket", Lazy: true},
			expected: &GCSDriver{},
		},
		{
			name:     "azure",
			cfg:      DriverConfig{Provider: interfaces.AzureProvider, Bucket: "bucket", Lazy: true},
			expected: &AzureDriver{},
		},
		{
			name: "mirrored",
			cfg: DriverConfig{
				Provider: interfaces.LocalProvider,
				Bucket:   filepath.Join(dir, "primary"),
				Mirrors: []DriverConfig{
					{Provider: interfaces.LocalProvider, Bucket: filepath.Join(dir, "mirror")},
					{Provider: "unknown"},
				},
			},
			expected: &MirrorDriver{},
		},
		{
			name:    "unknown provider",
			cfg:     DriverConfig{Provider: "ftp", Bucket: "bucket"},
			wantErr: true,
		},
		{
			name:    "missing bucket",
			cfg:     DriverConfig{Provider: interfaces.S3Provider, Lazy: true},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, err := factory.DriverFor(tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrStorageDriver)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expected, driver)
		})
	}
}

func TestDriverFactory_MirrorSkipsBrokenMirrors(t *testing.T) {
	factory := NewDriverFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	dir := t.TempDir()

	driver, err := factory.DriverFor(DriverConfig{
		Provider: interfaces.LocalProvider,
		Bucket:   filepath.Join(dir, "primary"),
		Mirrors:  []DriverConfig{{Provider: "unknown"}, {Provider: interfaces.LocalProvider, Bucket: filepath.Join(dir, "mirror")}},
	})
	require.NoError(t, err)
	mirror := driver.(*MirrorDriver)
	assert.Len(t, mirror.drivers, 2)
}

func TestDriverFactory_DriverForURL(t *testing.T) {
	factory := NewDriverFactory(slog.New(slog.NewTextHandler(io.Discard, nil)))
	base := DriverConfig{Lazy: true}

	tests := []struct {
		url      string
		expected interface{}
		bucket   string
		object   string
		wantErr  bool
	}{
		{url: "s3://bucket/path/to/object", expected: &S3Driver{}, bucket: "bucket", object: "path/to/object"},
		{url: "gs://bucket/object", expected: &GCSDriver{}, bucket: "bucket", object: "object"},
		{url: "azfs://container/dir/", expected: &AzureDriver{}, bucket: "container", object: "dir/"},
		{url: "s3://bucket", wantErr: true},
		{url: "ftp://host/file", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, object, err := factory.DriverForURL(tt.url, base)
			if tt.wantErr {
				assert.ErrorIs(t, err, interfaces.ErrStorageDriver)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expected, driver)
			assert.Equal(t, tt.bucket, driver.Bucket())
			assert.Equal(t, tt.object, object)
		})
	}

	t.Run("local paths", func(t *testing.T) {
		dir := t.TempDir()
		for _, p := range []string{filepath.Join(dir, "file.txt"), "file://" + filepath.ToSlash(filepath.Join(dir, "file.txt"))} {
			driver, object, err := factory.DriverForURL(p, base)
			require.NoError(t, err)
			assert.IsType(t, &LocalDriver{}, driver)
			assert.Equal(t, "file.txt", object)
			assert.Equal(t, dir, driver.Bucket())
		}
	})
}
