package manager

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/ruteri/assetcache/assetspec"
	"github.com/ruteri/assetcache/interfaces"
	"github.com/ruteri/assetcache/remote"
	"github.com/ruteri/assetcache/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// countingDriver counts downloads of asset content, ignoring metadata and indexes
type countingDriver struct {
	interfaces.StorageDriver
	downloads atomic.Int64
	delay     time.Duration
}

func (d *countingDriver) DownloadObject(ctx context.Context, objectName, destinationPath string) error {
	if !strings.HasSuffix(objectName, ".meta") && !strings.HasSuffix(objectName, ".versions") {
		d.downloads.Inc()
		time.Sleep(d.delay)
	}
	return d.StorageDriver.DownloadObject(ctx, objectName, destinationPath)
}

type testEnv struct {
	assetsDir string
	driver    *countingDriver
	provider  *remote.StorageProvider
	manager   *AssetsManager
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	assetsDir := filepath.Join(root, "assets")
	require.NoError(t, os.MkdirAll(assetsDir, 0755))

	local, err := storage.NewLocalDriver(filepath.Join(root, "bucket"), quietLogger())
	require.NoError(t, err)
	driver := &countingDriver{StorageDriver: local}
	provider := remote.NewStorageProvider(driver, remote.DefaultConfig(), quietLogger())

	m, err := NewAssetsManager(Config{AssetsDir: assetsDir, Timeout: 10 * time.Second}, provider, quietLogger())
	require.NoError(t, err)

	return &testEnv{assetsDir: assetsDir, driver: driver, provider: provider, manager: m}
}

func writeFile(t *testing.T, p, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func pushDirectory(t *testing.T, env *testEnv, name, version string, create bool) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "src")
	writeFile(t, filepath.Join(dir, "a.json"), `{"a": 1}`)
	writeFile(t, filepath.Join(dir, "b.json"), `{"b": `+version+`}`)
	if create {
		require.NoError(t, env.provider.New(context.Background(), dir, name, version))
	} else {
		require.NoError(t, env.provider.Update(context.Background(), dir, name, version))
	}
	return dir
}

func TestFetchAsset_DirectoryScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := pushDirectory(t, env, "cat/asset", "0.0", true)

	res, err := env.manager.FetchAsset(ctx, "cat/asset")
	require.NoError(t, err)
	assert.Equal(t, "0.0", res.Version)
	assert.False(t, res.FromCache)
	assert.Equal(t, filepath.Join(env.assetsDir, "cat", "asset", "0.0"), res.Path)
	assert.FileExists(t, filepath.Join(res.Path, ".SUCCESS"))

	res2, err := env.manager.FetchAsset(ctx, "cat/asset")
	require.NoError(t, err)
	assert.True(t, res2.FromCache)
	assert.Equal(t, res.Path, res2.Path)

	sub, err := env.manager.FetchAsset(ctx, "cat/asset:0.0[b.json]")
	require.NoError(t, err)
	assert.True(t, sub.FromCache)
	assert.True(t, strings.HasSuffix(sub.Path, filepath.Join("0.0", "b.json")))
	expected, err := os.ReadFile(filepath.Join(src, "b.json"))
	require.NoError(t, err)
	actual, err := os.ReadFile(sub.Path)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)

	// only the two parts were ever downloaded
	assert.Equal(t, int64(2), env.driver.downloads.Load())

	_, err = env.manager.FetchAsset(ctx, "cat/asset:0.0[missing.json]")
	assert.ErrorIs(t, err, interfaces.ErrAssetFetch)
}

func TestFetchAsset_FileAsset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	src := writeFile(t, filepath.Join(t.TempDir(), "weights.bin"), "weights")
	require.NoError(t, env.provider.New(ctx, src, "models/bin", "1.0"))

	res, err := env.manager.FetchAsset(ctx, "models/bin:1.0")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	assert.FileExists(t, filepath.Join(env.assetsDir, "models", "bin", ".1.0.SUCCESS"))

	res, err = env.manager.FetchAsset(ctx, "models/bin:1.0")
	require.NoError(t, err)
	assert.True(t, res.FromCache)
}

func TestFetchAsset_VersionResolution(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pushDirectory(t, env, "cat/asset", "0.0", true)
	pushDirectory(t, env, "cat/asset", "0.1", false)
	pushDirectory(t, env, "cat/asset", "1.0", false)

	tests := []struct {
		spec    string
		version string
		err     error
	}{
		{spec: "cat/asset", version: "1.0"},
		{spec: "cat/asset:0", version: "0.1"},
		{spec: "cat/asset:1", version: "1.0"},
		{spec: "cat/asset:0.0", version: "0.0"},
		{spec: "cat/asset:2", err: interfaces.ErrLocalAssetDoesNotExist},
		{spec: "cat/asset:5.0", err: interfaces.ErrObjectDoesNotExist},
		{spec: "cat/other", err: interfaces.ErrLocalAssetDoesNotExist},
		{spec: "cat/asset:x", err: interfaces.ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			res, err := env.manager.FetchAsset(ctx, tt.spec)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, res.Version)
		})
	}

	// a failed download leaves nothing that looks cached
	assert.NoDirExists(t, filepath.Join(env.assetsDir, "cat", "asset", "5.0"))
}

func TestFetchAsset_ForceDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pushDirectory(t, env, "cat/asset", "0.0", true)

	res, err := env.manager.FetchAsset(ctx, "cat/asset:0.0[a.json]")
	require.NoError(t, err)
	writeFile(t, res.Path, "tampered")

	res, err = env.manager.FetchAsset(ctx, "cat/asset:0.0[a.json]", WithForceDownload(true))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, string(data))
	assert.Equal(t, int64(4), env.driver.downloads.Load())
}

func TestFetchAsset_MissingMarkerRedownloads(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pushDirectory(t, env, "cat/asset", "0.0", true)

	res, err := env.manager.FetchAsset(ctx, "cat/asset:0.0")
	require.NoError(t, err)

	// simulate a download interrupted before the marker was written
	require.NoError(t, os.Remove(filepath.Join(res.Path, ".SUCCESS")))
	require.NoError(t, os.Remove(filepath.Join(res.Path, "b.json")))
	writeFile(t, filepath.Join(res.Path, "stale.tmp"), "partial")

	res, err = env.manager.FetchAsset(ctx, "cat/asset:0.0")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.FileExists(t, filepath.Join(res.Path, "b.json"))
	assert.NoFileExists(t, filepath.Join(res.Path, "stale.tmp"))
	assert.FileExists(t, filepath.Join(res.Path, ".SUCCESS"))
}

func TestFetchAsset_ConcurrentSingleDownload(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.driver.delay = 50 * time.Millisecond
	pushDirectory(t, env, "cat/asset", "0.0", true)

	const callers = 8
	results := make([]*FetchResult, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			// each caller uses its own manager, as separate processes would
			m, err := NewAssetsManager(Config{AssetsDir: env.assetsDir, Timeout: 30 * time.Second}, env.provider, quietLogger())
			if err != nil {
				return err
			}
			res, err := m.FetchAsset(ctx, "cat/asset:0.0[b.json]")
			if err != nil {
				return err
			}
			data, err := os.ReadFile(res.Path)
			if err != nil {
				return err
			}
			if string(data) != `{"b": 0.0}` {
				return assert.AnError
			}
			results[i] = res
			return nil
		})
	}
	require.NoError(t, g.Wait())

	downloaded := 0
	for _, res := range results {
		if !res.FromCache {
			downloaded++
		}
	}
	assert.Equal(t, 1, downloaded)
	assert.Equal(t, int64(2), env.driver.downloads.Load())
}

func TestFetchAsset_LockTimeout(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pushDirectory(t, env, "cat/asset", "0.0", true)

	m, err := NewAssetsManager(Config{AssetsDir: env.assetsDir, Timeout: 200 * time.Millisecond}, env.provider, quietLogger())
	require.NoError(t, err)

	lockPath := filepath.Join(env.assetsDir, ".cache", "cat", "asset.lock")
	require.NoError(t, os.MkdirAll(filepath.Dir(lockPath), 0755))
	held := flock.New(lockPath)
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = m.FetchAsset(ctx, "cat/asset:0.0")
	assert.ErrorIs(t, err, interfaces.ErrLockTimeout)
	assert.Equal(t, int64(0), env.driver.downloads.Load())

	require.NoError(t, held.Unlock())
	res, err := m.FetchAsset(ctx, "cat/asset:0.0")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func TestFetchAsset_LocalOnly(t *testing.T) {
	ctx := context.Background()
	assetsDir := t.TempDir()
	writeFile(t, filepath.Join(assetsDir, "cat", "asset", "0.0", "a.json"), "0")
	writeFile(t, filepath.Join(assetsDir, "cat", "asset", "1.2", "a.json"), "1")
	writeFile(t, filepath.Join(assetsDir, "cat", "asset", "notaversion", "a.json"), "x")

	m, err := NewAssetsManager(Config{AssetsDir: assetsDir}, nil, quietLogger())
	require.NoError(t, err)

	res, err := m.FetchAsset(ctx, "cat/asset")
	require.NoError(t, err)
	assert.Equal(t, "1.2", res.Version)
	assert.True(t, res.FromCache)

	res, err = m.FetchAsset(ctx, "cat/asset:0[a.json]")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(assetsDir, "cat", "asset", "0.0", "a.json"), res.Path)

	_, err = m.FetchAsset(ctx, "cat/asset:3.0")
	assert.ErrorIs(t, err, interfaces.ErrLocalAssetDoesNotExist)
	assert.ErrorIs(t, err, interfaces.ErrAssetsManager)

	_, err = m.FetchAsset(ctx, "cat/asset:3")
	assert.ErrorIs(t, err, interfaces.ErrLocalAssetDoesNotExist)
	assert.ErrorIs(t, err, interfaces.ErrMajorVersionDoesNotExist)
}

func TestFetchAsset_LocalVersionNotInRemoteIndex(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pushDirectory(t, env, "cat/asset", "0.0", true)
	writeFile(t, filepath.Join(env.assetsDir, "cat", "asset", "7.0", "local.json"), "local")

	res, err := env.manager.FetchAsset(ctx, "cat/asset")
	require.NoError(t, err)
	assert.Equal(t, "7.0", res.Version)
	assert.True(t, res.FromCache)
	assert.Equal(t, int64(0), env.driver.downloads.Load())
}

func TestFetchAsset_LiteralPath(t *testing.T) {
	ctx := context.Background()
	assetsDir := t.TempDir()
	relative := writeFile(t, filepath.Join(assetsDir, "some", "file.txt"), "relative")
	absolute := writeFile(t, filepath.Join(t.TempDir(), "abs.txt"), "absolute")

	m, err := NewAssetsManager(Config{AssetsDir: assetsDir}, nil, quietLogger())
	require.NoError(t, err)

	res, err := m.FetchAsset(ctx, "some/file.txt")
	require.NoError(t, err)
	assert.Equal(t, relative, res.Path)
	assert.Empty(t, res.Version)

	res, err = m.FetchAsset(ctx, absolute)
	require.NoError(t, err)
	assert.Equal(t, absolute, res.Path)

	_, err = m.FetchAsset(ctx, "some/missing.txt")
	assert.ErrorIs(t, err, interfaces.ErrLocalAssetDoesNotExist)
}

func TestFetch_NameOutsideAssetsDir(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	root := filepath.Dir(env.assetsDir)
	victim := writeFile(t, filepath.Join(root, "victim", "1.0"), "keep me")

	local, err := NewAssetsManager(Config{AssetsDir: env.assetsDir}, nil, quietLogger())
	require.NoError(t, err)

	tests := []struct {
		name    string
		manager *AssetsManager
		spec    *assetspec.AssetSpec
	}{
		{name: "with provider", manager: env.manager, spec: &assetspec.AssetSpec{Name: "x/../../victim", Version: "1.0"}},
		{name: "with provider, forced", manager: env.manager, spec: &assetspec.AssetSpec{Name: "x/../../victim", Version: "1.0"}},
		{name: "local only", manager: local, spec: &assetspec.AssetSpec{Name: "x/../../victim", Version: "1.0"}},
		{name: "local only, latest", manager: local, spec: &assetspec.AssetSpec{Name: "x/../../victim"}},
		{name: "lock directory", manager: env.manager, spec: &assetspec.AssetSpec{Name: "x/../.cache/y", Version: "1.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.manager.Fetch(ctx, tt.spec, WithForceDownload(strings.HasSuffix(tt.name, "forced")))
			assert.ErrorIs(t, err, interfaces.ErrInvalidName)
			assert.ErrorIs(t, err, interfaces.ErrAssetsManager)

			data, err := os.ReadFile(victim)
			require.NoError(t, err)
			assert.Equal(t, "keep me", string(data))
		})
	}

	_, err = env.manager.FetchAsset(ctx, "x/../../victim:1.0")
	assert.ErrorIs(t, err, interfaces.ErrInvalidName)
	assert.FileExists(t, victim)
	assert.Equal(t, int64(0), env.driver.downloads.Load())
}

func TestFetch_SubPartOutsideAsset(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pushDirectory(t, env, "cat/asset", "0.0", true)

	_, err := env.manager.Fetch(ctx, &assetspec.AssetSpec{Name: "cat/asset", Version: "0.0", SubPart: "../../other"})
	assert.ErrorIs(t, err, interfaces.ErrInvalidAssetSpec)
	assert.Equal(t, int64(0), env.driver.downloads.Load())
}

func TestNewAssetsManager(t *testing.T) {
	root := t.TempDir()

	_, err := NewAssetsManager(Config{AssetsDir: filepath.Join(root, "missing")}, nil, quietLogger())
	assert.ErrorIs(t, err, interfaces.ErrAssetsManager)

	assetsDir := filepath.Join(root, "assets")
	require.NoError(t, os.MkdirAll(assetsDir, 0755))

	for _, bucket := range []string{assetsDir, filepath.Join(assetsDir, "bucket"), root} {
		local, err := storage.NewLocalDriver(bucket, quietLogger())
		require.NoError(t, err)
		provider := remote.NewStorageProvider(local, remote.DefaultConfig(), quietLogger())

		_, err = NewAssetsManager(Config{AssetsDir: assetsDir}, provider, quietLogger())
		assert.ErrorIs(t, err, interfaces.ErrStorageDriver, bucket)
	}

	local, err := storage.NewLocalDriver(filepath.Join(root, "elsewhere"), quietLogger())
	require.NoError(t, err)

	// a mirrored local bucket inside the assets directory is refused too
	nested, err := storage.NewLocalDriver(filepath.Join(assetsDir, "mirror"), quietLogger())
	require.NoError(t, err)
	mirror := storage.NewMirrorDriver([]interfaces.StorageDriver{local, nested}, quietLogger())
	_, err = NewAssetsManager(Config{AssetsDir: assetsDir}, remote.NewStorageProvider(mirror, remote.DefaultConfig(), quietLogger()), quietLogger())
	assert.ErrorIs(t, err, interfaces.ErrStorageDriver)

	provider := remote.NewStorageProvider(local, remote.DefaultConfig(), quietLogger())
	m, err := NewAssetsManager(Config{AssetsDir: assetsDir}, provider, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, m.timeout)
	assert.Equal(t, assetsDir, m.AssetsDir())
}
