package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/ruteri/assetcache/assetspec"
	"github.com/ruteri/assetcache/interfaces"
	"github.com/ruteri/assetcache/remote"
	"github.com/ruteri/assetcache/storage"
	"github.com/ruteri/assetcache/versioning"
)

const (
	// DefaultTimeout bounds how long a fetch waits for another process
	// downloading the same asset.
	DefaultTimeout = 5 * time.Minute

	lockDir        = ".cache"
	lockRetryDelay = 100 * time.Millisecond
	successMarker  = ".SUCCESS"
)

// Config configures an AssetsManager.
type Config struct {
	// AssetsDir is the local cache directory. It must exist.
	AssetsDir string
	// Timeout bounds the wait for the per-asset lock. Zero selects DefaultTimeout.
	Timeout time.Duration
	// Versioning parses and orders versions. Nil selects the provider's
	// versioning system, or the default one without a provider.
	Versioning interfaces.VersioningSystem
}

// FetchResult describes a fetched asset.
type FetchResult struct {
	// Path is the local file or directory of the asset, narrowed to the
	// requested sub part.
	Path string
	// Version is the resolved version, empty for literal paths.
	Version string
	// FromCache is false only when this call downloaded the asset.
	FromCache bool
}

type fetchOptions struct {
	forceDownload bool
}

// FetchOption customizes a single fetch.
type FetchOption func(*fetchOptions)

// WithForceDownload discards any cached copy and downloads the asset again.
func WithForceDownload(force bool) FetchOption {
	return func(o *fetchOptions) {
		o.forceDownload = force
	}
}

// AssetsManager resolves asset specs to local paths, downloading assets from
// an optional remote provider into the assets directory.
//
// Several processes may share one assets directory. Downloads of an asset
// are serialized by a file lock per asset name, and a version is served from
// the cache only once its success marker has been written.
type AssetsManager struct {
	assetsDir string
	timeout   time.Duration
	vs        interfaces.VersioningSystem
	provider  *remote.StorageProvider
	log       *slog.Logger
}

// NewAssetsManager creates a manager over cfg.AssetsDir. provider may be nil
// to serve local assets only.
func NewAssetsManager(cfg Config, provider *remote.StorageProvider, log *slog.Logger) (*AssetsManager, error) {
	if log == nil {
		log = slog.Default()
	}

	assetsDir, err := filepath.Abs(cfg.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid assets directory: %w", interfaces.ErrAssetsManager, err)
	}
	info, err := os.Stat(assetsDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: assets directory %s does not exist", interfaces.ErrAssetsManager, assetsDir)
	}

	if provider != nil {
		if err := checkLocalBuckets(provider.Driver(), assetsDir); err != nil {
			return nil, err
		}
	}

	vs := cfg.Versioning
	if vs == nil && provider != nil {
		vs = provider.Versioning()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &AssetsManager{
		assetsDir: assetsDir,
		timeout:   timeout,
		vs:        versioning.OrDefault(vs),
		provider:  provider,
		log:       log,
	}, nil
}

// checkLocalBuckets fails if driver, or any driver it mirrors, stores objects
// in a local directory overlapping assetsDir.
func checkLocalBuckets(driver interfaces.StorageDriver, assetsDir string) error {
	switch d := driver.(type) {
	case *storage.LocalDriver:
		if pathsOverlap(d.Bucket(), assetsDir) {
			return fmt.Errorf("%w: local storage bucket %s overlaps the assets directory %s",
				interfaces.ErrStorageDriver, d.Bucket(), assetsDir)
		}
	case *storage.MirrorDriver:
		for _, mirrored := range d.Drivers() {
			if err := checkLocalBuckets(mirrored, assetsDir); err != nil {
				return err
			}
		}
	}
	return nil
}

// AssetsDir returns the absolute assets directory.
func (m *AssetsManager) AssetsDir() string {
	return m.assetsDir
}

// FetchAsset parses spec and fetches it, see Fetch.
func (m *AssetsManager) FetchAsset(ctx context.Context, spec string, opts ...FetchOption) (*FetchResult, error) {
	parsed, err := assetspec.Parse(spec, m.vs)
	if err != nil {
		return nil, err
	}
	return m.Fetch(ctx, parsed, opts...)
}

// Fetch makes the asset available locally and returns its path.
//
// Without a complete version the latest matching version among the local
// and remote ones is used. A spec without any version that matches no known
// asset is looked up as a literal path, relative to the assets directory,
// then to the working directory, then as is.
func (m *AssetsManager) Fetch(ctx context.Context, spec *assetspec.AssetSpec, opts ...FetchOption) (*FetchResult, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	res, err := m.resolveVersion(ctx, spec)
	if err != nil {
		return nil, err
	}
	if res.literalPath != "" {
		m.log.Debug("Serving literal path",
			slog.String("spec", spec.String()),
			slog.String("path", res.literalPath))
		return &FetchResult{Path: res.literalPath, FromCache: true}, nil
	}

	localPath := m.localPath(spec, res.version)
	if err := m.checkContained(localPath); err != nil {
		return nil, err
	}
	result := &FetchResult{Path: localPath, Version: res.version, FromCache: true}
	if segments := spec.SubPartSegments(); len(segments) > 0 {
		result.Path = filepath.Join(append([]string{localPath}, segments...)...)
		if !isWithin(result.Path, localPath) {
			return nil, fmt.Errorf("%w: sub part %s leaves the asset directory", interfaces.ErrInvalidAssetSpec, spec.SubPart)
		}
	}

	if m.provider == nil || res.localOnly {
		if !pathExists(localPath) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrLocalAssetDoesNotExist, localPath)
		}
	} else {
		fromCache, err := m.fetchRemote(ctx, spec, res.version, localPath, o.forceDownload)
		if err != nil {
			return nil, err
		}
		result.FromCache = fromCache
	}

	if !pathExists(result.Path) {
		return nil, fmt.Errorf("%w: %s not found after fetching %s", interfaces.ErrAssetFetch, result.Path, spec)
	}

	m.log.Debug("Fetched asset",
		slog.String("spec", spec.String()),
		slog.String("version", result.Version),
		slog.String("path", result.Path),
		slog.Bool("from_cache", result.FromCache))
	return result, nil
}

type resolution struct {
	version     string
	localOnly   bool
	literalPath string
}

func (m *AssetsManager) resolveVersion(ctx context.Context, spec *assetspec.AssetSpec) (resolution, error) {
	if spec.IsVersionComplete() {
		return resolution{version: spec.Version}, nil
	}

	localVersions, err := m.localVersions(spec)
	if err != nil {
		return resolution{}, err
	}

	var remoteVersions []string
	if m.provider != nil {
		remoteVersions, err = m.provider.GetVersionsInfo(ctx, spec.Name)
		if err != nil && !errors.Is(err, interfaces.ErrObjectDoesNotExist) {
			return resolution{}, err
		}
	}

	all := slices.Clone(remoteVersions)
	for _, v := range localVersions {
		if !slices.Contains(all, v) {
			all = append(all, v)
		}
	}

	if len(all) == 0 && spec.Version == "" {
		literal, ok := m.literalPath(spec.Name)
		if !ok {
			return resolution{}, fmt.Errorf("%w: %s", interfaces.ErrLocalAssetDoesNotExist, spec.Name)
		}
		return resolution{literalPath: literal}, nil
	}

	version, err := spec.LatestVersion(all)
	if err != nil {
		return resolution{}, fmt.Errorf("%w: no version of %s matches: %w", interfaces.ErrLocalAssetDoesNotExist, spec, err)
	}

	return resolution{
		version:   version,
		localOnly: m.provider != nil && !slices.Contains(remoteVersions, version),
	}, nil
}

// localVersions lists the entries of the asset's local directory named like a valid version.
func (m *AssetsManager) localVersions(spec *assetspec.AssetSpec) ([]string, error) {
	dir := filepath.Join(append([]string{m.assetsDir}, spec.NameSegments()...)...)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		// no local copy, or the name is a literal file path
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list %s: %w", interfaces.ErrAssetsManager, dir, err)
	}

	var versions []string
	for _, entry := range entries {
		if m.vs.CheckVersionValid(entry.Name()) == nil {
			versions = append(versions, entry.Name())
		}
	}
	return versions, nil
}

func (m *AssetsManager) literalPath(name string) (string, bool) {
	candidates := []string{filepath.Join(m.assetsDir, name)}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, name))
	}
	candidates = append(candidates, name)

	for _, candidate := range candidates {
		if pathExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (m *AssetsManager) localPath(spec *assetspec.AssetSpec, version string) string {
	parts := append([]string{m.assetsDir}, spec.NameSegments()...)
	return filepath.Join(append(parts, version)...)
}

// checkContained fails unless localPath lies strictly below the assets
// directory, outside its lock directory.
func (m *AssetsManager) checkContained(localPath string) error {
	localPath = filepath.Clean(localPath)
	if localPath == m.assetsDir || !isWithin(localPath, m.assetsDir) || isWithin(localPath, filepath.Join(m.assetsDir, lockDir)) {
		return fmt.Errorf("%w: %w: %s resolves outside the assets directory %s",
			interfaces.ErrAssetsManager, interfaces.ErrInvalidName, localPath, m.assetsDir)
	}
	return nil
}

func (m *AssetsManager) lockPath(spec *assetspec.AssetSpec) string {
	parts := append([]string{m.assetsDir, lockDir}, spec.NameSegments()...)
	return filepath.Join(parts...) + ".lock"
}

// fetchRemote downloads a version under the per-asset lock unless a
// complete copy is cached. It reports whether the cached copy was used.
func (m *AssetsManager) fetchRemote(ctx context.Context, spec *assetspec.AssetSpec, version, localPath string, force bool) (bool, error) {
	lockPath := m.lockPath(spec)
	if !isWithin(lockPath, filepath.Join(m.assetsDir, lockDir)) {
		return false, fmt.Errorf("%w: %w: lock %s resolves outside the lock directory",
			interfaces.ErrAssetsManager, interfaces.ErrInvalidName, lockPath)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0755); err != nil {
		return false, fmt.Errorf("%w: failed to create lock directory: %w", interfaces.ErrAssetsManager, err)
	}

	start := time.Now()
	lock := flock.New(lockPath)
	lockCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if !locked {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return false, fmt.Errorf("%w: failed to lock %s: %w", interfaces.ErrAssetsManager, lockPath, err)
		}
		return false, fmt.Errorf("%w: %s after %s", interfaces.ErrLockTimeout, lockPath, m.timeout)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			m.log.Warn("Failed to release asset lock", slog.String("path", lockPath), "err", err)
		}
	}()

	dirMarker, fileMarker := successMarkers(localPath)
	markerPresent := pathExists(dirMarker) || pathExists(fileMarker)
	contentPresent := pathExists(localPath)

	switch {
	case force:
		m.log.Info("Forcing download", slog.String("spec", spec.String()), slog.String("version", version))
		if err := removeAll(localPath, fileMarker); err != nil {
			return false, err
		}
	case contentPresent && markerPresent:
		m.log.Debug("Asset already cached",
			slog.String("spec", spec.String()),
			slog.String("version", version),
			slog.Duration("lock_wait", time.Since(start)))
		return true, nil
	case contentPresent || markerPresent:
		m.log.Info("Discarding incomplete download",
			slog.String("spec", spec.String()),
			slog.String("version", version),
			slog.String("path", localPath))
		if err := removeAll(localPath, fileMarker); err != nil {
			return false, err
		}
	}

	result, err := m.provider.Download(ctx, spec.Name, version, m.assetsDir)
	if err != nil {
		return false, err
	}

	marker := fileMarker
	if result.Meta.IsDirectory {
		marker = dirMarker
	}
	if err := os.WriteFile(marker, nil, 0644); err != nil {
		return false, fmt.Errorf("%w: failed to write success marker: %w", interfaces.ErrAssetsManager, err)
	}

	m.log.Info("Downloaded asset",
		slog.String("spec", spec.String()),
		slog.String("version", version),
		slog.String("path", result.Path),
		slog.Duration("duration", time.Since(start)))
	return false, nil
}

// successMarkers returns the marker of a directory asset, inside it, and
// the marker of a file asset, next to it.
func successMarkers(localPath string) (dirMarker, fileMarker string) {
	dirMarker = filepath.Join(localPath, successMarker)
	fileMarker = filepath.Join(filepath.Dir(localPath), "."+filepath.Base(localPath)+successMarker)
	return dirMarker, fileMarker
}

func removeAll(paths ...string) error {
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("%w: failed to remove %s: %w", interfaces.ErrAssetsManager, p, err)
		}
	}
	return nil
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// pathsOverlap reports whether a and b are the same directory or one contains the other.
func pathsOverlap(a, b string) bool {
	a, b = resolvePath(a), resolvePath(b)
	return a == b || isWithin(a, b) || isWithin(b, a)
}

func isWithin(p, dir string) bool {
	rel, err := filepath.Rel(dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolvePath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.Clean(p)
}
