package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ruteri/assetcache/assetspec"
	"github.com/ruteri/assetcache/interfaces"
	"github.com/ruteri/assetcache/versioning"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPrefix is the object prefix assets are stored under by default.
	DefaultPrefix = "modelkit-assets"
	// DefaultConcurrency is the number of parallel part transfers.
	DefaultConcurrency = 4

	metaSuffix     = ".meta"
	versionsSuffix = ".versions"
)

// Config configures a StorageProvider. The zero value stores assets at the
// bucket root; use DefaultConfig for the standard layout.
type Config struct {
	Prefix     string
	Versioning interfaces.VersioningSystem
	// DryRun logs every write instead of performing it. Reads still happen.
	DryRun bool
	// Concurrency bounds parallel part transfers of directory assets.
	Concurrency int
}

// DefaultConfig returns the configuration used by the command line tools.
func DefaultConfig() Config {
	return Config{
		Prefix:      DefaultPrefix,
		Versioning:  versioning.Default(),
		Concurrency: DefaultConcurrency,
	}
}

// DownloadResult describes a downloaded asset version.
type DownloadResult struct {
	Path string
	Meta *interfaces.AssetMetadata
}

// AssetVersions lists the versions of one remote asset, newest first.
type AssetVersions struct {
	Name     string
	Versions []string
}

// StorageProvider maps assets onto objects of a storage driver:
//
//	{prefix}/{name}/{version}            file asset, or directory holding the parts
//	{prefix}/{name}/{version}.meta       JSON AssetMetadata
//	{prefix}/{name}.versions             JSON VersionsIndex
type StorageProvider struct {
	driver      interfaces.StorageDriver
	prefix      string
	vs          interfaces.VersioningSystem
	dryRun      bool
	concurrency int
	log         *slog.Logger
}

// NewStorageProvider creates a provider storing assets through driver.
func NewStorageProvider(driver interfaces.StorageDriver, cfg Config, log *slog.Logger) *StorageProvider {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &StorageProvider{
		driver:      driver,
		prefix:      strings.Trim(cfg.Prefix, "/"),
		vs:          versioning.OrDefault(cfg.Versioning),
		dryRun:      cfg.DryRun,
		concurrency: cfg.Concurrency,
		log:         log,
	}
}

// Driver returns the underlying storage driver.
func (p *StorageProvider) Driver() interfaces.StorageDriver {
	return p.driver
}

// Versioning returns the versioning system versions are validated and sorted with.
func (p *StorageProvider) Versioning() interfaces.VersioningSystem {
	return p.vs
}

// Prefix returns the object prefix, without slashes at either end.
func (p *StorageProvider) Prefix() string {
	return p.prefix
}

func (p *StorageProvider) join(parts ...string) string {
	var nonEmpty []string
	for _, part := range parts {
		if part = strings.Trim(part, "/"); part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// ObjectName returns the object of a file asset, or the object prefix of
// the parts of a directory asset.
func (p *StorageProvider) ObjectName(name, version string) string {
	return p.join(p.prefix, normalizeName(name), version)
}

// MetaObjectName returns the metadata object of an asset version.
func (p *StorageProvider) MetaObjectName(name, version string) string {
	return p.ObjectName(name, version) + metaSuffix
}

// VersionsObjectName returns the versions index object of an asset.
func (p *StorageProvider) VersionsObjectName(name string) string {
	return p.join(p.prefix, normalizeName(name)) + versionsSuffix
}

// ObjectURI returns the backend URI of an asset version, optionally narrowed to subPart.
func (p *StorageProvider) ObjectURI(name, version, subPart string) string {
	return p.driver.ObjectURI(p.ObjectName(name, version), subPart)
}

func normalizeName(name string) string {
	return strings.ReplaceAll(name, `\`, "/")
}

// checkCompleteVersion validates name and requires version to pin exactly one version.
func (p *StorageProvider) checkCompleteVersion(name, version string) error {
	spec, err := assetspec.New(name, version, "", p.vs)
	if err != nil {
		return err
	}
	if !spec.IsVersionComplete() {
		return fmt.Errorf("%w: `%s` is not a complete version", interfaces.ErrInvalidVersion, version)
	}
	return nil
}

// New creates a new asset with localPath as its first version.
func (p *StorageProvider) New(ctx context.Context, localPath, name, version string) error {
	if err := p.checkCompleteVersion(name, version); err != nil {
		return err
	}

	indexObject := p.VersionsObjectName(name)
	exists, err := p.driver.Exists(ctx, indexObject)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAssetAlreadyExists, p.driver.ObjectURI(indexObject, ""))
	}

	if err := p.Push(ctx, localPath, name, version); err != nil {
		return err
	}

	p.log.Info("Creating versions index",
		slog.String("name", name),
		slog.String("version", version))
	return p.putJSON(ctx, indexObject, interfaces.VersionsIndex{Versions: []string{version}})
}

// Update pushes localPath as a new version of an existing asset and adds it
// to the versions index.
//
// The index is rewritten without any concurrency control; a concurrent
// update can drop the entry. The index is read back and a lost entry is
// reported as a warning.
func (p *StorageProvider) Update(ctx context.Context, localPath, name, version string) error {
	if err := p.checkCompleteVersion(name, version); err != nil {
		return err
	}

	indexObject := p.VersionsObjectName(name)
	exists, err := p.driver.Exists(ctx, indexObject)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAssetDoesNotExist, p.driver.ObjectURI(indexObject, ""))
	}

	if err := p.Push(ctx, localPath, name, version); err != nil {
		return err
	}

	var index interfaces.VersionsIndex
	if err := p.getJSON(ctx, indexObject, &index); err != nil {
		return err
	}
	if !index.Contains(version) {
		index.Versions = append([]string{version}, index.Versions...)
	}

	p.log.Info("Updating versions index",
		slog.String("name", name),
		slog.String("version", version),
		slog.Int("versions", len(index.Versions)))
	if err := p.putJSON(ctx, indexObject, index); err != nil {
		return err
	}
	if p.dryRun {
		return nil
	}

	var written interfaces.VersionsIndex
	if err := p.getJSON(ctx, indexObject, &written); err != nil {
		return err
	}
	if !written.Contains(version) {
		p.log.Warn("Versions index lost the new version, likely a concurrent update",
			slog.String("name", name),
			slog.String("version", version))
	}
	return nil
}

// Push uploads a file or directory as an asset version and writes its
// metadata. Existing versions are never overwritten.
func (p *StorageProvider) Push(ctx context.Context, localPath, name, version string) error {
	object := p.ObjectName(name, version)
	metaObject := p.MetaObjectName(name, version)

	for _, o := range []string{object, metaObject} {
		exists, err := p.driver.Exists(ctx, o)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", interfaces.ErrAssetAlreadyExists, p.driver.ObjectURI(o, ""))
		}
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	start := time.Now()
	meta := interfaces.AssetMetadata{
		PushDate:    time.Now().UTC(),
		IsDirectory: info.IsDir(),
	}

	if info.IsDir() {
		contents, err := listFiles(localPath)
		if err != nil {
			return err
		}
		meta.Contents = contents

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for _, rel := range contents {
			g.Go(func() error {
				return p.upload(gctx, filepath.Join(localPath, filepath.FromSlash(rel)), object+"/"+rel)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else if err := p.upload(ctx, localPath, object); err != nil {
		return err
	}

	if err := p.putJSON(ctx, metaObject, meta); err != nil {
		return err
	}

	p.log.Info("Pushed asset",
		slog.String("name", name),
		slog.String("version", version),
		slog.String("uri", p.driver.ObjectURI(object, "")),
		slog.Bool("directory", meta.IsDirectory),
		slog.Int("parts", len(meta.Contents)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Download fetches an asset version into destDir/{name}/{version}.
func (p *StorageProvider) Download(ctx context.Context, name, version, destDir string) (*DownloadResult, error) {
	if _, err := assetspec.New(name, version, "", p.vs); err != nil {
		return nil, err
	}
	meta, err := p.GetAssetMeta(ctx, name, version)
	if err != nil {
		return nil, err
	}

	object := p.ObjectName(name, version)
	for _, rel := range meta.Contents {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return nil, fmt.Errorf("%w: %s lists invalid part %q",
				interfaces.ErrAssetFetch, p.driver.ObjectURI(p.MetaObjectName(name, version), ""), rel)
		}
	}
	localPath := filepath.Join(destDir, filepath.FromSlash(normalizeName(name)), version)
	start := time.Now()

	if meta.IsDirectory {
		if err := os.MkdirAll(localPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", localPath, err)
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for _, rel := range meta.Contents {
			g.Go(func() error {
				return p.driver.DownloadObject(gctx, object+"/"+rel, filepath.Join(localPath, filepath.FromSlash(rel)))
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else if err := p.driver.DownloadObject(ctx, object, localPath); err != nil {
		return nil, err
	}

	p.log.Info("Downloaded asset",
		slog.String("name", name),
		slog.String("version", version),
		slog.String("path", localPath),
		slog.Duration("duration", time.Since(start)))
	return &DownloadResult{Path: localPath, Meta: meta}, nil
}

// GetVersionsInfo returns the versions of an asset, newest first.
// A missing index surfaces as interfaces.ErrObjectDoesNotExist.
func (p *StorageProvider) GetVersionsInfo(ctx context.Context, name string) ([]string, error) {
	var index interfaces.VersionsIndex
	if err := p.getJSON(ctx, p.VersionsObjectName(name), &index); err != nil {
		return nil, err
	}
	return p.vs.SortVersions(index.Versions), nil
}

// GetAssetMeta returns the metadata of an asset version.
func (p *StorageProvider) GetAssetMeta(ctx context.Context, name, version string) (*interfaces.AssetMetadata, error) {
	var meta interfaces.AssetMetadata
	if err := p.getJSON(ctx, p.MetaObjectName(name, version), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// IterateAssets yields every asset with a versions index, sorted by name.
func (p *StorageProvider) IterateAssets(ctx context.Context) iter.Seq2[AssetVersions, error] {
	return func(yield func(AssetVersions, error) bool) {
		listPrefix := ""
		if p.prefix != "" {
			listPrefix = p.prefix + "/"
		}

		var names []string
		for object, err := range p.driver.IterateObjects(ctx, listPrefix) {
			if err != nil {
				yield(AssetVersions{}, err)
				return
			}
			if strings.HasSuffix(object, versionsSuffix) {
				names = append(names, strings.TrimSuffix(strings.TrimPrefix(object, listPrefix), versionsSuffix))
			}
		}
		slices.Sort(names)

		for _, name := range names {
			versions, err := p.GetVersionsInfo(ctx, name)
			if !yield(AssetVersions{Name: name, Versions: versions}, err) {
				return
			}
		}
	}
}

func (p *StorageProvider) upload(ctx context.Context, localPath, object string) error {
	if p.dryRun {
		p.log.Info("[DRY RUN] Would upload",
			slog.String("path", localPath),
			slog.String("uri", p.driver.ObjectURI(object, "")))
		return nil
	}
	return p.driver.UploadObject(ctx, localPath, object)
}

func (p *StorageProvider) putJSON(ctx context.Context, object string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", object, err)
	}
	if p.dryRun {
		p.log.Info("[DRY RUN] Would write",
			slog.String("uri", p.driver.ObjectURI(object, "")),
			slog.String("content", string(data)))
		return nil
	}

	f, err := os.CreateTemp("", "asset-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return p.driver.UploadObject(ctx, f.Name(), object)
}

func (p *StorageProvider) getJSON(ctx context.Context, object string, v any) error {
	dir, err := os.MkdirTemp("", "asset-json-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	local := filepath.Join(dir, "object.json")
	if err := p.driver.DownloadObject(ctx, object, local); err != nil {
		return err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", p.driver.ObjectURI(object, ""), err)
	}
	return nil
}

// listFiles returns the slash separated paths of all regular files below dir, sorted.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("directory asset %s contains no files", dir)
	}
	slices.Sort(files)
	return files, nil
}
