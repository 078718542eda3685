package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/ruteri/assetcache/storage"
)

// resolveSource returns a local path holding the asset at assetPath. Paths
// that do not exist locally are read as storage URLs and downloaded, as a
// single object or as every object below a prefix, into a temporary
// directory removed by cleanup.
func resolveSource(ctx context.Context, logger *slog.Logger, base storage.DriverConfig, assetPath string) (string, func(), error) {
	noop := func() {}
	if _, err := os.Stat(assetPath); err == nil {
		return assetPath, noop, nil
	}

	driver, objectName, err := storage.NewDriverFactory(logger).DriverForURL(assetPath, base)
	if err != nil {
		return "", noop, err
	}

	tmpDir, err := os.MkdirTemp("", "asset-source-*")
	if err != nil {
		return "", noop, err
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warn("Failed to remove temporary directory", slog.String("path", tmpDir), "err", err)
		}
	}

	localPath := filepath.Join(tmpDir, path.Base(objectName))
	logger.Info("Downloading asset source",
		slog.String("uri", driver.ObjectURI(objectName, "")),
		slog.String("path", localPath))
	if err := storage.FetchObjectOrPrefix(ctx, driver, objectName, localPath); err != nil {
		cleanup()
		return "", noop, err
	}
	return localPath, cleanup, nil
}

// countFiles returns the number of regular files at or below p.
func countFiles(p string) (int, error) {
	n := 0
	err := filepath.WalkDir(p, func(_ string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n, err
}
