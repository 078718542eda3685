package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ruteri/assetcache/interfaces"
)

// FetchObjectOrPrefix downloads objectName to destination. When no such
// object exists, every object below "objectName/" is downloaded into the
// directory destination instead, keeping relative paths.
func FetchObjectOrPrefix(ctx context.Context, driver interfaces.StorageDriver, objectName, destination string) error {
	ok, err := driver.Exists(ctx, objectName)
	if err != nil {
		return err
	}
	if ok {
		return driver.DownloadObject(ctx, objectName, destination)
	}

	prefix := strings.TrimSuffix(objectName, "/") + "/"
	found := 0
	for name, err := range driver.IterateObjects(ctx, prefix) {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(name, prefix)
		if rel == "" {
			continue
		}
		if err := driver.DownloadObject(ctx, name, filepath.Join(destination, filepath.FromSlash(rel))); err != nil {
			return err
		}
		found++
	}
	if found == 0 {
		return fmt.Errorf("%w: %s", interfaces.ErrObjectDoesNotExist, driver.ObjectURI(objectName, ""))
	}
	return nil
}
