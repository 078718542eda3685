package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ruteri/assetcache/interfaces"
)

// LocalDriver implements a storage driver on top of a local directory.
// Object names map to relative paths under the directory.
type LocalDriver struct {
	root string
	log  *slog.Logger
}

var _ interfaces.StorageDriver = (*LocalDriver)(nil)

// NewLocalDriver creates a driver rooted at dir, creating the directory if needed.
func NewLocalDriver(dir string, log *slog.Logger) (*LocalDriver, error) {
	if log == nil {
		log = slog.Default()
	}
	if dir == "" {
		return nil, fmt.Errorf("%w: empty local bucket directory", interfaces.ErrStorageDriver)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create bucket directory: %w", interfaces.ErrStorageDriver, err)
	}

	return &LocalDriver{root: root, log: log}, nil
}

// objectPath maps an object name to a path inside the root, refusing names
// that would escape it.
func (d *LocalDriver) objectPath(objectName string) (string, error) {
	clean := path.Clean("/" + objectName)
	if clean == "/" {
		return "", fmt.Errorf("%w: empty object name", interfaces.ErrStorageDriver)
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

// IterateObjects walks the directory tree below the deepest directory of
// prefix and yields regular files in lexical order.
func (d *LocalDriver) IterateObjects(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := d.root
		if dir := path.Dir(prefix); dir != "." && dir != "/" && strings.Contains(prefix, "/") {
			start = filepath.Join(d.root, filepath.FromSlash(dir))
		}
		if _, err := os.Stat(start); errors.Is(err, fs.ErrNotExist) {
			return
		}

		stop := errors.New("stop")
		err := filepath.WalkDir(start, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(d.root, p)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			if !strings.HasPrefix(name, prefix) {
				return nil
			}
			if !yield(name, nil) {
				return stop
			}
			return nil
		})
		if err != nil && !errors.Is(err, stop) {
			yield("", fmt.Errorf("%w: listing %s: %w", interfaces.ErrStorageDriver, prefix, err))
		}
	}
}

// UploadObject copies localPath to objectName, replacing whatever file or
// directory occupies the target or any of its parent paths.
func (d *LocalDriver) UploadObject(ctx context.Context, localPath, objectName string) error {
	dst, err := d.objectPath(objectName)
	if err != nil {
		return err
	}

	if err := d.clearParents(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", interfaces.ErrStorageDriver, err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("%w: failed to replace %s: %w", interfaces.ErrStorageDriver, dst, err)
	}

	if err := copyFile(localPath, dst); err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}

	d.log.Debug("Uploaded object to local bucket",
		slog.String("path", dst),
		slog.String("object", objectName))
	return nil
}

// clearParents removes regular files standing where a parent directory of dst must be.
func (d *LocalDriver) clearParents(dst string) error {
	rel, err := filepath.Rel(d.root, filepath.Dir(dst))
	if err != nil || rel == "." {
		return err
	}
	current := d.root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
		}
		if !info.IsDir() {
			if err := os.Remove(current); err != nil {
				return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
			}
			return nil
		}
	}
	return nil
}

// DownloadObject copies objectName to destinationPath.
func (d *LocalDriver) DownloadObject(ctx context.Context, objectName, destinationPath string) error {
	src, err := d.objectPath(objectName)
	if err != nil {
		return err
	}

	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return fmt.Errorf("%w: %s", interfaces.ErrObjectDoesNotExist, d.ObjectURI(objectName, ""))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}

	if err := os.MkdirAll(filepath.Dir(destinationPath), 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", interfaces.ErrStorageDriver, err)
	}
	if err := copyFile(src, destinationPath); err != nil {
		os.Remove(destinationPath)
		return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}

	d.log.Debug("Downloaded object from local bucket",
		slog.String("object", objectName),
		slog.String("destination", destinationPath),
		slog.Int64("size", info.Size()))
	return nil
}

// DeleteObject removes objectName.
func (d *LocalDriver) DeleteObject(ctx context.Context, objectName string) error {
	p, err := d.objectPath(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", interfaces.ErrObjectDoesNotExist, p)
		}
		return fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}
	return nil
}

// Exists reports whether objectName is a regular file in the bucket.
func (d *LocalDriver) Exists(ctx context.Context, objectName string) (bool, error) {
	p, err := d.objectPath(objectName)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", interfaces.ErrStorageDriver, err)
	}
	return info.Mode().IsRegular(), nil
}

// ObjectURI returns the absolute local path of the object.
func (d *LocalDriver) ObjectURI(objectName, subPart string) string {
	return filepath.Join(d.root, filepath.FromSlash(objectName), filepath.FromSlash(subPart))
}

// Bucket returns the absolute bucket directory.
func (d *LocalDriver) Bucket() string {
	return d.root
}

// Name returns a unique identifier for this driver.
func (d *LocalDriver) Name() string {
	return fmt.Sprintf("local-%s", filepath.Base(d.root))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
