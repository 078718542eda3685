package storage

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/assetcache/interfaces"
	"go.uber.org/atomic"
)

// MirrorDriver implements interfaces.StorageDriver over several drivers with
// fallback. Writes go to every driver, reads are served by the first driver
// holding the object. Listing and URIs come from the primary (first) driver.
type MirrorDriver struct {
	drivers   []interfaces.StorageDriver
	log       *slog.Logger
	fallbacks atomic.Int64
}

var _ interfaces.StorageDriver = (*MirrorDriver)(nil)

// NewMirrorDriver creates a mirror over drivers; drivers[0] is the primary.
func NewMirrorDriver(drivers []interfaces.StorageDriver, logger *slog.Logger) *MirrorDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MirrorDriver{
		drivers: drivers,
		log:     logger,
	}
}

// Drivers returns the mirrored drivers, primary first.
func (m *MirrorDriver) Drivers() []interfaces.StorageDriver {
	return m.drivers
}

// Fallbacks counts downloads served by a driver other than the primary.
func (m *MirrorDriver) Fallbacks() int64 {
	return m.fallbacks.Load()
}

func (m *MirrorDriver) IterateObjects(ctx context.Context, prefix string) iter.Seq2[string, error] {
	if len(m.drivers) == 0 {
		return func(yield func(string, error) bool) {
			yield("", fmt.Errorf("%w: no mirrored drivers", interfaces.ErrStorageDriver))
		}
	}
	return m.drivers[0].IterateObjects(ctx, prefix)
}

// UploadObject uploads to every driver and fails only if all of them fail.
func (m *MirrorDriver) UploadObject(ctx context.Context, localPath, objectName string) error {
	start := time.Now()
	var errs []error
	for _, driver := range m.drivers {
		if err := driver.UploadObject(ctx, localPath, objectName); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", driver.Name(), err))
			m.log.Warn("Failed to upload to mirror",
				slog.String("driver", driver.Name()),
				slog.String("object", objectName),
				"err", err)
		}
	}

	if len(errs) == len(m.drivers) {
		m.log.Error("All mirrors failed to upload object",
			slog.String("object", objectName),
			slog.Int("failed_drivers", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("%w: all mirrors failed to upload %s: %w", interfaces.ErrStorageDriver, objectName, errors.Join(errs...))
	}
	return nil
}

// DownloadObject downloads from the first driver that succeeds. The error is
// ErrObjectDoesNotExist only when every driver lacks the object.
func (m *MirrorDriver) DownloadObject(ctx context.Context, objectName, destinationPath string) error {
	var errs []error
	missing := 0
	for i, driver := range m.drivers {
		err := driver.DownloadObject(ctx, objectName, destinationPath)
		if err == nil {
			if i > 0 {
				m.fallbacks.Inc()
				m.log.Info("Downloaded object from mirror",
					slog.String("driver", driver.Name()),
					slog.String("object", objectName))
			}
			return nil
		}
		if errors.Is(err, interfaces.ErrObjectDoesNotExist) {
			missing++
		}
		errs = append(errs, fmt.Errorf("%s: %w", driver.Name(), err))
		m.log.Debug("Failed to download from mirror",
			slog.String("driver", driver.Name()),
			slog.String("object", objectName),
			"err", err)
	}

	if missing == len(m.drivers) {
		return fmt.Errorf("%w: %s", interfaces.ErrObjectDoesNotExist, objectName)
	}
	return fmt.Errorf("%w: all mirrors failed to download %s: %w", interfaces.ErrStorageDriver, objectName, errors.Join(errs...))
}

// DeleteObject deletes from every driver holding the object.
func (m *MirrorDriver) DeleteObject(ctx context.Context, objectName string) error {
	var errs []error
	deleted := false
	for _, driver := range m.drivers {
		err := driver.DeleteObject(ctx, objectName)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, interfaces.ErrObjectDoesNotExist):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", driver.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: failed to delete %s: %w", interfaces.ErrStorageDriver, objectName, errors.Join(errs...))
	}
	if !deleted {
		return fmt.Errorf("%w: %s", interfaces.ErrObjectDoesNotExist, objectName)
	}
	return nil
}

// Exists is true if any driver has the object. When none has it and any
// driver failed, the failures are returned.
func (m *MirrorDriver) Exists(ctx context.Context, objectName string) (bool, error) {
	var errs []error
	for _, driver := range m.drivers {
		ok, err := driver.Exists(ctx, objectName)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", driver.Name(), err))
			continue
		}
		if ok {
			return true, nil
		}
	}
	if len(errs) > 0 {
		return false, fmt.Errorf("%w: failed to check %s: %w", interfaces.ErrStorageDriver, objectName, errors.Join(errs...))
	}
	return false, nil
}

func (m *MirrorDriver) ObjectURI(objectName, subPart string) string {
	if len(m.drivers) == 0 {
		return ""
	}
	return m.drivers[0].ObjectURI(objectName, subPart)
}

func (m *MirrorDriver) Bucket() string {
	if len(m.drivers) == 0 {
		return ""
	}
	return m.drivers[0].Bucket()
}

// Name returns the combined names of the mirrored drivers.
func (m *MirrorDriver) Name() string {
	names := make([]string, 0, len(m.drivers))
	for _, driver := range m.drivers {
		names = append(names, driver.Name())
	}
	return "mirror:[" + strings.Join(names, ",") + "]"
}
