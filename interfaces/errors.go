package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageDriver is the root of all driver level failures, including
	// invalid driver configuration.
	ErrStorageDriver = errors.New("storage driver error")

	// ErrObjectDoesNotExist is returned when a requested object is not in the bucket.
	// It is terminal and never retried.
	ErrObjectDoesNotExist = fmt.Errorf("%w: object does not exist", ErrStorageDriver)

	// ErrBucketDoesNotExist is returned when the configured bucket, container
	// or directory cannot be found.
	ErrBucketDoesNotExist = fmt.Errorf("%w: bucket does not exist", ErrStorageDriver)
)

var (
	// ErrInvalidAssetSpec is returned when an asset identifier cannot be parsed.
	ErrInvalidAssetSpec = errors.New("invalid asset spec")

	// ErrInvalidName is returned when an asset name contains forbidden
	// characters or starts or ends with a separator.
	ErrInvalidName = errors.New("invalid asset name")

	// ErrInvalidVersion is returned when a version string is not valid for
	// the versioning system in use.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrInvalidMajorVersion is returned when a major version filter is malformed.
	ErrInvalidMajorVersion = fmt.Errorf("%w: invalid major version", ErrInvalidVersion)

	// ErrMajorVersionDoesNotExist is returned when no version of the requested
	// major line exists.
	ErrMajorVersionDoesNotExist = fmt.Errorf("%w: major version does not exist", ErrInvalidVersion)
)

var (
	// ErrAssetsManager is the root of asset level failures.
	ErrAssetsManager = errors.New("assets manager error")

	// ErrAssetAlreadyExists is returned when creating an asset or version that is already stored.
	ErrAssetAlreadyExists = fmt.Errorf("%w: asset already exists", ErrAssetsManager)

	// ErrAssetDoesNotExist is returned when updating an asset that was never created.
	ErrAssetDoesNotExist = fmt.Errorf("%w: asset does not exist", ErrAssetsManager)

	// ErrLocalAssetDoesNotExist is returned when a requested version cannot be
	// found in the local assets directory.
	ErrLocalAssetDoesNotExist = fmt.Errorf("%w: local asset does not exist", ErrAssetsManager)

	// ErrAssetFetch is returned when a fetch completed but produced no usable path.
	ErrAssetFetch = fmt.Errorf("%w: asset fetch failed", ErrAssetsManager)

	// ErrLockTimeout is returned when the per-asset cache lock cannot be
	// acquired within the configured timeout.
	ErrLockTimeout = fmt.Errorf("%w: timed out acquiring asset lock", ErrAssetsManager)
)
