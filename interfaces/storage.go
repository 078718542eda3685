package interfaces

import (
	"context"
	"iter"
)

// StorageProviderKind selects a storage driver implementation.
type StorageProviderKind string

const (
	// LocalProvider stores objects in a directory on local disk.
	LocalProvider StorageProviderKind = "local"
	// S3Provider stores objects in Amazon S3 or an S3 compatible service.
	S3Provider StorageProviderKind = "s3"
	// GCSProvider stores objects in Google Cloud Storage.
	GCSProvider StorageProviderKind = "gcs"
	// AzureProvider stores objects in Azure Blob Storage.
	AzureProvider StorageProviderKind = "az"
)

// String returns the provider tag.
func (k StorageProviderKind) String() string {
	return string(k)
}

// StorageDriver provides object CRUD and listing over a single bucket of one
// storage backend. Object names always use "/" as separator regardless of
// the backend.
type StorageDriver interface {
	// IterateObjects lists object names starting with prefix.
	// The sequence is lazy and can be ranged over more than once; a listing
	// failure is yielded as the error of the last pair.
	IterateObjects(ctx context.Context, prefix string) iter.Seq2[string, error]

	// UploadObject copies the file at localPath to objectName.
	UploadObject(ctx context.Context, localPath, objectName string) error

	// DownloadObject copies objectName into destinationPath.
	// Returns ErrObjectDoesNotExist if the object is missing, in which case
	// no file is left at destinationPath.
	DownloadObject(ctx context.Context, objectName, destinationPath string) error

	// DeleteObject removes objectName.
	DeleteObject(ctx context.Context, objectName string) error

	// Exists reports whether objectName is present.
	Exists(ctx context.Context, objectName string) (bool, error)

	// ObjectURI returns the backend URI of objectName, optionally narrowed to subPart.
	ObjectURI(objectName, subPart string) string

	// Bucket returns the bucket, container or directory the driver operates on.
	Bucket() string

	// Name returns identifier for logging.
	Name() string
}
