// Package interfaces defines the contracts and shared types of the asset
// distribution system, separating interface definitions from implementations.
//
// # Storage
//
// StorageDriver: uniform object CRUD and listing over one bucket of one
// storage backend (local disk, S3, GCS, Azure Blob Storage).
//
// # Versioning
//
// VersioningSystem: pluggable strategy deciding which version strings are
// valid, how versions are ordered and how the next version is derived.
//
// # Types
//
// - AssetMetadata: push date, directory flag and file list of a pushed version
// - VersionsIndex: the remote, append-only list of versions of an asset
//
// # Errors
//
// Sentinel errors are declared here and wrapped with context by the
// implementations; callers match them with errors.Is. Related errors wrap a
// common root, e.g. ErrObjectDoesNotExist also matches ErrStorageDriver.
package interfaces
