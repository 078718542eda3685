// Command assets manages versioned assets in a remote store and a local cache.
//
// Usage:
//
//	assets [global flags] new ASSET_PATH ASSET_NAME
//	assets [global flags] update [--bump-major] ASSET_PATH ASSET_NAME[:MAJOR]
//	assets [global flags] list
//	assets [global flags] fetch [--download] ASSET_SPEC
//
// ASSET_PATH is a local file or directory, or an s3://, gs:// or azfs:// URL
// of an object or of a prefix holding several objects.
//
// The store is selected with --storage-provider and --storage-bucket
// (ASSETS_STORAGE_PROVIDER, ASSETS_STORAGE_BUCKET). fetch without a bucket
// serves assets already present in --assets-dir (ASSETS_DIR).
//
// Example:
//
//	export ASSETS_STORAGE_PROVIDER=s3 ASSETS_STORAGE_BUCKET=models
//	assets new ./weights models/classifier
//	assets update --bump-major ./weights-v2 models/classifier
//	assets fetch models/classifier:1[config.json]
package main
