// Package storage provides object storage drivers with a common interface.
//
// Every driver operates on a single bucket and addresses objects by
// "/"-separated names:
//
//   - LocalDriver stores objects as files below a directory
//   - S3Driver talks to Amazon S3 or any S3 compatible service
//   - GCSDriver talks to Google Cloud Storage
//   - AzureDriver talks to an Azure Blob Storage container
//   - MirrorDriver writes to several drivers and reads with fallback
//
// # Retries
//
// Network drivers run every remote call through a RetryPolicy. Only errors
// classified as transient by the driver (throttling, 5xx responses, dropped
// connections) are retried; missing objects and buckets fail immediately
// with interfaces.ErrObjectDoesNotExist and interfaces.ErrBucketDoesNotExist.
//
// # Configuration
//
// DriverFactory builds drivers from a DriverConfig:
//
//	factory := storage.NewDriverFactory(logger)
//	driver, err := factory.DriverFor(storage.DriverConfig{
//	    Provider: interfaces.S3Provider,
//	    Bucket:   "assets",
//	    S3:       storage.S3Config{Region: "eu-west-1"},
//	})
//
// or from a URL such as s3://bucket/object, gs://bucket/object,
// azfs://container/object or a local path with DriverForURL.
//
// SDK clients are created on construction unless Lazy is set, in which case
// they are created on first use. Tests inject fakes through the s3iface.S3API
// client argument and the ObjectAPI transport.
package storage
