package flags

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/assetcache/common"
	"github.com/ruteri/assetcache/interfaces"
	"github.com/ruteri/assetcache/manager"
	"github.com/ruteri/assetcache/remote"
	"github.com/ruteri/assetcache/storage"
	"github.com/ruteri/assetcache/versioning"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// Versioning returns the versioning system selected by --versioning-system.
func Versioning(cCtx *cli.Context) (interfaces.VersioningSystem, error) {
	return versioning.ByTag(cCtx.String(VersioningSystemFlag.Name))
}

// ConfigureDriver builds the driver configuration of the assets store.
// Mirrors are given as provider:bucket and share the primary's credentials.
func ConfigureDriver(cCtx *cli.Context) (storage.DriverConfig, error) {
	cfg := storage.DriverConfig{
		Provider: interfaces.StorageProviderKind(cCtx.String(StorageProviderFlag.Name)),
		Bucket:   cCtx.String(StorageBucketFlag.Name),
		Lazy:     cCtx.Bool(LazyDriverFlag.Name),
		Retry: storage.RetryPolicy{
			Attempts: cCtx.Int(RetryAttemptsFlag.Name),
		},
		S3: storage.S3Config{
			Region:          cCtx.String(AWSRegionFlag.Name),
			Endpoint:        cCtx.String(S3EndpointFlag.Name),
			AccessKeyID:     cCtx.String(AWSAccessKeyIDFlag.Name),
			SecretAccessKey: cCtx.String(AWSSecretAccessKeyFlag.Name),
			SessionToken:    cCtx.String(AWSSessionTokenFlag.Name),
		},
		GCS: storage.GCSConfig{
			ServiceAccountPath: cCtx.String(GCSCredentialsFlag.Name),
		},
		Azure: storage.AzureConfig{
			ConnectionString: cCtx.String(AzureConnectionStringFlag.Name),
		},
	}

	for _, mirror := range cCtx.StringSlice(StorageMirrorsFlag.Name) {
		provider, bucket, ok := strings.Cut(mirror, ":")
		if !ok || bucket == "" {
			return storage.DriverConfig{}, fmt.Errorf("invalid mirror %q, expected provider:bucket", mirror)
		}
		mirrorCfg := cfg
		mirrorCfg.Provider = interfaces.StorageProviderKind(provider)
		mirrorCfg.Bucket = bucket
		cfg.Mirrors = append(cfg.Mirrors, mirrorCfg)
	}
	return cfg, nil
}

// ConfigureProvider builds the storage provider of the assets store.
func ConfigureProvider(cCtx *cli.Context, logger *slog.Logger, dryRun bool) (*remote.StorageProvider, error) {
	vs, err := Versioning(cCtx)
	if err != nil {
		return nil, err
	}

	driverCfg, err := ConfigureDriver(cCtx)
	if err != nil {
		return nil, err
	}
	if dryRun {
		driverCfg.Lazy = true
	}
	driver, err := storage.NewDriverFactory(logger).DriverFor(driverCfg)
	if err != nil {
		return nil, err
	}

	return remote.NewStorageProvider(driver, remote.Config{
		Prefix:      cCtx.String(StoragePrefixFlag.Name),
		Versioning:  vs,
		DryRun:      dryRun,
		Concurrency: cCtx.Int(ConcurrencyFlag.Name),
	}, logger), nil
}

// ConfigureManager builds the local assets manager. Without a configured
// bucket the manager serves local assets only.
func ConfigureManager(cCtx *cli.Context, logger *slog.Logger) (*manager.AssetsManager, error) {
	vs, err := Versioning(cCtx)
	if err != nil {
		return nil, err
	}

	var provider *remote.StorageProvider
	if cCtx.String(StorageBucketFlag.Name) != "" {
		provider, err = ConfigureProvider(cCtx, logger, false)
		if err != nil {
			return nil, err
		}
	}

	return manager.NewAssetsManager(manager.Config{
		AssetsDir:  cCtx.String(AssetsDirFlag.Name),
		Timeout:    time.Duration(cCtx.Int64(TimeoutSecondsFlag.Name)) * time.Second,
		Versioning: vs,
	}, provider, logger)
}

var StorageProviderFlag = &cli.StringFlag{
	Name:    "storage-provider",
	Value:   string(interfaces.LocalProvider),
	EnvVars: []string{"ASSETS_STORAGE_PROVIDER"},
	Usage:   "storage provider of the assets store: local, s3, gcs or az",
}
var StorageBucketFlag = &cli.StringFlag{
	Name:    "storage-bucket",
	EnvVars: []string{"ASSETS_STORAGE_BUCKET"},
	Usage:   "bucket, container or local directory of the assets store",
}
var StorageMirrorsFlag = &cli.StringSliceFlag{
	Name:    "storage-mirror",
	EnvVars: []string{"ASSETS_STORAGE_MIRRORS"},
	Usage:   "additional store written alongside the primary one and read on misses, as provider:bucket",
}
var StoragePrefixFlag = &cli.StringFlag{
	Name:    "storage-prefix",
	Value:   remote.DefaultPrefix,
	EnvVars: []string{"ASSETS_STORAGE_PREFIX"},
	Usage:   "object prefix of the assets store",
}
var LazyDriverFlag = &cli.BoolFlag{
	Name:    "lazy-driver",
	EnvVars: []string{"ASSETS_LAZY_DRIVER"},
	Usage:   "create storage clients on first use",
}
var RetryAttemptsFlag = &cli.IntFlag{
	Name:    "retry-attempts",
	Value:   storage.DefaultRetryPolicy().Attempts,
	EnvVars: []string{"ASSETS_RETRY_ATTEMPTS"},
	Usage:   "attempts per storage call on transient errors",
}
var ConcurrencyFlag = &cli.IntFlag{
	Name:    "concurrency",
	Value:   remote.DefaultConcurrency,
	EnvVars: []string{"ASSETS_CONCURRENCY"},
	Usage:   "parallel transfers of directory asset parts",
}
var VersioningSystemFlag = &cli.StringFlag{
	Name:    "versioning-system",
	Value:   versioning.MajorMinorTag,
	EnvVars: []string{"ASSETS_VERSIONING_SYSTEM"},
	Usage:   "versioning system: major_minor or simple_date",
}
var AssetsDirFlag = &cli.StringFlag{
	Name:    "assets-dir",
	Value:   ".",
	EnvVars: []string{"ASSETS_DIR"},
	Usage:   "local assets cache directory",
}
var TimeoutSecondsFlag = &cli.Int64Flag{
	Name:    "timeout-seconds",
	Value:   int64(manager.DefaultTimeout / time.Second),
	EnvVars: []string{"ASSETS_TIMEOUT_S"},
	Usage:   "seconds to wait for another process downloading the same asset",
}

var AWSAccessKeyIDFlag = &cli.StringFlag{
	Name:    "aws-access-key-id",
	EnvVars: []string{"AWS_ACCESS_KEY_ID"},
	Usage:   "S3 access key id, the default credential chain is used if empty",
}
var AWSSecretAccessKeyFlag = &cli.StringFlag{
	Name:    "aws-secret-access-key",
	EnvVars: []string{"AWS_SECRET_ACCESS_KEY"},
	Usage:   "S3 secret access key",
}
var AWSSessionTokenFlag = &cli.StringFlag{
	Name:    "aws-session-token",
	EnvVars: []string{"AWS_SESSION_TOKEN"},
	Usage:   "S3 session token",
}
var AWSRegionFlag = &cli.StringFlag{
	Name:    "aws-region",
	EnvVars: []string{"AWS_DEFAULT_REGION"},
	Usage:   "S3 region",
}
var S3EndpointFlag = &cli.StringFlag{
	Name:    "s3-endpoint",
	EnvVars: []string{"S3_ENDPOINT"},
	Usage:   "custom S3 compatible endpoint, enables path-style addressing",
}
var GCSCredentialsFlag = &cli.StringFlag{
	Name:    "gcs-credentials",
	EnvVars: []string{"GOOGLE_APPLICATION_CREDENTIALS"},
	Usage:   "GCS service account JSON file, application default credentials are used if empty",
}
var AzureConnectionStringFlag = &cli.StringFlag{
	Name:    "azure-connection-string",
	EnvVars: []string{"AZURE_STORAGE_CONNECTION_STRING"},
	Usage:   "Azure Blob Storage connection string",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var StorageFlags = []cli.Flag{
	StorageProviderFlag,
	StorageBucketFlag,
	StorageMirrorsFlag,
	StoragePrefixFlag,
	LazyDriverFlag,
	RetryAttemptsFlag,
	ConcurrencyFlag,
	VersioningSystemFlag,
	AssetsDirFlag,
	TimeoutSecondsFlag,
	AWSAccessKeyIDFlag,
	AWSSecretAccessKeyFlag,
	AWSSessionTokenFlag,
	AWSRegionFlag,
	S3EndpointFlag,
	GCSCredentialsFlag,
	AzureConnectionStringFlag,
}
