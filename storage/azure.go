package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/ruteri/assetcache/interfaces"
)

// AzureConfig holds Azure Blob Storage settings.
type AzureConfig struct {
	ConnectionString string
}

// AzureDriver implements a storage driver using an Azure Blob Storage
// container as bucket.
type AzureDriver struct {
	*objectStoreDriver
}

var _ interfaces.StorageDriver = (*AzureDriver)(nil)

// NewAzureDriver creates a driver for container. A connection string is
// required unless api is provided.
func NewAzureDriver(container string, cfg AzureConfig, api ObjectAPI, opts DriverOptions) (*AzureDriver, error) {
	opts = opts.withDefaults()
	if container == "" {
		return nil, fmt.Errorf("%w: empty Azure container", interfaces.ErrStorageDriver)
	}

	d := &AzureDriver{&objectStoreDriver{
		kind:        "azure",
		scheme:      "azfs",
		bucket:      container,
		retry:       opts.Retry,
		isTransient: IsTransientAzureError,
		log:         opts.Log,
		api:         api,
		newAPI: func() (ObjectAPI, error) {
			if cfg.ConnectionString == "" {
				return nil, errors.New("missing Azure storage connection string")
			}
			client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
			if err != nil {
				return nil, err
			}
			return &azureObjects{client: client, container: container}, nil
		},
	}}
	if err := d.init(opts.Lazy); err != nil {
		return nil, err
	}
	return d, nil
}

// IsTransientAzureError reports Azure failures worth retrying.
func IsTransientAzureError(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == http.StatusRequestTimeout,
			respErr.StatusCode == http.StatusTooManyRequests,
			respErr.StatusCode >= http.StatusInternalServerError:
			return true
		}
		return false
	}
	return isTransientNetwork(err)
}

type azureObjects struct {
	client    *azblob.Client
	container string
}

func (a *azureObjects) ListPage(ctx context.Context, prefix, token string) ([]string, string, error) {
	opts := &azblob.ListBlobsFlatOptions{Prefix: &prefix}
	if token != "" {
		opts.Marker = &token
	}
	pager := a.client.NewListBlobsFlatPager(a.container, opts)
	if !pager.More() {
		return nil, "", nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, "", mapAzureError(err, prefix)
	}

	var names []string
	if resp.Segment != nil {
		for _, item := range resp.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	next := ""
	if resp.NextMarker != nil {
		next = *resp.NextMarker
	}
	return names, next, nil
}

func (a *azureObjects) Upload(ctx context.Context, objectName string, r io.Reader) error {
	_, err := a.client.UploadStream(ctx, a.container, objectName, r, nil)
	return mapAzureError(err, objectName)
}

func (a *azureObjects) Download(ctx context.Context, objectName string, w io.Writer) error {
	resp, err := a.client.DownloadStream(ctx, a.container, objectName, nil)
	if err != nil {
		return mapAzureError(err, objectName)
	}
	defer resp.Body.Close()
	_, err = io.Copy(w, resp.Body)
	return err
}

func (a *azureObjects) Delete(ctx context.Context, objectName string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, objectName, nil)
	return mapAzureError(err, objectName)
}

func (a *azureObjects) Exists(ctx context.Context, objectName string) (bool, error) {
	blob := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(objectName)
	_, err := blob.GetProperties(ctx, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, mapAzureError(err, objectName)
	}
	return true, nil
}

func mapAzureError(err error, objectName string) error {
	switch {
	case err == nil:
		return nil
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return fmt.Errorf("%w: %s: %w", interfaces.ErrObjectDoesNotExist, objectName, err)
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return fmt.Errorf("%w: %w", interfaces.ErrBucketDoesNotExist, err)
	}
	return err
}
