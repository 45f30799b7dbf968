package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/akidb/akidb/internal/akierr"
)

// AzureConfig configures the Azure Blob Storage cold-tier backend.
type AzureConfig struct {
	AccountURL string // e.g. "https://<account>.blob.core.windows.net/"
	Container  string
	AccountKey string // optional; falls back to DefaultAzureCredential when empty
}

// AzureBlobStore implements Store against an Azure Blob Storage container.
// Conditional PUT uses blob ETag preconditions: ifMatch is the ETag from a
// prior write, and an empty ifMatch means "only create if absent"
// (If-None-Match: *).
type AzureBlobStore struct {
	containerClient *container.Client
	retry           RetryConfig
	logger          *slog.Logger
}

// NewAzureBlobStore builds an AzureBlobStore using a shared-key credential
// when AccountKey is set, or the ambient Azure credential chain otherwise.
func NewAzureBlobStore(cfg AzureConfig, accountName string, logger *slog.Logger) (*AzureBlobStore, error) {
	var client *azblob.Client
	var err error

	if cfg.AccountKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(accountName, cfg.AccountKey)
		if credErr != nil {
			return nil, fmt.Errorf("objectstore: azure shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
	} else {
		client, err = azblob.NewClientWithNoCredential(cfg.AccountURL, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("objectstore: create azure blob client: %w", err)
	}

	return &AzureBlobStore{
		containerClient: client.ServiceClient().NewContainerClient(cfg.Container),
		retry:           DefaultRetryConfig(),
		logger:          logger,
	}, nil
}

func (a *AzureBlobStore) Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error) {
	var out []byte
	err := WithRetry(ctx, a.retry, func() error {
		blobClient := a.containerClient.NewBlockBlobClient(key)
		opts := &blob.DownloadStreamOptions{}
		if rng != nil {
			opts.Range = blob.HTTPRange{Offset: rng.Offset, Count: rng.Length}
		}
		resp, err := blobClient.DownloadStream(ctx, opts)
		if err != nil {
			return classifyAzureError("azblob.get", key, err)
		}
		body := resp.Body
		defer body.Close() //nolint:errcheck // read-only response body
		data, err := io.ReadAll(body)
		if err != nil {
			return akierr.Wrap(akierr.KindTransient, "azblob.get", "read blob", err)
		}
		out = data
		return nil
	})
	return out, err
}

func (a *AzureBlobStore) Put(ctx context.Context, key string, data []byte, ifMatch string) (string, error) {
	var version string
	err := WithRetry(ctx, a.retry, func() error {
		blobClient := a.containerClient.NewBlockBlobClient(key)
		opts := &blockblob.UploadOptions{}
		if ifMatch != "" {
			etag := azcore.ETag(ifMatch)
			opts.AccessConditions = &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfMatch: &etag},
			}
		} else {
			star := azcore.ETag("*")
			opts.AccessConditions = &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: &star},
			}
		}

		resp, err := blobClient.UploadBuffer(ctx, data, opts)
		if err != nil {
			return classifyAzureConditionalError("azblob.put", key, err)
		}
		if resp.ETag != nil {
			version = string(*resp.ETag)
		}
		return nil
	})
	return version, err
}

func (a *AzureBlobStore) Delete(ctx context.Context, key string) error {
	return WithRetry(ctx, a.retry, func() error {
		_, err := a.containerClient.NewBlockBlobClient(key).Delete(ctx, nil)
		if err != nil && !isAzureNotFound(err) {
			return classifyAzureError("azblob.delete", key, err)
		}
		return nil
	})
}

func (a *AzureBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := WithRetry(ctx, a.retry, func() error {
		out = out[:0]
		pager := a.containerClient.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: to.Ptr(prefix)})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return classifyAzureError("azblob.list", prefix, err)
			}
			for _, item := range page.Segment.BlobItems {
				info := ObjectInfo{Key: *item.Name}
				if item.Properties != nil {
					if item.Properties.ContentLength != nil {
						info.Size = *item.Properties.ContentLength
					}
					if item.Properties.ETag != nil {
						info.Version = string(*item.Properties.ETag)
					}
				}
				out = append(out, info)
			}
		}
		return nil
	})
	return out, err
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}

func classifyAzureError(op, key string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch {
		case respErr.StatusCode == 404:
			return notFound(op, key)
		case respErr.StatusCode == 429 || respErr.StatusCode >= 500:
			return akierr.Wrap(akierr.KindTransient, op, "transient azure error", err)
		}
	}
	return akierr.Wrap(akierr.KindTransient, op, "azure request failed", err)
}

func classifyAzureConditionalError(op, key string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 412 {
		return conflict(op, key)
	}
	return classifyAzureError(op, key, err)
}
