package objectstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
)

// AzureClient implements Client for Azure Blob Storage. The bucket argument
// of each call names a container.
type AzureClient struct {
	client *azblob.Client
}

// NewAzureClient connects to accountURL with cred, or with the default Azure
// credential chain when cred is nil.
func NewAzureClient(accountURL string, cred azcore.TokenCredential) (*AzureClient, error) {
	if accountURL == "" {
		return nil, fmt.Errorf("azure account URL is required")
	}
	if cred == nil {
		def, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("create default credential: %w", err)
		}
		cred = def
	}

	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}
	return &AzureClient{client: client}, nil
}

// Upload implements Client.
func (c *AzureClient) Upload(ctx context.Context, container, object string, content io.Reader, contentType string) error {
	bb := c.client.ServiceClient().NewContainerClient(container).NewBlockBlobClient(object)

	opts := &blockblob.UploadStreamOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	_, err := bb.UploadStream(ctx, content, opts)
	return err
}

// Download implements Client.
func (c *AzureClient) Download(ctx context.Context, container, object string) (io.ReadCloser, error) {
	resp, err := c.client.DownloadStream(ctx, container, object, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return resp.Body, nil
}

// Delete implements Client.
func (c *AzureClient) Delete(ctx context.Context, container, object string) error {
	_, err := c.client.DeleteBlob(ctx, container, object, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil
	}
	return err
}

// Exists implements Client.
func (c *AzureClient) Exists(ctx context.Context, container, object string) (bool, error) {
	bc := c.client.ServiceClient().NewContainerClient(container).NewBlobClient(object)
	if _, err := bc.GetProperties(ctx, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

var _ Client = (*AzureClient)(nil)
