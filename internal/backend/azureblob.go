package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// cacheControlLongLived is applied to every blob this backend stores, per
// §4.1's "sets a long cache-control on store".
const cacheControlLongLived = "public, max-age=31536000, immutable"

// AzureBlob is an object-store Backend over Azure Blob Storage, standing
// in for the original's S3 client (§11): an account URL + container
// selects the bucket, and credentials resolve through either an explicit
// access key or azidentity's DefaultAzureCredential chain when none is
// configured.
type AzureBlob struct {
	client    *azblob.Client
	container string
}

// NewAzureBlob constructs an AzureBlob backend. If accountKey is empty,
// azidentity.NewDefaultAzureCredential is used instead (workload identity,
// managed identity, or local `az login` session, in that order).
func NewAzureBlob(accountURL, container, accountName, accountKey string) (*AzureBlob, error) {
	var client *azblob.Client
	var err error

	if accountKey != "" {
		cred, credErr := azblob.NewSharedKeyCredential(accountName, accountKey)
		if credErr != nil {
			return nil, fmt.Errorf("azure blob shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(accountURL, cred, nil)
	} else {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("azure default credential: %w", credErr)
		}
		client, err = azblob.NewClient(accountURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}

	return &AzureBlob{client: client, container: container}, nil
}

func (a *AzureBlob) Store(ctx context.Context, key string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("buffer upload body: %w", err)
	}
	_, err = a.client.UploadBuffer(ctx, a.container, key, buf, &azblob.UploadBufferOptions{
		HTTPHeaders: &azblob.BlobHTTPHeaders{
			BlobContentType:  to.Ptr(contentType),
			BlobCacheControl: to.Ptr(cacheControlLongLived),
		},
	})
	if err != nil {
		return fmt.Errorf("azure blob upload: %w", err)
	}
	return nil
}

func (a *AzureBlob) Retrieve(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob download: %w", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read azure blob body: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *AzureBlob) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("azure blob delete: %w", err)
	}
	return nil
}

// StoreAsync delegates to Store; the Azure SDK's context-based calls are
// already non-blocking at the goroutine level so no separate async path is
// needed beyond what ctx cancellation already provides (§4.1).
func (a *AzureBlob) StoreAsync(ctx context.Context, key string, data io.Reader, contentType string) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- a.Store(ctx, key, data, contentType)
	}()
	return out
}
