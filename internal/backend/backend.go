// Package backend implements the storage backends of SPEC_FULL §4.1: a
// narrow {store, retrieve, delete} contract over a keyed blob store, with a
// local filesystem implementation and an Azure Blob Storage implementation
// standing in for the original's S3 object-store class.
package backend

import (
	"context"
	"io"
)

// Backend is the synchronous capability set every storage implementation
// exposes. The interface has no async methods; AzureBlob additionally
// offers StoreAsync (a wrapper over Store), Local does not.
type Backend interface {
	Store(ctx context.Context, key string, data io.Reader, contentType string) error
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// TestCredentials writes, reads back, then deletes a disposable key to
// verify a backend's settings are valid before they are persisted on an
// account, matching the original's validate_access_key (§12).
func TestCredentials(ctx context.Context, b Backend, key string) error {
	payload := []byte("h51-settings-test")
	if err := b.Store(ctx, key, bytesReader(payload), "application/octet-stream"); err != nil {
		return err
	}
	if _, err := b.Retrieve(ctx, key); err != nil {
		return err
	}
	return b.Delete(ctx, key)
}
