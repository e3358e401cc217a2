package archive

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/streamdesk/server/internal/config"
)

type azureUploader struct {
	client    *azblob.Client
	container string
}

func newAzureUploader(_ context.Context, cfg *config.Config) (Uploader, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.ArchiveAccount)

	cred, err := azblob.NewSharedKeyCredential(cfg.ArchiveAccount, cfg.ArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client: %w", err)
	}

	return &azureUploader{client: client, container: cfg.ArchiveContainer}, nil
}

func (u *azureUploader) Upload(ctx context.Context, localPath, key string) error {
	f, _, err := openForRead(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = u.client.UploadFile(ctx, u.container, key, f, nil)
	if err != nil {
		return fmt.Errorf("azure upload %s: %w", key, err)
	}
	return nil
}
