package archive

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/streamdesk/server/internal/config"
)

type gcsUploader struct {
	bucket *storage.BucketHandle
}

func newGCSUploader(ctx context.Context, cfg *config.Config) (Uploader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &gcsUploader{bucket: client.Bucket(cfg.ArchiveBucket)}, nil
}

func (u *gcsUploader) Upload(ctx context.Context, localPath, key string) error {
	f, _, err := openForRead(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := u.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("gcs upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs finalize %s: %w", key, err)
	}
	return nil
}
