package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/Backblaze/blazer/b2"

	"github.com/streamdesk/server/internal/config"
)

type b2Uploader struct {
	bucket *b2.Bucket
}

func newB2Uploader(ctx context.Context, cfg *config.Config) (Uploader, error) {
	client, err := b2.NewClient(ctx, cfg.ArchiveKeyID, cfg.ArchiveKey)
	if err != nil {
		return nil, fmt.Errorf("b2 client: %w", err)
	}
	bucket, err := client.Bucket(ctx, cfg.ArchiveBucket)
	if err != nil {
		return nil, fmt.Errorf("b2 bucket %s: %w", cfg.ArchiveBucket, err)
	}
	return &b2Uploader{bucket: bucket}, nil
}

func (u *b2Uploader) Upload(ctx context.Context, localPath, key string) error {
	f, _, err := openForRead(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := u.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("b2 upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("b2 finalize %s: %w", key, err)
	}
	return nil
}
