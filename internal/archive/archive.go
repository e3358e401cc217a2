// Package archive uploads finished recordings to off-box storage once a
// session's ffmpeg sink has closed, keeping the local recordings
// directory as a write-ahead cache rather than the long-term store.
package archive

import (
	"context"
	"fmt"
	"os"

	"github.com/streamdesk/server/internal/config"
)

// Uploader copies a local file to a remote key. Implementations must be
// safe for concurrent use: recordings from different sessions finish at
// unrelated times.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// noneUploader is used when archiving is disabled; recordings stay local.
type noneUploader struct{}

func (noneUploader) Upload(_ context.Context, _, _ string) error { return nil }

// New builds the Uploader named by cfg.ArchiveProvider. ValidateTiered
// guarantees the required fields are present for whichever provider is
// selected, so New only needs to fail on construction errors from the
// underlying SDK.
func New(ctx context.Context, cfg *config.Config) (Uploader, error) {
	switch cfg.ArchiveProvider {
	case "", "none":
		return noneUploader{}, nil
	case "s3":
		return newS3Uploader(ctx, cfg)
	case "azure":
		return newAzureUploader(ctx, cfg)
	case "gcs":
		return newGCSUploader(ctx, cfg)
	case "b2":
		return newB2Uploader(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.ArchiveProvider)
	}
}

func openForRead(localPath string) (*os.File, int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s for archiving: %w", localPath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s for archiving: %w", localPath, err)
	}
	return f, info.Size(), nil
}
