package archive

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/streamdesk/server/internal/config"
)

type s3Uploader struct {
	uploader *manager.Uploader
	bucket   string
}

func newS3Uploader(ctx context.Context, cfg *config.Config) (Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ArchiveRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &s3Uploader{
		uploader: manager.NewUploader(client),
		bucket:   cfg.ArchiveBucket,
	}, nil
}

func (u *s3Uploader) Upload(ctx context.Context, localPath, key string) error {
	f, _, err := openForRead(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return nil
}
