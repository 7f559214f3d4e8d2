// Package objectstore publishes manifests and staged audio to an
// S3-compatible bucket.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"speech-manifests/internal/config"
)

var ErrNotConfigured = errors.New("MINIO_ENDPOINT, MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY and MINIO_BUCKET_NAME must be set")

// MinioClient holds the MinIO client and bucket name.
type MinioClient struct {
	Client     *minio.Client
	BucketName string
}

func New(cfg config.StorageConfig) (*MinioClient, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &MinioClient{Client: client, BucketName: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (mc *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := mc.Client.BucketExists(ctx, mc.BucketName)
	if err != nil {
		return fmt.Errorf("failed to check if MinIO bucket '%s' exists: %w", mc.BucketName, err)
	}
	if exists {
		return nil
	}

	log.Printf("MinIO bucket '%s' does not exist. Creating it.", mc.BucketName)
	if err := mc.Client.MakeBucket(ctx, mc.BucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create MinIO bucket '%s': %w", mc.BucketName, err)
	}
	return nil
}

// Exists reports whether objectName is stored with the given size.
func (mc *MinioClient) Exists(ctx context.Context, objectName string, size int64) (bool, error) {
	info, err := mc.Client.StatObject(ctx, mc.BucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("stat '%s': %w", objectName, err)
	}
	return info.Size == size, nil
}

func (mc *MinioClient) UploadFile(ctx context.Context, objectName, path, contentType string) error {
	_, err := mc.Client.FPutObject(ctx, mc.BucketName, objectName, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file to MinIO (bucket: %s, object: %s): %w", mc.BucketName, objectName, err)
	}
	return nil
}
