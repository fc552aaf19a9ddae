// Package storage provides object storage for archived PDF binaries.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage defines the operations used to archive and recover original
// PDF bytes.
type ObjectStorage interface {
	UploadBytes(ctx context.Context, data []byte, path, contentType string) (string, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Health(ctx context.Context) error
}

// MinIOConfig holds MinIO connection configuration.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UseSSL          bool
}

// MinIOStorage implements ObjectStorage using MinIO.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage creates a MinIO-backed object store and ensures the bucket
// exists.
func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinIOStorage{client: client, bucket: cfg.BucketName}, nil
}

// PDFArchivePath returns the object path for a paper's archived binary.
func PDFArchivePath(paperID string) string {
	return fmt.Sprintf("papers/%s.pdf", paperID)
}

// UploadBytes uploads a byte slice to the given path.
func (s *MinIOStorage) UploadBytes(ctx context.Context, data []byte, path, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return path, nil
}

// Download retrieves an object's contents.
func (s *MinIOStorage) Download(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Health checks object storage connectivity.
func (s *MinIOStorage) Health(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
