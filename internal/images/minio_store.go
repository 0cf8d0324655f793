// Package images stores board background images in an S3-compatible bucket.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps one object per board under boards/{id}/background.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connect: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio bucket create: %w", err)
		}
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

func objectKey(boardID string) string {
	return "boards/" + boardID + "/background"
}

// PutBackground replaces the stored background image for a board.
func (m *MinioStore) PutBackground(ctx context.Context, boardID, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, objectKey(boardID),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("minio put: %w", err)
	}
	return nil
}

// GetBackground returns (nil, "", nil) when no background is stored.
func (m *MinioStore) GetBackground(ctx context.Context, boardID string) ([]byte, string, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectKey(boardID), minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("minio get: %w", err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("minio stat: %w", err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, "", fmt.Errorf("minio read: %w", err)
	}
	return data, stat.ContentType, nil
}

// DeleteBackground removes the stored image. Missing objects are not an error.
func (m *MinioStore) DeleteBackground(ctx context.Context, boardID string) error {
	err := m.client.RemoveObject(ctx, m.bucket, objectKey(boardID), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("minio remove: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
	}
	return false
}
