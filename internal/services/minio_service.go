package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// FileStorage persists receipt files under a per-tenant prefix.
type FileStorage interface {
	Store(ctx context.Context, tenantID uuid.UUID, originalName, contentType string, reader io.Reader, size int64) (string, error)
	Delete(ctx context.Context, objectPath string) error
	DeleteTenant(ctx context.Context, tenantID uuid.UUID) error
	PresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error)
	EnsureBucket(ctx context.Context) error
	Ping(ctx context.Context) error
}

// TenantPrefix is the object prefix holding every file of a tenant.
func TenantPrefix(tenantID uuid.UUID) string {
	return fmt.Sprintf("receipts/%s/", tenantID)
}

type minioStorage struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

func NewMinioStorage(endpoint, accessKey, secretKey string, useSSL bool, bucket string, logger *zap.Logger) (FileStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	return &minioStorage{client: client, bucket: bucket, logger: logger}, nil
}

func (m *minioStorage) Store(ctx context.Context, tenantID uuid.UUID, originalName, contentType string, reader io.Reader, size int64) (string, error) {
	objectName := TenantPrefix(tenantID) + uuid.NewString() + strings.ToLower(path.Ext(originalName))
	_, err := m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("store %s: %w", originalName, err)
	}
	return objectName, nil
}

func (m *minioStorage) Delete(ctx context.Context, objectPath string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectPath, minio.RemoveObjectOptions{})
}

// DeleteTenant removes every object under the tenant prefix.
func (m *minioStorage) DeleteTenant(ctx context.Context, tenantID uuid.UUID) error {
	objects := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    TenantPrefix(tenantID),
		Recursive: true,
	})

	toDelete := make(chan minio.ObjectInfo)
	var listErr error
	go func() {
		defer close(toDelete)
		for obj := range objects {
			if obj.Err != nil {
				listErr = obj.Err
				continue
			}
			toDelete <- obj
		}
	}()

	var firstErr error
	for rErr := range m.client.RemoveObjects(ctx, m.bucket, toDelete, minio.RemoveObjectsOptions{}) {
		m.logger.Warn("failed to remove tenant object",
			zap.String("object", rErr.ObjectName), zap.Error(rErr.Err))
		if firstErr == nil {
			firstErr = rErr.Err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return listErr
}

func (m *minioStorage) PresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectPath, expiry, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (m *minioStorage) EnsureBucket(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

func (m *minioStorage) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}
