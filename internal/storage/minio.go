package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/physiohub/rag-backend/internal/config"
)

// UploadArchiver 原始上传文件归档
// 归档发生在文本提取之后、分块之前，失败只记录日志，不阻断入库
type UploadArchiver interface {
	Archive(ctx context.Context, ownerID uint, contentHash, filename string, data []byte) error
}

// MinIOArchiver 基于MinIO的归档实现
type MinIOArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinIOArchiver 创建MinIO归档器
func NewMinIOArchiver() (*MinIOArchiver, error) {
	cfg := config.AppConfig.Storage
	if !cfg.Enabled {
		return nil, fmt.Errorf("object storage disabled")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	// minio.New 不接受带协议的endpoint
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	archiver := &MinIOArchiver{
		client: client,
		bucket: cfg.Bucket,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			errStr := err.Error()
			if !strings.Contains(errStr, "BucketAlreadyExists") &&
				!strings.Contains(errStr, "BucketAlreadyOwnedByYou") {
				return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
			}
		}
	}

	return archiver, nil
}

// Archive 按 {owner}/{hash}/{filename} 存放原始上传内容
func (a *MinIOArchiver) Archive(ctx context.Context, ownerID uint, contentHash, filename string, data []byte) error {
	objectName := fmt.Sprintf("%d/%s/%s", ownerID, contentHash, filename)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("minio put object failed: %w", err)
	}
	return nil
}
