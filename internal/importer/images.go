package importer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/garyellow/timetable-linebot-go/internal/config"
	"github.com/garyellow/timetable-linebot-go/internal/r2client"
)

// ImageStore keeps uploaded timetable screenshots and the recognized text
// archived next to them. Put returns the reference stored on import records.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// NewImageStore builds the store selected by cfg.ImageStore. r2 may be nil
// unless the r2 backend is selected.
func NewImageStore(ctx context.Context, cfg *config.Config, r2 *r2client.Client) (ImageStore, error) {
	switch cfg.ImageStore {
	case config.ImageStoreR2:
		if r2 == nil {
			return nil, fmt.Errorf("image store: r2 selected but no R2 client")
		}
		return NewR2ImageStore(r2), nil
	case config.ImageStoreMinIO:
		return NewMinIOImageStore(ctx, MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
	default:
		return NewLocalImageStore(cfg.ImageDir())
	}
}

// LocalImageStore writes objects below a directory.
type LocalImageStore struct {
	dir string
}

// NewLocalImageStore creates dir if needed.
func NewLocalImageStore(dir string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("image store: create dir: %w", err)
	}
	return &LocalImageStore{dir: dir}, nil
}

// Put writes data to dir/key and returns the absolute path.
func (s *LocalImageStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(path, filepath.Clean(s.dir)+string(filepath.Separator)) {
		return "", fmt.Errorf("image store: key %q escapes base dir", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("image store: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("image store: write: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

// R2ImageStore uploads objects to the R2 bucket.
type R2ImageStore struct {
	client *r2client.Client
}

// NewR2ImageStore wraps an R2 client.
func NewR2ImageStore(client *r2client.Client) *R2ImageStore {
	return &R2ImageStore{client: client}
}

// Put uploads data and returns an r2:// reference.
func (s *R2ImageStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if _, err := s.client.Upload(ctx, key, bytes.NewReader(data), contentType); err != nil {
		return "", err
	}
	return s.client.ObjectURL(key), nil
}

// MinIOConfig configures a self-hosted S3 compatible store.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinIOImageStore uploads objects to a MinIO bucket.
type MinIOImageStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOImageStore connects to MinIO and creates the bucket when missing.
func NewMinIOImageStore(ctx context.Context, cfg MinIOConfig) (*MinIOImageStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check minio bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create minio bucket: %w", err)
		}
		slog.InfoContext(ctx, "created minio bucket", "bucket", cfg.Bucket)
	}

	return &MinIOImageStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data and returns a minio:// reference.
func (s *MinIOImageStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	return "minio://" + s.bucket + "/" + key, nil
}
