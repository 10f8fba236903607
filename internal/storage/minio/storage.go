// Package minio stores results in an S3-compatible bucket.
package minio

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/retry"
)

// Storage provides an S3-compatible storage backend using MinIO.
// Destination paths are used as object names inside a single bucket.
type Storage struct {
	client     *minio.Client
	bucketName string
}

// Options holds the connection settings.
type Options struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

// NewStorage connects to the MinIO server. If the bucket does not exist it
// is created. The bucket check is retried with strategy.
func NewStorage(ctx context.Context, opts Options, strategy retry.Strategy) (*Storage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	var exists bool
	err = retry.Do(func() error {
		var checkErr error
		exists, checkErr = client.BucketExists(ctx, opts.BucketName)
		return checkErr
	}, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, opts.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: opts.BucketName,
	}, nil
}

// Save uploads src under the object name derived from dst.
// Returns the bucket-qualified object path.
func (s *Storage) Save(ctx context.Context, dst, contentType string, src io.Reader) (string, error) {
	objectName := ObjectName(dst)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucketName, objectName, src, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to save object %s: %w", objectName, err)
	}

	return s.bucketName + "/" + objectName, nil
}

// ObjectName turns a filesystem-style destination into an object key.
func ObjectName(dst string) string {
	return strings.TrimLeft(filepath.ToSlash(filepath.Clean(dst)), "/")
}
