package file

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage writes results to the local filesystem.
type Storage struct{}

// NewStorage creates a new local Storage.
func NewStorage() *Storage {
	return &Storage{}
}

// Save writes src to dst, creating parent directories and overwriting any
// existing file. Returns the path written.
func (s *Storage) Save(ctx context.Context, dst, _ string, src io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", dst, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", dst, err)
	}

	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close file %s: %w", dst, err)
	}

	return dst, nil
}
