// Package storage archives audit exports in an object storage bucket.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/roomify/apiserver/config"
)

// Archive is a write-once bucket for audit exports.
type Archive interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
	Close() error
}

// Open returns the archive selected by STORAGE_BACKEND.
func Open(ctx context.Context, cfg config.Config) (Archive, error) {
	switch cfg.Storage.Backend {
	case "minio":
		return NewMinioArchive(cfg.Minio)
	case "gcs":
		return NewGCSArchive(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", cfg.Storage.Backend)
	}
}
