package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/roomify/apiserver/config"
	"google.golang.org/api/option"
)

// GCSArchive stores exports in a Google Cloud Storage bucket.
type GCSArchive struct {
	client    *storage.Client
	bucket    string
	projectID string
}

func NewGCSArchive(ctx context.Context, cfg config.GCSConfig) (*GCSArchive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("storage: GCS_BUCKET is required")
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: gcs client: %w", err)
	}
	return &GCSArchive{client: client, bucket: cfg.Bucket, projectID: cfg.ProjectID}, nil
}

func (g *GCSArchive) EnsureBucket(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("storage: check bucket %s: %w", g.bucket, err)
	case strings.TrimSpace(g.projectID) == "":
		return fmt.Errorf("storage: bucket %s does not exist and GCS_PROJECT_ID is unset", g.bucket)
	}
	if err := g.client.Bucket(g.bucket).Create(ctx, g.projectID, nil); err != nil {
		return fmt.Errorf("storage: create bucket %s: %w", g.bucket, err)
	}
	return nil
}

// Put writes the object only if no object exists under key.
func (g *GCSArchive) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	obj := g.client.Bucket(g.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{"kind": "audit-export"}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("storage: finalize %s: %w", key, err)
	}
	return nil
}

func (g *GCSArchive) Bucket() string {
	return g.bucket
}

func (g *GCSArchive) Close() error {
	return g.client.Close()
}
