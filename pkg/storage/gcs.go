package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	gcs "cloud.google.com/go/storage"
)

// GCSKV implements KV with one object per key in a Google Cloud Storage bucket.
// Credentials come from Application Default Credentials.
type GCSKV struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
}

// NewGCSKV creates a client for the given bucket
func NewGCSKV(ctx context.Context, bucket, prefix string) (*GCSKV, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSKV{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: prefix,
	}, nil
}

func (g *GCSKV) objectName(key string) string {
	return path.Join(g.prefix, key)
}

func (g *GCSKV) Put(ctx context.Context, key string, value []byte) error {
	w := g.bucket.Object(g.objectName(key)).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(value); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	return nil
}

func (g *GCSKV) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.bucket.Object(g.objectName(key)).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

func (g *GCSKV) Delete(ctx context.Context, key string) error {
	err := g.bucket.Object(g.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (g *GCSKV) Close() error {
	return g.client.Close()
}
