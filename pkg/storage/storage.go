// Package storage provides the local key-value store used to persist user data,
// with bbolt, in-memory and Google Cloud Storage implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key has no value
var ErrNotFound = errors.New("key not found")

// KV defines the key-value operations used by the data managers and the recovery backup
type KV interface {
	// Put stores value under key, replacing any previous value
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store
	Close() error
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeBolt   StorageType = "bolt"
	StorageTypeMemory StorageType = "memory"
	StorageTypeGCS    StorageType = "gcs"
)

// Config holds storage configuration
type Config struct {
	Type StorageType

	// bbolt file path
	BoltPath string

	// GCS bucket and object prefix
	GCSBucket string
	GCSPrefix string
}

// New creates a KV implementation based on configuration
func New(ctx context.Context, cfg *Config) (KV, error) {
	switch cfg.Type {
	case StorageTypeMemory:
		return NewMemoryKV(), nil
	case StorageTypeGCS:
		return NewGCSKV(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	case StorageTypeBolt, "":
		return NewBoltKV(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
