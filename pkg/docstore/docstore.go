// Package docstore provides the document database abstraction used for cloud sync and
// legacy data recovery, with in-memory and PostgreSQL (JSONB) implementations.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a document does not exist
var ErrNotFound = errors.New("document not found")

// Document is a single stored document addressed by its collection path and id
type Document struct {
	Path string         `json:"path"`
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Query selects documents from one collection path. An empty Field reads the
// collection unfiltered; Limit <= 0 means no limit.
type Query struct {
	Path  string
	Field string
	Value any
	Limit int
}

// Store defines the document operations the application depends on
type Store interface {
	// Find returns documents in the collection matching the query, ordered by id
	Find(ctx context.Context, q Query) ([]Document, error)

	// Get returns a single document
	Get(ctx context.Context, path, id string) (*Document, error)

	// Set creates or replaces a document
	Set(ctx context.Context, path, id string, data map[string]any) error

	// Delete removes a document; deleting a missing document is not an error
	Delete(ctx context.Context, path, id string) error
}

// UserCollection returns the per-user nested collection path users/{uid}/{name}
func UserCollection(uid, name string) string {
	return JoinPath("users", uid, name)
}

// JoinPath builds a collection path from its segments
func JoinPath(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}
