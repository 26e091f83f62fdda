package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// MemoryStore implements Store in memory. It is used for tests and for running
// the server without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory document store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]map[string]any),
	}
}

// Find returns documents in the collection matching the query
func (s *MemoryStore) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.collections[q.Path]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]Document, 0)
	for _, id := range ids {
		data := docs[id]
		if q.Field != "" && !fieldEquals(data[q.Field], q.Value) {
			continue
		}
		result = append(result, Document{Path: q.Path, ID: id, Data: copyData(data)})
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, nil
}

// Get returns a single document
func (s *MemoryStore) Get(ctx context.Context, path, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.collections[path][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", path, id, ErrNotFound)
	}
	return &Document{Path: path, ID: id, Data: copyData(data)}, nil
}

// Set creates or replaces a document
func (s *MemoryStore) Set(ctx context.Context, path, id string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path == "" || id == "" {
		return fmt.Errorf("path and id are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs, ok := s.collections[path]
	if !ok {
		docs = make(map[string]map[string]any)
		s.collections[path] = docs
	}
	docs[id] = copyData(data)
	return nil
}

// Delete removes a document
func (s *MemoryStore) Delete(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[path], id)
	return nil
}

func fieldEquals(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == expected
	}
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	// Values decoded from JSON and values built in Go may differ only in type
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
