package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// GetJSON decodes the value under key into v. It reports false, with no error,
// when the key does not exist.
func GetJSON(ctx context.Context, kv KV, key string, v any) (bool, error) {
	data, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key
func PutJSON(ctx context.Context, kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return kv.Put(ctx, key, data)
}

// UserKey namespaces a key under a user: users/{uid}/{name}
func UserKey(uid, name string) string {
	return "users/" + uid + "/" + name
}
