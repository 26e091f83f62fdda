package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVImplementations(t *testing.T) {
	bolt, err := NewBoltKV(filepath.Join(t.TempDir(), "nested", "finance.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })

	stores := map[string]KV{
		"memory": NewMemoryKV(),
		"bolt":   bolt,
	}

	for name, kv := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := kv.Get(ctx, "transactions/u1")
			assert.ErrorIs(t, err, ErrNotFound)

			value := []byte(`[{"id":"t1"}]`)
			require.NoError(t, kv.Put(ctx, "transactions/u1", value))

			// Mutating the input must not change what is stored
			value[0] = 'x'

			got, err := kv.Get(ctx, "transactions/u1")
			require.NoError(t, err)
			assert.Equal(t, `[{"id":"t1"}]`, string(got))

			require.NoError(t, kv.Put(ctx, "transactions/u1", []byte(`[]`)))
			got, err = kv.Get(ctx, "transactions/u1")
			require.NoError(t, err)
			assert.Equal(t, `[]`, string(got))

			require.NoError(t, kv.Delete(ctx, "transactions/u1"))
			require.NoError(t, kv.Delete(ctx, "transactions/u1"))

			_, err = kv.Get(ctx, "transactions/u1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	kv, err := New(ctx, &Config{Type: StorageTypeMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryKV{}, kv)

	kv, err = New(ctx, &Config{Type: StorageTypeBolt, BoltPath: filepath.Join(t.TempDir(), "kv.db")})
	require.NoError(t, err)
	assert.IsType(t, &BoltKV{}, kv)
	require.NoError(t, kv.Close())

	_, err = New(ctx, &Config{Type: "s3"})
	assert.Error(t, err)

	_, err = New(ctx, &Config{Type: StorageTypeGCS})
	assert.Error(t, err)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	var out []string
	found, err := GetJSON(ctx, kv, UserKey("u1", "tags"), &out)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, PutJSON(ctx, kv, UserKey("u1", "tags"), []string{"casa", "mercado"}))

	found, err = GetJSON(ctx, kv, "users/u1/tags", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"casa", "mercado"}, out)

	require.NoError(t, kv.Put(ctx, "broken", []byte("{")))
	_, err = GetJSON(ctx, kv, "broken", &out)
	assert.Error(t, err)
}
