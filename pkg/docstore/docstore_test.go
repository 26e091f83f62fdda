package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MemoryStore
// ============================================================================

func TestMemoryStore_FindFilteredAndLimited(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, "financas", "c", map[string]any{"userId": "u1", "valor": 10}))
	require.NoError(t, s.Set(ctx, "financas", "a", map[string]any{"userId": "u1", "valor": 20}))
	require.NoError(t, s.Set(ctx, "financas", "b", map[string]any{"userId": "u2", "valor": 30}))

	tests := []struct {
		name    string
		query   Query
		wantIDs []string
	}{
		{"unfiltered", Query{Path: "financas"}, []string{"a", "b", "c"}},
		{"filtered", Query{Path: "financas", Field: "userId", Value: "u1"}, []string{"a", "c"}},
		{"limited", Query{Path: "financas", Limit: 1}, []string{"a"}},
		{"missing collection", Query{Path: "metas"}, []string{}},
		{"numeric value matches", Query{Path: "financas", Field: "valor", Value: "30"}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, tt.query)
			require.NoError(t, err)

			ids := make([]string, 0, len(docs))
			for _, d := range docs {
				ids = append(ids, d.ID)
				assert.Equal(t, tt.query.Path, d.Path)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMemoryStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "metas", "1")
	assert.True(t, errors.Is(err, ErrNotFound))

	data := map[string]any{"nome": "Viagem"}
	require.NoError(t, s.Set(ctx, "metas", "1", data))

	// Mutating the caller's map must not change the stored document
	data["nome"] = "changed"

	doc, err := s.Get(ctx, "metas", "1")
	require.NoError(t, err)
	assert.Equal(t, "Viagem", doc.Data["nome"])

	require.NoError(t, s.Delete(ctx, "metas", "1"))
	require.NoError(t, s.Delete(ctx, "metas", "1"))

	_, err = s.Get(ctx, "metas", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Find(ctx, Query{Path: "transactions"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserCollection(t *testing.T) {
	assert.Equal(t, "users/u1/transactions", UserCollection("u1", "transactions"))
	assert.Equal(t, "users/u1/metas", JoinPath("/users/", "u1", "", "metas/"))
}

// ============================================================================
// PostgresStore
// ============================================================================

func TestPostgresStore_Find(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, data FROM documents WHERE path = \$1 AND data->>\$2 = \$3 ORDER BY id LIMIT \$4`).
		WithArgs("financas", "userId", "u1", 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}).
			AddRow("doc-1", []byte(`{"name":"Rent","valor":1200,"userId":"u1"}`)).
			AddRow("doc-2", []byte(`{"name":"Food","valor":80,"userId":"u1"}`)))

	s := NewPostgresStore(mock)
	docs, err := s.Find(context.Background(), Query{Path: "financas", Field: "userId", Value: "u1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[0].ID)
	assert.Equal(t, "Rent", docs[0].Data["name"])
	assert.Equal(t, float64(1200), docs[0].Data["valor"])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindUnfiltered(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, data FROM documents WHERE path = \$1 ORDER BY id$`).
		WithArgs("users/u1/metas").
		WillReturnRows(pgxmock.NewRows([]string{"id", "data"}))

	docs, err := NewPostgresStore(mock).Find(context.Background(), Query{Path: "users/u1/metas"})
	require.NoError(t, err)
	assert.Empty(t, docs)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, data FROM documents`).
		WithArgs("transactions").
		WillReturnError(errors.New("connection refused"))

	_, err = NewPostgresStore(mock).Find(context.Background(), Query{Path: "transactions"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query documents")
}

func TestPostgresStore_Set(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO documents`).
		WithArgs("users/u1/goals", "g1", []byte(`{"title":"Carro"}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = NewPostgresStore(mock).Set(context.Background(), "users/u1/goals", "g1", map[string]any{"title": "Carro"})
	require.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`SELECT data FROM documents WHERE path = \$1 AND id = \$2`).
		WithArgs("metas", "missing").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	_, err = NewPostgresStore(mock).Get(context.Background(), "metas", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM documents WHERE path = \$1 AND id = \$2`).
		WithArgs("budgets", "b1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, NewPostgresStore(mock).Delete(context.Background(), "budgets", "b1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
