package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used by PostgresStore
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore implements Store on a single documents table with a JSONB payload
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a new PostgreSQL document store
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

// Find returns documents in the collection matching the query, ordered by id
func (s *PostgresStore) Find(ctx context.Context, q Query) ([]Document, error) {
	var (
		sb   strings.Builder
		args = []any{q.Path}
	)
	sb.WriteString(`SELECT id, data FROM documents WHERE path = $1`)

	if q.Field != "" {
		args = append(args, q.Field, fmt.Sprint(q.Value))
		sb.WriteString(` AND data->>$2 = $3`)
	}
	sb.WriteString(` ORDER BY id`)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document %s/%s: %w", q.Path, id, err)
		}
		docs = append(docs, Document{Path: q.Path, ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// Get returns a single document
func (s *PostgresStore) Get(ctx context.Context, path, id string) (*Document, error) {
	query := `SELECT data FROM documents WHERE path = $1 AND id = $2`

	var raw []byte
	err := s.db.QueryRow(ctx, query, path, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", path, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	data, err := decodeData(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode document %s/%s: %w", path, id, err)
	}
	return &Document{Path: path, ID: id, Data: data}, nil
}

// Set creates or replaces a document
func (s *PostgresStore) Set(ctx context.Context, path, id string, data map[string]any) error {
	if path == "" || id == "" {
		return fmt.Errorf("path and id are required")
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	query := `
		INSERT INTO documents (path, id, data, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (path, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`

	if _, err := s.db.Exec(ctx, query, path, id, raw); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Delete removes a document
func (s *PostgresStore) Delete(ctx context.Context, path, id string) error {
	query := `DELETE FROM documents WHERE path = $1 AND id = $2`
	if _, err := s.db.Exec(ctx, query, path, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func decodeData(raw []byte) (map[string]any, error) {
	data := make(map[string]any)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
