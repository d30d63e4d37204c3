// Package postgres implements storage.VectorIndex on PostgreSQL with the
// pgvector extension. Similarity queries run server-side via the cosine
// distance operator, so this backend scales past what the embedded index
// can hold in memory.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/mnemolabs/mnemo/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	embedding  vector,
	dimension  INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Index is a pgvector-backed vector index.
type Index struct {
	db *sql.DB
}

// NewIndex connects to PostgreSQL with the given DSN.
func NewIndex(dsn string) (*Index, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", storage.ErrInvalidInput)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &Index{db: db}, nil
}

// NewIndexWithDB wraps an existing connection, mainly for tests.
func NewIndexWithDB(db *sql.DB) *Index {
	return &Index{db: db}
}

// EnsureReady verifies connectivity, enables the pgvector extension and
// creates the interactions table. Idempotent.
func (x *Index) EnsureReady(ctx context.Context) error {
	if err := x.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := x.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("postgres: enable pgvector: %w", err)
	}
	if _, err := x.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

// Upsert inserts or replaces the record.
func (x *Index) Upsert(ctx context.Context, rec storage.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("%w: record vector is required", storage.ErrInvalidInput)
	}

	meta, err := marshalMeta(rec.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO interactions (id, content, metadata, embedding, dimension, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			dimension = excluded.dimension,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = x.db.ExecContext(ctx, query,
		rec.ID, rec.Content, meta, pgvector.NewVector(rec.Vector), len(rec.Vector))
	if err != nil {
		return fmt.Errorf("postgres: upsert %s: %w", rec.ID, err)
	}
	return nil
}

// Query returns the records nearest to the vector, best first. The score is
// cosine similarity, computed from pgvector's cosine distance.
func (x *Index) Query(ctx context.Context, vector []float32, limit int) ([]storage.Match, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is required", storage.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, content, metadata, embedding,
		       1 - (embedding <=> $1) AS similarity
		FROM interactions
		WHERE dimension = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := x.db.QueryContext(ctx, query, pgvector.NewVector(vector), len(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	var matches []storage.Match
	for rows.Next() {
		var (
			rec   storage.Record
			meta  []byte
			vec   pgvector.Vector
			score float64
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &meta, &vec, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan match: %w", err)
		}
		rec.Vector = vec.Slice()
		if rec.Metadata, err = unmarshalMeta(meta); err != nil {
			return nil, err
		}
		matches = append(matches, storage.Match{Record: rec, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate matches: %w", err)
	}
	if matches == nil {
		matches = []storage.Match{}
	}
	return matches, nil
}

// Get returns the record with the given ID.
func (x *Index) Get(ctx context.Context, id string) (storage.Record, error) {
	var (
		rec  storage.Record
		meta []byte
		vec  pgvector.Vector
	)
	query := `SELECT id, content, metadata, embedding FROM interactions WHERE id = $1`
	err := x.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Content, &meta, &vec)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("postgres: get %s: %w", id, err)
	}
	rec.Vector = vec.Slice()
	if rec.Metadata, err = unmarshalMeta(meta); err != nil {
		return storage.Record{}, err
	}
	return rec, nil
}

// List returns every stored record.
func (x *Index) List(ctx context.Context) ([]storage.Record, error) {
	rows, err := x.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM interactions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		var (
			rec  storage.Record
			meta []byte
			vec  pgvector.Vector
		)
		if err := rows.Scan(&rec.ID, &rec.Content, &meta, &vec); err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		rec.Vector = vec.Slice()
		if rec.Metadata, err = unmarshalMeta(meta); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate records: %w", err)
	}
	if out == nil {
		out = []storage.Record{}
	}
	return out, nil
}

// Delete removes the given IDs; unknown IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := x.db.ExecContext(ctx, `DELETE FROM interactions WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	return nil
}

// Count returns the number of stored records.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// Close closes the underlying connection pool.
func (x *Index) Close() error {
	return x.db.Close()
}

func marshalMeta(meta map[string]string) ([]byte, error) {
	if meta == nil {
		meta = map[string]string{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal metadata: %w", err)
	}
	return b, nil
}

func unmarshalMeta(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
	}
	return meta, nil
}

var _ storage.VectorIndex = (*Index)(nil)
