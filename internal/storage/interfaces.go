// Package storage defines the vector index contract the long-term memory
// tier is built on, plus the shared error sentinels used across tiers.
//
// The interface covers semantic operations only (ensure, upsert, query by
// vector, scan, delete); the wire format of any particular backend is the
// backend's concern. Two implementations ship with the module: an embedded
// chromem-go index and a PostgreSQL/pgvector index.
package storage

import "context"

// Record is one vector-indexed entry.
type Record struct {
	// ID is the caller-assigned unique key (interaction ID).
	ID string

	// Vector is the embedding for the record's content.
	Vector []float32

	// Content is the raw text the vector was computed from.
	Content string

	// Metadata holds flat string metadata (importance, timestamps, serialized
	// context). Backends persist it verbatim.
	Metadata map[string]string
}

// Match is a query hit with its similarity score in [-1, 1] (cosine).
type Match struct {
	Record
	Score float64
}

// VectorIndex is the minimal nearest-neighbor store contract.
type VectorIndex interface {
	// EnsureReady creates the backing schema or collection if needed.
	// Idempotent; safe to call repeatedly.
	EnsureReady(ctx context.Context) error

	// Upsert inserts or replaces a record by ID.
	Upsert(ctx context.Context, rec Record) error

	// Query returns up to limit records nearest to the vector, best first.
	Query(ctx context.Context, vector []float32, limit int) ([]Match, error)

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// List returns every stored record. Intended for retention scans, not
	// hot paths.
	List(ctx context.Context) ([]Record, error)

	// Delete removes the given IDs. Missing IDs are ignored.
	Delete(ctx context.Context, ids ...string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
