// Package chromem implements storage.VectorIndex on chromem-go, a pure-Go
// embedded vector database. Nothing touches disk or network, which makes it
// the default backend for single-process deployments and tests.
package chromem

import (
	"context"
	"fmt"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/mnemolabs/mnemo/internal/storage"
)

// collectionName is the single collection all interaction vectors live in.
const collectionName = "interactions"

// Index is a chromem-backed vector index. chromem answers nearest-neighbor
// queries; a side map keeps the authoritative copy of each record so that
// scans, lookups and metadata updates don't depend on chromem's query-only
// surface.
type Index struct {
	mu         sync.RWMutex
	db         *chromemgo.DB
	collection *chromemgo.Collection
	records    map[string]storage.Record
}

// NewIndex creates an empty in-process index.
func NewIndex() *Index {
	return &Index{
		db:      chromemgo.NewDB(),
		records: make(map[string]storage.Record),
	}
}

// EnsureReady creates the interactions collection. Idempotent.
func (x *Index) EnsureReady(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.collection != nil {
		return nil
	}
	col, err := x.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("chromem: create collection: %w", err)
	}
	x.collection = col
	return nil
}

// Upsert inserts or replaces the record. The chromem document is removed and
// re-added since chromem has no in-place update.
func (x *Index) Upsert(ctx context.Context, rec storage.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record ID is required", storage.ErrInvalidInput)
	}
	if len(rec.Vector) == 0 {
		return fmt.Errorf("%w: record vector is required", storage.ErrInvalidInput)
	}
	if err := x.EnsureReady(ctx); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.records[rec.ID]; exists {
		if err := x.collection.Delete(ctx, nil, nil, rec.ID); err != nil {
			return fmt.Errorf("chromem: replace %s: %w", rec.ID, err)
		}
	}

	doc := chromemgo.Document{
		ID:        rec.ID,
		Content:   rec.Content,
		Embedding: rec.Vector,
		Metadata:  cloneMeta(rec.Metadata),
	}
	if err := x.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem: add document: %w", err)
	}

	x.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Query returns the records nearest to the vector, best first. chromem
// rejects result counts above the collection size, so the limit is clamped.
func (x *Index) Query(ctx context.Context, vector []float32, limit int) ([]storage.Match, error) {
	if err := x.EnsureReady(ctx); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	if limit > len(x.records) {
		limit = len(x.records)
	}
	if limit == 0 {
		return []storage.Match{}, nil
	}

	results, err := x.collection.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: query: %w", err)
	}

	matches := make([]storage.Match, 0, len(results))
	for _, res := range results {
		rec, ok := x.records[res.ID]
		if !ok {
			continue
		}
		matches = append(matches, storage.Match{
			Record: cloneRecord(rec),
			Score:  float64(res.Similarity),
		})
	}
	return matches, nil
}

// Get returns the record with the given ID.
func (x *Index) Get(ctx context.Context, id string) (storage.Record, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	rec, ok := x.records[id]
	if !ok {
		return storage.Record{}, storage.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// List returns every stored record.
func (x *Index) List(ctx context.Context) ([]storage.Record, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]storage.Record, 0, len(x.records))
	for _, rec := range x.records {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// Delete removes the given IDs; unknown IDs are ignored.
func (x *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.EnsureReady(ctx); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	for _, id := range ids {
		if _, ok := x.records[id]; !ok {
			continue
		}
		if err := x.collection.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("chromem: delete %s: %w", id, err)
		}
		delete(x.records, id)
	}
	return nil
}

// Count returns the number of stored records.
func (x *Index) Count(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.records), nil
}

// Close is a no-op: chromem keeps everything in memory.
func (x *Index) Close() error {
	return nil
}

func cloneMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func cloneRecord(rec storage.Record) storage.Record {
	out := rec
	out.Vector = make([]float32, len(rec.Vector))
	copy(out.Vector, rec.Vector)
	out.Metadata = cloneMeta(rec.Metadata)
	return out
}

var _ storage.VectorIndex = (*Index)(nil)
