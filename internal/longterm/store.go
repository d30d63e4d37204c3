// Package longterm keeps the durable, vector-indexed record of promoted
// interactions. It sits on top of a storage.VectorIndex, so the same code
// serves the embedded chromem backend and PostgreSQL with pgvector.
package longterm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/internal/storage"
	"github.com/mnemolabs/mnemo/pkg/types"
)

// DefaultRetention is how long promoted interactions are kept before
// CleanupOld removes them.
const DefaultRetention = 730 * 24 * time.Hour

// Metadata keys attached to every stored record.
const (
	metaImportance = "importance"
	metaContext    = "context"
	metaTimestamp  = "timestamp"
)

// Store is the durable interaction store.
type Store struct {
	index    storage.VectorIndex
	embedder llm.EmbeddingGenerator
}

// Retrieved is a stored interaction returned from a similarity query.
type Retrieved struct {
	ID         string
	Content    string
	Score      float64
	Importance float64
	Timestamp  time.Time
	Context    map[string]interface{}
}

// Stats summarizes the durable store.
type Stats struct {
	TotalInteractions int       `json:"total_interactions"`
	AvgImportance     float64   `json:"avg_importance"`
	OldestEntry       time.Time `json:"oldest_entry"`
	NewestEntry       time.Time `json:"newest_entry"`
}

// NewStore wires the durable store to a vector index and an embedder.
func NewStore(index storage.VectorIndex, embedder llm.EmbeddingGenerator) *Store {
	return &Store{index: index, embedder: embedder}
}

// Initialize prepares the underlying index.
func (s *Store) Initialize(ctx context.Context) error {
	return s.index.EnsureReady(ctx)
}

// StoreInteraction persists an interaction. When the interaction carries no
// embedding, one is generated from its text; a failed embedding aborts the
// store so that nothing unsearchable is persisted.
func (s *Store) StoreInteraction(ctx context.Context, interaction types.Interaction) error {
	if interaction.ID == "" {
		return fmt.Errorf("%w: interaction ID is required", storage.ErrInvalidInput)
	}

	content := interactionText(interaction)
	vector := interaction.Embedding
	if len(vector) == 0 {
		var err error
		vector, err = s.embedder.Embed(ctx, content)
		if err != nil {
			return fmt.Errorf("longterm: embed interaction: %w", err)
		}
	}

	meta := map[string]string{
		metaImportance: strconv.FormatFloat(interaction.Importance, 'f', -1, 64),
		metaTimestamp:  interaction.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if len(interaction.Context) > 0 {
		ctxJSON, err := json.Marshal(interaction.Context)
		if err != nil {
			return fmt.Errorf("longterm: marshal context: %w", err)
		}
		meta[metaContext] = string(ctxJSON)
	}

	rec := storage.Record{
		ID:       interaction.ID,
		Vector:   vector,
		Content:  content,
		Metadata: meta,
	}
	if err := s.index.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("longterm: store interaction: %w", err)
	}
	return nil
}

// RetrieveSimilar returns the stored interactions nearest to the query text,
// best first. A failed query embedding degrades to an empty result.
func (s *Store) RetrieveSimilar(ctx context.Context, query string, limit int) ([]Retrieved, error) {
	if limit <= 0 {
		limit = 3
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("longterm: query embedding failed, returning no results: %v", err)
		return []Retrieved{}, nil
	}

	matches, err := s.index.Query(ctx, vector, limit)
	if err != nil {
		log.Printf("longterm: similarity query failed, returning no results: %v", err)
		return []Retrieved{}, nil
	}

	out := make([]Retrieved, 0, len(matches))
	for _, m := range matches {
		out = append(out, fromRecord(m.Record, m.Score))
	}
	return out, nil
}

// RetrieveByTimeRange returns stored interactions with timestamps in
// [start, end], oldest first. Backend failures degrade to an empty result.
func (s *Store) RetrieveByTimeRange(ctx context.Context, start, end time.Time) ([]Retrieved, error) {
	records, err := s.index.List(ctx)
	if err != nil {
		log.Printf("longterm: list interactions failed, returning no results: %v", err)
		return []Retrieved{}, nil
	}

	out := make([]Retrieved, 0)
	for _, rec := range records {
		r := fromRecord(rec, 0)
		if r.Timestamp.IsZero() {
			continue
		}
		if r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateImportance rewrites the importance of a stored interaction. An
// unknown id surfaces as storage.ErrNotFound; other backend failures are
// logged and swallowed.
func (s *Store) UpdateImportance(ctx context.Context, id string, importance float64) error {
	rec, err := s.index.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("longterm: update importance: %w", err)
	}
	if err != nil {
		log.Printf("longterm: update importance for %s failed: %v", id, err)
		return nil
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]string{}
	}
	rec.Metadata[metaImportance] = strconv.FormatFloat(importance, 'f', -1, 64)
	if err := s.index.Upsert(ctx, rec); err != nil {
		log.Printf("longterm: update importance for %s failed: %v", id, err)
		return nil
	}
	return nil
}

// CleanupOld removes interactions older than the retention window and
// returns how many were removed. Records without a parseable timestamp are
// left alone.
func (s *Store) CleanupOld(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)

	records, err := s.index.List(ctx)
	if err != nil {
		log.Printf("longterm: cleanup list failed, skipping sweep: %v", err)
		return 0, nil
	}

	var expired []string
	for _, rec := range records {
		ts, err := time.Parse(time.RFC3339Nano, rec.Metadata[metaTimestamp])
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			expired = append(expired, rec.ID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := s.index.Delete(ctx, expired...); err != nil {
		log.Printf("longterm: cleanup delete failed: %v", err)
		return 0, nil
	}
	return len(expired), nil
}

// Stats returns aggregate information about the stored interactions. Backend
// failures degrade to zero-valued stats.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	records, err := s.index.List(ctx)
	if err != nil {
		log.Printf("longterm: stats listing failed, returning zero stats: %v", err)
		return Stats{}, nil
	}

	st := Stats{TotalInteractions: len(records)}
	if len(records) == 0 {
		return st, nil
	}

	var sum float64
	for _, rec := range records {
		r := fromRecord(rec, 0)
		sum += r.Importance
		if r.Timestamp.IsZero() {
			continue
		}
		if st.OldestEntry.IsZero() || r.Timestamp.Before(st.OldestEntry) {
			st.OldestEntry = r.Timestamp
		}
		if r.Timestamp.After(st.NewestEntry) {
			st.NewestEntry = r.Timestamp
		}
	}
	st.AvgImportance = sum / float64(len(records))
	return st, nil
}

// Close releases the underlying index.
func (s *Store) Close() error {
	return s.index.Close()
}

func fromRecord(rec storage.Record, score float64) Retrieved {
	r := Retrieved{
		ID:      rec.ID,
		Content: rec.Content,
		Score:   score,
	}
	if v, err := strconv.ParseFloat(rec.Metadata[metaImportance], 64); err == nil {
		r.Importance = v
	}
	if ts, err := time.Parse(time.RFC3339Nano, rec.Metadata[metaTimestamp]); err == nil {
		r.Timestamp = ts
	}
	if raw, ok := rec.Metadata[metaContext]; ok {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			r.Context = parsed
		}
	}
	return r
}

func interactionText(interaction types.Interaction) string {
	return interaction.Input + "\n\n" + interaction.Output
}
