// Package episodic persists significant events to SQLite. Events are the
// middle memory tier: richer than a raw interaction, narrower than the full
// durable store, and queryable by time, tag, importance and similarity.
package episodic

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/internal/storage"
	"github.com/mnemolabs/mnemo/pkg/types"
)

// DefaultRetention is how long events are kept before CleanupOld removes them.
const DefaultRetention = 365 * 24 * time.Hour

// Store is a SQLite-backed episodic event store.
type Store struct {
	db       *sql.DB
	embedder llm.EmbeddingGenerator
}

// ScoredEvent pairs an event with its similarity to a query.
type ScoredEvent struct {
	Event types.EpisodicEvent
	Score float64
}

// Stats summarizes the stored events.
type Stats struct {
	TotalEvents      int       `json:"total_events"`
	LowImportance    int       `json:"low_importance"`    // importance < 0.3
	MediumImportance int       `json:"medium_importance"` // 0.3 <= importance < 0.7
	HighImportance   int       `json:"high_importance"`   // importance >= 0.7
	OldestEvent      time.Time `json:"oldest_event"`
	NewestEvent      time.Time `json:"newest_event"`
}

// NewStore opens (or creates) the event database at dsn and applies the
// schema. The embedder is used to vectorize events for similarity search.
func NewStore(dsn string, embedder llm.EmbeddingGenerator) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("episodic: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("episodic: failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("episodic: failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("episodic: failed to create schema: %w", err)
	}

	return &Store{db: db, embedder: embedder}, nil
}

// StoreEvent records a new event. The event text ("title: description") is
// embedded before insert; an embedding failure aborts the store so that no
// unsearchable event is persisted.
func (s *Store) StoreEvent(ctx context.Context, title, description string, evCtx map[string]interface{}, tags []string, importance float64) (types.EpisodicEvent, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return types.EpisodicEvent{}, fmt.Errorf("%w: event title is required", storage.ErrInvalidInput)
	}

	embedding, err := s.embedder.Embed(ctx, title+": "+description)
	if err != nil {
		return types.EpisodicEvent{}, fmt.Errorf("episodic: embed event: %w", err)
	}

	ev := types.EpisodicEvent{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().UTC(),
		Title:       title,
		Description: description,
		Context:     evCtx,
		Tags:        tags,
		Importance:  clamp01(importance),
		Embedding:   embedding,
	}

	ctxJSON, err := json.Marshal(contextOrEmpty(ev.Context))
	if err != nil {
		return types.EpisodicEvent{}, fmt.Errorf("episodic: marshal context: %w", err)
	}
	tagsJSON, err := json.Marshal(tagsOrEmpty(ev.Tags))
	if err != nil {
		return types.EpisodicEvent{}, fmt.Errorf("episodic: marshal tags: %w", err)
	}

	query := `
		INSERT INTO events (id, created_at, title, description, context_json, tags_json, importance, summary, embedding, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.Timestamp, ev.Title, ev.Description,
		string(ctxJSON), string(tagsJSON), ev.Importance, ev.Summary,
		serializeEmbedding(embedding), len(embedding))
	if err != nil {
		return types.EpisodicEvent{}, fmt.Errorf("episodic: insert event: %w", err)
	}
	return ev, nil
}

// GetByID returns the event with the given ID.
func (s *Store) GetByID(ctx context.Context, id string) (types.EpisodicEvent, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" FROM events WHERE id = ?", id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.EpisodicEvent{}, storage.ErrNotFound
	}
	if err != nil {
		return types.EpisodicEvent{}, err
	}
	return ev, nil
}

// ByTimeRange returns up to limit events with timestamps in [start, end],
// newest first. A limit <= 0 returns everything in range.
func (s *Store) ByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]types.EpisodicEvent, error) {
	events, err := s.queryEvents(ctx,
		selectColumns+" FROM events WHERE created_at >= ? AND created_at <= ? ORDER BY created_at DESC",
		start, end)
	if err != nil {
		return nil, err
	}
	return truncateEvents(events, limit), nil
}

// ByTags returns up to limit events carrying at least one of the given tags,
// newest first. Tag matching happens in-process since tags live in a JSON
// column.
func (s *Store) ByTags(ctx context.Context, tags []string, limit int) ([]types.EpisodicEvent, error) {
	if len(tags) == 0 {
		return []types.EpisodicEvent{}, nil
	}

	wanted := make(map[string]bool, len(tags))
	for _, tag := range tags {
		wanted[strings.ToLower(strings.TrimSpace(tag))] = true
	}

	all, err := s.queryEvents(ctx, selectColumns+" FROM events ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}

	matched := make([]types.EpisodicEvent, 0)
	for _, ev := range all {
		for _, tag := range ev.Tags {
			if wanted[strings.ToLower(tag)] {
				matched = append(matched, ev)
				break
			}
		}
	}
	return truncateEvents(matched, limit), nil
}

// ByMinImportance returns up to limit events with importance >= min, most
// important first.
func (s *Store) ByMinImportance(ctx context.Context, min float64, limit int) ([]types.EpisodicEvent, error) {
	events, err := s.queryEvents(ctx,
		selectColumns+" FROM events WHERE importance >= ? ORDER BY importance DESC, created_at DESC",
		min)
	if err != nil {
		return nil, err
	}
	return truncateEvents(events, limit), nil
}

// RecentSignificant returns up to limit events from the last days days whose
// importance is at or above minImportance, newest first.
func (s *Store) RecentSignificant(ctx context.Context, days int, minImportance float64, limit int) ([]types.EpisodicEvent, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 {
		limit = 10
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	return s.queryEvents(ctx,
		selectColumns+" FROM events WHERE created_at >= ? AND importance >= ? ORDER BY created_at DESC LIMIT ?",
		cutoff, minImportance, limit)
}

// SearchBySimilarity ranks events by cosine similarity against the query
// text, keeping only events at or above minSimilarity. A failed query
// embedding degrades to an empty result; a stored embedding of a different
// dimension is a hard error.
func (s *Store) SearchBySimilarity(ctx context.Context, query string, topK int, minSimilarity float64) ([]ScoredEvent, error) {
	if topK <= 0 {
		topK = 5
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("episodic: query embedding failed, returning no results: %v", err)
		return []ScoredEvent{}, nil
	}

	all, err := s.queryEvents(ctx, selectColumns+" FROM events")
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredEvent, 0, len(all))
	for _, ev := range all {
		if len(ev.Embedding) == 0 {
			continue
		}
		sim, err := llm.CosineSimilarity(queryVec, ev.Embedding)
		if err != nil {
			return nil, fmt.Errorf("episodic: compare event %s: %w", ev.ID, err)
		}
		if sim < minSimilarity {
			continue
		}
		scored = append(scored, ScoredEvent{Event: ev, Score: sim})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Event.ID < scored[j].Event.ID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// UpdateImportance sets the importance of an event, clamped to [0, 1].
func (s *Store) UpdateImportance(ctx context.Context, id string, importance float64) error {
	return s.updateField(ctx, id, "importance", clamp01(importance))
}

// UpdateSummary attaches a summary to an event.
func (s *Store) UpdateSummary(ctx context.Context, id, summary string) error {
	return s.updateField(ctx, id, "summary", summary)
}

// Delete removes an event.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("episodic: delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("episodic: delete event: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CleanupOld deletes events older than the retention window and returns how
// many were removed.
func (s *Store) CleanupOld(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := time.Now().UTC().Add(-retention)

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("episodic: cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("episodic: cleanup: %w", err)
	}
	return int(n), nil
}

// Stats returns aggregate counts bucketed by importance.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN importance < 0.3 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN importance >= 0.3 AND importance < 0.7 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN importance >= 0.7 THEN 1 ELSE 0 END), 0)
		FROM events
	`
	err := s.db.QueryRowContext(ctx, query).Scan(
		&st.TotalEvents, &st.LowImportance, &st.MediumImportance, &st.HighImportance)
	if err != nil {
		return Stats{}, fmt.Errorf("episodic: stats: %w", err)
	}
	if st.TotalEvents == 0 {
		return st, nil
	}

	// MIN/MAX strip the column's declared type, which breaks time scanning
	// with the sqlite driver, so the bounds come from ordered selects.
	err = s.db.QueryRowContext(ctx, "SELECT created_at FROM events ORDER BY created_at ASC LIMIT 1").
		Scan(&st.OldestEvent)
	if err != nil {
		return Stats{}, fmt.Errorf("episodic: stats range: %w", err)
	}
	err = s.db.QueryRowContext(ctx, "SELECT created_at FROM events ORDER BY created_at DESC LIMIT 1").
		Scan(&st.NewestEvent)
	if err != nil {
		return Stats{}, fmt.Errorf("episodic: stats range: %w", err)
	}
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) updateField(ctx context.Context, id, column string, value interface{}) error {
	res, err := s.db.ExecContext(ctx, "UPDATE events SET "+column+" = ? WHERE id = ?", value, id)
	if err != nil {
		return fmt.Errorf("episodic: update %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("episodic: update %s: %w", column, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const selectColumns = "SELECT id, created_at, title, description, context_json, tags_json, importance, summary, embedding, dimension"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (types.EpisodicEvent, error) {
	var (
		ev       types.EpisodicEvent
		ctxJSON  string
		tagsJSON string
		blob     []byte
		dim      int
	)
	err := row.Scan(&ev.ID, &ev.Timestamp, &ev.Title, &ev.Description,
		&ctxJSON, &tagsJSON, &ev.Importance, &ev.Summary, &blob, &dim)
	if err != nil {
		return types.EpisodicEvent{}, err
	}

	if err := json.Unmarshal([]byte(ctxJSON), &ev.Context); err != nil {
		return types.EpisodicEvent{}, fmt.Errorf("episodic: unmarshal context for %s: %w", ev.ID, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &ev.Tags); err != nil {
		return types.EpisodicEvent{}, fmt.Errorf("episodic: unmarshal tags for %s: %w", ev.ID, err)
	}

	if dim > 0 {
		ev.Embedding, err = deserializeEmbedding(blob, dim)
		if err != nil {
			return types.EpisodicEvent{}, fmt.Errorf("episodic: embedding for %s: %w", ev.ID, err)
		}
	}
	return ev, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...interface{}) ([]types.EpisodicEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("episodic: query events: %w", err)
	}
	defer rows.Close()

	events := make([]types.EpisodicEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("episodic: iterate events: %w", err)
	}
	return events, nil
}

// serializeEmbedding converts a float32 slice to little-endian bytes.
func serializeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return []byte{}
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeEmbedding converts little-endian bytes back to float32s.
// dimension validates the buffer size.
func deserializeEmbedding(buf []byte, dimension int) ([]float32, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension: %d", dimension)
	}
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", dimension*4, len(buf))
	}
	embedding := make([]float32, dimension)
	for i := 0; i < dimension; i++ {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}

func truncateEvents(events []types.EpisodicEvent, limit int) []types.EpisodicEvent {
	if limit > 0 && len(events) > limit {
		return events[:limit]
	}
	return events
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func contextOrEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
