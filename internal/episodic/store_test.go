package episodic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/internal/storage"
)

// fakeEmbedder returns canned vectors keyed by text, falling back to a fixed
// vector, and can be made to fail.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) GetModel() string { return "fake" }

var _ llm.EmbeddingGenerator = (*fakeEmbedder)(nil)

func newTestStore(t *testing.T, emb *fakeEmbedder) *Store {
	t.Helper()
	if emb == nil {
		emb = &fakeEmbedder{}
	}
	dsn := filepath.Join(t.TempDir(), "events.db")
	s, err := NewStore(dsn, emb)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// backdate rewrites an event's timestamp directly, bypassing the public API.
func backdate(t *testing.T, s *Store, id string, ts time.Time) {
	t.Helper()
	_, err := s.db.Exec("UPDATE events SET created_at = ? WHERE id = ?", ts, id)
	require.NoError(t, err)
}

func TestStoreEventRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	evCtx := map[string]interface{}{"project": "mnemo"}
	ev, err := s.StoreEvent(ctx, "Release", "shipped v1", evCtx, []string{"release", "milestone"}, 0.8)
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Len(t, ev.Embedding, 3)

	got, err := s.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Release", got.Title)
	assert.Equal(t, "shipped v1", got.Description)
	assert.Equal(t, "mnemo", got.Context["project"])
	assert.Equal(t, []string{"release", "milestone"}, got.Tags)
	assert.InDelta(t, 0.8, got.Importance, 1e-9)
	assert.Equal(t, ev.Embedding, got.Embedding)
}

func TestStoreEventRequiresTitle(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.StoreEvent(context.Background(), "  ", "desc", nil, nil, 0.5)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestStoreEventEmbedFailurePropagates(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("model down")}
	s := newTestStore(t, emb)

	_, err := s.StoreEvent(context.Background(), "Release", "desc", nil, nil, 0.5)
	require.Error(t, err)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalEvents)
}

func TestStoreEventClampsImportance(t *testing.T) {
	s := newTestStore(t, nil)

	ev, err := s.StoreEvent(context.Background(), "Big", "desc", nil, nil, 1.7)
	require.NoError(t, err)
	assert.Equal(t, 1.0, ev.Importance)
}

func TestByTimeRangeInclusive(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	a, err := s.StoreEvent(ctx, "A", "first", nil, nil, 0.5)
	require.NoError(t, err)
	b, err := s.StoreEvent(ctx, "B", "second", nil, nil, 0.5)
	require.NoError(t, err)

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	backdate(t, s, a.ID, base)
	backdate(t, s, b.ID, base.Add(time.Hour))

	// Bounds land exactly on both timestamps; newest comes back first.
	events, err := s.ByTimeRange(ctx, base, base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "B", events[0].Title)
	assert.Equal(t, "A", events[1].Title)

	events, err = s.ByTimeRange(ctx, base, base.Add(time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "B", events[0].Title)

	events, err = s.ByTimeRange(ctx, base.Add(time.Minute), base.Add(30*time.Minute), 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestByTagsAnyMatch(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.StoreEvent(ctx, "A", "a", nil, []string{"release"}, 0.5)
	require.NoError(t, err)
	_, err = s.StoreEvent(ctx, "B", "b", nil, []string{"bug", "urgent"}, 0.5)
	require.NoError(t, err)
	_, err = s.StoreEvent(ctx, "C", "c", nil, nil, 0.5)
	require.NoError(t, err)

	events, err := s.ByTags(ctx, []string{"URGENT", "release"}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	events, err = s.ByTags(ctx, []string{"URGENT", "release"}, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = s.ByTags(ctx, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestByMinImportance(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.StoreEvent(ctx, "Low", "l", nil, nil, 0.2)
	require.NoError(t, err)
	_, err = s.StoreEvent(ctx, "High", "h", nil, nil, 0.9)
	require.NoError(t, err)
	_, err = s.StoreEvent(ctx, "Edge", "e", nil, nil, 0.7)
	require.NoError(t, err)

	events, err := s.ByMinImportance(ctx, 0.7, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "High", events[0].Title)
	assert.Equal(t, "Edge", events[1].Title)

	events, err = s.ByMinImportance(ctx, 0.7, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "High", events[0].Title)
}

func TestRecentSignificantWindow(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	old, err := s.StoreEvent(ctx, "Old", "o", nil, nil, 0.9)
	require.NoError(t, err)
	backdate(t, s, old.ID, time.Now().UTC().AddDate(0, 0, -30))
	_, err = s.StoreEvent(ctx, "Fresh", "f", nil, nil, 0.9)
	require.NoError(t, err)
	_, err = s.StoreEvent(ctx, "Weak", "w", nil, nil, 0.2)
	require.NoError(t, err)

	events, err := s.RecentSignificant(ctx, 7, 0.7, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Fresh", events[0].Title)
}

func TestSearchBySimilarityRanksAndTruncates(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Near: n":  {1, 0, 0},
		"Mid: m":   {0.7, 0.7, 0},
		"Far: f":   {0, 1, 0},
		"go query": {1, 0, 0},
	}}
	s := newTestStore(t, emb)
	ctx := context.Background()

	for _, pair := range [][2]string{{"Near", "n"}, {"Mid", "m"}, {"Far", "f"}} {
		_, err := s.StoreEvent(ctx, pair[0], pair[1], nil, nil, 0.5)
		require.NoError(t, err)
	}

	scored, err := s.SearchBySimilarity(ctx, "go query", 2, 0)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, "Near", scored[0].Event.Title)
	assert.Equal(t, "Mid", scored[1].Event.Title)
	assert.Greater(t, scored[0].Score, scored[1].Score)
}

func TestSearchBySimilarityFiltersBelowFloor(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"Near: n":     {1, 0, 0},
		"Sideways: s": {0, 1, 0},
		"go query":    {1, 0, 0},
	}}
	s := newTestStore(t, emb)
	ctx := context.Background()

	for _, pair := range [][2]string{{"Near", "n"}, {"Sideways", "s"}} {
		_, err := s.StoreEvent(ctx, pair[0], pair[1], nil, nil, 0.5)
		require.NoError(t, err)
	}

	// The orthogonal event scores 0 and must not pass a positive floor.
	scored, err := s.SearchBySimilarity(ctx, "go query", 5, 0.3)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, "Near", scored[0].Event.Title)

	// Without a floor it comes back, ranked last.
	scored, err = s.SearchBySimilarity(ctx, "go query", 5, 0)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, "Sideways", scored[1].Event.Title)
}

func TestSearchBySimilarityEmbedFailureDegrades(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)

	_, err := s.StoreEvent(context.Background(), "A", "a", nil, nil, 0.5)
	require.NoError(t, err)

	emb.err = errors.New("model down")
	scored, err := s.SearchBySimilarity(context.Background(), "query", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestSearchBySimilarityDimensionMismatch(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"short query": {1, 0},
	}}
	s := newTestStore(t, emb)

	_, err := s.StoreEvent(context.Background(), "A", "a", nil, nil, 0.5)
	require.NoError(t, err)

	_, err = s.SearchBySimilarity(context.Background(), "short query", 5, 0)
	assert.ErrorIs(t, err, llm.ErrDimensionMismatch)
}

func TestUpdateImportanceAndSummary(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	ev, err := s.StoreEvent(ctx, "A", "a", nil, nil, 0.5)
	require.NoError(t, err)

	require.NoError(t, s.UpdateImportance(ctx, ev.ID, 0.95))
	require.NoError(t, s.UpdateSummary(ctx, ev.ID, "wrapped up"))

	got, err := s.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.Importance, 1e-9)
	assert.Equal(t, "wrapped up", got.Summary)

	assert.ErrorIs(t, s.UpdateImportance(ctx, "missing", 0.5), storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateSummary(ctx, "missing", "x"), storage.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	ev, err := s.StoreEvent(ctx, "A", "a", nil, nil, 0.5)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, ev.ID))
	_, err = s.GetByID(ctx, ev.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, ev.ID), storage.ErrNotFound)
}

func TestCleanupOldRespectsRetention(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	old, err := s.StoreEvent(ctx, "Old", "o", nil, nil, 0.5)
	require.NoError(t, err)
	kept, err := s.StoreEvent(ctx, "Kept", "k", nil, nil, 0.5)
	require.NoError(t, err)

	now := time.Now().UTC()
	backdate(t, s, old.ID, now.AddDate(0, 0, -400))
	backdate(t, s, kept.ID, now.AddDate(0, 0, -300))

	removed, err := s.CleanupOld(ctx, DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.GetByID(ctx, old.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetByID(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestStatsBuckets(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	for i, imp := range []float64{0.1, 0.2, 0.5, 0.7, 0.9} {
		_, err := s.StoreEvent(ctx, fmt.Sprintf("E%d", i), "d", nil, nil, imp)
		require.NoError(t, err)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, st.TotalEvents)
	assert.Equal(t, 2, st.LowImportance)
	assert.Equal(t, 1, st.MediumImportance)
	assert.Equal(t, 2, st.HighImportance)
	assert.False(t, st.OldestEvent.IsZero())
	assert.False(t, st.NewestEvent.IsZero())
}

func TestStatsEmpty(t *testing.T) {
	s := newTestStore(t, nil)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalEvents)
	assert.True(t, st.OldestEvent.IsZero())
}

func TestEmbeddingBlobRoundTrip(t *testing.T) {
	vec := []float32{0.5, -1.25, 3.75}
	buf := serializeEmbedding(vec)
	require.Len(t, buf, 12)

	back, err := deserializeEmbedding(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, vec, back)

	_, err = deserializeEmbedding(buf, 4)
	assert.Error(t, err)
}
