package longterm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/internal/llm"
	chromemstore "github.com/mnemolabs/mnemo/internal/storage/chromem"
	"github.com/mnemolabs/mnemo/pkg/types"
)

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
	s := NewStore(chromemstore.NewIndex(), emb)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func interaction(id, input, output string, importance float64, ts time.Time) types.Interaction {
	return types.Interaction{
		ID:         id,
		Timestamp:  ts,
		Input:      input,
		Output:     output,
		Importance: importance,
	}
}

func TestStoreAndRetrieveSimilar(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"go tips\n\nuse gofmt":   {1, 0, 0},
		"rust tips\n\nuse cargo": {0, 1, 0},
		"tell me about go":       {1, 0, 0},
	}}
	s := newTestStore(t, emb)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.StoreInteraction(ctx, interaction("a", "go tips", "use gofmt", 0.9, now)))
	require.NoError(t, s.StoreInteraction(ctx, interaction("b", "rust tips", "use cargo", 0.7, now)))

	got, err := s.RetrieveSimilar(ctx, "tell me about go", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "go tips\n\nuse gofmt", got[0].Content)
	assert.InDelta(t, 0.9, got[0].Importance, 1e-9)
	assert.InDelta(t, 1.0, got[0].Score, 1e-5)
}

func TestStoreUsesExistingEmbedding(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("must not be called")}
	s := newTestStore(t, emb)
	ctx := context.Background()

	in := interaction("a", "hi", "hello", 0.8, time.Now().UTC())
	in.Embedding = []float32{0, 0, 1}
	require.NoError(t, s.StoreInteraction(ctx, in))
}

func TestStoreEmbedFailurePropagates(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("model down")}
	s := newTestStore(t, emb)

	err := s.StoreInteraction(context.Background(), interaction("a", "hi", "hello", 0.8, time.Now().UTC()))
	require.Error(t, err)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalInteractions)
}

func TestStorePreservesContext(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	in := interaction("a", "hi", "hello", 0.8, time.Now().UTC())
	in.Context = map[string]interface{}{"project": "mnemo"}
	require.NoError(t, s.StoreInteraction(ctx, in))

	got, err := s.RetrieveSimilar(ctx, "hi", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mnemo", got[0].Context["project"])
}

func TestRetrieveSimilarEmbedFailureDegrades(t *testing.T) {
	emb := &fakeEmbedder{}
	s := newTestStore(t, emb)

	require.NoError(t, s.StoreInteraction(context.Background(),
		interaction("a", "hi", "hello", 0.8, time.Now().UTC())))

	emb.err = errors.New("model down")
	got, err := s.RetrieveSimilar(context.Background(), "query", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveByTimeRangeInclusive(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.StoreInteraction(ctx, interaction("a", "first", "x", 0.7, base)))
	require.NoError(t, s.StoreInteraction(ctx, interaction("b", "second", "y", 0.7, base.Add(time.Hour))))
	require.NoError(t, s.StoreInteraction(ctx, interaction("c", "third", "z", 0.7, base.Add(2*time.Hour))))

	got, err := s.RetrieveByTimeRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestUpdateImportance(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.StoreInteraction(ctx, interaction("a", "hi", "hello", 0.5, time.Now().UTC())))
	require.NoError(t, s.UpdateImportance(ctx, "a", 0.95))

	got, err := s.RetrieveSimilar(ctx, "hi", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.95, got[0].Importance, 1e-9)

	assert.Error(t, s.UpdateImportance(ctx, "missing", 0.5))
}

func TestCleanupOld(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.StoreInteraction(ctx, interaction("old", "a", "b", 0.7, now.AddDate(-3, 0, 0))))
	require.NoError(t, s.StoreInteraction(ctx, interaction("kept", "c", "d", 0.7, now)))

	removed, err := s.CleanupOld(ctx, DefaultRetention)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalInteractions)
}

func TestStats(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.StoreInteraction(ctx, interaction("a", "x", "y", 0.6, base)))
	require.NoError(t, s.StoreInteraction(ctx, interaction("b", "p", "q", 0.8, base.Add(time.Hour))))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalInteractions)
	assert.InDelta(t, 0.7, st.AvgImportance, 1e-9)
	assert.True(t, st.OldestEntry.Equal(base))
	assert.True(t, st.NewestEntry.Equal(base.Add(time.Hour)))
}

func TestStatsEmpty(t *testing.T) {
	s := newTestStore(t, nil)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalInteractions)
}
