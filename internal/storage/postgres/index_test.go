package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/internal/storage"
	"github.com/mnemolabs/mnemo/internal/storage/postgres"
)

// postgresTestDSN returns the DSN for the test database.
// If POSTGRES_TEST_DSN is not set, tests are skipped.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestIndex(t *testing.T) *postgres.Index {
	t.Helper()

	x, err := postgres.NewIndex(postgresTestDSN(t))
	require.NoError(t, err)
	require.NoError(t, x.EnsureReady(context.Background()))
	require.NoError(t, x.TruncateForTest(context.Background()))

	t.Cleanup(func() {
		x.Close()
	})
	return x
}

func TestUpsertQueryRoundTrip(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	recs := []storage.Record{
		{ID: "a", Vector: []float32{1, 0, 0}, Content: "about go", Metadata: map[string]string{"importance": "0.9"}},
		{ID: "b", Vector: []float32{0, 1, 0}, Content: "about rust"},
		{ID: "c", Vector: []float32{0.9, 0.1, 0}, Content: "also about go"},
	}
	for _, r := range recs {
		require.NoError(t, x.Upsert(ctx, r))
	}

	matches, err := x.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.Equal(t, "c", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "0.9", matches[0].Metadata["importance"])
}

func TestUpsertReplaces(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, storage.Record{ID: "a", Vector: []float32{1, 0}, Content: "old"}))
	require.NoError(t, x.Upsert(ctx, storage.Record{ID: "a", Vector: []float32{0, 1}, Content: "new"}))

	got, err := x.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.Content)

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetNotFound(t *testing.T) {
	x := newTestIndex(t)

	_, err := x.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteMany(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, x.Upsert(ctx, storage.Record{ID: "a", Vector: []float32{1, 0}}))
	require.NoError(t, x.Upsert(ctx, storage.Record{ID: "b", Vector: []float32{0, 1}}))

	require.NoError(t, x.Delete(ctx, "a", "b", "missing"))

	n, err := x.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestUpsertValidation(t *testing.T) {
	x := newTestIndex(t)
	ctx := context.Background()

	err := x.Upsert(ctx, storage.Record{ID: "", Vector: []float32{1}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = x.Upsert(ctx, storage.Record{ID: "a"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
