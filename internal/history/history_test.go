package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicnet/weeklymatch/internal/database"
	"github.com/civicnet/weeklymatch/internal/database/dbtest"
	apperrors "github.com/civicnet/weeklymatch/internal/errors"
)

func TestPairKey_IsSymmetric(t *testing.T) {
	assert.Equal(t, "alice:bob", PairKey("alice", "bob"))
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
}

func TestPair_IdsContainingSeparator(t *testing.T) {
	assert.Equal(t, NewPair("a", "b"), NewPair("b", "a"))
	assert.NotEqual(t, NewPair("a:b", "c"), NewPair("a", "b:c"))

	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	snap := NewSnapshot([]Record{{UserA: "a:b", UserB: "c", LastMatchedAt: at}})
	_, ok := snap.LastMatchedAt("a", "b:c")
	assert.False(t, ok, "a different pair with the same label is not in cooldown")
	got, ok := snap.LastMatchedAt("c", "a:b")
	require.True(t, ok)
	assert.Equal(t, at, got)

	store := NewMemoryStore()
	require.NoError(t, store.RecordMatch(context.Background(), "a:b", "c", at))
	last, err := store.GetLastMatchedAt(context.Background(), "a", "b:c")
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestSnapshot(t *testing.T) {
	t1 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	snap := NewSnapshot([]Record{
		{UserA: "a", UserB: "b", LastMatchedAt: t1},
		{UserA: "b", UserB: "a", LastMatchedAt: t2},
	})

	got, ok := snap.LastMatchedAt("b", "a")
	require.True(t, ok)
	assert.Equal(t, t2, got)

	_, ok = snap.LastMatchedAt("a", "c")
	assert.False(t, ok)
}

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(14 * 24 * time.Hour)

	got, err := store.GetLastMatchedAt(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.RecordMatch(ctx, "bob", "alice", t1))
	require.NoError(t, store.RecordMatch(ctx, "alice", "bob", t2))

	got, err = store.GetLastMatchedAt(ctx, "bob", "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, t2.Equal(*got))

	records, err := store.ListMatchedSince(ctx, t1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].UserA)
	assert.Equal(t, "bob", records[0].UserB)
	assert.Equal(t, 2, records[0].MatchCount)
	assert.True(t, t2.Equal(records[0].LastMatchedAt))

	records, err = store.ListMatchedSince(ctx, t2.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, records)

	err = store.RecordMatch(ctx, "alice", "alice", t2)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)
	assert.Len(t, store.Records(), 1)
}

func TestMemoryStore_InjectedFailure(t *testing.T) {
	store := NewMemoryStore()
	store.ListErr = assert.AnError

	_, err := LoadSnapshot(context.Background(), store, time.Now())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPostgresStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pg, err := dbtest.StartPostgres(ctx)
	require.NoError(t, err)
	defer pg.Stop(ctx)

	db, err := database.Open(ctx, database.Config{URL: pg.URL(), DBName: "weeklymatch"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	exerciseStore(t, NewPostgresStore(db.DB))

	var rows int
	require.NoError(t, db.GetContext(ctx, &rows, `SELECT count(*) FROM match_history`))
	assert.Equal(t, 1, rows)
}
