package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmind/clipmind/chat"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestDB_RecordAndList(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.RecordExchange(ctx, "s1", chat.Exchange{Question: "q1", Answer: "a1", At: at}))
	require.NoError(t, db.RecordExchange(ctx, "s1", chat.Exchange{Question: "q2", Answer: "a2", At: at.Add(time.Minute)}))
	require.NoError(t, db.RecordExchange(ctx, "s2", chat.Exchange{Question: "other", Answer: "x", At: at}))

	exchanges, err := db.ListExchanges(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, exchanges, 2)
	assert.Equal(t, "q1", exchanges[0].Question, "chronological order")
	assert.Equal(t, "a2", exchanges[1].Answer)

	t.Run("Limit", func(t *testing.T) {
		exchanges, err := db.ListExchanges(ctx, "s1", 1)
		require.NoError(t, err)
		assert.Len(t, exchanges, 1)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		exchanges, err := db.ListExchanges(ctx, "nope", 0)
		require.NoError(t, err)
		assert.Empty(t, exchanges)
	})
}

func TestDB_DeleteSession(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.RecordExchange(ctx, "s1", chat.Exchange{Question: "q", Answer: "a", At: time.Now()}))
	require.NoError(t, db.DeleteSession(ctx, "s1"))

	exchanges, err := db.ListExchanges(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, exchanges)

	// Deleting an absent session is a no-op.
	require.NoError(t, db.DeleteSession(ctx, "never-seen"))
}

func TestDB_MigrateIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
}

func TestNewDB_RequiresDSN(t *testing.T) {
	_, err := NewDB("")
	assert.Error(t, err)
}
