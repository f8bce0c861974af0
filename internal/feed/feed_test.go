package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nudger/internal/domain"
	"nudger/internal/storage"
)

func newTestFeed(t *testing.T) *SQLFeed {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.Config{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(ctx, db))
	return NewSQLFeed(db)
}

func TestRecentActionsWindowAndOrder(t *testing.T) {
	ctx := context.Background()
	f := newTestFeed(t)
	base := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

	_, err := f.AddAction(ctx, domain.GroupAction{ID: "old", GroupID: "g1", Type: "prayer", Creator: "a", Created: base.Add(-10 * 24 * time.Hour)})
	require.NoError(t, err)
	_, err = f.AddAction(ctx, domain.GroupAction{ID: "a1", GroupID: "g1", Type: "prayer", Creator: "a", Created: base.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = f.AddAction(ctx, domain.GroupAction{ID: "a2", GroupID: "g1", Type: "gratitude", Creator: "b", ViewerIDs: []string{"u1"}, Created: base})
	require.NoError(t, err)
	_, err = f.AddAction(ctx, domain.GroupAction{ID: "other", GroupID: "g2", Type: "prayer", Creator: "c", Created: base})
	require.NoError(t, err)

	got, err := f.RecentActions(ctx, "g1", base.Add(-7*24*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, "a1", got[1].ID)
	assert.True(t, got[0].ViewedBy("u1"))
	assert.Empty(t, got[1].ViewerIDs)

	limited, err := f.RecentActions(ctx, "g1", base.Add(-30*24*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUserDirectory(t *testing.T) {
	ctx := context.Background()
	f := newTestFeed(t)

	_, err := f.User(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, f.PutUser(ctx, domain.User{UID: "u1", Name: "Anna", Language: "de"}))
	require.NoError(t, f.PutUser(ctx, domain.User{UID: "u1", Name: "Anna K", Language: "en"}))

	u, err := f.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.User{UID: "u1", Name: "Anna K", Language: "en"}, u)
}
