package domain

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemates/realtime/db"
)

func sqliteRepo(t *testing.T) *SQLiteNotifications {
	t.Helper()
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewSQLiteNotifications(NewFake(), conn)
}

func TestSQLiteNotifications(t *testing.T) {
	ctx := context.Background()
	repo := sqliteRepo(t)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.CreateNotification(ctx, &Notification{
		ID: "n-1", UserID: "alice", Kind: "reminder",
		Title: "Tee time tomorrow", Body: "Old Links at 9",
		Data: []byte(`{"opportunityId":"opp-1"}`), CreatedAt: now,
	}))
	require.NoError(t, repo.CreateNotification(ctx, &Notification{
		ID: "n-2", UserID: "alice", Kind: "digest",
		Title: "Weekly digest", Body: "3 matches", CreatedAt: now.Add(time.Minute),
	}))
	require.NoError(t, repo.CreateNotification(ctx, &Notification{
		ID: "n-3", UserID: "bob", Kind: "reminder",
		Title: "Tee time tomorrow", Body: "Old Links at 9", CreatedAt: now,
	}))

	t.Run("list is per user, newest first", func(t *testing.T) {
		got, err := repo.ListNotifications(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "n-2", got[0].ID)
		assert.Equal(t, "n-1", got[1].ID)
		assert.JSONEq(t, `{"opportunityId":"opp-1"}`, string(got[1].Data))
	})

	t.Run("empty ID is rejected", func(t *testing.T) {
		err := repo.CreateNotification(ctx, &Notification{UserID: "alice"})
		assert.Error(t, err)
	})

	t.Run("limit caps the result", func(t *testing.T) {
		got, err := repo.ListNotifications(ctx, "alice", 1)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestSQLiteDeleteReadNotificationsBefore(t *testing.T) {
	ctx := context.Background()
	repo := sqliteRepo(t)

	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	require.NoError(t, repo.CreateNotification(ctx, &Notification{
		ID: "n-old-read", UserID: "alice", Kind: "reminder",
		Title: "t", Body: "b", Read: true, CreatedAt: old,
	}))
	require.NoError(t, repo.CreateNotification(ctx, &Notification{
		ID: "n-old-unread", UserID: "alice", Kind: "reminder",
		Title: "t", Body: "b", Read: false, CreatedAt: old,
	}))
	require.NoError(t, repo.CreateNotification(ctx, &Notification{
		ID: "n-new-read", UserID: "alice", Kind: "reminder",
		Title: "t", Body: "b", Read: true, CreatedAt: time.Now().UTC(),
	}))

	n, err := repo.DeleteReadNotificationsBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := repo.ListNotifications(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestSQLiteDelegatesOtherReads(t *testing.T) {
	repo := sqliteRepo(t)
	base := repo.Repository.(*Fake)
	base.AddUser(&User{ID: "alice", Name: "Alice", Active: true})

	u, err := repo.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
}
