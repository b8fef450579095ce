package jobs

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemates/realtime/db"
	"github.com/teemates/realtime/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewStore(conn)
}

func TestStoreCreateGet(t *testing.T) {
	store := openTestStore(t)

	job := NewJob(QueueMatching, TaskMatchingOpportunity,
		MarshalPayload(MatchingPayload{OpportunityID: "opp-1"}),
		WithKey("match:opp-1"),
		WithCorrelationID("corr-1"),
	)
	require.NoError(t, store.CreateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, QueueMatching, got.Queue)
	assert.Equal(t, TaskMatchingOpportunity, got.Name)
	assert.Equal(t, "match:opp-1", got.Key)
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Equal(t, StatusQueued, got.Status)
	assert.JSONEq(t, `{"opportunity_id":"opp-1"}`, string(got.Payload))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetJob("nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreUpdate(t *testing.T) {
	store := openTestStore(t)

	job := NewJob(QueueReminders, TaskReminderOpportunity, nil)
	require.NoError(t, store.CreateJob(job))

	job.Start()
	job.Complete()
	require.NoError(t, store.UpdateJob(job))

	got, err := store.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.CompletedAt)
}

func TestStoreDueJobs(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()

	due := NewJob(QueueNotifications, TaskNotificationDeliver, nil)
	future := NewJob(QueueNotifications, TaskNotificationDeliver, nil, WithDelay(time.Hour))
	otherQueue := NewJob(QueueCleanup, TaskCleanupCache, nil)
	for _, j := range []*Job{due, future, otherQueue} {
		require.NoError(t, store.CreateJob(j))
	}

	jobs, err := store.DueJobs(QueueNotifications, now, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, due.ID, jobs[0].ID)

	jobs, err = store.DueJobs(QueueNotifications, now.Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "delayed job becomes due once its run time passes")
}

func TestStoreFindActiveJobByKey(t *testing.T) {
	store := openTestStore(t)

	job := NewJob(QueueMatching, TaskMatchingOpportunity, nil, WithKey("match:opp-1"))
	require.NoError(t, store.CreateJob(job))

	found, err := store.FindActiveJobByKey(QueueMatching, "match:opp-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, job.ID, found.ID)

	t.Run("other queue does not match", func(t *testing.T) {
		found, err := store.FindActiveJobByKey(QueueCleanup, "match:opp-1")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("terminal job releases the key", func(t *testing.T) {
		job.Start()
		job.Complete()
		require.NoError(t, store.UpdateJob(job))

		found, err := store.FindActiveJobByKey(QueueMatching, "match:opp-1")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestStoreRequeueOrphans(t *testing.T) {
	store := openTestStore(t)

	orphan := NewJob(QueueMatching, TaskMatchingOpportunity, nil)
	orphan.Start()
	require.NoError(t, store.CreateJob(orphan))

	settled := NewJob(QueueMatching, TaskMatchingOpportunity, nil)
	require.NoError(t, store.CreateJob(settled))

	n, err := store.RequeueOrphans()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetJob(orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status)
	assert.Equal(t, 1, got.Attempts, "the interrupted attempt stays counted")
}

func TestStoreCleanupOldJobs(t *testing.T) {
	store := openTestStore(t)

	old := NewJob(QueueCleanup, TaskCleanupCache, nil)
	old.Start()
	old.Complete()
	past := time.Now().Add(-48 * time.Hour)
	old.CompletedAt = &past
	require.NoError(t, store.CreateJob(old))
	require.NoError(t, store.UpdateJob(old))

	fresh := NewJob(QueueCleanup, TaskCleanupCache, nil)
	fresh.Start()
	fresh.Complete()
	require.NoError(t, store.CreateJob(fresh))
	require.NoError(t, store.UpdateJob(fresh))

	active := NewJob(QueueCleanup, TaskCleanupCache, nil)
	require.NoError(t, store.CreateJob(active))

	n, err := store.CleanupOldJobs(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetJob(old.ID)
	assert.True(t, errors.IsNotFoundError(err))
	_, err = store.GetJob(fresh.ID)
	assert.NoError(t, err)
}

func TestStoreListJobs(t *testing.T) {
	store := openTestStore(t)

	a := NewJob(QueueMatching, TaskMatchingOpportunity, nil)
	require.NoError(t, store.CreateJob(a))
	b := NewJob(QueueMatching, TaskMatchingOpportunity, nil)
	b.Start()
	b.Complete()
	require.NoError(t, store.CreateJob(b))
	require.NoError(t, store.UpdateJob(b))

	all, err := store.ListJobs(nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	queued := StatusQueued
	only, err := store.ListJobs(&queued, 10)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, a.ID, only[0].ID)
}

func TestStoreDedupKeyUniqueIndex(t *testing.T) {
	store := openTestStore(t)

	first := NewJob(QueueMatching, TaskMatchingOpportunity, nil, WithKey("match:opp-9"))
	require.NoError(t, store.CreateJob(first))

	dup := NewJob(QueueMatching, TaskMatchingOpportunity, nil, WithKey("match:opp-9"))
	err := store.CreateJob(dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err), "active duplicate keys must hit the unique index")

	t.Run("settled jobs release the key", func(t *testing.T) {
		first.Start()
		first.Complete()
		require.NoError(t, store.UpdateJob(first))

		again := NewJob(QueueMatching, TaskMatchingOpportunity, nil, WithKey("match:opp-9"))
		assert.NoError(t, store.CreateJob(again))
	})
}
