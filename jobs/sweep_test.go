package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemates/realtime/domain"
)

var sweepNow = time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC) // a Monday

func testSweeper(t *testing.T, repo domain.Repository) (*Sweeper, *Queue) {
	t.Helper()
	q := openTestQueue(t)
	s := NewSweeper(repo, q, SweepConfig{
		ReminderInterval: time.Hour,
		CleanupHourUTC:   4,
		DigestWeekday:    time.Monday,
		DigestSpread:     2 * time.Hour,
	})
	s.now = func() time.Time { return sweepNow }
	return s, q
}

func addOpp(repo *domain.Fake, id string, start time.Time) {
	repo.AddOpportunity(&domain.Opportunity{
		ID:         id,
		HostID:     "host",
		CourseName: "Old Links",
		StartTime:  start,
		TotalSlots: 4,
		OpenSlots:  2,
		Style:      domain.StyleCasual,
		Status:     domain.OpportunityOpen,
	})
}

func TestSweepReminders(t *testing.T) {
	repo := domain.NewFake()
	addOpp(repo, "opp-day", sweepNow.Add(23*time.Hour+30*time.Minute))
	addOpp(repo, "opp-hour", sweepNow.Add(30*time.Minute))
	addOpp(repo, "opp-between", sweepNow.Add(12*time.Hour))

	s, q := testSweeper(t, repo)
	require.NoError(t, s.sweepReminders(context.Background(), sweepNow))

	jobs, err := q.store.ListJobs(nil, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	keys := make(map[string]bool)
	for _, j := range jobs {
		assert.Equal(t, QueueReminders, j.Queue)
		assert.Equal(t, TaskReminderOpportunity, j.Name)
		keys[j.Key] = true
	}
	assert.True(t, keys["reminder:opp-day:24h"])
	assert.True(t, keys["reminder:opp-hour:1h"])

	t.Run("re-running the sweep enqueues nothing new", func(t *testing.T) {
		require.NoError(t, s.sweepReminders(context.Background(), sweepNow))
		jobs, err := q.store.ListJobs(nil, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})
}

func TestSweepCleanup(t *testing.T) {
	s, q := testSweeper(t, domain.NewFake())
	require.NoError(t, s.sweepCleanup(sweepNow))

	jobs, err := q.store.ListJobs(nil, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	names := make(map[string]bool)
	for _, j := range jobs {
		assert.Equal(t, QueueCleanup, j.Queue)
		names[j.Name] = true
	}
	assert.True(t, names[TaskCleanupNotifications])
	assert.True(t, names[TaskCleanupOpportunities])
	assert.True(t, names[TaskCleanupCache])

	t.Run("same day is idempotent", func(t *testing.T) {
		require.NoError(t, s.sweepCleanup(sweepNow))
		jobs, err := q.store.ListJobs(nil, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 3)
	})
}

func TestSweepDigests(t *testing.T) {
	repo := domain.NewFake()
	for _, id := range []string{"alice", "bob"} {
		repo.AddUser(&domain.User{ID: id, Name: id, Active: true, Skill: domain.SkillIntermediate, Style: domain.StyleCasual})
	}

	s, q := testSweeper(t, repo)
	before := time.Now()
	require.NoError(t, s.sweepDigests(context.Background(), sweepNow))

	jobs, err := q.store.ListJobs(nil, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	for _, j := range jobs {
		assert.Equal(t, QueueNotifications, j.Queue)
		assert.Equal(t, TaskDigestWeekly, j.Name)
		assert.True(t, j.RunAt.After(before.Add(-time.Second)))
		assert.True(t, j.RunAt.Before(before.Add(2*time.Hour).Add(time.Minute)),
			"digest must land inside the spread window")
	}

	t.Run("same week is idempotent", func(t *testing.T) {
		require.NoError(t, s.sweepDigests(context.Background(), sweepNow))
		jobs, err := q.store.ListJobs(nil, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})
}

func TestSweepTickSchedule(t *testing.T) {
	repo := domain.NewFake()
	s, q := testSweeper(t, repo)

	t.Run("cleanup fires only in the configured hour", func(t *testing.T) {
		s.tick(context.Background())

		jobs, err := q.store.ListJobs(nil, 20)
		require.NoError(t, err)
		for _, j := range jobs {
			assert.NotEqual(t, QueueCleanup, j.Queue, "08:00 tick must not run the 04:00 cleanup")
		}
	})
}
