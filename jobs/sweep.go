package jobs

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/logger"
)

const sweepTick = time.Minute

// digestHourUTC is when the weekly digest sweep fires on its configured
// weekday. Morning in Europe, where most of the player base is.
const digestHourUTC = 8

// SweepConfig controls the scheduled sweeps
type SweepConfig struct {
	ReminderInterval time.Duration
	CleanupHourUTC   int
	DigestWeekday    time.Weekday
	DigestSpread     time.Duration
}

// Sweeper periodically scans for time-driven work and enqueues jobs
// for it. Identity keys make every sweep idempotent: re-running a
// sweep over the same window enqueues nothing new.
type Sweeper struct {
	repo  domain.Repository
	queue *Queue
	cfg   SweepConfig
	log   *zap.SugaredLogger

	now func() time.Time

	lastReminder time.Time
	lastCleanup  time.Time
	lastDigest   time.Time
}

// NewSweeper creates a sweeper. Run starts it.
func NewSweeper(repo domain.Repository, queue *Queue, cfg SweepConfig) *Sweeper {
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = time.Hour
	}
	if cfg.DigestSpread <= 0 {
		cfg.DigestSpread = 2 * time.Hour
	}
	return &Sweeper{
		repo:  repo,
		queue: queue,
		cfg:   cfg,
		log:   logger.Logger.Named("sweeps"),
		now:   time.Now,
	}
}

// Run ticks once a minute and fires whichever sweeps are due. Blocks
// until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepTick)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	now := s.now().UTC()

	if now.Sub(s.lastReminder) >= s.cfg.ReminderInterval {
		s.lastReminder = now
		if err := s.sweepReminders(ctx, now); err != nil {
			s.log.Errorw("reminder sweep failed", "error", err)
		}
	}

	if now.Hour() == s.cfg.CleanupHourUTC && !sameDay(now, s.lastCleanup) {
		s.lastCleanup = now
		if err := s.sweepCleanup(now); err != nil {
			s.log.Errorw("cleanup sweep failed", "error", err)
		}
	}

	if now.Weekday() == s.cfg.DigestWeekday && now.Hour() == digestHourUTC && !sameDay(now, s.lastDigest) {
		s.lastDigest = now
		if err := s.sweepDigests(ctx, now); err != nil {
			s.log.Errorw("digest sweep failed", "error", err)
		}
	}
}

// sweepReminders enqueues reminder jobs for opportunities starting
// roughly a day out and within the hour. Window bounds are half-open
// so adjacent sweeps never double-cover a start time.
func (s *Sweeper) sweepReminders(ctx context.Context, now time.Time) error {
	opps, err := s.repo.ListOpenOpportunities(ctx, now, now.Add(24*time.Hour), 0)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, opp := range opps {
		until := opp.StartTime.Sub(now)

		var window string
		switch {
		case until > 23*time.Hour && until <= 24*time.Hour:
			window = "24h"
		case until > 0 && until <= time.Hour:
			window = "1h"
		default:
			continue
		}

		payload := MarshalPayload(ReminderPayload{OpportunityID: opp.ID, Window: window})
		key := fmt.Sprintf("reminder:%s:%s", opp.ID, window)
		job := NewJob(QueueReminders, TaskReminderOpportunity, payload, WithKey(key))
		if _, err := s.queue.Enqueue(job); err != nil {
			s.log.Warnw("failed to enqueue reminder",
				"opportunity_id", opp.ID, "window", window, "error", err)
			continue
		}
		enqueued++
	}

	s.log.Debugw("reminder sweep complete", "candidates", len(opps), "enqueued", enqueued)
	return nil
}

// sweepCleanup enqueues the daily maintenance jobs, keyed by date so a
// restart inside the cleanup hour cannot double them.
func (s *Sweeper) sweepCleanup(now time.Time) error {
	date := now.Format("2006-01-02")
	for _, task := range []string{TaskCleanupNotifications, TaskCleanupOpportunities, TaskCleanupCache} {
		key := fmt.Sprintf("cleanup:%s:%s", task, date)
		job := NewJob(QueueCleanup, task, nil, WithKey(key))
		if _, err := s.queue.Enqueue(job); err != nil {
			return err
		}
	}
	s.log.Infow("cleanup jobs enqueued", "date", date)
	return nil
}

// sweepDigests enqueues one digest job per active user, spread over a
// window so thousands of digests do not land in the same second.
func (s *Sweeper) sweepDigests(ctx context.Context, now time.Time) error {
	users, err := s.repo.ListActiveUsers(ctx, 0)
	if err != nil {
		return err
	}

	year, week := now.ISOWeek()
	enqueued := 0
	for _, u := range users {
		payload := MarshalPayload(DigestPayload{UserID: u.ID})
		key := fmt.Sprintf("digest:%s:%d-%02d", u.ID, year, week)
		delay := time.Duration(rand.Int63n(int64(s.cfg.DigestSpread)))
		job := NewJob(QueueNotifications, TaskDigestWeekly, payload, WithKey(key), WithDelay(delay))
		if _, err := s.queue.Enqueue(job); err != nil {
			s.log.Warnw("failed to enqueue digest", "user_id", u.ID, "error", err)
			continue
		}
		enqueued++
	}

	s.log.Infow("digest sweep complete", "users", len(users), "enqueued", enqueued)
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
