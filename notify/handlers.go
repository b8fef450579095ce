package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/jobs"
	"github.com/teemates/realtime/logger"
	"github.com/teemates/realtime/match"
)

const (
	// Read in-app notifications older than this are purged by the
	// daily cleanup job.
	notificationRetention = 30 * 24 * time.Hour

	// Terminal jobs older than this are purged
	jobRetention = 7 * 24 * time.Hour

	digestMatchLimit = 5
)

// OpportunityMatcher scores candidates for one opportunity
type OpportunityMatcher interface {
	MatchesForOpportunity(ctx context.Context, opportunityID string, limit int) ([]match.Match, error)
}

// UserRecommender scores opportunities for one user
type UserRecommender interface {
	MatchesForUser(ctx context.Context, userID string, limit int) ([]match.Match, error)
}

// CacheEvictor drops expired recommendation cache entries
type CacheEvictor interface {
	EvictExpired() int
}

// Handlers implements every background task the queues carry
type Handlers struct {
	repo        domain.Repository
	deliverer   *Deliverer
	matcher     OpportunityMatcher
	recommender UserRecommender
	evictor     CacheEvictor
	jobStore    *jobs.Store
	log         *zap.SugaredLogger
}

// NewHandlers wires the task handlers
func NewHandlers(
	repo domain.Repository,
	deliverer *Deliverer,
	matcher OpportunityMatcher,
	recommender UserRecommender,
	evictor CacheEvictor,
	jobStore *jobs.Store,
) *Handlers {
	return &Handlers{
		repo:        repo,
		deliverer:   deliverer,
		matcher:     matcher,
		recommender: recommender,
		evictor:     evictor,
		jobStore:    jobStore,
		log:         logger.Logger.Named("notify"),
	}
}

// RegisterAll registers every task handler on the registry
func (h *Handlers) RegisterAll(registry *jobs.Registry) {
	registry.Register(jobs.HandlerFunc{TaskName: jobs.TaskNotificationDeliver, Fn: h.handleDeliver})
	registry.Register(jobs.HandlerFunc{TaskName: jobs.TaskReminderOpportunity, Fn: h.handleReminder})
	registry.Register(jobs.HandlerFunc{TaskName: jobs.TaskDigestWeekly, Fn: h.handleDigest})
	registry.Register(jobs.HandlerFunc{TaskName: jobs.TaskMatchingOpportunity, Fn: h.handleMatching})
	registry.Register(jobs.HandlerFunc{TaskName: jobs.TaskCleanupNotifications, Fn: h.handleCleanupNotifications})
	registry.Register(jobs.HandlerFunc{TaskName: jobs.TaskCleanupOpportunities, Fn: h.handleCleanupOpportunities})
	registry.Register(jobs.HandlerFunc{TaskName: jobs.TaskCleanupCache, Fn: h.handleCleanupCache})
}

func (h *Handlers) handleDeliver(ctx context.Context, job *jobs.Job) error {
	var payload jobs.DeliverPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "bad deliver payload")
	}
	return h.deliverer.Deliver(ctx, payload.UserID, Content{
		Kind:  payload.Kind,
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Data,
	})
}

// handleReminder notifies the host and every joined player about an
// upcoming tee time. Rounds that are no longer happening are skipped
// silently; the sweep raced a cancellation.
func (h *Handlers) handleReminder(ctx context.Context, job *jobs.Job) error {
	var payload jobs.ReminderPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "bad reminder payload")
	}

	opp, err := h.repo.GetOpportunity(ctx, payload.OpportunityID)
	if errors.IsNotFoundError(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if opp.Status == domain.OpportunityCancelled || opp.Status == domain.OpportunityExpired {
		return nil
	}

	content := ComposeReminder(opp, payload.Window)
	return h.deliverToParticipants(ctx, opp, content)
}

func (h *Handlers) deliverToParticipants(ctx context.Context, opp *domain.Opportunity, content Content) error {
	slots, err := h.repo.ListSlots(ctx, opp.ID)
	if err != nil {
		return err
	}

	recipients := []string{opp.HostID}
	for _, s := range slots {
		if s.UserID != opp.HostID {
			recipients = append(recipients, s.UserID)
		}
	}

	var firstErr error
	for _, userID := range recipients {
		if err := h.deliverer.Deliver(ctx, userID, content); err != nil {
			h.log.Warnw("participant delivery failed",
				"opportunity_id", opp.ID, "user_id", userID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// handleDigest sends the weekly summary. Users with nothing to show
// get nothing; an empty digest is worse than none.
func (h *Handlers) handleDigest(ctx context.Context, job *jobs.Job) error {
	var payload jobs.DigestPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "bad digest payload")
	}

	matches, err := h.recommender.MatchesForUser(ctx, payload.UserID, digestMatchLimit)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}

	topCourse := ""
	if opp, err := h.repo.GetOpportunity(ctx, matches[0].OpportunityID); err == nil {
		topCourse = opp.CourseName
	}

	return h.deliverer.Deliver(ctx, payload.UserID, ComposeDigest(len(matches), topCourse))
}

// handleMatching scores candidates for a fresh opportunity and pings
// the well-matched ones.
func (h *Handlers) handleMatching(ctx context.Context, job *jobs.Job) error {
	var payload jobs.MatchingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "bad matching payload")
	}

	opp, err := h.repo.GetOpportunity(ctx, payload.OpportunityID)
	if errors.IsNotFoundError(err) {
		return nil
	}
	if err != nil {
		return err
	}

	matches, err := h.matcher.MatchesForOpportunity(ctx, payload.OpportunityID, 0)
	if err != nil {
		return err
	}

	var firstErr error
	for _, m := range matches {
		content := ComposeSuggestion(opp, m.Reasons)
		if err := h.deliverer.Deliver(ctx, m.UserID, content); err != nil {
			h.log.Warnw("suggestion delivery failed",
				"opportunity_id", opp.ID, "user_id", m.UserID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	h.log.Infow("matching pass complete",
		"opportunity_id", opp.ID, "notified", len(matches))
	return firstErr
}

func (h *Handlers) handleCleanupNotifications(ctx context.Context, job *jobs.Job) error {
	cutoff := time.Now().Add(-notificationRetention)
	n, err := h.repo.DeleteReadNotificationsBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	h.log.Infow("purged read notifications", "count", n, "cutoff", cutoff)
	return nil
}

func (h *Handlers) handleCleanupOpportunities(ctx context.Context, job *jobs.Job) error {
	n, err := h.repo.ExpireOpportunities(ctx, time.Now())
	if err != nil {
		return err
	}
	h.log.Infow("expired stale opportunities", "count", n)
	return nil
}

func (h *Handlers) handleCleanupCache(ctx context.Context, job *jobs.Job) error {
	evicted := 0
	if h.evictor != nil {
		evicted = h.evictor.EvictExpired()
	}

	purged := 0
	if h.jobStore != nil {
		n, err := h.jobStore.CleanupOldJobs(jobRetention)
		if err != nil {
			return err
		}
		purged = n
	}

	h.log.Infow("cache and job cleanup complete",
		"cache_entries_evicted", evicted, "jobs_purged", purged)
	return nil
}
