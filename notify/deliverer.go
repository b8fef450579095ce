package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/logger"
	"github.com/teemates/realtime/metrics"
	"github.com/teemates/realtime/ws"
)

// Broadcaster pushes frames to a user's live connections
type Broadcaster interface {
	BroadcastToUser(userID string, frame ws.ServerFrame)
}

// Deliverer fans one composed notification out across channels: the
// in-app row and live broadcast always, push to every registered
// device, email when the address is verified.
type Deliverer struct {
	repo  domain.Repository
	hub   Broadcaster
	push  PushTransport
	email EmailTransport
	log   *zap.SugaredLogger
}

// NewDeliverer creates a deliverer. Push and email transports may be
// nil to disable those channels.
func NewDeliverer(repo domain.Repository, hub Broadcaster, push PushTransport, email EmailTransport) *Deliverer {
	return &Deliverer{
		repo:  repo,
		hub:   hub,
		push:  push,
		email: email,
		log:   logger.Logger.Named("notify"),
	}
}

// Deliver writes the in-app notification and attempts the side
// channels. Only the in-app write can fail the delivery; push and
// email problems are logged and absorbed so one dead endpoint cannot
// re-run the whole notification.
func (d *Deliverer) Deliver(ctx context.Context, userID string, content Content) error {
	notification := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      content.Kind,
		Title:     content.Title,
		Body:      content.Body,
		Data:      content.Data,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.repo.CreateNotification(ctx, notification); err != nil {
		return errors.Wrap(err, "failed to store notification")
	}

	d.hub.BroadcastToUser(userID, ws.NewFrame(ws.FrameNotification, notification))

	d.deliverPush(ctx, userID, content)
	d.deliverEmail(ctx, userID, content)
	return nil
}

func (d *Deliverer) deliverPush(ctx context.Context, userID string, content Content) {
	if d.push == nil {
		return
	}

	subs, err := d.repo.ListPushSubscriptions(ctx, userID)
	if err != nil {
		d.log.Warnw("failed to list push subscriptions", "user_id", userID, "error", err)
		return
	}

	for _, sub := range subs {
		outcome, err := d.push.Send(ctx, sub, content)
		metrics.PushDeliveries.WithLabelValues(string(outcome)).Inc()

		switch outcome {
		case PushExpired:
			// Endpoint is gone for good; keep the table clean.
			if derr := d.repo.DeletePushSubscription(ctx, sub.ID); derr != nil {
				d.log.Warnw("failed to prune expired push subscription",
					"subscription_id", sub.ID, "error", derr)
			} else {
				d.log.Infow("pruned expired push subscription",
					"user_id", userID, "subscription_id", sub.ID)
			}
		case PushFailed:
			d.log.Warnw("push delivery failed",
				"user_id", userID, "subscription_id", sub.ID, "error", err)
		}
	}
}

func (d *Deliverer) deliverEmail(ctx context.Context, userID string, content Content) {
	if d.email == nil {
		return
	}

	user, err := d.repo.GetUser(ctx, userID)
	if err != nil {
		d.log.Warnw("failed to load user for email", "user_id", userID, "error", err)
		return
	}
	if !user.EmailVerified || user.Email == "" {
		return
	}

	if err := d.email.Send(ctx, user.Email, content.Title, content.Body); err != nil {
		d.log.Warnw("email delivery failed", "user_id", userID, "error", err)
	}
}
