package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/logger"
)

// PushOutcome classifies one push delivery attempt
type PushOutcome string

const (
	PushDelivered PushOutcome = "delivered"
	// PushExpired means the endpoint is permanently gone and the
	// subscription must be pruned.
	PushExpired PushOutcome = "expired"
	PushFailed  PushOutcome = "failed"
)

// PushTransport delivers a notification to one push endpoint
type PushTransport interface {
	Send(ctx context.Context, sub *domain.PushSubscription, content Content) (PushOutcome, error)
}

// EmailTransport delivers a notification by email
type EmailTransport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogPushTransport logs instead of sending. Used in development and
// when no push provider is configured.
type LogPushTransport struct {
	log *zap.SugaredLogger
}

func NewLogPushTransport() *LogPushTransport {
	return &LogPushTransport{log: logger.Logger.Named("push")}
}

func (t *LogPushTransport) Send(ctx context.Context, sub *domain.PushSubscription, content Content) (PushOutcome, error) {
	t.log.Infow("push delivery (log transport)",
		"user_id", sub.UserID, "endpoint", sub.Endpoint, "kind", content.Kind, "title", content.Title)
	return PushDelivered, nil
}

// LogEmailTransport logs instead of sending
type LogEmailTransport struct {
	log *zap.SugaredLogger
}

func NewLogEmailTransport() *LogEmailTransport {
	return &LogEmailTransport{log: logger.Logger.Named("email")}
}

func (t *LogEmailTransport) Send(ctx context.Context, to, subject, body string) error {
	t.log.Infow("email delivery (log transport)", "to", to, "subject", subject)
	return nil
}
