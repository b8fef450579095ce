package bus

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/event"
)

// Publisher emits domain events onto the broker subject. The marketplace
// backend is the usual producer; this side exists for tooling and tests.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher creates a publisher bound to a NATS connection and subject
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject}
}

// Publish validates and sends one event. A zero timestamp is set to now.
func (p *Publisher) Publish(ctx context.Context, evt *event.Event) error {
	raw, err := event.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := p.conn.Publish(p.subject, raw); err != nil {
		return errors.Wrapf(err, "publish %s event", evt.Type)
	}
	return nil
}
