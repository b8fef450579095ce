// Package bus connects the realtime service to the marketplace event
// stream. A single NATS subject carries JSON event envelopes; one
// subscriber parses, validates, and dispatches them to typed handlers.
package bus

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/event"
	"github.com/teemates/realtime/metrics"
)

// Handler processes one fully validated domain event
type Handler func(ctx context.Context, evt *event.Event) error

// Subscriber consumes the broker subject and dispatches events to
// registered handlers. Processing is serial: NATS invokes the message
// callback for one message at a time per subscription, so a handler
// finishes before the next event is looked at.
type Subscriber struct {
	conn     *nats.Conn
	subject  string
	logger   *zap.SugaredLogger
	mu       sync.RWMutex
	handlers map[event.Type]Handler
	sub      *nats.Subscription
}

// NewSubscriber creates a subscriber bound to a NATS connection and subject
func NewSubscriber(conn *nats.Conn, subject string, logger *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		conn:     conn,
		subject:  subject,
		logger:   logger.Named("bus"),
		handlers: make(map[event.Type]Handler),
	}
}

// Register binds a handler to an event type. Registering the same type
// twice panics; handler wiring is a startup-time programming error, not
// a runtime condition.
func (s *Subscriber) Register(t event.Type, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.handlers[t]; exists {
		panic("bus: handler already registered for event type " + string(t))
	}
	s.handlers[t] = h
}

// Start opens the subscription. Events arriving before Start are not
// replayed; cross-restart delivery is the broker's concern, not ours.
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handleMessage(ctx, msg.Data)
	})
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", s.subject)
	}
	s.sub = sub

	s.logger.Infow("Event subscription opened", "subject", s.subject)
	return nil
}

// Stop drains the subscription so in-flight callbacks finish
func (s *Subscriber) Stop() error {
	if s.sub == nil {
		return nil
	}
	if err := s.sub.Drain(); err != nil {
		return errors.Wrap(err, "drain subscription")
	}
	s.logger.Infow("Event subscription closed", "subject", s.subject)
	return nil
}

// handleMessage runs the full pipeline for one raw broker message.
// Every failure mode is contained: malformed input, unknown types,
// handler errors, and handler panics each log and count, and the
// subscription keeps running.
func (s *Subscriber) handleMessage(ctx context.Context, raw []byte) {
	evt, err := event.Parse(raw)
	if err != nil {
		if errors.Is(err, event.ErrUnknownType) {
			// Forward-compatible: a newer producer is emitting types we
			// don't know yet. Log and move on.
			metrics.EventsDropped.WithLabelValues("unknown_type").Inc()
			s.logger.Debugw("Ignoring unknown event type", "error", err)
			return
		}
		metrics.EventsDropped.WithLabelValues("malformed").Inc()
		s.logger.Warnw("Dropping malformed event", "error", err, "size_bytes", len(raw))
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[evt.Type]
	s.mu.RUnlock()
	if !ok {
		metrics.EventsDropped.WithLabelValues("unhandled_type").Inc()
		s.logger.Debugw("No handler registered for event type", "type", evt.Type)
		return
	}

	if err := s.dispatch(ctx, handler, evt); err != nil {
		metrics.EventsDropped.WithLabelValues("handler_error").Inc()
		s.logger.Errorw("Event handler failed",
			"type", evt.Type,
			"correlation_id", evt.CorrelationID,
			"error", err,
		)
		return
	}

	metrics.EventsProcessed.WithLabelValues(string(evt.Type)).Inc()
}

// dispatch invokes a handler with panic recovery at the boundary
func (s *Subscriber) dispatch(ctx context.Context, handler Handler, evt *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventsDropped.WithLabelValues("handler_panic").Inc()
			err = errors.Newf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, evt)
}
