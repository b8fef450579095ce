package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teemates/realtime/event"
)

func testSubscriber() *Subscriber {
	return NewSubscriber(nil, "test.events", zap.NewNop().Sugar())
}

func validSlotJoined() []byte {
	return []byte(`{
		"type": "slot_joined",
		"timestamp": "2026-08-29T10:00:00Z",
		"payload": {"opportunityId": "opp-1", "userId": "user-1", "remainingSlots": 1}
	}`)
}

func TestSubscriberDispatch(t *testing.T) {
	t.Run("valid event invokes handler exactly once", func(t *testing.T) {
		s := testSubscriber()
		calls := 0
		s.Register(event.TypeSlotJoined, func(ctx context.Context, evt *event.Event) error {
			calls++
			payload := evt.Payload.(*event.SlotJoined)
			assert.Equal(t, "opp-1", payload.OpportunityID)
			return nil
		})

		s.handleMessage(context.Background(), validSlotJoined())
		assert.Equal(t, 1, calls)
	})

	t.Run("malformed message reaches no handler", func(t *testing.T) {
		s := testSubscriber()
		calls := 0
		for _, typ := range event.Types() {
			s.Register(typ, func(ctx context.Context, evt *event.Event) error {
				calls++
				return nil
			})
		}

		s.handleMessage(context.Background(), []byte(`{broken`))
		s.handleMessage(context.Background(), []byte(`{"type": "slot_joined", "timestamp": "2026-08-29T10:00:00Z", "payload": {"userId": "u"}}`))
		assert.Equal(t, 0, calls, "malformed events must never reach a handler")
	})

	t.Run("unknown type is ignored without error", func(t *testing.T) {
		s := testSubscriber()
		raw := []byte(`{"type": "league_created", "timestamp": "2026-08-29T10:00:00Z", "payload": {}}`)
		// Must not panic or call anything
		s.handleMessage(context.Background(), raw)
	})

	t.Run("handler panic is recovered", func(t *testing.T) {
		s := testSubscriber()
		s.Register(event.TypeSlotJoined, func(ctx context.Context, evt *event.Event) error {
			panic("boom")
		})

		require.NotPanics(t, func() {
			s.handleMessage(context.Background(), validSlotJoined())
		})

		// Subscriber still dispatches subsequent events
		calls := 0
		s.Register(event.TypeSlotLeft, func(ctx context.Context, evt *event.Event) error {
			calls++
			return nil
		})
		s.handleMessage(context.Background(), []byte(`{
			"type": "slot_left",
			"timestamp": "2026-08-29T10:05:00Z",
			"payload": {"opportunityId": "opp-1", "userId": "user-1", "remainingSlots": 2}
		}`))
		assert.Equal(t, 1, calls)
	})

	t.Run("handler error does not stop dispatch", func(t *testing.T) {
		s := testSubscriber()
		calls := 0
		s.Register(event.TypeSlotJoined, func(ctx context.Context, evt *event.Event) error {
			calls++
			return assert.AnError
		})

		s.handleMessage(context.Background(), validSlotJoined())
		s.handleMessage(context.Background(), validSlotJoined())
		assert.Equal(t, 2, calls)
	})
}

func TestSubscriberRegister(t *testing.T) {
	t.Run("duplicate registration panics", func(t *testing.T) {
		s := testSubscriber()
		h := func(ctx context.Context, evt *event.Event) error { return nil }
		s.Register(event.TypeMessageSent, h)
		assert.Panics(t, func() {
			s.Register(event.TypeMessageSent, h)
		})
	})
}
