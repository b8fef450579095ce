package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemates/realtime/domain"
	"github.com/teemates/realtime/errors"
	"github.com/teemates/realtime/ws"
)

type fakeHub struct {
	frames map[string][]ws.ServerFrame
}

func newFakeHub() *fakeHub {
	return &fakeHub{frames: make(map[string][]ws.ServerFrame)}
}

func (f *fakeHub) BroadcastToUser(userID string, frame ws.ServerFrame) {
	f.frames[userID] = append(f.frames[userID], frame)
}

type fakePush struct {
	outcomes map[string]PushOutcome // subscription ID -> outcome
	sent     []string
}

func (f *fakePush) Send(ctx context.Context, sub *domain.PushSubscription, content Content) (PushOutcome, error) {
	f.sent = append(f.sent, sub.ID)
	outcome, ok := f.outcomes[sub.ID]
	if !ok {
		return PushDelivered, nil
	}
	if outcome == PushFailed {
		return PushFailed, errors.New("endpoint unreachable")
	}
	return outcome, nil
}

type fakeEmail struct {
	sent []string // recipient addresses
}

func (f *fakeEmail) Send(ctx context.Context, to, subject, body string) error {
	f.sent = append(f.sent, to)
	return nil
}

func testContent() Content {
	return Content{Kind: KindReminder, Title: "Tee time tomorrow", Body: "You tee off at Old Links."}
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the in-app row and broadcasts it", func(t *testing.T) {
		repo := domain.NewFake()
		repo.AddUser(&domain.User{ID: "alice", Name: "Alice", Active: true})
		hub := newFakeHub()
		d := NewDeliverer(repo, hub, nil, nil)

		require.NoError(t, d.Deliver(ctx, "alice", testContent()))

		stored, err := repo.ListNotifications(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, KindReminder, stored[0].Kind)
		assert.False(t, stored[0].Read)

		require.Len(t, hub.frames["alice"], 1)
		assert.Equal(t, ws.FrameNotification, hub.frames["alice"][0].Type)
	})

	t.Run("pushes to every registered device", func(t *testing.T) {
		repo := domain.NewFake()
		repo.AddUser(&domain.User{ID: "alice", Name: "Alice", Active: true})
		repo.AddPushSubscription(&domain.PushSubscription{ID: "sub-1", UserID: "alice"})
		repo.AddPushSubscription(&domain.PushSubscription{ID: "sub-2", UserID: "alice"})
		push := &fakePush{}
		d := NewDeliverer(repo, newFakeHub(), push, nil)

		require.NoError(t, d.Deliver(ctx, "alice", testContent()))
		assert.ElementsMatch(t, []string{"sub-1", "sub-2"}, push.sent)
	})

	t.Run("prunes expired subscriptions", func(t *testing.T) {
		repo := domain.NewFake()
		repo.AddUser(&domain.User{ID: "alice", Name: "Alice", Active: true})
		repo.AddPushSubscription(&domain.PushSubscription{ID: "sub-dead", UserID: "alice"})
		repo.AddPushSubscription(&domain.PushSubscription{ID: "sub-live", UserID: "alice"})
		push := &fakePush{outcomes: map[string]PushOutcome{"sub-dead": PushExpired}}
		d := NewDeliverer(repo, newFakeHub(), push, nil)

		require.NoError(t, d.Deliver(ctx, "alice", testContent()))

		remaining, err := repo.ListPushSubscriptions(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "sub-live", remaining[0].ID)
	})

	t.Run("push failure does not fail the delivery", func(t *testing.T) {
		repo := domain.NewFake()
		repo.AddUser(&domain.User{ID: "alice", Name: "Alice", Active: true})
		repo.AddPushSubscription(&domain.PushSubscription{ID: "sub-1", UserID: "alice"})
		push := &fakePush{outcomes: map[string]PushOutcome{"sub-1": PushFailed}}
		d := NewDeliverer(repo, newFakeHub(), push, nil)

		assert.NoError(t, d.Deliver(ctx, "alice", testContent()))
	})

	t.Run("emails only verified addresses", func(t *testing.T) {
		repo := domain.NewFake()
		repo.AddUser(&domain.User{ID: "alice", Name: "Alice", Email: "alice@example.com", EmailVerified: true, Active: true})
		repo.AddUser(&domain.User{ID: "bob", Name: "Bob", Email: "bob@example.com", EmailVerified: false, Active: true})
		email := &fakeEmail{}
		d := NewDeliverer(repo, newFakeHub(), nil, email)

		require.NoError(t, d.Deliver(ctx, "alice", testContent()))
		require.NoError(t, d.Deliver(ctx, "bob", testContent()))
		assert.Equal(t, []string{"alice@example.com"}, email.sent)
	})
}
