package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teemates/realtime/errors"
)

// Fake is an in-memory Repository used by tests and local development.
// All maps are guarded by a single mutex; the fake is safe for concurrent use.
type Fake struct {
	mu            sync.RWMutex
	Users         map[string]*User
	Opportunities map[string]*Opportunity
	Slots         map[string][]*Slot // opportunityID -> slots
	Notifications map[string]*Notification
	Subscriptions map[string]*PushSubscription
	Messages      map[string]*Message
	SharedRounds  map[[2]string]int // normalized user pair -> count
}

// NewFake creates an empty in-memory repository
func NewFake() *Fake {
	return &Fake{
		Users:         make(map[string]*User),
		Opportunities: make(map[string]*Opportunity),
		Slots:         make(map[string][]*Slot),
		Notifications: make(map[string]*Notification),
		Subscriptions: make(map[string]*PushSubscription),
		Messages:      make(map[string]*Message),
		SharedRounds:  make(map[[2]string]int),
	}
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// AddUser registers a user
func (f *Fake) AddUser(u *User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[u.ID] = u
}

// AddOpportunity registers an opportunity
func (f *Fake) AddOpportunity(o *Opportunity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opportunities[o.ID] = o
}

// AddSlot records a slot membership
func (f *Fake) AddSlot(s *Slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Slots[s.OpportunityID] = append(f.Slots[s.OpportunityID], s)
}

// AddPushSubscription registers a push subscription
func (f *Fake) AddPushSubscription(s *PushSubscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscriptions[s.ID] = s
}

// AddMessage records a message
func (f *Fake) AddMessage(m *Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[m.ID] = m
}

// SetSharedRounds sets the shared history count for a user pair
func (f *Fake) SetSharedRounds(a, b string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SharedRounds[pairKey(a, b)] = count
}

func (f *Fake) GetUser(ctx context.Context, id string) (*User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	u, ok := f.Users[id]
	if !ok {
		return nil, errors.NewNotFoundError("user %s", id)
	}
	return u, nil
}

func (f *Fake) ListActiveUsers(ctx context.Context, limit int) ([]*User, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*User
	for _, u := range f.Users {
		if u.Active {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) GetOpportunity(ctx context.Context, id string) (*Opportunity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	o, ok := f.Opportunities[id]
	if !ok {
		return nil, errors.NewNotFoundError("opportunity %s", id)
	}
	return o, nil
}

func (f *Fake) ListOpenOpportunities(ctx context.Context, from, to time.Time, limit int) ([]*Opportunity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*Opportunity
	for _, o := range f.Opportunities {
		if o.Status != OpportunityOpen {
			continue
		}
		if o.StartTime.Before(from) || o.StartTime.After(to) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) ExpireOpportunities(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.Opportunities {
		if o.Status == OpportunityOpen && o.StartTime.Before(before) {
			o.Status = OpportunityExpired
			n++
		}
	}
	return n, nil
}

func (f *Fake) ListSlots(ctx context.Context, opportunityID string) ([]*Slot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]*Slot(nil), f.Slots[opportunityID]...), nil
}

func (f *Fake) ListJoinedOpportunityIDs(ctx context.Context, userID string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for oppID, slots := range f.Slots {
		for _, s := range slots {
			if s.UserID == userID && !seen[oppID] {
				seen[oppID] = true
				out = append(out, oppID)
			}
		}
	}
	for _, o := range f.Opportunities {
		if o.HostID == userID && !seen[o.ID] {
			seen[o.ID] = true
			out = append(out, o.ID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fake) CountSharedRounds(ctx context.Context, userA, userB string) (int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.SharedRounds[pairKey(userA, userB)], nil
}

func (f *Fake) CreateNotification(ctx context.Context, n *Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == "" {
		return errors.New("notification ID must not be empty")
	}
	f.Notifications[n.ID] = n
	return nil
}

func (f *Fake) ListNotifications(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*Notification
	for _, n := range f.Notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *Fake) DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, notif := range f.Notifications {
		if notif.Read && notif.CreatedAt.Before(cutoff) {
			delete(f.Notifications, id)
			n++
		}
	}
	return n, nil
}

func (f *Fake) ListPushSubscriptions(ctx context.Context, userID string) ([]*PushSubscription, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []*PushSubscription
	for _, s := range f.Subscriptions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) DeletePushSubscription(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Subscriptions[id]; !ok {
		return errors.NewNotFoundError("push subscription %s", id)
	}
	delete(f.Subscriptions, id)
	return nil
}

func (f *Fake) GetMessage(ctx context.Context, id string) (*Message, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.Messages[id]
	if !ok {
		return nil, errors.NewNotFoundError("message %s", id)
	}
	return m, nil
}
