package domain

import (
	"context"
	"time"
)

// Repository is the data-access contract the realtime subsystem consumes.
// The marketplace backend owns the schema; implementations here only read
// and perform the narrow writes the subsystem needs (notifications, status
// transitions driven by cleanup sweeps).
type Repository interface {
	// Users
	GetUser(ctx context.Context, id string) (*User, error)
	ListActiveUsers(ctx context.Context, limit int) ([]*User, error)

	// Opportunities
	GetOpportunity(ctx context.Context, id string) (*Opportunity, error)
	// ListOpenOpportunities returns open opportunities starting between from and to.
	ListOpenOpportunities(ctx context.Context, from, to time.Time, limit int) ([]*Opportunity, error)
	// ExpireOpportunities transitions open opportunities whose start time has
	// passed to expired. Returns the number transitioned.
	ExpireOpportunities(ctx context.Context, before time.Time) (int, error)

	// Slots
	ListSlots(ctx context.Context, opportunityID string) ([]*Slot, error)
	// ListJoinedOpportunityIDs returns IDs of opportunities the user has joined or hosts.
	ListJoinedOpportunityIDs(ctx context.Context, userID string) ([]string, error)
	// CountSharedRounds returns how many past opportunities both users were part of.
	CountSharedRounds(ctx context.Context, userA, userB string) (int, error)

	// Notifications
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]*Notification, error)
	// DeleteReadNotificationsBefore removes read notifications older than the cutoff.
	DeleteReadNotificationsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Push subscriptions
	ListPushSubscriptions(ctx context.Context, userID string) ([]*PushSubscription, error)
	DeletePushSubscription(ctx context.Context, id string) error

	// Messages
	GetMessage(ctx context.Context, id string) (*Message, error)
}
