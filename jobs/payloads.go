package jobs

import "encoding/json"

// Task names resolve jobs to their handlers. Producers (event dispatch,
// sweeps) and consumers (handler implementations) share these constants.
const (
	TaskNotificationDeliver  = "notification.deliver"
	TaskReminderOpportunity  = "reminder.opportunity"
	TaskDigestWeekly         = "digest.weekly"
	TaskMatchingOpportunity  = "matching.opportunity"
	TaskCleanupNotifications = "cleanup.notifications"
	TaskCleanupOpportunities = "cleanup.opportunities"
	TaskCleanupCache         = "cleanup.cache"
)

// DeliverPayload carries a composed notification to the delivery handler
type DeliverPayload struct {
	UserID string          `json:"user_id"`
	Kind   string          `json:"kind"`
	Title  string          `json:"title"`
	Body   string          `json:"body"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ReminderPayload identifies an upcoming opportunity and its window
type ReminderPayload struct {
	OpportunityID string `json:"opportunity_id"`
	Window        string `json:"window"` // "24h" or "1h"
}

// DigestPayload identifies the recipient of a weekly digest
type DigestPayload struct {
	UserID string `json:"user_id"`
}

// MatchingPayload identifies the opportunity to run a scoring pass for
type MatchingPayload struct {
	OpportunityID string `json:"opportunity_id"`
}

// MarshalPayload is a small helper that panics only on programmer error
// (unmarshalable payload structs), never on runtime data.
func MarshalPayload(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("jobs: unmarshalable payload: " + err.Error())
	}
	return raw
}
