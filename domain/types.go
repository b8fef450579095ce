// Package domain defines the marketplace entities the realtime subsystem
// consumes and the repository contract used to read them. The subsystem does
// not own this data; the marketplace backend does.
package domain

import (
	"encoding/json"
	"time"
)

// SkillTier is an ordered golf skill level
type SkillTier string

const (
	SkillBeginner     SkillTier = "beginner"
	SkillNovice       SkillTier = "novice"
	SkillIntermediate SkillTier = "intermediate"
	SkillAdvanced     SkillTier = "advanced"
	SkillExpert       SkillTier = "expert"
)

// SkillRank returns the ordinal position of a tier, or -1 if unknown
func SkillRank(t SkillTier) int {
	switch t {
	case SkillBeginner:
		return 0
	case SkillNovice:
		return 1
	case SkillIntermediate:
		return 2
	case SkillAdvanced:
		return 3
	case SkillExpert:
		return 4
	default:
		return -1
	}
}

// PlayStyle describes how a golfer prefers to play a round
type PlayStyle string

const (
	StyleCasual      PlayStyle = "casual"
	StyleSocial      PlayStyle = "social"
	StyleCompetitive PlayStyle = "competitive"
	StylePractice    PlayStyle = "practice"
	StyleSpeed       PlayStyle = "speed"
)

// OpportunityStatus is the lifecycle state of a tee time opportunity
type OpportunityStatus string

const (
	OpportunityOpen      OpportunityStatus = "open"
	OpportunityFull      OpportunityStatus = "full"
	OpportunityCancelled OpportunityStatus = "cancelled"
	OpportunityExpired   OpportunityStatus = "expired"
)

// User is a marketplace member
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	Skill         SkillTier `json:"skill"`
	Style         PlayStyle `json:"style"`
	HomeLat       float64   `json:"home_lat"`
	HomeLng       float64   `json:"home_lng"`
	Active        bool      `json:"active"`
}

// Opportunity is a hosted tee time looking for players
type Opportunity struct {
	ID         string            `json:"id"`
	HostID     string            `json:"host_id"`
	CourseName string            `json:"course_name"`
	Lat        float64           `json:"lat"`
	Lng        float64           `json:"lng"`
	StartTime  time.Time         `json:"start_time"`
	TotalSlots int               `json:"total_slots"`
	OpenSlots  int               `json:"open_slots"`
	Style      PlayStyle         `json:"style"`
	Status     OpportunityStatus `json:"status"`
}

// Slot records a user's membership in an opportunity
type Slot struct {
	OpportunityID string    `json:"opportunity_id"`
	UserID        string    `json:"user_id"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Notification is an in-app notification row
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
}

// PushSubscription is a web push endpoint registered by a user's device
type PushSubscription struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	Auth     string `json:"auth"`
	P256DH   string `json:"p256dh"`
}

// Message is a direct message between two users
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sent_at"`
}
