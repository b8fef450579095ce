// Package event defines the domain event schema carried on the broker
// channel. An event either fully parses and validates or is rejected;
// there is no partial acceptance.
package event

import (
	"encoding/json"
	"time"

	"github.com/teemates/realtime/errors"
)

// Type identifies the domain event variant
type Type string

const (
	TypeOpportunityCreated   Type = "opportunity_created"
	TypeOpportunityUpdated   Type = "opportunity_updated"
	TypeOpportunityCancelled Type = "opportunity_cancelled"
	TypeSlotJoined           Type = "slot_joined"
	TypeSlotLeft             Type = "slot_left"
	TypeMessageSent          Type = "message_sent"
)

// Types lists every known event type
func Types() []Type {
	return []Type{
		TypeOpportunityCreated,
		TypeOpportunityUpdated,
		TypeOpportunityCancelled,
		TypeSlotJoined,
		TypeSlotLeft,
		TypeMessageSent,
	}
}

// ErrUnknownType marks events whose type is not recognized. Subscribers
// treat these as forward-compatible noise, not as malformed input.
var ErrUnknownType = errors.New("unknown event type")

// Payload is the sealed union of event payloads. Only types in this
// package implement it.
type Payload interface {
	eventPayload()
	validate() error
}

// Event is a fully parsed and validated domain event
type Event struct {
	Type          Type
	Timestamp     time.Time
	CorrelationID string
	Payload       Payload
}

// OpportunityCreated announces a newly posted tee time
type OpportunityCreated struct {
	OpportunityID string    `json:"opportunityId"`
	HostID        string    `json:"hostId"`
	CourseName    string    `json:"courseName"`
	StartTime     time.Time `json:"startTime"`
	TotalSlots    int       `json:"totalSlots"`
	OpenSlots     int       `json:"openSlots"`
	Style         string    `json:"style,omitempty"`
}

func (OpportunityCreated) eventPayload() {}

func (p OpportunityCreated) validate() error {
	if p.OpportunityID == "" {
		return errors.New("opportunityId is required")
	}
	if p.HostID == "" {
		return errors.New("hostId is required")
	}
	if p.StartTime.IsZero() {
		return errors.New("startTime is required")
	}
	if p.TotalSlots < 1 {
		return errors.Newf("totalSlots must be at least 1, got %d", p.TotalSlots)
	}
	if p.OpenSlots < 0 || p.OpenSlots > p.TotalSlots {
		return errors.Newf("openSlots %d out of range for totalSlots %d", p.OpenSlots, p.TotalSlots)
	}
	return nil
}

// OpportunityUpdated announces a change to an existing tee time
type OpportunityUpdated struct {
	OpportunityID string     `json:"opportunityId"`
	CourseName    string     `json:"courseName,omitempty"`
	StartTime     *time.Time `json:"startTime,omitempty"`
}

func (OpportunityUpdated) eventPayload() {}

func (p OpportunityUpdated) validate() error {
	if p.OpportunityID == "" {
		return errors.New("opportunityId is required")
	}
	return nil
}

// OpportunityCancelled announces a host cancelling a tee time
type OpportunityCancelled struct {
	OpportunityID string `json:"opportunityId"`
	HostID        string `json:"hostId"`
	Reason        string `json:"reason,omitempty"`
}

func (OpportunityCancelled) eventPayload() {}

func (p OpportunityCancelled) validate() error {
	if p.OpportunityID == "" {
		return errors.New("opportunityId is required")
	}
	if p.HostID == "" {
		return errors.New("hostId is required")
	}
	return nil
}

// SlotJoined announces a player taking a slot
type SlotJoined struct {
	OpportunityID  string `json:"opportunityId"`
	UserID         string `json:"userId"`
	RemainingSlots int    `json:"remainingSlots"`
}

func (SlotJoined) eventPayload() {}

func (p SlotJoined) validate() error {
	if p.OpportunityID == "" {
		return errors.New("opportunityId is required")
	}
	if p.UserID == "" {
		return errors.New("userId is required")
	}
	if p.RemainingSlots < 0 {
		return errors.Newf("remainingSlots must not be negative, got %d", p.RemainingSlots)
	}
	return nil
}

// SlotLeft announces a player giving up a slot
type SlotLeft struct {
	OpportunityID  string `json:"opportunityId"`
	UserID         string `json:"userId"`
	RemainingSlots int    `json:"remainingSlots"`
}

func (SlotLeft) eventPayload() {}

func (p SlotLeft) validate() error {
	if p.OpportunityID == "" {
		return errors.New("opportunityId is required")
	}
	if p.UserID == "" {
		return errors.New("userId is required")
	}
	if p.RemainingSlots < 0 {
		return errors.Newf("remainingSlots must not be negative, got %d", p.RemainingSlots)
	}
	return nil
}

// MessageSent announces a direct message between players
type MessageSent struct {
	MessageID   string `json:"messageId"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Preview     string `json:"preview,omitempty"`
}

func (MessageSent) eventPayload() {}

func (p MessageSent) validate() error {
	if p.MessageID == "" {
		return errors.New("messageId is required")
	}
	if p.SenderID == "" {
		return errors.New("senderId is required")
	}
	if p.RecipientID == "" {
		return errors.New("recipientId is required")
	}
	if p.SenderID == p.RecipientID {
		return errors.New("sender and recipient must differ")
	}
	return nil
}

// envelope is the wire form of an event
type envelope struct {
	Type          Type            `json:"type"`
	Timestamp     string          `json:"timestamp"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// Parse decodes and validates a raw broker message into an Event.
// Unknown types return ErrUnknownType so callers can distinguish
// forward-compatible events from malformed input.
func Parse(raw []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(err, "decode event envelope")
	}

	if env.Type == "" {
		return nil, errors.New("event type is required")
	}
	if env.Timestamp == "" {
		return nil, errors.New("event timestamp is required")
	}
	ts, err := time.Parse(time.RFC3339, env.Timestamp)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timestamp %q", env.Timestamp)
	}
	if len(env.Payload) == 0 {
		return nil, errors.New("event payload is required")
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return nil, err
	}
	if err := payload.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s payload", env.Type)
	}

	return &Event{
		Type:          env.Type,
		Timestamp:     ts,
		CorrelationID: env.CorrelationID,
		Payload:       payload,
	}, nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch t {
	case TypeOpportunityCreated:
		payload = &OpportunityCreated{}
	case TypeOpportunityUpdated:
		payload = &OpportunityUpdated{}
	case TypeOpportunityCancelled:
		payload = &OpportunityCancelled{}
	case TypeSlotJoined:
		payload = &SlotJoined{}
	case TypeSlotLeft:
		payload = &SlotLeft{}
	case TypeMessageSent:
		payload = &MessageSent{}
	default:
		return nil, errors.Wrapf(ErrUnknownType, "%s", t)
	}

	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, errors.Wrapf(err, "decode %s payload", t)
	}
	return payload, nil
}

// Marshal encodes an event into its wire form. The timestamp is set to
// now if zero, mirroring producer-side convenience.
func Marshal(evt *Event) ([]byte, error) {
	if evt.Payload == nil {
		return nil, errors.New("event payload is required")
	}
	if err := evt.Payload.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid %s payload", evt.Type)
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	payloadJSON, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event payload")
	}

	return json.Marshal(envelope{
		Type:          evt.Type,
		Timestamp:     ts.UTC().Format(time.RFC3339),
		CorrelationID: evt.CorrelationID,
		Payload:       payloadJSON,
	})
}
