// Package notify composes and delivers user notifications across the
// in-app, push, and email channels.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/teemates/realtime/domain"
)

// Notification kinds stored on in-app rows and carried in push payloads
const (
	KindReminder   = "reminder"
	KindSlotFilled = "slot_filled"
	KindCancelled  = "cancelled"
	KindMessage    = "message"
	KindDigest     = "digest"
	KindSuggestion = "suggestion"
)

// Content is one composed notification, channel-agnostic
type Content struct {
	Kind  string          `json:"kind"`
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func opportunityData(oppID string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"opportunityId": oppID})
	return raw
}

// ComposeReminder builds the reminder for an upcoming tee time. The
// window is "24h" or "1h".
func ComposeReminder(opp *domain.Opportunity, window string) Content {
	var title string
	switch window {
	case "1h":
		title = "Tee time in one hour"
	default:
		title = "Tee time tomorrow"
	}
	return Content{
		Kind:  KindReminder,
		Title: title,
		Body: fmt.Sprintf("You tee off at %s, %s.",
			opp.CourseName, opp.StartTime.Format("Mon Jan 2 15:04")),
		Data: opportunityData(opp.ID),
	}
}

// ComposeSlotFilled tells participants their round is complete
func ComposeSlotFilled(opp *domain.Opportunity) Content {
	return Content{
		Kind:  KindSlotFilled,
		Title: "Your round is full",
		Body: fmt.Sprintf("All %d slots at %s are taken. See you on the course.",
			opp.TotalSlots, opp.CourseName),
		Data: opportunityData(opp.ID),
	}
}

// ComposeCancelled tells a participant their round was called off
func ComposeCancelled(opp *domain.Opportunity) Content {
	return Content{
		Kind:  KindCancelled,
		Title: "Tee time cancelled",
		Body: fmt.Sprintf("The round at %s on %s was cancelled by the host.",
			opp.CourseName, opp.StartTime.Format("Mon Jan 2")),
		Data: opportunityData(opp.ID),
	}
}

// ComposeMessage announces a new direct message
func ComposeMessage(sender *domain.User, msg *domain.Message) Content {
	body := msg.Body
	// Truncate on rune boundaries so a multi-byte character is never
	// split mid-sequence.
	if r := []rune(body); len(r) > 120 {
		body = string(r[:117]) + "..."
	}
	raw, _ := json.Marshal(map[string]string{
		"messageId": msg.ID,
		"senderId":  msg.SenderID,
	})
	return Content{
		Kind:  KindMessage,
		Title: "New message from " + sender.Name,
		Body:  body,
		Data:  raw,
	}
}

// ComposeDigest summarizes the week's best matches for a user
func ComposeDigest(count int, topCourse string) Content {
	body := fmt.Sprintf("%d tee times match your profile this week.", count)
	if topCourse != "" {
		body += " Top pick: " + topCourse + "."
	}
	return Content{
		Kind:  KindDigest,
		Title: "Your weekly tee time digest",
		Body:  body,
	}
}

// ComposeSuggestion points a well-matched player at a fresh opportunity
func ComposeSuggestion(opp *domain.Opportunity, reasons []string) Content {
	body := fmt.Sprintf("A round at %s on %s looks like a great fit.",
		opp.CourseName, opp.StartTime.Format("Mon Jan 2 15:04"))
	if len(reasons) > 0 {
		body += " " + reasons[0] + "."
	}
	return Content{
		Kind:  KindSuggestion,
		Title: "A tee time for you",
		Body:  body,
		Data:  opportunityData(opp.ID),
	}
}
