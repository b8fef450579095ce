package ws

import (
	"encoding/json"
	"time"
)

// Server frame types pushed to clients
const (
	FrameTeeTimeUpdate = "tee_time_update"
	FrameNewTeeTime    = "new_tee_time"
	FrameSlotFilled    = "slot_filled"
	FrameNotification  = "notification"
	FrameSubscribed    = "subscribed"
	FrameUnsubscribed  = "unsubscribed"
	FrameError         = "error"
	FramePong          = "pong"
)

// Client frame actions
const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	actionPing        = "ping"
)

// Error codes carried in error frames
const (
	ErrCodeInvalidRoom  = "invalid_room"
	ErrCodeForbidden    = "forbidden"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeBadFrame     = "bad_frame"
)

// ServerFrame is the envelope for every message pushed to a client
type ServerFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// clientFrame is what clients send: an action plus an optional room
type clientFrame struct {
	Action string `json:"action"`
	Room   string `json:"room,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type roomPayload struct {
	Room string `json:"room"`
}

// NewFrame builds a server frame, marshaling the payload. Marshal
// failures indicate a programmer error and produce an error frame
// instead of silence.
func NewFrame(frameType string, payload interface{}) ServerFrame {
	frame := ServerFrame{Type: frameType, Timestamp: time.Now().UTC()}
	if payload == nil {
		return frame
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return errorFrame(ErrCodeBadFrame, "unencodable payload")
	}
	frame.Payload = raw
	return frame
}

func errorFrame(code, message string) ServerFrame {
	raw, _ := json.Marshal(errorPayload{Code: code, Message: message})
	return ServerFrame{Type: FrameError, Payload: raw, Timestamp: time.Now().UTC()}
}

func roomFrame(frameType, room string) ServerFrame {
	return NewFrame(frameType, roomPayload{Room: room})
}
