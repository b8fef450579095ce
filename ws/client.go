package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	// Outbound frame buffer per client
	sendBufferSize = 64
)

// Client represents one authenticated WebSocket connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan ServerFrame
	log    *zap.SugaredLogger

	// rooms is the client's membership set, owned by the hub mutex
	rooms map[string]bool

	closeOnce sync.Once // Prevents double-close panics
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan ServerFrame, sendBufferSize),
		log:    hub.log.With("user_id", userID),
		rooms:  make(map[string]bool),
	}
}

// trySend queues a frame without blocking. Returns false if the
// client's buffer is full.
func (c *Client) trySend(frame ServerFrame) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel, stopping the write pump
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump handles reading frames from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Warnw("unparseable client frame", "error", err)
			c.trySend(errorFrame(ErrCodeBadFrame, "frame must be JSON"))
			continue
		}
		c.routeFrame(&frame)
	}
}

// handleReadError logs unexpected WebSocket read errors. Expected
// closure codes (going away, abnormal, no status) pass silently.
func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		c.log.Warnw("websocket read error", "error", err)
	}
}

// routeFrame dispatches client actions. Room checks run in order:
// shape first, then ownership, so a client probing another user's
// room learns only that it is forbidden, not whether it exists.
func (c *Client) routeFrame(frame *clientFrame) {
	switch frame.Action {
	case actionSubscribe:
		if !ValidRoom(frame.Room) {
			c.trySend(errorFrame(ErrCodeInvalidRoom, "unknown room: "+frame.Room))
			return
		}
		if !CanJoin(c.userID, frame.Room) {
			c.trySend(errorFrame(ErrCodeForbidden, "room not accessible: "+frame.Room))
			return
		}
		c.hub.join(c, frame.Room)
		c.trySend(roomFrame(FrameSubscribed, frame.Room))

	case actionUnsubscribe:
		c.hub.leave(c, frame.Room)
		c.trySend(roomFrame(FrameUnsubscribed, frame.Room))

	case actionPing:
		c.trySend(NewFrame(FramePong, nil))

	default:
		c.log.Debugw("unknown client action", "action", frame.Action)
		c.trySend(errorFrame(ErrCodeBadFrame, "unknown action: "+frame.Action))
	}
}

// writePump writes queued frames and keepalive pings to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.log.Warnw("frame write error", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
