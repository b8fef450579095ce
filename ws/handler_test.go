package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, opts ServerOptions) (*Hub, *Authenticator, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	auth := NewAuthenticator("test-secret")
	srv := httptest.NewServer(NewServer(hub, auth, opts))
	t.Cleanup(srv.Close)
	return hub, auth, srv
}

func dial(t *testing.T, srv *httptest.Server, auth *Authenticator, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.Token(userID, freshClaims())
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame ServerFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, action, room string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"action": action, "room": room}))
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestServerRejectsBadAuth(t *testing.T) {
	hub, _, srv := startTestServer(t, ServerOptions{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "unauthenticated requests still get a socket")
	defer conn.Close()

	frame := readFrame(t, conn)
	require.Equal(t, FrameError, frame.Type)
	var payload errorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, ErrCodeUnauthorized, payload.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestServerSubscribeAndBroadcast(t *testing.T) {
	hub, auth, srv := startTestServer(t, ServerOptions{})
	conn := dial(t, srv, auth, "alice")

	sendFrame(t, conn, "subscribe", "feed")
	frame := readFrame(t, conn)
	require.Equal(t, FrameSubscribed, frame.Type)

	hub.BroadcastToRoom("feed", NewFrame(FrameNewTeeTime, map[string]string{"opportunityId": "opp-1"}))

	frame = readFrame(t, conn)
	assert.Equal(t, FrameNewTeeTime, frame.Type)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "opp-1", payload["opportunityId"])
}

func TestServerPrivateRoomDelivery(t *testing.T) {
	hub, auth, srv := startTestServer(t, ServerOptions{})
	conn := dial(t, srv, auth, "alice")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client never registered")

	hub.BroadcastToUser("alice", NewFrame(FrameNotification, map[string]string{"title": "welcome"}))
	frame := readFrame(t, conn)
	assert.Equal(t, FrameNotification, frame.Type)
}

func TestServerForbidsForeignUserRoom(t *testing.T) {
	_, auth, srv := startTestServer(t, ServerOptions{})
	conn := dial(t, srv, auth, "alice")

	sendFrame(t, conn, "subscribe", "user:bob")
	frame := readFrame(t, conn)
	require.Equal(t, FrameError, frame.Type)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, ErrCodeForbidden, payload.Code)
}

func TestServerRejectsUnknownRoom(t *testing.T) {
	_, auth, srv := startTestServer(t, ServerOptions{})
	conn := dial(t, srv, auth, "alice")

	sendFrame(t, conn, "subscribe", "lobby")
	frame := readFrame(t, conn)
	require.Equal(t, FrameError, frame.Type)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, ErrCodeInvalidRoom, payload.Code)
}

func TestServerBadFrame(t *testing.T) {
	_, auth, srv := startTestServer(t, ServerOptions{})
	conn := dial(t, srv, auth, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	frame := readFrame(t, conn)
	require.Equal(t, FrameError, frame.Type)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, ErrCodeBadFrame, payload.Code)
}

func TestServerTeardownClearsMemberships(t *testing.T) {
	hub, auth, srv := startTestServer(t, ServerOptions{})
	conn := dial(t, srv, auth, "alice")

	sendFrame(t, conn, "subscribe", "feed")
	readFrame(t, conn)
	sendFrame(t, conn, "subscribe", "tee-time:opp-1")
	readFrame(t, conn)

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "client never unregistered")
	assert.Equal(t, 0, hub.membershipCount())
}

func TestServerMaxClients(t *testing.T) {
	hub, auth, srv := startTestServer(t, ServerOptions{MaxClients: 1})
	dial(t, srv, auth, "alice")
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "first client never registered")

	token, err := auth.Token("bob", freshClaims())
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
