package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests into hub-managed WebSocket clients
type Server struct {
	hub        *Hub
	auth       *Authenticator
	upgrader   websocket.Upgrader
	maxClients int
}

// ServerOptions configures the WebSocket endpoint
type ServerOptions struct {
	AllowedOrigins []string
	// MaxClients caps concurrent connections. Zero means unlimited.
	MaxClients int
}

// NewServer creates the WebSocket endpoint handler
func NewServer(hub *Hub, auth *Authenticator, opts ServerOptions) *Server {
	s := &Server{
		hub:        hub,
		auth:       auth,
		maxClients: opts.MaxClients,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return s
}

// originChecker allows same-origin requests plus the configured list.
// An empty list allows everything, for local development.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// ServeHTTP upgrades the request and starts the client's pumps. A bad
// token is rejected over the upgraded socket: the client receives a
// structured error frame and a policy-violation close, never a half
// handshake it has to guess about.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.maxClients > 0 && s.hub.ClientCount() >= s.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	userID, authErr := s.auth.Authenticate(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response
		s.hub.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	if authErr != nil {
		s.hub.log.Warnw("rejecting unauthenticated connection", "error", authErr)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(errorFrame(ErrCodeUnauthorized, "invalid or missing token"))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
		conn.Close()
		return
	}

	client := newClient(s.hub, conn, userID)
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}
