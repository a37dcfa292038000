package handler

import (
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pkordes/transit-dispatch/internal/hub"
)

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || len(allowed) == 0 || slices.Contains(allowed, origin)
		},
	}
}

// ServeWS handles GET /ws. It upgrades the connection, registers a session
// for the authenticated identity, and blocks until the peer disconnects or
// the hub drops the session.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := actor(r)

	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "err", err)
		return
	}
	conn := hub.NewWSConn(raw, s.writeWait)

	sessionID := uuid.NewString()
	if _, err := s.sessions.Register(sessionID, identity, conn); err != nil {
		s.logger.WarnContext(r.Context(), "session rejected", "user_id", identity.UserID, "err", err)
		_ = conn.Close()
		return
	}
	defer s.sessions.Deregister(sessionID)

	if err := conn.ReadUntilClosed(); err != nil {
		s.logger.DebugContext(r.Context(), "session read ended", "session_id", sessionID, "err", err)
	}
}
