package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"hitmeup/internal/realtime"
	"hitmeup/pkg/domain"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the session token; the API may be served from a
	// different origin than the web client.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleChatSocket upgrades GET /ws/chats/{id} to a websocket, joins the hub
// room, and relays inbound typing signals to the other members. Messages
// themselves go through the REST API; the socket is receive-mostly.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	chatID := strings.TrimPrefix(r.URL.Path, "/ws/chats/")
	if chatID == "" || strings.Contains(chatID, "/") {
		writeError(w, http.StatusNotFound, "chat id required")
		return
	}
	ok, err := s.app.IsMember(chatID, user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "membership check failed")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a chat participant")
		return
	}

	ws, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "chat_id", chatID, "user_id", user.ID, "error", err)
		return
	}

	conn := realtime.NewConnection(user.ID, user.Name, chatID, ws)
	s.hub.Attach(conn)
	defer func() {
		s.hub.Detach(conn)
		conn.Close(websocket.CloseNormalClosure, "")
	}()

	for {
		event, err := conn.ReadEvent()
		if err != nil {
			return
		}
		if event.Type != realtime.EventTyping {
			continue
		}
		s.hub.Broadcast(chatID, realtime.TypingEvent(chatID, user.ID, user.Name, event.IsTyping), user.ID)
	}
}
