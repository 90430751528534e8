package realtime

import (
	"sort"
	"sync"

	"hitmeup/pkg/domain"
)

// Hub coordinates websocket sessions per chat room. It keeps one active
// connection per user per chat and fans events out to all room members.
// Presence snapshots are broadcast automatically on attach and detach.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Connection            // sessionID -> connection
	rooms    map[string]map[string]*Connection // chatID -> sessionID -> connection
	active   map[string]string                 // chatID+"/"+userID -> sessionID
}

// NewHub constructs an initialized Hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Connection),
		rooms:    make(map[string]map[string]*Connection),
		active:   make(map[string]string),
	}
}

// Attach registers a connection and joins it to its chat room. If the user
// already has a socket in this chat, the old one is closed after the swap.
// The new presence snapshot is broadcast to the whole room.
func (h *Hub) Attach(conn *Connection) {
	var previous *Connection

	h.mu.Lock()
	activeKey := conn.ChatID + "/" + conn.UserID
	if existingID, ok := h.active[activeKey]; ok {
		if existing := h.sessions[existingID]; existing != nil {
			previous = existing
			h.detachLocked(existingID)
		}
	}

	h.sessions[conn.ID] = conn
	h.active[activeKey] = conn.ID
	room := h.rooms[conn.ChatID]
	if room == nil {
		room = make(map[string]*Connection)
		h.rooms[conn.ChatID] = room
	}
	room[conn.ID] = conn
	entries := h.presenceLocked(conn.ChatID)
	h.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(4001, "session replaced")
	}
	h.Broadcast(conn.ChatID, PresenceEvent(conn.ChatID, entries), "")
}

// Detach removes a connection if it is still tracked and broadcasts the
// updated presence snapshot to the remaining room members.
func (h *Hub) Detach(conn *Connection) {
	h.mu.Lock()
	_, tracked := h.sessions[conn.ID]
	h.detachLocked(conn.ID)
	entries := h.presenceLocked(conn.ChatID)
	h.mu.Unlock()

	if tracked {
		h.Broadcast(conn.ChatID, PresenceEvent(conn.ChatID, entries), "")
	}
}

// Broadcast delivers the event to all members of the chat room.
// excludeUserID, when non-empty, prevents delivering to that user.
func (h *Hub) Broadcast(chatID string, event Event, excludeUserID string) int {
	payload := event.Marshal()

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, conn := range h.rooms[chatID] {
		if excludeUserID != "" && conn.UserID == excludeUserID {
			continue
		}
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// Online returns the sorted userIDs currently connected to the chat.
func (h *Hub) Online(chatID string) []string {
	h.mu.RLock()
	online := h.onlineLocked(chatID)
	h.mu.RUnlock()
	return online
}

// Close terminates all tracked connections and clears hub state.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Connection, 0, len(h.sessions))
	for _, conn := range h.sessions {
		sessions = append(sessions, conn)
	}
	h.sessions = make(map[string]*Connection)
	h.rooms = make(map[string]map[string]*Connection)
	h.active = make(map[string]string)
	h.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(1001, "hub shutdown")
	}
}

func (h *Hub) onlineLocked(chatID string) []string {
	entries := h.presenceLocked(chatID)
	online := make([]string, len(entries))
	for i, entry := range entries {
		online[i] = entry.UserID
	}
	return online
}

func (h *Hub) presenceLocked(chatID string) []domain.PresenceEntry {
	room := h.rooms[chatID]
	seen := make(map[string]struct{}, len(room))
	entries := make([]domain.PresenceEntry, 0, len(room))
	for _, conn := range room {
		if _, ok := seen[conn.UserID]; ok {
			continue
		}
		seen[conn.UserID] = struct{}{}
		entries = append(entries, domain.PresenceEntry{
			UserID: conn.UserID,
			Name:   conn.UserName,
			Since:  conn.JoinedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

func (h *Hub) detachLocked(sessionID string) {
	conn, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	delete(h.sessions, sessionID)

	activeKey := conn.ChatID + "/" + conn.UserID
	if current, ok := h.active[activeKey]; ok && current == sessionID {
		delete(h.active, activeKey)
	}

	room := h.rooms[conn.ChatID]
	if room != nil {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(h.rooms, conn.ChatID)
		}
	}
}
