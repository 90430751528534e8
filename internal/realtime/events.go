package realtime

import (
	"encoding/json"

	"hitmeup/pkg/domain"
)

// Server-to-client event types.
const (
	EventNewMessage = "new_message"
	EventTyping     = "typing"
	EventPresence   = "presence"
)

// Event is one server-to-client frame.
type Event struct {
	Type   string `json:"type"`
	ChatID string `json:"chatId"`

	// new_message
	Message      *domain.Message `json:"message,omitempty"`
	OptimisticID string          `json:"optimisticId,omitempty"`

	// typing
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	IsTyping bool   `json:"isTyping,omitempty"`

	// presence: full snapshot of the chat's connected users. Online keeps
	// the bare sorted userIDs for cheap set comparisons.
	Online   []string               `json:"online,omitempty"`
	Presence []domain.PresenceEntry `json:"presence,omitempty"`
}

// Marshal encodes the event as a JSON frame. Marshaling these types cannot
// fail, so errors are swallowed.
func (e Event) Marshal() []byte {
	payload, _ := json.Marshal(e)
	return payload
}

// NewMessageEvent builds the frame broadcast after a message is persisted.
// optimisticID echoes the sender's temporary client ID so their UI can
// reconcile the optimistic entry.
func NewMessageEvent(chatID string, msg domain.Message, optimisticID string) Event {
	return Event{
		Type:         EventNewMessage,
		ChatID:       chatID,
		Message:      &msg,
		OptimisticID: optimisticID,
	}
}

// TypingEvent builds a typing start/stop frame.
func TypingEvent(chatID, userID, userName string, isTyping bool) Event {
	return Event{
		Type:     EventTyping,
		ChatID:   chatID,
		UserID:   userID,
		UserName: userName,
		IsTyping: isTyping,
	}
}

// PresenceEvent builds the full presence snapshot for a chat.
func PresenceEvent(chatID string, entries []domain.PresenceEntry) Event {
	online := make([]string, len(entries))
	for i, entry := range entries {
		online[i] = entry.UserID
	}
	return Event{
		Type:     EventPresence,
		ChatID:   chatID,
		Online:   online,
		Presence: entries,
	}
}

// ClientEvent is one client-to-server frame. Clients only send typing
// signals; messages go through the REST API.
type ClientEvent struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"isTyping"`
}
