package chatclient

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hitmeup/pkg/chatview"
	"hitmeup/pkg/domain"
)

// jimmyPacingDelay is how long the client waits after a mention before
// triggering the responder, so the Jimmy typing indicator is visible before
// the answer appears. Pacing only, not a correctness requirement.
const jimmyPacingDelay = 1200 * time.Millisecond

// mentionsJimmy is a case-insensitive substring check, so "@jimmyjones"
// triggers the responder as well.
func mentionsJimmy(content string) bool {
	return strings.Contains(strings.ToLower(content), "@jimmy")
}

// wsEvent mirrors the server's websocket frame.
type wsEvent struct {
	Type         string          `json:"type"`
	ChatID       string          `json:"chatId"`
	Message      *domain.Message `json:"message,omitempty"`
	OptimisticID string          `json:"optimisticId,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	UserName     string          `json:"userName,omitempty"`
	IsTyping     bool            `json:"isTyping,omitempty"`
	Online       []string        `json:"online,omitempty"`
}

// ChatSession binds one chat's websocket stream to local view state: the
// message timeline, the typing set, and the online list. All exported
// methods are safe for concurrent use.
type ChatSession struct {
	client *Client
	chatID string
	user   domain.User

	Timeline *chatview.Timeline
	Typing   *chatview.TypingTracker

	pager      *chatview.Pager
	jimmyDelay time.Duration

	ws      *websocket.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	online []string

	closeOnce sync.Once
	done      chan struct{}
}

// SessionOption customizes a ChatSession.
type SessionOption func(*ChatSession)

// WithJimmyDelay overrides the responder pacing delay.
func WithJimmyDelay(d time.Duration) SessionOption {
	return func(s *ChatSession) {
		s.jimmyDelay = d
	}
}

// Open loads the latest history page, subscribes to the chat's websocket
// channel, and starts consuming events.
func (c *Client) Open(chatID string, user domain.User, options ...SessionOption) (*ChatSession, error) {
	s := &ChatSession{
		client:     c,
		chatID:     chatID,
		user:       user,
		Timeline:   chatview.NewTimeline(),
		Typing:     chatview.NewTypingTracker(),
		jimmyDelay: jimmyPacingDelay,
		done:       make(chan struct{}),
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}
	s.pager = chatview.NewPager(func(before time.Time, limit int) ([]domain.Message, error) {
		return c.ListMessages(chatID, before, limit)
	}, chatview.DefaultPageSize)

	initial, err := c.ListMessages(chatID, time.Time{}, chatview.DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	s.Timeline.Prepend(initial)

	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http")
	wsURL += fmt.Sprintf("/ws/chats/%s?token=%s", chatID, c.token)
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("subscribe: not a chat participant")
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	s.ws = ws
	go s.readLoop()
	return s, nil
}

// Send runs the optimistic message pipeline: render locally, persist, then
// reconcile with the durable copy. A persistence failure rolls the
// optimistic entry back and surfaces the error; no retry. A case-insensitive
// @jimmy mention triggers the AI responder asynchronously after the pacing
// delay.
func (s *ChatSession) Send(content string) (domain.Message, error) {
	tempID := uuid.NewString()
	userID := s.user.ID
	optimistic := domain.Message{
		ID:        tempID,
		ChatID:    s.chatID,
		UserID:    &userID,
		Content:   content,
		Type:      domain.MessageTypeText,
		CreatedAt: time.Now().UTC(),
	}
	s.Timeline.AppendOptimistic(tempID, optimistic)

	msg, err := s.client.PostMessage(s.chatID, content, tempID)
	if err != nil {
		s.Timeline.RemoveOptimistic(tempID)
		return domain.Message{}, err
	}
	s.Timeline.ConfirmOptimistic(tempID, msg)

	if mentionsJimmy(content) {
		go s.triggerJimmy(content)
	}
	return msg, nil
}

// SendTyping broadcasts a typing signal to the other room members.
func (s *ChatSession) SendTyping(isTyping bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(map[string]any{"type": "typing", "isTyping": isTyping})
}

// LoadOlder pages backwards through history. Concurrent calls while a fetch
// is in flight are ignored.
func (s *ChatSession) LoadOlder() (int, error) {
	return s.pager.LoadOlder(s.Timeline)
}

// HasMore reports whether older history pages may remain.
func (s *ChatSession) HasMore() bool {
	return s.pager.HasMore()
}

// Online returns the userIDs currently subscribed to the chat.
func (s *ChatSession) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.online))
	copy(out, s.online)
	return out
}

// Done is closed when the websocket stream ends.
func (s *ChatSession) Done() <-chan struct{} {
	return s.done
}

// Close tears down the websocket subscription.
func (s *ChatSession) Close() {
	s.closeOnce.Do(func() {
		_ = s.ws.Close()
	})
}

func (s *ChatSession) readLoop() {
	defer close(s.done)
	for {
		var event wsEvent
		if err := s.ws.ReadJSON(&event); err != nil {
			return
		}
		switch event.Type {
		case "new_message":
			if event.Message != nil {
				s.Timeline.Receive(*event.Message, event.OptimisticID)
			}
		case "typing":
			s.Typing.Apply(event.UserID, event.UserName, event.IsTyping)
		case "presence":
			s.mu.Lock()
			s.online = event.Online
			s.mu.Unlock()
		}
	}
}

// triggerJimmy waits out the pacing delay, then asks the responder with the
// last few message lines as context. Failures are logged only; the reply, if
// any, arrives through the response here since the broadcast excludes the
// asker.
func (s *ChatSession) triggerJimmy(message string) {
	time.Sleep(s.jimmyDelay)

	window := s.Timeline.Messages()
	if len(window) > 10 {
		window = window[len(window)-10:]
	}
	contextLines := make([]string, 0, len(window))
	for _, m := range window {
		contextLines = append(contextLines, m.Content)
	}

	reply, err := s.client.AskJimmy(s.chatID, message, contextLines)
	if err != nil {
		slog.Warn("jimmy trigger failed", "chat_id", s.chatID, "error", err)
		return
	}
	s.Timeline.Receive(reply.Message, "")
}
