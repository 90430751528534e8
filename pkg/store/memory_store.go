package store

import (
	"sort"
	"sync"
	"time"

	"hitmeup/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and local
// development; semantics mirror GormStore.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]domain.User
	email      map[string]string // email -> user ID
	userOrder  []string
	chats      map[string]domain.Chat
	members    map[string][]domain.ChatMember // chatID -> members
	messages   map[string][]domain.Message    // chatID -> messages in insertion order
	invites    map[string]domain.Invite       // code -> invite
	usage      []domain.AIUsage
	totalMsgs  int
	totalChats int
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		email:    make(map[string]string),
		chats:    make(map[string]domain.Chat),
		members:  make(map[string][]domain.ChatMember),
		messages: make(map[string][]domain.Message),
		invites:  make(map[string]domain.Invite),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; !exists {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id, ok := m.email[email]; ok {
		u, exists := m.users[id]
		return u, exists, nil
	}
	return domain.User{}, false, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUsersByIDs returns users keyed by ID; missing IDs are absent.
func (m *MemoryStore) GetUsersByIDs(ids []string) (map[string]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			res[id] = u
		}
	}
	return res, nil
}

// ListUsers returns all users in registration order.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.userOrder))
	for _, id := range m.userOrder {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// CreateChat stores a new chat.
func (m *MemoryStore) CreateChat(c domain.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[c.ID] = c
	m.totalChats++
	return nil
}

// GetChat retrieves a chat.
func (m *MemoryStore) GetChat(id string) (domain.Chat, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	return c, ok, nil
}

// ListChatsByUser returns chats the user belongs to, newest first.
func (m *MemoryStore) ListChatsByUser(userID string) ([]domain.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Chat
	for chatID, members := range m.members {
		for _, member := range members {
			if member.UserID == userID {
				if c, ok := m.chats[chatID]; ok {
					res = append(res, c)
				}
				break
			}
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

// AddMember records membership; re-adding is a no-op.
func (m *MemoryStore) AddMember(member domain.ChatMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members[member.ChatID] {
		if existing.UserID == member.UserID {
			return nil
		}
	}
	m.members[member.ChatID] = append(m.members[member.ChatID], member)
	return nil
}

// IsMember checks chat membership.
func (m *MemoryStore) IsMember(chatID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, member := range m.members[chatID] {
		if member.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ListMembers returns members in join order.
func (m *MemoryStore) ListMembers(chatID string) ([]domain.ChatMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.ChatMember, len(m.members[chatID]))
	copy(res, m.members[chatID])
	return res, nil
}

// ChatCount returns total chats.
func (m *MemoryStore) ChatCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalChats, nil
}

// AppendMessage records a message in insertion order.
func (m *MemoryStore) AppendMessage(msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ChatID] = append(m.messages[msg.ChatID], msg)
	m.totalMsgs++
	return nil
}

// ListRecentMessages returns the chronological tail of a chat.
func (m *MemoryStore) ListRecentMessages(chatID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.sortedMessagesLocked(chatID)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	res := make([]domain.Message, len(msgs))
	copy(res, msgs)
	return res, nil
}

// ListMessagesBefore returns up to limit messages strictly older than
// before, chronological.
func (m *MemoryStore) ListMessagesBefore(chatID string, before time.Time, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.sortedMessagesLocked(chatID)
	var older []domain.Message
	for _, msg := range msgs {
		if msg.CreatedAt.Before(before) {
			older = append(older, msg)
		}
	}
	if limit > 0 && len(older) > limit {
		older = older[len(older)-limit:]
	}
	return older, nil
}

func (m *MemoryStore) sortedMessagesLocked(chatID string) []domain.Message {
	msgs := make([]domain.Message, len(m.messages[chatID]))
	copy(msgs, m.messages[chatID])
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	return msgs
}

// MessageCount returns total messages.
func (m *MemoryStore) MessageCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalMsgs, nil
}

// CreateInvite stores an invite keyed by code.
func (m *MemoryStore) CreateInvite(inv domain.Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[inv.Code] = inv
	return nil
}

// GetInviteByCode resolves an invite.
func (m *MemoryStore) GetInviteByCode(code string) (domain.Invite, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invites[code]
	return inv, ok, nil
}

// ConsumeInvite marks an invite used; at most once, only before expiry.
func (m *MemoryStore) ConsumeInvite(code, userID string, now time.Time) (domain.Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.invites[code]
	if !ok {
		return domain.Invite{}, ErrInviteNotFound
	}
	if inv.UsedAt != nil {
		return domain.Invite{}, ErrInviteUsed
	}
	if !now.Before(inv.ExpiresAt) {
		return domain.Invite{}, ErrInviteExpired
	}
	usedAt := now.UTC()
	inv.UsedBy = userID
	inv.UsedAt = &usedAt
	m.invites[code] = inv
	return inv, nil
}

// AppendAIUsage records one AI call.
func (m *MemoryStore) AppendAIUsage(u domain.AIUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, u)
	return nil
}

// CountAIUsageSince counts a user's AI calls in the window.
func (m *MemoryStore) CountAIUsageSince(userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, u := range m.usage {
		if u.UserID == userID && !u.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// SummarizeAIUsage aggregates all usage rows.
func (m *MemoryStore) SummarizeAIUsage() (domain.AIUsageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s domain.AIUsageSummary
	for _, u := range m.usage {
		s.Requests++
		s.InputTokens += u.InputTokens
		s.OutputTokens += u.OutputTokens
		s.CostCents += u.CostCents
	}
	return s, nil
}

// TopAIUsers returns per-user aggregates, heaviest first.
func (m *MemoryStore) TopAIUsers(limit int) ([]domain.AIUsageByUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byUser := make(map[string]*domain.AIUsageByUser)
	var order []string
	for _, u := range m.usage {
		row, ok := byUser[u.UserID]
		if !ok {
			row = &domain.AIUsageByUser{UserID: u.UserID}
			byUser[u.UserID] = row
			order = append(order, u.UserID)
		}
		row.Requests++
		row.CostCents += u.CostCents
	}
	res := make([]domain.AIUsageByUser, 0, len(order))
	for _, id := range order {
		res = append(res, *byUser[id])
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Requests > res[j].Requests })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
