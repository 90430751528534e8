package store

import (
	"errors"
	"time"

	"hitmeup/pkg/domain"
)

var (
	ErrInviteNotFound = errors.New("invite not found")
	ErrInviteUsed     = errors.New("invite already used")
	ErrInviteExpired  = errors.New("invite expired")
)

// Store defines persistence operations for users, chats, messages, invites,
// and AI usage accounting.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	GetUsersByIDs(ids []string) (map[string]domain.User, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)

	// chats and membership
	CreateChat(domain.Chat) error
	GetChat(id string) (domain.Chat, bool, error)
	ListChatsByUser(userID string) ([]domain.Chat, error)
	AddMember(domain.ChatMember) error
	IsMember(chatID, userID string) (bool, error)
	ListMembers(chatID string) ([]domain.ChatMember, error)
	ChatCount() (int, error)

	// messages
	AppendMessage(domain.Message) error
	ListRecentMessages(chatID string, limit int) ([]domain.Message, error)
	ListMessagesBefore(chatID string, before time.Time, limit int) ([]domain.Message, error)
	MessageCount() (int, error)

	// invites
	CreateInvite(domain.Invite) error
	GetInviteByCode(code string) (domain.Invite, bool, error)
	ConsumeInvite(code, userID string, now time.Time) (domain.Invite, error)

	// AI usage
	AppendAIUsage(domain.AIUsage) error
	CountAIUsageSince(userID string, since time.Time) (int, error)
	SummarizeAIUsage() (domain.AIUsageSummary, error)
	TopAIUsers(limit int) ([]domain.AIUsageByUser, error)
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
