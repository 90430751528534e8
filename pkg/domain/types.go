package domain

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
	MessageTypeAI     MessageType = "ai"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	AvatarKey    string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsGroup   bool      `json:"isGroup"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

// ChatMember is a (chat, user) membership pair. Membership is binary;
// there are no pending or partial states.
type ChatMember struct {
	ChatID   string     `json:"chatId"`
	UserID   string     `json:"userId"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
}

// Message is immutable once persisted. UserID is nil for AI and system
// messages. Ordering key is CreatedAt; ties resolve in insertion order.
type Message struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	UserID    *string     `json:"userId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	IsAI      bool        `json:"isAi"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Invite is a single-use token granting membership in a chat. It is
// consumable at most once and only before ExpiresAt.
type Invite struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	ChatID    string     `json:"chatId"`
	CreatedBy string     `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UsedBy    string     `json:"usedBy,omitempty"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
}

// Consumable reports whether the invite can still be redeemed at the given
// instant.
func (i Invite) Consumable(now time.Time) bool {
	return i.UsedAt == nil && now.Before(i.ExpiresAt)
}

// AIUsage is an append-only accounting record for one model call. It feeds
// the admin analytics and the count-over-window rate limit; nothing else
// reads it.
type AIUsage struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	ChatID       string            `json:"chatId"`
	InputTokens  int               `json:"inputTokens"`
	OutputTokens int               `json:"outputTokens"`
	CostCents    int               `json:"costCents"`
	Details      map[string]string `json:"details,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// TypingEvent is the ephemeral typing relay payload. It is never persisted;
// receivers expire it locally after a fixed timeout.
type TypingEvent struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
}

// PresenceEntry reports one user currently subscribed to a chat channel.
type PresenceEntry struct {
	UserID string    `json:"userId"`
	Name   string    `json:"name"`
	Since  time.Time `json:"since"`
}

// AIUsageSummary aggregates usage rows for the admin analytics view.
type AIUsageSummary struct {
	Requests     int `json:"requests"`
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	CostCents    int `json:"costCents"`
}

// AIUsageByUser is a per-user aggregate row, ordered by request count.
type AIUsageByUser struct {
	UserID    string `json:"userId"`
	Requests  int    `json:"requests"`
	CostCents int    `json:"costCents"`
}
