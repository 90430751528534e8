package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	PasswordHash string
	Role         string `gorm:"not null"`
	Status       string
	AvatarKey    string
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ChatModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	IsGroup   bool
	CreatedBy string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

type ChatMemberModel struct {
	ChatID   string    `gorm:"primaryKey"`
	UserID   string    `gorm:"primaryKey;index"`
	Role     string    `gorm:"not null"`
	JoinedAt time.Time `gorm:"not null"`
}

// MessageModel carries a serial Seq so equal-timestamp messages keep
// insertion order.
type MessageModel struct {
	ID        string `gorm:"primaryKey"`
	Seq       int64  `gorm:"autoIncrement;uniqueIndex"`
	ChatID    string `gorm:"not null;index:idx_messages_chat_created"`
	UserID    *string
	Content   string    `gorm:"type:text;not null"`
	Type      string    `gorm:"not null"`
	IsAI      bool      `gorm:"column:is_ai"`
	CreatedAt time.Time `gorm:"not null;index:idx_messages_chat_created"`
}

type InviteModel struct {
	ID        string `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	ChatID    string `gorm:"not null;index"`
	CreatedBy string `gorm:"not null"`
	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null"`
	UsedBy    *string
	UsedAt    *time.Time
}

type AIUsageModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index:idx_ai_usage_user_created"`
	ChatID       string `gorm:"not null;index"`
	InputTokens  int
	OutputTokens int
	CostCents    int
	Details      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_ai_usage_user_created"`
}
