package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"hitmeup/pkg/domain"
)

const migrateLockID int64 = 48152623

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent instances do not race each other.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&UserModel{},
			&ChatModel{},
			&ChatMemberModel{},
			&MessageModel{},
			&InviteModel{},
			&AIUsageModel{},
		); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "password_hash", "role", "status", "avatar_key", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUsersByIDs returns a map of users keyed by ID. Missing IDs are simply
// absent from the result.
func (s *GormStore) GetUsersByIDs(ids []string) (map[string]domain.User, error) {
	res := make(map[string]domain.User, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	var models []UserModel
	if err := s.db.Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for _, m := range models {
		res[m.ID] = userFromModel(m)
	}
	return res, nil
}

// ListUsers returns all users ordered by created_at.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateChat stores a new chat record.
func (s *GormStore) CreateChat(c domain.Chat) error {
	model := chatToModel(c)
	return s.db.Create(&model).Error
}

// GetChat retrieves a chat.
func (s *GormStore) GetChat(id string) (domain.Chat, bool, error) {
	var model ChatModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Chat{}, false, nil
		}
		return domain.Chat{}, false, err
	}
	return chatFromModel(model), true, nil
}

// ListChatsByUser returns the chats the user is a member of, newest first.
func (s *GormStore) ListChatsByUser(userID string) ([]domain.Chat, error) {
	var models []ChatModel
	if err := s.db.
		Joins("JOIN chat_member_models ON chat_member_models.chat_id = chat_models.id").
		Where("chat_member_models.user_id = ?", userID).
		Order("chat_models.created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Chat, 0, len(models))
	for _, m := range models {
		res = append(res, chatFromModel(m))
	}
	return res, nil
}

// AddMember records chat membership; re-adding an existing member is a no-op.
func (s *GormStore) AddMember(m domain.ChatMember) error {
	model := memberToModel(m)
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

// IsMember checks chat membership.
func (s *GormStore) IsMember(chatID, userID string) (bool, error) {
	var count int64
	if err := s.db.Model(&ChatMemberModel{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListMembers returns members of a chat in join order.
func (s *GormStore) ListMembers(chatID string) ([]domain.ChatMember, error) {
	var models []ChatMemberModel
	if err := s.db.Where("chat_id = ?", chatID).Order("joined_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ChatMember, 0, len(models))
	for _, m := range models {
		res = append(res, memberFromModel(m))
	}
	return res, nil
}

// ChatCount returns the total number of chats.
func (s *GormStore) ChatCount() (int, error) {
	var count int64
	if err := s.db.Model(&ChatModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// AppendMessage records a message. Messages are never updated afterwards.
func (s *GormStore) AppendMessage(msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// ListRecentMessages returns the newest messages for a chat in chronological
// order (fetched newest-first, then reversed).
func (s *GormStore) ListRecentMessages(chatID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.Where("chat_id = ?", chatID).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// ListMessagesBefore returns up to limit messages strictly older than
// before, in chronological order.
func (s *GormStore) ListMessagesBefore(chatID string, before time.Time, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}
	var models []MessageModel
	if err := s.db.Where("chat_id = ? AND created_at < ?", chatID, before).
		Order("created_at DESC, seq DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// MessageCount returns the total number of messages.
func (s *GormStore) MessageCount() (int, error) {
	var count int64
	if err := s.db.Model(&MessageModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// CreateInvite stores a new invite.
func (s *GormStore) CreateInvite(inv domain.Invite) error {
	model := inviteToModel(inv)
	return s.db.Create(&model).Error
}

// GetInviteByCode resolves an invite row.
func (s *GormStore) GetInviteByCode(code string) (domain.Invite, bool, error) {
	var model InviteModel
	if err := s.db.Where("code = ?", code).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Invite{}, false, nil
		}
		return domain.Invite{}, false, err
	}
	return inviteFromModel(model), true, nil
}

// ConsumeInvite marks an invite used by userID. The row is locked so an
// invite can be consumed at most once.
func (s *GormStore) ConsumeInvite(code, userID string, now time.Time) (domain.Invite, error) {
	var consumed domain.Invite
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var model InviteModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).First(&model).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrInviteNotFound
			}
			return err
		}
		if model.UsedAt != nil {
			return ErrInviteUsed
		}
		if !now.Before(model.ExpiresAt) {
			return ErrInviteExpired
		}
		usedAt := now.UTC()
		model.UsedBy = &userID
		model.UsedAt = &usedAt
		if err := tx.Model(&InviteModel{}).Where("id = ?", model.ID).
			Updates(map[string]any{"used_by": userID, "used_at": usedAt}).Error; err != nil {
			return err
		}
		consumed = inviteFromModel(model)
		return nil
	})
	if err != nil {
		return domain.Invite{}, err
	}
	return consumed, nil
}

// AppendAIUsage records one AI call for accounting.
func (s *GormStore) AppendAIUsage(u domain.AIUsage) error {
	model := aiUsageToModel(u)
	return s.db.Create(&model).Error
}

// CountAIUsageSince is the time-windowed row count backing the Jimmy rate
// limit.
func (s *GormStore) CountAIUsageSince(userID string, since time.Time) (int, error) {
	var count int64
	if err := s.db.Model(&AIUsageModel{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SummarizeAIUsage aggregates all usage rows.
func (s *GormStore) SummarizeAIUsage() (domain.AIUsageSummary, error) {
	var row struct {
		Requests     int64
		InputTokens  int64
		OutputTokens int64
		CostCents    int64
	}
	if err := s.db.Model(&AIUsageModel{}).
		Select("COUNT(*) AS requests, COALESCE(SUM(input_tokens),0) AS input_tokens, COALESCE(SUM(output_tokens),0) AS output_tokens, COALESCE(SUM(cost_cents),0) AS cost_cents").
		Scan(&row).Error; err != nil {
		return domain.AIUsageSummary{}, err
	}
	return domain.AIUsageSummary{
		Requests:     int(row.Requests),
		InputTokens:  int(row.InputTokens),
		OutputTokens: int(row.OutputTokens),
		CostCents:    int(row.CostCents),
	}, nil
}

// TopAIUsers returns per-user request counts, heaviest first.
func (s *GormStore) TopAIUsers(limit int) ([]domain.AIUsageByUser, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []struct {
		UserID    string
		Requests  int64
		CostCents int64
	}
	if err := s.db.Model(&AIUsageModel{}).
		Select("user_id, COUNT(*) AS requests, COALESCE(SUM(cost_cents),0) AS cost_cents").
		Group("user_id").
		Order("requests DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.AIUsageByUser, 0, len(rows))
	for _, r := range rows {
		res = append(res, domain.AIUsageByUser{
			UserID:    r.UserID,
			Requests:  int(r.Requests),
			CostCents: int(r.CostCents),
		})
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		Status:       string(u.Status),
		AvatarKey:    u.AvatarKey,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	status := domain.UserStatus(m.Status)
	if status == "" {
		status = domain.StatusActive
	}
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Role:         domain.UserRole(m.Role),
		Status:       status,
		AvatarKey:    m.AvatarKey,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func chatToModel(c domain.Chat) ChatModel {
	return ChatModel{
		ID:        c.ID,
		Name:      c.Name,
		IsGroup:   c.IsGroup,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt,
	}
}

func chatFromModel(m ChatModel) domain.Chat {
	return domain.Chat{
		ID:        m.ID,
		Name:      m.Name,
		IsGroup:   m.IsGroup,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
	}
}

func memberToModel(m domain.ChatMember) ChatMemberModel {
	return ChatMemberModel{
		ChatID:   m.ChatID,
		UserID:   m.UserID,
		Role:     string(m.Role),
		JoinedAt: m.JoinedAt,
	}
}

func memberFromModel(m ChatMemberModel) domain.ChatMember {
	return domain.ChatMember{
		ChatID:   m.ChatID,
		UserID:   m.UserID,
		Role:     domain.MemberRole(m.Role),
		JoinedAt: m.JoinedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		UserID:    msg.UserID,
		Content:   msg.Content,
		Type:      string(msg.Type),
		IsAI:      msg.IsAI,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		UserID:    m.UserID,
		Content:   m.Content,
		Type:      domain.MessageType(m.Type),
		IsAI:      m.IsAI,
		CreatedAt: m.CreatedAt,
	}
}

func inviteToModel(inv domain.Invite) InviteModel {
	var usedBy *string
	if inv.UsedBy != "" {
		value := inv.UsedBy
		usedBy = &value
	}
	return InviteModel{
		ID:        inv.ID,
		Code:      inv.Code,
		ChatID:    inv.ChatID,
		CreatedBy: inv.CreatedBy,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
		UsedBy:    usedBy,
		UsedAt:    inv.UsedAt,
	}
}

func inviteFromModel(m InviteModel) domain.Invite {
	usedBy := ""
	if m.UsedBy != nil {
		usedBy = *m.UsedBy
	}
	return domain.Invite{
		ID:        m.ID,
		Code:      m.Code,
		ChatID:    m.ChatID,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		UsedBy:    usedBy,
		UsedAt:    m.UsedAt,
	}
}

func aiUsageToModel(u domain.AIUsage) AIUsageModel {
	details, _ := json.Marshal(u.Details)
	return AIUsageModel{
		ID:           u.ID,
		UserID:       u.UserID,
		ChatID:       u.ChatID,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CostCents:    u.CostCents,
		Details:      details,
		CreatedAt:    u.CreatedAt,
	}
}
