package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"hitmeup/internal/realtime"
	"hitmeup/internal/util"
	"hitmeup/pkg/ai"
	"hitmeup/pkg/auth"
	"hitmeup/pkg/domain"
	"hitmeup/pkg/storage"
	"hitmeup/pkg/store"
)

const (
	defaultInviteTTL   = 7 * 24 * time.Hour
	messagePageSize    = 20
	maxMessagePageSize = 100
)

// Broadcaster fans events out to the members of a chat room.
type Broadcaster interface {
	Broadcast(chatID string, event realtime.Event, excludeUserID string) int
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	SessionTTL    time.Duration

	AnthropicAPIKey string
	AIProvider      string
	AIBaseURL       string
	AIModel         string
	AIMaxTokens     int

	Store     store.Store
	Sessions  store.SessionStore
	Generator ai.TextGenerator
	Hub       Broadcaster
	Avatars   storage.AvatarStore
}

// App is the core application service wiring together storage, sessions,
// realtime fan-out, and the AI responder.
type App struct {
	store    store.Store
	sessions store.SessionStore
	gen      ai.TextGenerator
	hub      Broadcaster
	avatars  storage.AvatarStore
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		var revoker store.TokenRevoker
		if strings.TrimSpace(cfg.RedisAddr) != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		} else {
			revoker = store.NewMemoryTokenRevoker()
		}
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessionStore = jwtStore
	}

	gen := cfg.Generator
	if gen == nil {
		provider := strings.ToLower(strings.TrimSpace(cfg.AIProvider))
		switch provider {
		case "", "anthropic":
			options := []ai.AnthropicOption{}
			if cfg.AIBaseURL != "" {
				options = append(options, ai.WithAnthropicBaseURL(cfg.AIBaseURL))
			}
			if cfg.AIModel != "" {
				options = append(options, ai.WithAnthropicModel(cfg.AIModel))
			}
			if cfg.AIMaxTokens > 0 {
				options = append(options, ai.WithAnthropicMaxTokens(cfg.AIMaxTokens))
			}
			client, err := ai.NewAnthropicClient(cfg.AnthropicAPIKey, options...)
			if err != nil {
				return nil, err
			}
			gen = client
		case "openai-compat":
			gen = ai.NewOpenAICompatGenerator(cfg.AIBaseURL, cfg.AnthropicAPIKey, cfg.AIModel)
		default:
			return nil, fmt.Errorf("unknown ai provider: %s", provider)
		}
	}

	hub := cfg.Hub
	if hub == nil {
		hub = realtime.NewHub()
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
		gen:      gen,
		hub:      hub,
		avatars:  cfg.Avatars,
	}, nil
}

// SignUp registers a new user. The first registered account becomes admin.
func (a *App) SignUp(email, password, name string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	role := domain.RoleUser
	count, err := a.store.UserCount()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.Index(email+"@", "@")]
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Login verifies credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("get user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.Status != domain.StatusActive {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session: %w", err)
	}
	return user, token, nil
}

// Logout revokes the session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// Authenticate resolves a session token to its user.
func (a *App) Authenticate(token string) (domain.User, bool, error) {
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil || !ok {
		return domain.User{}, false, err
	}
	if user.Status != domain.StatusActive {
		return domain.User{}, false, nil
	}
	return user, true, nil
}

// CreateChat creates a chat and auto-joins the creator as chat admin.
func (a *App) CreateChat(user domain.User, name string) (domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Chat{}, ErrNameRequired
	}
	now := time.Now().UTC()
	chat := domain.Chat{
		ID:        util.NewID(),
		Name:      name,
		IsGroup:   true,
		CreatedBy: user.ID,
		CreatedAt: now,
	}
	if err := a.store.CreateChat(chat); err != nil {
		return domain.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	member := domain.ChatMember{
		ChatID:   chat.ID,
		UserID:   user.ID,
		Role:     domain.MemberRoleAdmin,
		JoinedAt: now,
	}
	if err := a.store.AddMember(member); err != nil {
		return domain.Chat{}, fmt.Errorf("add creator member: %w", err)
	}
	return chat, nil
}

// ListChats returns the chats the user belongs to.
func (a *App) ListChats(user domain.User) ([]domain.Chat, error) {
	return a.store.ListChatsByUser(user.ID)
}

// GetChat returns the chat when the user is a member.
func (a *App) GetChat(user domain.User, chatID string) (domain.Chat, error) {
	chat, ok, err := a.store.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("get chat: %w", err)
	}
	if !ok {
		return domain.Chat{}, ErrChatNotFound
	}
	if err := a.requireMember(chatID, user.ID); err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// ListChatMembers returns member entries with resolved user names.
func (a *App) ListChatMembers(user domain.User, chatID string) ([]domain.ChatMember, map[string]domain.User, error) {
	if _, err := a.GetChat(user, chatID); err != nil {
		return nil, nil, err
	}
	members, err := a.store.ListMembers(chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("list members: %w", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := a.store.GetUsersByIDs(ids)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve members: %w", err)
	}
	return members, users, nil
}

// SendMessage persists a user message and broadcasts the durable copy to the
// other room members. optimisticID is the sender's temporary client id,
// carried on the broadcast as a correlation token; receivers with no matching
// optimistic entry dedupe by message id. Broadcast failure never fails the
// send; the message is already durable.
func (a *App) SendMessage(user domain.User, chatID, content, optimisticID string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, ErrMessageRequired
	}
	if err := a.requireMember(chatID, user.ID); err != nil {
		return domain.Message{}, err
	}
	userID := user.ID
	msg := domain.Message{
		ID:        util.NewID(),
		ChatID:    chatID,
		UserID:    &userID,
		Content:   content,
		Type:      domain.MessageTypeText,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.AppendMessage(msg); err != nil {
		return domain.Message{}, fmt.Errorf("append message: %w", err)
	}
	delivered := a.hub.Broadcast(chatID, realtime.NewMessageEvent(chatID, msg, optimisticID), user.ID)
	slog.Debug("message broadcast", "chat_id", chatID, "message_id", msg.ID, "delivered", delivered)
	return msg, nil
}

// ListMessages returns up to limit messages strictly older than before, in
// ascending order. A zero before means "latest page".
func (a *App) ListMessages(user domain.User, chatID string, before time.Time, limit int) ([]domain.Message, error) {
	if err := a.requireMember(chatID, user.ID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = messagePageSize
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}
	if before.IsZero() {
		return a.store.ListRecentMessages(chatID, limit)
	}
	return a.store.ListMessagesBefore(chatID, before, limit)
}

// CreateInvite issues a single-use invite code for a chat the user belongs to.
func (a *App) CreateInvite(user domain.User, chatID string, ttl time.Duration) (domain.Invite, error) {
	if err := a.requireMember(chatID, user.ID); err != nil {
		return domain.Invite{}, err
	}
	if ttl <= 0 {
		ttl = defaultInviteTTL
	}
	now := time.Now().UTC()
	invite := domain.Invite{
		ID:        util.NewID(),
		Code:      util.NewID(),
		ChatID:    chatID,
		CreatedBy: user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := a.store.CreateInvite(invite); err != nil {
		return domain.Invite{}, fmt.Errorf("create invite: %w", err)
	}
	return invite, nil
}

// ResolveInvite validates an invite code and returns the chat it grants.
func (a *App) ResolveInvite(code string) (domain.Invite, domain.Chat, error) {
	invite, ok, err := a.store.GetInviteByCode(strings.TrimSpace(code))
	if err != nil {
		return domain.Invite{}, domain.Chat{}, fmt.Errorf("get invite: %w", err)
	}
	if !ok {
		return domain.Invite{}, domain.Chat{}, store.ErrInviteNotFound
	}
	now := time.Now().UTC()
	if invite.UsedAt != nil {
		return domain.Invite{}, domain.Chat{}, store.ErrInviteUsed
	}
	if !invite.Consumable(now) {
		return domain.Invite{}, domain.Chat{}, store.ErrInviteExpired
	}
	chat, ok, err := a.store.GetChat(invite.ChatID)
	if err != nil {
		return domain.Invite{}, domain.Chat{}, fmt.Errorf("get chat: %w", err)
	}
	if !ok {
		return domain.Invite{}, domain.Chat{}, ErrChatNotFound
	}
	return invite, chat, nil
}

// AcceptInvite creates a lightweight account from a display name, joins the
// chat, and marks the invite used. Member add and invite consumption are
// separate writes; a crash between them leaves a used-up code without a
// membership, resolved by issuing a new invite.
func (a *App) AcceptInvite(code, displayName string) (domain.User, string, domain.Chat, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.User{}, "", domain.Chat{}, ErrNameRequired
	}
	invite, chat, err := a.ResolveInvite(code)
	if err != nil {
		return domain.User{}, "", domain.Chat{}, err
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:        util.NewID(),
		Email:     fmt.Sprintf("guest-%s@hitmeup.local", util.NewID()),
		Name:      displayName,
		Role:      domain.RoleUser,
		Status:    domain.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", domain.Chat{}, fmt.Errorf("save guest user: %w", err)
	}
	member := domain.ChatMember{
		ChatID:   chat.ID,
		UserID:   user.ID,
		Role:     domain.MemberRoleMember,
		JoinedAt: now,
	}
	if err := a.store.AddMember(member); err != nil {
		return domain.User{}, "", domain.Chat{}, fmt.Errorf("add member: %w", err)
	}
	if _, err := a.store.ConsumeInvite(invite.Code, user.ID, now); err != nil {
		return domain.User{}, "", domain.Chat{}, err
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", domain.Chat{}, fmt.Errorf("issue session: %w", err)
	}
	return user, token, chat, nil
}

// UploadAvatar stores the avatar image and saves its storage key on the user.
func (a *App) UploadAvatar(ctx context.Context, user domain.User, filename string, r io.Reader, size int64, contentType string) (string, error) {
	if a.avatars == nil {
		return "", fmt.Errorf("avatar storage not configured")
	}
	key := storage.AvatarKey(user.ID, filename)
	if err := a.avatars.Put(ctx, key, r, size, contentType); err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	user.AvatarKey = key
	user.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(user); err != nil {
		return "", fmt.Errorf("save avatar key: %w", err)
	}
	url, err := a.avatars.PresignGet(ctx, key, 24*time.Hour)
	if err != nil {
		return "", fmt.Errorf("presign avatar: %w", err)
	}
	return url, nil
}

// AdminListUsers returns all users. Admin only.
func (a *App) AdminListUsers(user domain.User) ([]domain.User, error) {
	if user.Role != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	return a.store.ListUsers()
}

// Analytics aggregates counts and AI usage for the admin dashboard.
type Analytics struct {
	Users    int                    `json:"users"`
	Chats    int                    `json:"chats"`
	Messages int                    `json:"messages"`
	AIUsage  domain.AIUsageSummary  `json:"aiUsage"`
	TopUsers []domain.AIUsageByUser `json:"topUsers"`
}

// AdminAnalytics returns the dashboard aggregates. Admin only.
func (a *App) AdminAnalytics(user domain.User) (Analytics, error) {
	if user.Role != domain.RoleAdmin {
		return Analytics{}, ErrForbidden
	}
	users, err := a.store.UserCount()
	if err != nil {
		return Analytics{}, fmt.Errorf("count users: %w", err)
	}
	chats, err := a.store.ChatCount()
	if err != nil {
		return Analytics{}, fmt.Errorf("count chats: %w", err)
	}
	messages, err := a.store.MessageCount()
	if err != nil {
		return Analytics{}, fmt.Errorf("count messages: %w", err)
	}
	usage, err := a.store.SummarizeAIUsage()
	if err != nil {
		return Analytics{}, fmt.Errorf("summarize ai usage: %w", err)
	}
	topUsers, err := a.store.TopAIUsers(5)
	if err != nil {
		return Analytics{}, fmt.Errorf("top ai users: %w", err)
	}
	return Analytics{
		Users:    users,
		Chats:    chats,
		Messages: messages,
		AIUsage:  usage,
		TopUsers: topUsers,
	}, nil
}

// Hub exposes the realtime broadcaster for the websocket server.
func (a *App) Hub() Broadcaster {
	return a.hub
}

// IsMember reports chat membership. Used by the websocket subscribe path.
func (a *App) IsMember(chatID, userID string) (bool, error) {
	return a.store.IsMember(chatID, userID)
}

func (a *App) requireMember(chatID, userID string) error {
	ok, err := a.store.IsMember(chatID, userID)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return ErrNotParticipant
	}
	return nil
}
