package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hitmeup/internal/app"
	"hitmeup/internal/realtime"
	"hitmeup/pkg/ai"
	"hitmeup/pkg/domain"
	"hitmeup/pkg/store"
)

type stubGenerator struct {
	reply ai.Reply
	err   error
}

func (g *stubGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (ai.Reply, error) {
	return g.reply, g.err
}

type testEnv struct {
	srv       *httptest.Server
	store     *store.MemoryStore
	generator *stubGenerator
	hub       *realtime.Hub
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	dataStore := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	hub := realtime.NewHub()
	gen := &stubGenerator{reply: ai.Reply{Text: "hey!", InputTokens: 10, OutputTokens: 5}}
	application, err := app.New(app.Config{
		Store:     dataStore,
		Sessions:  sessions,
		Generator: gen,
		Hub:       hub,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: application, Hub: hub})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: dataStore, generator: gen, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	fields := map[string]json.RawMessage{}
	_ = json.Unmarshal(raw, &fields)
	return resp, fields
}

func (e *testEnv) signup(t *testing.T, email, name string) (domain.User, string) {
	t.Helper()
	resp, fields := e.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "password123", "name": name,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d", resp.StatusCode)
	}
	var user domain.User
	if err := json.Unmarshal(fields["user"], &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	var token string
	if err := json.Unmarshal(fields["token"], &token); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return user, token
}

func (e *testEnv) createChat(t *testing.T, token, name string) domain.Chat {
	t.Helper()
	resp, fields := e.do(t, http.MethodPost, "/api/chats", token, map[string]string{"name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create chat status = %d", resp.StatusCode)
	}
	var chat domain.Chat
	raw, _ := json.Marshal(fields)
	if err := json.Unmarshal(raw, &chat); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	return chat
}

func TestAuthFlow(t *testing.T) {
	env := newTestServer(t)
	user, token := env.signup(t, "alice@example.com", "Alice")
	if user.Role != domain.RoleAdmin {
		t.Errorf("first user role = %s, want admin", user.Role)
	}

	resp, _ := env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after logout status = %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRequests(t *testing.T) {
	env := newTestServer(t)
	for _, path := range []string{"/api/chats", "/api/auth/me", "/api/admin/users"} {
		resp, _ := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestSendAndListMessages(t *testing.T) {
	env := newTestServer(t)
	_, token := env.signup(t, "alice@example.com", "Alice")
	chat := env.createChat(t, token, "general")

	resp, fields := env.do(t, http.MethodPost, fmt.Sprintf("/api/chats/%s/messages", chat.ID), token, map[string]string{
		"content": "hello", "optimisticId": "tmp-1",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	if string(fields["content"]) != `"hello"` {
		t.Errorf("content = %s", fields["content"])
	}

	resp, fields = env.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%s/messages", chat.ID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var messages []domain.Message
	if err := json.Unmarshal(fields["messages"], &messages); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" {
		t.Fatalf("messages = %+v", messages)
	}
	var hasMore bool
	_ = json.Unmarshal(fields["hasMore"], &hasMore)
	if hasMore {
		t.Error("hasMore should be false for a short page")
	}
}

func TestMessagesPaginationEndpoint(t *testing.T) {
	env := newTestServer(t)
	alice, token := env.signup(t, "alice@example.com", "Alice")
	chat := env.createChat(t, token, "general")

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	userID := alice.ID
	for i := 0; i < 25; i++ {
		msg := domain.Message{
			ID:        fmt.Sprintf("m-%02d", i),
			ChatID:    chat.ID,
			UserID:    &userID,
			Content:   "m",
			Type:      domain.MessageTypeText,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := env.store.AppendMessage(msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	resp, fields := env.do(t, http.MethodGet, fmt.Sprintf("/api/chats/%s/messages?limit=20", chat.ID), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var page []domain.Message
	_ = json.Unmarshal(fields["messages"], &page)
	if len(page) != 20 {
		t.Fatalf("page size = %d", len(page))
	}
	var hasMore bool
	_ = json.Unmarshal(fields["hasMore"], &hasMore)
	if !hasMore {
		t.Error("hasMore should be true for a full page")
	}

	before := page[0].CreatedAt.Format(time.RFC3339Nano)
	resp, fields = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/chats/%s/messages?limit=20&before=%s", chat.ID, before), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("older page status = %d", resp.StatusCode)
	}
	var older []domain.Message
	_ = json.Unmarshal(fields["messages"], &older)
	if len(older) != 5 {
		t.Fatalf("older page size = %d", len(older))
	}
	_ = json.Unmarshal(fields["hasMore"], &hasMore)
	if hasMore {
		t.Error("hasMore should be false for a short page")
	}
}

func TestChatAccessControl(t *testing.T) {
	env := newTestServer(t)
	_, aliceToken := env.signup(t, "alice@example.com", "Alice")
	_, bobToken := env.signup(t, "bob@example.com", "Bob")
	chat := env.createChat(t, aliceToken, "general")

	resp, _ := env.do(t, http.MethodGet, "/api/chats/"+chat.ID, bobToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member get chat status = %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/chats/%s/messages", chat.ID), bobToken, map[string]string{"content": "hi"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member send status = %d", resp.StatusCode)
	}
}

func TestInviteEndpoints(t *testing.T) {
	env := newTestServer(t)
	_, token := env.signup(t, "alice@example.com", "Alice")
	chat := env.createChat(t, token, "general")

	resp, fields := env.do(t, http.MethodPost, "/api/invites", token, map[string]string{"chatId": chat.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create invite status = %d", resp.StatusCode)
	}
	var code string
	_ = json.Unmarshal(fields["code"], &code)
	if code == "" {
		t.Fatal("expected invite code")
	}

	resp, fields = env.do(t, http.MethodGet, "/api/invites/"+code, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve status = %d", resp.StatusCode)
	}
	var chatName string
	_ = json.Unmarshal(fields["chatName"], &chatName)
	if chatName != "general" {
		t.Errorf("chatName = %q", chatName)
	}

	resp, fields = env.do(t, http.MethodPost, "/api/invites/"+code+"/accept", "", map[string]string{"name": "Charlie"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("accept status = %d", resp.StatusCode)
	}
	var guestToken string
	_ = json.Unmarshal(fields["token"], &guestToken)
	resp, _ = env.do(t, http.MethodGet, "/api/chats/"+chat.ID, guestToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("guest get chat status = %d", resp.StatusCode)
	}

	// Single use.
	resp, _ = env.do(t, http.MethodPost, "/api/invites/"+code+"/accept", "", map[string]string{"name": "Dave"})
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("second accept status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/invites/no-such-code", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing invite status = %d", resp.StatusCode)
	}
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestServer(t)
	_, adminToken := env.signup(t, "admin@example.com", "Admin")
	_, bobToken := env.signup(t, "bob@example.com", "Bob")

	resp, fields := env.do(t, http.MethodGet, "/api/admin/users", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin users status = %d", resp.StatusCode)
	}
	var users []domain.User
	_ = json.Unmarshal(fields["users"], &users)
	if len(users) != 2 {
		t.Errorf("users = %d", len(users))
	}

	resp, _ = env.do(t, http.MethodGet, "/api/admin/analytics", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analytics status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/admin/users", bobToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d", resp.StatusCode)
	}
}
