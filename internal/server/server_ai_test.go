package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"hitmeup/pkg/domain"
)

func TestAskJimmyEndpoint(t *testing.T) {
	env := newTestServer(t)
	_, token := env.signup(t, "alice@example.com", "Alice")
	chat := env.createChat(t, token, "general")

	resp, fields := env.do(t, http.MethodPost, "/api/ai/jimmy", token, map[string]any{
		"message":        "@jimmy what's up?",
		"conversationId": chat.ID,
		"context":        []string{"Alice: hi"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var success bool
	_ = json.Unmarshal(fields["success"], &success)
	if !success {
		t.Error("success should be true")
	}
	var msg domain.Message
	if err := json.Unmarshal(fields["message"], &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.UserID != nil || msg.Type != domain.MessageTypeAI {
		t.Errorf("message = %+v", msg)
	}
	if msg.Content != "hey!" {
		t.Errorf("content = %q", msg.Content)
	}
	var usage map[string]int
	if err := json.Unmarshal(fields["usage"], &usage); err != nil {
		t.Fatalf("decode usage: %v", err)
	}
	if usage["inputTokens"] != 10 || usage["outputTokens"] != 5 {
		t.Errorf("usage = %v", usage)
	}
}

func TestAskJimmyEndpointValidation(t *testing.T) {
	env := newTestServer(t)
	_, token := env.signup(t, "alice@example.com", "Alice")
	chat := env.createChat(t, token, "general")

	resp, _ := env.do(t, http.MethodPost, "/api/ai/jimmy", token, map[string]any{
		"conversationId": chat.ID,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing message status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/ai/jimmy", token, map[string]any{
		"message": "@jimmy hi",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing conversationId status = %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/ai/jimmy", "", map[string]any{
		"message": "@jimmy hi", "conversationId": chat.ID,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", resp.StatusCode)
	}
}

func TestAskJimmyEndpointForbiddenForNonMember(t *testing.T) {
	env := newTestServer(t)
	_, aliceToken := env.signup(t, "alice@example.com", "Alice")
	_, bobToken := env.signup(t, "bob@example.com", "Bob")
	chat := env.createChat(t, aliceToken, "general")

	resp, _ := env.do(t, http.MethodPost, "/api/ai/jimmy", bobToken, map[string]any{
		"message": "@jimmy hi", "conversationId": chat.ID,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestAskJimmyEndpointRateLimited(t *testing.T) {
	env := newTestServer(t)
	alice, token := env.signup(t, "alice@example.com", "Alice")
	chat := env.createChat(t, token, "general")

	now := time.Now().UTC()
	for i := 0; i < 10; i++ {
		usage := domain.AIUsage{
			ID: fmt.Sprintf("u-%d", i), UserID: alice.ID, ChatID: chat.ID,
			CreatedAt: now.Add(-time.Minute),
		}
		if err := env.store.AppendAIUsage(usage); err != nil {
			t.Fatalf("usage: %v", err)
		}
	}

	resp, _ := env.do(t, http.MethodPost, "/api/ai/jimmy", token, map[string]any{
		"message": "@jimmy hi", "conversationId": chat.ID,
	})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestAskJimmyEndpointFallbackIsSuccess(t *testing.T) {
	env := newTestServer(t)
	env.generator.err = errors.New("model unavailable")
	_, token := env.signup(t, "alice@example.com", "Alice")
	chat := env.createChat(t, token, "general")

	resp, fields := env.do(t, http.MethodPost, "/api/ai/jimmy", token, map[string]any{
		"message": "@jimmy hi", "conversationId": chat.ID,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fallback status = %d, want 200", resp.StatusCode)
	}
	var msg domain.Message
	_ = json.Unmarshal(fields["message"], &msg)
	if msg.Content == "" || msg.Type != domain.MessageTypeAI {
		t.Fatalf("fallback message = %+v", msg)
	}
}
