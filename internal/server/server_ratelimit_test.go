package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"hitmeup/internal/app"
	"hitmeup/pkg/ai"
	"hitmeup/pkg/store"
)

func TestLoginRateLimit(t *testing.T) {
	redis := miniredis.RunT(t)

	dataStore := store.NewMemoryStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	application, err := app.New(app.Config{
		Store:     dataStore,
		Sessions:  sessions,
		Generator: &stubGenerator{reply: ai.Reply{Text: "ok"}},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{
		App:                     application,
		RedisAddr:               redis.Addr(),
		LoginRateLimitPerMinute: 1,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body := []byte(`{"email":"u@example.com","password":"password123"}`)
	resp1, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("first login request failed: %v", err)
	}
	resp1.Body.Close()
	if resp1.StatusCode == http.StatusTooManyRequests {
		t.Fatalf("first request should not be rate limited")
	}

	resp2, err := http.Post(srv.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("second login request failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp2.StatusCode)
	}
}
