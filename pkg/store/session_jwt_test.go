package store

import (
	"testing"
	"time"
)

func TestJWTSessionRoundTrip(t *testing.T) {
	sessions, err := NewJWTSessionStore("secret-1", time.Hour, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	userID, ok, err := sessions.GetUserIDByToken(token)
	if err != nil || !ok || userID != "user-1" {
		t.Fatalf("verify: userID=%q ok=%v err=%v", userID, ok, err)
	}
}

func TestJWTSessionRevocation(t *testing.T) {
	sessions, err := NewJWTSessionStore("secret-1", time.Hour, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sessions.DeleteSession(token); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, ok, _ := sessions.GetUserIDByToken(token); ok {
		t.Fatal("revoked token still validates")
	}

	// Tokens issued after a revocation are independent.
	fresh, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, err := sessions.GetUserIDByToken(fresh); !ok {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestJWTSessionRejectsWrongSecret(t *testing.T) {
	issuer, err := NewJWTSessionStore("secret-1", time.Hour, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	verifier, err := NewJWTSessionStore("secret-2", time.Hour, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := issuer.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if _, ok, _ := verifier.GetUserIDByToken(token); ok {
		t.Fatal("token signed with a different secret validated")
	}
}

func TestJWTSessionRejectsExpired(t *testing.T) {
	sessions, err := NewJWTSessionStore("secret-1", time.Millisecond, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	// Shrink leeway so expiry applies within the test.
	savedLeeway := jwtLeeway
	jwtLeeway = 0
	defer func() { jwtLeeway = savedLeeway }()

	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, ok, _ := sessions.GetUserIDByToken(token); ok {
		t.Fatal("expired token still validates")
	}
}

func TestJWTSessionRejectsGarbage(t *testing.T) {
	sessions, err := NewJWTSessionStore("secret-1", time.Hour, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, token := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, ok, _ := sessions.GetUserIDByToken(token); ok {
			t.Fatalf("token %q validated", token)
		}
	}
}

func TestNewJWTSessionStoreRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("  ", time.Hour, nil); err == nil {
		t.Fatal("empty secret accepted")
	}
}
