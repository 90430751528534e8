package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestIDKeepsClientSuppliedID(t *testing.T) {
	const supplied = "hitmeup-e2e-42"
	var seen string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("X-Request-Id", supplied)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != supplied {
		t.Fatalf("request id in context = %q, want %q", seen, supplied)
	}
	if got := rec.Header().Get("X-Request-Id"); got != supplied {
		t.Fatalf("request id echoed = %q, want %q", got, supplied)
	}
}

func TestWithRequestIDMintsWhenMissing(t *testing.T) {
	var seen string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromRequest(r)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("no request id minted into context")
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Fatalf("response id = %q, context id = %q", got, seen)
	}
}

func TestRequestIDFromBareContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	if got := RequestIDFromRequest(req); got != "" {
		t.Fatalf("request id outside middleware = %q, want empty", got)
	}
}
