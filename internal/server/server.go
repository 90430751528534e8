package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hitmeup/internal/app"
	"hitmeup/internal/ratelimit"
	"hitmeup/internal/realtime"
	"hitmeup/internal/util"
	"hitmeup/pkg/auth"
	"hitmeup/pkg/domain"
	"hitmeup/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	Hub *realtime.Hub

	RedisAddr     string
	RedisPassword string

	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	InviteRateLimitPerMinute int

	TrustedProxyCIDRs []string
	AllowedOrigins    []string
}

// Server exposes the HTTP and websocket endpoints.
type Server struct {
	app            *app.App
	hub            *realtime.Hub
	mux            *http.ServeMux
	trustedProxies *util.TrustedProxies
	allowedOrigins []string
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	inviteLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiters are
// enabled only when a Redis address is supplied.
func New(cfg Config) (*Server, error) {
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}

	var signupLimiter, loginLimiter, inviteLimiter *ratelimit.FixedWindowLimiter
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		signupLimit := cfg.SignupRateLimitPerMinute
		if signupLimit <= 0 {
			signupLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		inviteLimit := cfg.InviteRateLimitPerMinute
		if inviteLimit <= 0 {
			inviteLimit = 10
		}
		rateWindow := time.Minute
		newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
			prefix := "hitmeup:ratelimit:" + name
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
			if err != nil {
				return nil, fmt.Errorf("init %s limiter: %w", name, err)
			}
			return limiter, nil
		}
		if signupLimiter, err = newLimiter("signup", signupLimit); err != nil {
			return nil, err
		}
		if loginLimiter, err = newLimiter("login", loginLimit); err != nil {
			return nil, err
		}
		if inviteLimiter, err = newLimiter("invite", inviteLimit); err != nil {
			return nil, err
		}
	}

	hub := cfg.Hub
	if hub == nil {
		hub = realtime.NewHub()
	}
	s := &Server{
		app:            cfg.App,
		hub:            hub,
		mux:            http.NewServeMux(),
		trustedProxies: trusted,
		allowedOrigins: cfg.AllowedOrigins,
		signupLimiter:  signupLimiter,
		loginLimiter:   loginLimiter,
		inviteLimiter:  inviteLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(
		util.WithCORS(s.allowedOrigins,
			util.WithRequestID(
				util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	s.mux.HandleFunc("/api/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.Handle("/api/auth/logout", s.withUser(s.handleLogout))
	s.mux.Handle("/api/auth/me", s.withUser(s.handleMe))
	s.mux.Handle("/api/users/me/avatar", s.withUser(s.handleAvatarUpload))

	s.mux.Handle("/api/chats", s.withUser(s.handleChats))
	s.mux.Handle("/api/chats/", s.withUser(s.handleChatSubroutes))

	s.mux.Handle("/api/invites", s.withUser(s.handleCreateInvite))
	s.mux.HandleFunc("/api/invites/", s.handleInviteByCode)

	s.mux.Handle("/api/ai/jimmy", s.withUser(s.handleAskJimmy))

	s.mux.Handle("/api/admin/users", s.withUser(s.handleAdminUsers))
	s.mux.Handle("/api/admin/analytics", s.withUser(s.handleAdminAnalytics))

	s.mux.Handle("/ws/chats/", s.withUser(s.handleChatSocket))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string, domain.User)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok, err := s.app.Authenticate(token)
		if err != nil || !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, token, user)
	})
}

// writeAppError maps application errors onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrNameRequired),
		errors.Is(err, app.ErrMessageRequired),
		errors.Is(err, auth.ErrPasswordTooShort):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrEmailAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrNotParticipant), errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrChatNotFound), errors.Is(err, store.ErrInviteNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInviteUsed), errors.Is(err, store.ErrInviteExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, app.ErrAIRateLimited):
		w.Header().Set("Retry-After", "300")
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	// Browsers cannot set headers on websocket dials; accept a query token
	// for the /ws routes.
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, true
	}
	return "", false
}
