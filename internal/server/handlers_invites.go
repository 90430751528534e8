package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"hitmeup/pkg/domain"
)

type createInviteRequest struct {
	ChatID    string `json:"chatId"`
	ExpiresIn string `json:"expiresIn"` // Go duration string, optional
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req createInviteRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ChatID) == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}
	var ttl time.Duration
	if req.ExpiresIn != "" {
		parsed, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid expiresIn duration")
			return
		}
		ttl = parsed
	}
	invite, err := s.app.CreateInvite(user, req.ChatID, ttl)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invite)
}

type resolveInviteResponse struct {
	Code      string    `json:"code"`
	ChatID    string    `json:"chatId"`
	ChatName  string    `json:"chatName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type acceptInviteRequest struct {
	Name string `json:"name"`
}

type acceptInviteResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
	Chat  domain.Chat `json:"chat"`
}

// handleInviteByCode serves the unauthenticated invite routes:
// GET /api/invites/{code} and POST /api/invites/{code}/accept.
func (s *Server) handleInviteByCode(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/invites/")
	parts := strings.SplitN(rest, "/", 2)
	code := parts[0]
	if code == "" {
		writeError(w, http.StatusNotFound, "invite code required")
		return
	}

	if len(parts) == 2 {
		if parts[1] != "accept" {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r, s.inviteLimiter, "too many invite attempts") {
			return
		}
		var req acceptInviteRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, token, chat, err := s.app.AcceptInvite(code, req.Name)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, acceptInviteResponse{User: user, Token: token, Chat: chat})
		return
	}

	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	invite, chat, err := s.app.ResolveInvite(code)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveInviteResponse{
		Code:      invite.Code,
		ChatID:    chat.ID,
		ChatName:  chat.Name,
		ExpiresAt: invite.ExpiresAt,
	})
}
