package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hitmeup/pkg/domain"
)

type createChatRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		var req createChatRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		chat, err := s.app.CreateChat(user, req.Name)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, chat)
	case http.MethodGet:
		chats, err := s.app.ListChats(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
	default:
		methodNotAllowed(w)
	}
}

// handleChatSubroutes dispatches /api/chats/{id}[/members|/messages].
func (s *Server) handleChatSubroutes(w http.ResponseWriter, r *http.Request, token string, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	parts := strings.SplitN(rest, "/", 2)
	chatID := parts[0]
	if chatID == "" {
		writeError(w, http.StatusNotFound, "chat id required")
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}
	switch sub {
	case "":
		s.handleChatByID(w, r, user, chatID)
	case "members":
		s.handleChatMembers(w, r, user, chatID)
	case "messages":
		s.handleChatMessages(w, r, user, chatID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleChatByID(w http.ResponseWriter, r *http.Request, user domain.User, chatID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	chat, err := s.app.GetChat(user, chatID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type memberResponse struct {
	UserID   string            `json:"userId"`
	Name     string            `json:"name"`
	Role     domain.MemberRole `json:"role"`
	JoinedAt time.Time         `json:"joinedAt"`
}

func (s *Server) handleChatMembers(w http.ResponseWriter, r *http.Request, user domain.User, chatID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	members, users, err := s.app.ListChatMembers(user, chatID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		entry := memberResponse{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
		if u, ok := users[m.UserID]; ok {
			entry.Name = u.Name
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

type sendMessageRequest struct {
	Content      string `json:"content"`
	OptimisticID string `json:"optimisticId"`
}

type messagesResponse struct {
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

func (s *Server) handleChatMessages(w http.ResponseWriter, r *http.Request, user domain.User, chatID string) {
	switch r.Method {
	case http.MethodPost:
		var req sendMessageRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		msg, err := s.app.SendMessage(user, chatID, req.Content, req.OptimisticID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	case http.MethodGet:
		var before time.Time
		if raw := r.URL.Query().Get("before"); raw != "" {
			parsed, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid before timestamp")
				return
			}
			before = parsed
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}
		if limit == 0 {
			limit = 20
		}
		messages, err := s.app.ListMessages(user, chatID, before, limit)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messagesResponse{
			Messages: messages,
			HasMore:  len(messages) == limit,
		})
	default:
		methodNotAllowed(w)
	}
}
