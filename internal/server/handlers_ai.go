package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"hitmeup/pkg/domain"
)

type askJimmyRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId"`
	Context        []string `json:"context"`
}

type askJimmyUsage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	CostCents    int `json:"costCents"`
}

type askJimmyResponse struct {
	Success bool           `json:"success"`
	Message domain.Message `json:"message"`
	Usage   askJimmyUsage  `json:"usage"`
}

func (s *Server) handleAskJimmy(w http.ResponseWriter, r *http.Request, _ string, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req askJimmyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		writeError(w, http.StatusBadRequest, "conversationId is required")
		return
	}
	msg, usage, err := s.app.AskJimmy(r.Context(), user, req.ConversationID, req.Message, req.Context)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, askJimmyResponse{
		Success: true,
		Message: msg,
		Usage: askJimmyUsage{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			CostCents:    usage.CostCents,
		},
	})
}
