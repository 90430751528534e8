// Package chatclient is the Go client for the HitMeUp API. Client covers the
// REST surface; ChatSession binds one chat's websocket stream to the
// chatview state.
package chatclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hitmeup/pkg/domain"
)

// Client calls the HitMeUp API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents an API error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs an API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken installs the session token used for authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Token returns the current session token.
func (c *Client) Token() string {
	return c.token
}

type sessionResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// SignUp registers an account and stores the returned session token.
func (c *Client) SignUp(email, password, name string) (domain.User, error) {
	payload := map[string]string{"email": email, "password": password, "name": name}
	var resp sessionResponse
	if err := c.doJSON(http.MethodPost, "/api/auth/signup", payload, &resp); err != nil {
		return domain.User{}, err
	}
	c.token = resp.Token
	return resp.User, nil
}

// Login authenticates and stores the returned session token.
func (c *Client) Login(email, password string) (domain.User, error) {
	payload := map[string]string{"email": email, "password": password}
	var resp sessionResponse
	if err := c.doJSON(http.MethodPost, "/api/auth/login", payload, &resp); err != nil {
		return domain.User{}, err
	}
	c.token = resp.Token
	return resp.User, nil
}

// Logout revokes the current session token.
func (c *Client) Logout() error {
	err := c.doJSON(http.MethodPost, "/api/auth/logout", nil, nil)
	if err == nil {
		c.token = ""
	}
	return err
}

// Me returns the authenticated user.
func (c *Client) Me() (domain.User, error) {
	var user domain.User
	if err := c.doJSON(http.MethodGet, "/api/auth/me", nil, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// CreateChat creates a chat and auto-joins the caller.
func (c *Client) CreateChat(name string) (domain.Chat, error) {
	var chat domain.Chat
	if err := c.doJSON(http.MethodPost, "/api/chats", map[string]string{"name": name}, &chat); err != nil {
		return domain.Chat{}, err
	}
	return chat, nil
}

// ListChats returns the caller's chats.
func (c *Client) ListChats() ([]domain.Chat, error) {
	var resp struct {
		Chats []domain.Chat `json:"chats"`
	}
	if err := c.doJSON(http.MethodGet, "/api/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// PostMessage persists a message. optimisticID is the client's temporary id
// echoed in the broadcast to other subscribers.
func (c *Client) PostMessage(chatID, content, optimisticID string) (domain.Message, error) {
	payload := map[string]string{"content": content, "optimisticId": optimisticID}
	var msg domain.Message
	path := fmt.Sprintf("/api/chats/%s/messages", chatID)
	if err := c.doJSON(http.MethodPost, path, payload, &msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListMessages fetches up to limit messages strictly older than before
// (zero means the latest page), ascending.
func (c *Client) ListMessages(chatID string, before time.Time, limit int) ([]domain.Message, error) {
	path := fmt.Sprintf("/api/chats/%s/messages?limit=%d", chatID, limit)
	if !before.IsZero() {
		path += "&before=" + before.UTC().Format(time.RFC3339Nano)
	}
	var resp struct {
		Messages []domain.Message `json:"messages"`
		HasMore  bool             `json:"hasMore"`
	}
	if err := c.doJSON(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// CreateInvite issues an invite code for a chat.
func (c *Client) CreateInvite(chatID string) (domain.Invite, error) {
	var invite domain.Invite
	if err := c.doJSON(http.MethodPost, "/api/invites", map[string]string{"chatId": chatID}, &invite); err != nil {
		return domain.Invite{}, err
	}
	return invite, nil
}

// AcceptInvite joins a chat via invite code as a lightweight account and
// stores the new session token.
func (c *Client) AcceptInvite(code, name string) (domain.User, domain.Chat, error) {
	var resp struct {
		User  domain.User `json:"user"`
		Token string      `json:"token"`
		Chat  domain.Chat `json:"chat"`
	}
	path := fmt.Sprintf("/api/invites/%s/accept", code)
	if err := c.doJSON(http.MethodPost, path, map[string]string{"name": name}, &resp); err != nil {
		return domain.User{}, domain.Chat{}, err
	}
	c.token = resp.Token
	return resp.User, resp.Chat, nil
}

// JimmyReply is the AI responder result.
type JimmyReply struct {
	Success bool           `json:"success"`
	Message domain.Message `json:"message"`
	Usage   struct {
		InputTokens  int `json:"inputTokens"`
		OutputTokens int `json:"outputTokens"`
		CostCents    int `json:"costCents"`
	} `json:"usage"`
}

// AskJimmy triggers the AI responder for a chat.
func (c *Client) AskJimmy(chatID, message string, contextLines []string) (JimmyReply, error) {
	payload := map[string]any{
		"message":        message,
		"conversationId": chatID,
		"context":        contextLines,
	}
	var reply JimmyReply
	if err := c.doJSON(http.MethodPost, "/api/ai/jimmy", payload, &reply); err != nil {
		return JimmyReply{}, err
	}
	return reply, nil
}

func (c *Client) doJSON(method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
