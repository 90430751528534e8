package app

import "errors"

var (
	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrNameRequired             = errors.New("display name required")

	ErrChatNotFound   = errors.New("chat not found")
	ErrNotParticipant = errors.New("not a chat participant")
	ErrForbidden      = errors.New("forbidden")

	ErrMessageRequired = errors.New("message required")

	// ErrAIRateLimited indicates the caller exceeded the AI request quota.
	ErrAIRateLimited = errors.New("ai request limit reached")
)
