package ai

import (
	"context"
	"errors"
)

// Reply is one model completion plus the token accounting needed for the
// usage log.
type Reply struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// TextGenerator generates a reply from a system prompt and user prompt.
// All providers (Anthropic, OpenAI-compatible) implement this interface.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (Reply, error)
}

// Provider failure classes the caller may want to distinguish in logs. The
// responder converts every one of them into the same fallback reply.
var (
	ErrRateLimited        = errors.New("model provider rate limited")
	ErrInsufficientCredit = errors.New("model provider credit exhausted")
)

// Claude 3.5 Haiku pricing: $0.80 per 1M input tokens, $4.00 per 1M output
// tokens, charged in whole cents rounded up per side.
const (
	inputCentsPerMillion  = 80
	outputCentsPerMillion = 400
)

// CostCents estimates the cost of a call in whole cents.
func CostCents(inputTokens, outputTokens int) int {
	return ceilDiv(inputTokens*inputCentsPerMillion, 1_000_000) +
		ceilDiv(outputTokens*outputCentsPerMillion, 1_000_000)
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
