// Package perception provides language-model clients for action evaluation.
// All providers speak through the LLMClient interface so the decision layer
// never knows which backend is wired in.
package perception

import (
	"context"
	"fmt"
	"time"
)

// LLMClient is the interface all providers implement.
type LLMClient interface {
	// Complete sends a prompt and returns the completion text.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RateLimitError indicates the provider refused the request due to quota.
// Callers detect it with errors.As and back off instead of failing the loop.
type RateLimitError struct {
	Provider    string
	RetryAfter  time.Duration
	RawResponse string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited, retry after %v", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited", e.Provider)
}

const defaultSystemPrompt = `You are an action evaluator for a local automation daemon. You receive a description of observed changes in a workspace and a candidate action. Respond with strict JSON only.`
