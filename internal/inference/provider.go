package inference

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Request is one system prompt plus user message exchange.
type Request struct {
	SystemPrompt string
	UserMessage  string
	Model        string
	// JSONResponse asks the provider for a JSON object response format.
	JSONResponse bool

	// OnStart fires when the call leaves the queue and starts running.
	OnStart func(attempt int)
	// OnRetry fires before a failed attempt is retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Response carries the raw completion text.
type Response struct {
	Text     string
	Model    string
	Attempts int
}

// Provider performs a single attempt against an inference service. Failures
// are reported as *CallError.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ProviderFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		return fmt.Errorf("%w: user message is required", ErrInvalidRequest)
	}
	return nil
}
