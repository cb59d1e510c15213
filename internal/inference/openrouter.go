package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultOpenRouterBaseURL is the default OpenRouter API base URL.
const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

const maxErrorBody = 4 << 10

// HTTPDoer abstracts HTTP clients used by providers.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// OpenRouterProvider implements Provider for OpenRouter-compatible chat
// completion endpoints.
type OpenRouterProvider struct {
	APIKey  string
	BaseURL string
	Client  HTTPDoer
	now     func() time.Time
}

// NewOpenRouterProvider constructs a provider with explicit settings.
func NewOpenRouterProvider(apiKey, baseURL string, client HTTPDoer) (*OpenRouterProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenRouterProvider{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		now:     time.Now,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends one chat completion request.
func (p *OpenRouterProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := chatRequest{Model: req.Model}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.UserMessage})
	if req.JSONResponse {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &CallError{Kind: KindBadRequest, Err: fmt.Errorf("marshal request: %w", err)}
	}

	endpoint := p.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &CallError{Kind: KindBadRequest, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &CallError{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", p.statusError(resp, strings.TrimSpace(string(slurp)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &CallError{Kind: KindTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", &CallError{Kind: KindUpstream, StatusCode: resp.StatusCode, Err: errors.New(decoded.Error.Message)}
	}
	if len(decoded.Choices) == 0 {
		return "", &CallError{Kind: KindEmptyResponse, StatusCode: resp.StatusCode, Err: errors.New("no choices")}
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", &CallError{Kind: KindEmptyResponse, StatusCode: resp.StatusCode, Err: errors.New("empty content")}
	}
	return content, nil
}

func (p *OpenRouterProvider) statusError(resp *http.Response, body string) *CallError {
	callErr := &CallError{StatusCode: resp.StatusCode, Err: fmt.Errorf("openrouter error: %s", body)}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		callErr.Kind = KindRateLimited
		callErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), p.now())
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		callErr.Kind = KindUpstream
		callErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), p.now())
	default:
		callErr.Kind = KindBadRequest
	}
	return callErr
}

// parseRetryAfter accepts delta seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
	}
	return 0
}
