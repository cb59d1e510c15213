package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOpenRouterProviderRequiresKey(t *testing.T) {
	if _, err := NewOpenRouterProvider(" ", "", nil); err == nil {
		t.Fatalf("expected missing api key error")
	}
	provider, err := NewOpenRouterProvider("key", "", nil)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if provider.BaseURL != DefaultOpenRouterBaseURL {
		t.Fatalf("unexpected base url %q", provider.BaseURL)
	}
}

func TestOpenRouterCompleteSendsChatRequest(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  {\"judgement\":\"agree\"}  "}}]}`)
	}))
	t.Cleanup(server.Close)

	provider, err := NewOpenRouterProvider("key", server.URL+"/", server.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	text, err := provider.Complete(context.Background(), Request{
		SystemPrompt: "be a persona",
		UserMessage:  "Survey Question: q\n\nClaim: c",
		Model:        "vendor/model",
		JSONResponse: true,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != `{"judgement":"agree"}` {
		t.Fatalf("unexpected text %q", text)
	}
	if got.Model != "vendor/model" || len(got.Messages) != 2 {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected roles %+v", got.Messages)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json_object response format, got %+v", got.ResponseFormat)
	}
}

func TestOpenRouterCompleteOmitsEmptySystemPrompt(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	t.Cleanup(server.Close)

	provider, _ := NewOpenRouterProvider("key", server.URL, server.Client())
	if _, err := provider.Complete(context.Background(), Request{UserMessage: "hi", Model: "m"}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.ResponseFormat != nil {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOpenRouterClassifiesFailures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		kind       ErrorKind
		wait       time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, retryAfter: "2", kind: KindRateLimited, wait: 2 * time.Second},
		{name: "server error", status: http.StatusBadGateway, body: "bad gateway", kind: KindUpstream},
		{name: "request timeout", status: http.StatusRequestTimeout, body: "timeout", kind: KindUpstream},
		{name: "bad request", status: http.StatusBadRequest, body: "response_format unsupported", kind: KindBadRequest},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, kind: KindEmptyResponse},
		{name: "empty content", status: http.StatusOK, body: `{"choices":[{"message":{"content":"   "}}]}`, kind: KindEmptyResponse},
		{name: "error payload", status: http.StatusOK, body: `{"error":{"message":"provider overloaded","code":502}}`, kind: KindUpstream},
		{name: "garbage", status: http.StatusOK, body: `not json`, kind: KindTransport},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if test.retryAfter != "" {
					w.Header().Set("Retry-After", test.retryAfter)
				}
				w.WriteHeader(test.status)
				fmt.Fprint(w, test.body)
			}))
			t.Cleanup(server.Close)

			provider, _ := NewOpenRouterProvider("key", server.URL, server.Client())
			_, err := provider.Complete(context.Background(), Request{UserMessage: "hi", Model: "m"})
			var callErr *CallError
			if !errors.As(err, &callErr) {
				t.Fatalf("expected CallError, got %v", err)
			}
			if callErr.Kind != test.kind {
				t.Fatalf("expected kind %s, got %s (%v)", test.kind, callErr.Kind, err)
			}
			if callErr.RetryAfter != test.wait {
				t.Fatalf("expected retry after %s, got %s", test.wait, callErr.RetryAfter)
			}
			if errors.Is(err, ErrTransport) == (test.kind == KindBadRequest) {
				t.Fatalf("unexpected ErrTransport match for %s", test.kind)
			}
		})
	}
}

func TestParseRetryAfterDate(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	value := now.Add(90 * time.Second).Format(http.TimeFormat)
	if got := parseRetryAfter(value, now); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	if got := parseRetryAfter("soon", now); got != 0 {
		t.Fatalf("expected 0 for invalid value, got %s", got)
	}
}
