package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/upb/llm-failover-router/services/providers"
)

func newRequest() *providers.CompletionRequest {
	return &providers.CompletionRequest{
		Model:        "llama-3.3-70b-versatile",
		SystemPrompt: "be terse",
		Prompt:       "hello",
		MaxTokens:    500,
		Temperature:  0.7,
	}
}

func TestAdapter_Complete_Success(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gsk-test" {
			t.Errorf("Authorization = %q, want Bearer gsk-test", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "llama-3.3-70b-versatile",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "[OK] hi"}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	adapter := NewAdapter("groq", server.URL+"/", server.Client())
	res, err := adapter.Complete(context.Background(), "gsk-test", newRequest())
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res.Text != "[OK] hi" {
		t.Errorf("Text = %q, want [OK] hi", res.Text)
	}
	if res.Model != "llama-3.3-70b-versatile" {
		t.Errorf("Model = %q", res.Model)
	}

	messages, ok := gotBody["messages"].([]interface{})
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v, want system and user", gotBody["messages"])
	}
	if role := messages[0].(map[string]interface{})["role"]; role != "system" {
		t.Errorf("first role = %v, want system", role)
	}
	if gotBody["max_tokens"] != float64(500) {
		t.Errorf("max_tokens = %v, want 500", gotBody["max_tokens"])
	}
}

func TestAdapter_Complete_NoSystemPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want a single user message", body.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	req := newRequest()
	req.SystemPrompt = ""
	if _, err := NewAdapter("deepseek", server.URL, server.Client()).Complete(context.Background(), "k", req); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
}

func TestAdapter_Complete_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantStatus    int
		wantRetryable bool
		wantContains  string
	}{
		{
			name:          "rate limited",
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"message":"Rate limit reached for model","type":"tokens"}}`,
			wantStatus:    429,
			wantRetryable: true,
			wantContains:  "Rate limit reached",
		},
		{
			name:          "invalid key",
			status:        http.StatusUnauthorized,
			body:          `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantStatus:    401,
			wantRetryable: false,
			wantContains:  "Invalid API Key",
		},
		{
			name:          "upstream outage",
			status:        http.StatusServiceUnavailable,
			body:          `{"error":{"message":"service unavailable","type":"server_error"}}`,
			wantStatus:    503,
			wantRetryable: true,
			wantContains:  "service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewAdapter("groq", server.URL, server.Client()).Complete(context.Background(), "k", newRequest())
			if err == nil {
				t.Fatal("expected error")
			}

			var provErr *providers.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("error type = %T, want *providers.ProviderError", err)
			}
			if provErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.wantStatus)
			}
			if provErr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", provErr.Retryable, tt.wantRetryable)
			}
			if provErr.Provider != "groq" {
				t.Errorf("Provider = %s, want groq", provErr.Provider)
			}
			if !strings.Contains(err.Error(), tt.wantContains) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tt.wantContains)
			}
		})
	}
}

func TestAdapter_Complete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := NewAdapter("groq", server.URL, server.Client()).Complete(context.Background(), "k", newRequest())
	if providers.StatusCode(err) != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", providers.StatusCode(err))
	}
}
