package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/llm-failover-router/services/providers"
)

func request() *providers.CompletionRequest {
	return &providers.CompletionRequest{
		Model:        "gemini-2.5-flash-lite",
		SystemPrompt: "kernel persona",
		Prompt:       "who are you",
		MaxTokens:    500,
		Temperature:  0.7,
	}
}

func TestAdapter_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash-lite:generateContent", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("key"))
		assert.Equal(t, "AIza-test", r.Header.Get("x-goog-api-key"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		assert.Equal(t, "who are you", body.Contents[0].Parts[0].Text)
		require.NotNil(t, body.SystemInstruction)
		assert.Equal(t, "kernel persona", body.SystemInstruction.Parts[0].Text)
		assert.Equal(t, 500, body.GenerationConfig.MaxOutputTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"[EXEC] "},{"text":"done"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	res, err := NewAdapter(server.URL, server.Client()).Complete(context.Background(), "AIza-test", request())
	require.NoError(t, err)
	assert.Equal(t, "[EXEC] done", res.Text)
	assert.Equal(t, "gemini-2.5-flash-lite", res.Model)
}

func TestAdapter_Complete_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantCode      string
		wantRetryable bool
		wantMessage   string
	}{
		{
			name:          "quota exhausted",
			status:        http.StatusTooManyRequests,
			body:          `{"error":{"code":429,"message":"Resource has been exhausted (e.g. check quota).","status":"RESOURCE_EXHAUSTED"}}`,
			wantCode:      "RESOURCE_EXHAUSTED",
			wantRetryable: true,
			wantMessage:   "Resource has been exhausted (e.g. check quota).",
		},
		{
			name:          "bad key",
			status:        http.StatusBadRequest,
			body:          `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`,
			wantCode:      "INVALID_ARGUMENT",
			wantRetryable: false,
			wantMessage:   "API key not valid. Please pass a valid API key.",
		},
		{
			name:          "non json body",
			status:        http.StatusBadGateway,
			body:          "upstream connect error",
			wantCode:      "unknown_error",
			wantRetryable: true,
			wantMessage:   "upstream connect error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewAdapter(server.URL, server.Client()).Complete(context.Background(), "k", request())
			require.Error(t, err)

			var provErr *providers.ProviderError
			require.True(t, errors.As(err, &provErr))
			assert.Equal(t, tt.status, provErr.StatusCode)
			assert.Equal(t, tt.wantCode, provErr.Code)
			assert.Equal(t, tt.wantRetryable, provErr.Retryable)
			assert.Equal(t, tt.wantMessage, provErr.Message)
			assert.Equal(t, "gemini", provErr.Provider)
		})
	}
}

func TestAdapter_Complete_BlockedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer server.Close()

	_, err := NewAdapter(server.URL, server.Client()).Complete(context.Background(), "k", request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
	assert.False(t, providers.IsRetryable(err))
}

func TestAdapter_Complete_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	_, err := NewAdapter(server.URL, nil).Complete(context.Background(), "k", request())
	require.Error(t, err)
	assert.Equal(t, 0, providers.StatusCode(err))
	assert.True(t, providers.IsRetryable(err))
}
