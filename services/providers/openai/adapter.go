package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/upb/llm-failover-router/services/providers"
)

// Adapter speaks the OpenAI chat completions dialect used by groq and deepseek.
type Adapter struct {
	provider   string
	baseURL    string
	httpClient *http.Client
}

// NewAdapter creates an adapter bound to one OpenAI-compatible endpoint.
// A nil client gets a fresh one without its own timeout; the invoker bounds each call.
func NewAdapter(provider, baseURL string, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{IdleConnTimeout: 90 * time.Second}}
	}
	return &Adapter{
		provider:   provider,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Complete performs one chat completion with the given key.
func (a *Adapter) Complete(ctx context.Context, apiKey string, req *providers.CompletionRequest) (*providers.Result, error) {
	clientConfig := goopenai.DefaultConfig(apiKey)
	clientConfig.BaseURL = a.baseURL
	clientConfig.HTTPClient = a.httpClient
	client := goopenai.NewClientWithConfig(clientConfig)

	resp, err := client.CreateChatCompletion(ctx, a.buildRequest(req))
	if err != nil {
		return nil, a.convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.provider, "empty_choices", "provider returned no choices", http.StatusBadGateway, true, nil)
	}

	return &providers.Result{
		Text:  resp.Choices[0].Message.Content,
		Model: req.Model,
	}, nil
}

func (a *Adapter) buildRequest(req *providers.CompletionRequest) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	return goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
}

// convertError keeps the upstream status and message so the router can classify them.
func (a *Adapter) convertError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if code == "" {
			code = "api_error"
		}
		return providers.NewProviderError(
			a.provider,
			code,
			apiErr.Message,
			apiErr.HTTPStatusCode,
			providers.RetryableStatus(apiErr.HTTPStatusCode),
			err,
		)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		message := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return providers.NewProviderError(
			a.provider,
			"request_error",
			message,
			reqErr.HTTPStatusCode,
			providers.RetryableStatus(reqErr.HTTPStatusCode),
			err,
		)
	}

	return providers.NewProviderError(a.provider, "http_error", "HTTP request failed", 0, true, err)
}
