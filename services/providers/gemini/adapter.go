package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/llm-failover-router/services/providers"
)

const providerName = "gemini"

// Adapter calls the Gemini generateContent REST endpoint.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
}

// NewAdapter creates a Gemini adapter. The key travels in the x-goog-api-key
// header so it never shows up in request URLs.
func NewAdapter(baseURL string, httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{IdleConnTimeout: 90 * time.Second}}
	}
	return &Adapter{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Complete performs one generateContent call.
func (a *Adapter) Complete(ctx context.Context, apiKey string, req *providers.CompletionRequest) (*providers.Result, error) {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(providerName, "marshal_error", "failed to marshal request", 0, false, err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, providers.NewProviderError(providerName, "request_error", "failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "http_error", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(providerName, "read_error", "failed to read response", httpResp.StatusCode, false, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, providers.NewProviderError(providerName, "unmarshal_error", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	if len(gr.Candidates) == 0 {
		reason := "no candidates returned"
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + gr.PromptFeedback.BlockReason
		}
		return nil, providers.NewProviderError(providerName, "empty_candidates", reason, http.StatusBadGateway, false, nil)
	}

	var text strings.Builder
	for _, part := range gr.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}

	return &providers.Result{Text: text.String(), Model: req.Model}, nil
}

func buildRequest(req *providers.CompletionRequest) *generateRequest {
	gr := &generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: &generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	}
	if req.SystemPrompt != "" {
		gr.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	return gr
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(providerName, "unknown_error", strings.TrimSpace(string(body)), statusCode, providers.RetryableStatus(statusCode), nil)
	}

	code := errResp.Error.Status
	if code == "" {
		code = "api_error"
	}
	return providers.NewProviderError(providerName, code, errResp.Error.Message, statusCode, providers.RetryableStatus(statusCode), nil)
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
