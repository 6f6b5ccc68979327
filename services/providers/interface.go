package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Tag identifies one of the supported upstream providers.
type Tag string

const (
	Groq     Tag = "groq"
	DeepSeek Tag = "deepseek"
	Gemini   Tag = "gemini"
)

// ErrUnknownProvider is returned when a tag outside the closed set reaches dispatch.
var ErrUnknownProvider = errors.New("unknown provider")

// AllTags returns every supported tag in declaration order.
func AllTags() []Tag {
	return []Tag{Groq, DeepSeek, Gemini}
}

// ParseTag converts a stored provider name into a Tag.
func ParseTag(s string) (Tag, error) {
	switch Tag(strings.ToLower(strings.TrimSpace(s))) {
	case Groq:
		return Groq, nil
	case DeepSeek:
		return DeepSeek, nil
	case Gemini:
		return Gemini, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
}

// String returns the tag value.
func (t Tag) String() string {
	return string(t)
}

// Endpoint is the transport configuration for one provider.
type Endpoint struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
}

// DefaultEndpoints returns the built-in endpoint table.
func DefaultEndpoints() map[Tag]Endpoint {
	return map[Tag]Endpoint{
		Groq:     {BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-versatile"},
		DeepSeek: {BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
		Gemini:   {BaseURL: "https://generativelanguage.googleapis.com/v1beta", Model: "gemini-2.5-flash-lite"},
	}
}

// CompletionRequest is the provider-neutral single-turn request.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// Result is the normalized output of a successful call.
type Result struct {
	Text  string
	Model string
}

// Transport performs exactly one call against a provider API.
type Transport interface {
	Complete(ctx context.Context, apiKey string, req *CompletionRequest) (*Result, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, apiKey string, req *CompletionRequest) (*Result, error)

// Complete calls f.
func (f TransportFunc) Complete(ctx context.Context, apiKey string, req *CompletionRequest) (*Result, error) {
	return f(ctx, apiKey, req)
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// StatusCode extracts the upstream HTTP status from err, or 0 when none is known.
func StatusCode(err error) int {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode
	}
	return 0
}

// RetryableStatus reports whether an upstream status is worth another attempt elsewhere.
func RetryableStatus(status int) bool {
	return status == 429 || status >= 500
}
