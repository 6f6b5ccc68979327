package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxTokens   = 500
	DefaultTemperature = 0.7
)

// Options tunes a single completion. Zero values fall back to the defaults.
type Options struct {
	MaxTokens   int
	Temperature float64
}

// InvokerConfig holds the invoker settings
type InvokerConfig struct {
	Timeout      time.Duration
	SystemPrompt string
}

// Invoker turns (tag, key, prompt) into one bounded upstream call.
type Invoker struct {
	registry     *Registry
	timeout      time.Duration
	systemPrompt string
	logger       *zap.Logger
}

// NewInvoker creates an invoker over the registered transports
func NewInvoker(registry *Registry, cfg InvokerConfig, logger *zap.Logger) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Invoker{
		registry:     registry,
		timeout:      cfg.Timeout,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger,
	}
}

type callResult struct {
	res *Result
	err error
}

// Invoke performs a single attempt. It returns as soon as the per-call timeout
// fires, even when the transport ignores context cancellation.
func (i *Invoker) Invoke(ctx context.Context, tag Tag, apiKey, prompt string, opts Options) (*Result, error) {
	transport, endpoint, err := i.registry.Lookup(tag)
	if err != nil {
		return nil, err
	}

	req := &CompletionRequest{
		Model:        endpoint.Model,
		SystemPrompt: i.systemPrompt,
		Prompt:       prompt,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = DefaultMaxTokens
	}
	if req.Temperature <= 0 {
		req.Temperature = DefaultTemperature
	}

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		res, err := transport.Complete(callCtx, apiKey, req)
		done <- callResult{res: res, err: err}
	}()

	timer := time.NewTimer(i.timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		return i.finish(ctx, tag, endpoint, out)
	case <-timer.C:
		i.logger.Warn("provider call timed out",
			zap.String("provider", tag.String()),
			zap.Duration("timeout", i.timeout))
		return nil, timeoutError(tag)
	case <-ctx.Done():
		return nil, NewProviderError(tag.String(), "canceled", "request canceled", 0, false, ctx.Err())
	}
}

func (i *Invoker) finish(ctx context.Context, tag Tag, endpoint Endpoint, out callResult) (*Result, error) {
	if out.err != nil {
		if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, timeoutError(tag)
		}
		var provErr *ProviderError
		if errors.As(out.err, &provErr) {
			return nil, out.err
		}
		return nil, NewProviderError(tag.String(), "transport_error", "provider call failed", 0, false, out.err)
	}
	if out.res == nil {
		return nil, NewProviderError(tag.String(), "empty_response", "provider returned no result", 0, false, nil)
	}
	if out.res.Model == "" {
		out.res.Model = endpoint.Model
	}
	return out.res, nil
}

func timeoutError(tag Tag) *ProviderError {
	return NewProviderError(tag.String(), "timeout", "Provider timeout", http.StatusGatewayTimeout, true, context.DeadlineExceeded)
}
