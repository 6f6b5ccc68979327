// Package routing walks the provider groups for one prompt, rotating
// credentials on rate limits and failing over between providers.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/services"
	"github.com/upb/llm-failover-router/services/catalog"
	"github.com/upb/llm-failover-router/services/exclusion"
	"github.com/upb/llm-failover-router/services/providers"
	"github.com/upb/llm-failover-router/services/recorder"
)

// CatalogLoader supplies the provider groups for a request.
type CatalogLoader interface {
	Load(ctx context.Context) []catalog.Group
}

// Invoker performs one bounded provider call.
type Invoker interface {
	Invoke(ctx context.Context, tag providers.Tag, apiKey, prompt string, opts providers.Options) (*providers.Result, error)
}

// Recorder receives outcome telemetry. Calls must not block.
type Recorder interface {
	RecordSuccess(ev recorder.SuccessEvent)
	RecordError(ev recorder.ErrorEvent)
}

// Metrics observes routing activity.
type Metrics interface {
	ObserveAttempt(provider, class string)
	ObserveOutcome(kind, reason string, seconds float64)
	ObserveExclusion(provider string)
}

// Options are the per-request knobs.
type Options struct {
	MaxTokens   int
	Temperature float64
	RequestID   string
}

// Config holds the router settings
type Config struct {
	ExclusionTTL time.Duration
}

// Service is the failover router.
type Service struct {
	catalog    CatalogLoader
	exclusions exclusion.Store
	invoker    Invoker
	recorder   Recorder
	metrics    Metrics
	logger     *zap.Logger
	ttl        time.Duration
	now        func() time.Time
}

// NewService creates the router. metrics may be nil.
func NewService(loader CatalogLoader, store exclusion.Store, invoker Invoker, rec Recorder, metrics Metrics, cfg Config, logger *zap.Logger) *Service {
	if cfg.ExclusionTTL <= 0 {
		cfg.ExclusionTTL = exclusion.DefaultTTL
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Service{
		catalog:    loader,
		exclusions: store,
		invoker:    invoker,
		recorder:   rec,
		metrics:    metrics,
		logger:     logger,
		ttl:        cfg.ExclusionTTL,
		now:        time.Now,
	}
}

// WithClock replaces the latency clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Route produces exactly one Outcome for prompt. The only errors are an
// empty prompt and an unknown provider tag reaching the invoker; every
// provider failure ends in the degraded Outcome instead.
func (s *Service) Route(ctx context.Context, prompt string, opts Options) (*Outcome, error) {
	start := s.now()

	if strings.TrimSpace(prompt) == "" {
		return nil, services.ErrEmptyPrompt
	}

	groups := s.catalog.Load(ctx)
	if len(groups) == 0 {
		s.logger.Error("no AI providers configured",
			zap.String("request_id", opts.RequestID))
		return s.fail(ReasonUnconfigured, start), nil
	}

	req := &request{
		prompt:   prompt,
		digest:   recorder.Digest(prompt),
		preview:  recorder.Preview(prompt),
		opts:     providers.Options{MaxTokens: opts.MaxTokens, Temperature: opts.Temperature},
		id:       opts.RequestID,
		start:    start,
		excluded: make(map[int64]bool),
	}

	for _, group := range groups {
		outcome, err := s.routeGroup(ctx, req, group)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
		s.logger.Info("provider exhausted, failing over",
			zap.String("provider", group.Provider.String()),
			zap.String("request_id", req.id))
	}

	s.logger.Error("all providers failed",
		zap.Int("providers", len(groups)),
		zap.String("request_id", req.id))
	return s.fail(ReasonExhausted, start), nil
}

type request struct {
	prompt   string
	digest   string
	preview  string
	opts     providers.Options
	id       string
	start    time.Time
	excluded map[int64]bool // excluded during this request
}

// routeGroup returns a success Outcome, the canceled Outcome once ctx is done,
// or nil when the group is exhausted.
func (s *Service) routeGroup(ctx context.Context, req *request, group catalog.Group) (*Outcome, error) {
	attempts := 0
	for {
		cred, ok := s.selectCredential(ctx, req, group)
		if !ok {
			if attempts > 0 || len(group.Credentials) == 0 {
				return nil, nil
			}
			cred = group.Credentials[0]
			s.logger.Warn("all keys excluded, forcing first key",
				zap.String("provider", group.Provider.String()),
				zap.Int64("key_id", cred.ID))
		}
		attempts++

		res, err := s.invoker.Invoke(ctx, cred.Provider, cred.Secret, req.prompt, req.opts)
		if err == nil {
			s.metrics.ObserveAttempt(cred.Provider.String(), classSuccess)
			return s.succeed(req, cred, res), nil
		}
		if errors.Is(err, providers.ErrUnknownProvider) {
			return nil, fmt.Errorf("route: %w", err)
		}
		if ctx.Err() != nil {
			s.logger.Warn("request canceled, abandoning route",
				zap.String("provider", cred.Provider.String()),
				zap.Int64("key_id", cred.ID),
				zap.String("request_id", req.id),
				zap.Error(ctx.Err()))
			return s.fail(ReasonCanceled, req.start), nil
		}

		class := Classify(err)
		s.metrics.ObserveAttempt(cred.Provider.String(), string(class))

		if class == ClassRateLimit {
			s.logger.Warn("key rate limited, rotating",
				zap.String("provider", cred.Provider.String()),
				zap.Int64("key_id", cred.ID),
				zap.Int("attempt", attempts),
				zap.Error(err))
			s.exclude(ctx, req, cred)
			continue
		}

		s.logger.Warn("terminal provider error",
			zap.String("provider", cred.Provider.String()),
			zap.Int64("key_id", cred.ID),
			zap.Int("status", providers.StatusCode(err)),
			zap.Error(err))
		s.recordError(req, cred, err)
		return nil, nil
	}
}

// selectCredential returns the first credential in stored order that is
// neither excluded in the store nor already rate limited in this request.
func (s *Service) selectCredential(ctx context.Context, req *request, group catalog.Group) (catalog.Credential, bool) {
	for _, cred := range group.Credentials {
		if req.excluded[cred.ID] {
			continue
		}
		excluded, err := s.exclusions.IsExcluded(ctx, cred.Provider, cred.ID)
		if err != nil {
			s.logger.Warn("exclusion lookup failed, treating key as available",
				zap.String("provider", cred.Provider.String()),
				zap.Int64("key_id", cred.ID),
				zap.Error(err))
			return cred, true
		}
		if !excluded {
			return cred, true
		}
	}
	return catalog.Credential{}, false
}

func (s *Service) exclude(ctx context.Context, req *request, cred catalog.Credential) {
	req.excluded[cred.ID] = true
	s.metrics.ObserveExclusion(cred.Provider.String())

	if err := s.exclusions.Exclude(ctx, cred.Provider, cred.ID, s.ttl); err != nil {
		s.logger.Error("failed to exclude key",
			zap.String("provider", cred.Provider.String()),
			zap.Int64("key_id", cred.ID),
			zap.Error(err))
	}
}

func (s *Service) succeed(req *request, cred catalog.Credential, res *providers.Result) *Outcome {
	latency := s.now().Sub(req.start).Milliseconds()

	s.recorder.RecordSuccess(recorder.SuccessEvent{
		CredentialID:    cred.ID,
		Provider:        cred.Provider.String(),
		Model:           res.Model,
		LatencyMs:       latency,
		PromptDigest:    req.digest,
		PromptPreview:   req.preview,
		ResponsePreview: recorder.Preview(res.Text),
		RequestID:       req.id,
	})
	s.metrics.ObserveOutcome(string(KindSuccess), "", float64(latency)/1000)

	s.logger.Info("route succeeded",
		zap.String("provider", cred.Provider.String()),
		zap.Int64("key_id", cred.ID),
		zap.Int64("latency_ms", latency),
		zap.String("request_id", req.id))

	return &Outcome{
		Kind:      KindSuccess,
		Text:      res.Text,
		Provider:  cred.Provider.String(),
		Model:     res.Model,
		LatencyMs: latency,
		KeyID:     cred.ID,
	}
}

func (s *Service) recordError(req *request, cred catalog.Credential, err error) {
	status := providers.StatusCode(err)
	if status == 0 {
		status = 500
	}
	s.recorder.RecordError(recorder.ErrorEvent{
		CredentialID:  cred.ID,
		Provider:      cred.Provider.String(),
		StatusCode:    status,
		Message:       err.Error(),
		PromptDigest:  req.digest,
		PromptPreview: req.preview,
		RequestID:     req.id,
	})
}

func (s *Service) fail(reason FailureReason, start time.Time) *Outcome {
	latency := s.now().Sub(start).Milliseconds()
	s.metrics.ObserveOutcome(string(KindFailure), string(reason), float64(latency)/1000)
	return terminalFailure(reason, latency)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAttempt(string, string)          {}
func (nopMetrics) ObserveOutcome(string, string, float64) {}
func (nopMetrics) ObserveExclusion(string)                {}
