package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/config"
	"github.com/upb/llm-failover-router/internal/observability"
	"github.com/upb/llm-failover-router/middleware"
	"github.com/upb/llm-failover-router/repositories"
	"github.com/upb/llm-failover-router/repositories/postgres"
	"github.com/upb/llm-failover-router/services/auth"
	"github.com/upb/llm-failover-router/services/catalog"
	"github.com/upb/llm-failover-router/services/exclusion"
	"github.com/upb/llm-failover-router/services/keys"
	"github.com/upb/llm-failover-router/services/providers"
	"github.com/upb/llm-failover-router/services/providers/gemini"
	"github.com/upb/llm-failover-router/services/providers/openai"
	"github.com/upb/llm-failover-router/services/ratelimit"
	"github.com/upb/llm-failover-router/services/recorder"
	"github.com/upb/llm-failover-router/services/routing"
	"github.com/upb/llm-failover-router/services/secrets"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	RepoFactory  *postgres.RepositoryFactory
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Routing pipeline
	Cipher    *secrets.Cipher
	Catalog   *catalog.Loader
	Exclusion exclusion.Store
	Registry  *providers.Registry
	Invoker   *providers.Invoker
	Recorder  *recorder.Recorder
	Router    *routing.Service

	// Admin
	Auth           *auth.Service
	Keys           *keys.Service
	AuthMiddleware *middleware.AuthMiddleware

	// Public endpoint throttling; nil when disabled
	Limiter *ratelimit.Limiter
}

// NewDependencies opens the database and wires every component.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesWithFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesWithFactory wires every component over an already opened pool.
func NewDependenciesWithFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     observability.NewMetrics(),
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.Repositories = factory.NewRepositories()
	deps.TxManager = factory.GetTransactionManager()

	cipher, err := secrets.NewCipher(cfg.Crypto.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	deps.Cipher = cipher

	if err := deps.initProviders(); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initRouting(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize routing: %w", err)
	}

	deps.initAdmin()
	deps.initRateLimit()

	logger.Info("all dependencies initialized successfully",
		zap.String("exclusion_backend", deps.Exclusion.Backend()),
		zap.Int("providers", deps.Registry.Count()))
	return deps, nil
}

func (d *Dependencies) initDatabase(ctx context.Context) error {
	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if d.Config.Database.InitSchema {
		if err := d.DB.InitSchema(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

func (d *Dependencies) initProviders() error {
	endpoints := d.Config.Router.Endpoints
	if len(endpoints) == 0 {
		endpoints = providers.DefaultEndpoints()
	}

	registry := providers.NewRegistry()
	for _, tag := range providers.AllTags() {
		endpoint, ok := endpoints[tag]
		if !ok {
			d.Logger.Warn("provider has no endpoint, skipping", zap.String("provider", tag.String()))
			continue
		}

		var transport providers.Transport
		switch tag {
		case providers.Gemini:
			transport = gemini.NewAdapter(endpoint.BaseURL, nil)
		default:
			transport = openai.NewAdapter(tag.String(), endpoint.BaseURL, nil)
		}

		if err := registry.Register(tag, transport, endpoint); err != nil {
			return err
		}
		d.Logger.Info("provider registered",
			zap.String("provider", tag.String()),
			zap.String("model", endpoint.Model))
	}

	d.Registry = registry
	d.Invoker = providers.NewInvoker(registry, providers.InvokerConfig{
		Timeout:      d.Config.Router.ProviderTimeout,
		SystemPrompt: d.Config.Router.SystemPrompt,
	}, d.Logger)
	return nil
}

func (d *Dependencies) initRouting(ctx context.Context) error {
	d.Catalog = catalog.NewLoader(d.Repositories.APIKeys, d.Cipher, d.Logger)
	d.Exclusion = exclusion.New(ctx, exclusion.Config{
		RedisURL:        d.Config.Redis.URL,
		JanitorInterval: d.Config.Redis.JanitorInterval,
	}, d.Logger)

	d.Recorder = recorder.New(d.Repositories, d.TxManager, d.Logger, recorder.Config{
		BufferSize:     d.Config.Recorder.BufferSize,
		Workers:        d.Config.Recorder.Workers,
		PersistTimeout: d.Config.Recorder.PersistTimeout,
	}, d.Metrics)
	if err := d.Recorder.Start(); err != nil {
		_ = d.Exclusion.Close()
		return err
	}

	d.Router = routing.NewService(d.Catalog, d.Exclusion, d.Invoker, d.Recorder, d.Metrics,
		routing.Config{ExclusionTTL: d.Config.Router.ExclusionTTL}, d.Logger)
	return nil
}

func (d *Dependencies) initAdmin() {
	d.Auth = auth.NewService(auth.Config{
		Password:   d.Config.Admin.Password,
		JWTSecret:  d.Config.Admin.JWTSecret,
		SessionTTL: d.Config.Admin.SessionTTL,
	}, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Auth, d.Logger)
	d.Keys = keys.NewService(d.Repositories, d.Cipher, d.Logger)
}

func (d *Dependencies) initRateLimit() {
	rl := d.Config.RateLimit
	if !rl.Enabled {
		d.Logger.Warn("chat rate limiting disabled")
		return
	}
	d.Limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: rl.RequestsPerMinute,
		Burst:             rl.Burst,
		ClientTTL:         rl.ClientTTL,
		SweepInterval:     rl.ClientTTL,
	}, d.Logger)
}

// Close releases dependencies in reverse start order: pending outcome
// events are flushed before the stores they write to are closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Limiter != nil {
		d.Limiter.Stop()
	}

	if d.Recorder != nil {
		timeout := d.Config.Recorder.ShutdownTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if err := d.Recorder.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain recorder: %w", err))
		} else {
			d.Logger.Info("recorder drained")
		}
	}

	if d.Exclusion != nil {
		if err := d.Exclusion.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close exclusion store: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
