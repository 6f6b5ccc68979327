// Package recorder persists routing outcomes off the request path.
package recorder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/models"
	"github.com/upb/llm-failover-router/repositories"
	"github.com/upb/llm-failover-router/services"
	"github.com/upb/llm-failover-router/services/redact"
)

// PreviewLength is the maximum number of runes kept from prompts and responses.
const PreviewLength = 100

var (
	errAlreadyStarted = errors.New("recorder already started")
	errAlreadyStopped = errors.New("recorder already stopped")
)

// SuccessEvent describes a successful provider call.
type SuccessEvent struct {
	CredentialID    int64
	Provider        string
	Model           string
	LatencyMs       int64
	PromptDigest    string
	PromptPreview   string
	ResponsePreview string
	RequestID       string
}

// ErrorEvent describes a terminal provider failure.
type ErrorEvent struct {
	CredentialID  int64
	Provider      string
	StatusCode    int
	Message       string
	PromptDigest  string
	PromptPreview string
	RequestID     string
}

type event struct {
	success *SuccessEvent
	failure *ErrorEvent
}

// DropCounter is notified for every dropped event.
type DropCounter interface {
	ObserveDrop()
}

// Config holds the recorder settings
type Config struct {
	BufferSize     int
	Workers        int
	PersistTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     1000,
		Workers:        2,
		PersistTimeout: 5 * time.Second,
	}
}

// Recorder queues outcome events and writes them with a fixed worker pool.
// Record calls never block; when the queue is full the event is dropped.
type Recorder struct {
	keys   repositories.APIKeyRepository
	logs   repositories.AILogRepository
	txMgr  repositories.TransactionManager
	drops  DropCounter
	logger *zap.Logger
	cfg    Config

	events  chan event
	dropped atomic.Int64
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// New creates a recorder. drops may be nil.
func New(repos *repositories.Repositories, txMgr repositories.TransactionManager, logger *zap.Logger, cfg Config, drops DropCounter) *Recorder {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}

	return &Recorder{
		keys:   repos.APIKeys,
		logs:   repos.AILogs,
		txMgr:  txMgr,
		drops:  drops,
		logger: logger,
		cfg:    cfg,
		events: make(chan event, cfg.BufferSize),
	}
}

// Start launches the workers. Events queued before Start are kept.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return errAlreadyStopped
	}
	if r.started {
		return errAlreadyStarted
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.started = true

	r.logger.Info("started outcome recorder",
		zap.Int("workers", r.cfg.Workers),
		zap.Int("buffer_size", r.cfg.BufferSize))
	return nil
}

// Stop stops accepting events and waits up to timeout for the queue to drain.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return errAlreadyStopped
	}
	r.stopped = true
	pending := len(r.events)
	close(r.events)
	r.mu.Unlock()

	r.logger.Info("stopping outcome recorder", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("outcome recorder stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("recorder stop timeout after %v", timeout)
	}
}

// RecordSuccess queues a success event.
func (r *Recorder) RecordSuccess(ev SuccessEvent) {
	r.enqueue(event{success: &ev}, ev.Provider, ev.CredentialID)
}

// RecordError queues an error event.
func (r *Recorder) RecordError(ev ErrorEvent) {
	r.enqueue(event{failure: &ev}, ev.Provider, ev.CredentialID)
}

func (r *Recorder) enqueue(ev event, provider string, keyID int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.stopped {
		select {
		case r.events <- ev:
			return
		default:
		}
	}

	r.dropped.Add(1)
	if r.drops != nil {
		r.drops.ObserveDrop()
	}
	r.logger.Warn("outcome event dropped",
		zap.String("provider", provider),
		zap.Int64("key_id", keyID),
		zap.Bool("stopped", r.stopped))
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	for ev := range r.events {
		if err := r.persist(ev); err != nil {
			r.logger.Error("failed to persist outcome",
				zap.Int("worker_id", id),
				zap.Error(err))
		}
	}
}

func (r *Recorder) persist(ev event) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PersistTimeout)
	defer cancel()

	return services.WithTransaction(ctx, r.txMgr, func(ctx context.Context, _ repositories.Transaction) error {
		switch {
		case ev.success != nil:
			return r.persistSuccess(ctx, ev.success)
		case ev.failure != nil:
			return r.persistError(ctx, ev.failure)
		default:
			return nil
		}
	})
}

func (r *Recorder) persistSuccess(ctx context.Context, ev *SuccessEvent) error {
	row := models.NewAILog(ev.Provider, ev.PromptDigest, ev.CredentialID).
		WithSuccess(ev.Model, Preview(ev.ResponsePreview), ev.LatencyMs).
		WithSession(ev.RequestID)
	if ev.PromptPreview != "" {
		p := Preview(ev.PromptPreview)
		row.PromptPreview = &p
	}

	if err := r.logs.Insert(ctx, row); err != nil {
		return err
	}
	return r.keys.RecordSuccess(ctx, ev.CredentialID, ev.LatencyMs)
}

func (r *Recorder) persistError(ctx context.Context, ev *ErrorEvent) error {
	row := models.NewAILog(ev.Provider, ev.PromptDigest, ev.CredentialID).
		WithError(ev.StatusCode, ev.Message).
		WithSession(ev.RequestID)
	if ev.PromptPreview != "" {
		p := Preview(ev.PromptPreview)
		row.PromptPreview = &p
	}

	if err := r.logs.Insert(ctx, row); err != nil {
		return err
	}
	return r.keys.RecordError(ctx, ev.CredentialID, ev.Message, ev.StatusCode == http.StatusTooManyRequests)
}

// Stats reports queue state.
type Stats struct {
	BufferSize    int
	PendingEvents int
	Dropped       int64
	Workers       int
	Started       bool
	Stopped       bool
}

// Stats returns a snapshot of the recorder state.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		BufferSize:    r.cfg.BufferSize,
		PendingEvents: len(r.events),
		Dropped:       r.dropped.Load(),
		Workers:       r.cfg.Workers,
		Started:       r.started,
		Stopped:       r.stopped,
	}
}

// Digest returns the hex SHA-256 of a prompt.
func Digest(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Preview masks credentials in s and truncates it to PreviewLength runes.
func Preview(s string) string {
	s = redact.String(s)
	runes := []rune(s)
	if len(runes) <= PreviewLength {
		return s
	}
	return string(runes[:PreviewLength])
}
