package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/services/catalog"
	"github.com/upb/llm-failover-router/utils"
)

var errDatabaseNotConfigured = errors.New("database not configured")

// CatalogLoader loads the routable provider groups
type CatalogLoader interface {
	Load(ctx context.Context) []catalog.Group
}

// BackendNamer reports which exclusion backend is active
type BackendNamer interface {
	Backend() string
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

// ProviderHealth summarizes one provider group.
type ProviderHealth struct {
	Name        string  `json:"name"`
	Available   bool    `json:"available"`
	KeysCount   int     `json:"keysCount"`
	AvgPriority float64 `json:"avgPriority"`
}

// ProvidersResponse is the body of GET /api/health.
type ProvidersResponse struct {
	Status    string           `json:"status"`
	Providers []ProviderHealth `json:"providers"`
	Timestamp string           `json:"timestamp"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db        *sql.DB
	catalog   CatalogLoader
	exclusion BackendNamer
	logger    *zap.Logger
	now       func() time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *sql.DB, loader CatalogLoader, exclusion BackendNamer, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		catalog:   loader,
		exclusion: exclusion,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleLiveness handles GET /healthz
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database readiness check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		ready = false
	} else {
		checks["database"] = "healthy"
	}

	if h.exclusion != nil {
		checks["exclusion"] = h.exclusion.Backend()
	}

	status, httpStatus := "ready", http.StatusOK
	if !ready {
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	}

	if err := utils.WriteJSON(w, httpStatus, ReadinessResponse{
		Status:    status,
		Timestamp: h.now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleProviders handles GET /api/health
func (h *HealthHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	groups := h.catalog.Load(r.Context())

	resp := ProvidersResponse{
		Status:    "healthy",
		Providers: make([]ProviderHealth, 0, len(groups)),
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	for _, g := range groups {
		resp.Providers = append(resp.Providers, ProviderHealth{
			Name:        g.Provider.String(),
			Available:   true,
			KeysCount:   len(g.Credentials),
			AvgPriority: g.AvgPriority,
		})
	}
	if len(resp.Providers) == 0 {
		resp.Status = "degraded"
	}

	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write provider health response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return errDatabaseNotConfigured
	}
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
