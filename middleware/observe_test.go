package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordedHTTP struct {
	method, route, status string
}

type captureObserver struct {
	calls []recordedHTTP
}

func (c *captureObserver) ObserveHTTP(method, route, status string, _ float64) {
	c.calls = append(c.calls, recordedHTTP{method, route, status})
}

func TestObserve(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := &captureObserver{}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Observe(zap.New(core), obs))
	r.Get("/api/admin/keys/{id}/logs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/api/admin/keys/42/logs", "/ok"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Len(t, obs.calls, 2)
	assert.Equal(t, recordedHTTP{"GET", "/api/admin/keys/{id}/logs", "404"}, obs.calls[0])
	assert.Equal(t, recordedHTTP{"GET", "/ok", "200"}, obs.calls[1])

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, zap.InfoLevel, entries[1].Level)
	assert.NotEmpty(t, entries[1].ContextMap()["request_id"])
}
