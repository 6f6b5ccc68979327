// Package observability provides the zap logger and the Prometheus
// collectors used across the router.
package observability
