package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the router.
type Config struct {
	// AllowedOrigins lists CORS origins; "*" allows all.
	AllowedOrigins []string
	// Metrics exposes the Prometheus registry at GET /metrics.
	Metrics bool
}

// DefaultConfig allows every origin and exposes metrics.
func DefaultConfig() Config {
	return Config{AllowedOrigins: []string{"*"}, Metrics: true}
}

// NewRouter registers the job API on a ServeMux and wraps it in the
// request ID, logging, recovery and CORS middleware.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /processors", h.ListProcessors)
	mux.HandleFunc("POST /jobs", h.CreateJob)
	if cfg.Metrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return ChainMiddleware(
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		RecoveryMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)(mux)
}
