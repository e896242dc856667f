package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blueberrycongee/tutormux/internal/config"
)

// registerMetrics exposes the Prometheus endpoint when enabled.
func registerMetrics(mux *http.ServeMux, cfg *config.Config) {
	if cfg == nil || !cfg.Metrics.Enabled {
		return
	}
	path := cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle("GET "+path, promhttp.Handler())
}
