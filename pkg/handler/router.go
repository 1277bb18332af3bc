package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the operator API. gatherer backs /metrics.
func NewRouter(lc *LoadContext, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()

	// Error route
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	// API routes
	mux.HandleFunc("GET /api/v1/health", lc.HealthCheck)
	mux.HandleFunc("POST /api/v1/loads", lc.SubmitLoad)
	mux.HandleFunc("GET /api/v1/loads/{job_id}", lc.GetLoad)

	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
