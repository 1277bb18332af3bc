// Handler for miscellaneous endpoints such as health check

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"go.uber.org/zap"
)

type HealthResponse struct {
	Health    string    `json:"health"`
	Database  string    `json:"database"`
	Timestamp time.Time `json:"timestamp"`
}

func (lc *LoadContext) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Health:    "ok",
		Database:  "ok",
		Timestamp: time.Now(),
	}
	status := http.StatusOK
	if err := lc.Store.Ping(ctx); err != nil {
		logger.Warn("Health check failed", zap.Error(err))
		response.Health = "unavailable"
		response.Database = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Could not encode response", zap.Error(err))
	}
}
