package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ReddyLab/cegs-portal-sub001/logger"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/handler/request"
	"github.com/ReddyLab/cegs-portal-sub001/pkg/loader"
	"go.uber.org/zap"
)

// SubmitLoad queues an experiment or analysis load and answers with the job to poll.
func (lc *LoadContext) SubmitLoad(w http.ResponseWriter, r *http.Request) {
	var req request.LoadRequest

	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		logger.Warn("Bad load request", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	kind := loader.Kind(req.Kind)
	if kind != loader.KindExperiment && kind != loader.KindAnalysis {
		http.Error(w, "Invalid load kind", http.StatusBadRequest)
		return
	}

	manifest := strings.TrimSpace(req.Manifest)
	if manifest == "" {
		http.Error(w, "Manifest cannot be empty", http.StatusBadRequest)
		return
	}

	job, err := lc.Jobs.Submit(kind, manifest)
	if errors.Is(err, ErrQueueFull) {
		http.Error(w, "Too many loads queued, try again later", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, "Could not queue load", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Location", "/api/v1/loads/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (lc *LoadContext) GetLoad(w http.ResponseWriter, r *http.Request) {
	job, ok := lc.Jobs.GetJob(r.PathValue("job_id"))
	if !ok {
		http.Error(w, "Load job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}
