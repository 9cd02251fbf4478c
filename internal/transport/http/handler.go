// Package http exposes submission processing and live statistics over HTTP
// and websockets.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/app"
	"github.com/vd4-dee/quiz/internal/domain"
	"github.com/vd4-dee/quiz/internal/stats"
)

// Handler serves the REST surface.
type Handler struct {
	service *app.SubmissionService
	log     *zap.Logger
}

func NewHandler(service *app.SubmissionService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: service, log: log}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/submissions", h.handleSubmit)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/performance", h.handlePerformance)
	mux.HandleFunc("/healthz", h.handleHealth)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid submission payload"})
		return
	}

	outcome, err := h.service.Process(r.Context(), sub)
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, domain.ErrMalformedSubmission):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	case errors.Is(err, stats.ErrQueueFull):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "try again later"})
		return
	case err != nil:
		h.log.Error("process submission", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	status := http.StatusOK
	if outcome.Security.Action == domain.ActionBlockAndReview {
		// The result is still computed and persisted for review; the client
		// is told the attempt was rejected.
		status = http.StatusForbidden
	}
	writeJSON(w, status, outcome)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, err := h.service.CurrentAverages()
	if err != nil {
		h.log.Error("stats snapshot", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handlePerformance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Operations      []stats.OpReport        `json:"operations"`
		Recommendations []domain.Recommendation `json:"recommendations"`
		Cache           stats.CacheStats        `json:"cache"`
	}{
		Operations:      h.service.Performance(),
		Recommendations: h.service.PerformanceRecommendations(),
		Cache:           h.service.CacheStats(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
