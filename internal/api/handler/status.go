package handler

import (
	"net/http"

	"github.com/bcnelson/simulation-deployer/internal/domain"
	"github.com/bcnelson/simulation-deployer/internal/storage"
)

// StatusMessage is reported by GET /status.
const StatusMessage = "Pulumi deployment service is running"

// StatusHandler handles liveness and readiness endpoints.
type StatusHandler struct {
	store storage.Storage
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(store storage.Storage) *StatusHandler {
	return &StatusHandler{store: store}
}

// Status reports that the service is up. It never touches the engine.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &domain.StatusResponse{
		Status:  domain.StatusOK,
		Message: StatusMessage,
	})
}

// Health checks the operation history store.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondError(w, r, http.StatusServiceUnavailable, domain.ErrCodeInternalError, "Storage unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, &domain.StatusResponse{Status: domain.StatusOK, Message: "healthy"})
}
