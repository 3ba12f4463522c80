package handler

import (
	"encoding/json"
	"net/http"

	"github.com/clemgrim/veillee/internal/auth"
	"github.com/clemgrim/veillee/internal/service"
)

// SubmissionHandler handles per-phase intent submission and readiness.
type SubmissionHandler struct {
	subSvc *service.SubmissionService
}

// NewSubmissionHandler creates a SubmissionHandler.
func NewSubmissionHandler(subSvc *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{subSvc: subSvc}
}

// Submit handles POST /api/v1/games/{id}/submissions/{category}
func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	category := r.PathValue("category")
	userID := auth.UserIDFromContext(r.Context())

	var payload json.RawMessage
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.subSvc.SubmitIntent(r.Context(), gameID, userID, category, payload); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "submitted"})
}

// Ready handles POST /api/v1/games/{id}/ready
func (h *SubmissionHandler) Ready(w http.ResponseWriter, r *http.Request) {
	h.setReady(w, r, true)
}

// Unready handles POST /api/v1/games/{id}/unready
func (h *SubmissionHandler) Unready(w http.ResponseWriter, r *http.Request) {
	h.setReady(w, r, false)
}

func (h *SubmissionHandler) setReady(w http.ResponseWriter, r *http.Request, ready bool) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.subSvc.SetReady(r.Context(), gameID, userID, ready); err != nil {
		writeServiceError(w, r, err)
		return
	}

	count, total, err := h.subSvc.ReadyState(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": count, "total": total})
}
