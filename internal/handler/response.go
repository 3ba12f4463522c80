package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/logger"
	"github.com/clemgrim/veillee/internal/service"
	"github.com/clemgrim/veillee/pkg/engine"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error encoding response")
	}
}

// writeError writes a JSON error response. The body carries the request
// correlation id, so a player report can be matched against the logs.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	body := map[string]string{"error": msg}
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		body["request_id"] = id
	}
	writeJSON(w, status, body)
}

// writeServiceError maps the service layer's sentinel errors onto HTTP
// status codes. A lost resolution race is 409, not a server fault: the
// step is already resolved and the client should refetch.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrGameNotFound),
		errors.Is(err, service.ErrSeatNotFound),
		errors.Is(err, service.ErrDuelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotHost),
		errors.Is(err, service.ErrNotInGame):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrAlreadyResolved),
		errors.Is(err, service.ErrDuelResolved):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidPayload):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrGameNotWaiting),
		errors.Is(err, service.ErrGameNotActive),
		errors.Is(err, service.ErrGameFull),
		errors.Is(err, service.ErrNotEnough),
		errors.Is(err, service.ErrAlreadyJoined),
		errors.Is(err, service.ErrWrongPhase),
		errors.Is(err, service.ErrPhaseLocked),
		errors.Is(err, service.ErrDuelNotReady),
		errors.Is(err, service.ErrRiverFinished),
		errors.Is(err, engine.ErrUnknownGameType):
		status = http.StatusBadRequest
	}
	writeError(w, r, status, err.Error())
}

// decodeJSON reads and decodes JSON from a request body.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
