package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/auth"
	"github.com/clemgrim/veillee/internal/service"
)

// GameHandler handles lobby and lifecycle endpoints.
type GameHandler struct {
	gameSvc  *service.GameService
	roundSvc *service.RoundService
	subSvc   *service.SubmissionService
	auto     *service.AutoController
}

// NewGameHandler creates a GameHandler.
func NewGameHandler(gameSvc *service.GameService, roundSvc *service.RoundService, subSvc *service.SubmissionService, auto *service.AutoController) *GameHandler {
	return &GameHandler{gameSvc: gameSvc, roundSvc: roundSvc, subSvc: subSvc, auto: auto}
}

// CreateGame handles POST /api/v1/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		Name     string          `json:"name"`
		GameType string          `json:"game_type"`
		Settings json.RawMessage `json:"settings,omitempty"`
		Bots     int             `json:"bots,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if req.GameType == "" {
		writeError(w, r, http.StatusBadRequest, "game_type is required")
		return
	}

	game, err := h.gameSvc.CreateGame(r.Context(), req.Name, userID, req.GameType, req.Settings, req.Bots)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

// ListGames handles GET /api/v1/games
func (h *GameHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	filter := r.URL.Query().Get("filter")
	games, err := h.gameSvc.ListGames(r.Context(), userID, filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if games == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, games)
}

// GetGame handles GET /api/v1/games/{id}
func (h *GameHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	game, err := h.gameSvc.GetGame(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"game": game}
	if game.Status == "active" {
		ready, total, err := h.subSvc.ReadyState(r.Context(), gameID)
		if err != nil {
			log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to load ready state")
		} else {
			resp["ready"] = ready
			resp["total"] = total
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// JoinGame handles POST /api/v1/games/{id}/join
func (h *GameHandler) JoinGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	seat, err := h.gameSvc.JoinGame(r.Context(), gameID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "joined", "seat": seat})
}

// AddBot handles POST /api/v1/games/{id}/bots
func (h *GameHandler) AddBot(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	seat, err := h.gameSvc.AddBot(r.Context(), gameID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "added", "seat": seat})
}

// KickPlayer handles DELETE /api/v1/games/{id}/players/{seat}
func (h *GameHandler) KickPlayer(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	seat, err := strconv.Atoi(r.PathValue("seat"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid seat")
		return
	}

	if err := h.gameSvc.KickPlayer(r.Context(), gameID, userID, seat); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "kicked"})
}

// StartGame handles POST /api/v1/games/{id}/start
func (h *GameHandler) StartGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	game, err := h.gameSvc.StartGame(r.Context(), gameID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// The sheriff variant needs its first-round pairings the moment the
	// duel phase opens.
	if game.GameType == "sheriff" {
		if _, err := h.roundSvc.PairDuels(r.Context(), gameID); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("Failed to pair opening duels")
		}
	}

	writeJSON(w, http.StatusOK, game)
}

// AdvanceStep handles POST /api/v1/games/{id}/step
func (h *GameHandler) AdvanceStep(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		GameType string `json:"game_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	game, err := h.gameSvc.AdvanceStep(r.Context(), gameID, userID, req.GameType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if game.GameType == "sheriff" {
		if _, err := h.roundSvc.PairDuels(r.Context(), gameID); err != nil {
			log.Error().Err(err).Str("gameId", gameID).Msg("Failed to pair duels after step advance")
		}
	}
	writeJSON(w, http.StatusOK, game)
}

// StopGame handles POST /api/v1/games/{id}/stop
func (h *GameHandler) StopGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	game, err := h.gameSvc.StopGame(r.Context(), gameID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// DeleteGame handles DELETE /api/v1/games/{id}
func (h *GameHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.gameSvc.DeleteGame(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SetAutoMode handles PUT /api/v1/games/{id}/auto
func (h *GameHandler) SetAutoMode(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gameSvc.AuthorizeHost(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.auto.SetEnabled(r.Context(), gameID, req.Enabled); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"auto": req.Enabled})
}

// ForceUnlock handles POST /api/v1/games/{id}/unlock
func (h *GameHandler) ForceUnlock(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.gameSvc.ForceUnlock(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}
