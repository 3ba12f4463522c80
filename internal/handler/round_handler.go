package handler

import (
	"net/http"
	"strconv"

	"github.com/clemgrim/veillee/internal/auth"
	"github.com/clemgrim/veillee/internal/service"
)

// RoundHandler handles resolution endpoints and round queries.
// Resolution endpoints are host-gated. Reads are open to any
// authenticated user, but only the host and admins see unredacted
// rows: denied shop requests, attack intents and the master audit
// stream stay out of player responses.
type RoundHandler struct {
	gameSvc  *service.GameService
	roundSvc *service.RoundService
}

// NewRoundHandler creates a RoundHandler.
func NewRoundHandler(gameSvc *service.GameService, roundSvc *service.RoundService) *RoundHandler {
	return &RoundHandler{gameSvc: gameSvc, roundSvc: roundSvc}
}

func (h *RoundHandler) hostOnly(w http.ResponseWriter, r *http.Request, gameID string) bool {
	userID := auth.UserIDFromContext(r.Context())
	if err := h.gameSvc.AuthorizeHost(r.Context(), gameID, userID); err != nil {
		writeServiceError(w, r, err)
		return false
	}
	return true
}

// privileged reports whether the caller may see unredacted round detail.
func (h *RoundHandler) privileged(r *http.Request, gameID string) bool {
	userID := auth.UserIDFromContext(r.Context())
	return h.gameSvc.AuthorizeHost(r.Context(), gameID, userID) == nil
}

// CloseBets handles POST /api/v1/games/{id}/resolve/bets
func (h *RoundHandler) CloseBets(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if !h.hostOnly(w, r, gameID) {
		return
	}
	if err := h.roundSvc.CloseBets(r.Context(), gameID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// PublishPositions handles POST /api/v1/games/{id}/resolve/positions
func (h *RoundHandler) PublishPositions(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if !h.hostOnly(w, r, gameID) {
		return
	}
	if err := h.roundSvc.PublishPositions(r.Context(), gameID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ResolveCombat handles POST /api/v1/games/{id}/resolve/combat
func (h *RoundHandler) ResolveCombat(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if !h.hostOnly(w, r, gameID) {
		return
	}
	if err := h.roundSvc.ResolveCombat(r.Context(), gameID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ResolveShop handles POST /api/v1/games/{id}/resolve/shop
func (h *RoundHandler) ResolveShop(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if !h.hostOnly(w, r, gameID) {
		return
	}
	if err := h.roundSvc.ResolveShop(r.Context(), gameID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ResolveRiver handles POST /api/v1/games/{id}/resolve/river
func (h *RoundHandler) ResolveRiver(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if !h.hostOnly(w, r, gameID) {
		return
	}
	var req struct {
		TalismanSeat int `json:"talisman_seat,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if err := h.roundSvc.ResolveRiverLevel(r.Context(), gameID, req.TalismanSeat); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// ResolveDuel handles POST /api/v1/games/{id}/duels/{duelId}/resolve
func (h *RoundHandler) ResolveDuel(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	duelID := r.PathValue("duelId")
	if !h.hostOnly(w, r, gameID) {
		return
	}
	if err := h.roundSvc.ResolveDuel(r.Context(), gameID, duelID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// PairDuels handles POST /api/v1/games/{id}/duels/pair
func (h *RoundHandler) PairDuels(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	if !h.hostOnly(w, r, gameID) {
		return
	}
	duels, err := h.roundSvc.PairDuels(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, duels)
}

// roundParam reads the ?round= query, defaulting to the game's current
// round when absent.
func (h *RoundHandler) roundParam(r *http.Request, gameID string) (int, error) {
	if v := r.URL.Query().Get("round"); v != "" {
		return strconv.Atoi(v)
	}
	game, err := h.gameSvc.GetGame(r.Context(), gameID)
	if err != nil {
		return 0, err
	}
	return game.Round, nil
}

// GetRanking handles GET /api/v1/games/{id}/ranking
func (h *RoundHandler) GetRanking(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	round, err := h.roundParam(r, gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	entries, err := h.roundSvc.Ranking(r.Context(), gameID, round)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetPositions handles GET /api/v1/games/{id}/positions
//
// Players get the published seat/slot map only. Targets and carried
// items were committed in secret; only the host view exposes them.
func (h *RoundHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	round, err := h.roundParam(r, gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	positions, err := h.roundSvc.Positions(r.Context(), gameID, round)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if h.privileged(r, gameID) {
		writeJSON(w, http.StatusOK, positions)
		return
	}
	public := make([]map[string]int, 0, len(positions))
	for _, p := range positions {
		public = append(public, map[string]int{"seat": p.Seat, "slot": p.Slot})
	}
	writeJSON(w, http.StatusOK, public)
}

// GetPurchases handles GET /api/v1/games/{id}/purchases
//
// Players see who bought what. A denied request stays a bare "no
// purchase": the wanted item and the denial reason are host detail.
func (h *RoundHandler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	round, err := h.roundParam(r, gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	purchases, err := h.roundSvc.Purchases(r.Context(), gameID, round)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if h.privileged(r, gameID) {
		writeJSON(w, http.StatusOK, purchases)
		return
	}
	public := make([]publicPurchase, 0, len(purchases))
	for _, p := range purchases {
		entry := publicPurchase{Seat: p.Seat, Approved: p.Approved}
		if p.Approved {
			entry.Item = p.Item
			entry.Price = p.Price
		}
		public = append(public, entry)
	}
	writeJSON(w, http.StatusOK, public)
}

type publicPurchase struct {
	Seat     int    `json:"seat"`
	Approved bool   `json:"approved"`
	Item     string `json:"item,omitempty"`
	Price    int    `json:"price,omitempty"`
}

// GetDuels handles GET /api/v1/games/{id}/duels
func (h *RoundHandler) GetDuels(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	duels, err := h.roundSvc.Duels(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, duels)
}

// GetRiverState handles GET /api/v1/games/{id}/river
func (h *RoundHandler) GetRiverState(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	state, err := h.roundSvc.RiverState(r.Context(), gameID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if state == nil {
		writeError(w, r, http.StatusNotFound, "no river state for this game")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetInventory handles GET /api/v1/games/{id}/inventory/{seat}
//
// An inventory is visible to the seat's own player and the host.
func (h *RoundHandler) GetInventory(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	seat, err := strconv.Atoi(r.PathValue("seat"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid seat")
		return
	}
	if !h.privileged(r, gameID) {
		game, err := h.gameSvc.GetGame(r.Context(), gameID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		userID := auth.UserIDFromContext(r.Context())
		own := false
		for _, p := range game.Players {
			if p.Seat == seat && p.UserID == userID {
				own = true
				break
			}
		}
		if !own {
			writeError(w, r, http.StatusForbidden, "inventory is visible to its owner and the host only")
			return
		}
	}
	items, err := h.roundSvc.Inventory(r.Context(), gameID, seat)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// GetAuditLog handles GET /api/v1/games/{id}/audit
//
// Hosts and admins see the master stream; everyone else gets the
// public one.
func (h *RoundHandler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	records, err := h.roundSvc.AuditLog(r.Context(), gameID, h.privileged(r, gameID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}
