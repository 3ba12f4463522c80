package model

import (
	"encoding/json"
	"time"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	IsAdmin     bool      `json:"is_admin,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Game represents one play session: its type, round/phase cursor, and the
// phase lock preventing duplicate resolution.
type Game struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	HostID      string          `json:"host_id"`
	GameType    string          `json:"game_type"`
	Step        int             `json:"step"`   // adventure-mode sequence index
	Status      string          `json:"status"` // waiting, active, finished
	Round       int             `json:"round"`
	Phase       string          `json:"phase"`
	PhaseLocked bool            `json:"phase_locked"`
	Settings    json.RawMessage `json:"settings,omitempty"` // bot probability overrides etc.
	Winner      string          `json:"winner,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Players     []Player        `json:"players,omitempty"`
}

// Player represents a participant's seat in a game instance, with the
// resource ledger fields only orchestrators may write.
type Player struct {
	GameID      string    `json:"game_id"`
	Seat        int       `json:"seat"`
	UserID      string    `json:"user_id,omitempty"` // empty for bots
	DisplayName string    `json:"display_name"`
	IsBot       bool      `json:"is_bot"`
	Alive       bool      `json:"alive"`
	Tokens      int       `json:"tokens"`
	Health      int       `json:"health"`
	Score       int       `json:"score"`
	Role        string    `json:"role,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Submission is one locked intent row, written at resolution time with
// both the requested and the computed effective value. Pre-lock intents
// live in the cache, not here.
type Submission struct {
	ID        string          `json:"id"`
	GameID    string          `json:"game_id"`
	Round     int             `json:"round"`
	Seat      int             `json:"seat"`
	Category  string          `json:"category"` // bet, action, shop, duel, crossing
	Requested json.RawMessage `json:"requested"`
	Effective json.RawMessage `json:"effective,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RankingEntry is one persisted priority-ranking row for a round.
// Computed once at bet close and reused by every later allocation in the
// same round.
type RankingEntry struct {
	GameID       string `json:"game_id"`
	Round        int    `json:"round"`
	Seat         int    `json:"seat"`
	Rank         int    `json:"rank"`
	EffectiveBid int    `json:"effective_bid"`
	TieGroup     int    `json:"tie_group"`
	Submitted    bool   `json:"submitted"`
}

// Position is one final slot assignment for a round, immutable once written.
type Position struct {
	GameID      string `json:"game_id"`
	Round       int    `json:"round"`
	Seat        int    `json:"seat"`
	Slot        int    `json:"slot"`
	TargetSlot  int    `json:"target_slot,omitempty"`
	AttackItem  string `json:"attack_item,omitempty"`
	ProtectItem string `json:"protect_item,omitempty"`
}

// Purchase is one shop request outcome, approved or denied, with its
// human-readable reason.
type Purchase struct {
	GameID   string `json:"game_id"`
	Round    int    `json:"round"`
	Seat     int    `json:"seat"`
	Item     string `json:"item,omitempty"`
	Approved bool   `json:"approved"`
	Price    int    `json:"price,omitempty"`
	Reason   string `json:"reason"`
}

// Duel is one pairwise search duel. Decisions arrive independently; the
// duel resolves only when both are present and it is not yet resolved.
type Duel struct {
	ID           string     `json:"id"`
	GameID       string     `json:"game_id"`
	Round        int        `json:"round"`
	SeatA        int        `json:"seat_a"`
	SeatB        int        `json:"seat_b"`
	DecisionA    *bool      `json:"decision_a,omitempty"`
	DecisionB    *bool      `json:"decision_b,omitempty"`
	Final        bool       `json:"final"`
	DeltaA       int        `json:"delta_a"`
	DeltaB       int        `json:"delta_b"`
	ConfiscatedA int        `json:"confiscated_a"`
	ConfiscatedB int        `json:"confiscated_b"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// InventoryItem is one owned item stack.
type InventoryItem struct {
	GameID    string `json:"game_id"`
	Seat      int    `json:"seat"`
	Item      string `json:"item"`
	Quantity  int    `json:"quantity"`
	Available bool   `json:"available"`
}

// RiverSeat is one player's river-crossing progress within a cycle.
type RiverSeat struct {
	GameID          string `json:"game_id"`
	Seat            int    `json:"seat"`
	Status          string `json:"status"` // in, out, eliminated
	Stake           int    `json:"stake"`
	ValidatedLevels int    `json:"validated_levels"`
	ExitOrder       int    `json:"exit_order,omitempty"`
	TalismanUsed    bool   `json:"talisman_used"`
	LifelineUsed    bool   `json:"lifeline_used"`
}

// RiverState is the shared crossing state for a game: current level and
// the carried pot.
type RiverState struct {
	GameID string      `json:"game_id"`
	Level  int         `json:"level"`
	Pot    int         `json:"pot"`
	Seats  []RiverSeat `json:"seats,omitempty"`
}

// Audit record audiences. Public never reveals another player's private
// targets or denied wishes; master carries full detail.
const (
	AudiencePublic = "public"
	AudienceMaster = "master"
)

// AuditRecord is one append-only narrative entry.
type AuditRecord struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Round     int       `json:"round"`
	Audience  string    `json:"audience"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
