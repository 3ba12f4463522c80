package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clemgrim/veillee/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
}

// GameRepository defines game, seat, and resource-ledger data operations.
// Ledger fields (tokens, health, score, alive) are written only from
// resolution orchestrators.
type GameRepository interface {
	Create(ctx context.Context, id, name, hostID, gameType string, settings json.RawMessage) (*model.Game, error)
	FindByID(ctx context.Context, id string) (*model.Game, error)
	ListOpen(ctx context.Context) ([]model.Game, error)
	ListByUser(ctx context.Context, userID string) ([]model.Game, error)
	ListActive(ctx context.Context) ([]model.Game, error)

	AddPlayer(ctx context.Context, p model.Player) error
	ListPlayers(ctx context.Context, gameID string) ([]model.Player, error)
	NextSeat(ctx context.Context, gameID string) (int, error)
	RemovePlayer(ctx context.Context, gameID string, seat int) error
	UpdateLedger(ctx context.Context, gameID string, seat, tokens, health, score int, alive bool) error

	Start(ctx context.Context, gameID, phase string) error
	SetPhase(ctx context.Context, gameID string, round int, phase string, locked bool) error
	SetPhaseLock(ctx context.Context, gameID string, locked bool) error
	AdvanceStep(ctx context.Context, gameID string, step int, gameType, phase string) error
	SetFinished(ctx context.Context, gameID, winner string) error
	Delete(ctx context.Context, gameID string) error
}

// RoundRepository defines per-round resolution artifacts: idempotence
// markers, locked submissions, rankings, positions, purchases, inventory.
// Result rows are immutable once written.
type RoundRepository interface {
	// MarkResolved inserts the idempotence marker for (game, round, step).
	// Returns false when the step was already resolved.
	MarkResolved(ctx context.Context, gameID string, round int, step string) (bool, error)
	IsResolved(ctx context.Context, gameID string, round int, step string) (bool, error)

	SaveSubmissions(ctx context.Context, subs []model.Submission) error
	SubmissionsForRound(ctx context.Context, gameID string, round int, category string) ([]model.Submission, error)

	SaveRanking(ctx context.Context, entries []model.RankingEntry) error
	RankingForRound(ctx context.Context, gameID string, round int) ([]model.RankingEntry, error)

	SavePositions(ctx context.Context, positions []model.Position) error
	PositionsForRound(ctx context.Context, gameID string, round int) ([]model.Position, error)

	SavePurchases(ctx context.Context, purchases []model.Purchase) error
	PurchasesForRound(ctx context.Context, gameID string, round int) ([]model.Purchase, error)

	AddInventory(ctx context.Context, gameID string, seat int, item string, qty int) error
	Inventory(ctx context.Context, gameID string, seat int) ([]model.InventoryItem, error)
	ConsumeInventory(ctx context.Context, gameID string, seat int, item string) error
}

// DuelRepository defines duel pairing and decision storage.
type DuelRepository interface {
	Create(ctx context.Context, id, gameID string, round, seatA, seatB int, final bool) (*model.Duel, error)
	FindByID(ctx context.Context, id string) (*model.Duel, error)
	ListByGame(ctx context.Context, gameID string) ([]model.Duel, error)
	SetDecision(ctx context.Context, id string, seat int, searches bool) error
	// Resolve stores the outcome; fails if already resolved.
	Resolve(ctx context.Context, id string, deltaA, deltaB, confiscatedA, confiscatedB int) error
}

// RiverRepository defines river-crossing cycle state.
type RiverRepository interface {
	Init(ctx context.Context, gameID string, seats []model.RiverSeat) error
	State(ctx context.Context, gameID string) (*model.RiverState, error)
	SetLevel(ctx context.Context, gameID string, level, pot int) error
	UpdateSeat(ctx context.Context, s model.RiverSeat) error
}

// AuditRepository defines the two append-only narrative streams.
type AuditRepository interface {
	Append(ctx context.Context, gameID string, round int, audience, message string) (*model.AuditRecord, error)
	ListByGame(ctx context.Context, gameID, audience string) ([]model.AuditRecord, error)
}

// SubmissionCache defines live round state (Redis): pre-lock submissions
// (latest write wins), ready marks, countdown timers, and the auto-mode
// flag. Submission recording may read ledger balances but never writes
// them; there is no ledger mutation path through the cache.
type SubmissionCache interface {
	SetSubmission(ctx context.Context, gameID string, seat int, category string, payload json.RawMessage) error
	GetSubmission(ctx context.Context, gameID string, seat int, category string) (json.RawMessage, error)
	GetAllSubmissions(ctx context.Context, gameID string, category string, seats []int) (map[int]json.RawMessage, error)

	MarkReady(ctx context.Context, gameID string, seat int) error
	UnmarkReady(ctx context.Context, gameID string, seat int) error
	ReadyCount(ctx context.Context, gameID string) (int64, error)
	ReadySeats(ctx context.Context, gameID string) ([]int, error)

	SetTimer(ctx context.Context, gameID string, deadline time.Time) error
	ClearTimer(ctx context.Context, gameID string) error
	// HasTimer reports whether the countdown key still exists; a missing
	// key on an active game means the deadline passed.
	HasTimer(ctx context.Context, gameID string) (bool, error)

	SetAutoMode(ctx context.Context, gameID string, enabled bool) error
	AutoMode(ctx context.Context, gameID string) (bool, error)

	ClearPhaseData(ctx context.Context, gameID string, seats []int) error
	DeleteGameData(ctx context.Context, gameID string, seats []int) error
}
