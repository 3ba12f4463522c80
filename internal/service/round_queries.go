package service

import (
	"context"

	"github.com/clemgrim/veillee/internal/model"
)

// Read-side accessors for the result endpoints. The UI only ever reads
// these; it never writes ledger fields.

func (s *RoundService) Ranking(ctx context.Context, gameID string, round int) ([]model.RankingEntry, error) {
	return s.roundRepo.RankingForRound(ctx, gameID, round)
}

func (s *RoundService) Positions(ctx context.Context, gameID string, round int) ([]model.Position, error) {
	return s.roundRepo.PositionsForRound(ctx, gameID, round)
}

func (s *RoundService) Purchases(ctx context.Context, gameID string, round int) ([]model.Purchase, error) {
	return s.roundRepo.PurchasesForRound(ctx, gameID, round)
}

func (s *RoundService) Duels(ctx context.Context, gameID string) ([]model.Duel, error) {
	return s.duelRepo.ListByGame(ctx, gameID)
}

func (s *RoundService) RiverState(ctx context.Context, gameID string) (*model.RiverState, error) {
	return s.riverRepo.State(ctx, gameID)
}

func (s *RoundService) Inventory(ctx context.Context, gameID string, seat int) ([]model.InventoryItem, error) {
	return s.roundRepo.Inventory(ctx, gameID, seat)
}

// AuditLog returns the audit stream for an audience. The master stream
// includes the public records; the public stream never includes master
// detail.
func (s *RoundService) AuditLog(ctx context.Context, gameID string, privileged bool) ([]model.AuditRecord, error) {
	audience := model.AudiencePublic
	if privileged {
		audience = model.AudienceMaster
	}
	return s.auditRepo.ListByGame(ctx, gameID, audience)
}
