package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/metrics"
	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/internal/repository"
	"github.com/clemgrim/veillee/pkg/engine"
)

// SubmissionService records player intents during an open phase. Intents
// go to the cache only (latest write wins); ledger fields are never
// touched here. Duel search decisions are additionally pinned on the duel
// row, since duel resolution requires both decisions present.
type SubmissionService struct {
	gameRepo      repository.GameRepository
	duelRepo      repository.DuelRepository
	cache         repository.SubmissionCache
	broadcaster   Broadcaster
	earlyResolver EarlyResolver
}

// EarlyResolver is notified after each accepted submission so resolution
// can fire as soon as every human seat is ready.
type EarlyResolver interface {
	MaybeResolveEarly(ctx context.Context, gameID string)
}

// NewSubmissionService creates a SubmissionService.
func NewSubmissionService(
	gameRepo repository.GameRepository,
	duelRepo repository.DuelRepository,
	cache repository.SubmissionCache,
	broadcaster Broadcaster,
) *SubmissionService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &SubmissionService{
		gameRepo:    gameRepo,
		duelRepo:    duelRepo,
		cache:       cache,
		broadcaster: broadcaster,
	}
}

// SubmitIntent validates and records one submission for the caller's
// seat, then marks the seat ready. Re-submitting before the phase locks
// replaces the earlier intent.
func (s *SubmissionService) SubmitIntent(ctx context.Context, gameID, userID, category string, payload json.RawMessage) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "active" {
		return ErrGameNotActive
	}
	if game.PhaseLocked {
		return ErrPhaseLocked
	}
	if categoryForPhase[engine.Phase(game.Phase)] != category {
		return fmt.Errorf("category %q in phase %q: %w", category, game.Phase, ErrWrongPhase)
	}

	player := playerByUser(game, userID)
	if player == nil {
		return ErrNotInGame
	}
	if !player.Alive {
		return fmt.Errorf("seat %d is removed: %w", player.Seat, ErrNotInGame)
	}

	if err := validatePayload(category, payload); err != nil {
		return err
	}

	if err := s.cache.SetSubmission(ctx, gameID, player.Seat, category, payload); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}

	if category == "duel" {
		if err := s.pinDuelDecision(ctx, game, player.Seat, payload); err != nil {
			return err
		}
	}

	if err := s.cache.MarkReady(ctx, gameID, player.Seat); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}

	metrics.SubmissionsTotal.WithLabelValues(category).Inc()
	log.Debug().Str("gameId", gameID).Int("seat", player.Seat).
		Str("category", category).Msg("Submission recorded")

	s.broadcastReady(ctx, game)
	if s.earlyResolver != nil {
		s.earlyResolver.MaybeResolveEarly(ctx, gameID)
	}
	return nil
}

// SetEarlyResolver installs the hook invoked after accepted submissions.
func (s *SubmissionService) SetEarlyResolver(r EarlyResolver) {
	s.earlyResolver = r
}

// pinDuelDecision stores the search decision on the seat's unresolved
// duel for this round.
func (s *SubmissionService) pinDuelDecision(ctx context.Context, game *model.Game, seat int, payload json.RawMessage) error {
	var p duelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	duels, err := s.duelRepo.ListByGame(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("list duels: %w", err)
	}
	for _, d := range duels {
		if d.Round != game.Round || d.ResolvedAt != nil {
			continue
		}
		if d.SeatA == seat || d.SeatB == seat {
			return s.duelRepo.SetDecision(ctx, d.ID, seat, p.Searches)
		}
	}
	return ErrDuelNotFound
}

// SetReady marks or unmarks the caller's seat as ready without changing
// their recorded intent.
func (s *SubmissionService) SetReady(ctx context.Context, gameID, userID string, ready bool) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "active" {
		return ErrGameNotActive
	}
	player := playerByUser(game, userID)
	if player == nil {
		return ErrNotInGame
	}

	if ready {
		err = s.cache.MarkReady(ctx, gameID, player.Seat)
	} else {
		err = s.cache.UnmarkReady(ctx, gameID, player.Seat)
	}
	if err != nil {
		return err
	}
	s.broadcastReady(ctx, game)
	if ready && s.earlyResolver != nil {
		s.earlyResolver.MaybeResolveEarly(ctx, gameID)
	}
	return nil
}

// ReadyState returns how many seats are ready against how many alive
// seats exist.
func (s *SubmissionService) ReadyState(ctx context.Context, gameID string) (ready, total int, err error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return 0, 0, err
	}
	if game == nil {
		return 0, 0, ErrGameNotFound
	}
	count, err := s.cache.ReadyCount(ctx, gameID)
	if err != nil {
		return 0, 0, err
	}
	return int(count), len(aliveSeats(game.Players)), nil
}

func (s *SubmissionService) broadcastReady(ctx context.Context, game *model.Game) {
	count, err := s.cache.ReadyCount(ctx, game.ID)
	if err != nil {
		log.Warn().Err(err).Str("gameId", game.ID).Msg("Failed to read ready count")
		return
	}
	s.broadcaster.BroadcastGameEvent(game.ID, "player_ready", map[string]any{
		"ready_count": count,
		"total":       len(aliveSeats(game.Players)),
	})
}

func playerByUser(game *model.Game, userID string) *model.Player {
	for i := range game.Players {
		if game.Players[i].UserID == userID && userID != "" {
			return &game.Players[i]
		}
	}
	return nil
}

func aliveSeats(players []model.Player) []int {
	var seats []int
	for _, p := range players {
		if p.Alive {
			seats = append(seats, p.Seat)
		}
	}
	return seats
}
