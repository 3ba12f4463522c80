package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/auth"
	"github.com/clemgrim/veillee/internal/metrics"
	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/internal/repository"
	"github.com/clemgrim/veillee/pkg/engine"
)

// GameService handles lobby and lifecycle operations: create, join, bots,
// start, kick, stop, adventure-mode step advance. Resolution lives in
// RoundService.
type GameService struct {
	gameRepo    repository.GameRepository
	userRepo    repository.UserRepository
	riverRepo   repository.RiverRepository
	cache       repository.SubmissionCache
	broadcaster Broadcaster
}

// NewGameService creates a GameService.
func NewGameService(
	gameRepo repository.GameRepository,
	userRepo repository.UserRepository,
	riverRepo repository.RiverRepository,
	cache repository.SubmissionCache,
	broadcaster Broadcaster,
) *GameService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &GameService{
		gameRepo:    gameRepo,
		userRepo:    userRepo,
		riverRepo:   riverRepo,
		cache:       cache,
		broadcaster: broadcaster,
	}
}

// CreateGame creates a game in "waiting" status with the host at seat 1
// and botCount bot seats after it.
func (s *GameService) CreateGame(ctx context.Context, name, hostID, gameType string, settings json.RawMessage, botCount int) (*model.Game, error) {
	if !engine.KnownGameType(engine.GameType(gameType)) {
		return nil, fmt.Errorf("%q: %w", gameType, engine.ErrUnknownGameType)
	}
	host, err := s.userRepo.FindByID(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("find host: %w", err)
	}
	if host == nil {
		return nil, fmt.Errorf("host %s: %w", hostID, ErrGameNotFound)
	}

	id := uuid.NewString()
	game, err := s.gameRepo.Create(ctx, id, name, hostID, gameType, settings)
	if err != nil {
		return nil, err
	}

	cfg := settingsFor(game)
	if err := s.gameRepo.AddPlayer(ctx, model.Player{
		GameID:      id,
		Seat:        1,
		UserID:      hostID,
		DisplayName: host.DisplayName,
		Alive:       true,
		Tokens:      cfg.StartingTokens,
		Health:      cfg.StartingHealth,
	}); err != nil {
		return nil, fmt.Errorf("seat host: %w", err)
	}

	for i := 0; i < botCount && i < maxPlayers-1; i++ {
		if _, err := s.addBotSeat(ctx, id, cfg); err != nil {
			return nil, fmt.Errorf("seat bot %d: %w", i+1, err)
		}
	}

	return s.gameRepo.FindByID(ctx, id)
}

// JoinGame seats a user in a waiting game and returns the seat number.
func (s *GameService) JoinGame(ctx context.Context, gameID, userID string) (int, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if game == nil {
		return 0, ErrGameNotFound
	}
	if game.Status != "waiting" {
		return 0, ErrGameNotWaiting
	}
	for _, p := range game.Players {
		if p.UserID == userID {
			return 0, ErrAlreadyJoined
		}
	}
	if len(game.Players) >= maxPlayers {
		return 0, ErrGameFull
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return 0, ErrNotInGame
	}

	seat, err := s.gameRepo.NextSeat(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("next seat: %w", err)
	}
	cfg := settingsFor(game)
	err = s.gameRepo.AddPlayer(ctx, model.Player{
		GameID:      gameID,
		Seat:        seat,
		UserID:      userID,
		DisplayName: user.DisplayName,
		Alive:       true,
		Tokens:      cfg.StartingTokens,
		Health:      cfg.StartingHealth,
	})
	if err != nil {
		return 0, err
	}

	s.broadcaster.BroadcastGameEvent(gameID, "player_joined", map[string]any{
		"seat":         seat,
		"display_name": user.DisplayName,
	})
	return seat, nil
}

// AddBot seats a bot in a waiting game. Host only.
func (s *GameService) AddBot(ctx context.Context, gameID, userID string) (int, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return 0, err
	}
	if game == nil {
		return 0, ErrGameNotFound
	}
	if game.Status != "waiting" {
		return 0, ErrGameNotWaiting
	}
	if err := s.authorizeHost(ctx, game, userID); err != nil {
		return 0, err
	}
	if len(game.Players) >= maxPlayers {
		return 0, ErrGameFull
	}

	seat, err := s.addBotSeat(ctx, gameID, settingsFor(game))
	if err != nil {
		return 0, err
	}
	s.broadcaster.BroadcastGameEvent(gameID, "player_joined", map[string]any{
		"seat":   seat,
		"is_bot": true,
	})
	return seat, nil
}

func (s *GameService) addBotSeat(ctx context.Context, gameID string, cfg gameSettings) (int, error) {
	seat, err := s.gameRepo.NextSeat(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("next seat: %w", err)
	}
	err = s.gameRepo.AddPlayer(ctx, model.Player{
		GameID:      gameID,
		Seat:        seat,
		DisplayName: fmt.Sprintf("Bot %d", seat),
		IsBot:       true,
		Alive:       true,
		Tokens:      cfg.StartingTokens,
		Health:      cfg.StartingHealth,
	})
	if err != nil {
		return 0, err
	}
	return seat, nil
}

// KickPlayer removes a seat from a waiting game. Host only; the host
// cannot kick itself.
func (s *GameService) KickPlayer(ctx context.Context, gameID, userID string, seat int) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	if err := s.authorizeHost(ctx, game, userID); err != nil {
		return err
	}

	var target *model.Player
	for i := range game.Players {
		if game.Players[i].Seat == seat {
			target = &game.Players[i]
			break
		}
	}
	if target == nil {
		return ErrSeatNotFound
	}
	if target.UserID == game.HostID {
		return ErrNotHost
	}

	if err := s.gameRepo.RemovePlayer(ctx, gameID, seat); err != nil {
		return err
	}
	s.broadcaster.BroadcastGameEvent(gameID, "player_kicked", map[string]any{"seat": seat})
	return nil
}

// StartGame moves a waiting game into its first phase and arms the
// countdown timer. For rivieres it also initializes the crossing state.
func (s *GameService) StartGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "waiting" {
		return nil, ErrGameNotWaiting
	}
	if err := s.authorizeHost(ctx, game, userID); err != nil {
		return nil, err
	}
	if len(game.Players) < minPlayers {
		return nil, ErrNotEnough
	}

	first, err := engine.FirstPhase(engine.GameType(game.GameType))
	if err != nil {
		return nil, err
	}
	if err := s.gameRepo.Start(ctx, gameID, string(first)); err != nil {
		return nil, err
	}

	if engine.GameType(game.GameType) == engine.GameRivieres {
		if err := s.initRiver(ctx, gameID, game.Players); err != nil {
			return nil, err
		}
	}

	cfg := settingsFor(game)
	deadline := time.Now().Add(cfg.phaseDuration())
	if err := s.cache.SetTimer(ctx, gameID, deadline); err != nil {
		return nil, fmt.Errorf("set timer: %w", err)
	}

	metrics.ActiveGames.Inc()
	log.Info().Str("gameId", gameID).Str("gameType", game.GameType).
		Int("players", len(game.Players)).Msg("Game started")
	s.broadcaster.BroadcastGameEvent(gameID, "game_started", map[string]any{
		"phase":    string(first),
		"round":    1,
		"deadline": deadline.Format(time.RFC3339),
	})

	return s.gameRepo.FindByID(ctx, gameID)
}

func (s *GameService) initRiver(ctx context.Context, gameID string, players []model.Player) error {
	seats := make([]model.RiverSeat, 0, len(players))
	for _, p := range players {
		seats = append(seats, model.RiverSeat{
			GameID: gameID,
			Seat:   p.Seat,
			Status: "in",
		})
	}
	if err := s.riverRepo.Init(ctx, gameID, seats); err != nil {
		return fmt.Errorf("init river state: %w", err)
	}
	return nil
}

// AdvanceStep switches an active adventure-mode game to its next game
// type, resetting the round counter to 1. Host only.
func (s *GameService) AdvanceStep(ctx context.Context, gameID, userID, gameType string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "active" {
		return nil, ErrGameNotActive
	}
	if err := s.authorizeHost(ctx, game, userID); err != nil {
		return nil, err
	}
	gt := engine.GameType(gameType)
	if !engine.KnownGameType(gt) {
		return nil, fmt.Errorf("%q: %w", gameType, engine.ErrUnknownGameType)
	}

	first, err := engine.FirstPhase(gt)
	if err != nil {
		return nil, err
	}
	if err := s.gameRepo.AdvanceStep(ctx, gameID, game.Step+1, gameType, string(first)); err != nil {
		return nil, err
	}
	if gt == engine.GameRivieres {
		if err := s.initRiver(ctx, gameID, game.Players); err != nil {
			return nil, err
		}
	}

	seats := make([]int, 0, len(game.Players))
	for _, p := range game.Players {
		seats = append(seats, p.Seat)
	}
	if err := s.cache.ClearPhaseData(ctx, gameID, seats); err != nil {
		return nil, fmt.Errorf("clear phase data: %w", err)
	}
	deadline := time.Now().Add(settingsFor(game).phaseDuration())
	if err := s.cache.SetTimer(ctx, gameID, deadline); err != nil {
		return nil, fmt.Errorf("set timer: %w", err)
	}

	log.Info().Str("gameId", gameID).Int("step", game.Step+1).
		Str("gameType", gameType).Msg("Adventure step advanced")
	s.broadcaster.BroadcastGameEvent(gameID, "step_advanced", map[string]any{
		"step":      game.Step + 1,
		"game_type": gameType,
		"phase":     string(first),
		"round":     1,
	})
	return s.gameRepo.FindByID(ctx, gameID)
}

// ForceUnlock clears the phase lock of an active game so submissions can
// reopen after a failed resolution. Host or admin only.
func (s *GameService) ForceUnlock(ctx context.Context, gameID, userID string) error {
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
	if err := s.authorizeHost(ctx, game, userID); err != nil {
		return err
	}

	if err := s.gameRepo.SetPhaseLock(ctx, gameID, false); err != nil {
		return err
	}
	log.Warn().Str("gameId", gameID).Str("phase", game.Phase).
		Int("round", game.Round).Msg("Phase force-unlocked by host")
	s.broadcaster.BroadcastGameEvent(gameID, "phase_unlocked", map[string]any{
		"round": game.Round,
		"phase": game.Phase,
	})
	return nil
}

// StopGame ends an active game with no winner. Host only.
func (s *GameService) StopGame(ctx context.Context, gameID, userID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if game.Status != "active" {
		return nil, ErrGameNotActive
	}
	if err := s.authorizeHost(ctx, game, userID); err != nil {
		return nil, err
	}
	if err := s.gameRepo.SetFinished(ctx, gameID, ""); err != nil {
		return nil, err
	}

	seats := make([]int, 0, len(game.Players))
	for _, p := range game.Players {
		seats = append(seats, p.Seat)
	}
	if err := s.cache.DeleteGameData(ctx, gameID, seats); err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("Failed to clear cache after stop")
	}

	metrics.ActiveGames.Dec()
	s.broadcaster.BroadcastGameEvent(gameID, "game_ended", map[string]any{
		"winner": "",
		"reason": "stopped",
	})
	return s.gameRepo.FindByID(ctx, gameID)
}

// DeleteGame removes a waiting game entirely. Host only.
func (s *GameService) DeleteGame(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "waiting" {
		return ErrGameNotWaiting
	}
	if err := s.authorizeHost(ctx, game, userID); err != nil {
		return err
	}
	return s.gameRepo.Delete(ctx, gameID)
}

// GetGame returns a game with its players.
func (s *GameService) GetGame(ctx context.Context, gameID string) (*model.Game, error) {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// ListGames returns open games, or the user's games with filter "my".
func (s *GameService) ListGames(ctx context.Context, userID, filter string) ([]model.Game, error) {
	if filter == "my" {
		return s.gameRepo.ListByUser(ctx, userID)
	}
	return s.gameRepo.ListOpen(ctx)
}

// AuthorizeHost checks that a user may run host-only operations on a
// game: the host itself or a platform admin.
func (s *GameService) AuthorizeHost(ctx context.Context, gameID, userID string) error {
	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	return s.authorizeHost(ctx, game, userID)
}

// authorizeHost allows the game's host or a platform admin. The admin
// flag normally arrives in the token claims; the user lookup covers
// tokens issued before an admin grant.
func (s *GameService) authorizeHost(ctx context.Context, game *model.Game, userID string) error {
	if game.HostID == userID || auth.IsAdminFromContext(ctx) {
		return nil
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if user != nil && user.IsAdmin {
		return nil
	}
	return ErrNotHost
}
