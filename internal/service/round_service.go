package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/metrics"
	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/internal/repository"
	"github.com/clemgrim/veillee/pkg/engine"
)

// RoundService runs the resolution orchestrators: bets close, positions
// publish, combat, shop, river level, duel. Every orchestrator follows
// the same discipline: per-game lock, precondition checks, idempotence
// marker as the first write, then ledger mutations, result rows, audit
// records, phase advance, broadcast.
type RoundService struct {
	gameRepo    repository.GameRepository
	roundRepo   repository.RoundRepository
	duelRepo    repository.DuelRepository
	riverRepo   repository.RiverRepository
	auditRepo   repository.AuditRepository
	cache       repository.SubmissionCache
	broadcaster Broadcaster

	// gameLocks serializes resolution per game. The timer listener, the
	// auto controller, and a manual host action can all fire for the same
	// game at once; the resolutions-table marker is the cross-process
	// guard, this is the in-process one.
	gameLocks sync.Map
}

// NewRoundService creates a RoundService.
func NewRoundService(
	gameRepo repository.GameRepository,
	roundRepo repository.RoundRepository,
	duelRepo repository.DuelRepository,
	riverRepo repository.RiverRepository,
	auditRepo repository.AuditRepository,
	cache repository.SubmissionCache,
	broadcaster Broadcaster,
) *RoundService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &RoundService{
		gameRepo:    gameRepo,
		roundRepo:   roundRepo,
		duelRepo:    duelRepo,
		riverRepo:   riverRepo,
		auditRepo:   auditRepo,
		cache:       cache,
		broadcaster: broadcaster,
	}
}

func (s *RoundService) gameLock(gameID string) *sync.Mutex {
	v, _ := s.gameLocks.LoadOrStore(gameID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ResolveCurrent resolves whatever the game's current phase is. This is
// the timer-expiry and auto-mode entry point; missing human submissions
// get their documented defaults instead of blocking.
func (s *RoundService) ResolveCurrent(ctx context.Context, gameID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.gameRepo.FindByID(ctx, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		return ErrGameNotFound
	}
	if game.Status != "active" {
		log.Debug().Str("gameId", gameID).Str("status", game.Status).
			Msg("Skipping resolution for non-active game")
		return nil
	}

	switch engine.Phase(game.Phase) {
	case engine.PhaseStakes:
		return s.closeBets(ctx, game)
	case engine.PhasePositions:
		return s.publishPositions(ctx, game)
	case engine.PhaseCombat:
		return s.resolveCombat(ctx, game)
	case engine.PhaseShop:
		return s.resolveShop(ctx, game)
	case engine.PhaseCrossing:
		return s.resolveRiverLevel(ctx, game, 0)
	case engine.PhaseDuel:
		return s.resolvePendingDuels(ctx, game)
	}
	return fmt.Errorf("phase %q: %w", game.Phase, ErrWrongPhase)
}

// loadActive fetches the game and checks the standard orchestrator
// preconditions: exists, active, in the expected phase.
func (s *RoundService) loadActive(ctx context.Context, gameID string, want engine.Phase) (*model.Game, error) {
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
	if engine.Phase(game.Phase) != want {
		return nil, fmt.Errorf("phase is %q, want %q: %w", game.Phase, want, ErrWrongPhase)
	}
	return game, nil
}

// markStep writes the idempotence marker for (game, round, step). It is
// the first write of every orchestrator; losing the insert race means
// another invocation already resolved this step — unless that invocation
// died between marking and persisting. A marker with no result rows
// behind it is a retry condition, not a completed step, so the re-run is
// allowed through.
func (s *RoundService) markStep(ctx context.Context, game *model.Game, step string) error {
	first, err := s.roundRepo.MarkResolved(ctx, game.ID, game.Round, step)
	if err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}
	if first {
		return nil
	}
	done, err := s.stepHasResults(ctx, game, step)
	if err != nil {
		return fmt.Errorf("check %s results: %w", step, err)
	}
	if !done {
		log.Warn().Str("gameId", game.ID).Int("round", game.Round).Str("step", step).
			Msg("Marker present but no results persisted, re-running step")
		return nil
	}
	metrics.ResolutionRejections.WithLabelValues(step).Inc()
	return fmt.Errorf("%s round %d: %w", step, game.Round, ErrAlreadyResolved)
}

// stepHasResults reports whether a marked step actually left its result
// rows behind. Combat, crossing and duel steps mutate rows that exist
// before resolution, so their marker is taken at face value.
func (s *RoundService) stepHasResults(ctx context.Context, game *model.Game, step string) (bool, error) {
	switch step {
	case "bets":
		entries, err := s.roundRepo.RankingForRound(ctx, game.ID, game.Round)
		return len(entries) > 0, err
	case "positions":
		rows, err := s.roundRepo.PositionsForRound(ctx, game.ID, game.Round)
		return len(rows) > 0, err
	case "shop":
		recs, err := s.roundRepo.PurchasesForRound(ctx, game.ID, game.Round)
		return len(recs) > 0, err
	}
	return true, nil
}

func ledgerFor(players []model.Player) *engine.Ledger {
	states := make([]engine.PlayerState, 0, len(players))
	for _, p := range players {
		states = append(states, engine.PlayerState{
			Seat:   p.Seat,
			Name:   p.DisplayName,
			Role:   p.Role,
			IsBot:  p.IsBot,
			Alive:  p.Alive,
			Tokens: p.Tokens,
			Health: p.Health,
			Score:  p.Score,
		})
	}
	return engine.NewLedger(states)
}

func (s *RoundService) persistLedger(ctx context.Context, gameID string, l *engine.Ledger) error {
	for _, p := range l.All() {
		if err := s.gameRepo.UpdateLedger(ctx, gameID, p.Seat, p.Tokens, p.Health, p.Score, p.Alive); err != nil {
			return fmt.Errorf("update ledger seat %d: %w", p.Seat, err)
		}
	}
	return nil
}

// advancePhase moves the game to the next phase in its cycle, bumping the
// round on wrap, then clears per-phase cache state and re-arms the timer.
func (s *RoundService) advancePhase(ctx context.Context, game *model.Game) error {
	gt := engine.GameType(game.GameType)
	next, wrapped, err := engine.NextPhase(gt, engine.Phase(game.Phase))
	if err != nil {
		return err
	}
	round := game.Round
	if wrapped {
		round++
	}

	if err := s.gameRepo.SetPhase(ctx, game.ID, round, string(next), false); err != nil {
		return fmt.Errorf("set phase: %w", err)
	}
	if err := s.cache.ClearPhaseData(ctx, game.ID, allSeats(game.Players)); err != nil {
		return fmt.Errorf("clear phase data: %w", err)
	}

	deadline := time.Now().Add(settingsFor(game).phaseDuration())
	if err := s.cache.SetTimer(ctx, game.ID, deadline); err != nil {
		return fmt.Errorf("set timer: %w", err)
	}

	log.Info().Str("gameId", game.ID).Int("round", round).
		Str("phase", string(next)).Time("deadline", deadline).
		Msg("Advanced to next phase")
	s.broadcaster.BroadcastGameEvent(game.ID, "phase_changed", map[string]any{
		"round":    round,
		"phase":    string(next),
		"deadline": deadline.Format(time.RFC3339),
	})
	return nil
}

// finishGame ends the game and tears down its cache state.
func (s *RoundService) finishGame(ctx context.Context, game *model.Game, winner, reason string) error {
	if err := s.gameRepo.SetFinished(ctx, game.ID, winner); err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	if err := s.cache.DeleteGameData(ctx, game.ID, allSeats(game.Players)); err != nil {
		log.Warn().Err(err).Str("gameId", game.ID).Msg("Failed to delete cache data at game end")
	}

	metrics.ActiveGames.Dec()
	log.Info().Str("gameId", game.ID).Str("winner", winner).
		Str("reason", reason).Msg("Game ended")
	s.broadcaster.BroadcastGameEvent(game.ID, "game_ended", map[string]any{
		"winner": winner,
		"reason": reason,
	})
	return nil
}

func allSeats(players []model.Player) []int {
	seats := make([]int, 0, len(players))
	for _, p := range players {
		seats = append(seats, p.Seat)
	}
	return seats
}

func alivePlayers(players []model.Player) []model.Player {
	var out []model.Player
	for _, p := range players {
		if p.Alive {
			out = append(out, p)
		}
	}
	return out
}

func seatNames(players []model.Player) map[int]string {
	names := make(map[int]string, len(players))
	for _, p := range players {
		names[p.Seat] = p.DisplayName
	}
	return names
}

// winnerByScore picks the winner among a ledger's players: highest score,
// then highest tokens, then lowest seat.
func winnerByScore(l *engine.Ledger) string {
	var best *engine.PlayerState
	for _, p := range l.All() {
		p := p
		if best == nil {
			best = &p
			continue
		}
		if p.Score > best.Score ||
			(p.Score == best.Score && p.Tokens > best.Tokens) ||
			(p.Score == best.Score && p.Tokens == best.Tokens && p.Seat < best.Seat) {
			best = &p
		}
	}
	if best == nil {
		return ""
	}
	return best.Name
}

// winnerByTokens picks the winner by token balance, for the river game
// where tokens are the prize.
func winnerByTokens(l *engine.Ledger) string {
	var best *engine.PlayerState
	for _, p := range l.All() {
		p := p
		if best == nil || p.Tokens > best.Tokens ||
			(p.Tokens == best.Tokens && p.Seat < best.Seat) {
			best = &p
		}
	}
	if best == nil {
		return ""
	}
	return best.Name
}

func toEngineRanking(entries []model.RankingEntry) []engine.RankingEntry {
	out := make([]engine.RankingEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, engine.RankingEntry{
			Seat:         e.Seat,
			Rank:         e.Rank,
			EffectiveBid: e.EffectiveBid,
			TieGroup:     e.TieGroup,
			Submitted:    e.Submitted,
		})
	}
	return out
}

// classifyInventory splits a seat's available items into attack and
// protection names for the bot synthesizer, and reports the river
// utility items.
func classifyInventory(items []model.InventoryItem) (attack, protect []string, hasTalisman, hasLifeline bool) {
	for _, it := range items {
		if it.Quantity <= 0 || !it.Available {
			continue
		}
		switch it.Item {
		case itemTalisman:
			hasTalisman = true
		case itemLifeline:
			hasLifeline = true
		default:
			cat, ok := engine.Catalog[it.Item]
			if !ok {
				continue
			}
			if cat.IsAttack() {
				attack = append(attack, it.Item)
			} else if len(cat.Blocks) > 0 {
				protect = append(protect, it.Item)
			}
		}
	}
	return attack, protect, hasTalisman, hasLifeline
}

// River utility items live outside the shop catalog; they are granted by
// game settings or earlier adventure steps.
const (
	itemTalisman = "Talisman"
	itemLifeline = "Lifeline"
)
