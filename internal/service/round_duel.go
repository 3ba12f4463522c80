package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/bot"
	"github.com/clemgrim/veillee/internal/metrics"
	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/pkg/engine"
)

// PairDuels creates the duel pairings for the game's current round if
// none exist yet: alive seats paired in seat order, the odd seat sits the
// round out. Pairings created in the configured final round carry the
// final flag.
func (s *RoundService) PairDuels(ctx context.Context, gameID string) ([]model.Duel, error) {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadActive(ctx, gameID, engine.PhaseDuel)
	if err != nil {
		return nil, err
	}
	return s.pairRoundDuels(ctx, game)
}

func (s *RoundService) pairRoundDuels(ctx context.Context, game *model.Game) ([]model.Duel, error) {
	existing, err := s.duelRepo.ListByGame(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("list duels: %w", err)
	}
	var current []model.Duel
	for _, d := range existing {
		if d.Round == game.Round {
			current = append(current, d)
		}
	}
	if len(current) > 0 {
		return current, nil
	}

	seats := aliveSeats(game.Players)
	sort.Ints(seats)
	final := game.Round >= settingsFor(game).MaxRounds

	var duels []model.Duel
	for i := 0; i+1 < len(seats); i += 2 {
		d, err := s.duelRepo.Create(ctx, uuid.NewString(), game.ID, game.Round, seats[i], seats[i+1], final)
		if err != nil {
			return nil, fmt.Errorf("create duel: %w", err)
		}
		duels = append(duels, *d)
	}
	if len(seats)%2 == 1 {
		bye := seats[len(seats)-1]
		s.emit(ctx, game,
			fmt.Sprintf("Seat %d sits out round %d.", bye, game.Round),
			fmt.Sprintf("Seat %d has no duel partner in round %d.", bye, game.Round))
	}

	log.Info().Str("gameId", game.ID).Int("round", game.Round).
		Int("duels", len(duels)).Bool("final", final).Msg("Duels paired")
	return duels, nil
}

// ResolveDuel resolves one duel. Both search decisions must be present
// (bot decisions are synthesized on the spot); a missing human decision
// is a rejected precondition, not a default.
func (s *RoundService) ResolveDuel(ctx context.Context, gameID, duelID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadActive(ctx, gameID, engine.PhaseDuel)
	if err != nil {
		return err
	}
	return s.resolveDuel(ctx, game, duelID, false)
}

// resolvePendingDuels is the timer-expiry path: every unresolved duel of
// the round resolves, with missing human decisions defaulting to
// no-search.
func (s *RoundService) resolvePendingDuels(ctx context.Context, game *model.Game) error {
	duels, err := s.duelRepo.ListByGame(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("list duels: %w", err)
	}
	for _, d := range duels {
		if d.Round != game.Round || d.ResolvedAt != nil {
			continue
		}
		if err := s.resolveDuel(ctx, game, d.ID, true); err != nil {
			return err
		}
		// resolveDuel may have finished the game on the final duel.
		g, err := s.gameRepo.FindByID(ctx, game.ID)
		if err != nil {
			return err
		}
		if g == nil || g.Status != "active" {
			return nil
		}
	}
	return nil
}

func (s *RoundService) resolveDuel(ctx context.Context, game *model.Game, duelID string, fillHumans bool) error {
	duel, err := s.duelRepo.FindByID(ctx, duelID)
	if err != nil {
		return err
	}
	if duel == nil || duel.GameID != game.ID {
		return ErrDuelNotFound
	}
	if duel.ResolvedAt != nil {
		return fmt.Errorf("duel %s: %w", duelID, ErrDuelResolved)
	}
	if duel.Round != game.Round {
		return fmt.Errorf("duel round %d, game round %d: %w", duel.Round, game.Round, ErrWrongPhase)
	}

	botBySeat := make(map[int]bool, len(game.Players))
	for _, p := range game.Players {
		botBySeat[p.Seat] = p.IsBot
	}
	profile := bot.ProfileFromSettings(game.Settings)

	decisionA, err := s.ensureDecision(ctx, game, duel, duel.SeatA, duel.DecisionA, botBySeat[duel.SeatA], fillHumans, profile)
	if err != nil {
		return err
	}
	decisionB, err := s.ensureDecision(ctx, game, duel, duel.SeatB, duel.DecisionB, botBySeat[duel.SeatB], fillHumans, profile)
	if err != nil {
		return err
	}

	if err := s.markStep(ctx, game, "duel:"+duelID); err != nil {
		return err
	}

	a, subA := s.duelist(ctx, game, duel.SeatA, decisionA)
	b, subB := s.duelist(ctx, game, duel.SeatB, decisionB)

	out := engine.ResolveDuel(a, b)

	if err := s.duelRepo.Resolve(ctx, duelID, out.DeltaA, out.DeltaB, out.ConfiscatedA, out.ConfiscatedB); err != nil {
		return fmt.Errorf("resolve duel: %w", err)
	}

	ledger := ledgerFor(game.Players)
	if err := ledger.AddScore(duel.SeatA, out.DeltaA); err != nil {
		return fmt.Errorf("score seat %d: %w", duel.SeatA, err)
	}
	if err := ledger.AddScore(duel.SeatB, out.DeltaB); err != nil {
		return fmt.Errorf("score seat %d: %w", duel.SeatB, err)
	}
	if err := s.persistLedger(ctx, game.ID, ledger); err != nil {
		return err
	}

	subA.Effective, _ = json.Marshal(duelPayload{Searches: a.Searches, Declared: a.Declared, Actual: out.NewContrabandA})
	subB.Effective, _ = json.Marshal(duelPayload{Searches: b.Searches, Declared: b.Declared, Actual: out.NewContrabandB})
	if err := s.roundRepo.SaveSubmissions(ctx, []model.Submission{subA, subB}); err != nil {
		return fmt.Errorf("save duel submissions: %w", err)
	}

	names := seatNames(game.Players)
	public, master := duelNarrative(a, b, out, names)
	s.emit(ctx, game, public, master)

	metrics.ResolutionsTotal.WithLabelValues(game.GameType, "duel").Inc()
	s.broadcaster.BroadcastGameEvent(game.ID, "duel_resolved", map[string]any{
		"duel_id":       duelID,
		"round":         game.Round,
		"delta_a":       out.DeltaA,
		"delta_b":       out.DeltaB,
		"confiscated_a": out.ConfiscatedA,
		"confiscated_b": out.ConfiscatedB,
		"final":         duel.Final,
	})

	if duel.Final {
		// The final duel commits the running scores: they become the
		// game's result, exactly once.
		return s.finishGame(ctx, game, winnerByScore(ledger), "final duel")
	}

	done, err := s.roundDuelsResolved(ctx, game, duelID)
	if err != nil {
		return err
	}
	if done {
		if err := s.advancePhase(ctx, game); err != nil {
			return err
		}
		next, err := s.gameRepo.FindByID(ctx, game.ID)
		if err != nil || next == nil || next.Status != "active" {
			return err
		}
		if _, err := s.pairRoundDuels(ctx, next); err != nil {
			return err
		}
	}
	return nil
}

// ensureDecision returns the seat's search decision, synthesizing one for
// bots and, on the timer path, defaulting missing human decisions to
// no-search.
func (s *RoundService) ensureDecision(ctx context.Context, game *model.Game, duel *model.Duel, seat int, recorded *bool, isBot, fillHumans bool, profile bot.Profile) (bool, error) {
	if recorded != nil {
		return *recorded, nil
	}
	if isBot {
		choice := bot.Duel(profile)
		payload, _ := json.Marshal(duelPayload{Searches: choice.Searches, Declared: choice.Declared, Actual: choice.Actual})
		if err := s.cache.SetSubmission(ctx, game.ID, seat, "duel", payload); err != nil {
			return false, fmt.Errorf("cache bot duel choice: %w", err)
		}
		if err := s.duelRepo.SetDecision(ctx, duel.ID, seat, choice.Searches); err != nil {
			return false, fmt.Errorf("record bot decision: %w", err)
		}
		return choice.Searches, nil
	}
	if !fillHumans {
		return false, fmt.Errorf("seat %d: %w", seat, ErrDuelNotReady)
	}
	if err := s.duelRepo.SetDecision(ctx, duel.ID, seat, false); err != nil {
		return false, fmt.Errorf("default decision: %w", err)
	}
	return false, nil
}

// duelist builds one side of the duel from the cached submission, with
// the legal allowance as the default cargo, and returns the locked
// submission row alongside.
func (s *RoundService) duelist(ctx context.Context, game *model.Game, seat int, searches bool) (engine.Duelist, model.Submission) {
	d := engine.Duelist{
		Seat:     seat,
		Searches: searches,
		Declared: engine.LegalContraband,
		Actual:   engine.LegalContraband,
	}

	raw, err := s.cache.GetSubmission(ctx, game.ID, seat, "duel")
	if err == nil && raw != nil {
		var p duelPayload
		if json.Unmarshal(raw, &p) == nil {
			d.Declared = p.Declared
			d.Actual = p.Actual
			if d.Actual > engine.ContrabandCap {
				d.Actual = engine.ContrabandCap
			}
			if d.Actual < 0 {
				d.Actual = 0
			}
		}
	}

	requested, _ := json.Marshal(duelPayload{Searches: d.Searches, Declared: d.Declared, Actual: d.Actual})
	return d, model.Submission{
		GameID:    game.ID,
		Round:     game.Round,
		Seat:      seat,
		Category:  "duel",
		Requested: requested,
	}
}

func (s *RoundService) roundDuelsResolved(ctx context.Context, game *model.Game, justResolved string) (bool, error) {
	duels, err := s.duelRepo.ListByGame(ctx, game.ID)
	if err != nil {
		return false, fmt.Errorf("list duels: %w", err)
	}
	for _, d := range duels {
		if d.Round != game.Round || d.ID == justResolved {
			continue
		}
		if d.ResolvedAt == nil {
			return false, nil
		}
	}
	return true, nil
}
