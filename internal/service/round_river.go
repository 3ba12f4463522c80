package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/clemgrim/veillee/internal/bot"
	"github.com/clemgrim/veillee/internal/metrics"
	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/pkg/engine"
)

// ResolveRiverLevel resolves one river crossing level. talismanSeat pins
// which eligible talisman use applies when several players committed one;
// 0 lets the resolver pick the first eligible seat.
func (s *RoundService) ResolveRiverLevel(ctx context.Context, gameID string, talismanSeat int) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadActive(ctx, gameID, engine.PhaseCrossing)
	if err != nil {
		return err
	}
	return s.resolveRiverLevel(ctx, game, talismanSeat)
}

func (s *RoundService) resolveRiverLevel(ctx context.Context, game *model.Game, talismanSeat int) error {
	state, err := s.riverRepo.State(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("load river state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("game %s has no river state: %w", game.ID, ErrWrongPhase)
	}

	cfg := settingsFor(game)
	threshold := cfg.riverThreshold(state.Level)
	if threshold < 0 {
		return ErrRiverFinished
	}

	if err := s.markStep(ctx, game, "crossing"); err != nil {
		return err
	}
	if err := s.gameRepo.SetPhaseLock(ctx, game.ID, true); err != nil {
		return fmt.Errorf("lock phase: %w", err)
	}

	var inSeats []model.RiverSeat
	var outSeats []engine.SafeExit
	maxExit := 0
	for _, rs := range state.Seats {
		switch rs.Status {
		case "in":
			inSeats = append(inSeats, rs)
		case "out":
			outSeats = append(outSeats, engine.SafeExit{Seat: rs.Seat, ExitOrder: rs.ExitOrder})
			if rs.ExitOrder > maxExit {
				maxExit = rs.ExitOrder
			}
		}
	}

	tokensBySeat := make(map[int]int, len(game.Players))
	botBySeat := make(map[int]bool, len(game.Players))
	for _, p := range game.Players {
		tokensBySeat[p.Seat] = p.Tokens
		botBySeat[p.Seat] = p.IsBot
	}

	raw, err := s.cache.GetAllSubmissions(ctx, game.ID, "crossing", riverSeatNumbers(inSeats))
	if err != nil {
		return fmt.Errorf("collect crossing submissions: %w", err)
	}
	profile := bot.ProfileFromSettings(game.Settings)

	players := make([]engine.CrossingPlayer, 0, len(inSeats))
	var subs []model.Submission
	for _, rs := range inSeats {
		items, err := s.roundRepo.Inventory(ctx, game.ID, rs.Seat)
		if err != nil {
			return fmt.Errorf("inventory seat %d: %w", rs.Seat, err)
		}
		_, _, hasTalisman, hasLifeline := classifyInventory(items)

		payload, has := raw[rs.Seat]
		var cp crossingPayload
		if has {
			if err := json.Unmarshal(payload, &cp); err != nil {
				has = false
			}
		}
		if !has && botBySeat[rs.Seat] {
			choice := bot.Crossing(profile, tokensBySeat[rs.Seat], hasTalisman, hasLifeline)
			cp = crossingPayload{
				Continue:    choice.Continue,
				Stake:       choice.Stake,
				UseTalisman: choice.UseTalisman,
				UseLifeline: choice.UseLifeline,
			}
			payload, _ = json.Marshal(cp)
			has = true
		}
		// A seat with no submission at the deadline retreats.

		// Over-staking floors to the balance; a stake is spent tokens,
		// never debt.
		effectiveStake := cp.Stake
		if effectiveStake > tokensBySeat[rs.Seat] {
			effectiveStake = tokensBySeat[rs.Seat]
		}

		players = append(players, engine.CrossingPlayer{
			Seat:        rs.Seat,
			Stake:       effectiveStake,
			Continue:    cp.Continue,
			UseTalisman: cp.UseTalisman,
			HasTalisman: hasTalisman,
			UseLifeline: cp.UseLifeline,
			HasLifeline: hasLifeline,
		})
		if has {
			eff, _ := json.Marshal(crossingPayload{
				Continue:    cp.Continue,
				Stake:       effectiveStake,
				UseTalisman: cp.UseTalisman && hasTalisman,
				UseLifeline: cp.UseLifeline && hasLifeline,
			})
			subs = append(subs, model.Submission{
				GameID:    game.ID,
				Round:     game.Round,
				Seat:      rs.Seat,
				Category:  "crossing",
				Requested: payload,
				Effective: eff,
			})
		}
	}

	res := engine.ResolveCrossing(engine.CrossingInput{
		Level:        state.Level,
		Threshold:    threshold,
		Pot:          state.Pot,
		Players:      players,
		SafelyOut:    outSeats,
		TalismanSeat: talismanSeat,
	})

	ledger := ledgerFor(game.Players)
	for _, p := range players {
		if p.Continue && p.Stake > 0 {
			if err := ledger.Debit(p.Seat, p.Stake); err != nil {
				s.emitMaster(ctx, game, fmt.Sprintf("Stake debit failed for seat %d: %v", p.Seat, err))
				return fmt.Errorf("debit stake: %w", err)
			}
		}
	}
	for seat, payout := range res.Payouts {
		if err := ledger.Credit(seat, payout); err != nil {
			return fmt.Errorf("credit payout: %w", err)
		}
	}
	if res.TalismanSeat != 0 {
		if err := s.roundRepo.ConsumeInventory(ctx, game.ID, res.TalismanSeat, itemTalisman); err != nil {
			return fmt.Errorf("consume talisman: %w", err)
		}
	}
	for _, seat := range res.Saved {
		if err := s.roundRepo.ConsumeInventory(ctx, game.ID, seat, itemLifeline); err != nil {
			return fmt.Errorf("consume lifeline: %w", err)
		}
	}

	if err := s.roundRepo.SaveSubmissions(ctx, subs); err != nil {
		return fmt.Errorf("save crossing submissions: %w", err)
	}

	validated := make(map[int]int, len(inSeats))
	for _, rs := range inSeats {
		validated[rs.Seat] = rs.ValidatedLevels
	}

	cycleOver := res.Outcome == engine.CrossingFail
	lastLevel := state.Level >= len(cfg.RiverLevels)

	switch res.Outcome {
	case engine.CrossingSuccess:
		for _, seat := range res.Advanced {
			seatState := model.RiverSeat{
				GameID:          game.ID,
				Seat:            seat,
				Status:          "in",
				ValidatedLevels: validated[seat] + 1,
			}
			if lastLevel {
				seatState.Status = "out"
				maxExit++
				seatState.ExitOrder = maxExit
			}
			if err := s.riverRepo.UpdateSeat(ctx, seatState); err != nil {
				return fmt.Errorf("update river seat %d: %w", seat, err)
			}
		}
		for _, seat := range res.Retreated {
			maxExit++
			if err := s.riverRepo.UpdateSeat(ctx, model.RiverSeat{
				GameID:          game.ID,
				Seat:            seat,
				Status:          "out",
				ValidatedLevels: validated[seat],
				ExitOrder:       maxExit,
			}); err != nil {
				return fmt.Errorf("update river seat %d: %w", seat, err)
			}
		}
		if lastLevel {
			// Completing the final level pays the pot out evenly to the
			// players who crossed; the remainder goes to the lowest seat.
			if len(res.Advanced) > 0 {
				share := res.NewPot / len(res.Advanced)
				for _, seat := range res.Advanced {
					if err := ledger.Credit(seat, share); err != nil {
						return fmt.Errorf("credit crossing payout: %w", err)
					}
				}
				if rem := res.NewPot - share*len(res.Advanced); rem > 0 {
					if err := ledger.Credit(res.Advanced[0], rem); err != nil {
						return fmt.Errorf("credit crossing remainder: %w", err)
					}
				}
			}
			if err := s.riverRepo.SetLevel(ctx, game.ID, state.Level, 0); err != nil {
				return fmt.Errorf("set river level: %w", err)
			}
			cycleOver = true
		} else {
			if err := s.riverRepo.SetLevel(ctx, game.ID, state.Level+1, res.NewPot); err != nil {
				return fmt.Errorf("set river level: %w", err)
			}
		}
	case engine.CrossingFail:
		for _, seat := range res.Retreated {
			maxExit++
			if err := s.riverRepo.UpdateSeat(ctx, model.RiverSeat{
				GameID:          game.ID,
				Seat:            seat,
				Status:          "out",
				ValidatedLevels: validated[seat],
				ExitOrder:       maxExit,
			}); err != nil {
				return fmt.Errorf("update river seat %d: %w", seat, err)
			}
		}
		for _, seat := range res.Eliminated {
			if err := s.riverRepo.UpdateSeat(ctx, model.RiverSeat{
				GameID:          game.ID,
				Seat:            seat,
				Status:          "eliminated",
				ValidatedLevels: validated[seat],
			}); err != nil {
				return fmt.Errorf("update river seat %d: %w", seat, err)
			}
		}
		for _, seat := range res.Saved {
			if err := s.riverRepo.UpdateSeat(ctx, model.RiverSeat{
				GameID:          game.ID,
				Seat:            seat,
				Status:          "out",
				ValidatedLevels: validated[seat],
				LifelineUsed:    true,
			}); err != nil {
				return fmt.Errorf("update river seat %d: %w", seat, err)
			}
		}
		if err := s.riverRepo.SetLevel(ctx, game.ID, state.Level, 0); err != nil {
			return fmt.Errorf("set river level: %w", err)
		}
	}

	if err := s.persistLedger(ctx, game.ID, ledger); err != nil {
		return err
	}

	names := seatNames(game.Players)
	public, master := crossingNarrative(state.Level, res, players, names)
	s.emit(ctx, game, public, master)

	metrics.ResolutionsTotal.WithLabelValues(game.GameType, "crossing").Inc()
	s.broadcaster.BroadcastGameEvent(game.ID, "river_resolved", map[string]any{
		"round":      game.Round,
		"level":      state.Level,
		"outcome":    string(res.Outcome),
		"advanced":   res.Advanced,
		"retreated":  res.Retreated,
		"eliminated": res.Eliminated,
		"pot":        res.NewPot,
	})

	if cycleOver {
		return s.finishGame(ctx, game, winnerByTokens(ledger), "crossing ended")
	}
	return s.advancePhase(ctx, game)
}

func riverSeatNumbers(seats []model.RiverSeat) []int {
	out := make([]int, 0, len(seats))
	for _, rs := range seats {
		out = append(out, rs.Seat)
	}
	return out
}
