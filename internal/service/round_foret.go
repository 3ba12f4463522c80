package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/bot"
	"github.com/clemgrim/veillee/internal/metrics"
	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/pkg/engine"
)

// CloseBets resolves the stakes phase: ranks all bids with the
// alternating tie-break, debits effective bids, persists the ranking for
// reuse by the positions and shop resolvers of the same round.
func (s *RoundService) CloseBets(ctx context.Context, gameID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadActive(ctx, gameID, engine.PhaseStakes)
	if err != nil {
		return err
	}
	return s.closeBets(ctx, game)
}

func (s *RoundService) closeBets(ctx context.Context, game *model.Game) error {
	if err := s.markStep(ctx, game, "bets"); err != nil {
		return err
	}
	if err := s.gameRepo.SetPhaseLock(ctx, game.ID, true); err != nil {
		return fmt.Errorf("lock phase: %w", err)
	}

	active := alivePlayers(game.Players)
	raw, err := s.cache.GetAllSubmissions(ctx, game.ID, "bet", allSeats(active))
	if err != nil {
		return fmt.Errorf("collect bets: %w", err)
	}
	profile := bot.ProfileFromSettings(game.Settings)

	bids := make([]engine.BidInput, 0, len(active))
	var subs []model.Submission
	for _, p := range active {
		payload, has := raw[p.Seat]
		amount := 0
		submitted := false
		if has {
			var bp betPayload
			if err := json.Unmarshal(payload, &bp); err == nil {
				amount = bp.Amount
				submitted = true
			}
		} else if p.IsBot {
			amount = bot.Bet(profile, p.Tokens)
			submitted = true
			payload, _ = json.Marshal(betPayload{Amount: amount})
		}

		bids = append(bids, engine.BidInput{
			Seat:      p.Seat,
			Requested: amount,
			Balance:   p.Tokens,
			Submitted: submitted,
		})
		if submitted {
			subs = append(subs, model.Submission{
				GameID:    game.ID,
				Round:     game.Round,
				Seat:      p.Seat,
				Category:  "bet",
				Requested: payload,
			})
		}
	}

	ranking := engine.RankBids(bids)

	ledger := ledgerFor(game.Players)
	effective := make(map[int]int, len(ranking))
	for _, e := range ranking {
		effective[e.Seat] = e.EffectiveBid
		if e.EffectiveBid > 0 {
			if err := ledger.Debit(e.Seat, e.EffectiveBid); err != nil {
				s.emitMaster(ctx, game, fmt.Sprintf("Bet debit failed for seat %d: %v", e.Seat, err))
				return fmt.Errorf("debit effective bid: %w", err)
			}
		}
	}
	for i := range subs {
		subs[i].Effective, _ = json.Marshal(betPayload{Amount: effective[subs[i].Seat]})
	}

	if err := s.roundRepo.SaveSubmissions(ctx, subs); err != nil {
		return fmt.Errorf("save bet submissions: %w", err)
	}
	entries := make([]model.RankingEntry, 0, len(ranking))
	for _, e := range ranking {
		entries = append(entries, model.RankingEntry{
			GameID:       game.ID,
			Round:        game.Round,
			Seat:         e.Seat,
			Rank:         e.Rank,
			EffectiveBid: e.EffectiveBid,
			TieGroup:     e.TieGroup,
			Submitted:    e.Submitted,
		})
	}
	if err := s.roundRepo.SaveRanking(ctx, entries); err != nil {
		return fmt.Errorf("save ranking: %w", err)
	}
	if err := s.persistLedger(ctx, game.ID, ledger); err != nil {
		return err
	}

	names := seatNames(game.Players)
	public, master := betsNarrative(ranking, names)
	s.emit(ctx, game, public, master)

	metrics.ResolutionsTotal.WithLabelValues(game.GameType, "bets").Inc()
	s.broadcaster.BroadcastGameEvent(game.ID, "bets_closed", map[string]any{
		"round":   game.Round,
		"ranking": ranking,
	})
	return s.advancePhase(ctx, game)
}

// PublishPositions resolves the positions phase: wrap-around slot
// allocation in priority order, phase locked before positions persist.
func (s *RoundService) PublishPositions(ctx context.Context, gameID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadActive(ctx, gameID, engine.PhasePositions)
	if err != nil {
		return err
	}
	return s.publishPositions(ctx, game)
}

func (s *RoundService) publishPositions(ctx context.Context, game *model.Game) error {
	if err := s.markStep(ctx, game, "positions"); err != nil {
		return err
	}
	if err := s.gameRepo.SetPhaseLock(ctx, game.ID, true); err != nil {
		return fmt.Errorf("lock phase: %w", err)
	}

	dbRanking, err := s.roundRepo.RankingForRound(ctx, game.ID, game.Round)
	if err != nil {
		return fmt.Errorf("load ranking: %w", err)
	}
	if len(dbRanking) == 0 {
		return fmt.Errorf("round %d has no ranking: %w", game.Round, ErrWrongPhase)
	}
	ranking := toEngineRanking(dbRanking)
	n := len(ranking)

	raw, err := s.cache.GetAllSubmissions(ctx, game.ID, "action", rankedSeats(ranking))
	if err != nil {
		return fmt.Errorf("collect actions: %w", err)
	}
	profile := bot.ProfileFromSettings(game.Settings)
	botBySeat := make(map[int]bool, len(game.Players))
	for _, p := range game.Players {
		botBySeat[p.Seat] = p.IsBot
	}

	intents := make(map[int]engine.PositionIntent, n)
	var subs []model.Submission
	for _, e := range ranking {
		payload, has := raw[e.Seat]
		var ap actionPayload
		if has {
			if err := json.Unmarshal(payload, &ap); err != nil {
				has = false
			}
		}
		if !has && botBySeat[e.Seat] {
			items, err := s.roundRepo.Inventory(ctx, game.ID, e.Seat)
			if err != nil {
				return fmt.Errorf("inventory seat %d: %w", e.Seat, err)
			}
			attack, protect, _, _ := classifyInventory(items)
			choice := bot.Position(profile, n, attack, protect)
			ap = actionPayload{
				WantSlot:    choice.WantSlot,
				TargetSlot:  choice.TargetSlot,
				AttackItem:  choice.AttackItem,
				ProtectItem: choice.ProtectItem,
			}
			payload, _ = json.Marshal(ap)
			has = true
		}

		intents[e.Seat] = engine.PositionIntent{
			Seat:        e.Seat,
			WantSlot:    ap.WantSlot,
			TargetSlot:  ap.TargetSlot,
			AttackItem:  ap.AttackItem,
			ProtectItem: ap.ProtectItem,
		}
		if has {
			subs = append(subs, model.Submission{
				GameID:    game.ID,
				Round:     game.Round,
				Seat:      e.Seat,
				Category:  "action",
				Requested: payload,
			})
		}
	}

	finals, err := engine.AllocatePositions(ranking, intents)
	if err != nil {
		// A broken permutation is a defect, not a user error. Log loudly
		// and halt this resolution; the marker stays but with zero
		// position rows behind it, so markStep lets a retry through.
		log.Error().Err(err).Str("gameId", game.ID).Int("round", game.Round).
			Msg("Position allocation integrity failure")
		s.emitMaster(ctx, game, fmt.Sprintf("Position allocation failed: %v", err))
		return err
	}

	for i := range subs {
		for _, f := range finals {
			if f.Seat == subs[i].Seat {
				subs[i].Effective, _ = json.Marshal(f)
				break
			}
		}
	}
	if err := s.roundRepo.SaveSubmissions(ctx, subs); err != nil {
		return fmt.Errorf("save action submissions: %w", err)
	}

	positions := make([]model.Position, 0, len(finals))
	for _, f := range finals {
		positions = append(positions, model.Position{
			GameID:      game.ID,
			Round:       game.Round,
			Seat:        f.Seat,
			Slot:        f.Slot,
			TargetSlot:  f.TargetSlot,
			AttackItem:  f.AttackItem,
			ProtectItem: f.ProtectItem,
		})
	}
	if err := s.roundRepo.SavePositions(ctx, positions); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}

	names := seatNames(game.Players)
	public, master := positionsNarrative(finals, names)
	s.emit(ctx, game, public, master)

	metrics.ResolutionsTotal.WithLabelValues(game.GameType, "positions").Inc()
	s.broadcaster.BroadcastGameEvent(game.ID, "positions_published", map[string]any{
		"round":     game.Round,
		"positions": publicSlots(finals),
	})
	return s.advancePhase(ctx, game)
}

// ResolveCombat resolves the combat phase from the round's persisted
// positions. Combat takes no submissions; every attack was committed at
// position lock.
func (s *RoundService) ResolveCombat(ctx context.Context, gameID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadActive(ctx, gameID, engine.PhaseCombat)
	if err != nil {
		return err
	}
	return s.resolveCombat(ctx, game)
}

func (s *RoundService) resolveCombat(ctx context.Context, game *model.Game) error {
	if err := s.markStep(ctx, game, "combat"); err != nil {
		return err
	}
	if err := s.gameRepo.SetPhaseLock(ctx, game.ID, true); err != nil {
		return fmt.Errorf("lock phase: %w", err)
	}

	positions, err := s.roundRepo.PositionsForRound(ctx, game.ID, game.Round)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	healthBySeat := make(map[int]int, len(game.Players))
	for _, p := range game.Players {
		healthBySeat[p.Seat] = p.Health
	}

	combatants := make([]engine.Combatant, 0, len(positions))
	for _, pos := range positions {
		stock := 0
		if pos.AttackItem != "" {
			items, err := s.roundRepo.Inventory(ctx, game.ID, pos.Seat)
			if err != nil {
				return fmt.Errorf("inventory seat %d: %w", pos.Seat, err)
			}
			for _, it := range items {
				if it.Item == pos.AttackItem && it.Available {
					stock = it.Quantity
					break
				}
			}
		}
		combatants = append(combatants, engine.Combatant{
			Seat:        pos.Seat,
			Slot:        pos.Slot,
			TargetSlot:  pos.TargetSlot,
			AttackItem:  pos.AttackItem,
			ProtectItem: pos.ProtectItem,
			Health:      healthBySeat[pos.Seat],
			AttackStock: stock,
		})
	}

	res := engine.ResolveCombat(combatants)

	ledger := ledgerFor(game.Players)
	for seat, delta := range res.HealthDeltas {
		if _, err := ledger.Damage(seat, -delta); err != nil {
			return fmt.Errorf("apply damage: %w", err)
		}
	}
	for seat, item := range res.ItemsSpent {
		if err := s.roundRepo.ConsumeInventory(ctx, game.ID, seat, item); err != nil {
			return fmt.Errorf("consume %s for seat %d: %w", item, seat, err)
		}
	}
	if err := s.persistLedger(ctx, game.ID, ledger); err != nil {
		return err
	}

	names := seatNames(game.Players)
	public, master := combatNarrative(res, names)
	s.emit(ctx, game, public, master)

	metrics.ResolutionsTotal.WithLabelValues(game.GameType, "combat").Inc()
	s.broadcaster.BroadcastGameEvent(game.ID, "combat_resolved", map[string]any{
		"round":      game.Round,
		"attacks":    res.Attacks,
		"eliminated": res.Eliminated,
	})

	if len(ledger.Active()) <= 1 {
		return s.finishGame(ctx, game, winnerByScore(ledger), "eliminations")
	}
	return s.advancePhase(ctx, game)
}

// ResolveShop resolves the shop phase: scarce stock allocated strictly in
// the round's priority order, every request recorded with its outcome.
func (s *RoundService) ResolveShop(ctx context.Context, gameID string) error {
	mu := s.gameLock(gameID)
	mu.Lock()
	defer mu.Unlock()

	game, err := s.loadActive(ctx, gameID, engine.PhaseShop)
	if err != nil {
		return err
	}
	return s.resolveShop(ctx, game)
}

func (s *RoundService) resolveShop(ctx context.Context, game *model.Game) error {
	if err := s.markStep(ctx, game, "shop"); err != nil {
		return err
	}
	if err := s.gameRepo.SetPhaseLock(ctx, game.ID, true); err != nil {
		return fmt.Errorf("lock phase: %w", err)
	}

	dbRanking, err := s.roundRepo.RankingForRound(ctx, game.ID, game.Round)
	if err != nil {
		return fmt.Errorf("load ranking: %w", err)
	}
	if len(dbRanking) == 0 {
		return fmt.Errorf("round %d has no ranking: %w", game.Round, ErrWrongPhase)
	}
	ranking := toEngineRanking(dbRanking)

	cfg := settingsFor(game)
	offer := cfg.offer()
	prices := cfg.prices()
	profile := bot.ProfileFromSettings(game.Settings)

	balances := make(map[int]int, len(game.Players))
	roles := make(map[int]string, len(game.Players))
	botBySeat := make(map[int]bool, len(game.Players))
	for _, p := range game.Players {
		balances[p.Seat] = p.Tokens
		roles[p.Seat] = p.Role
		botBySeat[p.Seat] = p.IsBot
	}

	raw, err := s.cache.GetAllSubmissions(ctx, game.ID, "shop", rankedSeats(ranking))
	if err != nil {
		return fmt.Errorf("collect shop requests: %w", err)
	}

	requests := make(map[int]engine.ShopRequest, len(ranking))
	var subs []model.Submission
	for _, e := range ranking {
		payload, has := raw[e.Seat]
		var sp shopPayload
		if has {
			if err := json.Unmarshal(payload, &sp); err != nil {
				has = false
			}
		}
		if !has && botBySeat[e.Seat] {
			sp.Item = bot.Shop(profile, offer, prices, roles[e.Seat], balances[e.Seat])
			payload, _ = json.Marshal(sp)
			has = true
		}
		if !has {
			continue
		}
		requests[e.Seat] = engine.ShopRequest{Seat: e.Seat, Item: sp.Item}
		subs = append(subs, model.Submission{
			GameID:    game.ID,
			Round:     game.Round,
			Seat:      e.Seat,
			Category:  "shop",
			Requested: payload,
		})
	}

	res := engine.ResolveShop(ranking, requests, offer, prices, balances, roles)

	ledger := ledgerFor(game.Players)
	for seat, price := range res.Debits {
		if err := ledger.Debit(seat, price); err != nil {
			s.emitMaster(ctx, game, fmt.Sprintf("Shop debit failed for seat %d: %v", seat, err))
			return fmt.Errorf("shop debit: %w", err)
		}
	}
	for seat, item := range res.Inventory {
		if err := s.roundRepo.AddInventory(ctx, game.ID, seat, item, 1); err != nil {
			return fmt.Errorf("grant %s to seat %d: %w", item, seat, err)
		}
		if bonus := engine.Catalog[item].ScoreBonus; bonus > 0 {
			if err := ledger.AddScore(seat, bonus); err != nil {
				return fmt.Errorf("score bonus: %w", err)
			}
		}
	}
	if err := s.persistLedger(ctx, game.ID, ledger); err != nil {
		return err
	}

	purchases := make([]model.Purchase, 0, len(res.Records))
	for _, rec := range res.Records {
		purchases = append(purchases, model.Purchase{
			GameID:   game.ID,
			Round:    game.Round,
			Seat:     rec.Seat,
			Item:     rec.Item,
			Approved: rec.Approved,
			Price:    rec.Price,
			Reason:   rec.Reason,
		})
	}
	if err := s.roundRepo.SavePurchases(ctx, purchases); err != nil {
		return fmt.Errorf("save purchases: %w", err)
	}
	for i := range subs {
		for _, rec := range res.Records {
			if rec.Seat == subs[i].Seat {
				subs[i].Effective, _ = json.Marshal(rec)
				break
			}
		}
	}
	if err := s.roundRepo.SaveSubmissions(ctx, subs); err != nil {
		return fmt.Errorf("save shop submissions: %w", err)
	}

	names := seatNames(game.Players)
	public, master := shopNarrative(res, names)
	s.emit(ctx, game, public, master)

	metrics.ResolutionsTotal.WithLabelValues(game.GameType, "shop").Inc()
	s.broadcaster.BroadcastGameEvent(game.ID, "shop_resolved", map[string]any{
		"round":     game.Round,
		"purchases": res.Records,
	})

	if game.Round >= cfg.MaxRounds {
		return s.finishGame(ctx, game, winnerByScore(ledger), "max rounds")
	}
	return s.advancePhase(ctx, game)
}

func rankedSeats(ranking []engine.RankingEntry) []int {
	seats := make([]int, 0, len(ranking))
	for _, e := range ranking {
		seats = append(seats, e.Seat)
	}
	return seats
}

func publicSlots(finals []engine.FinalPosition) []map[string]int {
	out := make([]map[string]int, 0, len(finals))
	for _, f := range finals {
		out = append(out, map[string]int{"seat": f.Seat, "slot": f.Slot})
	}
	return out
}
