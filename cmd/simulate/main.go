// Command simulate runs bot-only Veillée games entirely in memory and
// reports per-seat outcomes. It exercises the same engine and bot
// synthesis the server uses, without Postgres or Redis, which makes it
// useful for tuning bot profiles and sanity-checking rule changes.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/bot"
	"github.com/clemgrim/veillee/pkg/engine"
)

type seatState struct {
	seat      int
	tokens    int
	health    int
	score     int
	alive     bool
	inventory map[string]int
}

type gameResult struct {
	Winner int         `json:"winner_seat"`
	Rounds int         `json:"rounds"`
	Scores map[int]int `json:"scores"`
	Tokens map[int]int `json:"tokens"`
	Alive  []int       `json:"alive_seats"`
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	var (
		gameType  string
		numGames  int
		players   int
		maxRounds int
		workers   int
		seed      int64
		jsonOut   bool
	)
	flag.StringVar(&gameType, "type", "foret", "Game type (foret, infection, lion, rivieres, sheriff)")
	flag.IntVar(&numGames, "n", 1, "Number of games to run")
	flag.IntVar(&players, "players", 4, "Seats per game")
	flag.IntVar(&maxRounds, "rounds", 10, "Max rounds before the game ends on points")
	flag.IntVar(&workers, "workers", 1, "Concurrency (parallel games)")
	flag.Int64Var(&seed, "seed", 0, "Deterministic seed (forces workers=1)")
	flag.BoolVar(&jsonOut, "json", false, "Output results as JSON")
	flag.Parse()

	if !engine.KnownGameType(engine.GameType(gameType)) {
		log.Fatal().Str("type", gameType).Msg("Unknown game type")
	}
	if players < 2 || players > 8 {
		log.Fatal().Int("players", players).Msg("Player count must be between 2 and 8")
	}
	if seed != 0 {
		// The seeded bot source is not safe for concurrent draws.
		workers = 1
		bot.SeedBotRng(seed)
		defer bot.ResetBotRng()
	}

	profile := bot.DefaultProfile()
	results := make([]*gameResult, numGames)
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for i := 0; i < numGames; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = runGame(engine.GameType(gameType), players, maxRounds, profile)
		}(i)
	}
	wg.Wait()

	if jsonOut {
		printJSON(results)
	} else {
		printSummary(results, gameType, players, numGames)
	}
}

func newSeats(players int) []*seatState {
	seats := make([]*seatState, players)
	for i := range seats {
		seats[i] = &seatState{
			seat:      i + 1,
			tokens:    100,
			health:    3,
			alive:     true,
			inventory: make(map[string]int),
		}
	}
	return seats
}

func aliveSeats(seats []*seatState) []*seatState {
	var out []*seatState
	for _, s := range seats {
		if s.alive {
			out = append(out, s)
		}
	}
	return out
}

func bySeat(seats []*seatState, seat int) *seatState {
	for _, s := range seats {
		if s.seat == seat {
			return s
		}
	}
	return nil
}

func runGame(gt engine.GameType, players, maxRounds int, profile bot.Profile) *gameResult {
	seats := newSeats(players)
	var rounds int

	switch gt {
	case engine.GameRivieres:
		rounds = runRiverCycle(seats, profile)
	case engine.GameSheriff:
		rounds = runDuelRounds(seats, maxRounds, profile)
	default:
		rounds = runCampRounds(seats, maxRounds, profile)
	}

	res := &gameResult{
		Winner: pickWinner(seats),
		Rounds: rounds,
		Scores: make(map[int]int),
		Tokens: make(map[int]int),
	}
	for _, s := range seats {
		res.Scores[s.seat] = s.score
		res.Tokens[s.seat] = s.tokens
		if s.alive {
			res.Alive = append(res.Alive, s.seat)
		}
	}
	return res
}

// runCampRounds plays the four-phase cycle (stakes, positions, combat,
// shop) used by the forest-style game types.
func runCampRounds(seats []*seatState, maxRounds int, profile bot.Profile) int {
	offer := engine.Offer{"Stone": 2, "Spear": 1, "Torch": 1, "Shield": 1, "Ditch": 1, "Totem": 1}
	prices := engine.StandardPrices()

	for round := 1; round <= maxRounds; round++ {
		alive := aliveSeats(seats)
		if len(alive) <= 1 {
			return round - 1
		}

		// Stakes
		var bids []engine.BidInput
		for _, s := range alive {
			bid := bot.Bet(profile, s.tokens)
			bids = append(bids, engine.BidInput{Seat: s.seat, Requested: bid, Balance: s.tokens, Submitted: true})
		}
		ranking := engine.RankBids(bids)
		for _, e := range ranking {
			bySeat(seats, e.Seat).tokens -= e.EffectiveBid
		}

		// Positions
		intents := make(map[int]engine.PositionIntent, len(alive))
		for _, s := range alive {
			choice := bot.Position(profile, len(alive), ownedAttack(s), ownedProtect(s))
			intents[s.seat] = engine.PositionIntent{
				Seat:        s.seat,
				WantSlot:    choice.WantSlot,
				TargetSlot:  choice.TargetSlot,
				AttackItem:  choice.AttackItem,
				ProtectItem: choice.ProtectItem,
			}
		}
		positions, err := engine.AllocatePositions(ranking, intents)
		if err != nil {
			log.Error().Err(err).Msg("Position allocation failed")
			return round
		}

		// Combat
		var combatants []engine.Combatant
		for _, p := range positions {
			s := bySeat(seats, p.Seat)
			combatants = append(combatants, engine.Combatant{
				Seat:        p.Seat,
				Slot:        p.Slot,
				TargetSlot:  p.TargetSlot,
				AttackItem:  p.AttackItem,
				ProtectItem: p.ProtectItem,
				Health:      s.health,
				AttackStock: s.inventory[p.AttackItem],
			})
		}
		combat := engine.ResolveCombat(combatants)
		for seat, item := range combat.ItemsSpent {
			bySeat(seats, seat).inventory[item]--
		}
		for seat, delta := range combat.HealthDeltas {
			bySeat(seats, seat).health += delta
		}
		for _, seat := range combat.Eliminated {
			bySeat(seats, seat).alive = false
		}

		// Shop
		requests := make(map[int]engine.ShopRequest)
		balances := make(map[int]int)
		for _, s := range aliveSeats(seats) {
			balances[s.seat] = s.tokens
			if item := bot.Shop(profile, offer, prices, "", s.tokens); item != "" {
				requests[s.seat] = engine.ShopRequest{Seat: s.seat, Item: item}
			}
		}
		shop := engine.ResolveShop(ranking, requests, offer, prices, balances, nil)
		for seat, spent := range shop.Debits {
			bySeat(seats, seat).tokens -= spent
		}
		for seat, item := range shop.Inventory {
			s := bySeat(seats, seat)
			s.inventory[item]++
			s.score += engine.Catalog[item].ScoreBonus
		}
	}
	return maxRounds
}

// runRiverCycle plays one crossing cycle: every level resolves until the
// party fails, everyone is out, or the last level is passed.
func runRiverCycle(seats []*seatState, profile bot.Profile) int {
	levels := []int{10, 20, 40, 60, 80}
	in := make(map[int]bool, len(seats))
	for _, s := range seats {
		in[s.seat] = true
	}
	var safelyOut []engine.SafeExit
	pot := 0

	for level := 1; level <= len(levels); level++ {
		var crossing []engine.CrossingPlayer
		for _, s := range seats {
			if !in[s.seat] {
				continue
			}
			c := bot.Crossing(profile, s.tokens, false, false)
			stake := c.Stake
			if stake > s.tokens {
				stake = s.tokens
			}
			crossing = append(crossing, engine.CrossingPlayer{
				Seat:     s.seat,
				Stake:    stake,
				Continue: c.Continue,
			})
		}
		if len(crossing) == 0 {
			return level - 1
		}

		result := engine.ResolveCrossing(engine.CrossingInput{
			Level:     level,
			Threshold: levels[level-1],
			Pot:       pot,
			Players:   crossing,
			SafelyOut: safelyOut,
		})

		for _, p := range crossing {
			if p.Continue {
				bySeat(seats, p.Seat).tokens -= p.Stake
			}
		}
		for _, seat := range result.Retreated {
			in[seat] = false
			safelyOut = append(safelyOut, engine.SafeExit{Seat: seat, ExitOrder: len(safelyOut) + 1})
		}
		for seat, payout := range result.Payouts {
			bySeat(seats, seat).tokens += payout
		}
		if result.Outcome == engine.CrossingFail {
			for _, seat := range result.Eliminated {
				bySeat(seats, seat).alive = false
			}
			return level
		}
		pot = result.NewPot
		// Completing the final level pays the pot out evenly to the
		// players who crossed; the remainder goes to the lowest seat.
		if level == len(levels) {
			if len(result.Advanced) > 0 {
				share := pot / len(result.Advanced)
				for _, seat := range result.Advanced {
					bySeat(seats, seat).tokens += share
				}
				bySeat(seats, result.Advanced[0]).tokens += pot - share*len(result.Advanced)
			}
			return level
		}
	}
	return len(levels)
}

// runDuelRounds plays the sheriff cycle: pairwise duels by seat order
// every round, score deltas accumulating across rounds.
func runDuelRounds(seats []*seatState, maxRounds int, profile bot.Profile) int {
	for round := 1; round <= maxRounds; round++ {
		alive := aliveSeats(seats)
		if len(alive) < 2 {
			return round - 1
		}
		sort.Slice(alive, func(i, j int) bool { return alive[i].seat < alive[j].seat })

		for i := 0; i+1 < len(alive); i += 2 {
			a, b := alive[i], alive[i+1]
			ca, cb := bot.Duel(profile), bot.Duel(profile)
			outcome := engine.ResolveDuel(
				engine.Duelist{Seat: a.seat, Searches: ca.Searches, Declared: ca.Declared, Actual: ca.Actual},
				engine.Duelist{Seat: b.seat, Searches: cb.Searches, Declared: cb.Declared, Actual: cb.Actual},
			)
			a.score += outcome.DeltaA
			b.score += outcome.DeltaB
		}
	}
	return maxRounds
}

func ownedAttack(s *seatState) []string {
	var out []string
	for name, qty := range s.inventory {
		if qty > 0 && engine.Catalog[name].IsAttack() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func ownedProtect(s *seatState) []string {
	var out []string
	for name, qty := range s.inventory {
		if qty > 0 && len(engine.Catalog[name].Blocks) > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// pickWinner applies the standing tie-break: score, then tokens, then
// the lowest seat. Dead seats only win when nobody survived.
func pickWinner(seats []*seatState) int {
	candidates := aliveSeats(seats)
	if len(candidates) == 0 {
		candidates = seats
	}
	best := candidates[0]
	for _, s := range candidates[1:] {
		if s.score > best.score ||
			(s.score == best.score && s.tokens > best.tokens) ||
			(s.score == best.score && s.tokens == best.tokens && s.seat < best.seat) {
			best = s
		}
	}
	return best.seat
}

func printJSON(results []*gameResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)
}

func printSummary(results []*gameResult, gameType string, players, numGames int) {
	wins := make(map[int]int)
	totalScore := make(map[int]int)
	totalRounds := 0
	for _, r := range results {
		wins[r.Winner]++
		totalRounds += r.Rounds
		for seat, score := range r.Scores {
			totalScore[seat] += score
		}
	}

	fmt.Printf("\nResults: %d %s games, %d seats each\n", numGames, gameType, players)
	fmt.Printf("  avg rounds: %.1f\n\n", float64(totalRounds)/float64(numGames))
	for seat := 1; seat <= players; seat++ {
		fmt.Printf("  seat %d: %3d wins (%.0f%%), avg score %.1f\n",
			seat, wins[seat],
			100*float64(wins[seat])/float64(numGames),
			float64(totalScore[seat])/float64(numGames))
	}
}
