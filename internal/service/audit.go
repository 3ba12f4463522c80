package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/pkg/engine"
)

// emit appends the two parallel narratives for a resolution and pushes
// them to connected clients. The public stream never reveals a player's
// private targets or denied wishes; the master stream carries full
// detail. Audit failures are logged, never fatal to the resolution.
func (s *RoundService) emit(ctx context.Context, game *model.Game, public, master string) {
	if public != "" {
		rec, err := s.auditRepo.Append(ctx, game.ID, game.Round, model.AudiencePublic, public)
		if err != nil {
			log.Warn().Err(err).Str("gameId", game.ID).Msg("Failed to append public audit record")
		} else {
			s.broadcaster.BroadcastGameEvent(game.ID, "audit", rec)
		}
	}
	if master != "" {
		if _, err := s.auditRepo.Append(ctx, game.ID, game.Round, model.AudienceMaster, master); err != nil {
			log.Warn().Err(err).Str("gameId", game.ID).Msg("Failed to append master audit record")
		}
	}
}

// emitMaster records a privileged-only entry, used for integrity
// failures the players must not see.
func (s *RoundService) emitMaster(ctx context.Context, game *model.Game, master string) {
	if _, err := s.auditRepo.Append(ctx, game.ID, game.Round, model.AudienceMaster, master); err != nil {
		log.Warn().Err(err).Str("gameId", game.ID).Msg("Failed to append master audit record")
	}
}

func name(names map[int]string, seat int) string {
	if n, ok := names[seat]; ok && n != "" {
		return fmt.Sprintf("%s (seat %d)", n, seat)
	}
	return fmt.Sprintf("seat %d", seat)
}

func betsNarrative(ranking []engine.RankingEntry, names map[int]string) (string, string) {
	ordered := make([]engine.RankingEntry, len(ranking))
	copy(ordered, ranking)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	var pub, mas strings.Builder
	pub.WriteString("Bets are closed. Priority order: ")
	mas.WriteString("Bets closed. ")
	for i, e := range ordered {
		if i > 0 {
			pub.WriteString(", ")
			mas.WriteString("; ")
		}
		pub.WriteString(name(names, e.Seat))
		fmt.Fprintf(&mas, "%s bid %d (rank %d", name(names, e.Seat), e.EffectiveBid, e.Rank)
		if e.TieGroup > 0 {
			fmt.Fprintf(&mas, ", tie group %d", e.TieGroup)
		}
		if !e.Submitted {
			mas.WriteString(", no submission")
		}
		mas.WriteString(")")
	}
	pub.WriteString(".")
	mas.WriteString(".")
	return pub.String(), mas.String()
}

func positionsNarrative(finals []engine.FinalPosition, names map[int]string) (string, string) {
	var pub, mas strings.Builder
	pub.WriteString("Positions: ")
	mas.WriteString("Positions assigned. ")
	for i, f := range finals {
		if i > 0 {
			pub.WriteString(", ")
			mas.WriteString("; ")
		}
		fmt.Fprintf(&pub, "slot %d %s", f.Slot, name(names, f.Seat))
		fmt.Fprintf(&mas, "slot %d %s (wanted %d", f.Slot, name(names, f.Seat), f.WantSlot)
		if f.AttackItem != "" {
			fmt.Fprintf(&mas, ", attacks slot %d with %s", f.TargetSlot, f.AttackItem)
		}
		if f.ProtectItem != "" {
			fmt.Fprintf(&mas, ", protected by %s", f.ProtectItem)
		}
		mas.WriteString(")")
	}
	pub.WriteString(".")
	mas.WriteString(".")
	return pub.String(), mas.String()
}

func combatNarrative(res engine.CombatResult, names map[int]string) (string, string) {
	var pub, mas strings.Builder
	landed := 0
	for _, a := range res.Attacks {
		switch a.Reason {
		case engine.AttackHit:
			if landed > 0 {
				pub.WriteString(" ")
			}
			fmt.Fprintf(&pub, "%s hit %s with a %s (%d damage).",
				name(names, a.AttackerSeat), name(names, a.TargetSeat), a.Item, a.Damage)
			landed++
			fmt.Fprintf(&mas, "%s hit %s with a %s for %d. ",
				name(names, a.AttackerSeat), name(names, a.TargetSeat), a.Item, a.Damage)
		case engine.AttackBlocked:
			fmt.Fprintf(&mas, "%s attacked %s with a %s but it was blocked. ",
				name(names, a.AttackerSeat), name(names, a.TargetSeat), a.Item)
		default:
			fmt.Fprintf(&mas, "%s declared an attack that failed: %s. ",
				name(names, a.AttackerSeat), a.Reason)
		}
	}
	if landed == 0 {
		pub.WriteString("No attacks landed this round.")
	}
	for _, seat := range res.Eliminated {
		fmt.Fprintf(&pub, " %s is eliminated.", name(names, seat))
		fmt.Fprintf(&mas, "%s eliminated. ", name(names, seat))
	}
	return pub.String(), strings.TrimSpace(mas.String())
}

func shopNarrative(res engine.ShopResult, names map[int]string) (string, string) {
	var bought, passed []string
	var mas strings.Builder
	mas.WriteString("Shop resolved. ")
	for _, rec := range res.Records {
		if rec.Approved {
			bought = append(bought, name(names, rec.Seat))
			fmt.Fprintf(&mas, "%s bought %s for %d. ", name(names, rec.Seat), rec.Item, rec.Price)
		} else {
			passed = append(passed, name(names, rec.Seat))
			if rec.Item != "" {
				fmt.Fprintf(&mas, "%s wanted %s: %s. ", name(names, rec.Seat), rec.Item, rec.Reason)
			} else {
				fmt.Fprintf(&mas, "%s: %s. ", name(names, rec.Seat), rec.Reason)
			}
		}
	}

	var pub strings.Builder
	if len(bought) > 0 {
		fmt.Fprintf(&pub, "Made a purchase: %s.", strings.Join(bought, ", "))
	}
	if len(passed) > 0 {
		if pub.Len() > 0 {
			pub.WriteString(" ")
		}
		fmt.Fprintf(&pub, "No purchase: %s.", strings.Join(passed, ", "))
	}
	if pub.Len() == 0 {
		pub.WriteString("Nobody visited the shop.")
	}
	return pub.String(), strings.TrimSpace(mas.String())
}

func crossingNarrative(level int, res engine.CrossingResult, players []engine.CrossingPlayer, names map[int]string) (string, string) {
	var pub, mas strings.Builder

	if res.Outcome == engine.CrossingSuccess {
		fmt.Fprintf(&pub, "Level %d crossed: the stakes (%d) beat the danger (%d).",
			level, res.StakeSum, res.EffectiveThreshold)
	} else {
		fmt.Fprintf(&pub, "Level %d failed: the stakes (%d) did not beat the danger (%d).",
			level, res.StakeSum, res.EffectiveThreshold)
	}
	if res.TalismanSeat != 0 {
		fmt.Fprintf(&pub, " %s used a talisman.", name(names, res.TalismanSeat))
	}
	appendSeatList(&pub, " Advanced:", res.Advanced, names)
	appendSeatList(&pub, " Retreated:", res.Retreated, names)
	appendSeatList(&pub, " Eliminated:", res.Eliminated, names)
	appendSeatList(&pub, " Saved by a lifeline:", res.Saved, names)
	if res.PotForfeited {
		pub.WriteString(" The pot is forfeited.")
	}

	fmt.Fprintf(&mas, "Level %d, effective threshold %d, stakes %d, pot now %d. ",
		level, res.EffectiveThreshold, res.StakeSum, res.NewPot)
	for _, p := range players {
		action := "retreated"
		if p.Continue {
			action = "continued"
		}
		fmt.Fprintf(&mas, "%s %s with stake %d. ", name(names, p.Seat), action, p.Stake)
	}
	for seat, payout := range res.Payouts {
		fmt.Fprintf(&mas, "%s paid out %d. ", name(names, seat), payout)
	}
	return pub.String(), strings.TrimSpace(mas.String())
}

func appendSeatList(b *strings.Builder, label string, seats []int, names map[int]string) {
	if len(seats) == 0 {
		return
	}
	parts := make([]string, 0, len(seats))
	for _, s := range seats {
		parts = append(parts, name(names, s))
	}
	fmt.Fprintf(b, "%s %s.", label, strings.Join(parts, ", "))
}

func duelNarrative(a, b engine.Duelist, out engine.DuelOutcome, names map[int]string) (string, string) {
	var pub, mas strings.Builder

	fmt.Fprintf(&pub, "Duel between %s and %s: ", name(names, a.Seat), name(names, b.Seat))
	fmt.Fprintf(&pub, "%s %+d, %s %+d.", name(names, a.Seat), out.DeltaA, name(names, b.Seat), out.DeltaB)
	if out.ConfiscatedA > 0 {
		fmt.Fprintf(&pub, " %d units confiscated from %s.", out.ConfiscatedA, name(names, a.Seat))
	}
	if out.ConfiscatedB > 0 {
		fmt.Fprintf(&pub, " %d units confiscated from %s.", out.ConfiscatedB, name(names, b.Seat))
	}

	fmt.Fprintf(&mas, "%s (searches=%t, declared %d, carried %d) vs %s (searches=%t, declared %d, carried %d): %+d / %+d, confiscated %d / %d.",
		name(names, a.Seat), a.Searches, a.Declared, a.Actual,
		name(names, b.Seat), b.Searches, b.Declared, b.Actual,
		out.DeltaA, out.DeltaB, out.ConfiscatedA, out.ConfiscatedB)
	return pub.String(), mas.String()
}
