package engine

import "sort"

// CrossingOutcome is the result of one river level resolution.
type CrossingOutcome string

const (
	CrossingSuccess CrossingOutcome = "success"
	CrossingFail    CrossingOutcome = "fail"
)

// CrossingPlayer is one player still "in" for a river level, with their
// locked stake and their continue/retreat decision.
type CrossingPlayer struct {
	Seat        int  `json:"seat"`
	Stake       int  `json:"stake"`
	Continue    bool `json:"continue"`
	UseTalisman bool `json:"use_talisman,omitempty"` // wants to halve the danger this level
	HasTalisman bool `json:"has_talisman,omitempty"`
	UseLifeline bool `json:"use_lifeline,omitempty"` // one-time save from elimination
	HasLifeline bool `json:"has_lifeline,omitempty"`
}

// SafeExit records a player who retreated in an earlier level of this
// cycle. ExitOrder 1 is the earliest exit.
type SafeExit struct {
	Seat      int `json:"seat"`
	ExitOrder int `json:"exit_order"`
}

// CrossingInput is everything a river level resolution needs.
type CrossingInput struct {
	Level     int
	Threshold int
	Pot       int
	Players   []CrossingPlayer
	SafelyOut []SafeExit
	// TalismanSeat disambiguates which eligible talisman use applies when
	// several players are eligible; 0 means first-eligible in seat order.
	TalismanSeat int
}

// CrossingResult is the full outcome of one level.
type CrossingResult struct {
	Outcome            CrossingOutcome
	EffectiveThreshold int
	StakeSum           int
	TalismanSeat       int // 0 if none applied
	Advanced           []int
	Retreated          []int
	Eliminated         []int
	Saved              []int // lifeline users spared on FAIL
	Payouts            map[int]int
	NewPot             int
	PotForfeited       bool
}

// ResolveCrossing resolves one river level: sums the locked stakes of
// continuing players against the (possibly talisman-reduced) danger
// threshold, then advances, retreats, pays out, or eliminates accordingly.
// Re-entrant per level; the caller feeds the result back as the next
// level's input until the cycle terminates.
func ResolveCrossing(in CrossingInput) CrossingResult {
	players := make([]CrossingPlayer, len(in.Players))
	copy(players, in.Players)
	sort.Slice(players, func(i, j int) bool { return players[i].Seat < players[j].Seat })

	res := CrossingResult{
		EffectiveThreshold: in.Threshold,
		Payouts:            make(map[int]int),
	}

	// At most one talisman reduction per level. The caller may pin the
	// choice to a seat; otherwise the first eligible seat applies.
	for _, p := range players {
		if !p.UseTalisman || !p.HasTalisman {
			continue
		}
		if in.TalismanSeat != 0 && p.Seat != in.TalismanSeat {
			continue
		}
		res.TalismanSeat = p.Seat
		res.EffectiveThreshold = in.Threshold / 2
		break
	}

	stakes := 0
	for _, p := range players {
		if p.Continue {
			stakes += p.Stake
		}
	}
	res.StakeSum = stakes

	if stakes > res.EffectiveThreshold {
		res.Outcome = CrossingSuccess
		for _, p := range players {
			if p.Continue {
				res.Advanced = append(res.Advanced, p.Seat)
			} else {
				res.Retreated = append(res.Retreated, p.Seat)
			}
		}
		// All stakes carry forward into the pot for the next level.
		res.NewPot = in.Pot + stakes
		return res
	}

	res.Outcome = CrossingFail
	for _, p := range players {
		if !p.Continue {
			res.Retreated = append(res.Retreated, p.Seat)
		}
	}

	// Retreaters this level join the safely-out pool before the payout.
	out := make([]SafeExit, len(in.SafelyOut))
	copy(out, in.SafelyOut)
	nextOrder := 0
	for _, e := range out {
		if e.ExitOrder > nextOrder {
			nextOrder = e.ExitOrder
		}
	}
	for _, seat := range res.Retreated {
		nextOrder++
		out = append(out, SafeExit{Seat: seat, ExitOrder: nextOrder})
	}

	pot := in.Pot + stakes
	if len(out) == 0 {
		// Nobody left the river in time: the pot is forfeited, not divided.
		res.PotForfeited = true
	} else {
		distributePot(pot, out, res.Payouts)
	}

	for _, p := range players {
		if !p.Continue {
			continue
		}
		if p.UseLifeline && p.HasLifeline {
			res.Saved = append(res.Saved, p.Seat)
			continue
		}
		res.Eliminated = append(res.Eliminated, p.Seat)
	}

	return res
}

// distributePot splits the pot across safely-out players, weighted by how
// early each exited (earliest exit = highest weight). Integer remainders
// go to the earliest exiter so the split is deterministic and exact.
func distributePot(pot int, out []SafeExit, payouts map[int]int) {
	sort.Slice(out, func(i, j int) bool { return out[i].ExitOrder < out[j].ExitOrder })

	totalWeight := 0
	weights := make([]int, len(out))
	for i := range out {
		weights[i] = len(out) - i
		totalWeight += weights[i]
	}

	paid := 0
	for i, e := range out {
		share := pot * weights[i] / totalWeight
		payouts[e.Seat] = share
		paid += share
	}
	if rem := pot - paid; rem > 0 {
		payouts[out[0].Seat] += rem
	}
}
