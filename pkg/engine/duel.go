package engine

// Contraband limits for the sheriff game type. Carrying more than
// LegalContraband units is illegal; confiscation resets the count to the
// legal limit. ContrabandCap bounds what a player can carry at all.
const (
	LegalContraband = 2
	ContrabandCap   = 6
)

// Duel score constants.
const (
	searchFindBonus   = 2 // per illegal unit found, to the searcher
	searchFindPenalty = 2 // per illegal unit found, to the carrier
	falseSearchCost   = 3 // flat, to a searcher who finds nothing
	smuggleBonus      = 1 // per unpunished illegal unit, to the carrier
)

// Duelist is one side of a search/contraband duel.
type Duelist struct {
	Seat     int  `json:"seat"`
	Searches bool `json:"searches"`
	Declared int  `json:"declared"`
	Actual   int  `json:"actual"`
}

// IllegalUnits returns how many units above the legal limit the duelist
// actually carries.
func (d Duelist) IllegalUnits() int {
	if d.Actual > LegalContraband {
		return d.Actual - LegalContraband
	}
	return 0
}

// DuelOutcome carries per-player score deltas and confiscations for one
// duel. Deltas accumulate into running scores; they never replace them.
type DuelOutcome struct {
	DeltaA         int `json:"delta_a"`
	DeltaB         int `json:"delta_b"`
	ConfiscatedA   int `json:"confiscated_a"`
	ConfiscatedB   int `json:"confiscated_b"`
	NewContrabandA int `json:"new_contraband_a"`
	NewContrabandB int `json:"new_contraband_b"`
}

// ResolveDuel evaluates both directions of a duel independently and
// simultaneously: A's search decision against B's cargo, and B's against
// A's. It is not a combined winner-take-all comparison.
func ResolveDuel(a, b Duelist) DuelOutcome {
	out := DuelOutcome{NewContrabandA: a.Actual, NewContrabandB: b.Actual}

	dSearcher, dTarget, confiscated := resolveDirection(a, b)
	out.DeltaA += dSearcher
	out.DeltaB += dTarget
	if confiscated > 0 {
		out.ConfiscatedB = confiscated
		out.NewContrabandB = LegalContraband
	}

	dSearcher, dTarget, confiscated = resolveDirection(b, a)
	out.DeltaB += dSearcher
	out.DeltaA += dTarget
	if confiscated > 0 {
		out.ConfiscatedA = confiscated
		out.NewContrabandA = LegalContraband
	}

	return out
}

// resolveDirection applies the search rule for one direction: searcher's
// decision against the target's cargo. Returns the searcher delta, the
// target delta, and the confiscated unit count.
func resolveDirection(searcher, target Duelist) (int, int, int) {
	illegal := target.IllegalUnits()

	if searcher.Searches {
		if illegal > 0 {
			return searchFindBonus * illegal, -searchFindPenalty * illegal, illegal
		}
		return -falseSearchCost, 0, 0
	}
	if illegal > 0 {
		// Unpunished smuggling pays off.
		return 0, smuggleBonus * illegal, 0
	}
	return 0, 0, 0
}
