package bot

import (
	"sort"

	"github.com/clemgrim/veillee/pkg/engine"
)

// PositionChoice is a synthesized positioning intent.
type PositionChoice struct {
	WantSlot    int    `json:"want_slot"`
	TargetSlot  int    `json:"target_slot,omitempty"`
	AttackItem  string `json:"attack_item,omitempty"`
	ProtectItem string `json:"protect_item,omitempty"`
}

// CrossingChoice is a synthesized river-crossing intent.
type CrossingChoice struct {
	Continue    bool `json:"continue"`
	Stake       int  `json:"stake"`
	UseTalisman bool `json:"use_talisman,omitempty"`
	UseLifeline bool `json:"use_lifeline,omitempty"`
}

// DuelChoice is a synthesized duel intent: the search decision plus the
// contraband the bot declares and actually carries.
type DuelChoice struct {
	Searches bool `json:"searches"`
	Declared int  `json:"declared"`
	Actual   int  `json:"actual"`
}

// Bet draws a bid between zero and the profile's fraction of the balance.
// The result never exceeds the balance, so it always survives the
// effective-bid rule.
func Bet(p Profile, balance int) int {
	if balance <= 0 {
		return 0
	}
	max := int(float64(balance) * p.BetFraction)
	if max <= 0 {
		return 0
	}
	return botIntn(max + 1)
}

// Position draws a desired slot and, when the bot owns usable items, an
// attack commitment against a random other slot. Owned protection is
// always committed; there is no reason to hold it back.
func Position(p Profile, slots int, ownedAttack, ownedProtect []string) PositionChoice {
	if slots <= 0 {
		return PositionChoice{}
	}
	c := PositionChoice{WantSlot: 1 + botIntn(slots)}

	if len(ownedAttack) > 0 && slots > 1 && botFloat64() < p.AttackProbability {
		c.AttackItem = ownedAttack[botIntn(len(ownedAttack))]
		// Pick any slot other than the one the bot wants for itself.
		target := 1 + botIntn(slots-1)
		if target >= c.WantSlot {
			target++
		}
		c.TargetSlot = target
	}
	if len(ownedProtect) > 0 {
		c.ProtectItem = ownedProtect[botIntn(len(ownedProtect))]
	}
	return c
}

// Shop picks one affordable item from the offer, or nothing. Prices come
// from the same table the resolver charges against, so a synthesized
// request is only denied when a higher-ranked seat empties the stock
// first.
func Shop(p Profile, offer engine.Offer, prices engine.PriceTable, role string, balance int) string {
	if botFloat64() >= p.BuyProbability {
		return ""
	}
	var affordable []string
	for name, stock := range offer {
		if stock <= 0 {
			continue
		}
		if prices.PriceFor(name, role) <= balance {
			affordable = append(affordable, name)
		}
	}
	if len(affordable) == 0 {
		return ""
	}
	sort.Strings(affordable)
	return affordable[botIntn(len(affordable))]
}

// Crossing decides whether the bot keeps going and how much it stakes.
// A committed talisman or lifeline is always used; holding a rescue item
// back during a crossing it might not survive has no upside.
func Crossing(p Profile, balance int, hasTalisman, hasLifeline bool) CrossingChoice {
	c := CrossingChoice{Continue: botFloat64() < p.ContinueProbability}
	if !c.Continue {
		return c
	}
	if balance > 0 {
		max := int(float64(balance) * p.StakeFraction)
		if max <= 0 {
			max = 1
		}
		c.Stake = 1 + botIntn(max)
	}
	c.UseTalisman = hasTalisman
	c.UseLifeline = hasLifeline
	return c
}

// Duel draws the search decision and the contraband loadout. Declared
// never exceeds the legal allowance; the smuggle probability decides
// whether the actual load goes above it.
func Duel(p Profile) DuelChoice {
	c := DuelChoice{
		Searches: botFloat64() < p.SearchProbability,
		Declared: engine.LegalContraband,
		Actual:   engine.LegalContraband,
	}
	if botFloat64() < p.SmuggleProbability {
		extra := engine.ContrabandCap - engine.LegalContraband
		c.Actual = engine.LegalContraband + 1 + botIntn(extra)
	}
	return c
}
