// Package bot synthesizes submissions for bot seats so a round can always
// resolve. Decisions are weighted-random draws shaped by a Profile; they
// go through the same submission path as human intents and never bypass
// resolution rules.
package bot

import "encoding/json"

// Profile holds the probability weights for one game's bots. Zero values
// are replaced by defaults, so a partial settings object only overrides
// what it names.
type Profile struct {
	// BetFraction caps a bot's bid at this fraction of its balance.
	BetFraction float64 `json:"bet_fraction"`
	// BuyProbability is the chance a bot requests an item in the shop.
	BuyProbability float64 `json:"buy_probability"`
	// AttackProbability is the chance a bot commits an owned attack item.
	AttackProbability float64 `json:"attack_probability"`
	// ContinueProbability is the chance a bot keeps crossing instead of
	// retreating.
	ContinueProbability float64 `json:"continue_probability"`
	// StakeFraction caps a bot's crossing stake at this fraction of its
	// balance.
	StakeFraction float64 `json:"stake_fraction"`
	// SearchProbability is the chance a bot searches its duel opponent.
	SearchProbability float64 `json:"search_probability"`
	// SmuggleProbability is the chance a bot carries more than the legal
	// contraband allowance.
	SmuggleProbability float64 `json:"smuggle_probability"`
}

// DefaultProfile returns the stock bot temperament.
func DefaultProfile() Profile {
	return Profile{
		BetFraction:         0.5,
		BuyProbability:      0.7,
		AttackProbability:   0.6,
		ContinueProbability: 0.6,
		StakeFraction:       0.4,
		SearchProbability:   0.5,
		SmuggleProbability:  0.5,
	}
}

// settingsEnvelope matches the per-game settings JSON stored on the game
// row. Only the bots section is read here.
type settingsEnvelope struct {
	Bots *Profile `json:"bots"`
}

// ProfileFromSettings merges a game's settings overrides onto the default
// profile. Unknown or malformed settings fall back to the defaults.
func ProfileFromSettings(settings json.RawMessage) Profile {
	p := DefaultProfile()
	if len(settings) == 0 {
		return p
	}
	var env settingsEnvelope
	if err := json.Unmarshal(settings, &env); err != nil || env.Bots == nil {
		return p
	}
	o := env.Bots
	if o.BetFraction > 0 {
		p.BetFraction = o.BetFraction
	}
	if o.BuyProbability > 0 {
		p.BuyProbability = o.BuyProbability
	}
	if o.AttackProbability > 0 {
		p.AttackProbability = o.AttackProbability
	}
	if o.ContinueProbability > 0 {
		p.ContinueProbability = o.ContinueProbability
	}
	if o.StakeFraction > 0 {
		p.StakeFraction = o.StakeFraction
	}
	if o.SearchProbability > 0 {
		p.SearchProbability = o.SearchProbability
	}
	if o.SmuggleProbability > 0 {
		p.SmuggleProbability = o.SmuggleProbability
	}
	return p
}
