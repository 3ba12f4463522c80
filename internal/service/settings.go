package service

import (
	"encoding/json"
	"time"

	"github.com/clemgrim/veillee/internal/model"
	"github.com/clemgrim/veillee/pkg/engine"
)

const (
	minPlayers = 2
	maxPlayers = 8
)

// gameSettings is the per-instance tuning stored in games.settings. Every
// field has a default; the stored JSON only needs the overrides. Bot
// probability overrides live under the "bots" key and are parsed by the
// bot package.
type gameSettings struct {
	PhaseSeconds   int                       `json:"phase_seconds"`
	StartingTokens int                       `json:"starting_tokens"`
	StartingHealth int                       `json:"starting_health"`
	MaxRounds      int                       `json:"max_rounds"`
	RiverLevels    []int                     `json:"river_levels"`
	ShopOffer      map[string]int            `json:"shop_offer"`
	PriceOverrides map[string]map[string]int `json:"price_overrides"`
}

func defaultSettings() gameSettings {
	return gameSettings{
		PhaseSeconds:   60,
		StartingTokens: 100,
		StartingHealth: 3,
		MaxRounds:      10,
		RiverLevels:    []int{10, 20, 40, 60, 80},
	}
}

// settingsFor merges the game's stored settings over the defaults.
// Malformed JSON falls back to defaults entirely.
func settingsFor(game *model.Game) gameSettings {
	s := defaultSettings()
	if len(game.Settings) == 0 {
		return s
	}
	var stored gameSettings
	if err := json.Unmarshal(game.Settings, &stored); err != nil {
		return s
	}
	if stored.PhaseSeconds > 0 {
		s.PhaseSeconds = stored.PhaseSeconds
	}
	if stored.StartingTokens > 0 {
		s.StartingTokens = stored.StartingTokens
	}
	if stored.StartingHealth > 0 {
		s.StartingHealth = stored.StartingHealth
	}
	if stored.MaxRounds > 0 {
		s.MaxRounds = stored.MaxRounds
	}
	if len(stored.RiverLevels) > 0 {
		s.RiverLevels = stored.RiverLevels
	}
	if len(stored.ShopOffer) > 0 {
		s.ShopOffer = stored.ShopOffer
	}
	if len(stored.PriceOverrides) > 0 {
		s.PriceOverrides = stored.PriceOverrides
	}
	return s
}

func (s gameSettings) phaseDuration() time.Duration {
	return time.Duration(s.PhaseSeconds) * time.Second
}

// offer returns the per-round shop stock, defaulting to the full catalog
// with two of the cheapest attack item.
func (s gameSettings) offer() engine.Offer {
	if len(s.ShopOffer) > 0 {
		o := make(engine.Offer, len(s.ShopOffer))
		for item, qty := range s.ShopOffer {
			o[item] = qty
		}
		return o
	}
	return engine.Offer{
		"Stone": 2, "Spear": 1, "Torch": 1,
		"Shield": 1, "Ditch": 1, "Totem": 1,
	}
}

func (s gameSettings) prices() engine.PriceTable {
	p := engine.StandardPrices()
	if len(s.PriceOverrides) > 0 {
		p.RoleOverrides = s.PriceOverrides
	}
	return p
}

// riverThreshold returns the danger threshold for a level, or -1 when the
// level is past the end of the cycle.
func (s gameSettings) riverThreshold(level int) int {
	if level < 1 || level > len(s.RiverLevels) {
		return -1
	}
	return s.RiverLevels[level-1]
}
