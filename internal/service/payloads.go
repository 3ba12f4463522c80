package service

import (
	"encoding/json"
	"fmt"

	"github.com/clemgrim/veillee/pkg/engine"
)

// Submission payload shapes, one per category. These are what clients
// POST during an open phase and what the bot synthesizer produces; both
// paths go through the same validation.

type betPayload struct {
	Amount int `json:"amount"`
}

type actionPayload struct {
	WantSlot    int    `json:"want_slot"`
	TargetSlot  int    `json:"target_slot,omitempty"`
	AttackItem  string `json:"attack_item,omitempty"`
	ProtectItem string `json:"protect_item,omitempty"`
}

type shopPayload struct {
	Item string `json:"item,omitempty"`
}

type crossingPayload struct {
	Continue    bool `json:"continue"`
	Stake       int  `json:"stake"`
	UseTalisman bool `json:"use_talisman,omitempty"`
	UseLifeline bool `json:"use_lifeline,omitempty"`
}

type duelPayload struct {
	Searches bool `json:"searches"`
	Declared int  `json:"declared"`
	Actual   int  `json:"actual"`
}

// categoryForPhase maps the current phase to the submission category it
// accepts. Combat takes no submissions; it resolves from the persisted
// positions.
var categoryForPhase = map[engine.Phase]string{
	engine.PhaseStakes:    "bet",
	engine.PhasePositions: "action",
	engine.PhaseShop:      "shop",
	engine.PhaseCrossing:  "crossing",
	engine.PhaseDuel:      "duel",
}

// validatePayload checks that a raw client payload parses and respects
// the category's bounds. Affordability is not checked here; over-bids and
// over-stakes are floored at resolution, not rejected at submission.
func validatePayload(category string, raw json.RawMessage) error {
	switch category {
	case "bet":
		var p betPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.Amount < 0 {
			return fmt.Errorf("%w: negative bet", ErrInvalidPayload)
		}
	case "action":
		var p actionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.AttackItem != "" && !engine.KnownItem(p.AttackItem) {
			return fmt.Errorf("%w: unknown attack item %q", ErrInvalidPayload, p.AttackItem)
		}
		if p.ProtectItem != "" && !engine.KnownItem(p.ProtectItem) {
			return fmt.Errorf("%w: unknown protection item %q", ErrInvalidPayload, p.ProtectItem)
		}
	case "shop":
		var p shopPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.Item != "" && !engine.KnownItem(p.Item) {
			return fmt.Errorf("%w: unknown item %q", ErrInvalidPayload, p.Item)
		}
	case "crossing":
		var p crossingPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.Stake < 0 {
			return fmt.Errorf("%w: negative stake", ErrInvalidPayload)
		}
	case "duel":
		var p duelPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.Declared < 0 || p.Actual < 0 || p.Actual > engine.ContrabandCap {
			return fmt.Errorf("%w: contraband count out of range", ErrInvalidPayload)
		}
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidPayload, category)
	}
	return nil
}
