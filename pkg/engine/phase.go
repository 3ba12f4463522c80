package engine

import (
	"errors"
	"fmt"
)

// GameType identifies one of the platform's game variants.
type GameType string

const (
	GameForet     GameType = "foret"
	GameRivieres  GameType = "rivieres"
	GameSheriff   GameType = "sheriff"
	GameInfection GameType = "infection"
	GameLion      GameType = "lion"
)

// Phase is one named step of a game type's round cycle.
type Phase string

const (
	PhaseStakes    Phase = "stakes"
	PhasePositions Phase = "positions"
	PhaseCombat    Phase = "combat"
	PhaseShop      Phase = "shop"
	PhaseCrossing  Phase = "crossing"
	PhaseDuel      Phase = "duel"
)

var ErrUnknownGameType = errors.New("unknown game type")

// ErrIllegalTransition reports a phase transition that skips or rewinds
// the cycle. Only a game-master force override may bypass it.
var ErrIllegalTransition = errors.New("illegal phase transition")

// phaseCycles is the ordered phase sequence per game type. The cycle wraps
// back to its first phase as the round number increments. Infection and
// Lion reuse the Forêt cycle shape.
var phaseCycles = map[GameType][]Phase{
	GameForet:     {PhaseStakes, PhasePositions, PhaseCombat, PhaseShop},
	GameInfection: {PhaseStakes, PhasePositions, PhaseCombat, PhaseShop},
	GameLion:      {PhaseStakes, PhasePositions, PhaseCombat, PhaseShop},
	GameRivieres:  {PhaseCrossing},
	GameSheriff:   {PhaseDuel},
}

// KnownGameType reports whether gt is a registered game type.
func KnownGameType(gt GameType) bool {
	_, ok := phaseCycles[gt]
	return ok
}

// PhasesFor returns the ordered phase cycle of a game type.
func PhasesFor(gt GameType) ([]Phase, error) {
	cycle, ok := phaseCycles[gt]
	if !ok {
		return nil, fmt.Errorf("%q: %w", gt, ErrUnknownGameType)
	}
	return cycle, nil
}

// FirstPhase returns the opening phase of a game type's cycle.
func FirstPhase(gt GameType) (Phase, error) {
	cycle, err := PhasesFor(gt)
	if err != nil {
		return "", err
	}
	return cycle[0], nil
}

// NextPhase returns the phase following p in the cycle, and whether the
// cycle wrapped (meaning the round number must increment).
func NextPhase(gt GameType, p Phase) (Phase, bool, error) {
	cycle, err := PhasesFor(gt)
	if err != nil {
		return "", false, err
	}
	for i, phase := range cycle {
		if phase == p {
			next := (i + 1) % len(cycle)
			return cycle[next], next == 0, nil
		}
	}
	return "", false, fmt.Errorf("phase %q not in %q cycle: %w", p, gt, ErrIllegalTransition)
}

// ValidateTransition checks that moving from one phase to the next follows
// the cycle forward with no skipping.
func ValidateTransition(gt GameType, from, to Phase) error {
	next, _, err := NextPhase(gt, from)
	if err != nil {
		return err
	}
	if next != to {
		return fmt.Errorf("%q -> %q (expected %q): %w", from, to, next, ErrIllegalTransition)
	}
	return nil
}
