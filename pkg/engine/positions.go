package engine

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotPermutation reports a position allocation that failed its
// postcondition. This is an internal invariant failure, never a user error.
var ErrNotPermutation = errors.New("position allocation is not a permutation")

// PositionIntent is a player's submitted position action: the slot they
// want, plus the combat intents carried through to the final position.
// WantSlot 0 (or out of range) means "no preference".
type PositionIntent struct {
	Seat        int    `json:"seat"`
	WantSlot    int    `json:"want_slot"`
	TargetSlot  int    `json:"target_slot"`
	AttackItem  string `json:"attack_item,omitempty"`
	ProtectItem string `json:"protect_item,omitempty"`
}

// FinalPosition is one assigned slot for a round, with the player's other
// intents carried through unchanged for the combat resolver.
type FinalPosition struct {
	Seat        int    `json:"seat"`
	Slot        int    `json:"slot"`
	WantSlot    int    `json:"want_slot"`
	TargetSlot  int    `json:"target_slot"`
	AttackItem  string `json:"attack_item,omitempty"`
	ProtectItem string `json:"protect_item,omitempty"`
}

// AllocatePositions assigns every ranked player a slot in 1..N, where N is
// the number of ranked players this round.
//
// Players are processed in priority-rank order. A free desired slot is
// assigned directly; a taken one starts a forward scan that wraps past N
// back to 1. No desire (or an out-of-range one) starts the scan at slot 1.
// The result is verified to be a bijection onto 1..N before returning.
func AllocatePositions(ranking []RankingEntry, intents map[int]PositionIntent) ([]FinalPosition, error) {
	n := len(ranking)
	if n == 0 {
		return nil, nil
	}

	ordered := make([]RankingEntry, n)
	copy(ordered, ranking)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	taken := make([]bool, n+1) // 1-based
	positions := make([]FinalPosition, 0, n)

	for _, entry := range ordered {
		intent := intents[entry.Seat]

		start := intent.WantSlot
		if start < 1 || start > n {
			start = 1
		}

		slot := 0
		for step := 0; step < n; step++ {
			candidate := ((start - 1 + step) % n) + 1
			if !taken[candidate] {
				slot = candidate
				break
			}
		}
		if slot == 0 {
			return nil, fmt.Errorf("no free slot for seat %d with %d players: %w", entry.Seat, n, ErrNotPermutation)
		}
		taken[slot] = true

		positions = append(positions, FinalPosition{
			Seat:        entry.Seat,
			Slot:        slot,
			WantSlot:    intent.WantSlot,
			TargetSlot:  intent.TargetSlot,
			AttackItem:  intent.AttackItem,
			ProtectItem: intent.ProtectItem,
		})
	}

	if err := verifyPermutation(positions, n); err != nil {
		return nil, err
	}

	sort.Slice(positions, func(i, j int) bool { return positions[i].Slot < positions[j].Slot })
	return positions, nil
}

// verifyPermutation checks that every slot 1..N is used exactly once.
func verifyPermutation(positions []FinalPosition, n int) error {
	if len(positions) != n {
		return fmt.Errorf("%d positions for %d players: %w", len(positions), n, ErrNotPermutation)
	}
	seen := make([]bool, n+1)
	for _, p := range positions {
		if p.Slot < 1 || p.Slot > n {
			return fmt.Errorf("slot %d out of range 1..%d: %w", p.Slot, n, ErrNotPermutation)
		}
		if seen[p.Slot] {
			return fmt.Errorf("slot %d assigned twice: %w", p.Slot, ErrNotPermutation)
		}
		seen[p.Slot] = true
	}
	return nil
}
