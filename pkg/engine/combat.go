package engine

import "sort"

// Combatant is one player's state entering combat resolution: their final
// position with carried intents, current health, and how many of the
// declared attack item they actually own.
type Combatant struct {
	Seat        int
	Slot        int
	TargetSlot  int
	AttackItem  string
	ProtectItem string
	Health      int
	AttackStock int // owned, available units of AttackItem
}

// Attack outcome reasons, used in the privileged narrative.
const (
	AttackHit       = "hit"
	AttackBlocked   = "blocked by protection"
	AttackNoItem    = "attack item not available"
	AttackBadTarget = "target slot invalid"
)

// AttackResult is one evaluated attack, in slot order.
type AttackResult struct {
	AttackerSeat int    `json:"attacker_seat"`
	TargetSeat   int    `json:"target_seat,omitempty"`
	TargetSlot   int    `json:"target_slot"`
	Item         string `json:"item"`
	Damage       int    `json:"damage"`
	Blocked      bool   `json:"blocked"`
	Reason       string `json:"reason"`
}

// CombatResult is the outcome of one combat resolution pass.
type CombatResult struct {
	Attacks []AttackResult
	// HealthDeltas maps seat -> total health lost (negative values).
	HealthDeltas map[int]int
	// ItemsSpent maps seat -> attack item consumed.
	ItemsSpent map[int]string
	// Eliminated lists seats whose health reached zero this pass.
	Eliminated []int
}

// ResolveCombat evaluates all declared attacks in slot order. Attacks were
// committed simultaneously at position lock, so every attack resolves
// against the pre-combat state: damage taken during the pass never cancels
// an already-committed attack. Eliminations are computed once, after all
// attacks have been applied.
func ResolveCombat(combatants []Combatant) CombatResult {
	bySlot := make(map[int]*Combatant, len(combatants))
	ordered := make([]*Combatant, 0, len(combatants))
	for i := range combatants {
		c := &combatants[i]
		bySlot[c.Slot] = c
		ordered = append(ordered, c)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Slot < ordered[j].Slot })

	res := CombatResult{
		HealthDeltas: make(map[int]int),
		ItemsSpent:   make(map[int]string),
	}

	for _, c := range ordered {
		if c.AttackItem == "" {
			continue
		}
		item, known := Catalog[c.AttackItem]
		if !known || !item.IsAttack() || c.AttackStock <= 0 {
			res.Attacks = append(res.Attacks, AttackResult{
				AttackerSeat: c.Seat, TargetSlot: c.TargetSlot, Item: c.AttackItem,
				Reason: AttackNoItem,
			})
			continue
		}
		target, ok := bySlot[c.TargetSlot]
		if !ok || target.Seat == c.Seat {
			res.Attacks = append(res.Attacks, AttackResult{
				AttackerSeat: c.Seat, TargetSlot: c.TargetSlot, Item: c.AttackItem,
				Reason: AttackBadTarget,
			})
			continue
		}

		// The attack item is consumed whether or not it lands.
		res.ItemsSpent[c.Seat] = c.AttackItem

		if ItemBlocks(target.ProtectItem, c.AttackItem) {
			res.Attacks = append(res.Attacks, AttackResult{
				AttackerSeat: c.Seat, TargetSeat: target.Seat, TargetSlot: c.TargetSlot,
				Item: c.AttackItem, Blocked: true, Reason: AttackBlocked,
			})
			continue
		}

		res.HealthDeltas[target.Seat] -= item.Damage
		res.Attacks = append(res.Attacks, AttackResult{
			AttackerSeat: c.Seat, TargetSeat: target.Seat, TargetSlot: c.TargetSlot,
			Item: c.AttackItem, Damage: item.Damage, Reason: AttackHit,
		})
	}

	for _, c := range ordered {
		if delta, hit := res.HealthDeltas[c.Seat]; hit && c.Health+delta <= 0 {
			res.Eliminated = append(res.Eliminated, c.Seat)
		}
	}

	return res
}
