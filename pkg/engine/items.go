package engine

// Item describes one catalog entry: its base price, the damage it deals
// when used as an attack, the attack items it blocks when worn as
// protection, and any score granted on purchase.
type Item struct {
	Name       string
	Price      int
	Damage     int      // > 0 means usable as an attack
	Blocks     []string // attack item names this protection stops
	ScoreBonus int      // score granted immediately on purchase
}

// IsAttack reports whether the item can be used as an attack.
func (it Item) IsAttack() bool { return it.Damage > 0 }

// Catalog is the fixed item table for the Forêt game type.
var Catalog = map[string]Item{
	"Stone":  {Name: "Stone", Price: 10, Damage: 1},
	"Spear":  {Name: "Spear", Price: 25, Damage: 2},
	"Torch":  {Name: "Torch", Price: 20, Damage: 2},
	"Shield": {Name: "Shield", Price: 15, Blocks: []string{"Stone", "Spear"}},
	"Ditch":  {Name: "Ditch", Price: 15, Blocks: []string{"Torch"}},
	"Totem":  {Name: "Totem", Price: 20, ScoreBonus: 1},
}

// ItemBlocks reports whether the protect item stops the attack item.
func ItemBlocks(protect, attack string) bool {
	p, ok := Catalog[protect]
	if !ok {
		return false
	}
	for _, b := range p.Blocks {
		if b == attack {
			return true
		}
	}
	return false
}

// KnownItem reports whether the name exists in the catalog.
func KnownItem(name string) bool {
	_, ok := Catalog[name]
	return ok
}
