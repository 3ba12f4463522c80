package engine

import "sort"

// Denial reasons recorded on purchase records. These are business
// outcomes, not errors.
const (
	ReasonPurchased    = "purchased"
	ReasonNotOffered   = "item not in this round's offer"
	ReasonSoldOut      = "sold out"
	ReasonInsufficient = "insufficient tokens"
	ReasonNoRequest    = "no purchase requested"
)

// ShopRequest is a player's single want-to-buy intent for a round.
// An empty Item means the player declined to buy.
type ShopRequest struct {
	Seat int    `json:"seat"`
	Item string `json:"item,omitempty"`
}

// Offer maps item names to the quantity available this round.
type Offer map[string]int

// PriceTable resolves the applicable price for a buyer, with optional
// role-conditional overrides (e.g. a discounted price for one team).
type PriceTable struct {
	Base map[string]int
	// RoleOverrides maps role -> item -> price for that role.
	RoleOverrides map[string]map[string]int
}

// StandardPrices builds a price table from the item catalog.
func StandardPrices() PriceTable {
	base := make(map[string]int, len(Catalog))
	for name, it := range Catalog {
		base[name] = it.Price
	}
	return PriceTable{Base: base}
}

// PriceFor returns the price of an item for a buyer with the given role.
func (p PriceTable) PriceFor(item, role string) int {
	if byItem, ok := p.RoleOverrides[role]; ok {
		if price, ok := byItem[item]; ok {
			return price
		}
	}
	return p.Base[item]
}

// PurchaseRecord is the outcome of one shop request, approved or denied.
type PurchaseRecord struct {
	Seat     int    `json:"seat"`
	Item     string `json:"item,omitempty"`
	Approved bool   `json:"approved"`
	Price    int    `json:"price,omitempty"`
	Reason   string `json:"reason"`
}

// ShopResult carries the outcome of a full shop resolution pass.
type ShopResult struct {
	Records []PurchaseRecord
	// Debits maps seat -> tokens spent; Inventory maps seat -> item bought.
	Debits    map[int]int
	Inventory map[int]string
	// Remaining is the stock left after the pass.
	Remaining Offer
}

// ResolveShop allocates scarce shop stock to requesters strictly in
// priority-rank order, reusing the ranking computed at bet close. Every
// request produces a record; approvals additionally debit the buyer and
// grant one unit of inventory.
func ResolveShop(ranking []RankingEntry, requests map[int]ShopRequest, offer Offer, prices PriceTable, balances map[int]int, roles map[int]string) ShopResult {
	ordered := make([]RankingEntry, len(ranking))
	copy(ordered, ranking)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	remaining := make(Offer, len(offer))
	for item, qty := range offer {
		remaining[item] = qty
	}

	result := ShopResult{
		Debits:    make(map[int]int),
		Inventory: make(map[int]string),
		Remaining: remaining,
	}

	for _, entry := range ordered {
		req, ok := requests[entry.Seat]
		if !ok || req.Item == "" {
			result.Records = append(result.Records, PurchaseRecord{
				Seat:   entry.Seat,
				Reason: ReasonNoRequest,
			})
			continue
		}

		stock, offered := remaining[req.Item]
		switch {
		case !offered:
			result.Records = append(result.Records, PurchaseRecord{
				Seat: entry.Seat, Item: req.Item, Reason: ReasonNotOffered,
			})
		case stock <= 0:
			result.Records = append(result.Records, PurchaseRecord{
				Seat: entry.Seat, Item: req.Item, Reason: ReasonSoldOut,
			})
		default:
			price := prices.PriceFor(req.Item, roles[entry.Seat])
			if balances[entry.Seat] < price {
				result.Records = append(result.Records, PurchaseRecord{
					Seat: entry.Seat, Item: req.Item, Reason: ReasonInsufficient,
				})
				continue
			}
			balances[entry.Seat] -= price
			remaining[req.Item] = stock - 1
			result.Debits[entry.Seat] = price
			result.Inventory[entry.Seat] = req.Item
			result.Records = append(result.Records, PurchaseRecord{
				Seat: entry.Seat, Item: req.Item, Approved: true, Price: price, Reason: ReasonPurchased,
			})
		}
	}

	return result
}
