// Package engine implements the round resolution rules shared by all
// Veillée game types: bid ranking, position and shop allocation, river
// crossing resolution, duel resolution, and the phase machine. The
// package is pure: no I/O, no clock, deterministic for a given input.
package engine

import "sort"

// BidInput is one player's stake submission for a priority ranking pass.
// Submitted is false when the player never sent a bet; the player still
// gets ranked with an effective bid of 0.
type BidInput struct {
	Seat      int
	Requested int
	Balance   int
	Submitted bool
}

// RankingEntry is one row of the computed priority ranking for a round.
// TieGroup is 0 for singletons and a shared positive id for members of
// the same multi-player tie.
type RankingEntry struct {
	Seat         int  `json:"seat"`
	Rank         int  `json:"rank"`
	EffectiveBid int  `json:"effective_bid"`
	TieGroup     int  `json:"tie_group"`
	Submitted    bool `json:"submitted"`
}

// EffectiveBid validates a requested bid against a balance. Over-bidding
// forfeits the bid entirely rather than spending part of it.
func EffectiveBid(requested, balance int) int {
	if requested < 0 || requested > balance {
		return 0
	}
	return requested
}

// RankBids converts a set of bids into a strict priority ordering.
//
// Players are sorted by effective bid descending. Ties are broken by seat
// number, in a direction that starts ascending and flips after every tie
// group with more than one member. Groups of size 1 leave the direction
// untouched. Ranks are the consecutive integers 1..N.
func RankBids(bids []BidInput) []RankingEntry {
	type scored struct {
		in  BidInput
		bid int
	}
	players := make([]scored, 0, len(bids))
	for _, b := range bids {
		players = append(players, scored{in: b, bid: EffectiveBid(b.Requested, b.Balance)})
	}

	// Group by effective bid, highest first.
	sort.Slice(players, func(i, j int) bool {
		if players[i].bid != players[j].bid {
			return players[i].bid > players[j].bid
		}
		return players[i].in.Seat < players[j].in.Seat
	})

	entries := make([]RankingEntry, 0, len(players))
	ascending := true
	tieGroupID := 0
	rank := 1

	for i := 0; i < len(players); {
		j := i
		for j < len(players) && players[j].bid == players[i].bid {
			j++
		}
		group := players[i:j]

		groupID := 0
		if len(group) > 1 {
			tieGroupID++
			groupID = tieGroupID
			if !ascending {
				// Seats were pre-sorted ascending within the group.
				for l, r := 0, len(group)-1; l < r; l, r = l+1, r-1 {
					group[l], group[r] = group[r], group[l]
				}
			}
			ascending = !ascending
		}

		for _, p := range group {
			entries = append(entries, RankingEntry{
				Seat:         p.in.Seat,
				Rank:         rank,
				EffectiveBid: p.bid,
				TieGroup:     groupID,
				Submitted:    p.in.Submitted,
			})
			rank++
		}
		i = j
	}

	return entries
}
