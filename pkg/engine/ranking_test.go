package engine

import (
	"reflect"
	"testing"
)

func TestRankBidsBasicOrdering(t *testing.T) {
	// Seats 1 and 2 tie at 50 (first tie group, broken ascending), seat 3
	// trails at 30.
	entries := RankBids([]BidInput{
		{Seat: 1, Requested: 50, Balance: 100, Submitted: true},
		{Seat: 2, Requested: 50, Balance: 100, Submitted: true},
		{Seat: 3, Requested: 30, Balance: 100, Submitted: true},
	})

	want := []RankingEntry{
		{Seat: 1, Rank: 1, EffectiveBid: 50, TieGroup: 1, Submitted: true},
		{Seat: 2, Rank: 2, EffectiveBid: 50, TieGroup: 1, Submitted: true},
		{Seat: 3, Rank: 3, EffectiveBid: 30, TieGroup: 0, Submitted: true},
	}
	if !reflect.DeepEqual(entries, want) {
		t.Errorf("got %+v, want %+v", entries, want)
	}
}

func TestRankBidsAlternatingTieDirection(t *testing.T) {
	// Two multi-member tie groups: first broken ascending, second descending.
	entries := RankBids([]BidInput{
		{Seat: 1, Requested: 40, Balance: 100, Submitted: true},
		{Seat: 2, Requested: 40, Balance: 100, Submitted: true},
		{Seat: 3, Requested: 10, Balance: 100, Submitted: true},
		{Seat: 4, Requested: 10, Balance: 100, Submitted: true},
	})

	order := make([]int, len(entries))
	for i, e := range entries {
		order[i] = e.Seat
	}
	want := []int{1, 2, 4, 3}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("seat order = %v, want %v", order, want)
	}
	if entries[0].TieGroup != 1 || entries[2].TieGroup != 2 {
		t.Errorf("tie groups = %d, %d, want 1, 2", entries[0].TieGroup, entries[2].TieGroup)
	}
}

func TestRankBidsSingletonDoesNotFlip(t *testing.T) {
	// A singleton between two tie groups must not flip the direction:
	// group at 40 ascending, singleton at 30, group at 10 descending.
	entries := RankBids([]BidInput{
		{Seat: 5, Requested: 40, Balance: 100, Submitted: true},
		{Seat: 2, Requested: 40, Balance: 100, Submitted: true},
		{Seat: 9, Requested: 30, Balance: 100, Submitted: true},
		{Seat: 1, Requested: 10, Balance: 100, Submitted: true},
		{Seat: 7, Requested: 10, Balance: 100, Submitted: true},
	})

	order := make([]int, len(entries))
	for i, e := range entries {
		order[i] = e.Seat
	}
	want := []int{2, 5, 9, 7, 1}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("seat order = %v, want %v", order, want)
	}
	if entries[2].TieGroup != 0 {
		t.Errorf("singleton tie group = %d, want 0", entries[2].TieGroup)
	}
}

func TestRankBidsOverBidForfeits(t *testing.T) {
	entries := RankBids([]BidInput{
		{Seat: 1, Requested: 120, Balance: 100, Submitted: true},
		{Seat: 2, Requested: 30, Balance: 100, Submitted: true},
	})

	if entries[0].Seat != 2 || entries[0].Rank != 1 {
		t.Errorf("expected seat 2 first, got %+v", entries[0])
	}
	if entries[1].Seat != 1 || entries[1].EffectiveBid != 0 {
		t.Errorf("over-bidder should rank last with effective 0, got %+v", entries[1])
	}
}

func TestRankBidsMissingSubmissionsTieAtZero(t *testing.T) {
	entries := RankBids([]BidInput{
		{Seat: 1, Requested: 0, Balance: 50, Submitted: false},
		{Seat: 2, Requested: 0, Balance: 50, Submitted: false},
		{Seat: 3, Requested: 20, Balance: 50, Submitted: true},
	})

	if entries[0].Seat != 3 {
		t.Fatalf("expected seat 3 first, got %+v", entries[0])
	}
	if entries[1].TieGroup == 0 || entries[1].TieGroup != entries[2].TieGroup {
		t.Errorf("non-submitters should share a tie group at 0, got %+v %+v", entries[1], entries[2])
	}
	if entries[1].Submitted || entries[2].Submitted {
		t.Error("non-submitters must carry the no-submission annotation")
	}
}

func TestRankBidsDeterministic(t *testing.T) {
	in := []BidInput{
		{Seat: 4, Requested: 25, Balance: 100, Submitted: true},
		{Seat: 1, Requested: 25, Balance: 100, Submitted: true},
		{Seat: 3, Requested: 25, Balance: 20, Submitted: true},
		{Seat: 2, Requested: 0, Balance: 100, Submitted: false},
	}
	first := RankBids(in)
	for i := 0; i < 10; i++ {
		if again := RankBids(in); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestEffectiveBid(t *testing.T) {
	cases := []struct {
		requested, balance, want int
	}{
		{50, 100, 50},
		{100, 100, 100},
		{101, 100, 0},
		{0, 100, 0},
		{-5, 100, 0},
	}
	for _, c := range cases {
		if got := EffectiveBid(c.requested, c.balance); got != c.want {
			t.Errorf("EffectiveBid(%d, %d) = %d, want %d", c.requested, c.balance, got, c.want)
		}
	}
}
