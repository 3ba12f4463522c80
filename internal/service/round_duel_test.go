package service

import (
	"context"
	"errors"
	"testing"

	"github.com/clemgrim/veillee/internal/model"
)

func TestPairDuelsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "sheriff", "duel", `{"max_rounds":3}`,
		human("g1", 1, 100), human("g1", 2, 100), human("g1", 3, 100), human("g1", 4, 100))

	duels, err := f.rounds.PairDuels(ctx, "g1")
	if err != nil {
		t.Fatalf("PairDuels: %v", err)
	}
	if len(duels) != 2 {
		t.Fatalf("expected 2 duels for 4 seats, got %d", len(duels))
	}
	for _, d := range duels {
		if d.Final {
			t.Errorf("duel %s flagged final in round 1 of 3", d.ID)
		}
	}

	again, err := f.rounds.PairDuels(ctx, "g1")
	if err != nil {
		t.Fatalf("second PairDuels: %v", err)
	}
	if len(again) != 2 || len(f.duelRepo.duels) != 2 {
		t.Errorf("re-pairing created new duels: returned %d, stored %d", len(again), len(f.duelRepo.duels))
	}
}

func TestPairDuelsOddSeatSitsOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "sheriff", "duel", `{"max_rounds":3}`,
		human("g1", 1, 100), human("g1", 2, 100), human("g1", 3, 100))

	duels, err := f.rounds.PairDuels(ctx, "g1")
	if err != nil {
		t.Fatalf("PairDuels: %v", err)
	}
	if len(duels) != 1 {
		t.Fatalf("expected 1 duel for 3 seats, got %d", len(duels))
	}
	public, _ := f.auditRepo.ListByGame(ctx, "g1", model.AudiencePublic)
	if len(public) == 0 {
		t.Error("expected a public audit record for the bye seat")
	}
}

func TestResolveDuelRequiresDecisions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "sheriff", "duel", `{"max_rounds":3}`,
		human("g1", 1, 100), human("g1", 2, 100), human("g1", 3, 100), human("g1", 4, 100))
	duels, err := f.rounds.PairDuels(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}

	err = f.rounds.ResolveDuel(ctx, "g1", duels[0].ID)
	if !errors.Is(err, ErrDuelNotReady) {
		t.Fatalf("ResolveDuel without decisions = %v, want ErrDuelNotReady", err)
	}
}

func TestResolveDuelScoresSearchFind(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "sheriff", "duel", `{"max_rounds":3}`,
		human("g1", 1, 100), human("g1", 2, 100), human("g1", 3, 100), human("g1", 4, 100))
	duels, err := f.rounds.PairDuels(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	var duel model.Duel
	for _, d := range duels {
		if d.SeatA == 1 && d.SeatB == 2 {
			duel = d
		}
	}
	if duel.ID == "" {
		t.Fatal("duel (1,2) not paired")
	}

	f.submit(t, "g1", 1, "duel", `{"searches":true,"declared":2,"actual":2}`)
	f.submit(t, "g1", 2, "duel", `{"searches":false,"declared":2,"actual":4}`)
	if err := f.duelRepo.SetDecision(ctx, duel.ID, 1, true); err != nil {
		t.Fatal(err)
	}
	if err := f.duelRepo.SetDecision(ctx, duel.ID, 2, false); err != nil {
		t.Fatal(err)
	}

	if err := f.rounds.ResolveDuel(ctx, "g1", duel.ID); err != nil {
		t.Fatalf("ResolveDuel: %v", err)
	}

	// Seat 2 carried 2 illegal units into a search: searcher +4, carrier -4,
	// both units confiscated.
	if got := f.playerAt(t, "g1", 1).Score; got != 4 {
		t.Errorf("seat 1 score = %d, want 4", got)
	}
	if got := f.playerAt(t, "g1", 2).Score; got != -4 {
		t.Errorf("seat 2 score = %d, want -4", got)
	}
	resolved, _ := f.duelRepo.FindByID(ctx, duel.ID)
	if resolved.ResolvedAt == nil || resolved.ConfiscatedB != 2 {
		t.Errorf("duel row = resolvedAt %v confiscatedB %d, want resolved with 2 confiscated", resolved.ResolvedAt, resolved.ConfiscatedB)
	}

	// The other duel of the round is still pending, so the phase holds.
	if g := f.game(t, "g1"); g.Round != 1 {
		t.Errorf("round advanced with a duel still pending")
	}

	err = f.rounds.ResolveDuel(ctx, "g1", duel.ID)
	if !errors.Is(err, ErrDuelResolved) {
		t.Fatalf("re-resolving duel = %v, want ErrDuelResolved", err)
	}
}

func TestResolveCurrentFillsSilentHumans(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "sheriff", "duel", `{"max_rounds":3}`,
		human("g1", 1, 100), human("g1", 2, 100), human("g1", 3, 100), human("g1", 4, 100))
	if _, err := f.rounds.PairDuels(ctx, "g1"); err != nil {
		t.Fatal(err)
	}

	// Timer path: no decisions anywhere; silent humans default to no-search
	// with legal cargo, so every duel resolves to zero deltas.
	if err := f.rounds.ResolveCurrent(ctx, "g1"); err != nil {
		t.Fatalf("ResolveCurrent: %v", err)
	}

	for _, seat := range []int{1, 2, 3, 4} {
		if got := f.playerAt(t, "g1", seat).Score; got != 0 {
			t.Errorf("seat %d score = %d, want 0", seat, got)
		}
	}
	g := f.game(t, "g1")
	if g.Status != "active" || g.Round != 2 {
		t.Fatalf("game = %s round %d, want active round 2", g.Status, g.Round)
	}
	// The next round's pairings exist already.
	next := 0
	for _, d := range f.duelRepo.duels {
		if d.Round == 2 {
			next++
		}
	}
	if next != 2 {
		t.Errorf("round 2 pairings = %d, want 2", next)
	}
}

func TestFinalDuelFinishesGame(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "sheriff", "duel", `{"max_rounds":1}`,
		human("g1", 1, 100), human("g1", 2, 100))
	duels, err := f.rounds.PairDuels(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(duels) != 1 || !duels[0].Final {
		t.Fatalf("expected one final duel, got %+v", duels)
	}

	f.submit(t, "g1", 1, "duel", `{"searches":true,"declared":2,"actual":2}`)
	f.submit(t, "g1", 2, "duel", `{"searches":false,"declared":2,"actual":3}`)
	if err := f.duelRepo.SetDecision(ctx, duels[0].ID, 1, true); err != nil {
		t.Fatal(err)
	}
	if err := f.duelRepo.SetDecision(ctx, duels[0].ID, 2, false); err != nil {
		t.Fatal(err)
	}

	if err := f.rounds.ResolveDuel(ctx, "g1", duels[0].ID); err != nil {
		t.Fatalf("ResolveDuel: %v", err)
	}

	g := f.game(t, "g1")
	if g.Status != "finished" {
		t.Fatalf("game status = %q, want finished after final duel", g.Status)
	}
	if g.Winner != "Player 1" {
		t.Errorf("winner = %q, want Player 1 (positive score)", g.Winner)
	}
	if !f.bcast.has("game_ended") {
		t.Error("expected game_ended broadcast")
	}
}

func TestResolveDuelUnknownID(t *testing.T) {
	f := newFixture()
	f.activeGame("g1", "sheriff", "duel", "", human("g1", 1, 100), human("g1", 2, 100))

	err := f.rounds.ResolveDuel(context.Background(), "g1", "nope")
	if !errors.Is(err, ErrDuelNotFound) {
		t.Fatalf("ResolveDuel with unknown id = %v, want ErrDuelNotFound", err)
	}
}
