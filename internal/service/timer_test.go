package service

import (
	"context"
	"testing"
	"time"
)

func TestHandleExpiryKeyParsing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "foret", "stakes", "", human("g1", 1, 100), human("g1", 2, 100))
	auto := f.autoController()
	if err := auto.SetEnabled(ctx, "g1", true); err != nil {
		t.Fatal(err)
	}
	listener := NewTimerListener(nil, auto, f.gameRepo, f.cache)

	// Non-countdown keys are ignored.
	listener.handleExpiry(ctx, "session:abc")
	listener.handleExpiry(ctx, "game:g1:ready")
	if done, _ := f.roundRepo.IsResolved(ctx, "g1", 1, "bets"); done {
		t.Fatal("unrelated keys must not trigger resolution")
	}

	listener.handleExpiry(ctx, "game:g1:timer")
	if done, _ := f.roundRepo.IsResolved(ctx, "g1", 1, "bets"); !done {
		t.Fatal("countdown key expiry should resolve the phase")
	}
}

func TestPollerCatchesMissingTimers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.activeGame("g1", "foret", "stakes", "", human("g1", 1, 100), human("g1", 2, 100))
	f.activeGame("g2", "foret", "stakes", "", human("g2", 1, 100), human("g2", 2, 100))
	auto := f.autoController()
	for _, id := range []string{"g1", "g2"} {
		if err := auto.SetEnabled(ctx, id, true); err != nil {
			t.Fatal(err)
		}
	}
	// g1's countdown is still live; g2's key expired and the event was lost.
	if err := f.cache.SetTimer(ctx, "g1", time.Now().Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	listener := NewTimerListener(nil, auto, f.gameRepo, f.cache)

	listener.checkExpiredTimers(ctx)

	if done, _ := f.roundRepo.IsResolved(ctx, "g1", 1, "bets"); done {
		t.Error("game with a live countdown must not be resolved by the poller")
	}
	if done, _ := f.roundRepo.IsResolved(ctx, "g2", 1, "bets"); !done {
		t.Error("expected the poller to resolve the game with a missing countdown")
	}
}
