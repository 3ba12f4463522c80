package engine

import (
	"errors"
	"testing"
)

func TestPhaseCycleForet(t *testing.T) {
	steps := []struct {
		from, to Phase
		wraps    bool
	}{
		{PhaseStakes, PhasePositions, false},
		{PhasePositions, PhaseCombat, false},
		{PhaseCombat, PhaseShop, false},
		{PhaseShop, PhaseStakes, true},
	}
	for _, s := range steps {
		next, wrapped, err := NextPhase(GameForet, s.from)
		if err != nil {
			t.Fatalf("NextPhase(%s): %v", s.from, err)
		}
		if next != s.to || wrapped != s.wraps {
			t.Errorf("NextPhase(%s) = %s, %v; want %s, %v", s.from, next, wrapped, s.to, s.wraps)
		}
	}
}

func TestPhaseSingleCycleWraps(t *testing.T) {
	next, wrapped, err := NextPhase(GameRivieres, PhaseCrossing)
	if err != nil {
		t.Fatalf("NextPhase: %v", err)
	}
	if next != PhaseCrossing || !wrapped {
		t.Errorf("single-phase cycle should wrap onto itself, got %s, %v", next, wrapped)
	}
}

func TestValidateTransitionRejectsSkips(t *testing.T) {
	if err := ValidateTransition(GameForet, PhaseStakes, PhaseCombat); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("skip should be illegal, got %v", err)
	}
	if err := ValidateTransition(GameForet, PhaseCombat, PhasePositions); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("rewind should be illegal, got %v", err)
	}
	if err := ValidateTransition(GameForet, PhaseStakes, PhasePositions); err != nil {
		t.Errorf("forward step rejected: %v", err)
	}
}

func TestUnknownGameType(t *testing.T) {
	if _, err := FirstPhase(GameType("belote")); !errors.Is(err, ErrUnknownGameType) {
		t.Errorf("got %v, want ErrUnknownGameType", err)
	}
}

func TestFirstPhase(t *testing.T) {
	p, err := FirstPhase(GameSheriff)
	if err != nil || p != PhaseDuel {
		t.Errorf("FirstPhase(sheriff) = %s, %v", p, err)
	}
}
