package engine

import (
	"errors"
	"testing"
)

func testLedger() *Ledger {
	return NewLedger([]PlayerState{
		{Seat: 1, Name: "Renard", Alive: true, Tokens: 100, Health: 3},
		{Seat: 2, Name: "Blaireau", Alive: true, Tokens: 50, Health: 2},
		{Seat: 3, Name: "Loutre", Alive: false, Tokens: 0, Health: 0},
	})
}

func TestLedgerDebitGuardsNegative(t *testing.T) {
	l := testLedger()
	if err := l.Debit(2, 60); !errors.Is(err, ErrNegativeBalance) {
		t.Errorf("over-debit error = %v, want ErrNegativeBalance", err)
	}
	if l.Player(2).Tokens != 50 {
		t.Errorf("failed debit must not mutate: %d", l.Player(2).Tokens)
	}
	if err := l.Debit(2, 50); err != nil {
		t.Fatalf("exact debit: %v", err)
	}
	if l.Player(2).Tokens != 0 {
		t.Errorf("tokens = %d, want 0", l.Player(2).Tokens)
	}
}

func TestLedgerDamageEliminates(t *testing.T) {
	l := testLedger()
	dead, err := l.Damage(2, 1)
	if err != nil || dead {
		t.Fatalf("first hit: dead=%v err=%v", dead, err)
	}
	dead, err = l.Damage(2, 5)
	if err != nil || !dead {
		t.Fatalf("lethal hit: dead=%v err=%v", dead, err)
	}
	p := l.Player(2)
	if p.Health != 0 || p.Alive {
		t.Errorf("health floors at 0 and player is removed: %+v", p)
	}
}

func TestLedgerActiveOrdering(t *testing.T) {
	active := testLedger().Active()
	if len(active) != 2 || active[0].Seat != 1 || active[1].Seat != 2 {
		t.Errorf("active = %+v", active)
	}
}

func TestLedgerUnknownSeat(t *testing.T) {
	l := testLedger()
	if err := l.Debit(9, 1); err == nil {
		t.Error("debit on unknown seat should fail")
	}
	if err := l.AddScore(9, 1); err == nil {
		t.Error("score on unknown seat should fail")
	}
}
