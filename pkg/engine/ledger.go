package engine

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNegativeBalance reports a debit that would push a balance below zero.
// Callers must pre-validate; hitting this is a data integrity defect.
var ErrNegativeBalance = errors.New("debit would make balance negative")

// PlayerState is the per-player resource ledger snapshot the resolvers
// read and mutate: tokens, health, score, and liveness.
type PlayerState struct {
	Seat   int    `json:"seat"`
	Name   string `json:"name"`
	Role   string `json:"role,omitempty"`
	IsBot  bool   `json:"is_bot"`
	Alive  bool   `json:"alive"`
	Tokens int    `json:"tokens"`
	Health int    `json:"health"`
	Score  int    `json:"score"`
}

// Ledger holds the mutable resource state of every player in a game
// instance, keyed by seat.
type Ledger struct {
	players map[int]*PlayerState
}

// NewLedger builds a ledger from player snapshots.
func NewLedger(players []PlayerState) *Ledger {
	l := &Ledger{players: make(map[int]*PlayerState, len(players))}
	for i := range players {
		p := players[i]
		l.players[p.Seat] = &p
	}
	return l
}

// Player returns the state for a seat, or nil if absent.
func (l *Ledger) Player(seat int) *PlayerState {
	return l.players[seat]
}

// Active returns all alive players ordered by seat.
func (l *Ledger) Active() []PlayerState {
	var out []PlayerState
	for _, p := range l.players {
		if p.Alive {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// All returns every player ordered by seat, removed ones included.
func (l *Ledger) All() []PlayerState {
	var out []PlayerState
	for _, p := range l.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seat < out[j].Seat })
	return out
}

// Debit removes tokens from a seat's balance, refusing to go negative.
func (l *Ledger) Debit(seat, amount int) error {
	p := l.players[seat]
	if p == nil {
		return fmt.Errorf("seat %d not in ledger", seat)
	}
	if amount < 0 || p.Tokens-amount < 0 {
		return fmt.Errorf("seat %d: debit %d from %d: %w", seat, amount, p.Tokens, ErrNegativeBalance)
	}
	p.Tokens -= amount
	return nil
}

// Credit adds tokens to a seat's balance.
func (l *Ledger) Credit(seat, amount int) error {
	p := l.players[seat]
	if p == nil {
		return fmt.Errorf("seat %d not in ledger", seat)
	}
	p.Tokens += amount
	return nil
}

// AddScore accumulates victory points for a seat.
func (l *Ledger) AddScore(seat, delta int) error {
	p := l.players[seat]
	if p == nil {
		return fmt.Errorf("seat %d not in ledger", seat)
	}
	p.Score += delta
	return nil
}

// Damage reduces health, flooring at zero; a floored player is marked
// removed. Returns whether the player was eliminated by this hit.
func (l *Ledger) Damage(seat, amount int) (bool, error) {
	p := l.players[seat]
	if p == nil {
		return false, fmt.Errorf("seat %d not in ledger", seat)
	}
	p.Health -= amount
	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
		return true, nil
	}
	return false, nil
}
