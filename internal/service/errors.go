package service

import "errors"

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameNotWaiting  = errors.New("game is not in waiting status")
	ErrGameNotActive   = errors.New("game is not active")
	ErrGameFull        = errors.New("game is full")
	ErrNotEnough       = errors.New("need at least 2 players to start")
	ErrNotHost         = errors.New("only the host can do this")
	ErrAlreadyJoined   = errors.New("already joined this game")
	ErrNotInGame       = errors.New("you are not in this game")
	ErrSeatNotFound    = errors.New("seat not found in this game")
	ErrWrongPhase      = errors.New("operation does not match the current phase")
	ErrPhaseLocked     = errors.New("phase is locked for resolution")
	ErrAlreadyResolved = errors.New("already resolved")
	ErrInvalidPayload  = errors.New("invalid submission payload")
	ErrDuelNotFound    = errors.New("duel not found")
	ErrDuelNotReady    = errors.New("duel is missing a decision")
	ErrDuelResolved    = errors.New("duel already resolved")
	ErrRiverFinished   = errors.New("river crossing cycle already finished")
)
