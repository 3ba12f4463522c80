package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/repository"
)

// autoState is the per-game automation state.
type autoState int

const (
	autoIdle autoState = iota
	autoCountingDown
	autoResolving
	autoDisabled
)

type autoEntry struct {
	state      autoState
	generation uint64
}

// AutoController drives automatic resolution: timer expiries and
// all-ready early resolution invoke the current phase's orchestrator
// when auto mode is on. An explicit state machine with a generation
// counter guards against double invocation while a resolution is
// unconfirmed and discards continuations scheduled before a disable.
type AutoController struct {
	rounds *RoundService
	cache  repository.SubmissionCache

	mu    sync.Mutex
	games map[string]*autoEntry
}

// NewAutoController creates an AutoController.
func NewAutoController(rounds *RoundService, cache repository.SubmissionCache) *AutoController {
	return &AutoController{
		rounds: rounds,
		cache:  cache,
		games:  make(map[string]*autoEntry),
	}
}

func (c *AutoController) entry(gameID string) *autoEntry {
	e, ok := c.games[gameID]
	if !ok {
		e = &autoEntry{}
		c.games[gameID] = e
	}
	return e
}

// SetEnabled flips auto mode for a game. Disabling bumps the generation
// so any resolution already scheduled under the old generation cannot
// return the state machine to counting.
func (c *AutoController) SetEnabled(ctx context.Context, gameID string, enabled bool) error {
	if err := c.cache.SetAutoMode(ctx, gameID, enabled); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(gameID)
	e.generation++
	if enabled {
		if e.state != autoResolving {
			e.state = autoCountingDown
		}
	} else {
		e.state = autoDisabled
	}
	log.Info().Str("gameId", gameID).Bool("enabled", enabled).Msg("Auto mode changed")
	return nil
}

// begin moves a game into RESOLVING if it is not already there, returning
// the generation the caller must hand back to finish.
func (c *AutoController) begin(gameID string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(gameID)
	if e.state == autoResolving {
		return 0, false
	}
	e.state = autoResolving
	return e.generation, true
}

// finish returns a game to COUNTING_DOWN unless the generation moved
// (auto mode was toggled while the resolution ran).
func (c *AutoController) finish(gameID string, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(gameID)
	if e.generation != generation {
		return
	}
	e.state = autoCountingDown
}

// HandleExpiry runs the current phase's resolution for a game whose
// countdown ran out. Checked first: auto mode may have been disabled
// since the timer was armed.
func (c *AutoController) HandleExpiry(ctx context.Context, gameID string) {
	enabled, err := c.cache.AutoMode(ctx, gameID)
	if err != nil {
		log.Error().Err(err).Str("gameId", gameID).Msg("Failed to read auto mode")
		return
	}
	if !enabled {
		c.mu.Lock()
		c.entry(gameID).state = autoDisabled
		c.mu.Unlock()
		log.Debug().Str("gameId", gameID).Msg("Timer expired with auto mode off, ignoring")
		return
	}

	c.resolve(ctx, gameID, "timer expiry")
}

// MaybeResolveEarly resolves the current phase when every alive seat has
// marked ready. Called after each accepted submission.
func (c *AutoController) MaybeResolveEarly(ctx context.Context, gameID string) {
	enabled, err := c.cache.AutoMode(ctx, gameID)
	if err != nil || !enabled {
		return
	}

	game, err := c.rounds.gameRepo.FindByID(ctx, gameID)
	if err != nil || game == nil || game.Status != "active" {
		return
	}
	total := len(aliveSeats(game.Players))
	if total == 0 {
		return
	}
	ready, err := c.cache.ReadyCount(ctx, gameID)
	if err != nil {
		return
	}
	humans := 0
	for _, p := range alivePlayers(game.Players) {
		if !p.IsBot {
			humans++
		}
	}
	// Bots never mark ready; all humans in is as early as it gets.
	if int(ready) < humans {
		return
	}

	log.Info().Str("gameId", gameID).Int64("ready", ready).
		Int("humans", humans).Msg("All players ready, resolving early")
	c.resolve(ctx, gameID, "all ready")
}

func (c *AutoController) resolve(ctx context.Context, gameID, trigger string) {
	gen, ok := c.begin(gameID)
	if !ok {
		log.Debug().Str("gameId", gameID).Msg("Resolution already in flight, skipping")
		return
	}
	defer c.finish(gameID, gen)

	err := c.rounds.ResolveCurrent(ctx, gameID)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyResolved):
		log.Debug().Str("gameId", gameID).Str("trigger", trigger).
			Msg("Step already resolved by another invocation")
	default:
		log.Error().Err(err).Str("gameId", gameID).Str("trigger", trigger).
			Msg("Automatic resolution failed")
	}
}
