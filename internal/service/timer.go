package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/clemgrim/veillee/internal/repository"
)

// TimerListener listens for Redis keyspace notifications on expired countdown
// keys and hands the game to the AutoController. Also runs a polling fallback
// to catch expirations if keyspace notifications are unavailable.
type TimerListener struct {
	rdb      *redis.Client
	auto     *AutoController
	gameRepo repository.GameRepository
	cache    repository.SubmissionCache
}

// NewTimerListener creates a TimerListener.
func NewTimerListener(rdb *redis.Client, auto *AutoController, gameRepo repository.GameRepository, cache repository.SubmissionCache) *TimerListener {
	return &TimerListener{rdb: rdb, auto: auto, gameRepo: gameRepo, cache: cache}
}

// Start begins listening for expired key events and runs a polling fallback.
func (t *TimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.pollExpiredTimers(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollExpiredTimers periodically checks active games whose countdown key is
// gone and triggers resolution for them.
func (t *TimerListener) pollExpiredTimers(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	log.Info().Msg("Countdown poller started (10s interval)")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Countdown poller stopped")
			return
		case <-ticker.C:
			t.checkExpiredTimers(ctx)
		}
	}
}

// checkExpiredTimers finds active games without a live countdown key. The key
// carries a short grace past the deadline, so a missing key means the deadline
// passed and the expiry event was lost.
func (t *TimerListener) checkExpiredTimers(ctx context.Context) {
	games, err := t.gameRepo.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active games")
		return
	}
	for _, g := range games {
		alive, err := t.cache.HasTimer(ctx, g.ID)
		if err != nil {
			log.Error().Err(err).Str("gameId", g.ID).Msg("Failed to check countdown key")
			continue
		}
		if alive {
			continue
		}
		log.Info().Str("gameId", g.ID).Str("phase", g.Phase).
			Int("round", g.Round).Msg("Poller found expired countdown")
		t.auto.HandleExpiry(ctx, g.ID)
	}
}

// handleExpiry processes an expired key. Only acts on game countdown keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	if !strings.HasPrefix(key, "game:") || !strings.HasSuffix(key, ":timer") {
		return
	}

	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return
	}
	gameID := parts[1]

	log.Info().Str("gameId", gameID).Msg("Countdown expired, triggering resolution")
	t.auto.HandleExpiry(ctx, gameID)
}
