package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for live round state.
func submissionKey(gameID string, seat int, category string) string {
	return "game:" + gameID + ":sub:" + strconv.Itoa(seat) + ":" + category
}
func readyKey(gameID string) string    { return "game:" + gameID + ":ready" }
func timerKey(gameID string) string    { return "game:" + gameID + ":timer" }
func autoModeKey(gameID string) string { return "game:" + gameID + ":auto" }

// submissionCategories mirrors every category a seat can submit during
// any phase, used when clearing per-phase keys.
var submissionCategories = []string{"bet", "action", "shop", "duel", "crossing"}

// SetSubmission stores a seat's pre-lock intent for a category. Later
// writes replace earlier ones; nothing here is final until resolution
// locks the phase.
func (c *Client) SetSubmission(ctx context.Context, gameID string, seat int, category string, payload json.RawMessage) error {
	return c.rdb.Set(ctx, submissionKey(gameID, seat, category), []byte(payload), 0).Err()
}

// GetSubmission retrieves a seat's current intent for a category, or nil
// when none was submitted.
func (c *Client) GetSubmission(ctx context.Context, gameID string, seat int, category string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, submissionKey(gameID, seat, category)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return json.RawMessage(data), nil
}

// GetAllSubmissions retrieves intents from all seats that have submitted
// for a category. Seats without a submission are absent from the map.
func (c *Client) GetAllSubmissions(ctx context.Context, gameID string, category string, seats []int) (map[int]json.RawMessage, error) {
	result := make(map[int]json.RawMessage)
	for _, seat := range seats {
		data, err := c.GetSubmission(ctx, gameID, seat, category)
		if err != nil {
			return nil, err
		}
		if data != nil {
			result[seat] = data
		}
	}
	return result, nil
}

// MarkReady adds a seat to the ready set for the game.
func (c *Client) MarkReady(ctx context.Context, gameID string, seat int) error {
	return c.rdb.SAdd(ctx, readyKey(gameID), seat).Err()
}

// UnmarkReady removes a seat from the ready set.
func (c *Client) UnmarkReady(ctx context.Context, gameID string, seat int) error {
	return c.rdb.SRem(ctx, readyKey(gameID), seat).Err()
}

// ReadyCount returns how many seats have marked ready.
func (c *Client) ReadyCount(ctx context.Context, gameID string) (int64, error) {
	return c.rdb.SCard(ctx, readyKey(gameID)).Result()
}

// ReadySeats returns the seats that have marked ready.
func (c *Client) ReadySeats(ctx context.Context, gameID string) ([]int, error) {
	members, err := c.rdb.SMembers(ctx, readyKey(gameID)).Result()
	if err != nil {
		return nil, fmt.Errorf("ready seats: %w", err)
	}
	seats := make([]int, 0, len(members))
	for _, m := range members {
		seat, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("ready seats: bad member %q", m)
		}
		seats = append(seats, seat)
	}
	return seats, nil
}

// phaseGracePeriod is the extra time after the displayed deadline before
// phase resolution triggers, giving players a few seconds of leeway.
const phaseGracePeriod = 5 * time.Second

// SetTimer creates a timer key with a TTL. When the key expires,
// Redis keyspace notifications trigger phase resolution.
// The TTL includes a grace period so the key expires slightly after the displayed deadline.
func (c *Client) SetTimer(ctx context.Context, gameID string, deadline time.Time) error {
	ttl := time.Until(deadline) + phaseGracePeriod
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.rdb.Set(ctx, timerKey(gameID), deadline.Unix(), ttl).Err()
}

// ClearTimer removes the countdown timer for a game.
func (c *Client) ClearTimer(ctx context.Context, gameID string) error {
	return c.rdb.Del(ctx, timerKey(gameID)).Err()
}

// HasTimer reports whether the countdown key still exists. The poller
// uses this as the fallback expiry signal when keyspace notifications
// are not delivered.
func (c *Client) HasTimer(ctx context.Context, gameID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, timerKey(gameID)).Result()
	if err != nil {
		return false, fmt.Errorf("has timer: %w", err)
	}
	return n > 0, nil
}

// SetAutoMode flips the automatic resolution flag for a game.
func (c *Client) SetAutoMode(ctx context.Context, gameID string, enabled bool) error {
	if !enabled {
		return c.rdb.Del(ctx, autoModeKey(gameID)).Err()
	}
	return c.rdb.Set(ctx, autoModeKey(gameID), "1", 0).Err()
}

// AutoMode reports whether automatic resolution is on for a game.
func (c *Client) AutoMode(ctx context.Context, gameID string) (bool, error) {
	_, err := c.rdb.Get(ctx, autoModeKey(gameID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auto mode: %w", err)
	}
	return true, nil
}

// ClearPhaseData removes all submissions, ready status, and timer for a
// game. Called after phase resolution to prepare for the next phase.
func (c *Client) ClearPhaseData(ctx context.Context, gameID string, seats []int) error {
	keys := []string{readyKey(gameID), timerKey(gameID)}
	for _, seat := range seats {
		for _, cat := range submissionCategories {
			keys = append(keys, submissionKey(gameID, seat, cat))
		}
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// DeleteGameData removes all Redis data for a game (on game end).
func (c *Client) DeleteGameData(ctx context.Context, gameID string, seats []int) error {
	keys := []string{readyKey(gameID), timerKey(gameID), autoModeKey(gameID)}
	for _, seat := range seats {
		for _, cat := range submissionCategories {
			keys = append(keys, submissionKey(gameID, seat, cat))
		}
	}
	return c.rdb.Del(ctx, keys...).Err()
}
