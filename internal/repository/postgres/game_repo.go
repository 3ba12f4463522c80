package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/clemgrim/veillee/internal/model"
)

// GameRepo handles game and game_player database operations.
type GameRepo struct {
	db *sql.DB
}

// NewGameRepo creates a GameRepo.
func NewGameRepo(db *sql.DB) *GameRepo {
	return &GameRepo{db: db}
}

// Create inserts a new game in waiting status.
func (r *GameRepo) Create(ctx context.Context, id, name, hostID, gameType string, settings json.RawMessage) (*model.Game, error) {
	if len(settings) == 0 {
		settings = json.RawMessage(`{}`)
	}
	var g model.Game
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO games (id, name, host_id, game_type, settings)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, name, host_id, game_type, step, status, round, phase, phase_locked, settings, created_at`,
		id, name, hostID, gameType, []byte(settings),
	).Scan(&g.ID, &g.Name, &g.HostID, &g.GameType, &g.Step, &g.Status, &g.Round, &g.Phase, &g.PhaseLocked, &g.Settings, &g.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}
	return &g, nil
}

// FindByID returns a game by ID with its players.
func (r *GameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	var g model.Game
	var winner sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, host_id, game_type, step, status, round, phase, phase_locked, settings, winner,
		        created_at, started_at, finished_at
		 FROM games WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.HostID, &g.GameType, &g.Step, &g.Status, &g.Round, &g.Phase, &g.PhaseLocked,
		&g.Settings, &winner, &g.CreatedAt, &g.StartedAt, &g.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	g.Winner = winner.String

	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Players = players
	return &g, nil
}

// ListOpen returns games in "waiting" status.
func (r *GameRepo) ListOpen(ctx context.Context) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, host_id, game_type, step, status, round, phase, phase_locked, settings, created_at
		 FROM games WHERE status = 'waiting' ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return nil, fmt.Errorf("list open games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.HostID, &g.GameType, &g.Step, &g.Status, &g.Round, &g.Phase, &g.PhaseLocked, &g.Settings, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListByUser returns all games a user is part of (as player or host).
func (r *GameRepo) ListByUser(ctx context.Context, userID string) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT g.id, g.name, g.host_id, g.game_type, g.step, g.status, g.round, g.phase, g.phase_locked,
		        g.settings, g.winner, g.created_at, g.started_at, g.finished_at
		 FROM games g LEFT JOIN game_players gp ON g.id = gp.game_id AND gp.user_id = $1
		 WHERE gp.user_id = $1 OR g.host_id = $1
		 ORDER BY g.created_at DESC LIMIT 50`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		var winner sql.NullString
		if err := rows.Scan(&g.ID, &g.Name, &g.HostID, &g.GameType, &g.Step, &g.Status, &g.Round, &g.Phase, &g.PhaseLocked,
			&g.Settings, &winner, &g.CreatedAt, &g.StartedAt, &g.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		g.Winner = winner.String
		games = append(games, g)
	}
	return games, rows.Err()
}

// ListActive returns all games with status 'active', including their players.
func (r *GameRepo) ListActive(ctx context.Context) ([]model.Game, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, host_id, game_type, step, status, round, phase, phase_locked, settings, created_at
		 FROM games WHERE status = 'active' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list active games: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.HostID, &g.GameType, &g.Step, &g.Status, &g.Round, &g.Phase, &g.PhaseLocked, &g.Settings, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		players, err := r.ListPlayers(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		g.Players = players
		games = append(games, g)
	}
	return games, rows.Err()
}

// AddPlayer inserts a seat row for a human or a bot.
func (r *GameRepo) AddPlayer(ctx context.Context, p model.Player) error {
	var userID sql.NullString
	if p.UserID != "" {
		userID = sql.NullString{String: p.UserID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO game_players (game_id, seat, user_id, display_name, is_bot, alive, tokens, health, score, role)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT DO NOTHING`,
		p.GameID, p.Seat, userID, p.DisplayName, p.IsBot, p.Alive, p.Tokens, p.Health, p.Score, p.Role,
	)
	if err != nil {
		return fmt.Errorf("add player: %w", err)
	}
	return nil
}

// ListPlayers returns all seats in a game in seat order.
func (r *GameRepo) ListPlayers(ctx context.Context, gameID string) ([]model.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, seat, user_id, display_name, is_bot, alive, tokens, health, score, role, joined_at
		 FROM game_players WHERE game_id = $1 ORDER BY seat`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.Player
	for rows.Next() {
		var p model.Player
		var userID, role sql.NullString
		if err := rows.Scan(&p.GameID, &p.Seat, &userID, &p.DisplayName, &p.IsBot, &p.Alive, &p.Tokens, &p.Health, &p.Score, &role, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.UserID = userID.String
		p.Role = role.String
		players = append(players, p)
	}
	return players, rows.Err()
}

// NextSeat returns the next free seat number for a game (1-based).
func (r *GameRepo) NextSeat(ctx context.Context, gameID string) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seat), 0) + 1 FROM game_players WHERE game_id = $1`, gameID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next seat: %w", err)
	}
	return next, nil
}

// RemovePlayer deletes a seat row from a waiting game.
func (r *GameRepo) RemovePlayer(ctx context.Context, gameID string, seat int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM game_players WHERE game_id = $1 AND seat = $2`,
		gameID, seat,
	)
	if err != nil {
		return fmt.Errorf("remove player: %w", err)
	}
	return nil
}

// UpdateLedger writes a seat's resource ledger. Only resolution
// orchestrators call this.
func (r *GameRepo) UpdateLedger(ctx context.Context, gameID string, seat, tokens, health, score int, alive bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE game_players SET tokens = $1, health = $2, score = $3, alive = $4
		 WHERE game_id = $5 AND seat = $6`,
		tokens, health, score, alive, gameID, seat,
	)
	if err != nil {
		return fmt.Errorf("update ledger: %w", err)
	}
	return nil
}

// Start flips a waiting game to active with round 1 in the given phase.
func (r *GameRepo) Start(ctx context.Context, gameID, phase string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'active', round = 1, phase = $1, phase_locked = false, started_at = now()
		 WHERE id = $2 AND status = 'waiting'`,
		phase, gameID,
	)
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	return nil
}

// SetPhase moves the round/phase cursor and the lock in one statement.
func (r *GameRepo) SetPhase(ctx context.Context, gameID string, round int, phase string, locked bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET round = $1, phase = $2, phase_locked = $3 WHERE id = $4`,
		round, phase, locked, gameID,
	)
	if err != nil {
		return fmt.Errorf("set phase: %w", err)
	}
	return nil
}

// SetPhaseLock flips the phase lock without moving the cursor.
func (r *GameRepo) SetPhaseLock(ctx context.Context, gameID string, locked bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET phase_locked = $1 WHERE id = $2`,
		locked, gameID,
	)
	if err != nil {
		return fmt.Errorf("set phase lock: %w", err)
	}
	return nil
}

// AdvanceStep moves an adventure to its next game type, resetting the
// round cursor.
func (r *GameRepo) AdvanceStep(ctx context.Context, gameID string, step int, gameType, phase string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET step = $1, game_type = $2, round = 1, phase = $3, phase_locked = false
		 WHERE id = $4`,
		step, gameType, phase, gameID,
	)
	if err != nil {
		return fmt.Errorf("advance step: %w", err)
	}
	return nil
}

// SetFinished marks a game as finished.
func (r *GameRepo) SetFinished(ctx context.Context, gameID, winner string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = 'finished', winner = $1, finished_at = now() WHERE id = $2`,
		winner, gameID,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// Delete removes a game and all associated data (cascades to players,
// submissions, results, audit entries).
func (r *GameRepo) Delete(ctx context.Context, gameID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	return nil
}
