package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clemgrim/veillee/internal/model"
)

// RiverRepo handles river-crossing cycle state.
type RiverRepo struct {
	db *sql.DB
}

// NewRiverRepo creates a RiverRepo.
func NewRiverRepo(db *sql.DB) *RiverRepo {
	return &RiverRepo{db: db}
}

// Init creates the shared crossing state at level 1 and one seat row per
// participant. Safe to call once per game.
func (r *RiverRepo) Init(ctx context.Context, gameID string, seats []model.RiverSeat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO river_state (game_id, level, pot) VALUES ($1, 1, 0)
		 ON CONFLICT DO NOTHING`, gameID,
	); err != nil {
		return fmt.Errorf("init river state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO river_seats (game_id, seat, status) VALUES ($1, $2, 'in')
		 ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare insert river seat: %w", err)
	}
	defer stmt.Close()

	for _, s := range seats {
		if _, err := stmt.ExecContext(ctx, gameID, s.Seat); err != nil {
			return fmt.Errorf("insert river seat: %w", err)
		}
	}
	return tx.Commit()
}

// State returns the crossing state with its seat rows.
func (r *RiverRepo) State(ctx context.Context, gameID string) (*model.RiverState, error) {
	var st model.RiverState
	err := r.db.QueryRowContext(ctx,
		`SELECT game_id, level, pot FROM river_state WHERE game_id = $1`, gameID,
	).Scan(&st.GameID, &st.Level, &st.Pot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("river state: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, seat, status, stake, validated_levels, exit_order, talisman_used, lifeline_used
		 FROM river_seats WHERE game_id = $1 ORDER BY seat`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("river seats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s model.RiverSeat
		if err := rows.Scan(&s.GameID, &s.Seat, &s.Status, &s.Stake, &s.ValidatedLevels, &s.ExitOrder, &s.TalismanUsed, &s.LifelineUsed); err != nil {
			return nil, fmt.Errorf("scan river seat: %w", err)
		}
		st.Seats = append(st.Seats, s)
	}
	return &st, rows.Err()
}

// SetLevel moves the crossing to a new level with the carried pot.
func (r *RiverRepo) SetLevel(ctx context.Context, gameID string, level, pot int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE river_state SET level = $1, pot = $2 WHERE game_id = $3`,
		level, pot, gameID,
	)
	if err != nil {
		return fmt.Errorf("set river level: %w", err)
	}
	return nil
}

// UpdateSeat writes one participant's crossing progress.
func (r *RiverRepo) UpdateSeat(ctx context.Context, s model.RiverSeat) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE river_seats SET status = $1, stake = $2, validated_levels = $3, exit_order = $4,
		        talisman_used = $5, lifeline_used = $6
		 WHERE game_id = $7 AND seat = $8`,
		s.Status, s.Stake, s.ValidatedLevels, s.ExitOrder, s.TalismanUsed, s.LifelineUsed, s.GameID, s.Seat,
	)
	if err != nil {
		return fmt.Errorf("update river seat: %w", err)
	}
	return nil
}
