package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clemgrim/veillee/internal/model"
)

// DuelRepo handles duel pairing and decision database operations.
type DuelRepo struct {
	db *sql.DB
}

// NewDuelRepo creates a DuelRepo.
func NewDuelRepo(db *sql.DB) *DuelRepo {
	return &DuelRepo{db: db}
}

// Create inserts a new duel pairing.
func (r *DuelRepo) Create(ctx context.Context, id, gameID string, round, seatA, seatB int, final bool) (*model.Duel, error) {
	var d model.Duel
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO duels (id, game_id, round, seat_a, seat_b, final)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, game_id, round, seat_a, seat_b, final, created_at`,
		id, gameID, round, seatA, seatB, final,
	).Scan(&d.ID, &d.GameID, &d.Round, &d.SeatA, &d.SeatB, &d.Final, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create duel: %w", err)
	}
	return &d, nil
}

// FindByID returns a duel by ID.
func (r *DuelRepo) FindByID(ctx context.Context, id string) (*model.Duel, error) {
	var d model.Duel
	var decA, decB sql.NullBool
	err := r.db.QueryRowContext(ctx,
		`SELECT id, game_id, round, seat_a, seat_b, decision_a, decision_b, final,
		        delta_a, delta_b, confiscated_a, confiscated_b, resolved_at, created_at
		 FROM duels WHERE id = $1`, id,
	).Scan(&d.ID, &d.GameID, &d.Round, &d.SeatA, &d.SeatB, &decA, &decB, &d.Final,
		&d.DeltaA, &d.DeltaB, &d.ConfiscatedA, &d.ConfiscatedB, &d.ResolvedAt, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find duel: %w", err)
	}
	if decA.Valid {
		d.DecisionA = &decA.Bool
	}
	if decB.Valid {
		d.DecisionB = &decB.Bool
	}
	return &d, nil
}

// ListByGame returns all duels of a game in creation order.
func (r *DuelRepo) ListByGame(ctx context.Context, gameID string) ([]model.Duel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, round, seat_a, seat_b, decision_a, decision_b, final,
		        delta_a, delta_b, confiscated_a, confiscated_b, resolved_at, created_at
		 FROM duels WHERE game_id = $1 ORDER BY created_at`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list duels: %w", err)
	}
	defer rows.Close()

	var duels []model.Duel
	for rows.Next() {
		var d model.Duel
		var decA, decB sql.NullBool
		if err := rows.Scan(&d.ID, &d.GameID, &d.Round, &d.SeatA, &d.SeatB, &decA, &decB, &d.Final,
			&d.DeltaA, &d.DeltaB, &d.ConfiscatedA, &d.ConfiscatedB, &d.ResolvedAt, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan duel: %w", err)
		}
		if decA.Valid {
			d.DecisionA = &decA.Bool
		}
		if decB.Valid {
			d.DecisionB = &decB.Bool
		}
		duels = append(duels, d)
	}
	return duels, rows.Err()
}

// SetDecision records one participant's search decision. The seat must
// belong to the duel; decisions on a resolved duel are rejected.
func (r *DuelRepo) SetDecision(ctx context.Context, id string, seat int, searches bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE duels SET
		   decision_a = CASE WHEN seat_a = $2 THEN $3 ELSE decision_a END,
		   decision_b = CASE WHEN seat_b = $2 THEN $3 ELSE decision_b END
		 WHERE id = $1 AND resolved_at IS NULL AND (seat_a = $2 OR seat_b = $2)`,
		id, seat, searches,
	)
	if err != nil {
		return fmt.Errorf("set duel decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set duel decision rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set duel decision: duel %s not open for seat %d", id, seat)
	}
	return nil
}

// Resolve stores the outcome. Fails when the duel was already resolved.
func (r *DuelRepo) Resolve(ctx context.Context, id string, deltaA, deltaB, confiscatedA, confiscatedB int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE duels SET delta_a = $1, delta_b = $2, confiscated_a = $3, confiscated_b = $4, resolved_at = now()
		 WHERE id = $5 AND resolved_at IS NULL`,
		deltaA, deltaB, confiscatedA, confiscatedB, id,
	)
	if err != nil {
		return fmt.Errorf("resolve duel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve duel rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("resolve duel: duel %s already resolved", id)
	}
	return nil
}
