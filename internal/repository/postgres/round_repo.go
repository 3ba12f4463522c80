package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clemgrim/veillee/internal/model"
)

// RoundRepo handles per-round resolution artifacts: idempotence markers,
// locked submissions, rankings, positions, purchases, and inventories.
type RoundRepo struct {
	db *sql.DB
}

// NewRoundRepo creates a RoundRepo.
func NewRoundRepo(db *sql.DB) *RoundRepo {
	return &RoundRepo{db: db}
}

// MarkResolved inserts the idempotence marker for a resolution step.
// Returns false when a marker already exists, meaning this step was
// resolved before and the caller must not write results again.
func (r *RoundRepo) MarkResolved(ctx context.Context, gameID string, round int, step string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO resolutions (game_id, round, step) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		gameID, round, step,
	)
	if err != nil {
		return false, fmt.Errorf("mark resolved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark resolved rows: %w", err)
	}
	return n == 1, nil
}

// IsResolved reports whether a resolution marker exists.
func (r *RoundRepo) IsResolved(ctx context.Context, gameID string, round int, step string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM resolutions WHERE game_id = $1 AND round = $2 AND step = $3)`,
		gameID, round, step,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is resolved: %w", err)
	}
	return exists, nil
}

// SaveSubmissions inserts a batch of locked submissions.
func (r *RoundRepo) SaveSubmissions(ctx context.Context, subs []model.Submission) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO submissions (game_id, round, seat, category, requested, effective)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare insert submission: %w", err)
	}
	defer stmt.Close()

	for _, s := range subs {
		requested := s.Requested
		if len(requested) == 0 {
			requested = []byte(`null`)
		}
		effective := s.Effective
		if len(effective) == 0 {
			effective = []byte(`null`)
		}
		if _, err := stmt.ExecContext(ctx, s.GameID, s.Round, s.Seat, s.Category, []byte(requested), []byte(effective)); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
	}
	return tx.Commit()
}

// SubmissionsForRound returns the locked submissions of one category.
func (r *RoundRepo) SubmissionsForRound(ctx context.Context, gameID string, round int, category string) ([]model.Submission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, round, seat, category, requested, effective, created_at
		 FROM submissions WHERE game_id = $1 AND round = $2 AND category = $3 ORDER BY seat`,
		gameID, round, category,
	)
	if err != nil {
		return nil, fmt.Errorf("submissions for round: %w", err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.GameID, &s.Round, &s.Seat, &s.Category, &s.Requested, &s.Effective, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// SaveRanking inserts the priority ranking rows for a round.
func (r *RoundRepo) SaveRanking(ctx context.Context, entries []model.RankingEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rankings (game_id, round, seat, rank, effective_bid, tie_group, submitted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare insert ranking: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.GameID, e.Round, e.Seat, e.Rank, e.EffectiveBid, e.TieGroup, e.Submitted); err != nil {
			return fmt.Errorf("insert ranking: %w", err)
		}
	}
	return tx.Commit()
}

// RankingForRound returns the ranking rows of a round in rank order.
func (r *RoundRepo) RankingForRound(ctx context.Context, gameID string, round int) ([]model.RankingEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, round, seat, rank, effective_bid, tie_group, submitted
		 FROM rankings WHERE game_id = $1 AND round = $2 ORDER BY rank`,
		gameID, round,
	)
	if err != nil {
		return nil, fmt.Errorf("ranking for round: %w", err)
	}
	defer rows.Close()

	var entries []model.RankingEntry
	for rows.Next() {
		var e model.RankingEntry
		if err := rows.Scan(&e.GameID, &e.Round, &e.Seat, &e.Rank, &e.EffectiveBid, &e.TieGroup, &e.Submitted); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SavePositions inserts the final slot assignment for a round.
func (r *RoundRepo) SavePositions(ctx context.Context, positions []model.Position) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO positions (game_id, round, seat, slot, target_slot, attack_item, protect_item)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare insert position: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx, p.GameID, p.Round, p.Seat, p.Slot, p.TargetSlot,
			nullStr(p.AttackItem), nullStr(p.ProtectItem)); err != nil {
			return fmt.Errorf("insert position: %w", err)
		}
	}
	return tx.Commit()
}

// PositionsForRound returns the slot assignment of a round in slot order.
func (r *RoundRepo) PositionsForRound(ctx context.Context, gameID string, round int) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, round, seat, slot, target_slot, COALESCE(attack_item, ''), COALESCE(protect_item, '')
		 FROM positions WHERE game_id = $1 AND round = $2 ORDER BY slot`,
		gameID, round,
	)
	if err != nil {
		return nil, fmt.Errorf("positions for round: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		if err := rows.Scan(&p.GameID, &p.Round, &p.Seat, &p.Slot, &p.TargetSlot, &p.AttackItem, &p.ProtectItem); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// SavePurchases inserts the shop outcomes for a round, one row per
// request whether approved or denied.
func (r *RoundRepo) SavePurchases(ctx context.Context, purchases []model.Purchase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO purchases (game_id, round, seat, item, approved, price, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare insert purchase: %w", err)
	}
	defer stmt.Close()

	for _, p := range purchases {
		if _, err := stmt.ExecContext(ctx, p.GameID, p.Round, p.Seat, nullStr(p.Item), p.Approved, p.Price, p.Reason); err != nil {
			return fmt.Errorf("insert purchase: %w", err)
		}
	}
	return tx.Commit()
}

// PurchasesForRound returns the purchase rows of a round in seat order.
func (r *RoundRepo) PurchasesForRound(ctx context.Context, gameID string, round int) ([]model.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, round, seat, COALESCE(item, ''), approved, price, reason
		 FROM purchases WHERE game_id = $1 AND round = $2 ORDER BY seat`,
		gameID, round,
	)
	if err != nil {
		return nil, fmt.Errorf("purchases for round: %w", err)
	}
	defer rows.Close()

	var purchases []model.Purchase
	for rows.Next() {
		var p model.Purchase
		if err := rows.Scan(&p.GameID, &p.Round, &p.Seat, &p.Item, &p.Approved, &p.Price, &p.Reason); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// AddInventory adds qty of an item to a seat's inventory.
func (r *RoundRepo) AddInventory(ctx context.Context, gameID string, seat int, item string, qty int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO inventories (game_id, seat, item, quantity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (game_id, seat, item)
		 DO UPDATE SET quantity = inventories.quantity + EXCLUDED.quantity`,
		gameID, seat, item, qty,
	)
	if err != nil {
		return fmt.Errorf("add inventory: %w", err)
	}
	return nil
}

// Inventory returns a seat's owned item stacks.
func (r *RoundRepo) Inventory(ctx context.Context, gameID string, seat int) ([]model.InventoryItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT game_id, seat, item, quantity FROM inventories
		 WHERE game_id = $1 AND seat = $2 AND quantity > 0 ORDER BY item`,
		gameID, seat,
	)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	defer rows.Close()

	var items []model.InventoryItem
	for rows.Next() {
		var it model.InventoryItem
		if err := rows.Scan(&it.GameID, &it.Seat, &it.Item, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		it.Available = it.Quantity > 0
		items = append(items, it)
	}
	return items, rows.Err()
}

// ConsumeInventory decrements one unit of an item. Fails when the seat
// owns none.
func (r *RoundRepo) ConsumeInventory(ctx context.Context, gameID string, seat int, item string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE inventories SET quantity = quantity - 1
		 WHERE game_id = $1 AND seat = $2 AND item = $3 AND quantity > 0`,
		gameID, seat, item,
	)
	if err != nil {
		return fmt.Errorf("consume inventory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume inventory rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("consume inventory: seat %d owns no %s", seat, item)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
