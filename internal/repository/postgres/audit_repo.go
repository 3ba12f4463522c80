package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clemgrim/veillee/internal/model"
)

// AuditRepo handles the append-only narrative streams.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append inserts one narrative entry for the given audience.
func (r *AuditRepo) Append(ctx context.Context, gameID string, round int, audience, message string) (*model.AuditRecord, error) {
	var a model.AuditRecord
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO audit_log (game_id, round, audience, message)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, game_id, round, audience, message, created_at`,
		gameID, round, audience, message,
	).Scan(&a.ID, &a.GameID, &a.Round, &a.Audience, &a.Message, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}
	return &a, nil
}

// ListByGame returns a game's entries for one audience in insertion
// order. The master stream is a strict superset of the public one, so
// privileged readers pass AudienceMaster and also read the public rows.
func (r *AuditRepo) ListByGame(ctx context.Context, gameID, audience string) ([]model.AuditRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, round, audience, message, created_at
		 FROM audit_log
		 WHERE game_id = $1 AND (audience = $2 OR audience = 'public')
		 ORDER BY created_at, id`, gameID, audience,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var a model.AuditRecord
		if err := rows.Scan(&a.ID, &a.GameID, &a.Round, &a.Audience, &a.Message, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
