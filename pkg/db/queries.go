// Package db provides sqlite storage: users, ledger snapshots, audit trails and reports.
package db

import (
	"context"
	"database/sql"
	"errors"
)

var (
	ErrUserIDRequired = errors.New("user_id is required for data isolation")
	ErrNotFound       = errors.New("record not found")
)

// UserQueries provides user-isolated database queries.
type UserQueries struct {
	db *sql.DB
}

// NewUserQueries creates a new UserQueries instance.
func NewUserQueries(db *sql.DB) *UserQueries {
	return &UserQueries{db: db}
}

// ----------------------------------------
// Capital flow queries
// ----------------------------------------

// ListFlowsByUser returns a user's deposits and withdrawals, newest first.
// An empty asset lists every asset.
func (q *UserQueries) ListFlowsByUser(ctx context.Context, userID, asset string, limit int) ([]CapitalFlow, error) {
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, user_id, asset, kind, amount, fee, created_at
		FROM capital_flows
		WHERE user_id = ? AND (? = '' OR asset = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := q.db.QueryContext(ctx, query, userID, asset, asset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []CapitalFlow
	for rows.Next() {
		var f CapitalFlow
		if err := rows.Scan(&f.ID, &f.UserID, &f.Asset, &f.Kind, &f.Amount, &f.Fee, &f.CreatedAt); err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// CreateFlow records a flow. The user id is mandatory.
func (q *UserQueries) CreateFlow(ctx context.Context, f CapitalFlow) error {
	if f.UserID == "" {
		return ErrUserIDRequired
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO capital_flows (id, user_id, asset, kind, amount, fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.UserID, f.Asset, f.Kind, f.Amount, f.Fee, f.CreatedAt)
	return err
}
