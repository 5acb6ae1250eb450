package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// User represents an application user.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SnapshotRow is the single persisted ledger document.
type SnapshotRow struct {
	Version   int
	Payload   []byte
	UpdatedAt time.Time
}

// TradeAudit is an append-only copy of a simulated fill. Money columns are decimal strings.
type TradeAudit struct {
	ID        string
	Asset     string
	Side      string
	Qty       string
	Price     string
	Fee       string
	Profit    string
	Reason    string
	CreatedAt time.Time
}

// CapitalFlow is a deposit or withdrawal made by a user.
type CapitalFlow struct {
	ID        string
	UserID    string
	Asset     string
	Kind      string // DEPOSIT or WITHDRAW
	Amount    string
	Fee       string
	CreatedAt time.Time
}

// CycleReport is the latest strategy report for an asset.
type CycleReport struct {
	Asset          string
	Recommendation string
	Summary        string
	Report         string
	Failure        string
	CreatedAt      time.Time
}

// CreateUser inserts a new user row.
func (d *Database) CreateUser(ctx context.Context, u User) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, boolToInt(u.IsAdmin))
	return err
}

// GetUserByEmail returns a user by email or nil if not found.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return d.scanUser(d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, is_admin, created_at, updated_at
		FROM users WHERE email = ?
	`, strings.ToLower(email)))
}

// GetUserByID returns a user by id or nil if not found.
func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	return d.scanUser(d.DB.QueryRowContext(ctx, `
		SELECT id, email, password_hash, is_admin, created_at, updated_at
		FROM users WHERE id = ?
	`, id))
}

// CountUsers is used to promote the first registered user to admin.
func (d *Database) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (d *Database) scanUser(row *sql.Row) (*User, error) {
	var u User
	var admin int
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &admin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.IsAdmin = admin == 1
	return &u, nil
}

// LoadSnapshot returns the stored ledger document or ErrNotFound.
func (d *Database) LoadSnapshot(ctx context.Context) (*SnapshotRow, error) {
	var row SnapshotRow
	var payload string
	err := d.DB.QueryRowContext(ctx, `
		SELECT version, payload, updated_at FROM ledger_snapshots WHERE id = 1
	`).Scan(&row.Version, &payload, &row.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	row.Payload = []byte(payload)
	return &row, nil
}

// SaveSnapshot replaces the stored ledger document.
func (d *Database) SaveSnapshot(ctx context.Context, version int, payload []byte) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO ledger_snapshots (id, version, payload, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, version, string(payload))
	return err
}

// ListTradeAudit returns the newest fills for an asset, newest first.
func (d *Database) ListTradeAudit(ctx context.Context, asset string, limit int) ([]TradeAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, asset, side, qty, price, fee, profit, reason, created_at
		FROM trade_audit WHERE asset = ?
		ORDER BY created_at DESC LIMIT ?
	`, asset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []TradeAudit
	for rows.Next() {
		var t TradeAudit
		if err := rows.Scan(&t.ID, &t.Asset, &t.Side, &t.Qty, &t.Price, &t.Fee, &t.Profit, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpsertCycleReport stores the latest report for an asset.
func (d *Database) UpsertCycleReport(ctx context.Context, r CycleReport) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO cycle_reports (asset, recommendation, summary, report, failure, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(asset) DO UPDATE SET
			recommendation = excluded.recommendation,
			summary = excluded.summary,
			report = excluded.report,
			failure = excluded.failure,
			created_at = excluded.created_at
	`, r.Asset, r.Recommendation, r.Summary, r.Report, r.Failure)
	return err
}

// GetCycleReport returns the latest report for an asset or ErrNotFound.
func (d *Database) GetCycleReport(ctx context.Context, asset string) (*CycleReport, error) {
	var r CycleReport
	err := d.DB.QueryRowContext(ctx, `
		SELECT asset, recommendation, summary, report, failure, created_at
		FROM cycle_reports WHERE asset = ?
	`, asset).Scan(&r.Asset, &r.Recommendation, &r.Summary, &r.Report, &r.Failure, &r.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// DeleteLedgerData removes everything derived from the ledger. Users and risk config stay.
func (d *Database) DeleteLedgerData(ctx context.Context) error {
	return d.InTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"ledger_snapshots", "trade_audit", "capital_flows", "cycle_reports"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
