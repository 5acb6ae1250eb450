package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"papertrade/internal/ledger"
	"papertrade/pkg/db"
)

// SQLiteGateway stores the ledger document as one JSON row.
type SQLiteGateway struct {
	db          *db.Database
	legacyAsset ledger.AssetID
}

func NewSQLiteGateway(database *db.Database) *SQLiteGateway {
	return &SQLiteGateway{db: database}
}

// WithLegacyAsset names the asset that owns single-coin legacy snapshot data.
func (g *SQLiteGateway) WithLegacyAsset(asset ledger.AssetID) *SQLiteGateway {
	g.legacyAsset = asset
	return g
}

// Load returns nil, nil when nothing has been saved yet.
func (g *SQLiteGateway) Load(ctx context.Context) (*ledger.Snapshot, error) {
	row, err := g.db.LoadSnapshot(ctx)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap, err := MigrateSnapshotFor(row.Payload, g.legacyAsset)
	if err != nil {
		return nil, err
	}
	if row.Version != ledger.SnapshotVersion {
		// Rewrite once so later loads skip the migration.
		if err := g.Save(ctx, snap); err != nil {
			return nil, fmt.Errorf("rewrite migrated snapshot: %w", err)
		}
	}
	return snap, nil
}

func (g *SQLiteGateway) Save(ctx context.Context, snap *ledger.Snapshot) error {
	snap.Version = ledger.SnapshotVersion
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := g.db.SaveSnapshot(ctx, snap.Version, payload); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
