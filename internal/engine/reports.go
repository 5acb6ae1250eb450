package engine

import (
	"context"
	"errors"

	"papertrade/internal/ledger"
	"papertrade/internal/strategy"
	"papertrade/pkg/db"
)

// DBReports keeps the latest cycle report per asset in sqlite.
type DBReports struct {
	db *db.Database
}

func NewDBReports(database *db.Database) *DBReports {
	return &DBReports{db: database}
}

// SaveReport implements strategy.ReportStore.
func (r *DBReports) SaveReport(ctx context.Context, res strategy.CycleResult) error {
	return r.db.UpsertCycleReport(ctx, db.CycleReport{
		Asset:          string(res.Asset),
		Recommendation: string(res.Recommendation),
		Summary:        res.Summary,
		Report:         res.Report,
		Failure:        res.Failure,
	})
}

func (r *DBReports) Get(ctx context.Context, asset ledger.AssetID) (*Report, error) {
	row, err := r.db.GetCycleReport(ctx, string(asset))
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Report{
		Asset:          ledger.AssetID(row.Asset),
		Recommendation: row.Recommendation,
		Summary:        row.Summary,
		Report:         row.Report,
		Failure:        row.Failure,
		CreatedAt:      row.CreatedAt,
	}, nil
}
