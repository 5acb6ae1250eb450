// Package engine provides a unified interface for the ledger and strategy core.
// The API layer only talks to the core through Service.
package engine

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
	"papertrade/internal/risk"
	"papertrade/internal/strategy"
	"papertrade/pkg/db"
)

var (
	ErrUnknownAsset = errors.New("asset is not configured")
	ErrNotFound     = errors.New("not found")
)

// Service defines the operations exposed to the API layer.
type Service interface {
	// Capital commands
	Deposit(ctx context.Context, user ledger.UserID, asset ledger.AssetID, amount decimal.Decimal) (*FlowResult, error)
	Withdraw(ctx context.Context, user ledger.UserID, asset ledger.AssetID, amount decimal.Decimal) (*FlowResult, error)

	// Asset queries
	ListAssets(ctx context.Context) ([]AssetSummary, error)
	GetAsset(ctx context.Context, asset ledger.AssetID) (*AssetSummary, error)
	GetPerformance(ctx context.Context, asset ledger.AssetID) (*ledger.PerformanceSummary, error)
	GetInvestment(ctx context.Context, user ledger.UserID, asset ledger.AssetID) (*ledger.InvestmentDetails, error)
	ListTrades(ctx context.Context, asset ledger.AssetID, limit int) ([]ledger.TradeRecord, error)
	GetReport(ctx context.Context, asset ledger.AssetID) (*Report, error)
	ListFlows(ctx context.Context, user ledger.UserID, asset ledger.AssetID, limit int) ([]db.CapitalFlow, error)
	GetCapital(ctx context.Context) (*CapitalInfo, error)

	// Strategy
	RunCycle(ctx context.Context, asset ledger.AssetID) (*strategy.CycleResult, error)
	GetRisk(ctx context.Context) (*RiskInfo, error)
	UpdateRiskConfig(ctx context.Context, cfg risk.RiskConfig) (*RiskInfo, error)

	// Admin
	Reset(ctx context.Context) error

	// System
	GetSystemStatus(ctx context.Context) *SystemStatus
}
