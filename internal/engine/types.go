package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
	"papertrade/internal/risk"
)

// Capital flow kinds as stored in the audit trail.
const (
	FlowDeposit  = "DEPOSIT"
	FlowWithdraw = "WITHDRAW"
)

// AssetSummary is the per-asset view returned by the engine.
type AssetSummary struct {
	Asset          ledger.AssetID  `json:"asset"`
	Symbol         string          `json:"symbol"`
	Price          decimal.Decimal `json:"price"`
	PriceAge       string          `json:"price_age,omitempty"`
	Capital        decimal.Decimal `json:"capital"`
	Position       decimal.Decimal `json:"position"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	Trades         int             `json:"trades"`
	Risk           risk.State      `json:"risk"`
}

// FlowResult describes a processed deposit or withdrawal.
type FlowResult struct {
	ID           string          `json:"id"`
	UserID       ledger.UserID   `json:"user_id"`
	Asset        ledger.AssetID  `json:"asset"`
	Kind         string          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Fee          decimal.Decimal `json:"fee"`
	FeePercent   decimal.Decimal `json:"fee_percent"`
	Net          decimal.Decimal `json:"net"`
	Capital      decimal.Decimal `json:"capital"`
	Ownership    decimal.Decimal `json:"ownership_percentage"`
	PersistError string          `json:"persist_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CapitalInfo is the capital held per asset plus the total.
type CapitalInfo struct {
	Total  decimal.Decimal                    `json:"total"`
	Assets map[ledger.AssetID]decimal.Decimal `json:"assets"`
}

// Report is the latest stored cycle report of an asset.
type Report struct {
	Asset          ledger.AssetID `json:"asset"`
	Recommendation string         `json:"recommendation"`
	Summary        string         `json:"summary"`
	Report         string         `json:"report"`
	Failure        string         `json:"failure,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RiskInfo is the active risk configuration and realized metrics.
type RiskInfo struct {
	Config  risk.RiskConfig  `json:"config"`
	Metrics risk.RiskMetrics `json:"metrics"`
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	Mode            string    `json:"mode"`
	Assets          []string  `json:"assets"`
	UseMockFeed     bool      `json:"use_mock_feed"`
	AdvisorEnabled  bool      `json:"advisor_enabled"`
	SnapshotBackend string    `json:"snapshot_backend"`
	Version         string    `json:"version"`
	ServerTime      time.Time `json:"server_time"`
	Uptime          string    `json:"uptime"`
}
