package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
)

// ErrInvalidConfig wraps every rejection from RiskConfig.Validate.
var ErrInvalidConfig = errors.New("invalid risk config")

// ExitKind names the rule that forced an exit.
type ExitKind string

const (
	ExitDynamicStop  ExitKind = "DYNAMIC_STOP"
	ExitTrailingStop ExitKind = "TRAILING_STOP"
	ExitPeriodic     ExitKind = "PERIODIC"
)

// RiskConfig defines the exit, sizing and timing rules. Ratios are fractions (0.015 = 1.5%).
type RiskConfig struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`

	// Stops
	BaseStopLoss        float64 `json:"base_stop_loss"`
	HighVolatility      float64 `json:"high_volatility"`
	LowVolatility       float64 `json:"low_volatility"`
	HighVolMultiplier   float64 `json:"high_vol_multiplier"`
	LowVolMultiplier    float64 `json:"low_vol_multiplier"`
	NormalVolMultiplier float64 `json:"normal_vol_multiplier"`
	StopSellFraction    float64 `json:"stop_sell_fraction"`
	UseTrailingStop     bool    `json:"use_trailing_stop"`
	TrailingPercent     float64 `json:"trailing_percent"`

	// Timing
	CooldownSeconds      int     `json:"cooldown_seconds"`
	SellOffAfterHours    int     `json:"sell_off_after_hours"`
	PeriodicSellFraction float64 `json:"periodic_sell_fraction"`

	// Inputs
	VolatilityWindow    int     `json:"volatility_window"`
	DefaultVolatility   float64 `json:"default_volatility"`
	MinCapitalThreshold float64 `json:"min_capital_threshold"` // below this a buy uses all capital

	// Limits. 0 disables.
	MaxDailyLoss float64 `json:"max_daily_loss"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate rejects settings the stop and sizing math cannot work with.
func (c RiskConfig) Validate() error {
	var problem string
	switch {
	case c.BaseStopLoss <= 0 || c.BaseStopLoss >= 1:
		problem = fmt.Sprintf("base_stop_loss must be in (0, 1), got %v", c.BaseStopLoss)
	case c.TrailingPercent < 0 || c.TrailingPercent >= 1:
		problem = fmt.Sprintf("trailing_percent must be in [0, 1), got %v", c.TrailingPercent)
	case c.StopSellFraction <= 0 || c.StopSellFraction > 1:
		problem = fmt.Sprintf("stop_sell_fraction must be in (0, 1], got %v", c.StopSellFraction)
	case c.PeriodicSellFraction <= 0 || c.PeriodicSellFraction > 1:
		problem = fmt.Sprintf("periodic_sell_fraction must be in (0, 1], got %v", c.PeriodicSellFraction)
	case c.LowVolatility > c.HighVolatility:
		problem = fmt.Sprintf("low_volatility %v above high_volatility %v", c.LowVolatility, c.HighVolatility)
	case c.CooldownSeconds < 0 || c.SellOffAfterHours < 0 || c.VolatilityWindow < 0:
		problem = "durations and windows must not be negative"
	case c.MaxDailyLoss < 0 || c.MinCapitalThreshold < 0:
		problem = "limits must not be negative"
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, problem)
}

func (c RiskConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c RiskConfig) SellOffAfter() time.Duration {
	return time.Duration(c.SellOffAfterHours) * time.Hour
}

// DefaultConfig returns default risk configuration
func DefaultConfig() RiskConfig {
	return RiskConfig{
		Name:                 "default",
		BaseStopLoss:         0.015,
		HighVolatility:       0.10,
		LowVolatility:        0.05,
		HighVolMultiplier:    1.5,
		LowVolMultiplier:     0.8,
		NormalVolMultiplier:  1.0,
		StopSellFraction:     0.5,
		UseTrailingStop:      true,
		TrailingPercent:      0.015,
		CooldownSeconds:      900,
		SellOffAfterHours:    72,
		PeriodicSellFraction: 0.10,
		VolatilityWindow:     30,
		DefaultVolatility:    0.01,
		MinCapitalThreshold:  10,
		MaxDailyLoss:         0,
		IsActive:             true,
	}
}

// Tier maps a threshold to a fraction. Tiers are checked in order, first match wins.
type Tier struct {
	Threshold float64
	Fraction  float64
}

// ProfitTiers: sell 50% from a 5% margin, 30% from 3%, 10% from 1%. Inclusive.
var ProfitTiers = []Tier{
	{Threshold: 0.05, Fraction: 0.5},
	{Threshold: 0.03, Fraction: 0.3},
	{Threshold: 0.01, Fraction: 0.1},
}

// SizingTiers: capital fraction per signal strength, strictly above the threshold. Anything else gets 0.4.
var SizingTiers = []Tier{
	{Threshold: 0.8, Fraction: 0.8},
	{Threshold: 0.6, Fraction: 0.6},
}

const defaultSizingFraction = 0.4

// State is the per-asset risk memory. Zero times mean "never".
type State struct {
	StopLossPrice decimal.Decimal `json:"stop_loss_price"`
	HighestPrice  decimal.Decimal `json:"highest_price"`
	LastTradeAt   time.Time       `json:"last_trade_at"`
	LastSellAt    time.Time       `json:"last_sell_at"`
	OpenedAt      time.Time       `json:"opened_at"`
}

// PositionView is what the stop checks need to know about a holding.
type PositionView struct {
	Position   decimal.Decimal
	AvgCost    decimal.Decimal
	Price      decimal.Decimal
	Volatility float64
}

// Exit is a forced partial sell.
type Exit struct {
	Asset        ledger.AssetID  `json:"asset"`
	Kind         ExitKind        `json:"kind"`
	Quantity     decimal.Decimal `json:"quantity"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
	Reason       string          `json:"reason"`
}

// RiskMetrics tracks realized results
type RiskMetrics struct {
	Day         string  `json:"day"`
	DailyPnL    float64 `json:"daily_pnl"`
	DailyTrades int     `json:"daily_trades"`
	DailyLosses float64 `json:"daily_losses"`

	TotalRealizedPnL float64 `json:"total_realized_pnl"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxProfit        float64 `json:"max_profit"`

	StopExits     uint64 `json:"stop_exits"`
	PeriodicExits uint64 `json:"periodic_exits"`
}

// TradeResult represents an executed trade result.
type TradeResult struct {
	Asset ledger.AssetID
	Side  string
	Size  float64
	Price float64
	PnL   float64 // net of fees
	Fee   float64
}
