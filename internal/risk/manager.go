package risk

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"papertrade/internal/ledger"
)

const dayLayout = "2006-01-02"

// Controller owns the risk configuration, per-asset risk state and realized metrics.
type Controller struct {
	db      *sql.DB
	config  *RiskConfig
	metrics *RiskMetrics
	states  map[ledger.AssetID]*State
	mu      sync.RWMutex
	now     func() time.Time
}

// NewController creates a risk controller backed by the DB.
// If no active config exists it inserts DefaultConfig.
func NewController(db *sql.DB) (*Controller, error) {
	c := &Controller{
		db:      db,
		metrics: &RiskMetrics{},
		states:  make(map[ledger.AssetID]*State),
		now:     time.Now,
	}

	if err := c.LoadConfig(); err != nil {
		if err == sql.ErrNoRows {
			def := DefaultConfig()
			if err := c.insertDefaultConfig(def); err != nil {
				return nil, fmt.Errorf("insert default risk config: %w", err)
			}
			if err := c.LoadConfig(); err != nil {
				return nil, fmt.Errorf("load risk config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("load risk config: %w", err)
		}
	}

	cfg := c.GetConfig()
	log.Printf("Risk controller initialized: base_stop=%.1f%% cooldown=%ds sell_off_after=%dh",
		cfg.BaseStopLoss*100, cfg.CooldownSeconds, cfg.SellOffAfterHours)

	return c, nil
}

// NewInMemory creates a risk controller without DB persistence.
func NewInMemory(cfg RiskConfig) *Controller {
	return &Controller{
		config:  &cfg,
		metrics: &RiskMetrics{},
		states:  make(map[ledger.AssetID]*State),
		now:     time.Now,
	}
}

// LoadConfig loads the active risk configuration row.
func (c *Controller) LoadConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		cfg := DefaultConfig()
		c.config = &cfg
		return nil
	}

	cfg := &RiskConfig{}
	query := `
		SELECT id, name, base_stop_loss, high_volatility, low_volatility,
		       high_vol_multiplier, low_vol_multiplier, normal_vol_multiplier,
		       stop_sell_fraction, use_trailing_stop, trailing_percent,
		       cooldown_seconds, sell_off_after_hours, periodic_sell_fraction,
		       volatility_window, default_volatility, min_capital_threshold,
		       max_daily_loss, is_active, created_at, updated_at
		FROM risk_configs
		WHERE is_active = 1
		LIMIT 1
	`

	var useTrailing, isActive int
	err := c.db.QueryRow(query).Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.BaseStopLoss,
		&cfg.HighVolatility,
		&cfg.LowVolatility,
		&cfg.HighVolMultiplier,
		&cfg.LowVolMultiplier,
		&cfg.NormalVolMultiplier,
		&cfg.StopSellFraction,
		&useTrailing,
		&cfg.TrailingPercent,
		&cfg.CooldownSeconds,
		&cfg.SellOffAfterHours,
		&cfg.PeriodicSellFraction,
		&cfg.VolatilityWindow,
		&cfg.DefaultVolatility,
		&cfg.MinCapitalThreshold,
		&cfg.MaxDailyLoss,
		&isActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return err
	}
	cfg.UseTrailingStop = useTrailing == 1
	cfg.IsActive = isActive == 1

	c.config = cfg
	return nil
}

func (c *Controller) insertDefaultConfig(cfg RiskConfig) error {
	if c.db == nil {
		c.config = &cfg
		return nil
	}
	_, err := c.db.Exec(`
		INSERT INTO risk_configs (
			name, base_stop_loss, high_volatility, low_volatility,
			high_vol_multiplier, low_vol_multiplier, normal_vol_multiplier,
			stop_sell_fraction, use_trailing_stop, trailing_percent,
			cooldown_seconds, sell_off_after_hours, periodic_sell_fraction,
			volatility_window, default_volatility, min_capital_threshold,
			max_daily_loss, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	`,
		cfg.Name,
		cfg.BaseStopLoss,
		cfg.HighVolatility,
		cfg.LowVolatility,
		cfg.HighVolMultiplier,
		cfg.LowVolMultiplier,
		cfg.NormalVolMultiplier,
		cfg.StopSellFraction,
		boolToInt(cfg.UseTrailingStop),
		cfg.TrailingPercent,
		cfg.CooldownSeconds,
		cfg.SellOffAfterHours,
		cfg.PeriodicSellFraction,
		cfg.VolatilityWindow,
		cfg.DefaultVolatility,
		cfg.MinCapitalThreshold,
		cfg.MaxDailyLoss,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetConfig returns a copy of current config.
func (c *Controller) GetConfig() RiskConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.config
}

// UpdateConfig validates cfg and replaces the active configuration row.
func (c *Controller) UpdateConfig(ctx context.Context, cfg RiskConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	if c.db == nil {
		c.config = &cfg
		c.mu.Unlock()
		return nil
	}
	id := c.config.ID
	c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, `
		UPDATE risk_configs
		SET base_stop_loss = ?, high_volatility = ?, low_volatility = ?,
		    high_vol_multiplier = ?, low_vol_multiplier = ?, normal_vol_multiplier = ?,
		    stop_sell_fraction = ?, use_trailing_stop = ?, trailing_percent = ?,
		    cooldown_seconds = ?, sell_off_after_hours = ?, periodic_sell_fraction = ?,
		    volatility_window = ?, default_volatility = ?, min_capital_threshold = ?,
		    max_daily_loss = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = 1
	`,
		cfg.BaseStopLoss,
		cfg.HighVolatility,
		cfg.LowVolatility,
		cfg.HighVolMultiplier,
		cfg.LowVolMultiplier,
		cfg.NormalVolMultiplier,
		cfg.StopSellFraction,
		boolToInt(cfg.UseTrailingStop),
		cfg.TrailingPercent,
		cfg.CooldownSeconds,
		cfg.SellOffAfterHours,
		cfg.PeriodicSellFraction,
		cfg.VolatilityWindow,
		cfg.DefaultVolatility,
		cfg.MinCapitalThreshold,
		cfg.MaxDailyLoss,
		id,
	)
	if err != nil {
		return fmt.Errorf("update risk config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update risk config: no active row with id %d", id)
	}
	return c.LoadConfig()
}

// UpdateMetrics updates in-memory + DB risk metrics for a realized trade.
// trade.PnL should be net of fees.
func (c *Controller) UpdateMetrics(trade TradeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked()

	net := trade.PnL

	c.metrics.DailyTrades++
	c.metrics.DailyPnL += net
	if net < 0 {
		c.metrics.DailyLosses += -net
	}

	c.metrics.TotalRealizedPnL += net
	if c.metrics.TotalRealizedPnL > c.metrics.MaxProfit {
		c.metrics.MaxProfit = c.metrics.TotalRealizedPnL
	}
	drawdown := c.metrics.MaxProfit - c.metrics.TotalRealizedPnL
	if drawdown > c.metrics.MaxDrawdown {
		c.metrics.MaxDrawdown = drawdown
	}

	if c.db == nil {
		return nil
	}

	today := c.metrics.Day
	query := `
		INSERT INTO risk_metrics (date, daily_pnl, daily_trades, daily_wins, daily_losses)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			daily_pnl = daily_pnl + ?,
			daily_trades = daily_trades + 1,
			daily_wins = daily_wins + ?,
			daily_losses = daily_losses + ?
	`

	wins := 0
	losses := 0.0
	if net > 0 {
		wins = 1
	} else if net < 0 {
		losses = -net
	}

	_, err := c.db.Exec(query,
		today, net, wins, losses,
		net, wins, losses,
	)
	return err
}

// ResetDailyMetrics zeroes the daily counters. Totals and drawdown are kept.
func (c *Controller) ResetDailyMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetDailyLocked(c.now().Format(dayLayout))
}

func (c *Controller) resetDailyLocked(day string) {
	if c.metrics.DailyTrades > 0 {
		log.Printf("Daily metrics reset. Prev %s: PnL=%.2f Trades=%d Losses=%.2f",
			c.metrics.Day, c.metrics.DailyPnL, c.metrics.DailyTrades, c.metrics.DailyLosses)
	}
	c.metrics.Day = day
	c.metrics.DailyPnL = 0
	c.metrics.DailyTrades = 0
	c.metrics.DailyLosses = 0
}

// rollDayLocked starts a new daily window when the calendar day changed.
func (c *Controller) rollDayLocked() {
	if today := c.now().Format(dayLayout); today != c.metrics.Day {
		c.resetDailyLocked(today)
	}
}

// BuyAllowed reports whether new entries are permitted. Exits are never gated.
func (c *Controller) BuyAllowed() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked()
	limit := c.config.MaxDailyLoss
	if limit > 0 && c.metrics.DailyLosses >= limit {
		return false, fmt.Sprintf("daily loss limit reached: %.2f/%.2f", c.metrics.DailyLosses, limit)
	}
	return true, ""
}

// GetMetrics returns current metrics snapshot.
func (c *Controller) GetMetrics() RiskMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollDayLocked()
	return *c.metrics
}
