package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
)

const qtyPlaces = 8

func (c *Controller) stateLocked(asset ledger.AssetID) *State {
	st := c.states[asset]
	if st == nil {
		st = &State{}
		c.states[asset] = st
	}
	return st
}

// State returns a copy of the asset's risk state.
func (c *Controller) State(asset ledger.AssetID) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if st := c.states[asset]; st != nil {
		return *st
	}
	return State{}
}

// Seed initialises state for an asset the controller has not seen yet, typically from the
// ledger's trade history after a restart. Known assets are left alone.
func (c *Controller) Seed(asset ledger.AssetID, act ledger.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.states[asset]; ok {
		return
	}
	c.states[asset] = &State{
		LastTradeAt: act.LastTradeAt,
		LastSellAt:  act.LastSellAt,
		OpenedAt:    act.OpenedAt,
	}
}

// ObservePrice raises the high-water mark while a position is held.
func (c *Controller) ObservePrice(asset ledger.AssetID, price decimal.Decimal, holding bool) {
	if !holding {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(asset)
	if price.GreaterThan(st.HighestPrice) {
		st.HighestPrice = price
	}
}

// VolatilityMultiplier widens the stop in volatile markets and tightens it in calm ones.
func (c RiskConfig) VolatilityMultiplier(vol float64) float64 {
	switch {
	case vol > c.HighVolatility:
		return c.HighVolMultiplier
	case vol < c.LowVolatility:
		return c.LowVolMultiplier
	default:
		return c.NormalVolMultiplier
	}
}

// DynamicStop is avgCost * (1 - k*baseStop).
func (c RiskConfig) DynamicStop(avgCost decimal.Decimal, vol float64) decimal.Decimal {
	k := decimal.NewFromFloat(c.VolatilityMultiplier(vol))
	width := k.Mul(decimal.NewFromFloat(c.BaseStopLoss))
	return avgCost.Mul(decimal.NewFromInt(1).Sub(width))
}

// CheckStopLoss runs the dynamic stop, then the trailing stop. First match wins.
// Returns nil when nothing triggers or nothing is held.
func (c *Controller) CheckStopLoss(asset ledger.AssetID, v PositionView) *Exit {
	if !v.Position.IsPositive() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := *c.config
	st := c.stateLocked(asset)

	qty := v.Position.Mul(decimal.NewFromFloat(cfg.StopSellFraction)).Truncate(qtyPlaces)
	if !qty.IsPositive() {
		return nil
	}

	if v.AvgCost.IsPositive() {
		stop := cfg.DynamicStop(v.AvgCost, v.Volatility)
		st.StopLossPrice = stop
		if v.Price.LessThanOrEqual(stop) {
			return &Exit{
				Asset:        asset,
				Kind:         ExitDynamicStop,
				Quantity:     qty,
				TriggerPrice: stop,
				Reason: fmt.Sprintf("dynamic stop %s hit at %s (vol %.4f, k %.1f)",
					stop.StringFixed(2), v.Price.StringFixed(2), v.Volatility, cfg.VolatilityMultiplier(v.Volatility)),
			}
		}
	}

	if cfg.UseTrailingStop && st.HighestPrice.IsPositive() {
		trail := st.HighestPrice.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(cfg.TrailingPercent)))
		if v.Price.LessThanOrEqual(trail) {
			return &Exit{
				Asset:        asset,
				Kind:         ExitTrailingStop,
				Quantity:     qty,
				TriggerPrice: trail,
				Reason: fmt.Sprintf("trailing stop %s hit at %s (high %s)",
					trail.StringFixed(2), v.Price.StringFixed(2), st.HighestPrice.StringFixed(2)),
			}
		}
	}
	return nil
}

// CooldownElapsed reports whether enough time passed since the last trade.
func (c *Controller) CooldownElapsed(asset ledger.AssetID, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.states[asset]
	if st == nil || st.LastTradeAt.IsZero() {
		return true
	}
	return now.Sub(st.LastTradeAt) >= c.config.Cooldown()
}

// CheckPeriodic forces a partial sell when a position has gone too long without one.
// The clock starts at the last sell, or at the position's open time if it never sold.
func (c *Controller) CheckPeriodic(asset ledger.AssetID, position, price decimal.Decimal, now time.Time) *Exit {
	if !position.IsPositive() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := *c.config
	st := c.stateLocked(asset)

	ref := st.LastSellAt
	if ref.IsZero() || st.OpenedAt.After(ref) {
		ref = st.OpenedAt
	}
	if ref.IsZero() {
		// Position predates any recorded history; start the clock now.
		st.OpenedAt = now
		return nil
	}
	if now.Sub(ref) < cfg.SellOffAfter() {
		return nil
	}
	qty := position.Mul(decimal.NewFromFloat(cfg.PeriodicSellFraction)).Truncate(qtyPlaces)
	if !qty.IsPositive() {
		return nil
	}
	return &Exit{
		Asset:        asset,
		Kind:         ExitPeriodic,
		Quantity:     qty,
		TriggerPrice: price,
		Reason:       fmt.Sprintf("no sell for %s, trimming %.0f%%", now.Sub(ref).Truncate(time.Minute), cfg.PeriodicSellFraction*100),
	}
}

// RecordBuy stamps the trade time and opens the position clock if flat.
func (c *Controller) RecordBuy(asset ledger.AssetID, price decimal.Decimal, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(asset)
	st.LastTradeAt = at
	if st.OpenedAt.IsZero() {
		st.OpenedAt = at
	}
	if price.GreaterThan(st.HighestPrice) {
		st.HighestPrice = price
	}
}

// RecordSell stamps the sell time. A flat position clears stop, high-water mark and open time;
// trade timestamps survive so the cooldown still applies.
func (c *Controller) RecordSell(asset ledger.AssetID, remaining decimal.Decimal, at time.Time, kind ExitKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.stateLocked(asset)
	st.LastTradeAt = at
	st.LastSellAt = at
	if !remaining.IsPositive() {
		st.StopLossPrice = decimal.Zero
		st.HighestPrice = decimal.Zero
		st.OpenedAt = time.Time{}
	}
	switch kind {
	case ExitDynamicStop, ExitTrailingStop:
		c.metrics.StopExits++
	case ExitPeriodic:
		c.metrics.PeriodicExits++
	}
}

// Forget drops all state, used when the ledger is reset.
func (c *Controller) Forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = make(map[ledger.AssetID]*State)
}
