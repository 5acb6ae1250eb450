package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/events"
	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
	"papertrade/internal/monitor"
	"papertrade/internal/risk"
	"papertrade/pkg/cache"
)

// Config tunes the cycle.
type Config struct {
	ExternalTimeout time.Duration // per external call
	HistoryLength   int           // closes fetched for volatility and prediction
}

func DefaultConfig() Config {
	return Config{ExternalTimeout: 10 * time.Second, HistoryLength: 60}
}

// Deps are the collaborators of the engine. Ledger, Risk, Prices, Predictor, Sentiment and
// Advisor are required; the rest are optional.
type Deps struct {
	Ledger     *ledger.Ledger
	Risk       *risk.Controller
	Prices     PriceProvider
	History    HistoryProvider
	Predictor  PredictionProvider
	Sentiment  SentimentProvider
	Advisor    RecommendationProvider
	Cache      *cache.ShardedPriceCache
	Indicators *indicators.Engine
	Reports    ReportStore
	Trades     TradeSink
	Bus        *events.Bus
	Metrics    *monitor.SystemMetrics
}

// Engine runs one decision cycle per asset. Cycles for the same asset are serialised;
// different assets run in parallel.
type Engine struct {
	d   Deps
	cfg Config

	// gate is held shared by every cycle and exclusively by Exclusive.
	gate    sync.RWMutex
	locksMu sync.Mutex
	locks   map[ledger.AssetID]*sync.Mutex

	now func() time.Time
}

// New validates deps and builds an engine.
func New(d Deps, cfg Config) (*Engine, error) {
	switch {
	case d.Ledger == nil:
		return nil, errors.New("strategy: ledger is required")
	case d.Risk == nil:
		return nil, errors.New("strategy: risk controller is required")
	case d.Prices == nil:
		return nil, errors.New("strategy: price provider is required")
	case d.Predictor == nil || d.Sentiment == nil || d.Advisor == nil:
		return nil, errors.New("strategy: predictor, sentiment and advisor are required")
	}
	if cfg.ExternalTimeout <= 0 {
		cfg.ExternalTimeout = DefaultConfig().ExternalTimeout
	}
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = DefaultConfig().HistoryLength
	}
	return &Engine{
		d:     d,
		cfg:   cfg,
		locks: make(map[ledger.AssetID]*sync.Mutex),
		now:   time.Now,
	}, nil
}

func (e *Engine) assetLock(asset ledger.AssetID) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu := e.locks[asset]
	if mu == nil {
		mu = &sync.Mutex{}
		e.locks[asset] = mu
	}
	return mu
}

// Exclusive runs fn after in-flight cycles finish and keeps new cycles out until it returns.
func (e *Engine) Exclusive(fn func() error) error {
	e.gate.Lock()
	defer e.gate.Unlock()
	return fn()
}

// Run executes one cycle. The returned result is non-nil even when err is set; its Report
// then describes the failure. Persistence failures do not fail the cycle and are reported
// in CycleResult.PersistErr instead.
func (e *Engine) Run(ctx context.Context, asset ledger.AssetID) (*CycleResult, error) {
	e.gate.RLock()
	defer e.gate.RUnlock()
	mu := e.assetLock(asset)
	mu.Lock()
	defer mu.Unlock()

	started := e.now()
	res := &CycleResult{
		Asset:          asset,
		Recommendation: ActionHold,
		Action:         ActionHold,
		StartedAt:      started,
	}
	err := e.run(ctx, res)
	res.Duration = e.now().Sub(started)
	e.finish(ctx, res, err)
	return res, err
}

func (e *Engine) run(ctx context.Context, res *CycleResult) error {
	asset := res.Asset
	e.d.Risk.Seed(asset, e.d.Ledger.Trades(asset).Activity())

	price, err := callExternal(ctx, e, SourcePrice, func(ctx context.Context) (decimal.Decimal, error) {
		return e.d.Prices.Price(ctx, asset)
	})
	if err == nil && !price.IsPositive() {
		err = fmt.Errorf("non-positive price %s", price)
	}
	if err != nil {
		return &SignalError{Source: SourcePrice, Err: err}
	}
	res.Price = price
	if e.d.Cache != nil {
		e.d.Cache.Set(string(asset), price)
	}

	acct := e.d.Ledger.Account(asset)
	e.d.Risk.ObservePrice(asset, price, acct.Position.IsPositive())
	if e.d.Indicators != nil {
		res.Indicators = e.d.Indicators.Update(string(asset), price.InexactFloat64())
	}

	cfg := e.d.Risk.GetConfig()
	closes := e.fetchCloses(ctx, asset)
	res.Volatility = cfg.DefaultVolatility
	if v, ok := indicators.Volatility(closes, cfg.VolatilityWindow); ok {
		res.Volatility = v
	}
	stats := e.fetchStats(ctx, asset)

	now := e.now()
	var details, label string
	view := risk.PositionView{Position: acct.Position, AvgCost: acct.AverageCost(), Price: price, Volatility: res.Volatility}
	if exit := e.d.Risk.CheckStopLoss(asset, view); exit != nil {
		res.Exit = exit
		res.Recommendation = ActionSell
		label = fmt.Sprintf("SELL (%s)", exitLabel(exit.Kind))
		details = e.executeExit(res, exit, now)
	} else if !e.d.Risk.CooldownElapsed(asset, now) {
		label = "HOLD (cooldown)"
		details = e.cooldownNote(asset, acct, now)
	} else {
		details, err = e.decide(ctx, res, acct, closes, stats, now)
		if err != nil {
			return err
		}
		label = string(res.Recommendation)
	}

	acct = e.d.Ledger.Account(asset)
	if exit := e.d.Risk.CheckPeriodic(asset, acct.Position, price, now); exit != nil {
		if res.Exit == nil {
			res.Exit = exit
		}
		details = strings.TrimSpace(details + "\n" + e.executeExit(res, exit, now))
	}

	if err := e.d.Ledger.Save(ctx); err != nil {
		res.PersistErr = err
	}

	acct = e.d.Ledger.Account(asset)
	res.Report, res.Summary = renderReport(reportInput{
		asset:          asset,
		price:          price,
		stats:          stats,
		prediction:     res.Prediction,
		sentiment:      res.Sentiment,
		volatility:     res.Volatility,
		ind:            res.Indicators,
		recommendation: label,
		capital:        acct.Capital,
		position:       acct.Position,
		details:        details,
		truncateNews:   true,
	})
	return nil
}

// decide gathers signals, asks the advisor and applies its answer.
func (e *Engine) decide(ctx context.Context, res *CycleResult, acct ledger.Account, closes []float64, stats *market.Stats, now time.Time) (string, error) {
	asset := res.Asset

	pred, err := callExternal(ctx, e, SourcePrediction, func(ctx context.Context) (Prediction, error) {
		return e.d.Predictor.Predict(ctx, asset, closes)
	})
	if err != nil {
		return "", &SignalError{Source: SourcePrediction, Err: err}
	}
	res.Prediction = &pred

	sent, err := callExternal(ctx, e, SourceSentiment, func(ctx context.Context) (Sentiment, error) {
		return e.d.Sentiment.Sentiment(ctx, asset)
	})
	if err != nil {
		return "", &SignalError{Source: SourceSentiment, Err: err}
	}
	res.Sentiment = &sent

	prelim, _ := renderReport(reportInput{
		asset:      asset,
		price:      res.Price,
		stats:      stats,
		prediction: &pred,
		sentiment:  &sent,
		volatility: res.Volatility,
		ind:        res.Indicators,
		capital:    acct.Capital,
		position:   acct.Position,
		details:    e.potentialTrade(res, acct, pred, sent),
	})

	dc := DecisionContext{
		Asset:      asset,
		Price:      res.Price,
		Prediction: pred,
		Sentiment:  sent,
		Capital:    acct.Capital,
		Position:   acct.Position,
		Volatility: res.Volatility,
		Report:     prelim,
	}
	rec, err := callExternal(ctx, e, SourceRecommendation, func(ctx context.Context) (Recommendation, error) {
		return e.d.Advisor.Decide(ctx, dc)
	})
	if err != nil {
		return "", &SignalError{Source: SourceRecommendation, Err: err}
	}
	rec.Action = ParseAction(string(rec.Action))
	res.Recommendation = rec.Action

	return e.apply(res, acct, rec, pred, sent, now), nil
}

// apply turns a recommendation into at most one ledger mutation. Ledger rejections degrade
// to HOLD with a note.
func (e *Engine) apply(res *CycleResult, acct ledger.Account, rec Recommendation, pred Prediction, sent Sentiment, now time.Time) string {
	asset := res.Asset
	name := strings.ToUpper(string(asset))
	price := res.Price
	holding := acct.Position.IsPositive()

	switch {
	case rec.Action == ActionBuy && !holding:
		if ok, why := e.d.Risk.BuyAllowed(); !ok {
			log.Printf("[strategy] %s BUY blocked: %s", asset, why)
			if e.d.Bus != nil {
				e.d.Bus.Publish(events.EventRiskAlert, RiskAlert{Asset: asset, Reason: why, At: now})
			}
			return fmt.Sprintf("BUY blocked: %s.\nCurrent capital: %s\nAction: No trade until the daily window resets.", why, money(acct.Capital))
		}
		strength := risk.SignalStrength(priceSignal(pred, price), sent.Score)
		qty, frac := e.d.Risk.BuyQuantity(acct.Capital, price, e.d.Ledger.Config().TradingFeeRate, strength)
		if !qty.IsPositive() {
			return fmt.Sprintf("BUY skipped: insufficient capital.\nCurrent capital: %s\nAction: No trade possible.", money(acct.Capital))
		}
		reason := fmt.Sprintf("recommendation BUY (strength %.1f, %.0f%% of capital)", strength, frac*100)
		trade, err := e.d.Ledger.SimulateBuy(asset, qty, price, reason)
		if err != nil {
			log.Printf("[strategy] %s BUY rejected by ledger: %v", asset, err)
			return fmt.Sprintf("BUY failed: %v.\nCurrent position: %s %s\nAction: No trade possible.", err, acct.Position.StringFixed(8), name)
		}
		res.Action = ActionBuy
		e.afterTrade(res, trade, nil, now)
		stop := e.d.Risk.GetConfig().DynamicStop(price, res.Volatility)
		return fmt.Sprintf("Simulated BUY: %s %s at %s\nUsing %.0f%% of capital: %s (signal strength %.1f)\nFee: %s | Total cost: %s\nDynamic stop near %s\nAction: Manually buy on an exchange.",
			trade.Quantity.StringFixed(8), name, money(price),
			frac*100, money(acct.Capital.Mul(decimal.NewFromFloat(frac))), strength,
			money(trade.Fee), money(trade.TotalCost), money(stop))

	case rec.Action == ActionSell && holding:
		avg := acct.AverageCost()
		qty, frac := risk.TierSellQuantity(acct.Position, avg, price)
		margin := price.Sub(avg).Div(avg).Mul(decimal.NewFromInt(100))
		if !qty.IsPositive() {
			return fmt.Sprintf("SELL held: margin %s%% is below the first profit tier.\nCurrent position: %s %s\nAction: No manual trade required.",
				margin.StringFixed(2), acct.Position.StringFixed(8), name)
		}
		reason := fmt.Sprintf("recommendation SELL (tier %.0f%% at margin %s%%)", frac*100, margin.StringFixed(2))
		trade, err := e.d.Ledger.SimulateSell(asset, qty, price, reason)
		if err != nil {
			log.Printf("[strategy] %s SELL rejected by ledger: %v", asset, err)
			return fmt.Sprintf("SELL failed: %v.\nCurrent position: %s %s\nAction: No trade possible.", err, acct.Position.StringFixed(8), name)
		}
		res.Action = ActionSell
		e.afterTrade(res, trade, nil, now)
		return fmt.Sprintf("Simulated SELL: %s %s at %s (%.0f%% of position, margin %s%%)\nNet proceeds: %s | Profit: %s\nAction: Manually sell on an exchange.",
			trade.Quantity.StringFixed(8), name, money(price), frac*100, margin.StringFixed(2),
			money(trade.NetProceeds), money(trade.Profit))

	default:
		return fmt.Sprintf("No trade executed (Recommendation: %s).\nCurrent position: %s %s\nAction: No manual trade required.",
			rec.Action, acct.Position.StringFixed(8), name)
	}
}

// executeExit sells the quantity a risk rule demanded.
func (e *Engine) executeExit(res *CycleResult, exit *risk.Exit, now time.Time) string {
	name := strings.ToUpper(string(res.Asset))
	trade, err := e.d.Ledger.SimulateSell(res.Asset, exit.Quantity, res.Price, exit.Reason)
	if err != nil {
		log.Printf("[strategy] %s %s exit rejected by ledger: %v", res.Asset, exit.Kind, err)
		return fmt.Sprintf("%s exit failed: %v.\nAction: No trade possible.", exit.Kind, err)
	}
	res.Action = ActionSell
	e.afterTrade(res, trade, exit, now)
	return fmt.Sprintf("%s: sold %s %s at %s\nTrigger: %s | Net proceeds: %s | Profit: %s\nReason: %s",
		exitLabel(exit.Kind), trade.Quantity.StringFixed(8), name, money(res.Price),
		money(exit.TriggerPrice), money(trade.NetProceeds), money(trade.Profit), exit.Reason)
}

// afterTrade updates risk state, metrics, audit and the event bus for an executed fill.
func (e *Engine) afterTrade(res *CycleResult, trade ledger.TradeRecord, exit *risk.Exit, now time.Time) {
	asset := res.Asset
	res.Trade = &trade

	pnl := 0.0
	if trade.Type == ledger.TradeBuy {
		e.d.Risk.RecordBuy(asset, trade.Price, now)
	} else {
		var kind risk.ExitKind
		if exit != nil {
			kind = exit.Kind
		}
		e.d.Risk.RecordSell(asset, e.d.Ledger.Position(asset), now, kind)
		pnl = trade.Profit.InexactFloat64()
	}
	err := e.d.Risk.UpdateMetrics(risk.TradeResult{
		Asset: asset,
		Side:  string(trade.Type),
		Size:  trade.Quantity.InexactFloat64(),
		Price: trade.Price.InexactFloat64(),
		PnL:   pnl,
		Fee:   trade.Fee.InexactFloat64(),
	})
	if err != nil {
		log.Printf("[strategy] %s risk metrics update failed: %v", asset, err)
	}

	monitor.TradesTotal.WithLabelValues(string(asset), string(trade.Type)).Inc()
	if e.d.Metrics != nil {
		e.d.Metrics.IncrementTrades()
	}
	if exit != nil {
		monitor.RiskExitsTotal.WithLabelValues(string(asset), string(exit.Kind)).Inc()
		if e.d.Metrics != nil {
			e.d.Metrics.IncrementRiskExits()
		}
	}
	if e.d.Trades != nil {
		e.d.Trades.RecordTrade(trade)
	}
	if e.d.Bus != nil {
		e.d.Bus.Publish(events.EventTradeExecuted, trade)
		if exit != nil {
			e.d.Bus.Publish(events.EventStopTriggered, *exit)
		}
	}
}

// potentialTrade describes what a BUY or SELL would do, for the advisor's benefit.
func (e *Engine) potentialTrade(res *CycleResult, acct ledger.Account, pred Prediction, sent Sentiment) string {
	name := strings.ToUpper(string(res.Asset))
	price := res.Price
	feeRate := e.d.Ledger.Config().TradingFeeRate
	one := decimal.NewFromInt(1)

	if !acct.Position.IsPositive() {
		strength := risk.SignalStrength(priceSignal(pred, price), sent.Score)
		qty, frac := e.d.Risk.BuyQuantity(acct.Capital, price, feeRate, strength)
		if !qty.IsPositive() {
			return "Potential BUY: Insufficient capital to buy."
		}
		committed := qty.Mul(price).Mul(one.Add(feeRate))
		stop := e.d.Risk.GetConfig().DynamicStop(price, res.Volatility)
		sale := qty.Mul(decimal.NewFromFloat(pred.PredictedClose)).Mul(one.Sub(feeRate))
		profit := sale.Sub(committed)
		pct := decimal.Zero
		if committed.IsPositive() {
			pct = profit.Div(committed).Mul(decimal.NewFromInt(100))
		}
		return fmt.Sprintf("Potential BUY:\n- Quantity: %s %s at %s\n- Using %.0f%% of capital: %s (signal strength %.1f)\n- Stop-Loss: %s\n- Potential Sale at $%.2f: %s\n- Potential Profit: %s (%s%%)",
			qty.StringFixed(8), name, money(price), frac*100, money(committed), strength,
			money(stop), pred.PredictedClose, money(sale), money(profit), pct.StringFixed(2))
	}

	avg := acct.AverageCost()
	qty, frac := risk.TierSellQuantity(acct.Position, avg, price)
	full := acct.Position.Mul(price).Mul(one.Sub(feeRate))
	tier := "below first profit tier"
	if qty.IsPositive() {
		tier = fmt.Sprintf("%.0f%% (%s %s)", frac*100, qty.StringFixed(8), name)
	}
	return fmt.Sprintf("Potential SELL:\n- Position: %s %s (avg cost %s)\n- Tiered sell: %s\n- Net Proceeds (full position): %s",
		acct.Position.StringFixed(8), name, money(avg), tier, money(full))
}

func (e *Engine) cooldownNote(asset ledger.AssetID, acct ledger.Account, now time.Time) string {
	st := e.d.Risk.State(asset)
	since := now.Sub(st.LastTradeAt)
	left := e.d.Risk.GetConfig().Cooldown() - since
	return fmt.Sprintf("Cooldown active: last trade %s ago, next decision in %s.\nCurrent position: %s %s\nAction: No manual trade required.",
		since.Truncate(time.Second), left.Truncate(time.Second), acct.Position.StringFixed(8), strings.ToUpper(string(asset)))
}

func exitLabel(k risk.ExitKind) string {
	switch k {
	case risk.ExitDynamicStop:
		return "Dynamic stop-loss"
	case risk.ExitTrailingStop:
		return "Trailing stop-loss"
	case risk.ExitPeriodic:
		return "Periodic sell-off"
	default:
		return string(k)
	}
}

// priceSignal is the predicted relative move.
func priceSignal(pred Prediction, price decimal.Decimal) float64 {
	p := price.InexactFloat64()
	if p <= 0 {
		return 0
	}
	return (pred.PredictedClose - p) / p
}

func (e *Engine) fetchCloses(ctx context.Context, asset ledger.AssetID) []float64 {
	if e.d.History == nil {
		return nil
	}
	closes, err := callExternal(ctx, e, "history", func(ctx context.Context) ([]float64, error) {
		return e.d.History.Closes(ctx, asset, e.cfg.HistoryLength)
	})
	if err != nil {
		log.Printf("[strategy] %s history unavailable, using default volatility: %v", asset, err)
		return nil
	}
	return closes
}

func (e *Engine) fetchStats(ctx context.Context, asset ledger.AssetID) *market.Stats {
	sp, ok := e.d.Prices.(StatsProvider)
	if !ok {
		return nil
	}
	st, err := callExternal(ctx, e, "stats", func(ctx context.Context) (market.Stats, error) {
		return sp.Stats24h(ctx, asset)
	})
	if err != nil {
		log.Printf("[strategy] %s 24h stats unavailable: %v", asset, err)
		return nil
	}
	return &st
}

// finish records metrics, publishes the outcome and stores the report.
func (e *Engine) finish(ctx context.Context, res *CycleResult, err error) {
	asset := res.Asset
	name := strings.ToUpper(string(asset))

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		res.Failure = err.Error()
		res.Report = fmt.Sprintf("Report for %s:\n- Cycle aborted: %v", name, err)
		res.Summary = fmt.Sprintf("%s | Cycle aborted: %v", name, err)
		log.Printf("[strategy] %s cycle aborted: %v", asset, err)
	} else {
		log.Printf("[strategy] %s", res.Summary)
	}

	monitor.CyclesTotal.WithLabelValues(string(asset), outcome).Inc()
	monitor.CycleDuration.WithLabelValues(string(asset)).Observe(res.Duration.Seconds())
	monitor.TotalCapital.Set(e.d.Ledger.TotalCapital().InexactFloat64())
	if e.d.Metrics != nil {
		e.d.Metrics.CycleLatency.RecordDuration(res.Duration)
		e.d.Metrics.IncrementCycles(err != nil)
		if res.PersistErr != nil {
			e.d.Metrics.IncrementPersistFailures()
		}
	}

	if e.d.Bus != nil {
		if err != nil {
			e.d.Bus.Publish(events.EventCycleFailed, CycleFailure{Asset: asset, Error: err.Error()})
		} else {
			e.d.Bus.Publish(events.EventCycleCompleted, *res)
		}
		if res.PersistErr != nil {
			e.d.Bus.Publish(events.EventPersistenceFailure, PersistenceFailure{Asset: asset, Error: res.PersistErr.Error()})
		}
	}

	if e.d.Reports != nil {
		if serr := e.d.Reports.SaveReport(ctx, *res); serr != nil {
			log.Printf("[strategy] %s report not stored: %v", asset, serr)
		}
	}
}

// callExternal bounds fn with the external timeout and records its latency.
func callExternal[T any](ctx context.Context, e *Engine, source string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.ExternalTimeout)
	defer cancel()

	start := time.Now()
	v, err := fn(cctx)
	elapsed := time.Since(start)

	monitor.ObserveExternal(source, elapsed, err)
	if e.d.Metrics != nil {
		e.d.Metrics.ExternalLatency.RecordDuration(elapsed)
	}
	return v, err
}
