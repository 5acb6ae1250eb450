package engine

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrade/internal/events"
	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/risk"
	"papertrade/internal/scheduler"
	"papertrade/internal/strategy"
	"papertrade/pkg/cache"
	"papertrade/pkg/db"
)

// CycleGate keeps strategy cycles out while fn runs.
type CycleGate interface {
	Exclusive(fn func() error) error
}

// FlowRecorder receives every deposit and withdrawal, e.g. the audit writer.
type FlowRecorder interface {
	RecordFlow(f db.CapitalFlow)
}

// Impl implements the Service interface by composing the core modules.
type Impl struct {
	ledger     *ledger.Ledger
	risk       *risk.Controller
	scheduler  *scheduler.Scheduler
	cycles     CycleGate
	prices     strategy.PriceProvider
	cache      *cache.ShardedPriceCache
	indicators *indicators.Engine
	reports    *DBReports
	flows      FlowRecorder
	bus        *events.Bus
	db         *db.Database
	symbols    func(ledger.AssetID) string

	maxPriceAge    time.Duration
	requestTimeout time.Duration

	meta      SystemStatus
	startedAt time.Time
}

// Config holds the configuration for creating an engine implementation.
type Config struct {
	Ledger     *ledger.Ledger
	Risk       *risk.Controller
	Scheduler  *scheduler.Scheduler
	Cycles     CycleGate
	Prices     strategy.PriceProvider
	Cache      *cache.ShardedPriceCache
	Indicators *indicators.Engine
	Flows      FlowRecorder
	Bus        *events.Bus
	DB         *db.Database
	Symbols    func(ledger.AssetID) string
	Meta       SystemStatus

	// MaxPriceAge is how old a cached price may be before queries fetch a fresh one.
	MaxPriceAge time.Duration
	// PriceTimeout bounds price fetches made on behalf of queries.
	PriceTimeout time.Duration
}

// NewImpl creates a new engine implementation.
func NewImpl(cfg Config) *Impl {
	if cfg.MaxPriceAge <= 0 {
		cfg.MaxPriceAge = 5 * time.Minute
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = 10 * time.Second
	}
	if cfg.Symbols == nil {
		cfg.Symbols = func(a ledger.AssetID) string { return "" }
	}
	e := &Impl{
		ledger:         cfg.Ledger,
		risk:           cfg.Risk,
		scheduler:      cfg.Scheduler,
		cycles:         cfg.Cycles,
		prices:         cfg.Prices,
		cache:          cfg.Cache,
		indicators:     cfg.Indicators,
		flows:          cfg.Flows,
		bus:            cfg.Bus,
		db:             cfg.DB,
		symbols:        cfg.Symbols,
		maxPriceAge:    cfg.MaxPriceAge,
		requestTimeout: cfg.PriceTimeout,
		meta:           cfg.Meta,
		startedAt:      time.Now(),
	}
	if cfg.DB != nil {
		e.reports = NewDBReports(cfg.DB)
	}
	return e
}

// Reports exposes the report store so the strategy engine can write to it.
func (e *Impl) Reports() *DBReports { return e.reports }

func (e *Impl) configured(asset ledger.AssetID) error {
	if e.scheduler == nil || slices.Contains(e.scheduler.Assets(), asset) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
}

// --- Capital Commands ---

func (e *Impl) Deposit(ctx context.Context, user ledger.UserID, asset ledger.AssetID, amount decimal.Decimal) (*FlowResult, error) {
	if err := e.configured(asset); err != nil {
		return nil, err
	}
	if err := e.ledger.Deposit(user, asset, amount); err != nil {
		return nil, err
	}
	res := &FlowResult{
		Kind:       FlowDeposit,
		Amount:     amount,
		Fee:        decimal.Zero,
		FeePercent: decimal.Zero,
		Net:        amount,
	}
	return e.finishFlow(ctx, user, asset, res), nil
}

func (e *Impl) Withdraw(ctx context.Context, user ledger.UserID, asset ledger.AssetID, amount decimal.Decimal) (*FlowResult, error) {
	if err := e.configured(asset); err != nil {
		return nil, err
	}
	w, err := e.ledger.Withdraw(user, asset, amount)
	if err != nil {
		return nil, err
	}
	res := &FlowResult{
		Kind:       FlowWithdraw,
		Amount:     w.Gross,
		Fee:        w.Fee,
		FeePercent: w.FeePercent,
		Net:        w.Net,
	}
	return e.finishFlow(ctx, user, asset, res), nil
}

// finishFlow audits, publishes and persists a flow the ledger already accepted.
// A failed save is reported in the result; the in-memory ledger stays authoritative.
func (e *Impl) finishFlow(ctx context.Context, user ledger.UserID, asset ledger.AssetID, res *FlowResult) *FlowResult {
	res.ID = uuid.NewString()
	res.UserID = user
	res.Asset = asset
	res.CreatedAt = time.Now().UTC()
	res.Capital = e.ledger.Capital(asset)
	res.Ownership = e.ledger.OwnershipPercentage(user, asset)

	if e.flows != nil {
		e.flows.RecordFlow(db.CapitalFlow{
			ID:        res.ID,
			UserID:    string(user),
			Asset:     string(asset),
			Kind:      res.Kind,
			Amount:    res.Amount.String(),
			Fee:       res.Fee.String(),
			CreatedAt: res.CreatedAt,
		})
	}
	if e.bus != nil {
		e.bus.Publish(events.EventCapitalFlow, *res)
	}
	if err := e.ledger.Save(ctx); err != nil {
		res.PersistError = err.Error()
		if e.bus != nil {
			e.bus.Publish(events.EventPersistenceFailure, strategy.PersistenceFailure{Asset: asset, Error: err.Error()})
		}
	}
	return res
}

// --- Asset Queries ---

// knownAssets is the configured list plus anything the ledger holds, sorted.
func (e *Impl) knownAssets() []ledger.AssetID {
	var out []ledger.AssetID
	if e.scheduler != nil {
		out = append(out, e.scheduler.Assets()...)
	}
	for _, a := range e.ledger.Assets() {
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return out
}

func (e *Impl) ListAssets(ctx context.Context) ([]AssetSummary, error) {
	assets := e.knownAssets()
	out := make([]AssetSummary, 0, len(assets))
	for _, a := range assets {
		out = append(out, e.summary(a))
	}
	return out, nil
}

func (e *Impl) GetAsset(ctx context.Context, asset ledger.AssetID) (*AssetSummary, error) {
	if !slices.Contains(e.knownAssets(), asset) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	s := e.summary(asset)
	return &s, nil
}

func (e *Impl) summary(asset ledger.AssetID) AssetSummary {
	acct := e.ledger.Account(asset)
	s := AssetSummary{
		Asset:          asset,
		Symbol:         e.symbols(asset),
		Capital:        acct.Capital,
		Position:       acct.Position,
		CostBasis:      acct.CostBasis,
		AverageCost:    acct.AverageCost(),
		RealizedProfit: acct.RealizedProfit,
		Trades:         len(e.ledger.Trades(asset).Records),
		Risk:           e.risk.State(asset),
	}
	if e.cache != nil {
		if p, age, ok := e.cache.GetWithAge(string(asset)); ok {
			s.Price = p
			s.PriceAge = age.Truncate(time.Second).String()
		}
	}
	return s
}

// currentPrice prefers a fresh cached price and falls back to the provider.
func (e *Impl) currentPrice(ctx context.Context, asset ledger.AssetID) (decimal.Decimal, error) {
	if e.cache != nil {
		if p, age, ok := e.cache.GetWithAge(string(asset)); ok && age <= e.maxPriceAge {
			return p, nil
		}
	}
	if e.prices == nil {
		return decimal.Zero, &strategy.SignalError{Source: strategy.SourcePrice, Err: fmt.Errorf("no price source")}
	}
	cctx, cancel := context.WithTimeout(ctx, e.requestTimeout)
	defer cancel()
	p, err := e.prices.Price(cctx, asset)
	if err != nil {
		return decimal.Zero, &strategy.SignalError{Source: strategy.SourcePrice, Err: err}
	}
	if e.cache != nil {
		e.cache.Set(string(asset), p)
	}
	return p, nil
}

func (e *Impl) GetPerformance(ctx context.Context, asset ledger.AssetID) (*ledger.PerformanceSummary, error) {
	if err := e.configured(asset); err != nil {
		return nil, err
	}
	price, err := e.currentPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	perf := e.ledger.CoinPerformanceSummary(asset, price)
	return &perf, nil
}

func (e *Impl) GetInvestment(ctx context.Context, user ledger.UserID, asset ledger.AssetID) (*ledger.InvestmentDetails, error) {
	if err := e.configured(asset); err != nil {
		return nil, err
	}
	if d := e.ledger.UserInvestmentDetails(user, asset, decimal.Zero); !d.TotalDeposits.IsPositive() {
		return nil, ledger.ErrNoInvestment
	}
	price, err := e.currentPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	d := e.ledger.UserInvestmentDetails(user, asset, price)
	return &d, nil
}

func (e *Impl) ListTrades(ctx context.Context, asset ledger.AssetID, limit int) ([]ledger.TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.ledger.Trades(asset).Last(limit), nil
}

func (e *Impl) GetReport(ctx context.Context, asset ledger.AssetID) (*Report, error) {
	if e.reports == nil {
		return nil, ErrNotFound
	}
	return e.reports.Get(ctx, asset)
}

func (e *Impl) ListFlows(ctx context.Context, user ledger.UserID, asset ledger.AssetID, limit int) ([]db.CapitalFlow, error) {
	if e.db == nil {
		return nil, nil
	}
	return e.db.Queries().ListFlowsByUser(ctx, string(user), string(asset), limit)
}

func (e *Impl) GetCapital(ctx context.Context) (*CapitalInfo, error) {
	info := &CapitalInfo{Total: decimal.Zero, Assets: map[ledger.AssetID]decimal.Decimal{}}
	for _, a := range e.knownAssets() {
		c := e.ledger.Capital(a)
		info.Assets[a] = c
		info.Total = info.Total.Add(c)
	}
	return info, nil
}

// --- Strategy ---

// RunCycle runs one manual cycle through the scheduler's worker pool.
func (e *Impl) RunCycle(ctx context.Context, asset ledger.AssetID) (*strategy.CycleResult, error) {
	if err := e.configured(asset); err != nil {
		return nil, err
	}
	if e.scheduler == nil {
		return nil, fmt.Errorf("scheduler not available")
	}
	o := e.scheduler.Trigger(ctx, asset)
	return o.Result, o.Error
}

func (e *Impl) GetRisk(ctx context.Context) (*RiskInfo, error) {
	return &RiskInfo{Config: e.risk.GetConfig(), Metrics: e.risk.GetMetrics()}, nil
}

// UpdateRiskConfig validates and stores cfg as the active risk configuration.
func (e *Impl) UpdateRiskConfig(ctx context.Context, cfg risk.RiskConfig) (*RiskInfo, error) {
	if err := e.risk.UpdateConfig(ctx, cfg); err != nil {
		return nil, err
	}
	log.Printf("[engine] risk config updated: stop=%.4f cooldown=%s max_daily_loss=%.2f",
		cfg.BaseStopLoss, cfg.Cooldown(), cfg.MaxDailyLoss)
	return e.GetRisk(ctx)
}

// --- Admin ---

// Reset wipes the ledger, risk state, indicator windows, cached prices and every
// ledger-derived table, then persists the empty ledger. Running cycles finish first.
func (e *Impl) Reset(ctx context.Context) error {
	if e.cycles == nil {
		return e.reset(ctx)
	}
	return e.cycles.Exclusive(func() error { return e.reset(ctx) })
}

func (e *Impl) reset(ctx context.Context) error {
	e.ledger.ResetState()
	e.risk.Forget()
	if e.indicators != nil {
		e.indicators.Reset()
	}
	if e.cache != nil {
		e.cache.Clear()
	}
	if e.db != nil {
		if err := e.db.DeleteLedgerData(ctx); err != nil {
			return fmt.Errorf("delete ledger data: %w", err)
		}
	}
	if err := e.ledger.Save(ctx); err != nil {
		return err
	}
	log.Printf("[engine] ledger reset")
	if e.bus != nil {
		e.bus.Publish(events.EventLedgerReset, time.Now().UTC())
	}
	return nil
}

// --- System ---

func (e *Impl) GetSystemStatus(ctx context.Context) *SystemStatus {
	status := e.meta
	status.Mode = "paper"
	status.ServerTime = time.Now().UTC()
	status.Uptime = time.Since(e.startedAt).Truncate(time.Second).String()
	return &status
}

var _ Service = (*Impl)(nil)
