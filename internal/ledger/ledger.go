package ledger

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config holds fee rates as fractions (0.0005 = 0.05%).
type Config struct {
	TradingFeeRate    decimal.Decimal
	WithdrawalFeeRate decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		TradingFeeRate:    decimal.RequireFromString("0.0005"),
		WithdrawalFeeRate: decimal.RequireFromString("0.0005"),
	}
}

// PriceSource exposes the last observed market price of an asset.
type PriceSource interface {
	LastPrice(asset AssetID) (decimal.Decimal, bool)
}

// Gateway loads and stores the whole ledger document.
type Gateway interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Account is the per-asset money view.
type Account struct {
	Asset          AssetID         `json:"asset"`
	Capital        decimal.Decimal `json:"capital"`
	Position       decimal.Decimal `json:"position"`
	CostBasis      decimal.Decimal `json:"cost_basis"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
}

// AverageCost is cost basis per unit, zero when flat.
func (a Account) AverageCost() decimal.Decimal {
	if !a.Position.IsPositive() {
		return decimal.Zero
	}
	return a.CostBasis.Div(a.Position)
}

// Investment is a participant's cumulative flows into one asset.
type Investment struct {
	Deposits    decimal.Decimal `json:"deposits"`
	Withdrawals decimal.Decimal `json:"withdrawals"`
}

func (i Investment) Net() decimal.Decimal { return i.Deposits.Sub(i.Withdrawals) }

// WithdrawalResult describes a processed withdrawal.
type WithdrawalResult struct {
	Gross      decimal.Decimal `json:"gross"`
	Fee        decimal.Decimal `json:"fee"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	Net        decimal.Decimal `json:"net"`
}

// book holds everything about one asset. Its mutex serialises all mutations of that asset.
type book struct {
	mu               sync.Mutex
	account          Account
	history          TradeHistory
	users            map[UserID]*Investment
	totalDeposits    decimal.Decimal
	totalWithdrawals decimal.Decimal
}

func newBook(asset AssetID) *book {
	return &book{
		account: Account{Asset: asset},
		users:   make(map[UserID]*Investment),
	}
}

// Ledger is the paper-money book of record. Each asset has its own lock so cycles over
// different assets never contend; the ledger-level lock only guards the asset map.
type Ledger struct {
	cfg     Config
	prices  PriceSource
	gateway Gateway

	mu    sync.RWMutex
	books map[AssetID]*book

	persistMu sync.Mutex
	now       func() time.Time
}

func New(cfg Config, gateway Gateway, prices PriceSource) *Ledger {
	return &Ledger{
		cfg:     cfg,
		prices:  prices,
		gateway: gateway,
		books:   make(map[AssetID]*book),
		now:     time.Now,
	}
}

func (l *Ledger) Config() Config { return l.cfg }

func (l *Ledger) book(asset AssetID, create bool) *book {
	l.mu.RLock()
	b := l.books[asset]
	l.mu.RUnlock()
	if b != nil || !create {
		return b
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if b = l.books[asset]; b == nil {
		b = newBook(asset)
		l.books[asset] = b
	}
	return b
}

func fee(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}

// Deposit adds paper money to an asset on behalf of a user.
func (l *Ledger) Deposit(user UserID, asset AssetID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	b := l.book(asset, true)
	b.mu.Lock()
	defer b.mu.Unlock()

	inv := b.users[user]
	if inv == nil {
		inv = &Investment{}
		b.users[user] = inv
	}
	inv.Deposits = inv.Deposits.Add(amount)
	b.totalDeposits = b.totalDeposits.Add(amount)
	b.account.Capital = b.account.Capital.Add(amount)
	log.Printf("[ledger] deposit user=%s asset=%s amount=%s capital=%s", user, asset, amount, b.account.Capital)
	return nil
}

// Withdraw removes capital for a user, capped by the user's ownership share, and charges
// the withdrawal fee.
func (l *Ledger) Withdraw(user UserID, asset AssetID, amount decimal.Decimal) (WithdrawalResult, error) {
	if !amount.IsPositive() {
		return WithdrawalResult{}, ErrInvalidAmount
	}
	b := l.book(asset, false)
	if b == nil {
		return WithdrawalResult{}, ErrNoInvestment
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	inv := b.users[user]
	if inv == nil || !inv.Deposits.IsPositive() {
		return WithdrawalResult{}, ErrNoInvestment
	}
	if amount.GreaterThan(l.withdrawableLocked(b, user)) {
		return WithdrawalResult{}, ErrInsufficientWithdrawable
	}
	if amount.GreaterThan(b.account.Capital) {
		return WithdrawalResult{}, ErrInsufficientCapital
	}

	f := fee(amount, l.cfg.WithdrawalFeeRate)
	res := WithdrawalResult{
		Gross:      amount,
		Fee:        f,
		FeePercent: l.cfg.WithdrawalFeeRate.Mul(hundred),
		Net:        amount.Sub(f),
	}
	b.account.Capital = b.account.Capital.Sub(amount)
	inv.Withdrawals = inv.Withdrawals.Add(amount)
	b.totalWithdrawals = b.totalWithdrawals.Add(amount)
	log.Printf("[ledger] withdraw user=%s asset=%s gross=%s fee=%s net=%s", user, asset, res.Gross, res.Fee, res.Net)
	return res, nil
}

// SimulateBuy converts capital into position at the given price.
func (l *Ledger) SimulateBuy(asset AssetID, qty, price decimal.Decimal, reason string) (TradeRecord, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return TradeRecord{}, ErrInvalidAmount
	}
	base := qty.Mul(price)
	f := fee(base, l.cfg.TradingFeeRate)
	total := base.Add(f)

	b := l.book(asset, false)
	if b == nil {
		return TradeRecord{}, ErrInsufficientCapital
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if total.GreaterThan(b.account.Capital) {
		return TradeRecord{}, ErrInsufficientCapital
	}
	rec := TradeRecord{
		ID:         uuid.NewString(),
		Asset:      asset,
		Timestamp:  l.now().UTC(),
		Type:       TradeBuy,
		Quantity:   qty,
		Price:      price,
		Fee:        f,
		FeePercent: l.cfg.TradingFeeRate.Mul(hundred),
		Reason:     reason,
		BaseCost:   base,
		TotalCost:  total,
	}
	b.account.Capital = b.account.Capital.Sub(total)
	b.account.Position = b.account.Position.Add(qty)
	b.account.CostBasis = b.account.CostBasis.Add(total)
	b.history.append(rec)
	return rec, nil
}

// SimulateSell converts position back into capital and realises profit against average cost.
func (l *Ledger) SimulateSell(asset AssetID, qty, price decimal.Decimal, reason string) (TradeRecord, error) {
	if !qty.IsPositive() || !price.IsPositive() {
		return TradeRecord{}, ErrInvalidAmount
	}
	b := l.book(asset, false)
	if b == nil {
		return TradeRecord{}, ErrInsufficientPosition
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	acct := &b.account
	if qty.GreaterThan(acct.Position) {
		return TradeRecord{}, ErrInsufficientPosition
	}
	avg := decimal.Zero
	if acct.Position.IsPositive() {
		avg = acct.CostBasis.Div(acct.Position)
	} else {
		log.Printf("[ledger] sell on flat position asset=%s, average cost forced to 0", asset)
	}
	base := qty.Mul(price)
	f := fee(base, l.cfg.TradingFeeRate)
	net := base.Sub(f)
	soldCost := avg.Mul(qty)
	profit := net.Sub(soldCost)

	rec := TradeRecord{
		ID:           uuid.NewString(),
		Asset:        asset,
		Timestamp:    l.now().UTC(),
		Type:         TradeSell,
		Quantity:     qty,
		Price:        price,
		Fee:          f,
		FeePercent:   l.cfg.TradingFeeRate.Mul(hundred),
		Reason:       reason,
		BaseProceeds: base,
		NetProceeds:  net,
		Profit:       profit,
		AvgCost:      avg,
	}
	acct.Capital = acct.Capital.Add(net)
	acct.Position = acct.Position.Sub(qty)
	acct.CostBasis = acct.CostBasis.Sub(soldCost)
	acct.RealizedProfit = acct.RealizedProfit.Add(profit)
	if !acct.Position.IsPositive() {
		acct.Position = decimal.Zero
		acct.CostBasis = decimal.Zero
	}
	b.history.append(rec)
	return rec, nil
}

// Account returns a copy of the asset's money view. Unknown assets read as zero.
func (l *Ledger) Account(asset AssetID) Account {
	b := l.book(asset, false)
	if b == nil {
		return Account{Asset: asset}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account
}

func (l *Ledger) Capital(asset AssetID) decimal.Decimal { return l.Account(asset).Capital }

func (l *Ledger) Position(asset AssetID) decimal.Decimal { return l.Account(asset).Position }

// TotalCapital sums capital over every asset.
func (l *Ledger) TotalCapital() decimal.Decimal {
	total := decimal.Zero
	for _, asset := range l.Assets() {
		total = total.Add(l.Capital(asset))
	}
	return total
}

// Assets lists known assets in lexical order.
func (l *Ledger) Assets() []AssetID {
	l.mu.RLock()
	out := make([]AssetID, 0, len(l.books))
	for a := range l.books {
		out = append(out, a)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Trades returns a copy of the asset's trade history.
func (l *Ledger) Trades(asset AssetID) TradeHistory {
	b := l.book(asset, false)
	if b == nil {
		return TradeHistory{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.clone()
}

// ResetState wipes every account, investment and trade history.
func (l *Ledger) ResetState() {
	l.mu.Lock()
	l.books = make(map[AssetID]*book)
	l.mu.Unlock()
	log.Printf("[ledger] state reset")
}

// Load replaces in-memory state with the gateway's document. A nil gateway is a no-op.
func (l *Ledger) Load(ctx context.Context) error {
	if l.gateway == nil {
		return nil
	}
	snap, err := l.gateway.Load(ctx)
	if err != nil {
		return &PersistenceError{Op: "load", Err: err}
	}
	if snap != nil {
		l.Restore(snap)
	}
	return nil
}

// Save writes a fresh snapshot. Saves are serialised and each one snapshots after acquiring
// the persist lock, so a later save never carries older state than an earlier one.
func (l *Ledger) Save(ctx context.Context) error {
	if l.gateway == nil {
		return nil
	}
	l.persistMu.Lock()
	defer l.persistMu.Unlock()
	snap := l.Snapshot()
	if err := l.gateway.Save(ctx, snap); err != nil {
		log.Printf("[ledger] save failed: %v (in-memory state kept)", err)
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}
