package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// SnapshotVersion is the current persisted document schema.
const SnapshotVersion = 1

// Snapshot is the persisted ledger document. Every map is keyed by asset.
type Snapshot struct {
	Version          int                                    `json:"version"`
	SavedAt          time.Time                              `json:"saved_at"`
	Capital          map[AssetID]decimal.Decimal            `json:"capital"`
	Positions        map[AssetID]decimal.Decimal            `json:"positions"`
	TotalCost        map[AssetID]decimal.Decimal            `json:"total_cost"`
	TradeRecords     map[AssetID]TradeHistory               `json:"trade_records"`
	UserInvestments  map[AssetID]map[UserID]decimal.Decimal `json:"user_investments"`
	UserWithdrawals  map[AssetID]map[UserID]decimal.Decimal `json:"user_withdrawals"`
	TotalDeposits    map[AssetID]decimal.Decimal            `json:"total_deposits"`
	TotalWithdrawals map[AssetID]decimal.Decimal            `json:"total_withdrawals"`
	RealizedProfits  map[AssetID]decimal.Decimal            `json:"realized_profits"`
}

// NewSnapshot returns an empty current-version document with every map allocated.
func NewSnapshot() *Snapshot {
	s := &Snapshot{Version: SnapshotVersion}
	s.Normalize()
	return s
}

// Normalize allocates any missing map so absent keys read as empty.
func (s *Snapshot) Normalize() {
	if s.Capital == nil {
		s.Capital = map[AssetID]decimal.Decimal{}
	}
	if s.Positions == nil {
		s.Positions = map[AssetID]decimal.Decimal{}
	}
	if s.TotalCost == nil {
		s.TotalCost = map[AssetID]decimal.Decimal{}
	}
	if s.TradeRecords == nil {
		s.TradeRecords = map[AssetID]TradeHistory{}
	}
	if s.UserInvestments == nil {
		s.UserInvestments = map[AssetID]map[UserID]decimal.Decimal{}
	}
	if s.UserWithdrawals == nil {
		s.UserWithdrawals = map[AssetID]map[UserID]decimal.Decimal{}
	}
	if s.TotalDeposits == nil {
		s.TotalDeposits = map[AssetID]decimal.Decimal{}
	}
	if s.TotalWithdrawals == nil {
		s.TotalWithdrawals = map[AssetID]decimal.Decimal{}
	}
	if s.RealizedProfits == nil {
		s.RealizedProfits = map[AssetID]decimal.Decimal{}
	}
}

// Snapshot copies the whole ledger. Each asset is copied under its own lock.
func (l *Ledger) Snapshot() *Snapshot {
	snap := NewSnapshot()
	snap.SavedAt = l.now().UTC()

	l.mu.RLock()
	books := make(map[AssetID]*book, len(l.books))
	for a, b := range l.books {
		books[a] = b
	}
	l.mu.RUnlock()

	for asset, b := range books {
		b.mu.Lock()
		snap.Capital[asset] = b.account.Capital
		snap.Positions[asset] = b.account.Position
		snap.TotalCost[asset] = b.account.CostBasis
		snap.RealizedProfits[asset] = b.account.RealizedProfit
		snap.TotalDeposits[asset] = b.totalDeposits
		snap.TotalWithdrawals[asset] = b.totalWithdrawals
		snap.TradeRecords[asset] = b.history.clone()
		deps := make(map[UserID]decimal.Decimal, len(b.users))
		wds := make(map[UserID]decimal.Decimal, len(b.users))
		for u, inv := range b.users {
			deps[u] = inv.Deposits
			if !inv.Withdrawals.IsZero() {
				wds[u] = inv.Withdrawals
			}
		}
		snap.UserInvestments[asset] = deps
		snap.UserWithdrawals[asset] = wds
		b.mu.Unlock()
	}
	return snap
}

// Restore replaces in-memory state with the snapshot's contents.
func (l *Ledger) Restore(snap *Snapshot) {
	snap.Normalize()
	books := make(map[AssetID]*book)
	get := func(a AssetID) *book {
		b := books[a]
		if b == nil {
			b = newBook(a)
			books[a] = b
		}
		return b
	}
	for a, v := range snap.Capital {
		get(a).account.Capital = v
	}
	for a, v := range snap.Positions {
		get(a).account.Position = v
	}
	for a, v := range snap.TotalCost {
		get(a).account.CostBasis = v
	}
	for a, v := range snap.RealizedProfits {
		get(a).account.RealizedProfit = v
	}
	for a, v := range snap.TotalDeposits {
		get(a).totalDeposits = v
	}
	for a, v := range snap.TotalWithdrawals {
		get(a).totalWithdrawals = v
	}
	for a, h := range snap.TradeRecords {
		get(a).history = h.clone()
	}
	for a, users := range snap.UserInvestments {
		b := get(a)
		for u, v := range users {
			b.users[u] = &Investment{Deposits: v}
		}
	}
	for a, users := range snap.UserWithdrawals {
		b := get(a)
		for u, v := range users {
			inv := b.users[u]
			if inv == nil {
				inv = &Investment{}
				b.users[u] = inv
			}
			inv.Withdrawals = v
		}
	}

	l.mu.Lock()
	l.books = books
	l.mu.Unlock()
}
