package ledger

import (
	"log"

	"github.com/shopspring/decimal"
)

// InvestmentDetails is a read-only projection of one user's stake in an asset.
type InvestmentDetails struct {
	UserID              UserID          `json:"user_id"`
	Asset               AssetID         `json:"asset"`
	TotalDeposits       decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals    decimal.Decimal `json:"total_withdrawals"`
	NetInvestment       decimal.Decimal `json:"net_investment"`
	OwnershipPercentage decimal.Decimal `json:"ownership_percentage"`
	CurrentShare        decimal.Decimal `json:"current_share"`
	RealizedShare       decimal.Decimal `json:"realized_share"`
	UnrealizedShare     decimal.Decimal `json:"unrealized_share"`
	TotalGains          decimal.Decimal `json:"total_gains"`
	Withdrawable        decimal.Decimal `json:"withdrawable"`
}

// PerformanceSummary is a read-only projection of an asset's pool.
type PerformanceSummary struct {
	Asset                 AssetID         `json:"asset"`
	Price                 decimal.Decimal `json:"price"`
	Capital               decimal.Decimal `json:"capital"`
	Position              decimal.Decimal `json:"position"`
	PositionValue         decimal.Decimal `json:"position_value"`
	TotalPortfolioValue   decimal.Decimal `json:"total_portfolio_value"`
	TotalDeposits         decimal.Decimal `json:"total_deposits"`
	TotalWithdrawals      decimal.Decimal `json:"total_withdrawals"`
	NetInvestments        decimal.Decimal `json:"net_investments"`
	RealizedProfits       decimal.Decimal `json:"realized_profits"`
	UnrealizedGains       decimal.Decimal `json:"unrealized_gains"`
	TotalGains            decimal.Decimal `json:"total_gains"`
	PerformancePercentage decimal.Decimal `json:"performance_percentage"`
}

// UserInvestment is deposits minus withdrawals for the user on the asset.
func (l *Ledger) UserInvestment(user UserID, asset AssetID) decimal.Decimal {
	b := l.book(asset, false)
	if b == nil {
		return decimal.Zero
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if inv := b.users[user]; inv != nil {
		return inv.Net()
	}
	return decimal.Zero
}

// TotalNetInvestments sums positive net investments. Negative nets are excluded and logged.
func (l *Ledger) TotalNetInvestments(asset AssetID) decimal.Decimal {
	b := l.book(asset, false)
	if b == nil {
		return decimal.Zero
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return totalNetLocked(b)
}

// OwnershipPercentage is the user's share of positive net investments, in percent.
func (l *Ledger) OwnershipPercentage(user UserID, asset AssetID) decimal.Decimal {
	b := l.book(asset, false)
	if b == nil {
		return decimal.Zero
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return ownershipLocked(b, user)
}

// CalculateWithdrawal is the most the user may withdraw: their share of capital plus
// position valued at the last cached price.
func (l *Ledger) CalculateWithdrawal(user UserID, asset AssetID) decimal.Decimal {
	b := l.book(asset, false)
	if b == nil {
		return decimal.Zero
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return l.withdrawableLocked(b, user)
}

// UserInvestmentDetails projects the user's stake at the given price.
func (l *Ledger) UserInvestmentDetails(user UserID, asset AssetID, price decimal.Decimal) InvestmentDetails {
	d := InvestmentDetails{UserID: user, Asset: asset}
	b := l.book(asset, false)
	if b == nil {
		return d
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if inv := b.users[user]; inv != nil {
		d.TotalDeposits = inv.Deposits
		d.TotalWithdrawals = inv.Withdrawals
		d.NetInvestment = inv.Net()
	}
	pct := ownershipLocked(b, user)
	perf := performanceLocked(b, price)
	d.OwnershipPercentage = pct
	d.CurrentShare = perf.TotalPortfolioValue.Mul(pct).Div(hundred)
	d.RealizedShare = perf.RealizedProfits.Mul(pct).Div(hundred)
	d.UnrealizedShare = perf.UnrealizedGains.Mul(pct).Div(hundred)
	d.TotalGains = d.CurrentShare.Sub(d.NetInvestment)
	d.Withdrawable = l.withdrawableLocked(b, user)
	return d
}

// CoinPerformanceSummary projects the asset pool's performance at the given price.
func (l *Ledger) CoinPerformanceSummary(asset AssetID, price decimal.Decimal) PerformanceSummary {
	b := l.book(asset, false)
	if b == nil {
		return PerformanceSummary{Asset: asset, Price: price}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return performanceLocked(b, price)
}

func totalNetLocked(b *book) decimal.Decimal {
	total := decimal.Zero
	for user, inv := range b.users {
		net := inv.Net()
		if net.IsNegative() {
			log.Printf("[ledger] negative net investment user=%s asset=%s net=%s excluded", user, b.account.Asset, net)
			continue
		}
		total = total.Add(net)
	}
	return total
}

func ownershipLocked(b *book, user UserID) decimal.Decimal {
	inv := b.users[user]
	if inv == nil {
		return decimal.Zero
	}
	total := totalNetLocked(b)
	if !total.IsPositive() {
		return decimal.Zero
	}
	net := decimal.Max(inv.Net(), decimal.Zero)
	return net.Div(total).Mul(hundred)
}

func (l *Ledger) withdrawableLocked(b *book, user UserID) decimal.Decimal {
	inv := b.users[user]
	if inv == nil {
		return decimal.Zero
	}
	total := totalNetLocked(b)
	if !total.IsPositive() {
		return decimal.Zero
	}
	net := decimal.Max(inv.Net(), decimal.Zero)

	value := b.account.Capital
	if b.account.Position.IsPositive() {
		price, ok := decimal.Zero, false
		if l.prices != nil {
			price, ok = l.prices.LastPrice(b.account.Asset)
		}
		if ok {
			value = value.Add(b.account.Position.Mul(price))
		} else {
			log.Printf("[ledger] no cached price for %s, position valued at 0 for withdrawal", b.account.Asset)
		}
	}
	// net/total*value, multiplied first to keep exact shares exact.
	return value.Mul(net).Div(total).Round(8)
}

func performanceLocked(b *book, price decimal.Decimal) PerformanceSummary {
	s := PerformanceSummary{
		Asset:            b.account.Asset,
		Price:            price,
		Capital:          b.account.Capital,
		Position:         b.account.Position,
		TotalDeposits:    b.totalDeposits,
		TotalWithdrawals: b.totalWithdrawals,
		RealizedProfits:  b.account.RealizedProfit,
	}
	s.PositionValue = b.account.Position.Mul(price)
	s.TotalPortfolioValue = s.Capital.Add(s.PositionValue)
	s.NetInvestments = totalNetLocked(b)
	s.UnrealizedGains = s.TotalPortfolioValue.Sub(s.NetInvestments).Sub(s.RealizedProfits)
	s.TotalGains = s.RealizedProfits.Add(s.UnrealizedGains)
	if s.NetInvestments.IsPositive() {
		s.PerformancePercentage = s.TotalGains.Div(s.NetInvestments).Mul(hundred)
	}
	return s
}
