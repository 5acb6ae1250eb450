package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// TradeRecord is an immutable fill. Buy-only and sell-only fields stay zero on the other side.
type TradeRecord struct {
	ID         string          `json:"id"`
	Asset      AssetID         `json:"asset"`
	Timestamp  time.Time       `json:"timestamp"`
	Type       TradeType       `json:"type"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	FeePercent decimal.Decimal `json:"fee_percent"`
	Reason     string          `json:"reason,omitempty"`

	BaseCost  decimal.Decimal `json:"base_cost"`
	TotalCost decimal.Decimal `json:"total_cost"`

	BaseProceeds decimal.Decimal `json:"base_proceeds"`
	NetProceeds  decimal.Decimal `json:"net_proceeds"`
	Profit       decimal.Decimal `json:"profit"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
}

// TradeHistory is the append-only record list of one asset plus the running sum of sell profits.
type TradeHistory struct {
	Records     []TradeRecord   `json:"records"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

func (h *TradeHistory) append(rec TradeRecord) {
	h.Records = append(h.Records, rec)
	if rec.Type == TradeSell {
		h.TotalProfit = h.TotalProfit.Add(rec.Profit)
	}
}

func (h TradeHistory) clone() TradeHistory {
	out := TradeHistory{TotalProfit: h.TotalProfit}
	if len(h.Records) > 0 {
		out.Records = make([]TradeRecord, len(h.Records))
		copy(out.Records, h.Records)
	}
	return out
}

// Last returns the most recent n records, newest last.
func (h TradeHistory) Last(n int) []TradeRecord {
	if n <= 0 || n >= len(h.Records) {
		return h.Records
	}
	return h.Records[len(h.Records)-n:]
}

// Activity summarises trade timing for one asset. Zero times mean "never".
type Activity struct {
	LastTradeAt time.Time
	LastSellAt  time.Time
	// OpenedAt is when the current open position went from flat to long.
	OpenedAt time.Time
}

// Activity replays the history to derive trade timing.
func (h TradeHistory) Activity() Activity {
	var act Activity
	pos := decimal.Zero
	for _, rec := range h.Records {
		act.LastTradeAt = rec.Timestamp
		switch rec.Type {
		case TradeBuy:
			if !pos.IsPositive() {
				act.OpenedAt = rec.Timestamp
			}
			pos = pos.Add(rec.Quantity)
		case TradeSell:
			act.LastSellAt = rec.Timestamp
			pos = pos.Sub(rec.Quantity)
			if !pos.IsPositive() {
				pos = decimal.Zero
				act.OpenedAt = time.Time{}
			}
		}
	}
	return act
}
