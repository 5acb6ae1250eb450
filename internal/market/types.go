package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
)

// Tick is published on the event bus whenever a fresh price is observed.
type Tick struct {
	Asset  ledger.AssetID  `json:"asset"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// Stats is the 24h window shown in cycle reports.
type Stats struct {
	ChangePercent decimal.Decimal `json:"change_percent"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Volume        decimal.Decimal `json:"volume"`
	QuoteVolume   decimal.Decimal `json:"quote_volume"`
}

// DefaultQuote is appended to an asset id when no explicit symbol is configured.
const DefaultQuote = "USDT"

// wellKnown maps common full-name asset ids to their exchange base currency.
var wellKnown = map[ledger.AssetID]string{
	"bitcoin":     "BTC",
	"ethereum":    "ETH",
	"solana":      "SOL",
	"binancecoin": "BNB",
	"ripple":      "XRP",
	"cardano":     "ADA",
	"dogecoin":    "DOGE",
}

// SymbolFor resolves the exchange symbol of an asset: configured mapping first,
// then the well-known base currencies, then the upper-cased id plus DefaultQuote.
func SymbolFor(symbols map[ledger.AssetID]string, asset ledger.AssetID) string {
	if s, ok := symbols[asset]; ok && s != "" {
		return strings.ToUpper(s)
	}
	if base, ok := wellKnown[asset]; ok {
		return base + DefaultQuote
	}
	return strings.ToUpper(string(asset)) + DefaultQuote
}
