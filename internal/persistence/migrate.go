package persistence

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/ledger"
)

// DefaultLegacyAsset receives a bare-number legacy capital when no asset is configured.
const DefaultLegacyAsset ledger.AssetID = "bitcoin"

// MigrateSnapshot decodes a stored document of any known version into the current schema.
// Documents without a version field are the legacy layout: float money, and trade_records
// holding one {timestamp, quantity, price, total_profit} summary per asset instead of a list.
func MigrateSnapshot(raw []byte) (*ledger.Snapshot, error) {
	return MigrateSnapshotFor(raw, DefaultLegacyAsset)
}

// MigrateSnapshotFor is MigrateSnapshot with the asset that owns single-coin legacy data:
// a capital stored as one number and trade_history entries without a coin.
func MigrateSnapshotFor(raw []byte, legacyAsset ledger.AssetID) (*ledger.Snapshot, error) {
	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("decode snapshot header: %w", err)
	}

	switch {
	case header.Version == ledger.SnapshotVersion:
		var snap ledger.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot v%d: %w", header.Version, err)
		}
		snap.Normalize()
		return &snap, nil
	case header.Version == 0:
		if legacyAsset == "" {
			legacyAsset = DefaultLegacyAsset
		}
		snap, err := migrateLegacy(raw, legacyAsset)
		if err != nil {
			return nil, err
		}
		log.Printf("[persistence] migrated legacy snapshot to v%d (%d assets)", ledger.SnapshotVersion, len(snap.Capital))
		return snap, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot version %d", header.Version)
	}
}

type legacyDoc struct {
	Capital          json.RawMessage                       `json:"capital"`
	Positions        map[string]decimal.Decimal            `json:"positions"`
	TotalCost        map[string]decimal.Decimal            `json:"total_cost"`
	TradeRecords     map[string]json.RawMessage            `json:"trade_records"`
	TradeHistory     []legacyTrade                         `json:"trade_history"`
	UserInvestments  map[string]map[string]decimal.Decimal `json:"user_investments"`
	UserWithdrawals  map[string]map[string]decimal.Decimal `json:"user_withdrawals"`
	TotalDeposits    map[string]decimal.Decimal            `json:"total_deposits"`
	TotalWithdrawals map[string]decimal.Decimal            `json:"total_withdrawals"`
	RealizedProfits  map[string]decimal.Decimal            `json:"realized_profits"`
}

// legacySummary is the single-dict trade record. It describes the last trade, not a fill.
type legacySummary struct {
	Timestamp   string          `json:"timestamp"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalProfit decimal.Decimal `json:"total_profit"`
}

// legacyTrade is one entry of the flat trade_history list.
type legacyTrade struct {
	Timestamp     string          `json:"timestamp"`
	Coin          string          `json:"coin"`
	Action        string          `json:"action"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	CapitalBefore decimal.Decimal `json:"capital_before"`
	CapitalAfter  decimal.Decimal `json:"capital_after"`
	Profit        decimal.Decimal `json:"profit"`
}

// Legacy timestamps are naive ISO strings, with or without microseconds.
var legacyTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"}

func parseLegacyTime(s string) time.Time {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (t legacyTrade) record(asset ledger.AssetID, seq int) ledger.TradeRecord {
	rec := ledger.TradeRecord{
		ID:        fmt.Sprintf("legacy-%s-%d", asset, seq),
		Asset:     asset,
		Timestamp: parseLegacyTime(t.Timestamp),
		Quantity:  t.Quantity,
		Price:     t.Price,
		Reason:    "migrated from trade_history",
	}
	if strings.EqualFold(t.Action, "SELL") {
		rec.Type = ledger.TradeSell
		rec.BaseProceeds = t.Quantity.Mul(t.Price)
		rec.NetProceeds = t.CapitalAfter.Sub(t.CapitalBefore)
		rec.Profit = t.Profit
		return rec
	}
	rec.Type = ledger.TradeBuy
	rec.BaseCost = t.Quantity.Mul(t.Price)
	rec.TotalCost = t.CapitalBefore.Sub(t.CapitalAfter)
	return rec
}

func migrateLegacy(raw []byte, legacyAsset ledger.AssetID) (*ledger.Snapshot, error) {
	var doc legacyDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode legacy snapshot: %w", err)
	}
	snap := ledger.NewSnapshot()

	if err := decodeLegacyCapital(snap.Capital, doc.Capital, legacyAsset); err != nil {
		return nil, err
	}
	copyMap(snap.Positions, doc.Positions)
	copyMap(snap.TotalCost, doc.TotalCost)
	copyMap(snap.TotalDeposits, doc.TotalDeposits)
	copyMap(snap.TotalWithdrawals, doc.TotalWithdrawals)
	copyUsers(snap.UserInvestments, doc.UserInvestments)
	copyUsers(snap.UserWithdrawals, doc.UserWithdrawals)

	for coin, rawRec := range doc.TradeRecords {
		asset := ledger.AssetID(strings.ToLower(coin))
		hist, err := decodeLegacyHistory(rawRec)
		if err != nil {
			return nil, fmt.Errorf("trade_records[%s]: %w", coin, err)
		}
		snap.TradeRecords[asset] = hist
	}
	for i, t := range doc.TradeHistory {
		asset := legacyAsset
		if t.Coin != "" {
			asset = ledger.AssetID(strings.ToLower(t.Coin))
		}
		hist := snap.TradeRecords[asset]
		rec := t.record(asset, i)
		hist.Records = append(hist.Records, rec)
		if rec.Type == ledger.TradeSell {
			hist.TotalProfit = hist.TotalProfit.Add(rec.Profit)
		}
		snap.TradeRecords[asset] = hist
	}

	copyMap(snap.RealizedProfits, doc.RealizedProfits)
	for asset, hist := range snap.TradeRecords {
		if _, ok := snap.RealizedProfits[asset]; !ok && !hist.TotalProfit.IsZero() {
			snap.RealizedProfits[asset] = hist.TotalProfit
		}
	}
	// The legacy layout deleted flat positions and left a zero cost; normalise both ways.
	for asset, pos := range snap.Positions {
		if !pos.IsPositive() {
			snap.Positions[asset] = decimal.Zero
			snap.TotalCost[asset] = decimal.Zero
		}
	}
	return snap, nil
}

// decodeLegacyCapital accepts the per-asset map or the older single number.
func decodeLegacyCapital(dst map[ledger.AssetID]decimal.Decimal, raw json.RawMessage, legacyAsset ledger.AssetID) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "{") {
		var byCoin map[string]decimal.Decimal
		if err := json.Unmarshal(raw, &byCoin); err != nil {
			return fmt.Errorf("decode legacy capital: %w", err)
		}
		copyMap(dst, byCoin)
		return nil
	}
	var amount decimal.Decimal
	if err := json.Unmarshal(raw, &amount); err != nil {
		return fmt.Errorf("decode legacy capital: %w", err)
	}
	log.Printf("[persistence] legacy single-number capital %s assigned to %s", amount.String(), legacyAsset)
	dst[legacyAsset] = amount
	return nil
}

func decodeLegacyHistory(raw json.RawMessage) (ledger.TradeHistory, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ledger.TradeHistory{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var recs []ledger.TradeRecord
		if err := json.Unmarshal(raw, &recs); err != nil {
			return ledger.TradeHistory{}, err
		}
		h := ledger.TradeHistory{Records: recs}
		for _, r := range recs {
			if r.Type == ledger.TradeSell {
				h.TotalProfit = h.TotalProfit.Add(r.Profit)
			}
		}
		return h, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ledger.TradeHistory{}, err
	}
	if _, ok := obj["records"]; ok {
		var h ledger.TradeHistory
		err := json.Unmarshal(raw, &h)
		return h, err
	}
	var sum legacySummary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return ledger.TradeHistory{}, err
	}
	return ledger.TradeHistory{TotalProfit: sum.TotalProfit}, nil
}

func copyMap(dst map[ledger.AssetID]decimal.Decimal, src map[string]decimal.Decimal) {
	for k, v := range src {
		dst[ledger.AssetID(strings.ToLower(k))] = v
	}
}

func copyUsers(dst map[ledger.AssetID]map[ledger.UserID]decimal.Decimal, src map[string]map[string]decimal.Decimal) {
	for coin, users := range src {
		m := make(map[ledger.UserID]decimal.Decimal, len(users))
		for u, v := range users {
			m[ledger.UserID(strings.ToLower(u))] = v
		}
		dst[ledger.AssetID(strings.ToLower(coin))] = m
	}
}
