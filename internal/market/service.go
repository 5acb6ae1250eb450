package market

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/events"
	"papertrade/internal/ledger"
	"papertrade/pkg/cache"
	"papertrade/pkg/market/binance"
)

// PriceService serves live prices and history from the Binance public API and keeps
// the last-price cache used by ownership math warm.
type PriceService struct {
	client   *binance.Client
	cache    *cache.ShardedPriceCache
	bus      *events.Bus
	symbols  map[ledger.AssetID]string
	interval string
	now      func() time.Time
}

// NewPriceService wires a REST client to the cache. bus may be nil.
func NewPriceService(client *binance.Client, c *cache.ShardedPriceCache, bus *events.Bus, symbols map[ledger.AssetID]string) *PriceService {
	if c == nil {
		c = cache.NewShardedPriceCache()
	}
	if symbols == nil {
		symbols = map[ledger.AssetID]string{}
	}
	return &PriceService{
		client:   client,
		cache:    c,
		bus:      bus,
		symbols:  symbols,
		interval: "1d",
		now:      time.Now,
	}
}

// Symbol returns the exchange symbol for asset.
func (s *PriceService) Symbol(asset ledger.AssetID) string {
	return SymbolFor(s.symbols, asset)
}

// Price fetches the current price and records it in the cache.
func (s *PriceService) Price(ctx context.Context, asset ledger.AssetID) (decimal.Decimal, error) {
	symbol := s.Symbol(asset)
	p, err := s.client.TickerPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %s (%s): %w", asset, symbol, err)
	}
	s.observe(asset, symbol, p)
	return p, nil
}

// Closes returns the last n daily closes, oldest first.
func (s *PriceService) Closes(ctx context.Context, asset ledger.AssetID, n int) ([]float64, error) {
	ks, err := s.client.Klines(ctx, s.Symbol(asset), s.interval, n)
	if err != nil {
		return nil, fmt.Errorf("klines %s: %w", asset, err)
	}
	return binance.Closes(ks), nil
}

// Stats24h returns the rolling 24h window for asset.
func (s *PriceService) Stats24h(ctx context.Context, asset ledger.AssetID) (Stats, error) {
	st, err := s.client.Ticker24h(ctx, s.Symbol(asset))
	if err != nil {
		return Stats{}, fmt.Errorf("24h stats %s: %w", asset, err)
	}
	return Stats{
		ChangePercent: st.PriceChangePercent,
		High:          st.HighPrice,
		Low:           st.LowPrice,
		Volume:        st.Volume,
		QuoteVolume:   st.QuoteVolume,
	}, nil
}

// LastPrice returns the cached price, satisfying ledger.PriceSource.
func (s *PriceService) LastPrice(asset ledger.AssetID) (decimal.Decimal, bool) {
	return s.cache.Get(string(asset))
}

// Cache exposes the underlying last-price cache.
func (s *PriceService) Cache() *cache.ShardedPriceCache { return s.cache }

func (s *PriceService) observe(asset ledger.AssetID, symbol string, p decimal.Decimal) {
	s.cache.Set(string(asset), p)
	if s.bus != nil {
		s.bus.Publish(events.EventPriceTick, Tick{Asset: asset, Symbol: symbol, Price: p, At: s.now().UTC()})
	}
}
