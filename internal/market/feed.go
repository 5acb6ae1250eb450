package market

import (
	"context"
	"log"
	"time"

	"papertrade/internal/events"
	"papertrade/internal/ledger"
	"papertrade/pkg/cache"
	"papertrade/pkg/market/binance"
)

// StreamFeed keeps the last-price cache fresh between cycles from the miniTicker stream.
type StreamFeed struct {
	Stream  *binance.StreamClient
	Cache   *cache.ShardedPriceCache
	Bus     *events.Bus
	Symbols map[ledger.AssetID]string
	Backoff time.Duration
}

// Start subscribes for every configured asset and reconnects until ctx is cancelled.
func (f *StreamFeed) Start(ctx context.Context, assets []ledger.AssetID) {
	if f.Stream == nil || f.Cache == nil || len(assets) == 0 {
		log.Println("market feed not fully configured; skipping start")
		return
	}
	if f.Backoff <= 0 {
		f.Backoff = 5 * time.Second
	}

	bySymbol := make(map[string]ledger.AssetID, len(assets))
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		sym := SymbolFor(f.Symbols, a)
		bySymbol[sym] = a
		symbols = append(symbols, sym)
	}

	go func() {
		for {
			f.consume(ctx, symbols, bySymbol)
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.Backoff):
				log.Printf("market feed: reconnecting %d symbols", len(symbols))
			}
		}
	}()
}

func (f *StreamFeed) consume(ctx context.Context, symbols []string, bySymbol map[string]ledger.AssetID) {
	ch, stop, err := f.Stream.SubscribeTickers(ctx, symbols)
	if err != nil {
		log.Printf("market feed: ws subscribe error: %v", err)
		return
	}
	defer stop()

	for tk := range ch {
		asset, ok := bySymbol[tk.Symbol]
		if !ok || !tk.Price.IsPositive() {
			continue
		}
		at := time.Now().UTC()
		if tk.Time > 0 {
			at = time.UnixMilli(tk.Time).UTC()
		}
		if !f.Cache.SetAt(string(asset), tk.Price, at) {
			continue
		}
		if f.Bus != nil {
			f.Bus.Publish(events.EventPriceTick, Tick{
				Asset:  asset,
				Symbol: tk.Symbol,
				Price:  tk.Price,
				At:     at,
			})
		}
	}
}
