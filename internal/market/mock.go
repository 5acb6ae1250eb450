package market

import (
	"context"
	"hash/fnv"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/events"
	"papertrade/internal/ledger"
	"papertrade/pkg/cache"
)

// MockFeed generates deterministic random-walk prices for local development and tests.
// Each asset walks independently from its start price with a per-asset seed.
type MockFeed struct {
	Bus         *events.Bus
	Cache       *cache.ShardedPriceCache
	StartPrices map[ledger.AssetID]float64
	Step        float64 // max fractional move per step, e.g. 0.01
	Interval    time.Duration
	Seed        int64

	mu    sync.Mutex
	walks map[ledger.AssetID]*walk
}

type walk struct {
	rng   *rand.Rand
	price float64
}

func (m *MockFeed) walkLocked(asset ledger.AssetID) *walk {
	if m.walks == nil {
		m.walks = make(map[ledger.AssetID]*walk)
	}
	if w := m.walks[asset]; w != nil {
		return w
	}
	h := fnv.New64a()
	h.Write([]byte(asset))
	start := m.StartPrices[asset]
	if start <= 0 {
		start = 100.0
	}
	w := &walk{rng: rand.New(rand.NewSource(m.Seed ^ int64(h.Sum64()))), price: start}
	m.walks[asset] = w
	return w
}

func (m *MockFeed) step() float64 {
	if m.Step <= 0 {
		return 0.01
	}
	return m.Step
}

func (m *MockFeed) next(asset ledger.AssetID) decimal.Decimal {
	m.mu.Lock()
	w := m.walkLocked(asset)
	w.price *= 1 + (w.rng.Float64()*2-1)*m.step()
	p := decimal.NewFromFloat(w.price).Round(8)
	m.mu.Unlock()

	if m.Cache != nil {
		m.Cache.Set(string(asset), p)
	}
	if m.Bus != nil {
		m.Bus.Publish(events.EventPriceTick, Tick{Asset: asset, Symbol: "MOCK", Price: p, At: time.Now().UTC()})
	}
	return p
}

// Price advances the asset's walk by one step.
func (m *MockFeed) Price(ctx context.Context, asset ledger.AssetID) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return m.next(asset), nil
}

// Closes synthesises n closes ending at the current walk price, oldest first.
func (m *MockFeed) Closes(ctx context.Context, asset ledger.AssetID, n int) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.walkLocked(asset)
	out := make([]float64, n)
	p := w.price
	for i := n - 1; i >= 0; i-- {
		out[i] = p
		p /= 1 + (w.rng.Float64()*2-1)*m.step()
	}
	return out, nil
}

// Stats24h derives a 24h window from the last day of synthetic closes.
func (m *MockFeed) Stats24h(ctx context.Context, asset ledger.AssetID) (Stats, error) {
	closes, err := m.Closes(ctx, asset, 2)
	if err != nil {
		return Stats{}, err
	}
	prev, last := closes[0], closes[1]
	hi, lo := last, prev
	if prev > hi {
		hi, lo = prev, last
	}
	return Stats{
		ChangePercent: decimal.NewFromFloat((last/prev - 1) * 100).Round(2),
		High:          decimal.NewFromFloat(hi).Round(8),
		Low:           decimal.NewFromFloat(lo).Round(8),
	}, nil
}

// LastPrice returns the cached price, satisfying ledger.PriceSource.
func (m *MockFeed) LastPrice(asset ledger.AssetID) (decimal.Decimal, bool) {
	if m.Cache == nil {
		return decimal.Zero, false
	}
	return m.Cache.Get(string(asset))
}

// Start ticks every asset on Interval until ctx is cancelled.
func (m *MockFeed) Start(ctx context.Context, assets []ledger.AssetID) {
	if len(assets) == 0 {
		log.Println("mock feed: no assets")
		return
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, a := range assets {
					m.next(a)
				}
			}
		}
	}()
}
