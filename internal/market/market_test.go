package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/events"
	"papertrade/internal/ledger"
	"papertrade/pkg/cache"
	"papertrade/pkg/market/binance"
)

func TestSymbolFor(t *testing.T) {
	symbols := map[ledger.AssetID]string{"bitcoin": "btcusdt"}
	assert.Equal(t, "BTCUSDT", SymbolFor(symbols, "bitcoin"))
	assert.Equal(t, "SOLUSDT", SymbolFor(symbols, "sol"))
	assert.Equal(t, "ETHUSDT", SymbolFor(nil, "ethereum"))
}

func TestPriceServiceCachesAndPublishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ticker/price":
			if r.URL.Query().Get("symbol") != "BTCUSDT" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			w.Write([]byte(`{"symbol":"BTCUSDT","price":"50.5"}`))
		case "/api/v3/klines":
			w.Write([]byte(`[[1,"1","1","1","49","1",2,"1",1,"1","1","0"],[3,"1","1","1","50","1",4,"1",1,"1","1","0"]]`))
		case "/api/v3/ticker/24hr":
			w.Write([]byte(`{"symbol":"BTCUSDT","priceChangePercent":"2.50","highPrice":"51","lowPrice":"48"}`))
		}
	}))
	defer srv.Close()

	bus := events.NewBus()
	ticks, unsub := bus.Subscribe(events.EventPriceTick, 4)
	defer unsub()

	svc := NewPriceService(binance.NewClient(srv.URL), cache.NewShardedPriceCache(), bus,
		map[ledger.AssetID]string{"bitcoin": "BTCUSDT"})
	ctx := context.Background()

	_, ok := svc.LastPrice("bitcoin")
	assert.False(t, ok)

	p, err := svc.Price(ctx, "bitcoin")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("50.5")))

	cached, ok := svc.LastPrice("bitcoin")
	require.True(t, ok)
	assert.True(t, cached.Equal(p))

	select {
	case msg := <-ticks:
		tick := msg.(Tick)
		assert.Equal(t, ledger.AssetID("bitcoin"), tick.Asset)
	case <-time.After(time.Second):
		t.Fatal("no price tick published")
	}

	closes, err := svc.Closes(ctx, "bitcoin", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{49, 50}, closes)

	st, err := svc.Stats24h(ctx, "bitcoin")
	require.NoError(t, err)
	assert.True(t, st.ChangePercent.Equal(decimal.RequireFromString("2.5")))

	_, err = svc.Price(ctx, "dogecoin")
	assert.Error(t, err)
}

func TestMockFeedDeterministic(t *testing.T) {
	ctx := context.Background()
	a := &MockFeed{Seed: 7, Cache: cache.NewShardedPriceCache(), StartPrices: map[ledger.AssetID]float64{"bitcoin": 50}}
	b := &MockFeed{Seed: 7, StartPrices: map[ledger.AssetID]float64{"bitcoin": 50}}

	for i := 0; i < 5; i++ {
		pa, err := a.Price(ctx, "bitcoin")
		require.NoError(t, err)
		pb, err := b.Price(ctx, "bitcoin")
		require.NoError(t, err)
		assert.True(t, pa.Equal(pb), "step %d: %s != %s", i, pa, pb)
		assert.True(t, pa.IsPositive())
	}

	last, ok := a.LastPrice("bitcoin")
	require.True(t, ok)
	closes, err := a.Closes(ctx, "bitcoin", 30)
	require.NoError(t, err)
	require.Len(t, closes, 30)
	assert.InDelta(t, last.InexactFloat64(), closes[29], 1e-6)

	_, ok = b.LastPrice("bitcoin")
	assert.False(t, ok, "no cache configured")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = a.Price(cancelled, "bitcoin")
	assert.Error(t, err)
}

func TestMockFeedStartPublishes(t *testing.T) {
	bus := events.NewBus()
	ticks, unsub := bus.Subscribe(events.EventPriceTick, 8)
	defer unsub()

	m := &MockFeed{Bus: bus, Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, []ledger.AssetID{"ethereum"})

	select {
	case msg := <-ticks:
		assert.Equal(t, ledger.AssetID("ethereum"), msg.(Tick).Asset)
	case <-time.After(time.Second):
		t.Fatal("mock feed published nothing")
	}
}

func TestStreamFeedDropsStaleTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{
			`{"stream":"btcusdt@miniTicker","data":{"E":1700000000000,"s":"BTCUSDT","c":"64000"}}`,
			`{"stream":"btcusdt@miniTicker","data":{"E":1699999999000,"s":"BTCUSDT","c":"63000"}}`,
			`{"stream":"xrpusdt@miniTicker","data":{"E":1700000001000,"s":"XRPUSDT","c":"0.5"}}`,
			`{"stream":"btcusdt@miniTicker","data":{"E":1700000002000,"s":"BTCUSDT","c":"64100"}}`,
		} {
			conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		conn.ReadMessage()
	}))
	defer srv.Close()

	bus := events.NewBus()
	ticks, unsub := bus.Subscribe(events.EventPriceTick, 10)
	defer unsub()

	c := cache.NewShardedPriceCache()
	feed := &StreamFeed{
		Stream:  binance.NewStreamClient("ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"),
		Cache:   c,
		Bus:     bus,
		Symbols: map[ledger.AssetID]string{"bitcoin": "BTCUSDT"},
		Backoff: time.Hour,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed.Start(ctx, []ledger.AssetID{"bitcoin"})

	var prices []string
	timeout := time.After(2 * time.Second)
	for len(prices) < 2 {
		select {
		case ev := <-ticks:
			tk := ev.(Tick)
			assert.Equal(t, ledger.AssetID("bitcoin"), tk.Asset)
			prices = append(prices, tk.Price.String())
		case <-timeout:
			t.Fatalf("received %v", prices)
		}
	}
	assert.Equal(t, []string{"64000", "64100"}, prices)

	p, ok := c.Get("bitcoin")
	require.True(t, ok)
	assert.True(t, p.Equal(decimal.NewFromInt(64100)))
	_, ok = c.Get("xrp")
	assert.False(t, ok)
}
