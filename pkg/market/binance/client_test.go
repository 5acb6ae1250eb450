package binance

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
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "BTCUSDT" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
			return
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"64000.12000000"}`))
	})
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"64000.12","priceChangePercent":"-1.25","highPrice":"65000","lowPrice":"63000","volume":"1000","quoteVolume":"64000000"}`))
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100","110","90","105","10",1700003599999,"1050",42,"5","525","0"],
			[1700003600000,"105","112","101","108","12",1700007199999,"1296",40,"6","648","0"]
		]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestTickerPrice(t *testing.T) {
	c := NewClient(newServer(t).URL)

	p, err := c.TickerPrice(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("64000.12")))

	_, err = c.TickerPrice(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestTicker24hAndKlines(t *testing.T) {
	c := NewClient(newServer(t).URL)
	ctx := context.Background()

	st, err := c.Ticker24h(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, st.PriceChangePercent.Equal(decimal.RequireFromString("-1.25")))
	assert.True(t, st.HighPrice.Equal(decimal.NewFromInt(65000)))

	ks, err := c.Klines(ctx, "BTCUSDT", "1d", 2)
	require.NoError(t, err)
	require.Len(t, ks, 2)
	assert.Equal(t, 42, ks[0].NumberOfTrades)
	assert.Equal(t, []float64{105, 108}, Closes(ks))
}

func TestSubscribeTickers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@miniTicker/ethusdt@miniTicker", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000000,"s":"BTCUSDT","c":"64001.5"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"ethusdt@miniTicker","data":{"E":1700000000001,"s":"ETHUSDT","c":"3200"}}`))
		// Hold the connection until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	sc := NewStreamClient("ws" + strings.TrimPrefix(srv.URL, "http") + "/stream")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, stop, err := sc.SubscribeTickers(ctx, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	defer stop()

	var got []Ticker
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case tk := <-ch:
			got = append(got, tk)
		case <-timeout:
			t.Fatalf("received %d tickers", len(got))
		}
	}
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("64001.5")))
	assert.Equal(t, "ETHUSDT", got[1].Symbol)

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestParseMiniTickerFullFrame(t *testing.T) {
	frame := `{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1700000000123,"s":"BTCUSDT",` +
		`"c":"64001.50","o":"63000.00","h":"64500.00","l":"62900.00","v":"1234.5","q":"79000000.0"}}`

	tk, err := parseMiniTicker([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", tk.Symbol)
	assert.Equal(t, int64(1700000000123), tk.Time)
	assert.True(t, tk.Price.Equal(decimal.RequireFromString("64001.5")))

	_, err = parseMiniTicker([]byte(`{"stream":"x","data":{"e":"24hrMiniTicker"}}`))
	assert.Error(t, err)
}
