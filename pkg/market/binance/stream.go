package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// DefaultStreamURL is the public combined-stream endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/stream"

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client. An empty streamURL uses DefaultStreamURL.
func NewStreamClient(streamURL string) *StreamClient {
	if streamURL == "" {
		streamURL = DefaultStreamURL
	}
	return &StreamClient{
		StreamURL: streamURL,
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeTickers listens to the miniTicker stream of every symbol over one combined
// connection. It returns the channel and a stop function.
func (c *StreamClient) SubscribeTickers(ctx context.Context, symbols []string) (<-chan Ticker, func(), error) {
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("no symbols to subscribe")
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		// Binance requires lowercase symbols for WebSocket streams
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	u := c.StreamURL + "?streams=" + url.QueryEscape(strings.Join(streams, "/"))

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan Ticker, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		defer close(out)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If connection already closed by caller/context, just exit quietly.
				if ctx.Err() != nil ||
					websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws read error: %v", err)
				return
			}

			parsed, err := parseMiniTicker(msg)
			if err != nil {
				log.Printf("binance ws parse error: %v", err)
				continue
			}
			select {
			case out <- parsed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

// parseMiniTicker decodes only the fields we need from a combined-stream frame.
func parseMiniTicker(msg []byte) (Ticker, error) {
	var raw struct {
		Stream string `json:"stream"`
		Data   struct {
			// "e" must be declared or encoding/json folds it into "E".
			Event     string          `json:"e"`
			EventTime int64           `json:"E"`
			Symbol    string          `json:"s"`
			Close     decimal.Decimal `json:"c"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Ticker{}, err
	}
	if raw.Data.Symbol == "" {
		return Ticker{}, fmt.Errorf("frame without symbol on %q", raw.Stream)
	}
	return Ticker{
		Symbol: raw.Data.Symbol,
		Price:  raw.Data.Close,
		Time:   raw.Data.EventTime,
	}, nil
}
