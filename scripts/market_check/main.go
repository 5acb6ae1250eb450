package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/advisor"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
	"papertrade/internal/strategy"
	"papertrade/pkg/config"
	"papertrade/pkg/market/binance"
)

// market_check quickly verifies the external services the cycle depends on.
//
// Usage:
//   go run ./scripts/market_check
//
// Reads the same environment as the service (ASSETS_FILE / ASSETS, BINANCE_BASE_URL,
// ENABLE_ADVISOR, ADVISOR_ADDR). For every configured asset it fetches the ticker,
// the 24h stats and a few klines; when the advisor is enabled it asks for a decision
// and a sentiment score. Nothing is written anywhere.

func main() {
	log.Println("=== Market check starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	client := binance.NewClient(cfg.BinanceBaseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Ping(ctx); err != nil {
		log.Printf("[BINANCE] ping error: %v", err)
	} else {
		log.Printf("[BINANCE] ping OK (%s)", cfg.BinanceBaseURL)
	}
	cancel()

	symbols := make(map[ledger.AssetID]string, len(cfg.Assets))
	for _, a := range cfg.Assets {
		symbols[ledger.AssetID(a.ID)] = a.Symbol
	}

	var adv *advisor.Client
	if cfg.EnableAdvisor {
		adv, err = advisor.Dial(cfg.AdvisorAddr)
		if err != nil {
			log.Printf("[ADVISOR] dial error: %v", err)
		} else {
			defer adv.Close()
		}
	} else {
		log.Println("[ADVISOR] ENABLE_ADVISOR=false, skipping advisor checks")
	}

	for _, a := range cfg.Assets {
		asset := ledger.AssetID(a.ID)
		checkAsset(client, asset, market.SymbolFor(symbols, asset))
		if adv != nil {
			checkAdvisor(adv, asset)
		}
	}

	log.Println("=== Market check finished ===")
}

func checkAsset(c *binance.Client, asset ledger.AssetID, symbol string) {
	log.Printf("---- [%s] %s ----", asset, symbol)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	price, err := c.TickerPrice(ctx, symbol)
	if err != nil {
		log.Printf("[%s] TickerPrice error: %v", asset, err)
	} else {
		log.Printf("[%s] price=%s", asset, price)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	stats, err := c.Ticker24h(ctx2, symbol)
	if err != nil {
		log.Printf("[%s] Ticker24h error: %v", asset, err)
	} else {
		log.Printf("[%s] 24h %+v", asset, stats)
	}

	ctx3, cancel3 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel3()
	klines, err := c.Klines(ctx3, symbol, "1h", 5)
	if err != nil {
		log.Printf("[%s] Klines error: %v", asset, err)
	} else {
		log.Printf("[%s] last closes %v", asset, binance.Closes(klines))
	}
}

func checkAdvisor(c *advisor.Client, asset ledger.AssetID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := c.Sentiment(ctx, asset)
	if err != nil {
		log.Printf("[ADVISOR] Sentiment(%s) error: %v", asset, err)
	} else {
		log.Printf("[ADVISOR] Sentiment(%s) score=%.2f", asset, s.Score)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	rec, err := c.Decide(ctx2, strategy.DecisionContext{
		Asset:   asset,
		Price:   decimal.NewFromInt(100),
		Capital: decimal.NewFromInt(1000),
		Report:  "connectivity check",
	})
	if err != nil {
		log.Printf("[ADVISOR] Decide(%s) error: %v", asset, err)
	} else {
		log.Printf("[ADVISOR] Decide(%s) action=%s source=%s", asset, rec.Action, rec.Source)
	}
}
