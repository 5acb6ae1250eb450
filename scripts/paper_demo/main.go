package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/advisor"
	"papertrade/internal/events"
	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
	"papertrade/internal/predict"
	"papertrade/internal/risk"
	"papertrade/internal/strategy"
	"papertrade/pkg/cache"
)

// paper_demo runs a few strategy cycles fully in memory: mock prices, rule-based
// advisor, no database and no network.
//
// Usage:
//   go run ./scripts/paper_demo -cycles 10 -asset bitcoin
//
// It will:
//   1) Deposit paper money for two users.
//   2) Run the requested number of cycles and print each summary.
//   3) Withdraw part of one share and print the pool performance.

func main() {
	cycles := flag.Int("cycles", 10, "number of cycles to run")
	assetFlag := flag.String("asset", "bitcoin", "asset id")
	seed := flag.Int64("seed", 42, "mock feed seed")
	flag.Parse()

	log.Println("=== Paper-trading demo starting ===")

	asset, err := ledger.ParseAssetID(*assetFlag)
	if err != nil {
		log.Fatalf("bad asset: %v", err)
	}

	ctx := context.Background()
	bus := events.NewBus()
	priceCache := cache.NewShardedPriceCache()
	feed := &market.MockFeed{
		Bus:         bus,
		Cache:       priceCache,
		StartPrices: map[ledger.AssetID]float64{asset: 100},
		Step:        0.02,
		Seed:        *seed,
	}

	// No cooldown so every cycle can trade.
	riskCfg := risk.DefaultConfig()
	riskCfg.CooldownSeconds = 0
	riskCtl := risk.NewInMemory(riskCfg)

	l := ledger.New(ledger.DefaultConfig(), nil, feed)
	eng, err := strategy.New(strategy.Deps{
		Ledger:     l,
		Risk:       riskCtl,
		Prices:     feed,
		History:    feed,
		Predictor:  predict.New(predict.DefaultConfig()),
		Sentiment:  advisor.NeutralSentiment{},
		Advisor:    advisor.NewRuleAdvisor(),
		Cache:      priceCache,
		Indicators: indicators.NewEngine(5, 20, 20, 14, 100),
		Bus:        bus,
	}, strategy.DefaultConfig())
	if err != nil {
		log.Fatalf("strategy engine: %v", err)
	}

	log.Printf("[SCENARIO 1] Deposits into %s", asset)
	for user, amount := range map[ledger.UserID]int64{"alice": 600, "bob": 400} {
		if err := l.Deposit(user, asset, decimal.NewFromInt(amount)); err != nil {
			log.Fatalf("deposit %s: %v", user, err)
		}
	}

	log.Printf("[SCENARIO 2] Running %d cycles", *cycles)
	for i := 0; i < *cycles; i++ {
		res, err := eng.Run(ctx, asset)
		if err != nil {
			log.Printf("cycle %d failed: %v", i+1, err)
			continue
		}
		log.Printf("cycle %d | price %s | %s", i+1, res.Price.StringFixed(2), res.Summary)
		time.Sleep(10 * time.Millisecond)
	}

	log.Println("[SCENARIO 3] Alice withdraws 100")
	w, err := l.Withdraw("alice", asset, decimal.NewFromInt(100))
	if err != nil {
		log.Printf("withdraw refused: %v", err)
	} else {
		log.Printf("withdrawal gross=%s fee=%s net=%s", w.Gross, w.Fee, w.Net)
	}

	price, _ := feed.LastPrice(asset)
	perf := l.CoinPerformanceSummary(asset, price)
	log.Printf("[DONE] capital=%s position=%s realized=%s total value=%s",
		perf.Capital.StringFixed(2), perf.Position.String(), perf.RealizedProfits.StringFixed(2), perf.TotalPortfolioValue.StringFixed(2))
	for _, user := range []ledger.UserID{"alice", "bob"} {
		d := l.UserInvestmentDetails(user, asset, price)
		log.Printf("  %s: ownership %s%% share %s", user, d.OwnershipPercentage.StringFixed(2), d.CurrentShare.StringFixed(2))
	}

	log.Println("=== Paper-trading demo finished ===")
}
