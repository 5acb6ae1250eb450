package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"papertrade/internal/advisor"
	"papertrade/internal/api"
	"papertrade/internal/engine"
	"papertrade/internal/events"
	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
	"papertrade/internal/monitor"
	"papertrade/internal/persistence"
	"papertrade/internal/predict"
	"papertrade/internal/risk"
	"papertrade/internal/scheduler"
	"papertrade/internal/strategy"
	"papertrade/pkg/cache"
	"papertrade/pkg/config"
	"papertrade/pkg/db"
	"papertrade/pkg/i18n"
	"papertrade/pkg/market/binance"
)

// marketSource is what the strategy engine and the ledger need from a price feed.
type marketSource interface {
	strategy.PriceProvider
	strategy.HistoryProvider
	ledger.PriceSource
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
	}

	i18n.SetLanguage(i18n.Language(cfg.Language))
	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("ConfigLoaded"), cfg.Port)
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buildVersion := os.Getenv("APP_VERSION")
	if buildVersion == "" {
		buildVersion = "v1.0-dev"
	}

	assets := make([]ledger.AssetID, 0, len(cfg.Assets))
	symbols := make(map[ledger.AssetID]string, len(cfg.Assets))
	startPrices := make(map[ledger.AssetID]float64, len(cfg.Assets))
	for _, a := range cfg.Assets {
		id, err := ledger.ParseAssetID(a.ID)
		if err != nil {
			log.Fatalf(i18n.Get("ConfigLoadFailed"), err)
		}
		assets = append(assets, id)
		if a.Symbol != "" {
			symbols[id] = a.Symbol
		}
		if a.MockPrice > 0 {
			startPrices[id] = a.MockPrice
		}
	}
	log.Printf(i18n.Get("AssetsConfigured"), assets)

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf(i18n.Get("DBMigrationsFailed"), err)
	}

	sysMetrics := monitor.NewSystemMetrics()
	log.Println(i18n.Get("SystemMetricsInit"))

	// Market data
	priceCache := cache.NewShardedPriceCache()
	var feed marketSource
	if cfg.UseMockFeed {
		mock := &market.MockFeed{
			Bus:         bus,
			Cache:       priceCache,
			StartPrices: startPrices,
			Step:        cfg.MockStep,
			Interval:    cfg.MockInterval,
			Seed:        time.Now().UnixNano(),
		}
		mock.Start(ctx, assets)
		feed = mock
		log.Println(i18n.Get("MockFeedStarted"))
	} else {
		feed = market.NewPriceService(binance.NewClient(cfg.BinanceBaseURL), priceCache, bus, symbols)
		log.Printf(i18n.Get("BinanceFeedStarted"), cfg.BinanceBaseURL)
		if cfg.PriceStream {
			stream := &market.StreamFeed{
				Stream:  binance.NewStreamClient(cfg.BinanceStreamURL),
				Cache:   priceCache,
				Bus:     bus,
				Symbols: symbols,
			}
			stream.Start(ctx, assets)
			log.Printf(i18n.Get("PriceStreamStarted"), cfg.BinanceStreamURL)
		}
	}

	// Ledger with its snapshot gateway
	// Single-coin legacy snapshots belong to the first configured asset.
	legacyAsset := persistence.DefaultLegacyAsset
	if len(assets) > 0 {
		legacyAsset = assets[0]
	}
	var gateway ledger.Gateway = persistence.NewSQLiteGateway(database).WithLegacyAsset(legacyAsset)
	snapshotBackend := "sqlite"
	if cfg.SnapshotBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Printf(i18n.Get("RedisUnavailable"), err)
			_ = rdb.Close()
		} else {
			defer rdb.Close()
			gateway = persistence.NewRedisGateway(rdb, cfg.RedisKey).WithLegacyAsset(legacyAsset)
			snapshotBackend = "redis"
		}
	}
	log.Printf(i18n.Get("SnapshotBackend"), snapshotBackend)

	l := ledger.New(ledger.Config{
		TradingFeeRate:    cfg.TradingFeeRate,
		WithdrawalFeeRate: cfg.WithdrawalFeeRate,
	}, gateway, feed)
	// Refuse to start on an unreadable snapshot; an empty ledger would overwrite it on the first save.
	if err := l.Load(ctx); err != nil {
		log.Fatalf(i18n.Get("LedgerLoadFailed"), err)
	}
	log.Printf(i18n.Get("LedgerLoaded"), len(l.Assets()), l.TotalCapital().StringFixed(2))

	// Risk controller
	riskCtl, err := risk.NewController(database.DB)
	if err != nil {
		log.Printf(i18n.Get("RiskControllerInitFailed"), err)
		riskCtl = risk.NewInMemory(risk.DefaultConfig())
	}
	riskCfg := riskCtl.GetConfig()
	log.Printf(i18n.Get("RiskControllerInit"), pct(riskCfg.BaseStopLoss), riskCfg.Cooldown())

	// Signals: remote advisor when enabled, rules otherwise
	var (
		recommender strategy.RecommendationProvider = advisor.NewRuleAdvisor()
		sentiment   strategy.SentimentProvider      = advisor.NeutralSentiment{}
		advisorOn   bool
	)
	if cfg.EnableAdvisor {
		client, err := advisor.Dial(cfg.AdvisorAddr)
		if err != nil {
			log.Printf(i18n.Get("AdvisorDialFailed"), err)
		} else {
			defer client.Close()
			recommender, sentiment, advisorOn = client, client, true
			log.Printf(i18n.Get("AdvisorEnabled"), cfg.AdvisorAddr)
		}
	}
	if !advisorOn {
		log.Println(i18n.Get("RuleAdvisorActive"))
	}

	audit := persistence.NewAuditWriter(database.DB, cfg.AuditBatchSize, cfg.AuditFlushInterval).WithLatency(sysMetrics.DBLatency)
	defer audit.Close()

	indEngine := indicators.NewEngine(7, 25, 20, 14, 200)

	stratEngine, err := strategy.New(strategy.Deps{
		Ledger:     l,
		Risk:       riskCtl,
		Prices:     feed,
		History:    feed,
		Predictor:  predict.New(predict.DefaultConfig()),
		Sentiment:  sentiment,
		Advisor:    recommender,
		Cache:      priceCache,
		Indicators: indEngine,
		Reports:    engine.NewDBReports(database),
		Trades:     audit,
		Bus:        bus,
		Metrics:    sysMetrics,
	}, strategy.Config{
		ExternalTimeout: cfg.ExternalTimeout,
		HistoryLength:   cfg.HistoryLength,
	})
	if err != nil {
		log.Fatalf(i18n.Get("StrategyInitFailed"), err)
	}

	sched := scheduler.New(stratEngine, assets, cfg.CycleInterval, cfg.MaxConcurrentCycles)
	if cfg.EnableScheduler {
		sched.Start(ctx)
		log.Printf(i18n.Get("SchedulerStarted"), cfg.CycleInterval, cfg.MaxConcurrentCycles)
	} else {
		log.Println(i18n.Get("SchedulerDisabled"))
	}

	assetNames := make([]string, len(assets))
	for i, a := range assets {
		assetNames[i] = string(a)
	}
	engService := engine.NewImpl(engine.Config{
		Ledger:       l,
		Risk:         riskCtl,
		Scheduler:    sched,
		Cycles:       stratEngine,
		Prices:       feed,
		Cache:        priceCache,
		Indicators:   indEngine,
		Flows:        audit,
		Bus:          bus,
		DB:           database,
		Symbols:      func(a ledger.AssetID) string { return market.SymbolFor(symbols, a) },
		MaxPriceAge:  cfg.MaxPriceAge,
		PriceTimeout: cfg.ExternalTimeout,
		Meta: engine.SystemStatus{
			Assets:          assetNames,
			UseMockFeed:     cfg.UseMockFeed,
			AdvisorEnabled:  advisorOn,
			SnapshotBackend: snapshotBackend,
			Version:         buildVersion,
		},
	})
	log.Println(i18n.Get("EngineServiceInit"))

	monitor.New(bus, monitor.LogSink{}).Start(ctx)

	// API
	server := api.NewServer(bus, database, engService, sysMetrics, cfg.JWTSecret, api.Options{
		RequestTimeout: cfg.RequestTimeout,
		RatePerSecond:  cfg.RateLimitRPS,
		RateBurst:      cfg.RateLimitBurst,
	})
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf(i18n.Get("ServerListening"), cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf(i18n.Get("APIServerError"), err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println(i18n.Get("ShuttingDown"))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf(i18n.Get("APIServerError"), err)
	}

	// Stop the ticker, let running cycles finish, then persist the final state.
	cancel()
	sched.Wait()
	if err := l.Save(shutdownCtx); err != nil {
		log.Printf(i18n.Get("LedgerSaveFailed"), err)
	} else {
		log.Println(i18n.Get("LedgerSaved"))
	}
	log.Println(i18n.Get("ShutdownComplete"))
}

// pct renders a fraction such as 0.05 as "5.00%".
func pct(f float64) string {
	return fmt.Sprintf("%.2f%%", f*100)
}
