package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the paper-trading service.
type Config struct {
	Port string

	// Storage
	DBPath          string
	SnapshotBackend string // "sqlite" (default) or "redis"
	RedisAddr       string
	RedisPassword   string
	RedisKey        string

	// Assets, from ASSETS_FILE or the ASSETS list
	AssetsFile string
	Assets     []Asset

	// Market data
	UseMockFeed      bool
	MockStep         float64 // relative random-walk step per mock tick
	MockInterval     time.Duration
	BinanceBaseURL   string
	PriceStream      bool
	BinanceStreamURL string
	MaxPriceAge      time.Duration

	// Advisor service
	EnableAdvisor bool
	AdvisorAddr   string

	// Ledger
	TradingFeeRate    decimal.Decimal
	WithdrawalFeeRate decimal.Decimal

	// Strategy cycles
	EnableScheduler     bool
	CycleInterval       time.Duration
	ExternalTimeout     time.Duration
	MaxConcurrentCycles int
	HistoryLength       int

	// Audit trail
	AuditBatchSize     int
	AuditFlushInterval time.Duration

	// API
	JWTSecret      string
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	// Localization
	Language string // "en" or "zh"
}

// Asset is one entry of the assets file.
type Asset struct {
	ID        string  `yaml:"id"`
	Symbol    string  `yaml:"symbol"`
	MockPrice float64 `yaml:"mock_price"`
}

// AssetsFile represents the top-level YAML structure.
type AssetsFile struct {
	Assets []Asset `yaml:"assets"`
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DBPath:              getEnv("DB_PATH", "./data/papertrade.db"),
		SnapshotBackend:     strings.ToLower(getEnv("SNAPSHOT_BACKEND", "sqlite")),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisKey:            getEnv("REDIS_KEY", "papertrade:ledger"),
		AssetsFile:          getEnv("ASSETS_FILE", "assets.yaml"),
		UseMockFeed:         getEnv("USE_MOCK_FEED", "true") == "true",
		MockStep:            getEnvFloat("MOCK_STEP", 0.01),
		MockInterval:        getEnvDuration("MOCK_INTERVAL", 5*time.Second),
		BinanceBaseURL:      getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
		PriceStream:         getEnv("PRICE_STREAM", "false") == "true",
		BinanceStreamURL:    getEnv("BINANCE_STREAM_URL", "wss://stream.binance.com:9443/stream"),
		MaxPriceAge:         getEnvDuration("MAX_PRICE_AGE", 5*time.Minute),
		EnableAdvisor:       getEnv("ENABLE_ADVISOR", "false") == "true",
		AdvisorAddr:         getEnv("ADVISOR_ADDR", "localhost:50051"),
		EnableScheduler:     getEnv("ENABLE_SCHEDULER", "true") == "true",
		CycleInterval:       getEnvDuration("CYCLE_INTERVAL", time.Hour),
		ExternalTimeout:     getEnvDuration("EXTERNAL_TIMEOUT", 10*time.Second),
		MaxConcurrentCycles: getEnvInt("MAX_CONCURRENT_CYCLES", 4),
		HistoryLength:       getEnvInt("HISTORY_LENGTH", 60),
		AuditBatchSize:      getEnvInt("AUDIT_BATCH_SIZE", 50),
		AuditFlushInterval:  getEnvDuration("AUDIT_FLUSH_INTERVAL", time.Second),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		RequestTimeout:      getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitRPS:        getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 50),
		Language:            getEnv("LANGUAGE", "en"),
	}

	var err error
	if cfg.TradingFeeRate, err = getEnvDecimal("TRADING_FEE_RATE", "0.0005"); err != nil {
		return nil, err
	}
	if cfg.WithdrawalFeeRate, err = getEnvDecimal("WITHDRAWAL_FEE_RATE", "0.0005"); err != nil {
		return nil, err
	}
	if cfg.TradingFeeRate.IsNegative() || cfg.WithdrawalFeeRate.IsNegative() {
		return nil, errors.New("fee rates must not be negative")
	}
	switch cfg.SnapshotBackend {
	case "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", cfg.SnapshotBackend)
	}

	if cfg.Assets, err = loadAssets(cfg.AssetsFile, getEnv("ASSETS", "bitcoin,ethereum")); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAssets reads the assets file.
func LoadAssets(path string) ([]Asset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file AssetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make([]Asset, 0, len(file.Assets))
	seen := make(map[string]bool, len(file.Assets))
	for _, a := range file.Assets {
		a.ID = strings.ToLower(strings.TrimSpace(a.ID))
		if a.ID == "" {
			return nil, fmt.Errorf("%s: asset without id", path)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("%s: duplicate asset %q", path, a.ID)
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out, nil
}

// loadAssets prefers the file; a missing file falls back to the comma-separated list.
func loadAssets(path, list string) ([]Asset, error) {
	if path != "" {
		assets, err := LoadAssets(path)
		switch {
		case err == nil && len(assets) > 0:
			return assets, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}
	}
	var out []Asset
	for _, id := range splitAndTrim(list) {
		out = append(out, Asset{ID: strings.ToLower(id)})
	}
	if len(out) == 0 {
		return nil, errors.New("no assets configured")
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// getEnvDecimal is strict: money settings must not silently fall back.
func getEnvDecimal(key, def string) (decimal.Decimal, error) {
	v := getEnv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid decimal %q", key, v)
	}
	return d, nil
}
