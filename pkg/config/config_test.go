package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutAssetsFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ASSETS_FILE", "missing.yaml")
	t.Setenv("ASSETS", "Bitcoin, solana")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.SnapshotBackend)
	assert.Equal(t, time.Hour, cfg.CycleInterval)
	assert.Equal(t, "0.0005", cfg.TradingFeeRate.String())
	require.Len(t, cfg.Assets, 2)
	assert.Equal(t, "bitcoin", cfg.Assets[0].ID)
	assert.Equal(t, "solana", cfg.Assets[1].ID)
}

func TestLoadReadsAssetsFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
assets:
  - id: Bitcoin
    symbol: BTCUSDT
    mock_price: 65000
  - id: ethereum
`), 0o644))
	t.Setenv("ASSETS_FILE", path)
	t.Setenv("CYCLE_INTERVAL", "15m")
	t.Setenv("WITHDRAWAL_FEE_RATE", "0.001")
	t.Setenv("MAX_CONCURRENT_CYCLES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Assets, 2)
	assert.Equal(t, Asset{ID: "bitcoin", Symbol: "BTCUSDT", MockPrice: 65000}, cfg.Assets[0])
	assert.Equal(t, 15*time.Minute, cfg.CycleInterval)
	assert.Equal(t, "0.001", cfg.WithdrawalFeeRate.String())
	assert.Equal(t, 4, cfg.MaxConcurrentCycles)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ASSETS_FILE", "missing.yaml")

	t.Setenv("TRADING_FEE_RATE", "abc")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("TRADING_FEE_RATE", "0.0005")
	t.Setenv("SNAPSHOT_BACKEND", "postgres")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadAssetsRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets:\n  - id: bitcoin\n  - id: BITCOIN\n"), 0o644))

	_, err := LoadAssets(path)
	assert.Error(t, err)
}
