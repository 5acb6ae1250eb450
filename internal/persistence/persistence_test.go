package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/ledger"
	"papertrade/pkg/db"
)

func newDB(t *testing.T) *db.Database {
	t.Helper()
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.ApplyMigrations(database))
	return database
}

const legacyJSON = `{
	"capital": {"Bitcoin": 499.75, "ethereum": 1000},
	"positions": {"bitcoin": 10},
	"total_cost": {"bitcoin": 500.25, "ethereum": 0},
	"trade_records": {
		"bitcoin": {"timestamp": "2024-05-01T10:00:00.123456", "quantity": 10, "price": 50, "total_profit": 12.5},
		"ethereum": {"timestamp": "2024-05-01T10:00:00", "quantity": 0, "price": 0, "total_profit": 0}
	},
	"user_investments": {"bitcoin": {"Alice": 600, "bob": 400}}
}`

func TestMigrateLegacySnapshot(t *testing.T) {
	snap, err := MigrateSnapshot([]byte(legacyJSON))
	require.NoError(t, err)

	assert.Equal(t, ledger.SnapshotVersion, snap.Version)
	assert.True(t, snap.Capital["bitcoin"].Equal(decimal.RequireFromString("499.75")))
	assert.True(t, snap.Positions["bitcoin"].Equal(decimal.NewFromInt(10)))
	assert.True(t, snap.TradeRecords["bitcoin"].TotalProfit.Equal(decimal.RequireFromString("12.5")))
	assert.Empty(t, snap.TradeRecords["bitcoin"].Records)
	assert.True(t, snap.RealizedProfits["bitcoin"].Equal(decimal.RequireFromString("12.5")))
	assert.True(t, snap.UserInvestments["bitcoin"]["alice"].Equal(decimal.NewFromInt(600)))
	assert.NotNil(t, snap.UserWithdrawals)
	assert.NotNil(t, snap.TotalDeposits)

	l := ledger.New(ledger.DefaultConfig(), nil, nil)
	l.Restore(snap)
	assert.True(t, l.OwnershipPercentage("alice", "bitcoin").Equal(decimal.NewFromInt(60)))
	assert.True(t, l.Account("bitcoin").AverageCost().Equal(decimal.RequireFromString("50.025")))
}

func TestMigrateSingleCoinLegacySnapshot(t *testing.T) {
	doc := `{
		"capital": 1000.0,
		"positions": {"solana": 2},
		"trade_history": [
			{"timestamp": "2024-05-01T10:00:00.123456", "coin": "Solana", "action": "BUY",
			 "quantity": 2, "price": 10, "capital_before": 1020.02, "capital_after": 1000, "profit": 0},
			{"timestamp": "2024-05-02T10:00:00", "coin": "solana", "action": "SELL",
			 "quantity": 1, "price": 13, "capital_before": 1000, "capital_after": 1012.987, "profit": 3},
			{"timestamp": "bogus", "action": "SELL",
			 "quantity": 1, "price": 5, "capital_before": 0, "capital_after": 4.995, "profit": -0.5}
		]
	}`

	snap, err := MigrateSnapshotFor([]byte(doc), "solana")
	require.NoError(t, err)
	assert.True(t, snap.Capital["solana"].Equal(decimal.NewFromInt(1000)))
	assert.Len(t, snap.Capital, 1)

	hist := snap.TradeRecords["solana"]
	require.Len(t, hist.Records, 3)
	assert.Equal(t, ledger.TradeBuy, hist.Records[0].Type)
	assert.True(t, hist.Records[0].TotalCost.Equal(decimal.RequireFromString("20.02")))
	assert.True(t, hist.Records[0].Timestamp.Equal(time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)))
	assert.Equal(t, ledger.TradeSell, hist.Records[1].Type)
	assert.True(t, hist.Records[1].NetProceeds.Equal(decimal.RequireFromString("12.987")))
	assert.True(t, hist.Records[2].Timestamp.IsZero())
	assert.True(t, hist.TotalProfit.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, snap.RealizedProfits["solana"].Equal(decimal.RequireFromString("2.5")))

	// Without a configured asset the single number lands on the default.
	snap, err = MigrateSnapshot([]byte(`{"capital": 250.5}`))
	require.NoError(t, err)
	assert.True(t, snap.Capital[DefaultLegacyAsset].Equal(decimal.RequireFromString("250.5")))
}

func TestSQLiteGatewayLoadsSingleCoinLegacyRow(t *testing.T) {
	ctx := context.Background()
	database := newDB(t)
	require.NoError(t, database.SaveSnapshot(ctx, 0, []byte(`{"capital": 1000.0, "positions": {}, "trade_history": []}`)))

	l := ledger.New(ledger.DefaultConfig(), NewSQLiteGateway(database).WithLegacyAsset("ethereum"), nil)
	require.NoError(t, l.Load(ctx))
	assert.True(t, l.Capital("ethereum").Equal(decimal.NewFromInt(1000)))
}

func TestMigrateCurrentAndUnknownVersions(t *testing.T) {
	snap, err := MigrateSnapshot([]byte(`{"version":1,"capital":{"bitcoin":"12.5"}}`))
	require.NoError(t, err)
	assert.True(t, snap.Capital["bitcoin"].Equal(decimal.RequireFromString("12.5")))
	assert.NotNil(t, snap.TradeRecords)

	_, err = MigrateSnapshot([]byte(`{"version":99}`))
	assert.Error(t, err)

	_, err = MigrateSnapshot([]byte(`not json`))
	assert.Error(t, err)
}

func TestSQLiteGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	gw := NewSQLiteGateway(newDB(t))

	snap, err := gw.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	l := ledger.New(ledger.DefaultConfig(), gw, nil)
	require.NoError(t, l.Deposit("alice", "bitcoin", decimal.NewFromInt(1000)))
	_, err = l.SimulateBuy("bitcoin", decimal.NewFromInt(10), decimal.NewFromInt(50), "test")
	require.NoError(t, err)
	require.NoError(t, l.Save(ctx))

	restored := ledger.New(ledger.DefaultConfig(), gw, nil)
	require.NoError(t, restored.Load(ctx))
	acct := restored.Account("bitcoin")
	assert.True(t, acct.Capital.Equal(decimal.RequireFromString("499.75")))
	assert.True(t, acct.CostBasis.Equal(decimal.RequireFromString("500.25")))
	require.Len(t, restored.Trades("bitcoin").Records, 1)
	assert.Equal(t, "test", restored.Trades("bitcoin").Records[0].Reason)
}

func TestSQLiteGatewayRewritesLegacyRow(t *testing.T) {
	ctx := context.Background()
	database := newDB(t)
	require.NoError(t, database.SaveSnapshot(ctx, 0, []byte(legacyJSON)))

	gw := NewSQLiteGateway(database)
	snap, err := gw.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap)

	row, err := database.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.SnapshotVersion, row.Version)
}

func TestRedisGatewayUnreachable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	gw := NewRedisGateway(rdb, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := gw.Load(ctx)
	assert.Error(t, err)
	assert.Error(t, gw.Save(ctx, ledger.NewSnapshot()))

	l := ledger.New(ledger.DefaultConfig(), gw, nil)
	err = l.Save(ctx)
	assert.ErrorIs(t, err, ledger.ErrPersistenceFailure)
}

type countingRecorder struct{ n int }

func (c *countingRecorder) RecordDuration(time.Duration) { c.n++ }

func TestAuditWriterFlush(t *testing.T) {
	database := newDB(t)
	rec := &countingRecorder{}
	aw := NewAuditWriter(database.DB, 10, time.Hour).WithLatency(rec)

	l := ledger.New(ledger.DefaultConfig(), nil, nil)
	require.NoError(t, l.Deposit("alice", "bitcoin", decimal.NewFromInt(100)))
	trade, err := l.SimulateBuy("bitcoin", decimal.NewFromInt(1), decimal.NewFromInt(10), "test")
	require.NoError(t, err)

	aw.RecordTrade(trade)
	aw.RecordFlow(db.CapitalFlow{ID: "f1", UserID: "alice", Asset: "bitcoin", Kind: "DEPOSIT", Amount: "100", Fee: "0", CreatedAt: time.Now().UTC()})
	aw.RecordFlow(db.CapitalFlow{ID: "f2", Asset: "bitcoin", Kind: "DEPOSIT", Amount: "1"})
	assert.Equal(t, 2, aw.Pending())

	require.NoError(t, aw.Close())
	assert.Equal(t, 0, aw.Pending())

	trades, err := database.ListTradeAudit(context.Background(), "bitcoin", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, trade.ID, trades[0].ID)
	assert.Equal(t, "buy", trades[0].Side)

	flows, err := database.Queries().ListFlowsByUser(context.Background(), "alice", "", 10)
	require.NoError(t, err)
	assert.Len(t, flows, 1)

	m := aw.Metrics()
	assert.Equal(t, uint64(2), m.TotalWrites)
	assert.Equal(t, uint64(0), m.TotalErrors)
	assert.Equal(t, 1, rec.n)
}
