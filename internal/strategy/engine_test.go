package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"papertrade/internal/events"
	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/risk"
	"papertrade/pkg/cache"
)

const btc ledger.AssetID = "bitcoin"

type fixedPrice struct {
	price decimal.Decimal
	err   error
}

func (p *fixedPrice) Price(ctx context.Context, asset ledger.AssetID) (decimal.Decimal, error) {
	return p.price, p.err
}

// MockPredictor is a mock implementation of PredictionProvider for testing
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, asset ledger.AssetID, closes []float64) (Prediction, error) {
	args := m.Called(ctx, asset, closes)
	return args.Get(0).(Prediction), args.Error(1)
}

// MockSentiment is a mock implementation of SentimentProvider for testing
type MockSentiment struct {
	mock.Mock
}

func (m *MockSentiment) Sentiment(ctx context.Context, asset ledger.AssetID) (Sentiment, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(Sentiment), args.Error(1)
}

// MockAdvisor is a mock implementation of RecommendationProvider for testing
type MockAdvisor struct {
	mock.Mock
}

func (m *MockAdvisor) Decide(ctx context.Context, dc DecisionContext) (Recommendation, error) {
	args := m.Called(ctx, dc)
	return args.Get(0).(Recommendation), args.Error(1)
}

type recordingSink struct{ trades []ledger.TradeRecord }

func (s *recordingSink) RecordTrade(rec ledger.TradeRecord) { s.trades = append(s.trades, rec) }

type memReports struct{ last map[ledger.AssetID]CycleResult }

func (r *memReports) SaveReport(ctx context.Context, res CycleResult) error {
	r.last[res.Asset] = res
	return nil
}

type failingGateway struct{}

func (failingGateway) Load(ctx context.Context) (*ledger.Snapshot, error) { return nil, nil }

func (failingGateway) Save(ctx context.Context, snap *ledger.Snapshot) error {
	return errors.New("disk full")
}

type fixture struct {
	engine    *Engine
	ledger    *ledger.Ledger
	risk      *risk.Controller
	prices    *fixedPrice
	predictor *MockPredictor
	sentiment *MockSentiment
	advisor   *MockAdvisor
	trades    *recordingSink
	reports   *memReports
	bus       *events.Bus
	cache     *cache.ShardedPriceCache
}

func newFixture(t *testing.T, gw ledger.Gateway, price string) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    ledger.New(ledger.DefaultConfig(), gw, nil),
		risk:      risk.NewInMemory(risk.DefaultConfig()),
		prices:    &fixedPrice{price: decimal.RequireFromString(price)},
		predictor: new(MockPredictor),
		sentiment: new(MockSentiment),
		advisor:   new(MockAdvisor),
		trades:    &recordingSink{},
		reports:   &memReports{last: map[ledger.AssetID]CycleResult{}},
		bus:       events.NewBus(),
		cache:     cache.NewShardedPriceCache(),
	}
	e, err := New(Deps{
		Ledger:     f.ledger,
		Risk:       f.risk,
		Prices:     f.prices,
		Predictor:  f.predictor,
		Sentiment:  f.sentiment,
		Advisor:    f.advisor,
		Cache:      f.cache,
		Indicators: indicators.NewEngine(5, 20, 20, 14, 100),
		Reports:    f.reports,
		Trades:     f.trades,
		Bus:        f.bus,
	}, DefaultConfig())
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *fixture) signals(predicted, sentiment float64, action Action) {
	f.predictor.On("Predict", mock.Anything, btc, mock.Anything).Return(Prediction{PredictedClose: predicted, Uncertainty: 1}, nil)
	f.sentiment.On("Sentiment", mock.Anything, btc).Return(Sentiment{Score: sentiment, Text: "markets calm"}, nil)
	f.advisor.On("Decide", mock.Anything, mock.Anything).Return(Recommendation{Action: action}, nil)
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{}, DefaultConfig())
	assert.Error(t, err)

	_, err = New(Deps{
		Ledger: ledger.New(ledger.DefaultConfig(), nil, nil),
		Risk:   risk.NewInMemory(risk.DefaultConfig()),
		Prices: &fixedPrice{},
	}, DefaultConfig())
	assert.Error(t, err)
}

func TestRunBuySizedBySignalStrength(t *testing.T) {
	f := newFixture(t, nil, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	f.signals(53, 0.6, ActionBuy)

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)

	assert.Equal(t, ActionBuy, res.Recommendation)
	assert.Equal(t, ActionBuy, res.Action)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "15.99200399", res.Trade.Quantity.String())
	assert.Equal(t, "15.99200399", f.ledger.Position(btc).String())
	assert.Len(t, f.trades.trades, 1)
	assert.Contains(t, res.Report, "Simulated BUY")
	assert.Contains(t, res.Report, "Recommendation: BUY")

	cached, ok := f.cache.Get(string(btc))
	assert.True(t, ok)
	assert.True(t, cached.Equal(decimal.NewFromInt(50)))

	stored, ok := f.reports.last[btc]
	require.True(t, ok)
	assert.Equal(t, res.Summary, stored.Summary)

	// Advisor saw the preliminary report with the potential trade.
	dc := f.advisor.Calls[0].Arguments.Get(1).(DecisionContext)
	assert.Contains(t, dc.Report, "Potential BUY")
	assert.True(t, dc.Capital.Equal(decimal.NewFromInt(1000)))
}

func TestRunCooldownSkipsDecision(t *testing.T) {
	f := newFixture(t, nil, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	f.signals(53, 0.6, ActionBuy)

	_, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, res.Action)
	assert.Nil(t, res.Prediction)
	assert.Contains(t, res.Report, "Cooldown active")
	assert.Contains(t, res.Report, "HOLD (cooldown)")
	f.advisor.AssertNumberOfCalls(t, "Decide", 1)
}

func TestRunBuyBlockedByDailyLossLimit(t *testing.T) {
	f := newFixture(t, nil, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	cfg := risk.DefaultConfig()
	cfg.MaxDailyLoss = 25
	require.NoError(t, f.risk.UpdateConfig(context.Background(), cfg))
	require.NoError(t, f.risk.UpdateMetrics(risk.TradeResult{Asset: btc, Side: "SELL", PnL: -30}))
	f.signals(53, 0.6, ActionBuy)

	alerts, unsub := f.bus.Subscribe(events.EventRiskAlert, 1)
	defer unsub()

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, res.Recommendation)
	assert.Equal(t, ActionHold, res.Action)
	assert.Nil(t, res.Trade)
	assert.Contains(t, res.Report, "BUY blocked: daily loss limit reached")
	assert.True(t, f.ledger.Position(btc).IsZero())
	assert.Empty(t, f.trades.trades)

	select {
	case ev := <-alerts:
		alert := ev.(RiskAlert)
		assert.Equal(t, btc, alert.Asset)
		assert.Equal(t, "bitcoin: daily loss limit reached: 30.00/25.00", alert.String())
	case <-time.After(time.Second):
		t.Fatal("risk alert not published")
	}
}

func TestRunHoldLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, nil, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	f.predictor.On("Predict", mock.Anything, btc, mock.Anything).Return(Prediction{PredictedClose: 50}, nil)
	f.sentiment.On("Sentiment", mock.Anything, btc).Return(Sentiment{}, nil)
	f.advisor.On("Decide", mock.Anything, mock.Anything).Return(Recommendation{Action: "maybe later"}, nil)

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, res.Recommendation)
	assert.Equal(t, ActionHold, res.Action)
	assert.Nil(t, res.Trade)
	assert.True(t, f.ledger.Capital(btc).Equal(decimal.NewFromInt(1000)))
	assert.Contains(t, res.Report, "No trade executed")
}

func TestRunDynamicStopExitsBeforeAdvisor(t *testing.T) {
	f := newFixture(t, nil, "48")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	_, err := f.ledger.SimulateBuy(btc, decimal.NewFromInt(10), decimal.NewFromInt(50), "seed")
	require.NoError(t, err)

	stops, unsub := f.bus.Subscribe(events.EventStopTriggered, 1)
	defer unsub()

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	require.NotNil(t, res.Exit)
	assert.Equal(t, risk.ExitDynamicStop, res.Exit.Kind)
	assert.Equal(t, ActionSell, res.Action)
	assert.Equal(t, "5", f.ledger.Position(btc).String())
	assert.Contains(t, res.Report, "SELL (Dynamic stop-loss)")
	f.advisor.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	assert.Equal(t, uint64(1), f.risk.GetMetrics().StopExits)

	select {
	case ev := <-stops:
		assert.Equal(t, risk.ExitDynamicStop, ev.(risk.Exit).Kind)
	case <-time.After(time.Second):
		t.Fatal("stop event not published")
	}
}

func TestRunTrailingStopBypassesCooldown(t *testing.T) {
	f := newFixture(t, nil, "59")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	_, err := f.ledger.SimulateBuy(btc, decimal.NewFromInt(10), decimal.NewFromInt(50), "seed")
	require.NoError(t, err)
	f.risk.Seed(btc, f.ledger.Trades(btc).Activity())
	f.risk.ObservePrice(btc, decimal.NewFromInt(60), true)
	require.False(t, f.risk.CooldownElapsed(btc, time.Now()))

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	require.NotNil(t, res.Exit)
	assert.Equal(t, risk.ExitTrailingStop, res.Exit.Kind)
	assert.Equal(t, ActionSell, res.Action)
	assert.Equal(t, "5", f.ledger.Position(btc).String())
	assert.Contains(t, res.Report, "SELL (Trailing stop-loss)")
	assert.NotContains(t, res.Report, "Cooldown active")
	f.advisor.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
	assert.Equal(t, uint64(1), f.risk.GetMetrics().StopExits)
	assert.Equal(t, uint64(0), f.risk.GetMetrics().PeriodicExits)
}

func TestRunPeriodicSellAfterHold(t *testing.T) {
	f := newFixture(t, nil, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	_, err := f.ledger.SimulateBuy(btc, decimal.NewFromInt(10), decimal.NewFromInt(50), "seed")
	require.NoError(t, err)
	later := time.Now().Add(73 * time.Hour)
	f.engine.now = func() time.Time { return later }
	f.signals(50, 0, ActionHold)

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, ActionHold, res.Recommendation)
	assert.Equal(t, ActionSell, res.Action)
	require.NotNil(t, res.Exit)
	assert.Equal(t, risk.ExitPeriodic, res.Exit.Kind)
	assert.Equal(t, "1", res.Trade.Quantity.String())
	assert.Equal(t, "9", f.ledger.Position(btc).String())
	assert.Contains(t, res.Report, "Periodic sell-off")
	assert.Equal(t, uint64(1), f.risk.GetMetrics().PeriodicExits)
}

func TestRunPeriodicSellDuringCooldown(t *testing.T) {
	f := newFixture(t, nil, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	_, err := f.ledger.SimulateBuy(btc, decimal.NewFromInt(10), decimal.NewFromInt(50), "seed")
	require.NoError(t, err)
	later := time.Now().Add(73 * time.Hour)
	f.engine.now = func() time.Time { return later }
	// Opened with the seed buy, topped up a minute ago.
	f.risk.Seed(btc, f.ledger.Trades(btc).Activity())
	f.risk.RecordBuy(btc, decimal.NewFromInt(50), later.Add(-time.Minute))

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Contains(t, res.Report, "HOLD (cooldown)")
	require.NotNil(t, res.Exit)
	assert.Equal(t, risk.ExitPeriodic, res.Exit.Kind)
	assert.Equal(t, "9", f.ledger.Position(btc).String())
	f.advisor.AssertNotCalled(t, "Decide", mock.Anything, mock.Anything)
}

func TestRunPeriodicSkippedAfterSellInSameCycle(t *testing.T) {
	f := newFixture(t, nil, "53")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	_, err := f.ledger.SimulateBuy(btc, decimal.NewFromInt(10), decimal.NewFromInt(50), "seed")
	require.NoError(t, err)
	later := time.Now().Add(73 * time.Hour)
	f.engine.now = func() time.Time { return later }
	f.signals(54, 0, ActionSell)

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, res.Action)
	assert.Nil(t, res.Exit)
	assert.Equal(t, "5", f.ledger.Position(btc).String())
	assert.Len(t, f.trades.trades, 1)
	assert.NotContains(t, res.Report, "Periodic sell-off")
	assert.Equal(t, uint64(0), f.risk.GetMetrics().PeriodicExits)
}

func TestRunTieredSell(t *testing.T) {
	f := newFixture(t, nil, "53")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	_, err := f.ledger.SimulateBuy(btc, decimal.NewFromInt(10), decimal.NewFromInt(50), "seed")
	require.NoError(t, err)
	later := time.Now().Add(time.Hour)
	f.engine.now = func() time.Time { return later }
	f.signals(54, 0, ActionSell)

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, res.Action)
	require.NotNil(t, res.Trade)
	assert.Equal(t, "5", res.Trade.Quantity.String())
	assert.Equal(t, "5", f.ledger.Position(btc).String())
	assert.True(t, res.Trade.Profit.IsPositive())
	assert.Contains(t, res.Report, "Simulated SELL")
}

func TestRunSellBelowFirstTierHolds(t *testing.T) {
	f := newFixture(t, nil, "50.2")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	_, err := f.ledger.SimulateBuy(btc, decimal.NewFromInt(10), decimal.NewFromInt(50), "seed")
	require.NoError(t, err)
	later := time.Now().Add(time.Hour)
	f.engine.now = func() time.Time { return later }
	f.signals(51, 0, ActionSell)

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, ActionSell, res.Recommendation)
	assert.Equal(t, ActionHold, res.Action)
	assert.Equal(t, "10", f.ledger.Position(btc).String())
	assert.Contains(t, res.Report, "below the first profit tier")
}

func TestRunPriceFailureAborts(t *testing.T) {
	f := newFixture(t, nil, "0")
	f.prices.err = errors.New("exchange down")

	failed, unsub := f.bus.Subscribe(events.EventCycleFailed, 1)
	defer unsub()

	res, err := f.engine.Run(context.Background(), btc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPriceUnavailable)
	assert.NotErrorIs(t, err, ErrExternalSignal)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Failure)
	assert.Contains(t, res.Report, "Cycle aborted")

	select {
	case ev := <-failed:
		assert.Equal(t, btc, ev.(CycleFailure).Asset)
	case <-time.After(time.Second):
		t.Fatal("failure event not published")
	}
}

func TestRunAdvisorFailureAborts(t *testing.T) {
	f := newFixture(t, nil, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	f.predictor.On("Predict", mock.Anything, btc, mock.Anything).Return(Prediction{PredictedClose: 51}, nil)
	f.sentiment.On("Sentiment", mock.Anything, btc).Return(Sentiment{}, nil)
	f.advisor.On("Decide", mock.Anything, mock.Anything).Return(Recommendation{}, errors.New("timeout"))

	_, err := f.engine.Run(context.Background(), btc)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExternalSignal)

	var se *SignalError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, SourceRecommendation, se.Source)
	assert.True(t, f.ledger.Capital(btc).Equal(decimal.NewFromInt(1000)))
}

func TestRunPersistenceFailureKeepsCycle(t *testing.T) {
	f := newFixture(t, failingGateway{}, "50")
	require.NoError(t, f.ledger.Deposit("alice", btc, decimal.NewFromInt(1000)))
	f.signals(53, 0.6, ActionBuy)

	persist, unsub := f.bus.Subscribe(events.EventPersistenceFailure, 1)
	defer unsub()

	res, err := f.engine.Run(context.Background(), btc)
	require.NoError(t, err)
	require.Error(t, res.PersistErr)
	assert.ErrorIs(t, res.PersistErr, ledger.ErrPersistenceFailure)
	assert.Equal(t, ActionBuy, res.Action)

	select {
	case ev := <-persist:
		assert.Equal(t, btc, ev.(PersistenceFailure).Asset)
	case <-time.After(time.Second):
		t.Fatal("persistence event not published")
	}
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "a b", truncateWords("  a   b ", 3))
	assert.Equal(t, "a b...", truncateWords("a b c d", 2))
}

func TestExclusiveHoldsOffCycles(t *testing.T) {
	f := newFixture(t, nil, "50")
	f.signals(50, 0, ActionHold)

	entered := make(chan struct{})
	release := make(chan struct{})
	exclusiveDone := make(chan error, 1)
	go func() {
		exclusiveDone <- f.engine.Exclusive(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	cycleDone := make(chan struct{})
	go func() {
		_, _ = f.engine.Run(context.Background(), btc)
		close(cycleDone)
	}()

	select {
	case <-cycleDone:
		t.Fatal("cycle ran while the engine was held exclusively")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-exclusiveDone)
	select {
	case <-cycleDone:
	case <-time.After(time.Second):
		t.Fatal("cycle did not run after release")
	}
}
