package strategy

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
	"papertrade/internal/risk"
)

// Action is a recommendation verb.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// ParseAction normalises free-form advisor output. Anything that is not exactly one of
// BUY, SELL or HOLD (after trimming and upper-casing) reads as HOLD.
func ParseAction(raw string) Action {
	switch a := Action(strings.ToUpper(strings.TrimSpace(raw))); a {
	case ActionBuy, ActionSell, ActionHold:
		return a
	default:
		return ActionHold
	}
}

// Prediction is the predictor's next-close estimate.
type Prediction struct {
	PredictedClose float64 `json:"predicted_close"`
	Uncertainty    float64 `json:"uncertainty"`
}

// Sentiment is a news sentiment score in [-1, 1] plus the text it was derived from.
type Sentiment struct {
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// DecisionContext is everything a recommendation source gets to see.
type DecisionContext struct {
	Asset      ledger.AssetID  `json:"asset"`
	Price      decimal.Decimal `json:"price"`
	Prediction Prediction      `json:"prediction"`
	Sentiment  Sentiment       `json:"sentiment"`
	Capital    decimal.Decimal `json:"capital"`
	Position   decimal.Decimal `json:"position"`
	Volatility float64         `json:"volatility"`
	Report     string          `json:"report"`
}

// Recommendation is the advisor's answer.
type Recommendation struct {
	Action Action `json:"action"`
	Source string `json:"source,omitempty"`
	Note   string `json:"note,omitempty"`
}

// PriceProvider returns the current market price of an asset.
type PriceProvider interface {
	Price(ctx context.Context, asset ledger.AssetID) (decimal.Decimal, error)
}

// HistoryProvider returns recent closes, oldest first.
type HistoryProvider interface {
	Closes(ctx context.Context, asset ledger.AssetID, n int) ([]float64, error)
}

// StatsProvider is optional; when the price provider also implements it the report
// carries the 24h window.
type StatsProvider interface {
	Stats24h(ctx context.Context, asset ledger.AssetID) (market.Stats, error)
}

type PredictionProvider interface {
	Predict(ctx context.Context, asset ledger.AssetID, closes []float64) (Prediction, error)
}

type SentimentProvider interface {
	Sentiment(ctx context.Context, asset ledger.AssetID) (Sentiment, error)
}

type RecommendationProvider interface {
	Decide(ctx context.Context, dc DecisionContext) (Recommendation, error)
}

// ReportStore keeps the latest cycle report per asset.
type ReportStore interface {
	SaveReport(ctx context.Context, r CycleResult) error
}

// RiskAlert is published when a risk limit blocks a trade.
type RiskAlert struct {
	Asset  ledger.AssetID `json:"asset"`
	Reason string         `json:"reason"`
	At     time.Time      `json:"at"`
}

func (a RiskAlert) String() string { return string(a.Asset) + ": " + a.Reason }

// CycleFailure is published when a cycle aborts.
type CycleFailure struct {
	Asset ledger.AssetID `json:"asset"`
	Error string         `json:"error"`
}

func (f CycleFailure) String() string { return string(f.Asset) + ": " + f.Error }

// PersistenceFailure is published when the post-cycle save fails.
type PersistenceFailure struct {
	Asset ledger.AssetID `json:"asset"`
	Error string         `json:"error"`
}

func (f PersistenceFailure) String() string { return string(f.Asset) + ": " + f.Error }

// TradeSink receives every executed simulated fill, e.g. an audit writer.
type TradeSink interface {
	RecordTrade(rec ledger.TradeRecord)
}

// CycleResult is the outcome of one decision cycle for one asset.
type CycleResult struct {
	Asset          ledger.AssetID      `json:"asset"`
	Price          decimal.Decimal     `json:"price"`
	Recommendation Action              `json:"recommendation"`
	Action         Action              `json:"action"`
	Exit           *risk.Exit          `json:"exit,omitempty"`
	Trade          *ledger.TradeRecord `json:"trade,omitempty"`
	Prediction     *Prediction         `json:"prediction,omitempty"`
	Sentiment      *Sentiment          `json:"sentiment,omitempty"`
	Volatility     float64             `json:"volatility"`
	Indicators     indicators.Snapshot `json:"indicators"`
	Report         string              `json:"report"`
	Summary        string              `json:"summary"`
	Failure        string              `json:"failure,omitempty"`
	PersistErr     error               `json:"-"`
	StartedAt      time.Time           `json:"started_at"`
	Duration       time.Duration       `json:"duration"`
}
