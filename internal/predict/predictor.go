// Package predict estimates the next close from recent closes.
package predict

import (
	"context"
	"errors"
	"math"

	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/strategy"
)

// MinSamples is the shortest close series Predict accepts.
const MinSamples = 5

var ErrInsufficientHistory = errors.New("not enough closes to predict")

// Config weights the blend of trend forecast and EMA, plus the RSI nudge.
type Config struct {
	TrendWeight   float64
	EMAPeriod     int
	RSIPeriod     int
	RSIAdjustment float64 // max relative move applied at RSI 0 or 100
}

func DefaultConfig() Config {
	return Config{
		TrendWeight:   0.6,
		EMAPeriod:     20,
		RSIPeriod:     14,
		RSIAdjustment: 0.01,
	}
}

// Predictor fits a least-squares line through the closes, forecasts the next index,
// blends it with the EMA and applies an RSI mean-reversion nudge.
type Predictor struct {
	cfg Config
}

func New(cfg Config) *Predictor {
	if cfg.EMAPeriod <= 0 {
		cfg.EMAPeriod = DefaultConfig().EMAPeriod
	}
	if cfg.RSIPeriod <= 0 {
		cfg.RSIPeriod = DefaultConfig().RSIPeriod
	}
	return &Predictor{cfg: cfg}
}

// Predict implements strategy.PredictionProvider.
func (p *Predictor) Predict(ctx context.Context, asset ledger.AssetID, closes []float64) (strategy.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return strategy.Prediction{}, err
	}
	if len(closes) < MinSamples {
		return strategy.Prediction{}, ErrInsufficientHistory
	}

	slope, intercept := fitLine(closes)
	n := len(closes)
	trend := intercept + slope*float64(n)

	ema := indicators.EMA(closes, min(p.cfg.EMAPeriod, n))
	blended := p.cfg.TrendWeight*trend + (1-p.cfg.TrendWeight)*ema

	rsi := indicators.RSI(closes, p.cfg.RSIPeriod)
	blended *= 1 + (50-rsi)/50*p.cfg.RSIAdjustment

	if blended <= 0 {
		blended = closes[n-1]
	}
	return strategy.Prediction{
		PredictedClose: blended,
		Uncertainty:    residualStdDev(closes, slope, intercept),
	}, nil
}

// fitLine returns the ordinary least-squares slope and intercept of closes against 0..n-1.
func fitLine(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	var sx, sy, sxx, sxy float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, sy / n
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return slope, intercept
}

func residualStdDev(ys []float64, slope, intercept float64) float64 {
	if len(ys) < 3 {
		return 0
	}
	var ssr float64
	for i, y := range ys {
		r := y - (intercept + slope*float64(i))
		ssr += r * r
	}
	return math.Sqrt(ssr / float64(len(ys)-2))
}
