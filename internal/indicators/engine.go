package indicators

import "sync"

// Snapshot is the indicator set computed after each observed price.
type Snapshot struct {
	Samples    int     `json:"samples"`
	SMAShort   float64 `json:"sma_short"`
	SMALong    float64 `json:"sma_long"`
	EMA        float64 `json:"ema"`
	RSI        float64 `json:"rsi"`
	Volatility float64 `json:"volatility"`
}

// Engine maintains per-asset price windows of observed cycle prices.
type Engine struct {
	mu      sync.Mutex
	prices  map[string][]float64
	window  int
	shortMA int
	longMA  int
	ema     int
	rsi     int
}

// NewEngine builds an indicator engine. window is raised to fit the longest lookback.
func NewEngine(shortMA, longMA, emaPeriod, rsiPeriod, window int) *Engine {
	for _, p := range []int{longMA, emaPeriod, rsiPeriod + 1} {
		if window < p {
			window = p
		}
	}
	return &Engine{
		prices:  make(map[string][]float64),
		window:  window,
		shortMA: shortMA,
		longMA:  longMA,
		ema:     emaPeriod,
		rsi:     rsiPeriod,
	}
}

// Update ingests a new price and returns the latest computed values.
func (e *Engine) Update(asset string, price float64) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	arr := append(e.prices[asset], price)
	if len(arr) > e.window {
		arr = arr[len(arr)-e.window:]
	}
	e.prices[asset] = arr

	vol, _ := Volatility(arr, len(arr)-1)
	return Snapshot{
		Samples:    len(arr),
		SMAShort:   SMA(arr, e.shortMA),
		SMALong:    SMA(arr, e.longMA),
		EMA:        EMA(arr, e.ema),
		RSI:        RSI(arr, e.rsi),
		Volatility: vol,
	}
}

// Reset forgets every window.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices = make(map[string][]float64)
}
