package indicators

import "math"

// Returns converts a close series into simple period-over-period returns.
// Non-positive closes break the chain and are skipped.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// Volatility is the sample standard deviation of the last window returns.
// ok is false when there are fewer than window returns.
func Volatility(closes []float64, window int) (float64, bool) {
	rets := Returns(closes)
	if window < 2 || len(rets) < window {
		return 0, false
	}
	return StdDev(rets[len(rets)-window:]), true
}

// StdDev is the sample (n-1) standard deviation.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	m := mean(values)
	ss := 0.0
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(n-1))
}
