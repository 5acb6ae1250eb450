package indicators

// tail returns the last n values, or nil when there are fewer than n.
func tail(values []float64, n int) []float64 {
	if n <= 0 || len(values) < n {
		return nil
	}
	return values[len(values)-n:]
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var total float64
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}

// SMA is the mean of the last period values, 0 without enough data.
func SMA(values []float64, period int) float64 {
	return mean(tail(values, period))
}

// EMA seeds with the SMA of the first period values and smooths the rest with 2/(period+1).
func EMA(values []float64, period int) float64 {
	seed := tail(values[:min(period, len(values))], period)
	if seed == nil {
		return 0
	}
	k := 2.0 / float64(period+1)
	out := mean(seed)
	for _, v := range values[period:] {
		out += k * (v - out)
	}
	return out
}

// RSI averages gains and losses over the last period changes (no Wilder smoothing).
// 50 means neutral and is also returned when there is not enough data.
func RSI(values []float64, period int) float64 {
	window := tail(values, period+1)
	if period <= 0 || window == nil {
		return 50
	}
	var up, down float64
	for i := 1; i < len(window); i++ {
		if d := window[i] - window[i-1]; d > 0 {
			up += d
		} else {
			down -= d
		}
	}
	switch {
	case up == 0 && down == 0:
		return 50
	case down == 0:
		return 100
	}
	return 100 * up / (up + down)
}
