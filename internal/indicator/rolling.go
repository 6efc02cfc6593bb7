// Package indicator computes the technical-analysis series consumed by the
// regime classifier and strategy evaluator. Every exported function is a
// pure function over a float64 (or OHLC) series: same input, same output,
// no shared mutable state. Rolling-window primitives that more than one
// indicator needs (sum, min, max) live here and are computed once per call
// rather than being recomputed inside each indicator.
package indicator

import "math"

// rollingSum returns, for each index i, the sum of series[i-window+1..i].
// Indices before the window is filled hold NaN, as does any index whose
// window contains a NaN; once the NaNs leave the window the sum resumes.
func rollingSum(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	sum := 0.0
	nanCount := 0
	for i, v := range series {
		if math.IsNaN(v) {
			nanCount++
		} else {
			sum += v
		}
		if i >= window {
			if old := series[i-window]; math.IsNaN(old) {
				nanCount--
			} else {
				sum -= old
			}
		}
		if i < window-1 || nanCount > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum
	}
	return out
}

// SMA is the simple moving average over window, NaN before warmup.
func SMA(series []float64, window int) []float64 {
	if window <= 0 || len(series) == 0 {
		return make([]float64, len(series))
	}
	sums := rollingSum(series, window)
	out := make([]float64, len(series))
	for i, s := range sums {
		if math.IsNaN(s) {
			out[i] = math.NaN()
			continue
		}
		out[i] = s / float64(window)
	}
	return out
}

// rollingMin returns, for each index, the minimum of the trailing window
// (inclusive of the current index). NaN before the window fills.
func rollingMin(series []float64, window int) []float64 {
	return rollingExtreme(series, window, func(a, b float64) bool { return a < b })
}

// rollingMax returns, for each index, the maximum of the trailing window.
func rollingMax(series []float64, window int) []float64 {
	return rollingExtreme(series, window, func(a, b float64) bool { return a > b })
}

// rollingExtreme computes a rolling min/max with a monotonic deque so the
// whole series is O(n) regardless of window size.
func rollingExtreme(series []float64, window int, better func(a, b float64) bool) []float64 {
	out := make([]float64, len(series))
	deque := make([]int, 0, len(series))
	for i, v := range series {
		for len(deque) > 0 && !better(series[deque[len(deque)-1]], v) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		for deque[0] <= i-window {
			deque = deque[1:]
		}
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = series[deque[0]]
	}
	return out
}

// stdDev returns the rolling population standard deviation over window,
// using the already-computed rolling mean.
func stdDev(series, mean []float64, window int) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		if i < window-1 || math.IsNaN(mean[i]) {
			out[i] = math.NaN()
			continue
		}
		var sumSq float64
		for j := i - window + 1; j <= i; j++ {
			d := series[j] - mean[i]
			sumSq += d * d
		}
		out[i] = math.Sqrt(sumSq / float64(window))
	}
	return out
}
