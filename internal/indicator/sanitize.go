package indicator

import "math"

// sanitize normalizes a computed series: ±Inf becomes NaN, values outside
// [lo, hi] (when clip is true) are clamped, and any remaining NaN at or
// after warmupIdx is replaced by neutral. NaN strictly before warmupIdx is
// left alone; it is the defined "not enough data yet" value.
func sanitize(series []float64, warmupIdx int, clip bool, lo, hi, neutral float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		if math.IsInf(v, 0) {
			v = math.NaN()
		}
		if clip && !math.IsNaN(v) {
			if v < lo {
				v = lo
			} else if v > hi {
				v = hi
			}
		}
		if math.IsNaN(v) && i >= warmupIdx {
			v = neutral
		}
		out[i] = v
	}
	return out
}
