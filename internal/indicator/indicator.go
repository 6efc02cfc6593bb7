package indicator

import (
	"math"

	"bithumbot/internal/model"
)

// Closes extracts the close series from a bar slice.
func Closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// MA is the simple moving average, defaults window=20 per caller.
func MA(series []float64, window int) []float64 {
	out := SMA(series, window)
	return sanitize(out, window-1, false, 0, 0, 0)
}

// EMA is the exponentially weighted moving average, alpha = 2/(window+1).
// The series is seeded with the simple average of the first `window` values
// (the conventional way to start an EMA without an arbitrary warmup bias).
func EMA(series []float64, window int) []float64 {
	out := make([]float64, len(series))
	if window <= 0 || len(series) == 0 {
		return out
	}
	alpha := 2.0 / (float64(window) + 1.0)
	for i := range series {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		if i == window-1 {
			sum := 0.0
			for j := 0; j <= i; j++ {
				sum += series[j]
			}
			out[i] = sum / float64(window)
			continue
		}
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return sanitize(out, window-1, false, 0, 0, 0)
}

// emaOfSeries computes an EMA over an already-derived series (e.g. the MACD
// line) whose valid values may not start at index 0; firstValid is the
// first index holding a non-NaN input.
func emaOfSeries(series []float64, window, firstValid int) []float64 {
	out := make([]float64, len(series))
	for i := 0; i < firstValid && i < len(series); i++ {
		out[i] = math.NaN()
	}
	alpha := 2.0 / (float64(window) + 1.0)
	seedEnd := firstValid + window - 1
	for i := firstValid; i < len(series); i++ {
		switch {
		case i < seedEnd:
			out[i] = math.NaN()
		case i == seedEnd:
			sum := 0.0
			for j := firstValid; j <= i; j++ {
				sum += series[j]
			}
			out[i] = sum / float64(window)
		default:
			out[i] = alpha*series[i] + (1-alpha)*out[i-1]
		}
	}
	return out
}

// RSI is Wilder's relative strength index over period (default 14).
func RSI(series []float64, period int) []float64 {
	n := len(series)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = math.NaN()
	}
	if n <= period {
		return sanitize(out, n, true, 0, 100, 50)
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	avgLoss = math.Max(avgLoss, 1e-10)
	out[period] = 100 - 100/(1+avgGain/avgLoss)

	for i := period + 1; i < n; i++ {
		delta := series[i] - series[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		avgLoss = math.Max(avgLoss, 1e-10)
		out[i] = 100 - 100/(1+avgGain/avgLoss)
	}
	return sanitize(out, period, true, 0, 100, 50)
}

// BollingerResult holds the three Bollinger Band series.
type BollingerResult struct {
	Upper, Mid, Lower []float64
}

// BollingerBands returns mid=SMA(window), upper/lower = mid ± k*population-stdev.
func BollingerBands(series []float64, window int, k float64) BollingerResult {
	mid := SMA(series, window)
	sd := stdDev(series, mid, window)
	upper := make([]float64, len(series))
	lower := make([]float64, len(series))
	for i := range series {
		if math.IsNaN(mid[i]) || math.IsNaN(sd[i]) {
			upper[i], lower[i] = math.NaN(), math.NaN()
			continue
		}
		upper[i] = mid[i] + k*sd[i]
		lower[i] = mid[i] - k*sd[i]
	}
	return BollingerResult{
		Upper: sanitize(upper, window-1, false, 0, 0, 0),
		Mid:   sanitize(mid, window-1, false, 0, 0, 0),
		Lower: sanitize(lower, window-1, false, 0, 0, 0),
	}
}

// MACDResult holds the MACD line, its signal line, and the histogram.
type MACDResult struct {
	Line, Signal, Hist []float64
}

// MACD computes fastEMA-slowEMA as the line, and a true EMA of the line
// itself (not an approximation) as the signal.
func MACD(series []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(series, fast)
	slowEMA := EMA(series, slow)
	n := len(series)
	line := make([]float64, n)
	firstValid := slow - 1
	for i := 0; i < n; i++ {
		if i < firstValid || math.IsNaN(fastEMA[i]) || math.IsNaN(slowEMA[i]) {
			line[i] = math.NaN()
			continue
		}
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := emaOfSeries(line, signal, firstValid)
	hist := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(line[i]) || math.IsNaN(sig[i]) {
			hist[i] = math.NaN()
			continue
		}
		hist[i] = line[i] - sig[i]
	}
	warmup := firstValid + signal - 1
	return MACDResult{
		Line:   sanitize(line, warmup, false, 0, 0, 0),
		Signal: sanitize(sig, warmup, false, 0, 0, 0),
		Hist:   sanitize(hist, warmup, false, 0, 0, 0),
	}
}

func trueRange(bars []model.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			tr[i] = b.High - b.Low
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
	}
	return tr
}

// ATRResult holds the absolute and percent-of-price ATR series.
type ATRResult struct {
	ATR, ATRPercent []float64
}

// ATR is Wilder's average true range over period, plus ATR as a percent of
// the closing price.
func ATR(bars []model.Bar, period int) ATRResult {
	n := len(bars)
	tr := trueRange(bars)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = math.NaN()
	}
	if n <= period {
		atr := sanitize(out, n, false, 0, 0, 0)
		return ATRResult{ATR: atr, ATRPercent: atr}
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	atr := sanitize(out, period, false, 0, 0, 0)
	pct := make([]float64, n)
	for i, b := range bars {
		if math.IsNaN(atr[i]) || b.Close == 0 {
			pct[i] = math.NaN()
			continue
		}
		pct[i] = atr[i] / b.Close * 100
	}
	return ATRResult{ATR: atr, ATRPercent: sanitize(pct, period, false, 0, 0, 0)}
}

// StochasticResult holds %K and %D.
type StochasticResult struct {
	K, D []float64
}

// Stochastic computes %K over window k and %D as the true SMA of %K over d.
func Stochastic(bars []model.Bar, k, d int) StochasticResult {
	n := len(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}
	maxHigh := rollingMax(highs, k)
	minLow := rollingMin(lows, k)

	pctK := make([]float64, n)
	for i := range bars {
		if math.IsNaN(maxHigh[i]) || math.IsNaN(minLow[i]) {
			pctK[i] = math.NaN()
			continue
		}
		denom := maxHigh[i] - minLow[i]
		if denom == 0 {
			pctK[i] = 50
			continue
		}
		pctK[i] = 100 * (closes[i] - minLow[i]) / denom
	}
	pctK = sanitize(pctK, k-1, true, 0, 100, 50)
	pctD := SMA(pctK, d)
	pctD = sanitize(pctD, k-1+d-1, true, 0, 100, 50)
	return StochasticResult{K: pctK, D: pctD}
}

// ADX is Wilder's average directional index, built from true +DI/-DI, not
// an approximation.
func ADX(bars []model.Bar, period int) []float64 {
	n := len(bars)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n < 2*period+1 {
		return sanitize(out, n, true, 0, 100, 0)
	}

	tr := trueRange(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smTR := wilderSmooth(tr, period)
	smPlusDM := wilderSmooth(plusDM, period)
	smMinusDM := wilderSmooth(minusDM, period)

	plusDI := make([]float64, n)
	minusDI := make([]float64, n)
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(smTR[i]) || smTR[i] == 0 {
			plusDI[i], minusDI[i], dx[i] = math.NaN(), math.NaN(), math.NaN()
			continue
		}
		plusDI[i] = 100 * smPlusDM[i] / smTR[i]
		minusDI[i] = 100 * smMinusDM[i] / smTR[i]
		sum := plusDI[i] + minusDI[i]
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
	}

	firstDX := period // wilderSmooth first valid index
	adxStart := firstDX + period - 1
	if adxStart >= n {
		return sanitize(out, n, true, 0, 100, 0)
	}
	sum := 0.0
	for i := firstDX; i < firstDX+period; i++ {
		sum += dx[i]
	}
	out[adxStart] = sum / float64(period)
	for i := adxStart + 1; i < n; i++ {
		if math.IsNaN(dx[i]) {
			out[i] = out[i-1]
			continue
		}
		out[i] = (out[i-1]*float64(period-1) + dx[i]) / float64(period)
	}
	return sanitize(out, adxStart, true, 0, 100, 0)
}

// wilderSmooth applies Wilder's running smoothing (seed = simple sum of the
// first `period` values starting at index 1, since true range/DM series are
// undefined at index 0).
func wilderSmooth(series []float64, period int) []float64 {
	n := len(series)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= period {
		return out
	}
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += series[i]
	}
	out[period] = sum
	for i := period + 1; i < n; i++ {
		out[i] = out[i-1] - out[i-1]/float64(period) + series[i]
	}
	return out
}

// VolumeRatio is volume[t] / SMA(volume, window)[t].
func VolumeRatio(volume []float64, window int) []float64 {
	avg := SMA(volume, window)
	out := make([]float64, len(volume))
	for i, v := range volume {
		if math.IsNaN(avg[i]) || avg[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = v / avg[i]
	}
	return sanitize(out, window-1, false, 0, 0, 0)
}
