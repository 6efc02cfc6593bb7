package indicator

import (
	"math"

	"bithumbot/internal/model"
)

// Params configures the window/period defaults used to build a Snapshot.
// Zero-value Params is invalid; use DefaultParams().
type Params struct {
	MAShortWindow int
	MALongWindow  int
	RSIPeriod     int
	BBWindow      int
	BBK           float64
	MACDFast      int
	MACDSlow      int
	MACDSignal    int
	ATRPeriod     int
	StochK        int
	StochD        int
	ADXPeriod     int
	VolumeWindow  int
	EMAShort      int
	EMALong       int
	AvgATRWindow  int
}

// DefaultParams returns the stock windows/periods for every indicator.
func DefaultParams() Params {
	return Params{
		MAShortWindow: 20,
		MALongWindow:  50,
		RSIPeriod:     14,
		BBWindow:      20,
		BBK:           2.0,
		MACDFast:      8,
		MACDSlow:      17,
		MACDSignal:    9,
		ATRPeriod:     14,
		StochK:        14,
		StochD:        3,
		ADXPeriod:     14,
		VolumeWindow:  20,
		EMAShort:      50,
		EMALong:       200,
		AvgATRWindow:  50,
	}
}

// WarmupBars is the minimum number of bars Params needs before any
// indicator stops emitting NaN. EMA200 and the rolling-50 ATR% average are
// the long poles.
func (p Params) WarmupBars() int {
	w := p.EMALong
	if p.AvgATRWindow+p.ATRPeriod > w {
		w = p.AvgATRWindow + p.ATRPeriod
	}
	if 2*p.ADXPeriod+1 > w {
		w = 2*p.ADXPeriod + 1
	}
	return w
}

// BuildSnapshot computes every series once over bars and returns the
// Snapshot for the most recent closed bar. bars must be ordered oldest
// first. Returns (snapshot, false) if bars is empty.
func BuildSnapshot(coin string, bars []model.Bar, p Params) (model.Snapshot, bool) {
	n := len(bars)
	if n == 0 {
		return model.Snapshot{}, false
	}
	closes := Closes(bars)
	volumes := make([]float64, n)
	for i, b := range bars {
		volumes[i] = b.Volume
	}

	maShort := MA(closes, p.MAShortWindow)
	maLong := MA(closes, p.MALongWindow)
	rsi := RSI(closes, p.RSIPeriod)
	bb := BollingerBands(closes, p.BBWindow, p.BBK)
	macd := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	atr := ATR(bars, p.ATRPeriod)
	stoch := Stochastic(bars, p.StochK, p.StochD)
	adx := ADX(bars, p.ADXPeriod)
	volRatio := VolumeRatio(volumes, p.VolumeWindow)
	ema50 := EMA(closes, p.EMAShort)
	ema200 := EMA(closes, p.EMALong)
	avgATRPct := SMA(atr.ATRPercent, p.AvgATRWindow)

	last := n - 1
	snap := model.Snapshot{
		Coin:          coin,
		Bar:           bars[last],
		MAShort:       maShort[last],
		MALong:        maLong[last],
		RSI:           rsi[last],
		BBUpper:       bb.Upper[last],
		BBMid:         bb.Mid[last],
		BBLower:       bb.Lower[last],
		MACDLine:      macd.Line[last],
		MACDSignal:    macd.Signal[last],
		MACDHist:      macd.Hist[last],
		ATR:           atr.ATR[last],
		ATRPercent:    atr.ATRPercent[last],
		StochK:        stoch.K[last],
		StochD:        stoch.D[last],
		ADX:           adx[last],
		VolumeRatio:   volRatio[last],
		EMA50:         ema50[last],
		EMA200:        ema200[last],
		AvgATRPercent: valueOrNeutral(avgATRPct[last], atr.ATRPercent[last]),
	}
	if last > 0 {
		snap.PrevStochK = stoch.K[last-1]
		snap.PrevStochD = stoch.D[last-1]
	} else {
		snap.PrevStochK, snap.PrevStochD = stoch.K[last], stoch.D[last]
	}
	return snap, true
}

func valueOrNeutral(v, fallback float64) float64 {
	if math.IsNaN(v) {
		return fallback
	}
	return v
}
