package strategy

import (
	"math"

	"bithumbot/internal/model"
)

// Params configures one Evaluator instance. Values come from the
// `strategy` and `portfolio` sections of configuration.
type Params struct {
	BaseTradeKRW     float64
	MaxPyramids      int
	PyramidEpsilon   float64   // min fractional improvement vs weighted avg to pyramid
	PyramidSizeMults []float64 // size multiplier by entry_count, e.g. [1.0, 0.5, 0.25]
	ChandelierMult   float64
	ProfitTargetMode model.ProfitTargetMode
	TP1Pct           float64
	TP2Pct           float64
	RegimeMinScore   map[model.RegimeLabel]int
}

// DefaultParams returns the stock tuning: tp1 1.5%, tp2 2.5%, three
// pyramids at 1.0/0.5/0.25 sizing.
func DefaultParams() Params {
	return Params{
		BaseTradeKRW:     50000,
		MaxPyramids:      3,
		PyramidEpsilon:   0.01,
		PyramidSizeMults: []float64{1.0, 0.5, 0.25},
		ChandelierMult:   3.0,
		ProfitTargetMode: model.PercentBased,
		TP1Pct:           1.5,
		TP2Pct:           2.5,
		RegimeMinScore: map[model.RegimeLabel]int{
			model.StrongBullish: 2,
			model.Bullish:       3,
			model.Neutral:       3,
			model.Ranging:       3,
			model.Bearish:       4,
			// StrongBearish intentionally absent: no entries ever gate through.
		},
	}
}

// Evaluator turns one coin's snapshot and current position state into an
// Intent. It never mutates Position; the Position Store applies whatever
// the returned TrailUpdate prescribes.
type Evaluator struct {
	params Params
}

func NewEvaluator(p Params) *Evaluator {
	return &Evaluator{params: p}
}

// TrailUpdate is the chandelier-trail recomputation for one cycle. The
// caller persists it into Position only when a position is, or remains,
// open; it is the zero value when there is nothing to trail.
type TrailUpdate struct {
	HighestHighSinceEntry float64
	ChandelierStop        float64
}

// InitialChandelierStop is the stop set at the moment of first entry.
func InitialChandelierStop(avgEntry, atrAtEntry, mult float64) float64 {
	return avgEntry - mult*atrAtEntry
}

// NextChandelierStop advances the trail for an open position: the high
// water mark only rises, and the stop only rises with it. It never
// retreats even if ATR widens.
func NextChandelierStop(pos model.Position, bar model.Bar, atrNow float64) TrailUpdate {
	hh := math.Max(pos.HighestHighSinceEntry, bar.High)
	candidate := hh - pos.ChandelierMult*atrNow
	stop := math.Max(pos.ChandelierStop, candidate)
	return TrailUpdate{HighestHighSinceEntry: hh, ChandelierStop: stop}
}

// ExitTargets computes this cycle's tp1/tp2 absolute price levels. In
// percent_based mode they are anchored to the weighted-average entry
// price, never the latest close; in bb_based mode they track the fresh
// Bollinger mid/upper.
func ExitTargets(pos model.Position, s model.Snapshot) (tp1, tp2 float64) {
	if pos.ProfitTargetMode == model.BBBased {
		return s.BBMid, s.BBUpper
	}
	return pos.AvgEntryPrice * (1 + pos.TP1Pct/100), pos.AvgEntryPrice * (1 + pos.TP2Pct/100)
}

// EntryScore sums the independent boolean entry conditions into a 0-4
// score.
func EntryScore(s model.Snapshot) int {
	score := 0
	if s.Bar.Low <= s.BBLower {
		score++
	}
	if s.RSI < 30 {
		score++
	}
	if stochCrossedUpFromOversold(s) {
		score += 2
	}
	return score
}

func stochCrossedUpFromOversold(s model.Snapshot) bool {
	wasBelow := s.PrevStochK < 20 && s.PrevStochD < 20
	crossedUp := s.PrevStochK <= s.PrevStochD && s.StochK > s.StochD
	return wasBelow && crossedUp
}

// Evaluate decides the Intent for one coin. pos is nil when the coin is
// currently flat. The returned TrailUpdate should be written into the
// position whenever the evaluated coin remains (or becomes) open after the
// Executor applies the Intent.
func (e *Evaluator) Evaluate(s model.Snapshot, pos *model.Position, regime model.Regime) (model.Intent, TrailUpdate) {
	if pos == nil {
		return e.evaluateFlat(s, regime)
	}
	return e.evaluateOpen(s, *pos, regime)
}

func (e *Evaluator) evaluateFlat(s model.Snapshot, regime model.Regime) (model.Intent, TrailUpdate) {
	if regime.Label == model.StrongBearish {
		return model.Intent{Coin: s.Coin, Kind: model.Hold, Reason: "strong_bearish_no_entries", Regime: regime}, TrailUpdate{}
	}
	score := EntryScore(s)
	minScore, gated := e.params.RegimeMinScore[regime.Label]
	if !gated || score < minScore {
		return model.Intent{Coin: s.Coin, Kind: model.Hold, Score: score, Regime: regime}, TrailUpdate{}
	}
	qty := e.params.BaseTradeKRW * e.sizeMult(0)
	return model.Intent{Coin: s.Coin, Kind: model.Enter, QtyKRW: qty, Reason: "entry_score", Score: score, Regime: regime}, TrailUpdate{}
}

func (e *Evaluator) evaluateOpen(s model.Snapshot, pos model.Position, regime model.Regime) (model.Intent, TrailUpdate) {
	trail := NextChandelierStop(pos, s.Bar, s.ATR)

	if s.Bar.Low <= trail.ChandelierStop {
		return model.Intent{Coin: s.Coin, Kind: model.FullExit, Reason: "stop", Regime: regime}, trail
	}
	if regime.Label == model.StrongBearish {
		return model.Intent{Coin: s.Coin, Kind: model.FullExit, Reason: "regime_flip", Regime: regime}, trail
	}

	tp1, tp2 := ExitTargets(pos, s)
	if !pos.FirstTargetHit && s.Bar.High >= tp1 {
		return model.Intent{Coin: s.Coin, Kind: model.PartialExit, Fraction: 0.5, Reason: "tp1", Regime: regime}, trail
	}
	if pos.FirstTargetHit && !pos.SecondTargetHit && s.Bar.High >= tp2 {
		return model.Intent{Coin: s.Coin, Kind: model.PartialExit, Fraction: 1.0, Reason: "tp2", Regime: regime}, trail
	}

	if pos.EntryCount < e.params.MaxPyramids && s.Bar.Close <= pos.AvgEntryPrice*(1-e.params.PyramidEpsilon) {
		score := EntryScore(s)
		qty := e.params.BaseTradeKRW * e.sizeMult(pos.EntryCount)
		return model.Intent{Coin: s.Coin, Kind: model.Pyramid, QtyKRW: qty, Reason: "pyramid", Score: score, Regime: regime}, trail
	}

	return model.Intent{Coin: s.Coin, Kind: model.Hold, Regime: regime}, trail
}

func (e *Evaluator) sizeMult(entryCount int) float64 {
	mults := e.params.PyramidSizeMults
	if entryCount < 0 || entryCount >= len(mults) {
		return mults[len(mults)-1]
	}
	return mults[entryCount]
}
