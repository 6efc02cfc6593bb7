package regime

import (
	"testing"

	"bithumbot/internal/model"
)

func snap(ema50, ema200, adx, atrPct, avgAtrPct float64) model.Snapshot {
	return model.Snapshot{EMA50: ema50, EMA200: ema200, ADX: adx, ATRPercent: atrPct, AvgATRPercent: avgAtrPct}
}

func TestClassifyRanging(t *testing.T) {
	r := Classify(snap(110, 100, 15, 1, 1))
	if r.Label != model.Ranging {
		t.Errorf("label = %v, want Ranging", r.Label)
	}
}

func TestClassifyStrongBullish(t *testing.T) {
	r := Classify(snap(106, 100, 25, 1, 1))
	if r.Label != model.StrongBullish {
		t.Errorf("label = %v, want StrongBullish", r.Label)
	}
}

func TestClassifyNeutralBand(t *testing.T) {
	r := Classify(snap(101, 100, 25, 1, 1))
	if r.Label != model.Neutral {
		t.Errorf("label = %v, want Neutral", r.Label)
	}
}

func TestClassifyStrongBearish(t *testing.T) {
	r := Classify(snap(94, 100, 25, 1, 1))
	if r.Label != model.StrongBearish {
		t.Errorf("label = %v, want StrongBearish", r.Label)
	}
}

func TestClassifyVolatilityHighLow(t *testing.T) {
	if Classify(snap(106, 100, 25, 2, 1)).Volatility != model.VolHigh {
		t.Errorf("expected VolHigh")
	}
	if Classify(snap(106, 100, 25, 0.5, 1)).Volatility != model.VolLow {
		t.Errorf("expected VolLow")
	}
}

func TestHysteresisHoldsForOneCycle(t *testing.T) {
	c := NewClassifier()
	s1 := snap(106, 100, 25, 1, 1) // StrongBullish
	r := c.Next("BTC", s1)
	if r.Label != model.StrongBullish {
		t.Fatalf("cycle 1: got %v, want StrongBullish", r.Label)
	}

	s2 := snap(94, 100, 25, 1, 1) // candidate StrongBearish
	r = c.Next("BTC", s2)
	if r.Label != model.StrongBullish {
		t.Fatalf("cycle 2: regime changed on first disagreement, got %v", r.Label)
	}

	r = c.Next("BTC", s2)
	if r.Label != model.StrongBearish {
		t.Fatalf("cycle 3: expected commit to StrongBearish after 2 consecutive cycles, got %v", r.Label)
	}
}

func TestHysteresisResetsOnFlipFlop(t *testing.T) {
	c := NewClassifier()
	c.Next("ETH", snap(106, 100, 25, 1, 1)) // StrongBullish committed

	c.Next("ETH", snap(94, 100, 25, 1, 1))  // candidate StrongBearish, pending=1
	c.Next("ETH", snap(101, 100, 25, 1, 1)) // candidate Neutral, resets pending
	r := c.Next("ETH", snap(94, 100, 25, 1, 1))
	if r.Label != model.StrongBullish {
		t.Fatalf("expected regime to still be StrongBullish after flip-flopping candidates, got %v", r.Label)
	}
}
