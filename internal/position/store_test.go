package position

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"bithumbot/internal/model"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestEnterCreatesPositionWithChandelierStop(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "positions.json"))
	pos, err := s.Enter("BTC", time.Unix(0, 0).UTC(), 100, 500, EntryTargets{
		ATRAtEntry: 1, ChandelierMult: 3, ProfitTargetMode: model.PercentBased, TP1Pct: 1.5, TP2Pct: 2.5,
	})
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if pos.ChandelierStop != 97 {
		t.Errorf("ChandelierStop = %v, want 97", pos.ChandelierStop)
	}
	if pos.EntryCount != 1 || pos.Size != 500 {
		t.Errorf("EntryCount/Size = %d/%v, want 1/500", pos.EntryCount, pos.Size)
	}

	got, ok := s.Get("BTC")
	if !ok || got.Size != 500 {
		t.Fatalf("Get after Enter = %+v, ok=%v", got, ok)
	}
}

func TestPyramidRecomputesWeightedAverageAndResetsTargets(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "positions.json"))
	_, _ = s.Enter("BTC", time.Unix(0, 0).UTC(), 100, 500, EntryTargets{ChandelierMult: 3, ProfitTargetMode: model.PercentBased})

	// Simulate TP1 already hit before the pyramid.
	pos, _ := s.Get("BTC")
	pos.FirstTargetHit = true
	_ = s.put(pos)

	got, err := s.Pyramid("BTC", time.Unix(1, 0), 98, 255.10)
	if err != nil {
		t.Fatalf("Pyramid: %v", err)
	}
	wantAvg := (100*500 + 98*255.10) / (500 + 255.10)
	if diff := got.AvgEntryPrice - wantAvg; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("AvgEntryPrice = %v, want %v", got.AvgEntryPrice, wantAvg)
	}
	if got.FirstTargetHit {
		t.Errorf("FirstTargetHit should reset to false after pyramid")
	}
	if got.PositionPct != 100 {
		t.Errorf("PositionPct = %v, want 100 after pyramid reset", got.PositionPct)
	}
	if got.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", got.EntryCount)
	}
}

func TestPartialExitFIFOConsumesLotsInOrder(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "positions.json"))
	_, _ = s.Enter("BTC", time.Unix(0, 0).UTC(), 100, 500, EntryTargets{ChandelierMult: 3, ProfitTargetMode: model.PercentBased})
	_, _ = s.Pyramid("BTC", time.Unix(1, 0), 98, 255.10)

	result, err := s.PartialExit("BTC", 0.5, 101, 0, true, false, nil)
	if err != nil {
		t.Fatalf("PartialExit: %v", err)
	}
	wantQty := 755.10 * 0.5
	if diff := result.MatchedQty - wantQty; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("MatchedQty = %v, want %v", result.MatchedQty, wantQty)
	}
	if !result.Position.FirstTargetHit {
		t.Errorf("FirstTargetHit should be set after tp1 exit")
	}
	// The 377.55 sold all comes out of lot-1 (500 @ 100), the head of the
	// FIFO; lot-2 (255.10 @ 98) is untouched.
	remaining := result.Position.EntryLots
	if len(remaining) != 2 {
		t.Fatalf("expected two remaining lots, got %d", len(remaining))
	}
	wantLot1Qty := 500 - wantQty
	if diff := remaining[0].Qty - wantLot1Qty; diff > 1e-6 || diff < -1e-6 || remaining[0].Price != 100 {
		t.Errorf("lot-1 = %v @ %v, want %v @ 100", remaining[0].Qty, remaining[0].Price, wantLot1Qty)
	}
	if diff := remaining[1].Qty - 255.10; diff > 1e-6 || diff < -1e-6 || remaining[1].Price != 98 {
		t.Errorf("lot-2 = %v @ %v, want 255.1 @ 98", remaining[1].Qty, remaining[1].Price)
	}
}

func TestFullExitZeroesPositionAndRemovesFromStore(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "positions.json"))
	_, _ = s.Enter("BTC", time.Unix(0, 0).UTC(), 100, 500, EntryTargets{ChandelierMult: 3})

	_, err := s.PartialExit("BTC", 1.0, 97, 0, false, true, nil)
	if err != nil {
		t.Fatalf("PartialExit: %v", err)
	}
	if _, ok := s.Get("BTC"); ok {
		t.Errorf("position should be gone after full exit")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "does-not-exist.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load missing file should not error: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

func TestLoadCorruptFilePreservesAndStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")
	if err := writeFile(path, []byte("{not json")); err != nil {
		t.Fatalf("setup write: %v", err)
	}
	s := NewStore(path)
	err := s.Load()
	if err == nil {
		t.Fatalf("expected StateCorrupt error")
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0 after corrupt load", s.Count())
	}
	if fileExists(path) {
		t.Errorf("original corrupt file should have been renamed away")
	}
}

func TestApplyBreakevenRatchetsStopToAvgEntry(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "positions.json"))
	_, _ = s.Enter("BTC", time.Unix(0, 0).UTC(), 100, 500, EntryTargets{ChandelierMult: 3, ATRAtEntry: 1})
	if err := s.ApplyBreakeven("BTC"); err != nil {
		t.Fatalf("ApplyBreakeven: %v", err)
	}
	pos, _ := s.Get("BTC")
	if pos.ChandelierStop != 100 {
		t.Errorf("ChandelierStop = %v, want 100 (breakeven)", pos.ChandelierStop)
	}
}

func TestRoundTripSerialization(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "positions.json")
	s := NewStore(path)
	_, _ = s.Enter("BTC", time.Unix(0, 0).UTC(), 100, 500, EntryTargets{ChandelierMult: 3, ATRAtEntry: 1, ProfitTargetMode: model.PercentBased, TP1Pct: 1.5, TP2Pct: 2.5})

	reloaded := NewStore(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	original, _ := s.Get("BTC")
	roundTripped, ok := reloaded.Get("BTC")
	if !ok {
		t.Fatalf("position missing after reload")
	}
	if !reflect.DeepEqual(original, roundTripped) {
		t.Errorf("round-tripped position differs: got %+v, want %+v", roundTripped, original)
	}
}
