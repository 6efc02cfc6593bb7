package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"bithumbot/internal/bithumb"
	"bithumbot/internal/events"
	"bithumbot/internal/executor"
	"bithumbot/internal/indicator"
	"bithumbot/internal/model"
	"bithumbot/internal/persist"
	"bithumbot/internal/position"
	"bithumbot/internal/regime"
	"bithumbot/internal/risk"
	"bithumbot/internal/strategy"
)

// shortCandleServer serves just enough candles to be valid JSON but fewer
// than any Params.WarmupBars(), so RunCycle resolves every coin to a Hold
// without needing a live exchange or a full 200-bar fixture.
func shortCandleServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := make([][]string, 0, 5)
		base := time.Now().Add(-5 * time.Hour).UnixMilli()
		for i := 0; i < 5; i++ {
			ts := base + int64(i)*3600000
			rows = append(rows, []string{fmt.Sprintf("%d", ts), "100", "101", "102", "99", "10"})
		}
		resp := map[string]interface{}{"status": "0000", "data": rows}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestManager(t *testing.T, baseURL string, stepDeadline time.Duration) (*Manager, *events.EventBus) {
	t.Helper()
	dir := t.TempDir()

	client := bithumb.NewClient(bithumb.Config{BaseURL: baseURL, DryRun: true, Limiter: bithumb.NewDefaultLimiter()})
	store := position.NewStore(filepath.Join(dir, "positions.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	txLog := persist.NewTransactionLog(filepath.Join(dir, "transactions.jsonl"))
	guard := risk.NewGuard(risk.GuardConfig{
		MaxPositions:         2,
		MaxDailyTrades:       10,
		MaxDailyLossPct:      5,
		MaxConsecutiveLosses: 4,
	}, risk.Counters{})
	bus := events.NewEventBus()
	exec := executor.New(client, store, guard, txLog, bus)

	mgr := New(Config{
		Coins:          []string{"BTC", "ETH"},
		CandleInterval: bithumb.Interval1h,
		CandleLimit:    50,
		StepDeadline:   stepDeadline,
	}, client, store, guard, regime.NewClassifier(), strategy.NewEvaluator(strategy.Params{
		BaseTradeKRW:     50000,
		MaxPyramids:      3,
		PyramidSizeMults: []float64{1, 0.5, 0.25},
		ChandelierMult:   3,
		TP1Pct:           1.5,
		TP2Pct:           2.5,
	}), exec, indicator.DefaultParams(), strategy.Params{}, bus)

	return mgr, bus
}

func TestRunCycleHoldsEveryCoinDuringWarmup(t *testing.T) {
	srv := shortCandleServer(t)
	defer srv.Close()

	mgr, _ := newTestManager(t, srv.URL, 5*time.Second)
	cc := model.CycleContext{
		CycleID:   "test-cycle",
		StartedAt: time.Now(),
		CoinList:  []string{"BTC", "ETH"},
		DryRun:    true,
	}

	summary := mgr.RunCycle(context.Background(), cc)
	if summary.Processed != 2 {
		t.Errorf("Processed = %d, want 2", summary.Processed)
	}
	if summary.Dispatched != 0 {
		t.Errorf("Dispatched = %d, want 0 (warmup holds never dispatch)", summary.Dispatched)
	}
	if summary.Skipped != 0 {
		t.Errorf("Skipped = %d, want 0", summary.Skipped)
	}
}

func TestRunCycleSkipsCoinOnFetchFailureWithNoCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	mgr, _ := newTestManager(t, srv.URL, 200*time.Millisecond)
	cc := model.CycleContext{
		CycleID:  "test-cycle",
		CoinList: []string{"BTC"},
		DryRun:   true,
	}

	summary := mgr.RunCycle(context.Background(), cc)
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1 (fetch failure, no cache configured)", summary.Skipped)
	}
}

func TestAccountValueKRWSumsCashAndOpenPositionCostBasis(t *testing.T) {
	srv := shortCandleServer(t)
	defer srv.Close()

	mgr, _ := newTestManager(t, srv.URL, 5*time.Second)
	// DryRun GetBalance returns an empty map, so AccountValueKRW should be
	// just the (zero, here) cost basis of open positions.
	v, err := mgr.AccountValueKRW(context.Background())
	if err != nil {
		t.Fatalf("AccountValueKRW: %v", err)
	}
	if v != 0 {
		t.Errorf("AccountValueKRW with no positions and dry-run balance = %v, want 0", v)
	}
}
