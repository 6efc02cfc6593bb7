package scheduler

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
	"bithumbot/internal/portfolio"
	"bithumbot/internal/position"
	"bithumbot/internal/regime"
	"bithumbot/internal/risk"
	"bithumbot/internal/strategy"
)

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

func newTestManager(t *testing.T, baseURL string) *portfolio.Manager {
	t.Helper()
	dir := t.TempDir()

	client := bithumb.NewClient(bithumb.Config{BaseURL: baseURL, DryRun: true, Limiter: bithumb.NewDefaultLimiter()})
	store := position.NewStore(filepath.Join(dir, "positions.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("store.Load: %v", err)
	}
	txLog := persist.NewTransactionLog(filepath.Join(dir, "transactions.jsonl"))
	guard := risk.NewGuard(risk.GuardConfig{MaxPositions: 2, MaxDailyTrades: 10, MaxDailyLossPct: 5, MaxConsecutiveLosses: 4}, risk.Counters{})
	bus := events.NewEventBus()
	exec := executor.New(client, store, guard, txLog, bus)

	return portfolio.New(portfolio.Config{
		Coins:          []string{"BTC"},
		CandleInterval: bithumb.Interval1h,
		CandleLimit:    50,
		StepDeadline:   5 * time.Second,
	}, client, store, guard, regime.NewClassifier(), strategy.NewEvaluator(strategy.Params{
		BaseTradeKRW: 50000, MaxPyramids: 3, PyramidSizeMults: []float64{1, 0.5, 0.25}, ChandelierMult: 3,
	}), exec, indicator.DefaultParams(), strategy.Params{}, bus)
}

func TestNewFillsCycleDefaults(t *testing.T) {
	s := New(Config{}, nil, nil)
	if s.cfg.CyclePeriod != 15*time.Minute {
		t.Errorf("default CyclePeriod = %v, want 15m", s.cfg.CyclePeriod)
	}
	if s.cfg.CycleCeiling != 12*time.Minute {
		t.Errorf("default CycleCeiling = %v, want 12m (80%% of 15m)", s.cfg.CycleCeiling)
	}
}

func TestRunOneCycleIncrementsCounterAndPublishesHeartbeat(t *testing.T) {
	srv := shortCandleServer(t)
	defer srv.Close()

	mgr := newTestManager(t, srv.URL)
	bus := events.NewEventBus()

	heartbeats := make(chan events.Event, 1)
	bus.Subscribe(events.EventHeartbeat, func(e events.Event) { heartbeats <- e })

	s := New(Config{CyclePeriod: time.Hour, CoinList: []string{"BTC"}, DryRun: true}, mgr, bus)
	s.runOneCycle(context.Background())

	if got := s.CyclesRun(); got != 1 {
		t.Errorf("CyclesRun() = %d, want 1", got)
	}

	select {
	case e := <-heartbeats:
		if e.Data["coins_processed"].(int) != 1 {
			t.Errorf("heartbeat coins_processed = %v, want 1", e.Data["coins_processed"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected a heartbeat event to be published")
	}
}

func TestRunStepRecoversPanic(t *testing.T) {
	// manager is nil: Manager.RunCycle dereferences its receiver, so this
	// panics inside runStep's call and must be recovered rather than crash
	// the scheduler loop.
	s := New(Config{}, nil, nil)

	summary := s.runStep(context.Background(), model.CycleContext{CoinList: []string{"BTC", "ETH"}})
	if summary.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2 (len of coin list)", summary.Skipped)
	}
}
