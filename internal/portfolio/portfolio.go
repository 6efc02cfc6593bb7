// Package portfolio implements the per-cycle manager: it iterates the
// configured coin set once per cycle, asks the Strategy Evaluator for an
// Intent per coin, sorts by dispatch priority, gates new Enter/Pyramid
// intents behind the risk Guard's portfolio-wide caps, and dispatches
// accepted intents to the Executor sequentially. Exits are never gated.
package portfolio

import (
	"context"
	"sort"
	"time"

	"bithumbot/internal/bithumb"
	"bithumbot/internal/cache"
	"bithumbot/internal/events"
	"bithumbot/internal/executor"
	"bithumbot/internal/indicator"
	"bithumbot/internal/logging"
	"bithumbot/internal/model"
	"bithumbot/internal/position"
	"bithumbot/internal/regime"
	"bithumbot/internal/risk"
	"bithumbot/internal/strategy"
)

// Config configures one Manager instance.
type Config struct {
	Coins           []string
	CandleInterval  bithumb.Interval
	CandleLimit     int
	StepDeadline    time.Duration // per-coin fetch+evaluate deadline, default 30s
	AccountValueKRW float64       // static fallback if the balance probe fails
}

// Manager wires the Exchange Client, Indicator Library, Regime Classifier,
// Strategy Evaluator, risk Guard, and Executor into one per-cycle pass.
type Manager struct {
	cfg              Config
	client           *bithumb.Client
	store            *position.Store
	guard            *risk.Guard
	regimeClassifier *regime.Classifier
	evaluator        *strategy.Evaluator
	exec             *executor.Executor
	indicatorParams  indicator.Params
	strategyParams   strategy.Params
	bus              *events.EventBus
	snapshotCache    *cache.SnapshotCache
}

// New builds a Manager from its collaborators.
func New(cfg Config, client *bithumb.Client, store *position.Store, guard *risk.Guard,
	regimeClassifier *regime.Classifier, evaluator *strategy.Evaluator, exec *executor.Executor,
	indicatorParams indicator.Params, strategyParams strategy.Params, bus *events.EventBus) *Manager {
	if cfg.StepDeadline <= 0 {
		cfg.StepDeadline = 30 * time.Second
	}
	return &Manager{
		cfg: cfg, client: client, store: store, guard: guard,
		regimeClassifier: regimeClassifier, evaluator: evaluator, exec: exec,
		indicatorParams: indicatorParams, strategyParams: strategyParams, bus: bus,
	}
}

// WithSnapshotCache attaches an optional Redis-backed snapshot cache used as
// a stale-data fallback when a coin's candle fetch fails; a nil cache is a
// no-op.
func (m *Manager) WithSnapshotCache(c *cache.SnapshotCache) *Manager {
	m.snapshotCache = c
	return m
}

// CycleSummary counts what happened to each coin's intent this cycle, and
// is the basis for the Scheduler's end-of-cycle heartbeat.
type CycleSummary struct {
	CycleID     string
	Processed   int
	Skipped     int // per-coin step failed (timeout, transient exchange error)
	CapRejected int // Enter/Pyramid dropped by a portfolio cap
	Dispatched  int
	Errors      int // Executor.Apply failed after dispatch was accepted
}

type coinResult struct {
	coin   string
	intent model.Intent
	snap   model.Snapshot
	trail  strategy.TrailUpdate
	err    error
}

// RunCycle evaluates every coin in cc.CoinList, then dispatches accepted
// intents in priority order: FullExit > PartialExit > Pyramid > Enter >
// Hold. Exits always dispatch regardless of portfolio caps.
func (m *Manager) RunCycle(ctx context.Context, cc model.CycleContext) CycleSummary {
	log := logging.Default().WithCycleID(cc.CycleID).WithComponent("portfolio")
	summary := CycleSummary{CycleID: cc.CycleID}

	results := make([]coinResult, 0, len(cc.CoinList))
	for _, coin := range cc.CoinList {
		stepCtx, cancel := context.WithTimeout(ctx, m.cfg.StepDeadline)
		res := m.evaluateCoin(stepCtx, cc, coin)
		cancel()
		if res.err != nil {
			summary.Skipped++
			log.WithField("coin", coin).WithError(res.err).Warn("coin step skipped this cycle")
			if m.bus != nil {
				m.bus.PublishError("portfolio", "coin step failed", res.err)
			}
			continue
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].intent.Kind.Priority() < results[j].intent.Kind.Priority()
	})

	accountValue := m.cfg.AccountValueKRW
	if v, err := m.AccountValueKRW(ctx); err == nil {
		accountValue = v
	}

	for _, res := range results {
		summary.Processed++
		if res.intent.Kind == model.Hold {
			continue
		}

		if res.intent.Kind == model.Enter || res.intent.Kind == model.Pyramid {
			ok, reason := m.guard.CanOpen(cc.StartedAt, m.store.Count(), accountValue)
			if !ok {
				summary.CapRejected++
				log.WithField("coin", res.coin).WithField("reason", reason).Info("portfolio cap rejected intent")
				continue
			}
		}

		if err := m.exec.Apply(ctx, cc, res.intent, res.snap, m.strategyParams, res.trail); err != nil {
			summary.Errors++
			log.WithField("coin", res.coin).WithError(err).Error("executor failed to apply intent")
			if m.bus != nil {
				m.bus.PublishError("executor", "apply intent failed", err)
			}
			continue
		}
		summary.Dispatched++
	}

	return summary
}

func (m *Manager) evaluateCoin(ctx context.Context, cc model.CycleContext, coin string) coinResult {
	bars, err := m.client.GetCandles(ctx, coin, m.cfg.CandleInterval, m.cfg.CandleLimit)
	if err != nil {
		if cached, ok := m.snapshotCache.Get(ctx, coin); ok {
			logging.Default().WithCycleID(cc.CycleID).WithComponent("portfolio").
				WithField("coin", coin).WithError(err).Warn("candle fetch failed, evaluating against cached snapshot")
			return m.evaluateWithSnapshot(coin, cached)
		}
		return coinResult{coin: coin, err: err}
	}
	if len(bars) < m.indicatorParams.WarmupBars() {
		return coinResult{coin: coin, intent: model.Intent{Coin: coin, Kind: model.Hold, Reason: "warmup"}}
	}

	snap, ok := indicator.BuildSnapshot(coin, bars, m.indicatorParams)
	if !ok {
		return coinResult{coin: coin, intent: model.Intent{Coin: coin, Kind: model.Hold, Reason: "no_bars"}}
	}
	m.snapshotCache.Set(ctx, coin, snap)

	return m.evaluateWithSnapshot(coin, snap)
}

func (m *Manager) evaluateWithSnapshot(coin string, snap model.Snapshot) coinResult {
	reg := m.regimeClassifier.Next(coin, snap)

	var posPtr *model.Position
	if p, ok := m.store.Get(coin); ok {
		posPtr = &p
	}

	intent, trail := m.evaluator.Evaluate(snap, posPtr, reg)
	return coinResult{coin: coin, intent: intent, snap: snap, trail: trail}
}

// AccountValueKRW estimates total account value in KRW: cash balance plus
// the cost basis of every open position. This is a mark-to-cost
// approximation rather than mark-to-market: a full portfolio valuation
// would need a fresh price per open coin beyond what one cycle already
// fetches, and the daily-loss-cap check only needs a stable denominator,
// not an exact one.
func (m *Manager) AccountValueKRW(ctx context.Context) (float64, error) {
	bal, err := m.client.GetBalance(ctx, "ALL")
	if err != nil {
		return 0, err
	}
	value := bal["available_krw"] + bal["in_use_krw"]
	for _, pos := range m.store.Snapshot() {
		value += pos.AvgEntryPrice * pos.Size
	}
	return value, nil
}
