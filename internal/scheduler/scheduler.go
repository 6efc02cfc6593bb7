// Package scheduler drives the trading loop: it ticks the cycle at a
// fixed period, bounds each cycle with a hard deadline context, and stops
// starting new cycles once its context is cancelled (the caller maps
// SIGINT/SIGTERM to that cancellation).
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"bithumbot/internal/events"
	"bithumbot/internal/logging"
	"bithumbot/internal/model"
	"bithumbot/internal/portfolio"
)

// Config controls cycle timing.
type Config struct {
	CyclePeriod  time.Duration // default 15m
	CycleCeiling time.Duration // hard ceiling per cycle, default 80% of CyclePeriod
	CoinList     []string
	DryRun       bool
}

// Scheduler drives Manager.RunCycle at a fixed period until the context
// passed to Run is cancelled.
type Scheduler struct {
	cfg     Config
	manager *portfolio.Manager
	bus     *events.EventBus
	log     *logging.Logger

	cycles int64
}

// New builds a Scheduler.
func New(cfg Config, manager *portfolio.Manager, bus *events.EventBus) *Scheduler {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = 15 * time.Minute
	}
	if cfg.CycleCeiling <= 0 {
		cfg.CycleCeiling = time.Duration(float64(cfg.CyclePeriod) * 0.8)
	}
	return &Scheduler{
		cfg:     cfg,
		manager: manager,
		bus:     bus,
		log:     logging.Default().WithComponent("scheduler"),
	}
}

// Run blocks, ticking one cycle every CyclePeriod, until ctx is cancelled.
// An in-flight cycle's context is derived from ctx, so cancellation reaches
// that cycle too: its remaining steps and exchange calls see a cancelled
// context rather than being given the rest of the ceiling. Run returns
// once that cycle returns; the caller is responsible for persisting state
// and emitting a BotStopped notification after it returns.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CyclePeriod)
	defer ticker.Stop()

	s.runOneCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler context cancelled, no new cycles will start")
			return
		case <-ticker.C:
			s.runOneCycle(ctx)
		}
	}
}

func (s *Scheduler) runOneCycle(parent context.Context) {
	cycleID := uuid.NewString()
	cc := model.CycleContext{
		CycleID:   cycleID,
		StartedAt: time.Now(),
		CoinList:  s.cfg.CoinList,
		DryRun:    s.cfg.DryRun,
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.CycleCeiling)
	defer cancel()

	log := logging.CycleContext(cycleID)
	log.Info("cycle starting")

	summary := s.runStep(ctx, cc)
	n := atomic.AddInt64(&s.cycles, 1)

	log.WithField("processed", summary.Processed).
		WithField("skipped", summary.Skipped).
		WithField("dispatched", summary.Dispatched).
		WithField("cap_rejected", summary.CapRejected).
		WithField("errors", summary.Errors).
		WithField("cycle_number", n).
		Info("cycle complete")

	if s.bus != nil {
		s.bus.PublishHeartbeat(cycleID, summary.Processed, summary.Skipped)
	}
}

// runStep wraps the whole per-cycle pipeline in a recover() so a panic in
// any one coin's evaluation cannot take down the scheduler loop itself; a
// recovered panic ends that cycle and counts every coin as skipped.
func (s *Scheduler) runStep(ctx context.Context, cc model.CycleContext) (summary portfolio.CycleSummary) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithCycleID(cc.CycleID).WithField("panic", fmt.Sprintf("%v", r)).Error("recovered panic in cycle pipeline")
			if s.bus != nil {
				s.bus.PublishError("scheduler", "recovered panic in cycle pipeline", fmt.Errorf("%v", r))
			}
			summary = portfolio.CycleSummary{CycleID: cc.CycleID, Skipped: len(cc.CoinList)}
		}
	}()
	return s.manager.RunCycle(ctx, cc)
}

// CyclesRun returns how many cycles have completed (for tests/diagnostics).
func (s *Scheduler) CyclesRun() int64 {
	return atomic.LoadInt64(&s.cycles)
}
