// Package risk encapsulates the daily trading budget and consecutive-loss
// circuit breaker the Portfolio Manager checks before dispatching new
// entries. It owns the atomic check-and-increment operations over the
// daily counters.
package risk

import (
	"sync"
	"time"

	"bithumbot/internal/logging"
)

// GuardConfig configures Guard's caps. Zero MaxConsecutiveLosses disables
// that check.
type GuardConfig struct {
	MaxPositions         int
	MaxDailyTrades       int
	MaxDailyLossPct      float64
	MaxConsecutiveLosses int
	Zone                 *time.Location // local calendar zone for rollover
}

// Counters is the durable daily-budget state, mirroring persist's
// daily_counters.json schema.
type Counters struct {
	Date              string  `json:"date"`
	TradesToday       int     `json:"trades_today"`
	RealizedPnLToday  float64 `json:"realized_pnl_today"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

// CountersPersister durably persists the daily-counters file on every
// change and archives it at rollover. internal/persist.CountersStore
// satisfies this interface.
type CountersPersister interface {
	Save(Counters) error
	Archive(now time.Time) error
}

// Guard gates new entries/pyramids against portfolio caps and the daily
// loss/consecutive-loss circuit breaker. Daily counters are mutated only
// through Guard's locked methods; readers may see a stale value within one
// cycle, which is acceptable because caps are rechecked atomically at the
// point of mutation.
type Guard struct {
	mu         sync.Mutex
	cfg        GuardConfig
	counters   Counters
	tripped    bool
	tripReason string
	persister  CountersPersister
}

// NewGuard builds a Guard seeded with counters (e.g. loaded from disk at
// startup).
func NewGuard(cfg GuardConfig, counters Counters) *Guard {
	if cfg.Zone == nil {
		cfg.Zone = time.Local
	}
	g := &Guard{cfg: cfg, counters: counters}
	g.rolloverIfNeeded(time.Now())
	return g
}

// WithPersister attaches the durable counters store; a nil persister (the
// default) keeps Guard's counters in memory only, which is what every
// existing test exercises.
func (g *Guard) WithPersister(p CountersPersister) *Guard {
	g.persister = p
	return g
}

func (g *Guard) today(now time.Time) string {
	return now.In(g.cfg.Zone).Format("2006-01-02")
}

// rolloverIfNeeded resets the daily counters at the first event after
// local midnight. Caller must hold g.mu.
func (g *Guard) rolloverIfNeeded(now time.Time) Counters {
	today := g.today(now)
	if g.counters.Date != today {
		archived := g.counters
		if g.persister != nil && archived.Date != "" {
			if err := g.persister.Archive(now); err != nil {
				logging.Default().WithComponent("risk").WithError(err).Warn("failed to archive daily counters at rollover")
			}
		}
		g.counters = Counters{Date: today}
		g.tripped = false
		g.tripReason = ""
		return archived
	}
	return Counters{}
}

// CanOpen reports whether a new Enter/Pyramid is allowed given the current
// count of open positions and account value. Exits are never gated by this
// check; callers only consult it for Enter/Pyramid intents.
func (g *Guard) CanOpen(now time.Time, openPositions int, accountValue float64) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverIfNeeded(now)

	if g.tripped {
		return false, g.tripReason
	}
	if g.cfg.MaxPositions > 0 && openPositions >= g.cfg.MaxPositions {
		return false, "max_positions"
	}
	if g.cfg.MaxDailyTrades > 0 && g.counters.TradesToday >= g.cfg.MaxDailyTrades {
		return false, "max_daily_trades"
	}
	if g.cfg.MaxDailyLossPct > 0 && accountValue > 0 {
		floor := -g.cfg.MaxDailyLossPct / 100 * accountValue
		if g.counters.RealizedPnLToday < floor {
			return false, "max_daily_loss"
		}
	}
	if g.cfg.MaxConsecutiveLosses > 0 && g.counters.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		return false, "max_consecutive_losses"
	}
	return true, ""
}

// RecordTrade increments the trade counter and, for closing trades
// (isExit), the realized P&L and consecutive-loss streak; a closing trade
// with zero P&L resets the streak like a win. It
// must be called exactly once per dispatched Transaction.
func (g *Guard) RecordTrade(now time.Time, realizedPnL float64, isExit bool) Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rolloverIfNeeded(now)

	g.counters.TradesToday++
	if isExit {
		g.counters.RealizedPnLToday += realizedPnL
		if realizedPnL < 0 {
			g.counters.ConsecutiveLosses++
		} else {
			g.counters.ConsecutiveLosses = 0
		}
	}
	if g.cfg.MaxConsecutiveLosses > 0 && g.counters.ConsecutiveLosses >= g.cfg.MaxConsecutiveLosses {
		g.tripped = true
		g.tripReason = "max_consecutive_losses"
	}
	if g.persister != nil {
		if err := g.persister.Save(g.counters); err != nil {
			logging.Default().WithComponent("risk").WithError(err).Warn("failed to persist daily counters")
		}
	}
	return g.counters
}

// Snapshot returns the current counters.
func (g *Guard) Snapshot() Counters {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.counters
}
