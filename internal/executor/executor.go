// Package executor applies trading intents: it consumes one Intent at a
// time, preflights it against the exchange's minimum trade size, dispatches
// the order, updates the Position Store, appends a Transaction Record, and
// only then emits a lifecycle event. State always persists before any
// notification fires.
package executor

import (
	"context"
	"fmt"

	"bithumbot/internal/bithumb"
	"bithumbot/internal/errs"
	"bithumbot/internal/events"
	"bithumbot/internal/logging"
	"bithumbot/internal/model"
	"bithumbot/internal/persist"
	"bithumbot/internal/position"
	"bithumbot/internal/risk"
	"bithumbot/internal/strategy"
)

// MinTradeKRW is the exchange-documented minimum order notional below
// which an order is rejected as ValidationError rather than dispatched.
const MinTradeKRW = 500

// Executor wires the Exchange Client, Position Store, risk Guard,
// transaction log, and event bus into one serialized apply path. Portfolio
// Manager calls Apply for one intent at a time, in priority order; nothing
// in Executor itself parallelizes across coins.
type Executor struct {
	client *bithumb.Client
	store  *position.Store
	guard  *risk.Guard
	txlog  *persist.TransactionLog
	bus    *events.EventBus
	mirror *persist.PgMirror
}

func New(client *bithumb.Client, store *position.Store, guard *risk.Guard, txlog *persist.TransactionLog, bus *events.EventBus) *Executor {
	return &Executor{client: client, store: store, guard: guard, txlog: txlog, bus: bus}
}

// WithMirror attaches an optional best-effort Postgres mirror; a nil
// mirror is a no-op, matching PgMirror's nil-receiver methods.
func (e *Executor) WithMirror(mirror *persist.PgMirror) *Executor {
	e.mirror = mirror
	return e
}

// Apply dispatches one Intent for one coin within cc, using snap for the
// fill price and entry/trail inputs, and params for the profit-target
// configuration frozen onto a new position.
func (e *Executor) Apply(ctx context.Context, cc model.CycleContext, intent model.Intent, snap model.Snapshot, params strategy.Params, trail strategy.TrailUpdate) error {
	log := logging.Default().WithCycleID(cc.CycleID).WithComponent("executor").WithField("coin", intent.Coin)
	price := snap.Bar.Close

	switch intent.Kind {
	case model.Enter:
		return e.applyEnter(ctx, cc, intent, snap, params, price, log)
	case model.Pyramid:
		return e.applyPyramid(ctx, cc, intent, price, trail, log)
	case model.PartialExit:
		return e.applyExit(ctx, cc, intent, price, trail, log)
	case model.FullExit:
		intent.Fraction = 1.0
		return e.applyExit(ctx, cc, intent, price, trail, log)
	default:
		return nil // Hold: nothing to do
	}
}

func (e *Executor) applyEnter(ctx context.Context, cc model.CycleContext, intent model.Intent, snap model.Snapshot, params strategy.Params, price float64, log *logging.Logger) error {
	if intent.QtyKRW < MinTradeKRW {
		return errs.Validation(fmt.Sprintf("enter notional %.0f below exchange minimum %d", intent.QtyKRW, MinTradeKRW), nil)
	}

	ack, err := e.client.MarketBuy(ctx, intent.Coin, intent.QtyKRW)
	if err != nil {
		return errs.Transient("market buy failed", err)
	}

	qty := intent.QtyKRW / price
	if _, err := e.store.Enter(intent.Coin, cc.StartedAt, price, qty, position.EntryTargets{
		ATRAtEntry:       snap.ATR,
		ChandelierMult:   params.ChandelierMult,
		ProfitTargetMode: params.ProfitTargetMode,
		TP1Pct:           params.TP1Pct,
		TP2Pct:           params.TP2Pct,
	}); err != nil {
		return err
	}

	tx := model.Transaction{
		Ts: cc.StartedAt, Coin: intent.Coin, Side: model.Buy, Qty: qty, Price: price,
		ReasonCode: "entry", OrderID: ack.OrderID, CycleID: cc.CycleID,
	}
	if err := e.txlog.Append(tx); err != nil {
		log.WithError(err).Warn("failed to append entry transaction record")
	}
	e.mirror.MirrorTransaction(ctx, tx)
	e.guard.RecordTrade(cc.StartedAt, 0, false)

	if e.bus != nil {
		e.bus.PublishTradeOpened(intent.Coin, price, qty)
	}
	log.WithField("qty", qty).WithField("price", price).Info("entry filled")
	return nil
}

func (e *Executor) applyPyramid(ctx context.Context, cc model.CycleContext, intent model.Intent, price float64, trail strategy.TrailUpdate, log *logging.Logger) error {
	if intent.QtyKRW < MinTradeKRW {
		return errs.Validation(fmt.Sprintf("pyramid notional %.0f below exchange minimum %d", intent.QtyKRW, MinTradeKRW), nil)
	}

	ack, err := e.client.MarketBuy(ctx, intent.Coin, intent.QtyKRW)
	if err != nil {
		return errs.Transient("market buy failed", err)
	}

	qty := intent.QtyKRW / price
	pos, err := e.store.Pyramid(intent.Coin, cc.StartedAt, price, qty)
	if err != nil {
		return err
	}
	if err := e.store.ApplyTrail(intent.Coin, trail.HighestHighSinceEntry, trail.ChandelierStop); err != nil {
		log.WithError(err).Warn("failed to apply chandelier trail after pyramid")
	}

	tx := model.Transaction{
		Ts: cc.StartedAt, Coin: intent.Coin, Side: model.Buy, Qty: qty, Price: price,
		ReasonCode: "pyramid", OrderID: ack.OrderID, CycleID: cc.CycleID,
	}
	if err := e.txlog.Append(tx); err != nil {
		log.WithError(err).Warn("failed to append pyramid transaction record")
	}
	e.mirror.MirrorTransaction(ctx, tx)
	e.mirror.MirrorPosition(ctx, pos)
	e.guard.RecordTrade(cc.StartedAt, 0, false)

	if e.bus != nil {
		e.bus.PublishTradeAdded(intent.Coin, price, qty, pos.EntryCount)
	}
	log.WithField("qty", qty).WithField("avg_entry", pos.AvgEntryPrice).Info("pyramid filled")
	return nil
}

// applyExit handles both PartialExit and FullExit (fraction 1.0). Position
// state is updated before any notification fires: a crash between order
// ack and state update is recoverable via exchange order history on next
// startup, not by reordering these steps.
func (e *Executor) applyExit(ctx context.Context, cc model.CycleContext, intent model.Intent, price float64, trail strategy.TrailUpdate, log *logging.Logger) error {
	pos, ok := e.store.Get(intent.Coin)
	if !ok {
		return errs.Validation("exit on flat coin "+intent.Coin, nil)
	}

	sellQty := pos.Size * intent.Fraction
	ack, err := e.client.MarketSell(ctx, intent.Coin, sellQty)
	if err != nil {
		return errs.Transient("market sell failed", err)
	}

	tp1Hit := intent.Reason == "tp1"
	tp2Hit := intent.Reason == "tp2" || intent.Kind == model.FullExit
	var newStop *float64
	if trail.ChandelierStop != 0 {
		s := trail.ChandelierStop
		newStop = &s
	}

	result, err := e.store.PartialExit(intent.Coin, intent.Fraction, price, 0, tp1Hit, tp2Hit, newStop)
	if err != nil {
		return err
	}
	if tp1Hit {
		if err := e.store.ApplyBreakeven(intent.Coin); err != nil {
			log.WithError(err).Warn("failed to apply breakeven stop after tp1")
		}
	}

	tx := model.Transaction{
		Ts: cc.StartedAt, Coin: intent.Coin, Side: model.Sell, Qty: result.MatchedQty, Price: price,
		ReasonCode: intent.Reason, OrderID: ack.OrderID, CycleID: cc.CycleID,
	}
	if err := e.txlog.Append(tx); err != nil {
		log.WithError(err).Warn("failed to append exit transaction record")
	}
	e.mirror.MirrorTransaction(ctx, tx)
	e.mirror.MirrorPosition(ctx, result.Position)
	e.guard.RecordTrade(cc.StartedAt, result.RealizedPnL, true)

	if e.bus != nil {
		if intent.Kind == model.FullExit {
			e.bus.PublishFullExit(intent.Coin, result.MatchedQty, price, result.RealizedPnL, intent.Reason)
		} else {
			e.bus.PublishPartialExit(intent.Coin, result.MatchedQty, price, result.RealizedPnL, intent.Reason)
		}
	}
	log.WithField("qty", result.MatchedQty).WithField("pnl", result.RealizedPnL).WithField("reason", intent.Reason).Info("exit filled")
	return nil
}
