package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bithumbot/internal/logging"
	"bithumbot/internal/model"
)

// PgMirror is a best-effort secondary write path for operator querying and
// analytics. The on-disk files in this package remain authoritative; a
// PgMirror failure is logged and never propagated, because it must never
// block or fail a cycle.
type PgMirror struct {
	pool *pgxpool.Pool
	log  *logging.Logger
}

// NewPgMirror connects to dsn and ensures the mirror tables exist. Returns
// nil, nil if dsn is empty (mirror disabled).
func NewPgMirror(ctx context.Context, dsn string) (*PgMirror, error) {
	if dsn == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres mirror: %w", err)
	}
	m := &PgMirror{pool: pool, log: logging.Default().WithComponent("persist.pgmirror")}
	if err := m.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

func (m *PgMirror) ensureSchema(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			coin TEXT NOT NULL,
			side TEXT NOT NULL,
			qty DOUBLE PRECISION NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			fee DOUBLE PRECISION NOT NULL,
			reason_code TEXT NOT NULL,
			order_id TEXT NOT NULL,
			cycle_id TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS position_snapshots (
			id BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			coin TEXT NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			avg_entry_price DOUBLE PRECISION NOT NULL,
			entry_count INT NOT NULL,
			chandelier_stop DOUBLE PRECISION NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure mirror schema: %w", err)
	}
	return nil
}

// MirrorTransaction writes tx to the mirror. Failures are logged, never
// returned; the trading path must not branch on mirror health.
func (m *PgMirror) MirrorTransaction(ctx context.Context, tx model.Transaction) {
	if m == nil {
		return
	}
	_, err := m.pool.Exec(ctx, `
		INSERT INTO transactions (ts, coin, side, qty, price, fee, reason_code, order_id, cycle_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, tx.Ts, tx.Coin, string(tx.Side), tx.Qty, tx.Price, tx.Fee, tx.ReasonCode, tx.OrderID, tx.CycleID)
	if err != nil {
		m.log.WithError(err).Warn("failed to mirror transaction to postgres")
	}
}

// MirrorPosition writes a point-in-time snapshot of pos to the mirror.
func (m *PgMirror) MirrorPosition(ctx context.Context, pos model.Position) {
	if m == nil {
		return
	}
	_, err := m.pool.Exec(ctx, `
		INSERT INTO position_snapshots (recorded_at, coin, size, avg_entry_price, entry_count, chandelier_stop)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, time.Now(), pos.Coin, pos.Size, pos.AvgEntryPrice, pos.EntryCount, pos.ChandelierStop)
	if err != nil {
		m.log.WithError(err).Warn("failed to mirror position to postgres")
	}
}

// Close releases the underlying connection pool.
func (m *PgMirror) Close() {
	if m == nil {
		return
	}
	m.pool.Close()
}
