// Package model holds the shared data types that flow through the
// analysis-and-execution pipeline: bars in, snapshots and decisions through
// the middle, positions and transactions out.
package model

import "time"

// Bar is one closed OHLCV candle. Timestamps are monotonically increasing
// within a series; a Bar is immutable once appended.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Snapshot bundles every indicator value computed for one coin on one
// cycle. All fields are normalized per internal/indicator's NaN/Inf rules
// before a Snapshot is handed to the regime classifier or evaluator.
type Snapshot struct {
	Coin string
	Bar  Bar // the most recent closed bar

	MAShort, MALong                float64
	RSI                            float64
	BBUpper, BBMid, BBLower        float64
	MACDLine, MACDSignal, MACDHist float64
	ATR, ATRPercent                float64
	StochK, StochD                 float64
	ADX                            float64
	VolumeRatio                    float64

	EMA50, EMA200 float64
	AvgATRPercent float64 // rolling-50 average of ATR%

	// PrevStochK/PrevStochD are the prior bar's stochastic values, needed
	// for the %K-crosses-above-%D entry condition.
	PrevStochK, PrevStochD float64
}

// RegimeLabel is the six-way market-state classification.
type RegimeLabel int

const (
	RegimeUnknown RegimeLabel = iota
	StrongBullish
	Bullish
	Neutral
	Bearish
	StrongBearish
	Ranging
)

func (r RegimeLabel) String() string {
	switch r {
	case StrongBullish:
		return "strong_bullish"
	case Bullish:
		return "bullish"
	case Neutral:
		return "neutral"
	case Bearish:
		return "bearish"
	case StrongBearish:
		return "strong_bearish"
	case Ranging:
		return "ranging"
	default:
		return "unknown"
	}
}

// VolatilityLabel classifies ATR% against its rolling average.
type VolatilityLabel int

const (
	VolNormal VolatilityLabel = iota
	VolLow
	VolHigh
)

func (v VolatilityLabel) String() string {
	switch v {
	case VolLow:
		return "low"
	case VolHigh:
		return "high"
	default:
		return "normal"
	}
}

// Regime is the committed classifier output for one coin on one cycle.
type Regime struct {
	Label      RegimeLabel
	Volatility VolatilityLabel
}

// ProfitTargetMode chooses how TP1/TP2 are computed.
type ProfitTargetMode string

const (
	PercentBased ProfitTargetMode = "percent_based"
	BBBased      ProfitTargetMode = "bb_based"
)

// Lot is one entry fill, tracked for FIFO realized-P&L accounting.
type Lot struct {
	Ts    time.Time `json:"ts"`
	Price float64   `json:"price"`
	Qty   float64   `json:"qty"`
}

// Position is the durable per-coin trading state. A coin with no Position
// in the store is considered flat.
type Position struct {
	Coin                  string           `json:"coin"`
	Size                  float64          `json:"size"`
	AvgEntryPrice         float64          `json:"avg_entry_price"`
	EntryCount            int              `json:"entry_count"`
	EntryLots             []Lot            `json:"entry_lots"`
	HighestHighSinceEntry float64          `json:"highest_high_since_entry"`
	ChandelierStop        float64          `json:"chandelier_stop"`
	FirstTargetHit        bool             `json:"first_target_hit"`
	SecondTargetHit       bool             `json:"second_target_hit"`
	PositionPct           float64          `json:"position_pct"`
	ProfitTargetMode      ProfitTargetMode `json:"profit_target_mode"`
	TP1Pct                float64          `json:"tp1_pct"`
	TP2Pct                float64          `json:"tp2_pct"`
	ChandelierMult        float64          `json:"chandelier_mult"`
}

// TxSide is the direction of a fill.
type TxSide string

const (
	Buy  TxSide = "buy"
	Sell TxSide = "sell"
)

// Transaction is an append-only audit/accounting record. Never mutated or
// deleted once written.
type Transaction struct {
	Ts         time.Time `json:"ts"`
	Coin       string    `json:"coin"`
	Side       TxSide    `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	ReasonCode string    `json:"reason_code"`
	OrderID    string    `json:"order_id"`
	CycleID    string    `json:"cycle_id"`
}

// DailyCounters tracks portfolio-wide budget state for the current local
// calendar day.
type DailyCounters struct {
	Date              string  `json:"date"`
	TradesToday       int     `json:"trades_today"`
	RealizedPnLToday  float64 `json:"realized_pnl_today"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
}

// CycleContext is handed to every component in one pass through the
// pipeline.
type CycleContext struct {
	CycleID   string
	StartedAt time.Time
	CoinList  []string
	DryRun    bool
}

// IntentKind enumerates the actions the Strategy Evaluator can emit.
type IntentKind int

const (
	Hold IntentKind = iota
	Enter
	Pyramid
	PartialExit
	FullExit
)

func (k IntentKind) String() string {
	switch k {
	case Enter:
		return "enter"
	case Pyramid:
		return "pyramid"
	case PartialExit:
		return "partial_exit"
	case FullExit:
		return "full_exit"
	default:
		return "hold"
	}
}

// Priority returns the dispatch-priority rank used by the Portfolio
// Manager's sort: lower value dispatches first.
func (k IntentKind) Priority() int {
	switch k {
	case FullExit:
		return 0
	case PartialExit:
		return 1
	case Pyramid:
		return 2
	case Enter:
		return 3
	default:
		return 4
	}
}

// Intent is the Strategy Evaluator's per-coin output for one cycle.
type Intent struct {
	Coin       string
	Kind       IntentKind
	QtyKRW     float64 // for Enter/Pyramid: notional in KRW
	Fraction   float64 // for PartialExit: fraction of current size to sell
	Reason     string
	Score      int
	Regime     Regime
}
