// Command positionctl is an offline diagnostic utility: it reads the
// Position Store and transaction log straight off disk, with the bot not
// running, and prints a human-readable summary plus a consistency check of
// the store against the log.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"bithumbot/internal/model"
	"bithumbot/internal/persist"
	"bithumbot/internal/position"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "directory holding positions.json and transactions.jsonl")
	flag.Parse()

	store := position.NewStore(filepath.Join(*dataDir, "positions.json"))
	if err := store.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	txLog := persist.NewTransactionLog(filepath.Join(*dataDir, "transactions.jsonl"))
	txs, err := txLog.ReadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	printOpenPositions(store.Snapshot())
	printTradeSummary(txs)
	printConsistencyCheck(store.Snapshot(), txs)
}

func printOpenPositions(positions map[string]model.Position) {
	fmt.Println("Open positions")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COIN\tSIZE\tAVG_ENTRY\tENTRIES\tCHANDELIER_STOP\tPOSITION_PCT")

	coins := make([]string, 0, len(positions))
	for coin := range positions {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	for _, coin := range coins {
		p := positions[coin]
		fmt.Fprintf(w, "%s\t%.8f\t%.2f\t%d\t%.2f\t%.0f\n",
			p.Coin, p.Size, p.AvgEntryPrice, p.EntryCount, p.ChandelierStop, p.PositionPct)
	}
	w.Flush()
	if len(positions) == 0 {
		fmt.Println("  (none)")
	}
	fmt.Println()
}

type coinTotals struct {
	trades     int
	buyQty     float64
	sellQty    float64
	buyValue   float64
	sellValue  float64
}

func printTradeSummary(txs []model.Transaction) {
	fmt.Println("Transaction summary")
	totals := make(map[string]*coinTotals)
	for _, tx := range txs {
		t, ok := totals[tx.Coin]
		if !ok {
			t = &coinTotals{}
			totals[tx.Coin] = t
		}
		t.trades++
		switch tx.Side {
		case model.Buy:
			t.buyQty += tx.Qty
			t.buyValue += tx.Qty * tx.Price
		case model.Sell:
			t.sellQty += tx.Qty
			t.sellValue += tx.Qty * tx.Price
		}
	}

	coins := make([]string, 0, len(totals))
	for coin := range totals {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COIN\tTRADES\tBUY_QTY\tSELL_QTY\tBUY_VALUE_KRW\tSELL_VALUE_KRW\tNET_VALUE_KRW")
	for _, coin := range coins {
		t := totals[coin]
		fmt.Fprintf(w, "%s\t%d\t%.8f\t%.8f\t%.0f\t%.0f\t%.0f\n",
			coin, t.trades, t.buyQty, t.sellQty, t.buyValue, t.sellValue, t.sellValue-t.buyValue)
	}
	w.Flush()
	fmt.Println("  (net value is a rough buy/sell notional spread, not FIFO-weighted realized P&L)")
	fmt.Println()
}

// printConsistencyCheck recomputes each coin's net quantity from the
// transaction log (buys minus sells) and flags any coin whose net diverges
// from the store's recorded size by more than a float rounding tolerance.
// The store is authoritative; this is a forensic cross-check only.
func printConsistencyCheck(positions map[string]model.Position, txs []model.Transaction) {
	const tolerance = 1e-6

	netQty := make(map[string]float64)
	for _, tx := range txs {
		switch tx.Side {
		case model.Buy:
			netQty[tx.Coin] += tx.Qty
		case model.Sell:
			netQty[tx.Coin] -= tx.Qty
		}
	}

	fmt.Println("Consistency check (transaction log vs position store)")
	mismatches := 0
	coins := make([]string, 0, len(netQty))
	for coin := range netQty {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	for _, coin := range coins {
		expected := netQty[coin]
		actual := positions[coin].Size
		diff := expected - actual
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			mismatches++
			fmt.Printf("  MISMATCH %s: log implies %.8f, store holds %.8f (diff %.8f)\n", coin, expected, actual, expected-actual)
		}
	}
	if mismatches == 0 {
		fmt.Println("  all coins consistent")
	}
}
