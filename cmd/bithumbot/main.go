// Command bithumbot is the process entrypoint: it loads configuration,
// wires every component in dependency order, and blocks on the Scheduler
// until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"bithumbot/internal/bithumb"
	"bithumbot/internal/cache"
	"bithumbot/internal/config"
	"bithumbot/internal/events"
	"bithumbot/internal/executor"
	"bithumbot/internal/httpstatus"
	"bithumbot/internal/indicator"
	"bithumbot/internal/logging"
	"bithumbot/internal/model"
	"bithumbot/internal/notify"
	"bithumbot/internal/persist"
	"bithumbot/internal/portfolio"
	"bithumbot/internal/position"
	"bithumbot/internal/regime"
	"bithumbot/internal/risk"
	"bithumbot/internal/scheduler"
	"bithumbot/internal/secrets"
	"bithumbot/internal/strategy"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	statusAddr := flag.String("status-addr", ":8090", "listen address for the read-only status HTTP surface")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Fatal("failed to load configuration: %v", err)
	}

	log := logging.New(&logging.Config{
		Level:      logging.ParseLevel("INFO"),
		JSONFormat: true,
		Component:  "main",
	})
	logging.SetDefault(log)

	secretProvider := secrets.NewEnvProvider(cfg.Exchange)
	apiKey, secretKey, err := secretProvider.Credentials(context.Background())
	if err != nil {
		logging.Fatal("failed to resolve exchange credentials: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		logging.Fatal("invalid configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logging.Fatal("failed to create data directory %s: %v", cfg.Storage.DataDir, err)
	}

	bus := events.NewEventBus()

	client := bithumb.NewClient(bithumb.Config{
		BaseURL:      cfg.Exchange.BaseURL,
		APIKey:       apiKey,
		SecretKey:    secretKey,
		DryRun:       cfg.Safety.DryRun,
		CallDeadline: cfg.Scheduler.CallDeadline(),
		Limiter:      bithumb.NewDefaultLimiter(),
	})

	store := position.NewStore(filepath.Join(cfg.Storage.DataDir, "positions.json"))
	if err := store.Load(); err != nil {
		logging.Default().WithError(err).Warn("position store load reported an issue; continuing")
	}

	txLog := persist.NewTransactionLog(filepath.Join(cfg.Storage.DataDir, "transactions.jsonl"))
	countersStore := persist.NewCountersStore(filepath.Join(cfg.Storage.DataDir, "daily_counters.json"))
	counters, err := countersStore.Load()
	if err != nil {
		logging.Default().WithError(err).Warn("daily counters load reported an issue; starting fresh")
	}

	guard := risk.NewGuard(risk.GuardConfig{
		MaxPositions:         cfg.Portfolio.MaxPositions,
		MaxDailyTrades:       cfg.Portfolio.MaxDailyTrades,
		MaxDailyLossPct:      cfg.Portfolio.MaxDailyLossPct,
		MaxConsecutiveLosses: cfg.Safety.MaxConsecutiveLosses,
	}, counters).WithPersister(countersStore)

	mirror, err := persist.NewPgMirror(context.Background(), cfg.Storage.PostgresDSN)
	if err != nil {
		logging.Default().WithError(err).Warn("postgres mirror unavailable; continuing file-only")
		mirror = nil
	}

	exec := executor.New(client, store, guard, txLog, bus).WithMirror(mirror)

	snapshotCache, err := cache.NewSnapshotCache(cfg.Storage.RedisAddr, cfg.Storage.RedisDB, 2*cfg.Scheduler.CyclePeriod())
	if err != nil {
		logging.Default().WithError(err).Warn("snapshot cache unavailable; continuing without it")
		snapshotCache = nil
	}

	regimeClassifier := regime.NewClassifier()
	evaluator := strategy.NewEvaluator(buildStrategyParams(cfg))

	pm := portfolio.New(portfolio.Config{
		Coins:          cfg.Portfolio.Coins,
		CandleInterval: bithumb.Interval(cfg.Strategy.Interval),
		CandleLimit:    indicator.DefaultParams().WarmupBars() + 10,
		StepDeadline:   cfg.Scheduler.StepDeadline(),
	}, client, store, guard, regimeClassifier, evaluator, exec, indicator.DefaultParams(), buildStrategyParams(cfg), bus).
		WithSnapshotCache(snapshotCache)

	sched := scheduler.New(scheduler.Config{
		CyclePeriod: cfg.Scheduler.CyclePeriod(),
		CoinList:    cfg.Portfolio.Coins,
		DryRun:      cfg.Safety.DryRun,
	}, pm, bus)

	recorder := httpstatus.NewRecorder()
	bus.Subscribe(events.EventHeartbeat, func(e events.Event) {
		recorder.Record(httpstatus.Heartbeat{
			CycleID:        e.Data["cycle_id"].(string),
			Timestamp:      e.Timestamp,
			CoinsProcessed: asInt(e.Data["coins_processed"]),
			CoinsSkipped:   asInt(e.Data["coins_skipped"]),
		})
	})
	router := httpstatus.NewRouter(recorder, store, 2*cfg.Scheduler.CyclePeriod())

	telegramChatID, _ := strconv.ParseInt(cfg.Notify.TelegramChat, 10, 64)
	sinks := []notify.Sink{notify.NewLogSink()}
	if telegram, err := notify.NewTelegramSink(cfg.Notify.TelegramToken, telegramChatID); err == nil {
		sinks = append(sinks, telegram)
	} else {
		logging.Default().WithError(err).Warn("telegram sink disabled")
	}
	sinks = append(sinks, notify.NewDiscordSink(cfg.Notify.DiscordWebhook))
	notifyMgr := notify.NewManager(sinks, cfg.Notify.QueueSize)
	notifyMgr.Subscribe(bus)

	bus.Publish(events.Event{Type: events.EventBotStarted})

	ctx, cancel := context.WithCancel(context.Background())
	statusServer := &http.Server{Addr: *statusAddr, Handler: logging.HTTPMiddleware(router)}
	go func() {
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Default().WithError(err).Warn("status http server stopped")
		}
	}()

	go sched.Run(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logging.Default().Info("shutdown signal received")
	cancel()
	time.Sleep(500 * time.Millisecond) // let the in-flight cycle's final writes land

	bus.Publish(events.Event{Type: events.EventBotStopped})
	notifyMgr.Close()
	mirror.Close()
	snapshotCache.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logging.Default().WithError(err).Warn("status http server did not shut down cleanly")
	}
}

func buildStrategyParams(cfg config.Config) strategy.Params {
	mode := model.PercentBased
	if cfg.Strategy.ProfitTargetMode == "bb_based" {
		mode = model.BBBased
	}
	minScores := make(map[model.RegimeLabel]int, len(cfg.Strategy.RegimeMinScores))
	for k, v := range cfg.Strategy.RegimeMinScores {
		minScores[parseRegimeLabel(k)] = v
	}
	mults := cfg.Strategy.PyramidSizeMults
	if len(mults) == 0 {
		mults = []float64{1.0, 0.5, 0.25}
	}
	return strategy.Params{
		BaseTradeKRW:     cfg.Portfolio.BaseTradeKRW,
		MaxPyramids:      cfg.Portfolio.MaxPyramids,
		PyramidEpsilon:   cfg.Strategy.PyramidEpsilon,
		PyramidSizeMults: mults,
		ChandelierMult:   cfg.Strategy.ChandelierMult,
		ProfitTargetMode: mode,
		TP1Pct:           cfg.Strategy.TP1Pct,
		TP2Pct:           cfg.Strategy.TP2Pct,
		RegimeMinScore:   minScores,
	}
}

func parseRegimeLabel(s string) model.RegimeLabel {
	switch s {
	case "strong_bullish":
		return model.StrongBullish
	case "bullish":
		return model.Bullish
	case "neutral":
		return model.Neutral
	case "ranging":
		return model.Ranging
	case "bearish":
		return model.Bearish
	case "strong_bearish":
		return model.StrongBearish
	default:
		return model.RegimeUnknown
	}
}

func asInt(v interface{}) int {
	if i, ok := v.(int); ok {
		return i
	}
	return 0
}
