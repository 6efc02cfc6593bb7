// Package config loads the bot's configuration surface from a YAML file
// with environment-variable overrides for credentials, grouped per
// concern: exchange, portfolio, strategy, safety, scheduler.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the top-level configuration, loaded from a YAML file and
// overlaid with BITHUMBOT_* environment variables for secrets.
type Config struct {
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Portfolio PortfolioConfig `mapstructure:"portfolio"`
	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

// ExchangeConfig holds Bithumb credentials and the rate-limit bucket shape.
type ExchangeConfig struct {
	ConnectKey      string  `mapstructure:"connect_key"`
	SecretKey       string  `mapstructure:"secret_key"`
	BaseURL         string  `mapstructure:"base_url"`
	RateLimitRPS    float64 `mapstructure:"rate_limit_rps"`
	RateLimitWindow int     `mapstructure:"rate_limit_window_sec"`
}

// PortfolioConfig configures the coin basket and portfolio-wide caps.
type PortfolioConfig struct {
	Coins           []string `mapstructure:"coins"`
	MaxPositions    int      `mapstructure:"max_positions"`
	MaxDailyTrades  int      `mapstructure:"max_daily_trades"`
	MaxDailyLossPct float64  `mapstructure:"max_daily_loss_pct"`
	BaseTradeKRW    float64  `mapstructure:"base_trade_krw"`
	MaxPyramids     int      `mapstructure:"max_pyramids"`
}

// StrategyConfig configures the Indicator Library and Strategy Evaluator.
type StrategyConfig struct {
	Interval            string             `mapstructure:"interval"`
	WarmupBars          int                `mapstructure:"warmup_bars"`
	ChandelierMult      float64            `mapstructure:"chandelier_mult"`
	ProfitTargetMode    string             `mapstructure:"profit_target_mode"`
	TP1Pct              float64            `mapstructure:"tp1_pct"`
	TP2Pct              float64            `mapstructure:"tp2_pct"`
	PyramidEpsilon      float64            `mapstructure:"pyramid_epsilon"`
	PyramidSizeMults    []float64          `mapstructure:"pyramid_size_mults"`
	RegimeMinScores     map[string]int     `mapstructure:"regime_min_scores"`
	ConfidenceThreshold float64            `mapstructure:"confidence_threshold"`
	Weights             map[string]float64 `mapstructure:"weights"`
}

// SafetyConfig configures dry-run and the circuit breaker.
type SafetyConfig struct {
	DryRun               bool `mapstructure:"dry_run"`
	EmergencyStop        bool `mapstructure:"emergency_stop"`
	MaxConsecutiveLosses int  `mapstructure:"max_consecutive_losses"`
}

// SchedulerConfig configures cycle timing and per-step/per-call deadlines.
type SchedulerConfig struct {
	CyclePeriodSec  int `mapstructure:"cycle_period_sec"`
	CallDeadlineSec int `mapstructure:"call_deadline_sec"`
	StepDeadlineSec int `mapstructure:"step_deadline_sec"`
	ParallelWorkers int `mapstructure:"parallel_workers"`
}

// StorageConfig points at the data directory holding the persisted state
// files, an optional Postgres mirror DSN, and an optional Redis snapshot
// cache.
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisDB     int    `mapstructure:"redis_db"`
}

// NotifyConfig configures the outbound notification sinks.
type NotifyConfig struct {
	QueueSize      int    `mapstructure:"queue_size"`
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChat   string `mapstructure:"telegram_chat_id"`
	DiscordWebhook string `mapstructure:"discord_webhook"`
}

// CyclePeriod returns CyclePeriodSec as a time.Duration.
func (s SchedulerConfig) CyclePeriod() time.Duration {
	return time.Duration(s.CyclePeriodSec) * time.Second
}

func (s SchedulerConfig) CallDeadline() time.Duration {
	return time.Duration(s.CallDeadlineSec) * time.Second
}

func (s SchedulerConfig) StepDeadline() time.Duration {
	return time.Duration(s.StepDeadlineSec) * time.Second
}

// Default returns the stock configuration: a three-coin basket, two
// concurrent positions, dry-run on.
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:         "https://api.bithumb.com",
			RateLimitRPS:    20.0 / 60.0,
			RateLimitWindow: 60,
		},
		Portfolio: PortfolioConfig{
			Coins:           []string{"BTC", "ETH", "XRP"},
			MaxPositions:    2,
			MaxDailyTrades:  10,
			MaxDailyLossPct: 5,
			BaseTradeKRW:    50000,
			MaxPyramids:     3,
		},
		Strategy: StrategyConfig{
			Interval:         "15m",
			WarmupBars:       200,
			ChandelierMult:   3.0,
			ProfitTargetMode: "percent_based",
			TP1Pct:           1.5,
			TP2Pct:           2.5,
			PyramidEpsilon:   0.01,
			PyramidSizeMults: []float64{1.0, 0.5, 0.25},
			RegimeMinScores: map[string]int{
				"strong_bullish": 2,
				"bullish":        3,
				"neutral":        3,
				"ranging":        3,
				"bearish":        4,
			},
		},
		Safety: SafetyConfig{
			DryRun:               true,
			MaxConsecutiveLosses: 4,
		},
		Scheduler: SchedulerConfig{
			CyclePeriodSec:  15 * 60,
			CallDeadlineSec: 15,
			StepDeadlineSec: 30,
			ParallelWorkers: 1,
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Notify: NotifyConfig{
			QueueSize: 256,
		},
	}
}

// Load reads configuration from path (a YAML file), overlaid with a local
// .env file (if present, via godotenv; non-fatal when missing) and
// BITHUMBOT_* environment variables, which take precedence over the file
// for the credential fields.
func Load(path string) (Config, error) {
	_ = godotenv.Load() // optional local .env; absence is not an error

	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BITHUMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := v.GetString("exchange.connect_key"); key != "" {
		cfg.Exchange.ConnectKey = key
	}
	if secret := v.GetString("exchange.secret_key"); secret != "" {
		cfg.Exchange.SecretKey = secret
	}

	return cfg, nil
}

// Validate checks the invariants Load cannot enforce via defaults alone;
// in particular, a live (non-dry-run) process must have credentials.
func (c Config) Validate() error {
	if !c.Safety.DryRun && (c.Exchange.ConnectKey == "" || c.Exchange.SecretKey == "") {
		return fmt.Errorf("exchange credentials are required when safety.dry_run is false")
	}
	if len(c.Portfolio.Coins) == 0 {
		return fmt.Errorf("portfolio.coins must name at least one coin")
	}
	if c.Portfolio.MaxPyramids <= 0 {
		return fmt.Errorf("portfolio.max_pyramids must be > 0")
	}
	return nil
}
