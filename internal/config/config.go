// Package config defines the top-level configuration for the futures trading
// bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FUTBOT_* environment variables.
type Config struct {
	Binance  BinanceConfig  `toml:"binance"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Trading  TradingConfig  `toml:"trading"`
	Backtest BacktestConfig `toml:"backtest"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// BinanceConfig holds Binance USDⓈ-M futures API credentials and endpoints.
type BinanceConfig struct {
	ApiKey           string `toml:"api_key"`
	ApiSecret        string `toml:"api_secret"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	Testnet          bool   `toml:"testnet"`
	WsHost           string `toml:"ws_host"`

	// Resilience policy applied by the gateway decorator.
	RateLimitPerSecond  int `toml:"rate_limit_per_second"`
	RetryMaxAttempts    int `toml:"retry_max_attempts"`
	BreakerFailures     int `toml:"breaker_failures"`
	BreakerCooldownSecs int `toml:"breaker_cooldown_secs"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig holds the strategy parameters for one engine instance.
type TradingConfig struct {
	Symbol                string  `toml:"symbol"`
	Direction             string  `toml:"direction"` // "long" or "short"
	TradeAmount           float64 `toml:"trade_amount"`
	Leverage              int     `toml:"leverage"`
	TrailingStopPercent   float64 `toml:"trailing_stop_percent"`
	SignalTimeframe       string  `toml:"signal_timeframe"`
	ConfirmationTimeframe string  `toml:"confirmation_timeframe"`
	RSILookback           int     `toml:"rsi_lookback"`
	RSIOversold           float64 `toml:"rsi_oversold"`
	RSIOverbought         float64 `toml:"rsi_overbought"`
	MACDFast              int     `toml:"macd_fast"`
	MACDSlow              int     `toml:"macd_slow"`
	MACDSignalPeriod      int     `toml:"macd_signal_period"`
	BollingerPeriod       int     `toml:"bollinger_period"`
	BollingerStdDev       float64 `toml:"bollinger_std_dev"`
	CheckIntervalSeconds  int     `toml:"check_interval_seconds"`
	SentimentGate         bool    `toml:"sentiment_gate"`
}

// BacktestConfig holds replay parameters.
type BacktestConfig struct {
	CandleCSV        string  `toml:"candle_csv"` // if empty, history is loaded from the candle store
	HistoryDays      int     `toml:"history_days"`
	InitialBalance   float64 `toml:"initial_balance"`
	LatencyMillis    int64   `toml:"latency_millis"`
	SlippageFraction float64 `toml:"slippage_fraction"`
	TakerFeeRate     float64 `toml:"taker_fee_rate"`
	LotStep          float64 `toml:"lot_step"`
	ArchiveReports   bool    `toml:"archive_reports"`
}

// ServerConfig holds HTTP control-surface parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			Testnet:             false,
			WsHost:              "wss://fstream.binance.com",
			RateLimitPerSecond:  8,
			RetryMaxAttempts:    3,
			BreakerFailures:     5,
			BreakerCooldownSecs: 30,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "futuresbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "futuresbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Trading: TradingConfig{
			Symbol:                "BTCUSDT",
			Direction:             "long",
			TradeAmount:           0.01,
			Leverage:              3,
			TrailingStopPercent:   1.5,
			SignalTimeframe:       "15m",
			ConfirmationTimeframe: "1h",
			RSILookback:           14,
			RSIOversold:           30,
			RSIOverbought:         70,
			MACDFast:              12,
			MACDSlow:              26,
			MACDSignalPeriod:      9,
			BollingerPeriod:       20,
			BollingerStdDev:       2.0,
			CheckIntervalSeconds:  60,
			SentimentGate:         false,
		},
		Backtest: BacktestConfig{
			HistoryDays:      30,
			InitialBalance:   10_000,
			LatencyMillis:    500,
			SlippageFraction: 0.0005,
			TakerFeeRate:     0.0004,
			LotStep:          0.001,
			ArchiveReports:   false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "liquidation", "error"},
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"live":     true,
	"paper":    true,
	"backtest": true,
	"monitor":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, paper, backtest, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Binance credentials are only mandatory when real orders can be placed.
	if c.Mode == "live" {
		if c.Binance.ApiKey == "" {
			errs = append(errs, "binance: api_key is required for live mode")
		}
		if c.Binance.ApiSecret == "" && c.Binance.EncryptedKeyPath == "" {
			errs = append(errs, "binance: either api_secret or encrypted_key_path must be set for live mode")
		}
		if c.Binance.EncryptedKeyPath != "" && c.Binance.KeyPassword == "" {
			errs = append(errs, "binance: key_password is required when encrypted_key_path is set")
		}
	}
	if c.Binance.RateLimitPerSecond < 1 {
		errs = append(errs, "binance: rate_limit_per_second must be >= 1")
	}
	if c.Binance.RetryMaxAttempts < 1 {
		errs = append(errs, "binance: retry_max_attempts must be >= 1")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Backtest.ArchiveReports {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when backtest.archive_reports is set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when backtest.archive_reports is set")
		}
	}

	if dir := domain.Direction(strings.ToLower(c.Trading.Direction)); !dir.Valid() {
		errs = append(errs, fmt.Sprintf("trading: direction must be long or short, got %q", c.Trading.Direction))
	}
	if err := c.TradingDomain().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("trading: %v", err))
	}

	if c.Mode == "backtest" || c.Mode == "paper" {
		if c.Backtest.InitialBalance <= 0 {
			errs = append(errs, "backtest: initial_balance must be > 0")
		}
		if c.Backtest.LatencyMillis < 0 {
			errs = append(errs, "backtest: latency_millis must be >= 0")
		}
		if c.Backtest.SlippageFraction < 0 || c.Backtest.SlippageFraction >= 1 {
			errs = append(errs, "backtest: slippage_fraction must be in [0, 1)")
		}
		if c.Backtest.TakerFeeRate < 0 || c.Backtest.TakerFeeRate >= 1 {
			errs = append(errs, "backtest: taker_fee_rate must be in [0, 1)")
		}
		if c.Backtest.LotStep <= 0 {
			errs = append(errs, "backtest: lot_step must be > 0")
		}
	}
	if c.Mode == "backtest" && c.Backtest.CandleCSV == "" && c.Backtest.HistoryDays <= 0 {
		errs = append(errs, "backtest: set candle_csv or a positive history_days")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Direction returns the configured trade direction, normalized.
func (c *Config) Direction() domain.Direction {
	return domain.Direction(strings.ToLower(strings.TrimSpace(c.Trading.Direction)))
}

// TradingDomain converts the TOML trading section into the immutable domain
// parameter set consumed by the decision engine.
func (c *Config) TradingDomain() domain.TradingConfig {
	return domain.TradingConfig{
		Symbol:                strings.ToUpper(strings.TrimSpace(c.Trading.Symbol)),
		TradeAmount:           decimal.NewFromFloat(c.Trading.TradeAmount),
		Leverage:              c.Trading.Leverage,
		TrailingStopPercent:   c.Trading.TrailingStopPercent,
		SignalTimeframe:       c.Trading.SignalTimeframe,
		ConfirmationTimeframe: c.Trading.ConfirmationTimeframe,
		RSILookback:           c.Trading.RSILookback,
		RSIOversold:           c.Trading.RSIOversold,
		RSIOverbought:         c.Trading.RSIOverbought,
		MACDFast:              c.Trading.MACDFast,
		MACDSlow:              c.Trading.MACDSlow,
		MACDSignalPeriod:      c.Trading.MACDSignalPeriod,
		BollingerPeriod:       c.Trading.BollingerPeriod,
		BollingerStdDev:       c.Trading.BollingerStdDev,
		CheckInterval:         time.Duration(c.Trading.CheckIntervalSeconds) * time.Second,
	}
}
