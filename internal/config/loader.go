package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUTBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Binance ──
	setStr(&cfg.Binance.ApiKey, "FUTBOT_BINANCE_API_KEY")
	setStr(&cfg.Binance.ApiSecret, "FUTBOT_BINANCE_API_SECRET")
	setStr(&cfg.Binance.EncryptedKeyPath, "FUTBOT_BINANCE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Binance.KeyPassword, "FUTBOT_BINANCE_KEY_PASSWORD")
	setBool(&cfg.Binance.Testnet, "FUTBOT_BINANCE_TESTNET")
	setStr(&cfg.Binance.WsHost, "FUTBOT_BINANCE_WS_HOST")
	setInt(&cfg.Binance.RateLimitPerSecond, "FUTBOT_BINANCE_RATE_LIMIT_PER_SECOND")
	setInt(&cfg.Binance.RetryMaxAttempts, "FUTBOT_BINANCE_RETRY_MAX_ATTEMPTS")
	setInt(&cfg.Binance.BreakerFailures, "FUTBOT_BINANCE_BREAKER_FAILURES")
	setInt(&cfg.Binance.BreakerCooldownSecs, "FUTBOT_BINANCE_BREAKER_COOLDOWN_SECS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FUTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUTBOT_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "FUTBOT_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "FUTBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FUTBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FUTBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FUTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FUTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FUTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FUTBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FUTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FUTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FUTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FUTBOT_S3_FORCE_PATH_STYLE")

	// ── Trading ──
	setStr(&cfg.Trading.Symbol, "FUTBOT_TRADING_SYMBOL")
	setStr(&cfg.Trading.Direction, "FUTBOT_TRADING_DIRECTION")
	setFloat64(&cfg.Trading.TradeAmount, "FUTBOT_TRADING_TRADE_AMOUNT")
	setInt(&cfg.Trading.Leverage, "FUTBOT_TRADING_LEVERAGE")
	setFloat64(&cfg.Trading.TrailingStopPercent, "FUTBOT_TRADING_TRAILING_STOP_PERCENT")
	setStr(&cfg.Trading.SignalTimeframe, "FUTBOT_TRADING_SIGNAL_TIMEFRAME")
	setStr(&cfg.Trading.ConfirmationTimeframe, "FUTBOT_TRADING_CONFIRMATION_TIMEFRAME")
	setInt(&cfg.Trading.RSILookback, "FUTBOT_TRADING_RSI_LOOKBACK")
	setFloat64(&cfg.Trading.RSIOversold, "FUTBOT_TRADING_RSI_OVERSOLD")
	setFloat64(&cfg.Trading.RSIOverbought, "FUTBOT_TRADING_RSI_OVERBOUGHT")
	setInt(&cfg.Trading.CheckIntervalSeconds, "FUTBOT_TRADING_CHECK_INTERVAL_SECONDS")
	setBool(&cfg.Trading.SentimentGate, "FUTBOT_TRADING_SENTIMENT_GATE")

	// ── Backtest ──
	setStr(&cfg.Backtest.CandleCSV, "FUTBOT_BACKTEST_CANDLE_CSV")
	setInt(&cfg.Backtest.HistoryDays, "FUTBOT_BACKTEST_HISTORY_DAYS")
	setFloat64(&cfg.Backtest.InitialBalance, "FUTBOT_BACKTEST_INITIAL_BALANCE")
	setInt64(&cfg.Backtest.LatencyMillis, "FUTBOT_BACKTEST_LATENCY_MILLIS")
	setFloat64(&cfg.Backtest.SlippageFraction, "FUTBOT_BACKTEST_SLIPPAGE_FRACTION")
	setFloat64(&cfg.Backtest.TakerFeeRate, "FUTBOT_BACKTEST_TAKER_FEE_RATE")
	setFloat64(&cfg.Backtest.LotStep, "FUTBOT_BACKTEST_LOT_STEP")
	setBool(&cfg.Backtest.ArchiveReports, "FUTBOT_BACKTEST_ARCHIVE_REPORTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "FUTBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FUTBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "FUTBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "FUTBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "FUTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FUTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FUTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FUTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "FUTBOT_MODE")
	setStr(&cfg.LogLevel, "FUTBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
