package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/futuresbot/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults rejected: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "paper"

[trading]
symbol = "ethusdt"
leverage = 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "paper" {
		t.Fatalf("mode = %q", cfg.Mode)
	}
	if cfg.Trading.Leverage != 5 {
		t.Fatalf("leverage = %d", cfg.Trading.Leverage)
	}
	// Untouched sections keep defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr)
	}
	if cfg.Trading.SignalTimeframe != "15m" {
		t.Fatalf("signal timeframe = %q", cfg.Trading.SignalTimeframe)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("mode = \"monitor\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FUTBOT_TRADING_SYMBOL", "SOLUSDT")
	t.Setenv("FUTBOT_TRADING_LEVERAGE", "7")
	t.Setenv("FUTBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FUTBOT_BINANCE_TESTNET", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Trading.Symbol != "SOLUSDT" {
		t.Fatalf("symbol = %q", cfg.Trading.Symbol)
	}
	if cfg.Trading.Leverage != 7 {
		t.Fatalf("leverage = %d", cfg.Trading.Leverage)
	}
	if !cfg.Binance.Testnet {
		t.Fatal("testnet override not applied")
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Fatalf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestValidateLiveModeRequiresCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("live mode without credentials accepted")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("error %q does not mention api_key", err)
	}

	cfg.Binance.ApiKey = "key"
	cfg.Binance.ApiSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("live mode with credentials rejected: %v", err)
	}
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	cfg.Binance.ApiKey = "key"
	cfg.Binance.EncryptedKeyPath = "secret.enc"

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "key_password") {
		t.Fatalf("missing key password not reported: %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown mode accepted")
	}
}

func TestValidateBacktestNeedsHistorySource(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	cfg.Backtest.CandleCSV = ""
	cfg.Backtest.HistoryDays = 0

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "candle_csv") {
		t.Fatalf("missing history source not reported: %v", err)
	}
}

func TestTradingDomainConversion(t *testing.T) {
	cfg := Defaults()
	cfg.Trading.Symbol = " btcusdt "
	cfg.Trading.CheckIntervalSeconds = 30

	tcfg := cfg.TradingDomain()
	if tcfg.Symbol != "BTCUSDT" {
		t.Fatalf("symbol = %q", tcfg.Symbol)
	}
	if tcfg.CheckInterval != 30*time.Second {
		t.Fatalf("check interval = %v", tcfg.CheckInterval)
	}
	if tcfg.TradeAmount.String() != "0.01" {
		t.Fatalf("trade amount = %s", tcfg.TradeAmount)
	}
	if err := tcfg.Validate(); err != nil {
		t.Fatalf("converted config rejected: %v", err)
	}

	cfg.Trading.Direction = "Short"
	if cfg.Direction() != domain.DirectionShort {
		t.Fatalf("direction = %q", cfg.Direction())
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Binance.ApiSecret = "top-secret"
	cfg.Postgres.Password = "pgpass"
	cfg.Server.APIKey = "apikey"

	red := RedactedConfig(&cfg)
	if red.Binance.ApiSecret == "top-secret" || red.Postgres.Password == "pgpass" || red.Server.APIKey == "apikey" {
		t.Fatal("secret leaked through redaction")
	}
	// The original is untouched.
	if cfg.Binance.ApiSecret != "top-secret" {
		t.Fatal("original mutated")
	}
	if red.Trading.Symbol != cfg.Trading.Symbol {
		t.Fatal("non-secret field changed")
	}
}
