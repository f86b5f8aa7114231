package infra

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"futures_trader/internal/domain"
)

const validYAML = `
credentials:
  api_key: key
  api_secret: secret
general:
  base_asset: USDT
  trading_mode: Testnet
  quote_balance: 1000
  leverage: 5
  risk_per_trade_pct: 1
  max_concurrent_positions: 1
  time_frame: 15m
  data_lookback: 500
filters:
  min_volume_usdt: 1000000
  max_spread_pct: 0.05
risk_management:
  atr_period: 14
  atr_multiplier_sl: 2.5
  atr_multiplier_tp: 4
  trailing_stop: true
  trailing_atr_multiplier: 1.5
signal_weights:
  trend_score_weight: 0.4
  momentum_score_weight: 0.25
  orderflow_score_weight: 0.2
  liquidity_score_weight: 0.15
notifications:
  enabled: false
  webhook_url: ""
`

const validTOML = `
[credentials]
api_key = "key"
api_secret = "secret"

[general]
base_asset = "USDT"
trading_mode = "dry_run"
quote_balance = 500.0
leverage = 3
risk_per_trade_pct = 0.5
max_concurrent_positions = 1
time_frame = "1h"
data_lookback = 300
receive_command = false
fixed_cost = -4.0

[filters]
min_volume_usdt = 0.0
max_spread_pct = 0.1

[risk_management]
atr_period = 14
atr_multiplier_sl = 2.0
atr_multiplier_tp = 3.0
trailing_stop = false
trailing_atr_multiplier = 0.0

[signal_weights]
trend_score_weight = 1.0
momentum_score_weight = 0.0
orderflow_score_weight = 0.0
liquidity_score_weight = 0.0

[notifications]
enabled = true
webhook_url = "https://hooks.example.com/abc"

[server]
addr = ":9090"
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfig_YAML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "settings.yaml", validYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.General.TradingMode != ModeTestnet {
		t.Errorf("Expected mode testnet, got %s", cfg.General.TradingMode)
	}
	if !cfg.UsesTestnet() || cfg.IsDryRun() {
		t.Error("Expected testnet exchange orders")
	}
	if cfg.RequiresManualSymbol() {
		t.Error("receive_command should default to true")
	}
	if cfg.Logging.Dir != "logs" {
		t.Errorf("Expected default log dir, got %q", cfg.Logging.Dir)
	}
	if cfg.RiskManagement.ATRMultiplierTP != 4 {
		t.Errorf("Expected TP multiplier 4, got %v", cfg.RiskManagement.ATRMultiplierTP)
	}
}

func TestLoadConfig_TOML(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "settings.toml", validTOML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if !cfg.IsDryRun() || cfg.UsesTestnet() {
		t.Errorf("Expected dry run on mainnet data, got mode %s", cfg.General.TradingMode)
	}
	if !cfg.RequiresManualSymbol() {
		t.Error("Expected manual symbol when receive_command is false")
	}
	if cfg.General.FixedCost != 0 {
		t.Errorf("Expected negative fixed cost clamped to 0, got %v", cfg.General.FixedCost)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Expected server addr :9090, got %q", cfg.Server.Addr)
	}
}

func TestLoadConfig_MissingSection(t *testing.T) {
	body := strings.Replace(validYAML, "notifications:\n  enabled: false\n  webhook_url: \"\"\n", "", 1)

	_, err := LoadConfig(writeConfig(t, "settings.yaml", body))
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("Expected ErrInvalidConfiguration, got %v", err)
	}
	if !errors.Is(err, domain.ErrMissingSection) {
		t.Errorf("Expected ErrMissingSection, got %v", err)
	}
	var ce *domain.ConfigError
	if !errors.As(err, &ce) || ce.Field != "notifications" {
		t.Errorf("Expected notifications field, got %v", err)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown mode", func(c *Config) { c.General.TradingMode = "yolo" }, "general.trading_mode"},
		{"zero balance", func(c *Config) { c.General.QuoteBalance = 0 }, "general.quote_balance"},
		{"leverage too high", func(c *Config) { c.General.Leverage = 200 }, "general.leverage"},
		{"zero risk", func(c *Config) { c.General.RiskPerTradePct = 0 }, "general.risk_per_trade_pct"},
		{"no positions", func(c *Config) { c.General.MaxConcurrentPositions = 0 }, "general.max_concurrent_positions"},
		{"bad interval", func(c *Config) { c.General.TimeFrame = "7m" }, "general.time_frame"},
		{"short lookback", func(c *Config) { c.General.DataLookback = 1 }, "general.data_lookback"},
		{"atr period", func(c *Config) { c.RiskManagement.ATRPeriod = 0 }, "risk_management.atr_period"},
		{"negative weight", func(c *Config) { c.SignalWeights.Trend = -1 }, "signal_weights"},
		{"bad webhook", func(c *Config) {
			c.Notifications.Enabled = true
			c.Notifications.WebhookURL = "ftp://x"
		}, "notifications.webhook_url"},
		{"bad ws url", func(c *Config) { c.Exchange.WSURL = "https://fstream.binance.com/ws" }, "exchange.ws_url"},
		{"bad rest url", func(c *Config) { c.Exchange.RESTURL = "fapi.binance.com" }, "exchange.rest_url"},
		{"missing credentials", func(c *Config) { c.Credentials.APIKey = "" }, "credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(validYAML), ".yaml")
			if err != nil {
				t.Fatalf("ParseConfig failed: %v", err)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Base config should be valid: %v", err)
			}

			tt.mutate(cfg)
			err = cfg.Validate()
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigError, got %v", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestConfig_DryRunNeedsNoCredentials(t *testing.T) {
	cfg, err := ParseConfig([]byte(validYAML), ".yml")
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	cfg.General.TradingMode = ModeDryRun
	cfg.Credentials.APIKey = ""
	cfg.Credentials.APISecret = ""

	if err := cfg.Validate(); err != nil {
		t.Errorf("Dry run should not need credentials: %v", err)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("TRADER_API_KEY", "env-key")
	t.Setenv("TRADER_API_SECRET", "env-secret")
	t.Setenv("TRADER_TRADING_MODE", "LIVE")
	t.Setenv("TRADER_WEBHOOK_URL", "https://hooks.example.com/env")

	cfg, err := LoadConfig(writeConfig(t, "settings.yaml", validYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Credentials.APIKey != "env-key" || cfg.Credentials.APISecret != "env-secret" {
		t.Errorf("Expected env credentials, got %+v", cfg.Credentials)
	}
	if cfg.General.TradingMode != ModeLive || cfg.UsesTestnet() {
		t.Errorf("Expected live mainnet mode, got %s", cfg.General.TradingMode)
	}
	if cfg.Notifications.WebhookURL != "https://hooks.example.com/env" {
		t.Errorf("Expected env webhook, got %s", cfg.Notifications.WebhookURL)
	}
}
