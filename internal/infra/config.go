package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"futures_trader/internal/domain"
)

// Trading modes
const (
	ModeLive    = "live"
	ModeTestnet = "testnet"
	ModePaper   = "paper"
	ModeDryRun  = "dry_run"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config/settings.yaml"

// Binance kline intervals accepted as general.time_frame.
var validIntervals = []string{
	"1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "8h", "12h",
	"1d", "3d", "1w", "1M",
}

type CredentialsConfig struct {
	APIKey    string `yaml:"api_key" toml:"api_key"`
	APISecret string `yaml:"api_secret" toml:"api_secret"`
}

type GeneralConfig struct {
	BaseAsset              string  `yaml:"base_asset" toml:"base_asset"`
	TradingMode            string  `yaml:"trading_mode" toml:"trading_mode"`
	QuoteBalance           float64 `yaml:"quote_balance" toml:"quote_balance"`
	Leverage               int     `yaml:"leverage" toml:"leverage"`
	RiskPerTradePct        float64 `yaml:"risk_per_trade_pct" toml:"risk_per_trade_pct"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions" toml:"max_concurrent_positions"`
	TimeFrame              string  `yaml:"time_frame" toml:"time_frame"`
	DataLookback           int     `yaml:"data_lookback" toml:"data_lookback"`
	ReceiveCommand         *bool   `yaml:"receive_command" toml:"receive_command"`
	FixedCost              float64 `yaml:"fixed_cost" toml:"fixed_cost"`
}

// FiltersConfig holds market quality thresholds. They are validated but not yet enforced.
type FiltersConfig struct {
	MinVolumeUSDT float64 `yaml:"min_volume_usdt" toml:"min_volume_usdt"`
	MaxSpreadPct  float64 `yaml:"max_spread_pct" toml:"max_spread_pct"`
}

type RiskConfig struct {
	ATRPeriod             int     `yaml:"atr_period" toml:"atr_period"`
	ATRMultiplierSL       float64 `yaml:"atr_multiplier_sl" toml:"atr_multiplier_sl"`
	ATRMultiplierTP       float64 `yaml:"atr_multiplier_tp" toml:"atr_multiplier_tp"`
	TrailingStop          bool    `yaml:"trailing_stop" toml:"trailing_stop"`
	TrailingATRMultiplier float64 `yaml:"trailing_atr_multiplier" toml:"trailing_atr_multiplier"`
}

type WeightsConfig struct {
	Trend     float64 `yaml:"trend_score_weight" toml:"trend_score_weight"`
	Momentum  float64 `yaml:"momentum_score_weight" toml:"momentum_score_weight"`
	OrderFlow float64 `yaml:"orderflow_score_weight" toml:"orderflow_score_weight"`
	Liquidity float64 `yaml:"liquidity_score_weight" toml:"liquidity_score_weight"`
}

type NotificationsConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
	Dir   string `yaml:"dir" toml:"dir"`
}

type StorageConfig struct {
	Path string `yaml:"path" toml:"path"` // empty disables the journal
}

// ExchangeConfig overrides the Binance endpoints picked from the trading mode.
type ExchangeConfig struct {
	RESTURL           string  `yaml:"rest_url" toml:"rest_url"`
	WSURL             string  `yaml:"ws_url" toml:"ws_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" toml:"addr"` // empty disables /metrics and /status
}

// Config holds every setting of the trader.
// Required sections are pointers so a missing one can be told apart from a zero one.
type Config struct {
	Credentials    *CredentialsConfig   `yaml:"credentials" toml:"credentials"`
	General        *GeneralConfig       `yaml:"general" toml:"general"`
	Filters        *FiltersConfig       `yaml:"filters" toml:"filters"`
	RiskManagement *RiskConfig          `yaml:"risk_management" toml:"risk_management"`
	SignalWeights  *WeightsConfig       `yaml:"signal_weights" toml:"signal_weights"`
	Notifications  *NotificationsConfig `yaml:"notifications" toml:"notifications"`

	Exchange ExchangeConfig `yaml:"exchange" toml:"exchange"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Storage  StorageConfig  `yaml:"storage" toml:"storage"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
}

// LoadConfig reads a YAML or TOML file (chosen by extension), applies TRADER_* environment
// overrides and validates the result. A .env file in the working directory is loaded first.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "file", Err: err}
	}
	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes data as TOML when ext is ".toml" and as YAML otherwise,
// then checks the required sections and fills defaults.
func ParseConfig(data []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, &domain.ConfigError{Field: "file", Err: err}
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, &domain.ConfigError{Field: "file", Err: err}
		}
	}

	if err := cfg.requireSections(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) requireSections() error {
	sections := []struct {
		name    string
		missing bool
	}{
		{"credentials", c.Credentials == nil},
		{"general", c.General == nil},
		{"filters", c.Filters == nil},
		{"risk_management", c.RiskManagement == nil},
		{"signal_weights", c.SignalWeights == nil},
		{"notifications", c.Notifications == nil},
	}
	for _, s := range sections {
		if s.missing {
			return &domain.ConfigError{Field: s.name, Err: domain.ErrMissingSection}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.General.ReceiveCommand == nil {
		receive := true
		c.General.ReceiveCommand = &receive
	}
	if c.General.FixedCost < 0 {
		c.General.FixedCost = 0
	}
	c.General.TradingMode = strings.ToLower(strings.TrimSpace(c.General.TradingMode))
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if err := c.requireSections(); err != nil {
		return err
	}
	g := c.General

	switch g.TradingMode {
	case ModeLive, ModeTestnet, ModePaper, ModeDryRun:
	default:
		return invalid("general.trading_mode", "unknown mode %q", g.TradingMode)
	}
	if g.QuoteBalance <= 0 {
		return invalid("general.quote_balance", "must be positive, got %v", g.QuoteBalance)
	}
	if g.Leverage < 1 || g.Leverage > 125 {
		return invalid("general.leverage", "must be between 1 and 125, got %d", g.Leverage)
	}
	if g.RiskPerTradePct <= 0 || g.RiskPerTradePct > 100 {
		return invalid("general.risk_per_trade_pct", "must be in (0, 100], got %v", g.RiskPerTradePct)
	}
	if g.MaxConcurrentPositions < 1 {
		return invalid("general.max_concurrent_positions", "must be at least 1, got %d", g.MaxConcurrentPositions)
	}
	if !slices.Contains(validIntervals, g.TimeFrame) {
		return invalid("general.time_frame", "unsupported interval %q", g.TimeFrame)
	}
	if g.DataLookback < 2 || g.DataLookback > 1500 {
		return invalid("general.data_lookback", "must be between 2 and 1500, got %d", g.DataLookback)
	}

	if c.Filters.MinVolumeUSDT < 0 || c.Filters.MaxSpreadPct < 0 {
		return invalid("filters", "thresholds must not be negative")
	}

	r := c.RiskManagement
	if r.ATRPeriod < 1 {
		return invalid("risk_management.atr_period", "must be at least 1, got %d", r.ATRPeriod)
	}
	if r.ATRMultiplierSL <= 0 || r.ATRMultiplierTP <= 0 {
		return invalid("risk_management", "ATR multipliers must be positive")
	}
	if r.TrailingATRMultiplier < 0 {
		return invalid("risk_management.trailing_atr_multiplier", "must not be negative")
	}

	w := c.SignalWeights
	if w.Trend < 0 || w.Momentum < 0 || w.OrderFlow < 0 || w.Liquidity < 0 {
		return invalid("signal_weights", "weights must not be negative")
	}
	if w.Trend+w.Momentum+w.OrderFlow+w.Liquidity == 0 {
		return invalid("signal_weights", "at least one weight must be positive")
	}

	if n := c.Notifications; n.Enabled {
		if !strings.HasPrefix(n.WebhookURL, "http://") && !strings.HasPrefix(n.WebhookURL, "https://") {
			return invalid("notifications.webhook_url", "invalid webhook URL %q", n.WebhookURL)
		}
	}

	if u := c.Exchange.RESTURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return invalid("exchange.rest_url", "invalid REST URL %q", u)
	}
	if u := c.Exchange.WSURL; u != "" && !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
		return invalid("exchange.ws_url", "invalid WS URL %q", u)
	}
	if c.Exchange.RequestsPerSecond < 0 {
		return invalid("exchange.requests_per_second", "must not be negative")
	}

	if c.UsesExchangeOrders() && (c.Credentials.APIKey == "" || c.Credentials.APISecret == "") {
		return invalid("credentials", "api_key and api_secret are required in %s mode", g.TradingMode)
	}
	return nil
}

func invalid(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// UsesTestnet reports whether the Binance futures testnet is the target. Only live trades on mainnet.
func (c *Config) UsesTestnet() bool {
	return c.General.TradingMode != ModeLive && c.General.TradingMode != ModeDryRun
}

// IsDryRun reports whether orders are simulated in process against live market data.
func (c *Config) IsDryRun() bool {
	return c.General.TradingMode == ModeDryRun
}

// UsesExchangeOrders reports whether orders are sent to an exchange.
func (c *Config) UsesExchangeOrders() bool {
	return !c.IsDryRun()
}

// RequiresManualSymbol reports whether the symbol must be typed in when none is given.
func (c *Config) RequiresManualSymbol() bool {
	return !*c.General.ReceiveCommand
}

// overrideWithEnv replaces secrets and the mode from the environment when set.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("TRADER_API_KEY"); key != "" {
		cfg.Credentials.APIKey = key
	}
	if secret := os.Getenv("TRADER_API_SECRET"); secret != "" {
		cfg.Credentials.APISecret = secret
	}
	if mode := os.Getenv("TRADER_TRADING_MODE"); mode != "" {
		cfg.General.TradingMode = strings.ToLower(strings.TrimSpace(mode))
	}
	if url := os.Getenv("TRADER_WEBHOOK_URL"); url != "" {
		cfg.Notifications.WebhookURL = url
	}
}
