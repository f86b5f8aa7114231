package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"futures_trader/internal/analysis"
	"futures_trader/internal/infra"
	"futures_trader/internal/infra/storage"
	"futures_trader/internal/risk"
	"futures_trader/internal/strategy"
)

// ErrNoSymbol is returned when no instrument was given and prompting is disabled.
var ErrNoSymbol = errors.New("no symbol given")

// Options are the command line inputs.
type Options struct {
	Symbol     string
	ConfigPath string
	LogLevel   string // overrides logging.level when set
	Once       bool

	Stdin  io.Reader
	Stdout io.Writer
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Symbol   string
	Journal  *storage.Journal // nil when storage.path is empty
	Metrics  *infra.Metrics
	Notifier *infra.WebhookNotifier // nil when notifications are disabled
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the configuration, installs the logger, resolves the symbol
// and opens the journal, metrics and notifier.
func (b *Bootstrap) Initialize(opts Options) error {
	cfg, err := infra.LoadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	slog.SetDefault(infra.NewLogger(level, cfg.Logging.Dir))
	slog.Info("Bootstrapping futures trader", slog.String("mode", cfg.General.TradingMode))

	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	symbol, err := ResolveSymbol(opts.Symbol, cfg, opts.Stdin, opts.Stdout)
	if err != nil {
		return err
	}
	b.Symbol = symbol

	if cfg.Storage.Path != "" {
		j, err := storage.OpenJournal(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.Journal = j
		slog.Info("Journal opened", slog.String("path", cfg.Storage.Path))
	}

	b.Metrics = infra.NewMetrics(symbol)

	if cfg.Notifications.Enabled {
		b.Notifier = infra.NewWebhookNotifier(cfg.Notifications.WebhookURL)
	}
	return nil
}

// Close releases what Initialize opened.
func (b *Bootstrap) Close() error {
	if b.Journal == nil {
		return nil
	}
	return b.Journal.Close()
}

// ResolveSymbol returns the upper-cased instrument from the command line, or
// prompts for one on in when receive_command is false.
func ResolveSymbol(cli string, cfg *infra.Config, in io.Reader, out io.Writer) (string, error) {
	if s := strings.ToUpper(strings.TrimSpace(cli)); s != "" {
		return s, nil
	}
	if !cfg.RequiresManualSymbol() {
		return "", fmt.Errorf("%w: pass it as an argument or set general.receive_command to false", ErrNoSymbol)
	}

	fmt.Fprint(out, "Symbol (e.g. BTCUSDT): ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read symbol: %w", err)
	}
	s := strings.ToUpper(strings.TrimSpace(line))
	if s == "" {
		return "", ErrNoSymbol
	}
	return s, nil
}

// RiskParams maps the general and risk_management sections onto sizing parameters.
func RiskParams(cfg *infra.Config) risk.Params {
	g, r := cfg.General, cfg.RiskManagement
	p := risk.DefaultParams(g.QuoteBalance, g.Leverage, g.RiskPerTradePct)
	p.FixedCost = g.FixedCost
	if r.ATRMultiplierSL > 0 {
		p.ATRMultiplierSL = r.ATRMultiplierSL
	}
	if r.ATRMultiplierTP > 0 {
		p.ATRMultiplierTP = r.ATRMultiplierTP
	}
	p.TrailingStop = r.TrailingStop
	if r.TrailingATRMultiplier > 0 {
		p.TrailingATRMultiplier = r.TrailingATRMultiplier
	}
	return p
}

// SignalWeights maps the signal_weights section.
func SignalWeights(cfg *infra.Config) strategy.Weights {
	w := cfg.SignalWeights
	return strategy.Weights{
		Trend:     w.Trend,
		Momentum:  w.Momentum,
		OrderFlow: w.OrderFlow,
		Liquidity: w.Liquidity,
	}
}

// VolatilityConfig maps risk_management.atr_period.
func VolatilityConfig(cfg *infra.Config) analysis.VolatilityConfig {
	return analysis.DefaultVolatilityConfig(cfg.RiskManagement.ATRPeriod)
}
