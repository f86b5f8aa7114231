package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"futures_trader/internal/analysis"
	"futures_trader/internal/domain"
	"futures_trader/internal/engine"
	"futures_trader/internal/event"
	"futures_trader/internal/execution"
	"futures_trader/internal/feed"
	"futures_trader/internal/infra"
	"futures_trader/internal/infra/binance"
	"futures_trader/internal/infra/storage"
	"futures_trader/internal/portfolio"
	"futures_trader/internal/risk"
	"futures_trader/internal/service"
	"futures_trader/internal/strategy"
)

// MsgProtectionFilled is the close reason journaled when a simulated stop loss or
// take profit flattens the position.
const MsgProtectionFilled = "protection order filled"

// Run wires the gateway, the market data stream and the sequencer and blocks until
// ctx is cancelled, the stream ends, or the first cycle completes when once is set.
func (b *Bootstrap) Run(ctx context.Context, once bool) error {
	cfg := b.Config
	g := cfg.General
	testnet := cfg.UsesTestnet()

	gw := binance.NewGateway(binance.Config{
		APIKey:            cfg.Credentials.APIKey,
		APISecret:         cfg.Credentials.APISecret,
		Testnet:           testnet,
		BaseURL:           cfg.Exchange.RESTURL,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
	})
	if cfg.Exchange.RequestsPerSecond == 0 {
		gw.Calibrate(ctx)
	}
	filters, err := gw.SymbolFilters(ctx, b.Symbol)
	if err != nil {
		return err
	}

	pm := portfolio.NewManager(g.MaxConcurrentPositions)
	var (
		orders  execution.OrderGateway = gw
		history feed.HistorySource     = gw
		opts    []engine.Option
	)
	if cfg.IsDryRun() {
		paper := execution.NewPaperGateway(g.QuoteBalance, gw)
		paper.SetFilters(filters)
		orders, history = paper, paper
		// fills must see the price before the cycle that follows it
		opts = append(opts, engine.WithPriceHook(paper.UpdatePrice))
		// runs inside the price hook, so the portfolio is still single-writer
		paper.OnProtectionFill(func(symbol string, price float64) {
			p, ok := pm.Get(symbol)
			pm.Remove(symbol)
			if ok {
				b.recordProtectionFill(ctx, p, price)
			}
		})
	}

	wsURL := cfg.Exchange.WSURL
	if wsURL == "" {
		wsURL = binance.WSBaseURL(testnet)
	}
	stream := feed.NewStream(feed.Config{
		Symbol:       b.Symbol,
		Interval:     g.TimeFrame,
		HistoryLimit: g.DataLookback,
	}, history,
		binance.NewKlineSource(wsURL, g.TimeFrame),
		binance.NewAggTradeSource(wsURL),
		binance.NewLiquidationSource(wsURL),
	)

	trader := execution.NewTradeEngine(orders, pm, risk.NewManager(RiskParams(cfg)), b.Symbol)
	status := service.NewStatusService(b.Symbol, g.TradingMode)

	opts = append(opts,
		engine.WithEventHook(func(ev event.MarketEvent) { b.Metrics.RecordEvent(string(ev.Kind)) }),
		engine.WithPriceHook(status.UpdatePrice),
		engine.WithPriceHook(func(_ string, p float64) { b.Metrics.RecordPrice(p) }),
		engine.WithCycleHook(status.RecordCycle),
		engine.WithCycleHook(b.recordCycle),
	)
	if once {
		opts = append(opts, engine.WithMaxCycles(1))
	}
	seq := engine.NewSequencer(b.Symbol, engine.Components{
		Series:     domain.NewCandleSeries(g.DataLookback),
		Flow:       analysis.NewOrderFlowAnalyzer(analysis.DefaultFlowWindow),
		Volatility: analysis.NewVolatilityAnalyzer(VolatilityConfig(cfg)),
		Signals:    strategy.NewSignalEngine(SignalWeights(cfg)),
		Trader:     trader,
		Portfolio:  pm,
	}, opts...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := stream.Start(ctx); err != nil {
		return err
	}
	defer stream.Stop()
	b.Metrics.RegisterQueueDepth(func() float64 { return float64(stream.Len()) })

	slog.Info("Trader running",
		slog.String("symbol", b.Symbol),
		slog.String("mode", g.TradingMode),
		slog.String("interval", g.TimeFrame),
		slog.Bool("testnet", testnet),
	)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer cancel()
		return seq.Run(gctx, stream.Events())
	})
	if b.Notifier != nil {
		grp.Go(func() error { return b.Notifier.Run(gctx) })
	}
	if cfg.Server.Addr != "" {
		srv := infra.NewServer(cfg.Server.Addr, b.Metrics, func() any { return status.Snapshot() })
		grp.Go(func() error { return srv.Run(gctx) })
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	slog.Info("Trader stopped", slog.Int("cycles", seq.Cycles()))
	return nil
}

// recordCycle feeds one decision cycle to metrics, the journal and the notifier.
func (b *Bootstrap) recordCycle(ctx context.Context, c engine.Cycle) {
	b.Metrics.RecordCycle(string(c.Decision.Direction), c.Decision.Confidence, c.Decision.Composite, len(c.Positions))
	for _, o := range c.Report.Orders {
		b.Metrics.RecordOrder(o.Status)
	}
	if c.Err != nil {
		b.Metrics.RecordError("trade")
	}

	b.journalCycle(ctx, c)
	b.notifyCycle(c)
}

func (b *Bootstrap) journalCycle(ctx context.Context, c engine.Cycle) {
	if b.Journal == nil {
		return
	}
	logger := slog.Default().With("module", "journal")

	rec := storage.DecisionRecord{
		Seq:        c.Seq,
		Symbol:     c.Symbol,
		CandleTime: c.CandleTime,
		Price:      c.Price,
		Direction:  string(c.Decision.Direction),
		Confidence: c.Decision.Confidence,
		Composite:  c.Decision.Composite,
		Regime:     string(c.Volatility.Regime),
		Result:     c.Report.Message,
	}
	if c.Err != nil {
		rec.Error = c.Err.Error()
	}
	if err := b.Journal.RecordDecision(ctx, rec, c.Decision.Reasons); err != nil {
		logger.Error("Failed to record decision", slog.Any("error", err))
		b.Metrics.RecordError("journal")
	}

	if c.Report.Closed {
		b.journalClose(ctx, c.Symbol, c.Price, c.Report.Message)
	}
	if c.Report.Opened && c.Report.Position != nil {
		var entryID int64
		if len(c.Report.Orders) > 0 {
			entryID = c.Report.Orders[0].OrderID
		}
		if err := b.Journal.OpenPosition(ctx, *c.Report.Position, entryID); err != nil {
			logger.Error("Failed to record opened position", slog.Any("error", err))
			b.Metrics.RecordError("journal")
		}
	}
}

func (b *Bootstrap) journalClose(ctx context.Context, symbol string, price float64, reason string) {
	if b.Journal == nil {
		return
	}
	if err := b.Journal.ClosePosition(ctx, symbol, price, reason, time.Now().UTC()); err != nil {
		slog.Default().With("module", "journal").Error("Failed to record closed position", slog.Any("error", err))
		b.Metrics.RecordError("journal")
	}
}

// recordProtectionFill books a position closed by a simulated stop or take profit
// between decision cycles.
func (b *Bootstrap) recordProtectionFill(ctx context.Context, p domain.Position, price float64) {
	slog.Info("Position closed by protection order",
		slog.String("symbol", p.Symbol),
		slog.String("direction", string(p.Direction)),
		slog.Float64("price", price),
	)
	b.Metrics.RecordOrder("FILLED")
	b.journalClose(ctx, p.Symbol, price, MsgProtectionFilled)
	if b.Notifier != nil {
		b.Notifier.Enqueue(infra.Notification{
			Title:   "Position closed",
			Symbol:  p.Symbol,
			Message: fmt.Sprintf("%s %s closed @ %g: %s", p.Direction, p.Symbol, price, MsgProtectionFilled),
		})
	}
}

func (b *Bootstrap) notifyCycle(c engine.Cycle) {
	if b.Notifier == nil || c.Report.Position == nil {
		return
	}
	p := c.Report.Position
	switch {
	case c.Report.Opened:
		b.Notifier.Enqueue(infra.Notification{
			Title:  "Position opened",
			Symbol: c.Symbol,
			Message: fmt.Sprintf("%s %s qty %g @ %g, SL %g, TP %g",
				p.Direction, c.Symbol, p.Quantity, p.EntryPrice, p.StopLoss, p.TakeProfit),
		})
	case c.Report.Closed:
		b.Notifier.Enqueue(infra.Notification{
			Title:   "Position closed",
			Symbol:  c.Symbol,
			Message: fmt.Sprintf("%s %s closed @ %g: %s", p.Direction, c.Symbol, c.Price, c.Report.Message),
		})
	}
}
