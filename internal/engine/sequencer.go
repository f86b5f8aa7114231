package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"futures_trader/internal/analysis"
	"futures_trader/internal/domain"
	"futures_trader/internal/event"
	"futures_trader/internal/execution"
	"futures_trader/internal/portfolio"
	"futures_trader/internal/strategy"
)

// Components are the stateful parts the sequencer owns while it runs.
type Components struct {
	Series     *domain.CandleSeries
	Flow       *analysis.OrderFlowAnalyzer
	Volatility *analysis.VolatilityAnalyzer
	Signals    *strategy.SignalEngine
	Trader     *execution.TradeEngine
	Portfolio  *portfolio.Manager
}

// Cycle is the outcome of one closed-candle decision.
type Cycle struct {
	Seq        uint64                      `json:"seq"`
	Symbol     string                      `json:"symbol"`
	CandleTime time.Time                   `json:"candle_time"`
	Price      float64                     `json:"price"`
	Technical  strategy.TechnicalSnapshot  `json:"technical"`
	Flow       analysis.OrderFlowSnapshot  `json:"order_flow"`
	Volatility analysis.VolatilitySnapshot `json:"volatility"`
	Decision   strategy.SignalDecision     `json:"decision"`
	Report     execution.Report            `json:"report"`
	Positions  []domain.Position           `json:"positions"`
	Err        error                       `json:"-"`
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithCycleHook registers fn to run after every decision cycle, on the sequencer goroutine.
func WithCycleHook(fn func(context.Context, Cycle)) Option {
	return func(s *Sequencer) { s.onCycle = append(s.onCycle, fn) }
}

// WithEventHook registers fn to run for every accepted event.
func WithEventHook(fn func(event.MarketEvent)) Option {
	return func(s *Sequencer) { s.onEvent = append(s.onEvent, fn) }
}

// WithPriceHook registers fn to run whenever the latest price moves.
func WithPriceHook(fn func(symbol string, price float64)) Option {
	return func(s *Sequencer) { s.onPrice = append(s.onPrice, fn) }
}

// WithMaxCycles stops Run after n decision cycles. Zero means unlimited.
func WithMaxCycles(n int) Option {
	return func(s *Sequencer) { s.maxCycles = n }
}

// WithDumpPath sets where the state is written when the loop panics.
func WithDumpPath(path string) Option {
	return func(s *Sequencer) { s.dumpPath = path }
}

// Sequencer is the single consumer of the market event stream.
// Every analyzer, the candle series and the trade engine are touched only from Run.
type Sequencer struct {
	symbol string
	c      Components
	logger *slog.Logger

	nextSeq      uint64
	price        float64
	cycles       int
	lastDecision *strategy.SignalDecision

	onCycle   []func(context.Context, Cycle)
	onEvent   []func(event.MarketEvent)
	onPrice   []func(string, float64)
	maxCycles int
	dumpPath  string
}

func NewSequencer(symbol string, c Components, opts ...Option) *Sequencer {
	s := &Sequencer{
		symbol:   symbol,
		c:        c,
		logger:   slog.Default().With("module", "sequencer", "symbol", symbol),
		nextSeq:  1,
		dumpPath: "panic_dump.json",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes events until ctx is cancelled, the channel is closed or the cycle limit is hit.
// This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context, events <-chan event.MarketEvent) error {
	s.logger.Info("Sequencer started")

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping", slog.Int("cycles", s.cycles))
			return nil
		case ev, ok := <-events:
			if !ok {
				s.logger.Info("Event stream closed", slog.Int("cycles", s.cycles))
				return nil
			}
			s.processEvent(ctx, ev)
			if s.maxCycles > 0 && s.cycles >= s.maxCycles {
				s.logger.Info("Cycle limit reached", slog.Int("cycles", s.cycles))
				return nil
			}
		}
	}
}

func (s *Sequencer) processEvent(ctx context.Context, ev event.MarketEvent) {
	// Sequence Gap Check (Halt Policy)
	if ev.Seq != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.Seq))
	}
	s.nextSeq++

	for _, fn := range s.onEvent {
		fn(ev)
	}

	switch ev.Kind {
	case event.KindBootstrapKlines:
		s.c.Series.Reset(ev.Klines)
		if last, ok := s.c.Series.Last(); ok {
			s.setPrice(last.Close)
		}
		s.logger.Info("History loaded", slog.Int("candles", s.c.Series.Len()))
	case event.KindTrade:
		if ev.Trade == nil {
			return
		}
		s.setPrice(ev.Trade.Price)
		s.c.Flow.UpdateFromTrade(ev.Trade.Price, ev.Trade.Qty, ev.Trade.IsBuyerMaker)
	case event.KindLiquidation:
		if ev.Liquidation == nil || ev.Liquidation.Qty <= 0 {
			return
		}
		side := ev.Liquidation.Side
		if side == "" {
			side = domain.SideBuy
		}
		s.c.Flow.UpdateFromLiquidation(ev.Liquidation.Qty, side)
	case event.KindKline:
		if ev.Kline == nil {
			return
		}
		s.c.Series.Upsert(ev.Kline.Candle, ev.Kline.Closed)
		s.setPrice(ev.Kline.Candle.Close)
		if ev.Kline.Closed {
			s.decide(ctx, ev)
		}
	default:
		s.logger.Warn("Unknown event kind", slog.String("kind", string(ev.Kind)))
	}
}

func (s *Sequencer) setPrice(p float64) {
	if p <= 0 || p == s.price {
		return
	}
	s.price = p
	for _, fn := range s.onPrice {
		fn(s.symbol, p)
	}
}

// decide runs one full analysis and trading cycle on the closed candle carried by ev.
func (s *Sequencer) decide(ctx context.Context, ev event.MarketEvent) {
	candles := s.c.Series.Candles()
	vol, err := s.c.Volatility.Compute(candles)
	if err != nil {
		s.logger.Warn("Skipping cycle", slog.Any("error", err))
		return
	}
	tech := strategy.Summarize(candles)
	flow := s.c.Flow.Snapshot()
	decision := s.c.Signals.Evaluate(s.symbol, tech, flow, vol)
	s.lastDecision = &decision

	report, err := s.c.Trader.Process(ctx, decision, s.price, vol)
	switch {
	case errors.Is(err, domain.ErrInvalidOrder):
		s.logger.Warn("Order rejected by normalization", slog.Any("error", err))
	case err != nil:
		s.logger.Error("Trade cycle failed", slog.Any("error", err))
	default:
		s.logger.Info("Cycle complete",
			slog.String("direction", string(decision.Direction)),
			slog.Float64("confidence", decision.Confidence),
			slog.Float64("composite", decision.Composite),
			slog.String("regime", string(vol.Regime)),
			slog.String("result", report.Message),
		)
	}

	s.cycles++
	cycle := Cycle{
		Seq:        ev.Seq,
		Symbol:     s.symbol,
		CandleTime: ev.Kline.Candle.CloseTime,
		Price:      s.price,
		Technical:  tech,
		Flow:       flow,
		Volatility: vol,
		Decision:   decision,
		Report:     report,
		Err:        err,
	}
	if s.c.Portfolio != nil {
		cycle.Positions = s.c.Portfolio.Positions()
	}
	for _, fn := range s.onCycle {
		fn(ctx, cycle)
	}
}

// Cycles returns the number of completed decision cycles.
func (s *Sequencer) Cycles() int {
	return s.cycles
}

// DumpState writes the internal state to a file for post-mortem.
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq      uint64                     `json:"next_seq"`
		Symbol       string                     `json:"symbol"`
		Price        float64                    `json:"price"`
		Cycles       int                        `json:"cycles"`
		Candles      []domain.Candle            `json:"candles"`
		OrderFlow    analysis.OrderFlowSnapshot `json:"order_flow"`
		LastDecision *strategy.SignalDecision   `json:"last_decision,omitempty"`
		Positions    []domain.Position          `json:"positions"`
	}{
		NextSeq:      s.nextSeq,
		Symbol:       s.symbol,
		Price:        s.price,
		Cycles:       s.cycles,
		LastDecision: s.lastDecision,
	}
	if s.c.Series != nil {
		data.Candles = s.c.Series.Candles()
	}
	if s.c.Flow != nil {
		data.OrderFlow = s.c.Flow.Snapshot()
	}
	if s.c.Portfolio != nil {
		data.Positions = s.c.Portfolio.Positions()
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
