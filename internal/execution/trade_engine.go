package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"futures_trader/internal/analysis"
	"futures_trader/internal/domain"
	"futures_trader/internal/portfolio"
	"futures_trader/internal/risk"
	"futures_trader/internal/strategy"
)

// OrderGateway is the part of the exchange the trade engine talks to.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
	DualPositionMode(ctx context.Context) bool
}

// Report describes what one decision cycle did.
type Report struct {
	Opened   bool                 `json:"opened"`
	Closed   bool                 `json:"closed"`
	Adjusted bool                 `json:"adjusted"`
	Message  string               `json:"message"`
	Position *domain.Position     `json:"position,omitempty"` // opened or closed position
	Orders   []domain.OrderResult `json:"-"`
}

const (
	MsgNothingToDo   = "nothing to do, neutral signal"
	MsgClosedNeutral = "closing position on neutral signal"
	MsgReversal      = "position reversal"
	MsgHolding       = "holding current position"
	MsgLimitReached  = "position limit reached"
	MsgInvalidSize   = "invalid position size"
	MsgOpened        = "position opened"
)

// TradeEngine drives the position lifecycle of one symbol. Not safe for concurrent use.
type TradeEngine struct {
	gw        OrderGateway
	portfolio *portfolio.Manager
	risk      *risk.Manager
	symbol    string
	logger    *slog.Logger

	// engine-scoped lazy cells
	leverageSynced bool
	dualMode       *bool

	newID func() string
	now   func() time.Time
}

func NewTradeEngine(gw OrderGateway, pm *portfolio.Manager, rm *risk.Manager, symbol string) *TradeEngine {
	return &TradeEngine{
		gw:        gw,
		portfolio: pm,
		risk:      rm,
		symbol:    symbol,
		logger:    slog.Default().With("module", "trade_engine", "symbol", symbol),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Symbol returns the traded symbol.
func (e *TradeEngine) Symbol() string { return e.symbol }

// Process applies one decision at the current price.
// Errors wrap domain.ErrInvalidOrder or domain.ErrExchangeRejected.
func (e *TradeEngine) Process(ctx context.Context, decision strategy.SignalDecision, price float64, vol analysis.VolatilitySnapshot) (Report, error) {
	if err := e.ensureLeverage(ctx); err != nil {
		return Report{}, err
	}

	position, open := e.portfolio.Get(e.symbol)

	if decision.Direction == domain.DirectionFlat {
		if !open {
			return Report{Message: MsgNothingToDo}, nil
		}
		res, err := e.closePosition(ctx, position)
		if err != nil {
			return Report{}, err
		}
		e.portfolio.Remove(e.symbol)
		return Report{Closed: true, Message: MsgClosedNeutral, Position: &position, Orders: []domain.OrderResult{res}}, nil
	}

	if open {
		if position.Direction == decision.Direction {
			return Report{Message: MsgHolding}, nil
		}
		res, err := e.closePosition(ctx, position)
		if err != nil {
			return Report{}, err
		}
		e.portfolio.Remove(e.symbol)
		return Report{Closed: true, Message: MsgReversal, Position: &position, Orders: []domain.OrderResult{res}}, nil
	}

	if !e.portfolio.CanOpen(e.symbol) {
		return Report{Message: MsgLimitReached}, nil
	}

	sizing := e.risk.SizePosition(price, vol, decision.Direction)
	if sizing.IsEmpty() {
		return Report{Message: MsgInvalidSize}, nil
	}

	return e.openPosition(ctx, decision.Direction, price, sizing)
}

func (e *TradeEngine) ensureLeverage(ctx context.Context) error {
	if e.leverageSynced {
		return nil
	}
	if err := e.gw.ChangeLeverage(ctx, e.symbol, e.risk.Leverage()); err != nil {
		return fmt.Errorf("sync leverage: %w", err)
	}
	e.leverageSynced = true
	e.logger.Info("Leverage synced", slog.Int("leverage", e.risk.Leverage()))
	return nil
}

func (e *TradeEngine) isDualMode(ctx context.Context) bool {
	if e.dualMode == nil {
		dual := e.gw.DualPositionMode(ctx)
		e.dualMode = &dual
		e.logger.Info("Position mode resolved", slog.Bool("dual_side", dual))
	}
	return *e.dualMode
}

// positionSide returns the dual-mode tag for direction, or "" in one-way mode.
func (e *TradeEngine) positionSide(ctx context.Context, d domain.Direction) string {
	if !d.IsTradable() || !e.isDualMode(ctx) {
		return ""
	}
	return d.PositionSide()
}

func (e *TradeEngine) openPosition(ctx context.Context, d domain.Direction, price float64, sizing risk.PositionSizing) (Report, error) {
	posSide := e.positionSide(ctx, d)
	entry, err := e.gw.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:        e.symbol,
		Side:          d.EntrySide(),
		Type:          domain.OrderTypeMarket,
		Quantity:      sizing.Quantity,
		PositionSide:  posSide,
		ClientOrderID: e.newID(),
	})
	if err != nil {
		return Report{}, fmt.Errorf("open %s: %w", d, err)
	}
	if q := entry.Quantity.InexactFloat64(); q > 0 {
		sizing.Quantity = q
	}
	orders := []domain.OrderResult{entry}

	exit := domain.OppositeSide(d.EntrySide())
	stopLoss, takeProfit := sizing.StopLoss, sizing.TakeProfit

	sl, err := e.gw.PlaceOrder(ctx, e.protectionOrder(exit, domain.OrderTypeStopMarket, stopLoss, sizing.Quantity, posSide))
	if err != nil {
		return Report{Orders: orders}, fmt.Errorf("place stop loss after entry %d: %w", entry.OrderID, err)
	}
	orders = append(orders, sl)
	if v := sl.StopPrice.InexactFloat64(); v > 0 {
		stopLoss = v
	}

	tp, err := e.gw.PlaceOrder(ctx, e.protectionOrder(exit, domain.OrderTypeTakeProfitMarket, takeProfit, sizing.Quantity, posSide))
	if err != nil {
		return Report{Orders: orders}, fmt.Errorf("place take profit after entry %d: %w", entry.OrderID, err)
	}
	orders = append(orders, tp)
	if v := tp.StopPrice.InexactFloat64(); v > 0 {
		takeProfit = v
	}

	p := domain.Position{
		Symbol:         e.symbol,
		Direction:      d,
		EntryPrice:     price,
		Quantity:       sizing.Quantity,
		StopLoss:       stopLoss,
		TakeProfit:     takeProfit,
		TrailingActive: sizing.TrailingActive,
		Notional:       sizing.Notional,
		Cost:           sizing.Cost,
		OpenedAt:       e.now(),
	}
	e.portfolio.Add(p)
	return Report{Opened: true, Message: MsgOpened, Position: &p, Orders: orders}, nil
}

func (e *TradeEngine) protectionOrder(side, orderType string, stop, qty float64, posSide string) domain.OrderRequest {
	return domain.OrderRequest{
		Symbol:        e.symbol,
		Side:          side,
		Type:          orderType,
		Quantity:      qty,
		StopPrice:     &stop,
		ReduceOnly:    posSide == "",
		PositionSide:  posSide,
		ClientOrderID: e.newID(),
	}
}

func (e *TradeEngine) closePosition(ctx context.Context, p domain.Position) (domain.OrderResult, error) {
	posSide := e.positionSide(ctx, p.Direction)
	res, err := e.gw.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:        e.symbol,
		Side:          domain.OppositeSide(p.Direction.EntrySide()),
		Type:          domain.OrderTypeMarket,
		Quantity:      p.Quantity,
		ReduceOnly:    posSide == "",
		PositionSide:  posSide,
		ClientOrderID: e.newID(),
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("close %s: %w", p.Direction, err)
	}
	return res, nil
}
