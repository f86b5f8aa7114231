package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"futures_trader/internal/domain"
)

// HistoryFetcher supplies candles to the paper gateway.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
}

// Fill is a simulated execution.
type Fill struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Qty           decimal.Decimal
	Price         decimal.Decimal
	RealizedPnL   decimal.Decimal
	Time          time.Time
}

type paperPosition struct {
	qty        decimal.Decimal // signed, positive is long
	entryPrice decimal.Decimal
	margin     decimal.Decimal // reserved out of the balance while open
}

// PaperGateway fills orders in process against the last observed price.
// Protection orders rest until UpdatePrice crosses their stop.
// Opening fills reserve margin out of the balance; reducing fills release it with the realized PnL.
type PaperGateway struct {
	mu        sync.Mutex
	history   HistoryFetcher
	filters   map[string]domain.SymbolFilters
	prices    map[string]decimal.Decimal
	positions map[string]*paperPosition
	resting   []domain.NormalizedOrder
	restingID []int64
	balance   decimal.Decimal
	leverage  map[string]int
	fills     []Fill
	nextID    int64
	logger    *slog.Logger

	onProtectionFill func(symbol string, price float64)
}

// NewPaperGateway creates a simulator with a quote balance. history may be nil.
func NewPaperGateway(balance float64, history HistoryFetcher) *PaperGateway {
	return &PaperGateway{
		history:   history,
		filters:   make(map[string]domain.SymbolFilters),
		prices:    make(map[string]decimal.Decimal),
		positions: make(map[string]*paperPosition),
		balance:   decimal.NewFromFloat(balance),
		leverage:  make(map[string]int),
		nextID:    1,
		logger:    slog.Default().With("module", "paper"),
	}
}

// SetFilters installs the trading filters used to normalize orders on f.Symbol.
func (p *PaperGateway) SetFilters(f domain.SymbolFilters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters[f.Symbol] = f
}

// OnProtectionFill registers fn to run when a triggered protection order flattens a position.
// fn runs on the UpdatePrice caller's goroutine after the simulator lock is released.
func (p *PaperGateway) OnProtectionFill(fn func(symbol string, price float64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onProtectionFill = fn
}

func (p *PaperGateway) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if p.history == nil {
		return nil, fmt.Errorf("%w: paper gateway has no history source", domain.ErrDataUnavailable)
	}
	return p.history.FetchHistory(ctx, symbol, interval, limit)
}

func (p *PaperGateway) ChangeLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("%w: leverage %d", domain.ErrExchangeRejected, leverage)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[symbol] = leverage
	return nil
}

// DualPositionMode is always false: the simulator nets positions per symbol.
func (p *PaperGateway) DualPositionMode(context.Context) bool { return false }

func (p *PaperGateway) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := p.filters[req.Symbol].Normalize(req)
	if err != nil {
		return domain.OrderResult{}, err
	}
	id := p.nextID
	p.nextID++

	res := domain.OrderResult{OrderID: id, ClientOrderID: req.ClientOrderID, Quantity: n.Quantity}
	if n.Price != nil {
		res.Price = *n.Price
	}
	if n.StopPrice != nil {
		res.StopPrice = *n.StopPrice
	}

	switch req.Type {
	case domain.OrderTypeMarket:
		price, ok := p.prices[req.Symbol]
		if !ok {
			return domain.OrderResult{}, fmt.Errorf("%w: no price for %s", domain.ErrExchangeRejected, req.Symbol)
		}
		if err := p.fill(id, n, price); err != nil {
			return domain.OrderResult{}, err
		}
		res.Status = "FILLED"
		res.Price = price
	case domain.OrderTypeStopMarket, domain.OrderTypeTakeProfitMarket:
		if n.StopPrice == nil {
			return domain.OrderResult{}, fmt.Errorf("%w: %s without stop price", domain.ErrInvalidOrder, req.Type)
		}
		p.resting = append(p.resting, n)
		p.restingID = append(p.restingID, id)
		res.Status = "NEW"
	default:
		return domain.OrderResult{}, fmt.Errorf("%w: unsupported order type %s", domain.ErrExchangeRejected, req.Type)
	}
	return res, nil
}

// fill applies a market execution. Caller holds mu.
func (p *PaperGateway) fill(id int64, n domain.NormalizedOrder, price decimal.Decimal) error {
	req := n.Request
	pos := p.positions[req.Symbol]
	if pos == nil {
		pos = &paperPosition{}
		p.positions[req.Symbol] = pos
	}

	signed := n.Quantity
	if req.Side == domain.SideSell {
		signed = signed.Neg()
	}
	reducing := !pos.qty.IsZero() && pos.qty.Sign() != signed.Sign()
	if req.ReduceOnly && !reducing {
		return fmt.Errorf("%w: reduce-only order would increase position", domain.ErrExchangeRejected)
	}
	if req.ReduceOnly && signed.Abs().GreaterThan(pos.qty.Abs()) {
		signed = pos.qty.Neg()
	}

	lev := p.leverage[req.Symbol]
	if lev < 1 {
		lev = 1
	}

	// closed offsets the current position, opened is new exposure (an add or the excess of a flip)
	closed := decimal.Zero
	if reducing {
		closed = decimal.Min(signed.Abs(), pos.qty.Abs())
	}
	opened := signed.Abs().Sub(closed)

	realized, released := decimal.Zero, decimal.Zero
	if closed.IsPositive() {
		diff := price.Sub(pos.entryPrice)
		if pos.qty.Sign() < 0 {
			diff = diff.Neg()
		}
		realized = diff.Mul(closed)
		released = pos.margin.Mul(closed).Div(pos.qty.Abs())
	}
	margin := opened.Mul(price).Div(decimal.NewFromInt(int64(lev)))
	if available := p.balance.Add(released).Add(realized); margin.GreaterThan(available) {
		return fmt.Errorf("%w: insufficient balance: need %s, have %s",
			domain.ErrExchangeRejected, domain.FormatDecimal(margin), domain.FormatDecimal(available))
	}
	p.balance = p.balance.Add(released).Add(realized).Sub(margin)
	pos.margin = pos.margin.Sub(released).Add(margin)

	next := pos.qty.Add(signed)
	switch {
	case next.IsZero():
		pos.entryPrice = decimal.Zero
		p.balance = p.balance.Add(pos.margin) // rounding leftover
		pos.margin = decimal.Zero
	case pos.qty.IsZero() || next.Sign() != pos.qty.Sign():
		pos.entryPrice = price
	case !reducing:
		// weighted average entry when adding
		pos.entryPrice = pos.entryPrice.Mul(pos.qty.Abs()).Add(price.Mul(signed.Abs())).Div(next.Abs())
	}
	pos.qty = next

	p.fills = append(p.fills, Fill{
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Qty:           signed.Abs(),
		Price:         price,
		RealizedPnL:   realized,
		Time:          time.Now(),
	})

	if pos.qty.IsZero() {
		p.cancelResting(req.Symbol)
	}
	return nil
}

func (p *PaperGateway) cancelResting(symbol string) {
	kept, keptID := p.resting[:0], p.restingID[:0]
	for i, o := range p.resting {
		if o.Request.Symbol != symbol {
			kept = append(kept, o)
			keptID = append(keptID, p.restingID[i])
		}
	}
	p.resting, p.restingID = kept, keptID
}

// UpdatePrice records the last price of symbol and triggers crossed protection orders.
// When a triggered order leaves symbol flat, the OnProtectionFill callback runs.
func (p *PaperGateway) UpdatePrice(symbol string, price float64) {
	flattened, fn := p.applyPrice(symbol, price)
	if flattened && fn != nil {
		fn(symbol, price)
	}
}

func (p *PaperGateway) applyPrice(symbol string, price float64) (bool, func(string, float64)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := decimal.NewFromFloat(price)
	p.prices[symbol] = last

	flattened := false
	for i := 0; i < len(p.resting); i++ {
		o := p.resting[i]
		if o.Request.Symbol != symbol || !triggered(o, last) {
			continue
		}
		id := p.restingID[i]
		p.resting = append(p.resting[:i], p.resting[i+1:]...)
		p.restingID = append(p.restingID[:i], p.restingID[i+1:]...)
		if err := p.fill(id, o, last); err != nil {
			p.logger.Warn("Triggered order rejected", slog.Int64("order_id", id), slog.Any("error", err))
		} else {
			p.logger.Info("Protection order triggered",
				slog.Int64("order_id", id),
				slog.String("type", o.Request.Type),
				slog.String("price", domain.FormatDecimal(last)),
			)
			if pos := p.positions[symbol]; pos == nil || pos.qty.IsZero() {
				flattened = true
			}
		}
		// fill may have cancelled siblings
		i = -1
	}
	return flattened, p.onProtectionFill
}

func triggered(o domain.NormalizedOrder, price decimal.Decimal) bool {
	stop := *o.StopPrice
	sell := o.Request.Side == domain.SideSell
	switch o.Request.Type {
	case domain.OrderTypeStopMarket:
		if sell {
			return price.LessThanOrEqual(stop)
		}
		return price.GreaterThanOrEqual(stop)
	case domain.OrderTypeTakeProfitMarket:
		if sell {
			return price.GreaterThanOrEqual(stop)
		}
		return price.LessThanOrEqual(stop)
	}
	return false
}

// Balance returns the free quote balance: realized PnL included, margin of open positions excluded.
func (p *PaperGateway) Balance() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance
}

// Margin returns the margin reserved by the open position on symbol.
func (p *PaperGateway) Margin(symbol string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[symbol]; ok {
		return pos.margin
	}
	return decimal.Zero
}

// NetPosition returns the signed simulated position on symbol.
func (p *PaperGateway) NetPosition(symbol string) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[symbol]; ok {
		return pos.qty
	}
	return decimal.Zero
}

// Fills returns a copy of all simulated executions.
func (p *PaperGateway) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}

// RestingOrders returns the number of untriggered protection orders.
func (p *PaperGateway) RestingOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resting)
}
