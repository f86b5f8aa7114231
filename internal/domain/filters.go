package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LotFilter bounds order quantity.
type LotFilter struct {
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
}

// PriceFilter bounds order price. Zero bounds are not enforced.
type PriceFilter struct {
	TickSize decimal.Decimal
	MinPrice decimal.Decimal
	MaxPrice decimal.Decimal
}

// SymbolFilters holds the trading filters of one instrument.
// Nil filters are absent on the exchange.
type SymbolFilters struct {
	Symbol    string
	Lot       *LotFilter // LOT_SIZE
	MarketLot *LotFilter // MARKET_LOT_SIZE
	Price     *PriceFilter
}

// NormalizedOrder is an order rounded to exchange precision.
type NormalizedOrder struct {
	Request   OrderRequest
	Quantity  decimal.Decimal
	Price     *decimal.Decimal
	StopPrice *decimal.Decimal
}

// lotFor picks MARKET_LOT_SIZE for market-like orders and LOT_SIZE otherwise,
// falling back to whichever one exists.
func (f SymbolFilters) lotFor(req OrderRequest) *LotFilter {
	if req.IsMarketLike() {
		if f.MarketLot != nil {
			return f.MarketLot
		}
		return f.Lot
	}
	if f.Lot != nil {
		return f.Lot
	}
	return f.MarketLot
}

// Normalize rounds quantity down to the lot step and prices down to the tick,
// clamping prices into the allowed band. It returns ErrInvalidOrder when the
// quantity ends up non-positive or below the minimum.
func (f SymbolFilters) Normalize(req OrderRequest) (NormalizedOrder, error) {
	out := NormalizedOrder{Request: req}

	qty := decimal.NewFromFloat(req.Quantity)
	if lot := f.lotFor(req); lot != nil {
		qty = RoundToStep(qty, lot.StepSize)
		if qty.Sign() > 0 && lot.MinQty.Sign() > 0 && qty.LessThan(lot.MinQty) {
			return out, fmt.Errorf("%w: quantity %s below minimum %s for %s",
				ErrInvalidOrder, FormatDecimal(qty), FormatDecimal(lot.MinQty), req.Symbol)
		}
	}
	if qty.Sign() <= 0 {
		return out, fmt.Errorf("%w: quantity %v rounds to %s", ErrInvalidOrder, req.Quantity, FormatDecimal(qty))
	}
	out.Quantity = qty
	out.Request.Quantity = qty.InexactFloat64()

	if req.Price != nil {
		p := f.normalizePrice(decimal.NewFromFloat(*req.Price))
		out.Price = &p
		v := p.InexactFloat64()
		out.Request.Price = &v
	}
	if req.StopPrice != nil {
		p := f.normalizePrice(decimal.NewFromFloat(*req.StopPrice))
		out.StopPrice = &p
		v := p.InexactFloat64()
		out.Request.StopPrice = &v
	}
	return out, nil
}

func (f SymbolFilters) normalizePrice(p decimal.Decimal) decimal.Decimal {
	if f.Price == nil || f.Price.TickSize.Sign() <= 0 {
		return p
	}
	p = RoundToStep(p, f.Price.TickSize)
	if f.Price.MinPrice.Sign() > 0 && p.LessThan(f.Price.MinPrice) {
		p = f.Price.MinPrice
	}
	if f.Price.MaxPrice.Sign() > 0 && p.GreaterThan(f.Price.MaxPrice) {
		p = f.Price.MaxPrice
	}
	return p
}

// RoundToStep rounds v down to a multiple of step. A non-positive step leaves v unchanged.
func RoundToStep(v, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// FormatDecimal renders d in plain notation without trailing zeros.
func FormatDecimal(d decimal.Decimal) string {
	return d.String()
}
