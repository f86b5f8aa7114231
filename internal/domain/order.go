package domain

import "github.com/shopspring/decimal"

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket           = "MARKET"
	OrderTypeLimit            = "LIMIT"
	OrderTypeStopMarket       = "STOP_MARKET"
	OrderTypeTakeProfitMarket = "TAKE_PROFIT_MARKET"

	PositionSideLong  = "LONG"
	PositionSideShort = "SHORT"
)

// OrderRequest is an order as the trade engine wants it, before exchange precision rules.
// Optional fields are nil or empty when absent.
type OrderRequest struct {
	Symbol        string
	Side          string // "BUY", "SELL"
	Quantity      float64
	Type          string
	Price         *float64
	StopPrice     *float64
	ReduceOnly    bool
	PositionSide  string // "LONG", "SHORT" in dual position mode, otherwise empty
	TimeInForce   string
	ClientOrderID string
}

// IsMarketLike reports whether the order executes at market once triggered.
func (r OrderRequest) IsMarketLike() bool {
	switch r.Type {
	case OrderTypeMarket, OrderTypeStopMarket, OrderTypeTakeProfitMarket:
		return true
	}
	return false
}

// OrderResult is the exchange acknowledgement of a placed order.
// Numeric fields hold the canonical values the exchange accepted.
type OrderResult struct {
	OrderID       int64
	ClientOrderID string
	Status        string
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	StopPrice     decimal.Decimal
}

// OppositeSide returns the side that closes a position opened with side.
func OppositeSide(side string) string {
	if side == SideBuy {
		return SideSell
	}
	return SideBuy
}
