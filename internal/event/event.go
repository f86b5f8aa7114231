package event

import (
	"time"

	"futures_trader/internal/domain"
)

// Kind tags the payload carried by a MarketEvent.
type Kind string

const (
	KindBootstrapKlines Kind = "bootstrap_klines"
	KindKline           Kind = "kline"
	KindTrade           Kind = "trade"
	KindLiquidation     Kind = "liquidation"
)

// MarketEvent is one item of the market data stream.
// Exactly one payload field is set, matching Kind.
type MarketEvent struct {
	Kind       Kind
	Symbol     string
	Seq        uint64 // assigned by the stream on enqueue, starting at 1
	ReceivedAt time.Time

	Klines      []domain.Candle
	Kline       *KlineUpdate
	Trade       *Trade
	Liquidation *Liquidation
}

// KlineUpdate is an in-progress or closed candle.
type KlineUpdate struct {
	Candle domain.Candle
	Closed bool
}

// Trade is an aggregated public trade.
type Trade struct {
	Price        float64
	Qty          float64
	IsBuyerMaker bool
	Time         time.Time
}

// Liquidation is a forced order. Side is reported as the exchange sends it.
type Liquidation struct {
	Side  string
	Qty   float64
	Price float64
}

// NewBootstrap wraps the startup history.
func NewBootstrap(symbol string, klines []domain.Candle) MarketEvent {
	return MarketEvent{Kind: KindBootstrapKlines, Symbol: symbol, ReceivedAt: time.Now(), Klines: klines}
}

// NewKline wraps a candle update.
func NewKline(symbol string, c domain.Candle, closed bool) MarketEvent {
	return MarketEvent{Kind: KindKline, Symbol: symbol, ReceivedAt: time.Now(), Kline: &KlineUpdate{Candle: c, Closed: closed}}
}

// NewTrade wraps a trade.
func NewTrade(symbol string, t Trade) MarketEvent {
	return MarketEvent{Kind: KindTrade, Symbol: symbol, ReceivedAt: time.Now(), Trade: &t}
}

// NewLiquidation wraps a forced order.
func NewLiquidation(symbol string, l Liquidation) MarketEvent {
	return MarketEvent{Kind: KindLiquidation, Symbol: symbol, ReceivedAt: time.Now(), Liquidation: &l}
}
