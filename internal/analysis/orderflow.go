package analysis

import "strings"

// DefaultFlowWindow is the default capacity of the trade and liquidation buffers.
const DefaultFlowWindow = 120

// OrderFlowSnapshot summarizes aggression and liquidation pressure over the window.
type OrderFlowSnapshot struct {
	BuyVolume           float64 `json:"buy_volume"`
	SellVolume          float64 `json:"sell_volume"`
	Delta               float64 `json:"delta"`
	Imbalance           float64 `json:"imbalance"`
	LiquidationPressure float64 `json:"liquidation_pressure"`
}

type flowTrade struct {
	price float64
	qty   float64
	isBuy bool // buyer was the aggressor
}

type flowLiquidation struct {
	qty    float64
	isLong bool
}

// OrderFlowAnalyzer tracks recent trades and liquidations in two rings.
// Not safe for concurrent use.
type OrderFlowAnalyzer struct {
	trades       *Ring[flowTrade]
	liquidations *Ring[flowLiquidation]
}

// NewOrderFlowAnalyzer creates an analyzer whose buffers hold window entries each.
func NewOrderFlowAnalyzer(window int) *OrderFlowAnalyzer {
	if window <= 0 {
		window = DefaultFlowWindow
	}
	return &OrderFlowAnalyzer{
		trades:       NewRing[flowTrade](window),
		liquidations: NewRing[flowLiquidation](window),
	}
}

// UpdateFromTrade records a trade. The buyer is the aggressor when it was not the maker.
func (a *OrderFlowAnalyzer) UpdateFromTrade(price, qty float64, isBuyerMaker bool) OrderFlowSnapshot {
	a.trades.Push(flowTrade{price: price, qty: qty, isBuy: !isBuyerMaker})
	return a.Snapshot()
}

// UpdateFromLiquidation records a forced order. A BUY side counts as a long liquidation.
func (a *OrderFlowAnalyzer) UpdateFromLiquidation(qty float64, side string) OrderFlowSnapshot {
	a.liquidations.Push(flowLiquidation{qty: qty, isLong: strings.EqualFold(side, "BUY")})
	return a.Snapshot()
}

// Snapshot recomputes the aggregates from the buffers.
func (a *OrderFlowAnalyzer) Snapshot() OrderFlowSnapshot {
	var s OrderFlowSnapshot
	a.trades.Each(func(t flowTrade) {
		if t.isBuy {
			s.BuyVolume += t.qty
		} else {
			s.SellVolume += t.qty
		}
	})
	s.Delta = s.BuyVolume - s.SellVolume
	if total := s.BuyVolume + s.SellVolume; total != 0 {
		s.Imbalance = s.Delta / total
	}

	var longLiq, shortLiq float64
	a.liquidations.Each(func(l flowLiquidation) {
		if l.isLong {
			longLiq += l.qty
		} else {
			shortLiq += l.qty
		}
	})
	if total := longLiq + shortLiq; total != 0 {
		s.LiquidationPressure = (shortLiq - longLiq) / total
	}
	return s
}

// TradeCount returns the number of buffered trades.
func (a *OrderFlowAnalyzer) TradeCount() int { return a.trades.Len() }
