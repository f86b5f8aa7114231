package domain

import "time"

// Direction is a trading direction. Flat means no exposure.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// IsTradable reports whether d opens exposure.
func (d Direction) IsTradable() bool {
	return d == DirectionLong || d == DirectionShort
}

// EntrySide returns the order side that opens a position in direction d.
func (d Direction) EntrySide() string {
	if d == DirectionShort {
		return SideSell
	}
	return SideBuy
}

// PositionSide returns the dual-mode position side tag for d.
func (d Direction) PositionSide() string {
	if d == DirectionShort {
		return PositionSideShort
	}
	return PositionSideLong
}

// Position is an open exposure on one instrument.
type Position struct {
	Symbol         string    `json:"symbol"`
	Direction      Direction `json:"direction"`
	EntryPrice     float64   `json:"entry_price"`
	Quantity       float64   `json:"quantity"`
	StopLoss       float64   `json:"stop_loss"`
	TakeProfit     float64   `json:"take_profit"`
	TrailingActive bool      `json:"trailing_active"`
	Notional       float64   `json:"notional"`
	Cost           float64   `json:"cost"`
	OpenedAt       time.Time `json:"opened_at"`
}
