package risk

import (
	"futures_trader/internal/analysis"
	"futures_trader/internal/domain"
)

// Params are the static account parameters used for sizing.
type Params struct {
	Balance               float64
	Leverage              int
	RiskPerc              float64 // fraction, or a percentage when greater than 1
	FixedCost             float64 // margin per trade; 0 sizes by risk instead
	ATRMultiplierSL       float64
	ATRMultiplierTP       float64
	TrailingStop          bool
	TrailingATRMultiplier float64
}

// DefaultParams returns the stock multipliers for an account.
func DefaultParams(balance float64, leverage int, riskPerc float64) Params {
	return Params{
		Balance:               balance,
		Leverage:              leverage,
		RiskPerc:              riskPerc,
		ATRMultiplierSL:       2.5,
		ATRMultiplierTP:       4.0,
		TrailingStop:          true,
		TrailingATRMultiplier: 1.5,
	}
}

// PositionSizing is the outcome of sizing one entry. A zero quantity means do not trade.
type PositionSizing struct {
	Quantity       float64 `json:"quantity"`
	Leverage       int     `json:"leverage"`
	Notional       float64 `json:"notional"`
	Cost           float64 `json:"cost"`
	StopLoss       float64 `json:"stop_loss"`
	TakeProfit     float64 `json:"take_profit"`
	TrailingActive bool    `json:"trailing_active"`
}

// IsEmpty reports whether the sizing carries no trade.
func (s PositionSizing) IsEmpty() bool {
	return s.Quantity <= 0
}

// Manager sizes positions from volatility. It is a pure calculator.
type Manager struct {
	p Params
}

func NewManager(p Params) *Manager {
	if p.RiskPerc > 1 {
		p.RiskPerc /= 100
	}
	if p.FixedCost < 0 {
		p.FixedCost = 0
	}
	return &Manager{p: p}
}

// Leverage returns the configured account leverage.
func (m *Manager) Leverage() int { return m.p.Leverage }

// Params returns the normalized parameters.
func (m *Manager) Params() Params { return m.p }

func (m *Manager) empty() PositionSizing {
	return PositionSizing{Leverage: m.p.Leverage}
}

// SizePosition sizes an entry at price in direction. Stops sit ATR multiples away from entry.
func (m *Manager) SizePosition(price float64, vol analysis.VolatilitySnapshot, direction domain.Direction) PositionSizing {
	if !direction.IsTradable() || price <= 0 {
		return m.empty()
	}
	stopDistance := vol.ATR * m.p.ATRMultiplierSL
	if stopDistance <= 0 {
		return m.empty()
	}

	lev := float64(m.p.Leverage)
	var qty, notional, cost float64
	if m.p.FixedCost > 0 {
		cost = m.p.FixedCost
		notional = cost * lev
		qty = notional / price
	} else {
		qty = m.p.Balance * m.p.RiskPerc * lev / stopDistance
		notional = qty * price
		if lev != 0 {
			cost = notional / lev
		}
	}
	if qty <= 0 || notional <= 0 {
		return m.empty()
	}

	s := PositionSizing{
		Quantity:       qty,
		Leverage:       m.p.Leverage,
		Notional:       notional,
		Cost:           max(cost, 0),
		TrailingActive: m.p.TrailingStop && m.p.TrailingATRMultiplier > 0,
	}
	tpDistance := vol.ATR * m.p.ATRMultiplierTP
	if direction == domain.DirectionLong {
		s.StopLoss, s.TakeProfit = price-stopDistance, price+tpDistance
	} else {
		s.StopLoss, s.TakeProfit = price+stopDistance, price-tpDistance
	}
	return s
}
