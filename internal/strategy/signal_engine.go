package strategy

import (
	"math"

	"futures_trader/internal/analysis"
	"futures_trader/internal/domain"
)

// Weights scale the components of the composite signal.
type Weights struct {
	Trend     float64 `json:"trend_score_weight"`
	Momentum  float64 `json:"momentum_score_weight"`
	OrderFlow float64 `json:"orderflow_score_weight"`
	Liquidity float64 `json:"liquidity_score_weight"`
}

// DefaultWeights returns the stock weighting.
func DefaultWeights() Weights {
	return Weights{Trend: 0.4, Momentum: 0.25, OrderFlow: 0.2, Liquidity: 0.15}
}

const (
	directionThreshold   = 0.25
	flowBiasThreshold    = 0.15
	highVolatilityATRPct = 3.0
	structureBreakBonus  = 0.5
)

// SignalDecision is the directional verdict for one closed candle.
type SignalDecision struct {
	Symbol     string           `json:"symbol"`
	Direction  domain.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
	Composite  float64          `json:"composite"`
	Reasons    []string         `json:"reasons"`
}

// SignalEngine combines the analytics snapshots into a decision. It holds no state between calls.
type SignalEngine struct {
	weights Weights
}

func NewSignalEngine(w Weights) *SignalEngine {
	return &SignalEngine{weights: w}
}

// Weights returns the configured weighting.
func (e *SignalEngine) Weights() Weights { return e.weights }

// Evaluate produces the decision for symbol.
func (e *SignalEngine) Evaluate(symbol string, tech TechnicalSnapshot, flow analysis.OrderFlowSnapshot, vol analysis.VolatilitySnapshot) SignalDecision {
	reasons := make([]string, 0, 4)

	liquidation := -flow.LiquidationPressure * (e.weights.Liquidity / 2)
	if vol.StructureBreak {
		liquidation += structureBreakBonus
		reasons = append(reasons, "structure break detected")
	}
	composite := tech.TrendScore*e.weights.Trend +
		tech.MomentumScore*e.weights.Momentum +
		flow.Imbalance*e.weights.OrderFlow +
		liquidation

	switch tech.Signal {
	case SignalLong:
		reasons = append(reasons, "momentum and trend favor buying")
	case SignalShort:
		reasons = append(reasons, "momentum and trend favor selling")
	default:
		reasons = append(reasons, "technical signal neutral")
	}

	switch {
	case flow.Imbalance > flowBiasThreshold:
		reasons = append(reasons, "aggressive buy flow")
	case flow.Imbalance < -flowBiasThreshold:
		reasons = append(reasons, "aggressive sell flow")
	default:
		reasons = append(reasons, "order flow neutral")
	}

	if math.Abs(vol.ATRPct) > highVolatilityATRPct {
		reasons = append(reasons, "high relative volatility")
	}

	return SignalDecision{
		Symbol:     symbol,
		Direction:  directionFor(composite),
		Confidence: math.Min(1, math.Max(0, math.Abs(composite))),
		Composite:  composite,
		Reasons:    reasons,
	}
}

func directionFor(composite float64) domain.Direction {
	switch {
	case composite > directionThreshold:
		return domain.DirectionLong
	case composite < -directionThreshold:
		return domain.DirectionShort
	default:
		return domain.DirectionFlat
	}
}
