package strategy

import (
	"math"

	"futures_trader/internal/domain"
)

// TechnicalSignal is the bias of the technical summary.
type TechnicalSignal string

const (
	SignalLong    TechnicalSignal = "long"
	SignalShort   TechnicalSignal = "short"
	SignalNeutral TechnicalSignal = "neutral"
)

// TechnicalSnapshot is the technical state of the latest candle.
// Scores lie in [-1, 1].
type TechnicalSnapshot struct {
	TrendScore    float64         `json:"trend_score"`
	MomentumScore float64         `json:"momentum_score"`
	StructureBias float64         `json:"structure_bias"`
	Signal        TechnicalSignal `json:"signal"`
}

const technicalThreshold = 0.2

// Summarize scores trend, momentum and structure of a candle series, oldest first.
// Components without enough history score 0.
func Summarize(candles []domain.Candle) TechnicalSnapshot {
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i], highs[i], lows[i] = c.Close, c.High, c.Low
	}

	snap := TechnicalSnapshot{
		TrendScore:    trendScore(closes),
		MomentumScore: momentumScore(highs, lows, closes),
		StructureBias: structureBias(closes),
	}
	composite := 0.5*snap.TrendScore + 0.3*snap.MomentumScore + 0.2*snap.StructureBias
	switch {
	case composite > technicalThreshold:
		snap.Signal = SignalLong
	case composite < -technicalThreshold:
		snap.Signal = SignalShort
	default:
		snap.Signal = SignalNeutral
	}
	return snap
}

// trendScore combines the EMA21/EMA55 spread with the EMA21 slope.
func trendScore(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	fast := EMA(closes, 21)
	slow := EMA(closes, 55)
	slope := LinearSlope(valid(fast))

	var crossover float64
	if f, s := last(fast), last(slow); !math.IsNaN(f) && !math.IsNaN(s) && s != 0 {
		crossover = (f - s) / s
	}
	return math.Tanh(crossover*10 + slope)
}

// momentumScore averages RSI14 and %K14 mapped onto [-1, 1].
func momentumScore(highs, lows, closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	rsi := last(RSI(closes, 14))
	stoch := last(StochK(highs, lows, closes, 14))
	return (toUnit(rsi) + toUnit(stoch)) / 2
}

// toUnit maps a 0..100 oscillator onto [-1, 1]; missing values are neutral.
func toUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v/100*2 - 1
}

// structureBias combines the MACD(12,26,9) histogram with the Bollinger(20,2) z-score.
func structureBias(closes []float64) float64 {
	if len(closes) == 0 {
		return 0
	}
	hist := last(MACDHistogram(closes, 12, 26, 9))
	if math.IsNaN(hist) {
		hist = 0
	}
	var z float64
	if mid, std, ok := Bollinger(closes, 20); ok && std != 0 {
		z = (last(closes) - mid) / std
	}
	return math.Tanh(hist*5 + z)
}
