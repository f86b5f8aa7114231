package analysis

import (
	"fmt"
	"math"

	"futures_trader/internal/domain"
)

// Regime classifies the volatility state.
type Regime string

const (
	RegimeCompression Regime = "compression"
	RegimeNormal      Regime = "normal"
	RegimeExplosive   Regime = "explosive"
)

// VolatilitySnapshot is the volatility state of the latest candle.
type VolatilitySnapshot struct {
	ATR            float64 `json:"atr"`
	ATRPct         float64 `json:"atr_pct"`
	RealizedVol    float64 `json:"realized_vol"`
	StructureBreak bool    `json:"structure_break"`
	Regime         Regime  `json:"regime"`
}

// VolatilityConfig parameterizes VolatilityAnalyzer.
type VolatilityConfig struct {
	ATRPeriod          int
	RealizedWindow     int
	StructureLookback  int
	StructureThreshold float64
}

// DefaultVolatilityConfig returns the stock parameters for the given ATR period.
func DefaultVolatilityConfig(atrPeriod int) VolatilityConfig {
	return VolatilityConfig{
		ATRPeriod:          atrPeriod,
		RealizedWindow:     20,
		StructureLookback:  20,
		StructureThreshold: 1.8,
	}
}

// VolatilityAnalyzer derives ATR, realized volatility and structure breaks from a candle series.
type VolatilityAnalyzer struct {
	cfg VolatilityConfig
}

func NewVolatilityAnalyzer(cfg VolatilityConfig) *VolatilityAnalyzer {
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.RealizedWindow <= 1 {
		cfg.RealizedWindow = 20
	}
	if cfg.StructureLookback <= 1 {
		cfg.StructureLookback = 20
	}
	if cfg.StructureThreshold <= 0 {
		cfg.StructureThreshold = 1.8
	}
	return &VolatilityAnalyzer{cfg: cfg}
}

// Compute evaluates the series, oldest first. It needs at least two candles.
func (a *VolatilityAnalyzer) Compute(candles []domain.Candle) (VolatilitySnapshot, error) {
	if len(candles) < 2 {
		return VolatilitySnapshot{}, fmt.Errorf("%w: volatility needs 2 candles, have %d", domain.ErrInsufficientHistory, len(candles))
	}

	last := candles[len(candles)-1]
	snap := VolatilitySnapshot{ATR: a.atr(candles)}
	if last.Close != 0 {
		snap.ATRPct = 100 * snap.ATR / last.Close
	}
	rv, filled := a.realizedVol(candles)
	snap.RealizedVol = rv
	snap.StructureBreak = a.structureBreak(candles)
	snap.Regime = classify(snap.ATRPct, rv, filled)
	return snap, nil
}

// atr smooths true range with an exponential average of span ATRPeriod, seeded with the first range.
func (a *VolatilityAnalyzer) atr(candles []domain.Candle) float64 {
	alpha := 2.0 / float64(a.cfg.ATRPeriod+1)
	atr := candles[0].High - candles[0].Low
	for i := 1; i < len(candles); i++ {
		c, prevClose := candles[i], candles[i-1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
		atr = alpha*tr + (1-alpha)*atr
	}
	return atr
}

// realizedVol is the sample stdev of the last RealizedWindow log returns scaled by sqrt(window).
// It reports false, with a zero value, until the window is filled.
func (a *VolatilityAnalyzer) realizedVol(candles []domain.Candle) (float64, bool) {
	w := a.cfg.RealizedWindow
	if len(candles)-1 < w {
		return 0, false
	}
	returns := make([]float64, 0, w)
	for i := len(candles) - w; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev <= 0 || cur <= 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, math.Log(cur/prev))
	}
	_, std := meanStd(returns, 1)
	return std * math.Sqrt(float64(w)), true
}

func (a *VolatilityAnalyzer) structureBreak(candles []domain.Candle) bool {
	n := a.cfg.StructureLookback
	if n > len(candles) {
		n = len(candles)
	}
	closes := make([]float64, 0, n)
	for _, c := range candles[len(candles)-n:] {
		closes = append(closes, c.Close)
	}
	mean, std := meanStd(closes, 0)
	if std == 0 {
		return false
	}
	z := (closes[len(closes)-1] - mean) / std
	return math.Abs(z) >= a.cfg.StructureThreshold
}

// classify ignores rv when it is not known; compression then cannot be confirmed.
func classify(atrPct, rv float64, rvKnown bool) Regime {
	switch {
	case rvKnown && atrPct < 0.5 && rv < 0.4:
		return RegimeCompression
	case atrPct > 2.0 || (rvKnown && rv > 2.5):
		return RegimeExplosive
	default:
		return RegimeNormal
	}
}

// meanStd returns the mean and standard deviation with ddof degrees of freedom removed.
func meanStd(xs []float64, ddof int) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs)-ddof <= 0 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-ddof))
}
