package analysis

import (
	"errors"
	"math"
	"testing"
	"time"

	"futures_trader/internal/domain"
)

func flatCandles(n int, price, rng float64) []domain.Candle {
	out := make([]domain.Candle, n)
	base := time.Unix(1700000000, 0)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     price, High: price + rng/2, Low: price - rng/2, Close: price,
		}
	}
	return out
}

func TestVolatilityInsufficientHistory(t *testing.T) {
	a := NewVolatilityAnalyzer(DefaultVolatilityConfig(14))
	_, err := a.Compute(flatCandles(1, 100, 1))
	if !errors.Is(err, domain.ErrInsufficientHistory) {
		t.Errorf("Expected ErrInsufficientHistory, got %v", err)
	}
}

func TestVolatilityConstantRange(t *testing.T) {
	a := NewVolatilityAnalyzer(DefaultVolatilityConfig(14))
	s, err := a.Compute(flatCandles(30, 100, 2))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if math.Abs(s.ATR-2) > 1e-9 {
		t.Errorf("Expected ATR 2, got %v", s.ATR)
	}
	if math.Abs(s.ATRPct-2) > 1e-9 {
		t.Errorf("Expected ATR pct 2, got %v", s.ATRPct)
	}
	if s.RealizedVol != 0 {
		t.Errorf("Expected zero realized vol on flat closes, got %v", s.RealizedVol)
	}
	if s.StructureBreak {
		t.Error("Expected no structure break when stdev is zero")
	}
	if s.Regime != RegimeNormal {
		t.Errorf("Expected normal regime, got %s", s.Regime)
	}
}

func TestVolatilityStructureBreak(t *testing.T) {
	a := NewVolatilityAnalyzer(DefaultVolatilityConfig(14))
	candles := flatCandles(30, 100, 0.1)
	candles[len(candles)-1].Close = 110
	candles[len(candles)-1].High = 110

	s, err := a.Compute(candles)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !s.StructureBreak {
		t.Error("Expected structure break on a spike")
	}
	if s.RealizedVol <= 0 {
		t.Errorf("Expected positive realized vol, got %v", s.RealizedVol)
	}
}

func TestVolatilityRegimes(t *testing.T) {
	tests := []struct {
		atrPct, rv float64
		known      bool
		want       Regime
	}{
		{0.3, 0.1, true, RegimeCompression},
		{0.3, 0.5, true, RegimeNormal},
		{2.5, 0.1, true, RegimeExplosive},
		{1.0, 3.0, true, RegimeExplosive},
		{1.0, 1.0, true, RegimeNormal},
		{0.3, 0, false, RegimeNormal},
		{2.5, 0, false, RegimeExplosive},
	}
	for _, tt := range tests {
		if got := classify(tt.atrPct, tt.rv, tt.known); got != tt.want {
			t.Errorf("classify(%v, %v, %v) = %s, want %s", tt.atrPct, tt.rv, tt.known, got, tt.want)
		}
	}
}

func TestRealizedVolNeedsFullWindow(t *testing.T) {
	a := NewVolatilityAnalyzer(DefaultVolatilityConfig(14))
	candles := flatCandles(20, 100, 1) // 19 returns
	candles[10].Close = 105

	s, err := a.Compute(candles)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.RealizedVol != 0 {
		t.Errorf("Expected zero realized vol below the window, got %v", s.RealizedVol)
	}
}

func TestShortHistoryIsNotCompression(t *testing.T) {
	a := NewVolatilityAnalyzer(DefaultVolatilityConfig(14))
	s, err := a.Compute(flatCandles(10, 100, 0.1)) // atr_pct 0.1
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.ATRPct >= 0.5 {
		t.Fatalf("Expected a tight range, got atr_pct %v", s.ATRPct)
	}
	if s.Regime != RegimeNormal {
		t.Errorf("Expected normal regime before the realized window fills, got %s", s.Regime)
	}

	s, err = a.Compute(flatCandles(30, 100, 0.1))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if s.Regime != RegimeCompression {
		t.Errorf("Expected compression once the window fills, got %s", s.Regime)
	}
}
