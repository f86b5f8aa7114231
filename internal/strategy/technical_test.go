package strategy_test

import (
	"testing"
	"time"

	"futures_trader/internal/domain"
	"futures_trader/internal/strategy"
)

func trendCandles(n int, start, step float64) []domain.Candle {
	out := make([]domain.Candle, n)
	base := time.Unix(1700000000, 0)
	for i := range out {
		c := start + step*float64(i)
		out[i] = domain.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     c - step, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 1,
		}
	}
	return out
}

func TestSummarizeTrends(t *testing.T) {
	tests := []struct {
		name string
		step float64
		want strategy.TechnicalSignal
	}{
		{"uptrend", 1, strategy.SignalLong},
		{"downtrend", -1, strategy.SignalShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := strategy.Summarize(trendCandles(120, 500, tt.step))
			if snap.Signal != tt.want {
				t.Errorf("Expected %s, got %s (%+v)", tt.want, snap.Signal, snap)
			}
			for _, v := range []float64{snap.TrendScore, snap.MomentumScore, snap.StructureBias} {
				if v < -1 || v > 1 {
					t.Errorf("Score out of range: %+v", snap)
				}
			}
		})
	}
}

func TestSummarizeShortHistoryIsNeutral(t *testing.T) {
	snap := strategy.Summarize(trendCandles(5, 100, 1))
	if snap.Signal != strategy.SignalNeutral {
		t.Errorf("Expected neutral, got %s", snap.Signal)
	}
	if snap.TrendScore != 0 || snap.MomentumScore != 0 || snap.StructureBias != 0 {
		t.Errorf("Expected zero components, got %+v", snap)
	}
}
