package domain

import (
	"testing"
	"time"
)

func candleAt(minute int, close float64) Candle {
	open := time.Unix(0, 0).Add(time.Duration(minute) * time.Minute)
	return Candle{OpenTime: open, CloseTime: open.Add(time.Minute - time.Millisecond), Open: close, High: close, Low: close, Close: close}
}

func TestCandleSeriesUpsert(t *testing.T) {
	s := NewCandleSeries(3)
	s.Reset([]Candle{candleAt(0, 1), candleAt(1, 2)})

	t.Run("amend matching open time", func(t *testing.T) {
		if !s.Upsert(candleAt(1, 2.5), false) {
			t.Fatal("Expected amend to change the series")
		}
		last, _ := s.Last()
		if last.Close != 2.5 || s.Len() != 2 {
			t.Errorf("Expected amended close 2.5 with len 2, got %v len %d", last.Close, s.Len())
		}
	})

	t.Run("ignore unclosed new interval", func(t *testing.T) {
		if s.Upsert(candleAt(2, 3), false) {
			t.Error("Expected unclosed candle to be ignored")
		}
		if s.Len() != 2 {
			t.Errorf("Expected len 2, got %d", s.Len())
		}
	})

	t.Run("append closed and trim", func(t *testing.T) {
		s.Upsert(candleAt(2, 3), true)
		s.Upsert(candleAt(3, 4), true)
		if s.Len() != 3 {
			t.Fatalf("Expected len 3, got %d", s.Len())
		}
		if first := s.Candles()[0]; first.Close != 2.5 {
			t.Errorf("Expected oldest close 2.5 after trim, got %v", first.Close)
		}
	})
}

func TestCandleSeriesResetKeepsNewest(t *testing.T) {
	s := NewCandleSeries(2)
	s.Reset([]Candle{candleAt(0, 1), candleAt(1, 2), candleAt(2, 3)})
	if s.Len() != 2 {
		t.Fatalf("Expected len 2, got %d", s.Len())
	}
	if s.Candles()[0].Close != 2 {
		t.Errorf("Expected oldest close 2, got %v", s.Candles()[0].Close)
	}
	if _, ok := NewCandleSeries(5).Last(); ok {
		t.Error("Expected no last candle on an empty series")
	}
}
