package domain

import "time"

// Candle is one OHLCV record of the tracked instrument.
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// CandleSeries is an ordered candle history bounded by a lookback length.
// It is owned by the sequencer goroutine and is not safe for concurrent use.
type CandleSeries struct {
	candles  []Candle
	lookback int
}

// NewCandleSeries creates an empty series holding at most lookback candles.
func NewCandleSeries(lookback int) *CandleSeries {
	if lookback < 2 {
		lookback = 2
	}
	return &CandleSeries{
		candles:  make([]Candle, 0, lookback+1),
		lookback: lookback,
	}
}

// Reset replaces the series with the given history, keeping the newest candles.
func (s *CandleSeries) Reset(history []Candle) {
	s.candles = s.candles[:0]
	s.candles = append(s.candles, history...)
	s.trim()
}

// Upsert amends the last candle when the open times match, otherwise appends c
// if it is closed. Unclosed updates for a new interval are ignored until they close.
// It reports whether the series changed.
func (s *CandleSeries) Upsert(c Candle, closed bool) bool {
	if n := len(s.candles); n > 0 && s.candles[n-1].OpenTime.Equal(c.OpenTime) {
		s.candles[n-1] = c
		return true
	}
	if !closed {
		return false
	}
	s.candles = append(s.candles, c)
	s.trim()
	return true
}

func (s *CandleSeries) trim() {
	if over := len(s.candles) - s.lookback; over > 0 {
		s.candles = append(s.candles[:0], s.candles[over:]...)
	}
}

// Len returns the number of candles held.
func (s *CandleSeries) Len() int {
	return len(s.candles)
}

// Candles returns the series oldest first. The slice must not be modified.
func (s *CandleSeries) Candles() []Candle {
	return s.candles
}

// Last returns the newest candle.
func (s *CandleSeries) Last() (Candle, bool) {
	if len(s.candles) == 0 {
		return Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}
