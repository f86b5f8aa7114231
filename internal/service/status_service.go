package service

import (
	"context"
	"sync"
	"time"

	"futures_trader/internal/domain"
	"futures_trader/internal/engine"
	"futures_trader/internal/execution"
	"futures_trader/internal/strategy"
)

// DefaultHistory is the number of cycles kept for the status endpoint.
const DefaultHistory = 50

// CycleSummary is the externally visible part of a decision cycle.
type CycleSummary struct {
	Seq        uint64                  `json:"seq"`
	CandleTime time.Time               `json:"candle_time"`
	Price      float64                 `json:"price"`
	Decision   strategy.SignalDecision `json:"decision"`
	Report     execution.Report        `json:"report"`
	Error      string                  `json:"error,omitempty"`
}

// Status is a point-in-time copy of the trading state.
type Status struct {
	Symbol    string            `json:"symbol"`
	Mode      string            `json:"mode"`
	Price     float64           `json:"price"`
	PriceAt   time.Time         `json:"price_at"`
	Cycles    int               `json:"cycles"`
	Positions []domain.Position `json:"positions"`
	Recent    []CycleSummary    `json:"recent"`
}

// StatusService is the read model fed by the sequencer and read by HTTP handlers.
type StatusService struct {
	mu        sync.RWMutex
	symbol    string
	mode      string
	price     float64
	priceAt   time.Time
	cycles    int
	positions []domain.Position
	recent    []CycleSummary
	limit     int
	now       func() time.Time
}

// NewStatusService creates a StatusService instance
func NewStatusService(symbol, mode string) *StatusService {
	return &StatusService{
		symbol: symbol,
		mode:   mode,
		limit:  DefaultHistory,
		now:    time.Now,
	}
}

// UpdatePrice records the latest traded price.
func (s *StatusService) UpdatePrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol != s.symbol {
		return
	}
	s.price = price
	s.priceAt = s.now()
}

// RecordCycle stores the outcome of a decision cycle. It matches engine.WithCycleHook.
func (s *StatusService) RecordCycle(_ context.Context, c engine.Cycle) {
	summary := CycleSummary{
		Seq:        c.Seq,
		CandleTime: c.CandleTime,
		Price:      c.Price,
		Decision:   c.Decision,
		Report:     c.Report,
	}
	if c.Err != nil {
		summary.Error = c.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	s.positions = append(s.positions[:0:0], c.Positions...)
	s.recent = append(s.recent, summary)
	if over := len(s.recent) - s.limit; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
}

// Snapshot returns a copy of the current state. Recent cycles are newest first.
func (s *StatusService) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Symbol:    s.symbol,
		Mode:      s.mode,
		Price:     s.price,
		PriceAt:   s.priceAt,
		Cycles:    s.cycles,
		Positions: append([]domain.Position{}, s.positions...),
		Recent:    make([]CycleSummary, 0, len(s.recent)),
	}
	for i := len(s.recent) - 1; i >= 0; i-- {
		st.Recent = append(st.Recent, s.recent[i])
	}
	return st
}

// LastCycle returns the most recent cycle, if any.
func (s *StatusService) LastCycle() (CycleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.recent) == 0 {
		return CycleSummary{}, false
	}
	return s.recent[len(s.recent)-1], true
}
