package portfolio

import (
	"log/slog"
	"sort"

	"futures_trader/internal/domain"
)

// Manager is a bounded registry of open positions keyed by symbol.
// It does no locking: every call must come from the sequencer goroutine.
type Manager struct {
	positions    map[string]*domain.Position
	maxPositions int
	logger       *slog.Logger
}

func NewManager(maxPositions int) *Manager {
	if maxPositions < 1 {
		maxPositions = 1
	}
	return &Manager{
		positions:    make(map[string]*domain.Position),
		maxPositions: maxPositions,
		logger:       slog.Default().With("module", "portfolio"),
	}
}

// CanOpen reports whether a new position on symbol fits.
func (m *Manager) CanOpen(symbol string) bool {
	if _, ok := m.positions[symbol]; ok {
		m.logger.Debug("Position already open", slog.String("symbol", symbol))
		return false
	}
	return len(m.positions) < m.maxPositions
}

// Add registers p, replacing any position on the same symbol.
func (m *Manager) Add(p domain.Position) {
	m.positions[p.Symbol] = &p
	m.logger.Info("Position registered",
		slog.String("symbol", p.Symbol),
		slog.String("direction", string(p.Direction)),
		slog.Float64("quantity", p.Quantity),
		slog.Float64("notional", p.Notional),
		slog.Float64("cost", p.Cost),
	)
}

// Get returns a copy of the position on symbol.
func (m *Manager) Get(symbol string) (domain.Position, bool) {
	p, ok := m.positions[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

func (m *Manager) Remove(symbol string) {
	if _, ok := m.positions[symbol]; ok {
		m.logger.Info("Removing position", slog.String("symbol", symbol))
		delete(m.positions, symbol)
	}
}

func (m *Manager) UpdateStop(symbol string, stop float64) {
	if p, ok := m.positions[symbol]; ok {
		p.StopLoss = stop
		m.logger.Info("Stop loss updated", slog.String("symbol", symbol), slog.Float64("stop_loss", stop))
	}
}

func (m *Manager) UpdateTakeProfit(symbol string, tp float64) {
	if p, ok := m.positions[symbol]; ok {
		p.TakeProfit = tp
		m.logger.Info("Take profit updated", slog.String("symbol", symbol), slog.Float64("take_profit", tp))
	}
}

// Count returns the number of open positions.
func (m *Manager) Count() int { return len(m.positions) }

// MaxPositions returns the configured bound.
func (m *Manager) MaxPositions() int { return m.maxPositions }

// Positions returns copies of all open positions sorted by symbol.
func (m *Manager) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
