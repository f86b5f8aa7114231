package portfolio

import (
	"testing"

	"futures_trader/internal/domain"
)

func TestCanOpenBounds(t *testing.T) {
	m := NewManager(2)

	if !m.CanOpen("BTCUSDT") {
		t.Fatal("Expected empty portfolio to accept a position")
	}

	m.Add(domain.Position{Symbol: "BTCUSDT", Direction: domain.DirectionLong, Quantity: 1})
	if m.CanOpen("BTCUSDT") {
		t.Error("Expected duplicate symbol to be refused")
	}
	if !m.CanOpen("ETHUSDT") {
		t.Error("Expected second symbol to fit")
	}

	m.Add(domain.Position{Symbol: "ETHUSDT", Direction: domain.DirectionShort, Quantity: 3})
	if m.CanOpen("SOLUSDT") {
		t.Error("Expected limit to be reached")
	}
	if m.Count() != 2 {
		t.Errorf("Expected 2 positions, got %d", m.Count())
	}
}

func TestUpdatesAndRemove(t *testing.T) {
	m := NewManager(1)
	m.Add(domain.Position{Symbol: "BTCUSDT", Direction: domain.DirectionLong, StopLoss: 90, TakeProfit: 120})

	m.UpdateStop("BTCUSDT", 95)
	m.UpdateTakeProfit("BTCUSDT", 130)
	m.UpdateStop("MISSING", 1)

	p, ok := m.Get("BTCUSDT")
	if !ok {
		t.Fatal("Expected position")
	}
	if p.StopLoss != 95 || p.TakeProfit != 130 {
		t.Errorf("Expected SL 95 TP 130, got SL %v TP %v", p.StopLoss, p.TakeProfit)
	}

	p.StopLoss = 1
	if again, _ := m.Get("BTCUSDT"); again.StopLoss != 95 {
		t.Error("Get should return a copy")
	}

	m.Remove("BTCUSDT")
	m.Remove("BTCUSDT")
	if _, ok := m.Get("BTCUSDT"); ok {
		t.Error("Expected position to be removed")
	}
	if len(m.Positions()) != 0 {
		t.Errorf("Expected no positions, got %v", m.Positions())
	}
}
