package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"futures_trader/internal/domain"
)

// DecisionRecord is one closed-candle decision.
type DecisionRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Seq        uint64    `gorm:"not null"`
	Symbol     string    `gorm:"index;not null"`
	CandleTime time.Time `gorm:"index"`
	Price      float64
	Direction  string
	Confidence float64
	Composite  float64
	Regime     string
	Reasons    string
	Result     string
	Error      string
	CreatedAt  time.Time
}

// PositionRecord is the lifecycle of one position. ClosedAt is nil while it is open.
type PositionRecord struct {
	ID           uint   `gorm:"primaryKey"`
	Symbol       string `gorm:"index;not null"`
	Direction    string
	EntryPrice   float64
	Quantity     float64
	StopLoss     float64
	TakeProfit   float64
	Notional     float64
	Cost         float64
	EntryOrderID int64
	OpenedAt     time.Time
	ClosedAt     *time.Time `gorm:"index"`
	ClosePrice   float64
	CloseReason  string
}

// Journal persists decisions and positions to SQLite.
type Journal struct {
	db *gorm.DB
}

// OpenJournal opens (creating if needed) the SQLite journal at path.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&DecisionRecord{}, &PositionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Decisions
// ======================================================================================

// RecordDecision stores one decision. Reasons are joined with "; ".
func (j *Journal) RecordDecision(ctx context.Context, rec DecisionRecord, reasons []string) error {
	if len(reasons) > 0 {
		rec.Reasons = strings.Join(reasons, "; ")
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

// RecentDecisions returns up to limit decisions for symbol, newest first.
func (j *Journal) RecentDecisions(ctx context.Context, symbol string, limit int) ([]DecisionRecord, error) {
	var recs []DecisionRecord
	err := j.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// ======================================================================================
// Positions
// ======================================================================================

// OpenPosition records a newly registered position.
func (j *Journal) OpenPosition(ctx context.Context, p domain.Position, entryOrderID int64) error {
	rec := PositionRecord{
		Symbol:       p.Symbol,
		Direction:    string(p.Direction),
		EntryPrice:   p.EntryPrice,
		Quantity:     p.Quantity,
		StopLoss:     p.StopLoss,
		TakeProfit:   p.TakeProfit,
		Notional:     p.Notional,
		Cost:         p.Cost,
		EntryOrderID: entryOrderID,
		OpenedAt:     p.OpenedAt,
	}
	return j.db.WithContext(ctx).Create(&rec).Error
}

// ClosePosition marks the open position of symbol as closed.
// Closing a symbol with no open record is not an error.
func (j *Journal) ClosePosition(ctx context.Context, symbol string, price float64, reason string, at time.Time) error {
	var rec PositionRecord
	err := j.db.WithContext(ctx).
		Where("symbol = ? AND closed_at IS NULL", symbol).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil // Not found is not an error
	}
	if err != nil {
		return err
	}

	return j.db.WithContext(ctx).Model(&rec).Updates(map[string]any{
		"closed_at":    at,
		"close_price":  price,
		"close_reason": reason,
	}).Error
}

// OpenPositions returns the positions that have not been closed.
func (j *Journal) OpenPositions(ctx context.Context) ([]PositionRecord, error) {
	var recs []PositionRecord
	err := j.db.WithContext(ctx).Where("closed_at IS NULL").Order("id").Find(&recs).Error
	return recs, err
}

// PositionHistory returns every position of symbol, oldest first.
func (j *Journal) PositionHistory(ctx context.Context, symbol string) ([]PositionRecord, error) {
	var recs []PositionRecord
	err := j.db.WithContext(ctx).Where("symbol = ?", symbol).Order("id").Find(&recs).Error
	return recs, err
}
