package domain

import (
	"context"
)

// Gateway is the exchange contract used by the engine.
// Implementations normalize orders against the instrument's trading filters
// before submitting them.
type Gateway interface {
	// FetchHistory returns up to limit candles oldest first.
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ChangeLeverage(ctx context.Context, symbol string, leverage int) error
	// DualPositionMode reports whether hedge mode is enabled. Failures read as false.
	DualPositionMode(ctx context.Context) bool
}
