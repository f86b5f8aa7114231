package binance

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"futures_trader/internal/domain"
)

// Config configures the REST gateway.
type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool
	BaseURL   string // overrides the mainnet/testnet host when set
	// RequestsPerSecond paces REST calls. Zero means 10.
	RequestsPerSecond float64
	Burst             int
}

var _ domain.Gateway = (*Gateway)(nil)

// Gateway is the Binance USD-M futures REST gateway.
type Gateway struct {
	client  *futures.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	filters map[string]domain.SymbolFilters
}

func NewGateway(cfg Config) *Gateway {
	client := futures.NewClient(cfg.APIKey, cfg.APISecret)
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.Testnet:
		client.BaseURL = RESTURLTestnet
	default:
		client.BaseURL = RESTURLMainnet
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Gateway{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  slog.Default().With("module", "binance_gateway"),
		filters: make(map[string]domain.SymbolFilters),
	}
}

// WSBaseURL returns the websocket host matching the REST environment.
func WSBaseURL(testnet bool) string {
	if testnet {
		return WSURLTestnet
	}
	return WSURLMainnet
}

func (g *Gateway) wait(ctx context.Context, op string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return domain.NewFatalNetworkError(op, err)
	}
	return nil
}

// FetchHistory returns up to limit candles, oldest first.
func (g *Gateway) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if err := g.wait(ctx, "fetch klines"); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}
	klines, err := g.client.NewKlinesService().
		Symbol(strings.ToUpper(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, domain.NewNetworkError("fetch klines "+symbol, err))
	}
	return candlesFromKlines(klines)
}

func candlesFromKlines(klines []*futures.Kline) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0, len(klines))
	for _, k := range klines {
		var p floatParser
		c := domain.Candle{
			OpenTime:  time.UnixMilli(k.OpenTime),
			CloseTime: time.UnixMilli(k.CloseTime),
			Open:      p.parse("open", k.Open),
			High:      p.parse("high", k.High),
			Low:       p.parse("low", k.Low),
			Close:     p.parse("close", k.Close),
			Volume:    p.parse("volume", k.Volume),
		}
		if p.err != nil {
			return nil, fmt.Errorf("%w: kline %d: %w", domain.ErrDataUnavailable, k.OpenTime, p.err)
		}
		out = append(out, c)
	}
	return out, nil
}

// SymbolFilters returns the cached trading filters of symbol, loading exchange info once.
func (g *Gateway) SymbolFilters(ctx context.Context, symbol string) (domain.SymbolFilters, error) {
	symbol = strings.ToUpper(symbol)

	g.mu.Lock()
	f, ok := g.filters[symbol]
	g.mu.Unlock()
	if ok {
		return f, nil
	}

	if err := g.wait(ctx, "exchange info"); err != nil {
		return domain.SymbolFilters{}, err
	}
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return domain.SymbolFilters{}, domain.NewNetworkError("exchange info", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range info.Symbols {
		parsed, err := filtersFromSymbol(s)
		if err != nil {
			g.logger.Warn("Skipping symbol with unreadable filters", slog.String("symbol", s.Symbol), slog.Any("error", err))
			continue
		}
		g.filters[s.Symbol] = parsed
	}
	f, ok = g.filters[symbol]
	if !ok {
		return domain.SymbolFilters{}, fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	return f, nil
}

func filtersFromSymbol(s futures.Symbol) (domain.SymbolFilters, error) {
	out := domain.SymbolFilters{Symbol: s.Symbol}
	for _, raw := range s.Filters {
		filterType, _ := raw["filterType"].(string)
		var p decimalParser
		switch filterType {
		case "LOT_SIZE":
			out.Lot = &domain.LotFilter{StepSize: p.field(raw, "stepSize"), MinQty: p.field(raw, "minQty")}
		case "MARKET_LOT_SIZE":
			out.MarketLot = &domain.LotFilter{StepSize: p.field(raw, "stepSize"), MinQty: p.field(raw, "minQty")}
		case "PRICE_FILTER":
			out.Price = &domain.PriceFilter{
				TickSize: p.field(raw, "tickSize"),
				MinPrice: p.field(raw, "minPrice"),
				MaxPrice: p.field(raw, "maxPrice"),
			}
		}
		if p.err != nil {
			return out, fmt.Errorf("%s: %w", filterType, p.err)
		}
	}
	return out, nil
}

type decimalParser struct {
	err error
}

func (p *decimalParser) field(m map[string]interface{}, key string) decimal.Decimal {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero
	}
	var d decimal.Decimal
	var err error
	switch t := v.(type) {
	case string:
		if t == "" {
			return decimal.Zero
		}
		d, err = decimal.NewFromString(t)
	case float64:
		d = decimal.NewFromFloat(t)
	default:
		err = fmt.Errorf("unexpected type %T", v)
	}
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("field %s: %w", key, err)
	}
	return d
}

// PlaceOrder normalizes req against the symbol filters and submits it.
// Normalization failures wrap domain.ErrInvalidOrder; transport and API failures wrap domain.ErrExchangeRejected.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	req.Symbol = strings.ToUpper(req.Symbol)
	filters, err := g.SymbolFilters(ctx, req.Symbol)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: %w", domain.ErrExchangeRejected, err)
	}
	n, err := filters.Normalize(req)
	if err != nil {
		return domain.OrderResult{}, err
	}

	svc := g.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		Quantity(domain.FormatDecimal(n.Quantity))
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.PositionSide != "" {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	}
	if req.TimeInForce != "" {
		svc = svc.TimeInForce(futures.TimeInForceType(req.TimeInForce))
	}
	if n.Price != nil {
		svc = svc.Price(domain.FormatDecimal(*n.Price))
	}
	if n.StopPrice != nil {
		svc = svc.StopPrice(domain.FormatDecimal(*n.StopPrice))
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	if err := g.wait(ctx, "place order"); err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: %w", domain.ErrExchangeRejected, err)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("%w: %s %s %s: %w", domain.ErrExchangeRejected, req.Type, req.Side, req.Symbol, err)
	}

	res := domain.OrderResult{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Status:        string(resp.Status),
		Quantity:      confirmed(resp.OrigQuantity, n.Quantity),
	}
	if n.Price != nil {
		res.Price = confirmed(resp.Price, *n.Price)
	}
	if n.StopPrice != nil {
		res.StopPrice = confirmed(resp.StopPrice, *n.StopPrice)
	}
	g.logger.Info("Order placed",
		slog.String("symbol", req.Symbol),
		slog.String("side", req.Side),
		slog.String("type", req.Type),
		slog.String("quantity", domain.FormatDecimal(res.Quantity)),
		slog.Int64("order_id", res.OrderID),
		slog.String("status", res.Status),
	)
	return res, nil
}

// confirmed prefers the exchange echo and falls back to the submitted value.
func confirmed(echo string, sent decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(echo)
	if err != nil || d.Sign() <= 0 {
		return sent
	}
	return d
}

func (g *Gateway) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := g.wait(ctx, "change leverage"); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrExchangeRejected, err)
	}
	res, err := g.client.NewChangeLeverageService().
		Symbol(strings.ToUpper(symbol)).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: change leverage %s to %d: %w", domain.ErrExchangeRejected, symbol, leverage, err)
	}
	g.logger.Info("Leverage changed", slog.String("symbol", res.Symbol), slog.Int("leverage", res.Leverage))
	return nil
}

// DualPositionMode reports whether hedge mode is on. Query failures read as one-way mode.
func (g *Gateway) DualPositionMode(ctx context.Context) bool {
	if err := g.wait(ctx, "position mode"); err != nil {
		return false
	}
	mode, err := g.client.NewGetPositionModeService().Do(ctx)
	if err != nil {
		g.logger.Warn("Position mode query failed, assuming one-way mode", slog.Any("error", err))
		return false
	}
	return mode.DualSidePosition
}

// RequestWeightLimit returns the REQUEST_WEIGHT per minute limit advertised by the exchange, or 0.
func (g *Gateway) RequestWeightLimit(ctx context.Context) (int64, error) {
	if err := g.wait(ctx, "exchange info"); err != nil {
		return 0, err
	}
	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, domain.NewNetworkError("exchange info", err)
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit, nil
		}
	}
	return 0, nil
}

// limitFromWeight converts a per-minute weight budget into a request rate at half the budget.
func limitFromWeight(weightPerMinute int64) rate.Limit {
	if weightPerMinute <= 0 {
		return rate.Limit(10)
	}
	return rate.Limit(float64(weightPerMinute) / 60 / 2)
}

// Calibrate paces requests from the advertised weight limit.
func (g *Gateway) Calibrate(ctx context.Context) {
	limit, err := g.RequestWeightLimit(ctx)
	if err != nil {
		g.logger.Warn("Rate limit discovery failed", slog.Any("error", err))
		return
	}
	l := limitFromWeight(limit)
	g.limiter.SetLimit(l)
	g.logger.Info("Request pacing calibrated", slog.Int64("weight_per_minute", limit), slog.String("rps", strconv.FormatFloat(float64(l), 'f', 2, 64)))
}
