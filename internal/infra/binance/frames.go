package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"futures_trader/internal/domain"
	"futures_trader/internal/event"
)

// errSkipFrame marks control frames that carry no market data.
var errSkipFrame = errors.New("skip frame")

// decodeFrame turns a raw websocket message into a typed event of kind.
// Error frames and malformed payloads return domain.ErrStreamFault.
func decodeFrame(kind event.Kind, symbol string, raw []byte) (event.MarketEvent, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return event.MarketEvent{}, fmt.Errorf("%w: %s frame: %w", domain.ErrStreamFault, kind, err)
	}

	// combined stream wrapper {"stream": ..., "data": {...}}
	if data, ok := envelope["data"]; ok {
		raw = data
		envelope = nil
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return event.MarketEvent{}, fmt.Errorf("%w: %s frame data: %w", domain.ErrStreamFault, kind, err)
		}
	}

	if msg, ok := envelope["error"]; ok {
		return event.MarketEvent{}, fmt.Errorf("%w: %s stream error: %s", domain.ErrStreamFault, kind, string(msg))
	}
	var eventType string
	if e, ok := envelope["e"]; ok {
		_ = json.Unmarshal(e, &eventType)
	}
	if eventType == "error" {
		var ef wsErrorFrame
		_ = json.Unmarshal(raw, &ef)
		if ef.Type == "" {
			ef.Type = "unknown"
		}
		return event.MarketEvent{}, fmt.Errorf("%w: %s stream error %s: %s", domain.ErrStreamFault, kind, ef.Type, strings.Trim(string(ef.Message), `"`))
	}
	// subscription acks {"result":null,"id":1}
	if _, ok := envelope["result"]; ok && eventType == "" {
		return event.MarketEvent{}, errSkipFrame
	}

	switch kind {
	case event.KindKline:
		return decodeKline(symbol, raw)
	case event.KindTrade:
		return decodeAggTrade(symbol, raw)
	case event.KindLiquidation:
		return decodeForceOrder(symbol, raw)
	}
	return event.MarketEvent{}, fmt.Errorf("%w: unsupported kind %q", domain.ErrStreamFault, kind)
}

func decodeKline(symbol string, raw []byte) (event.MarketEvent, error) {
	var f wsKlineFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return event.MarketEvent{}, fmt.Errorf("%w: kline frame: %w", domain.ErrStreamFault, err)
	}
	if f.Event != "kline" {
		return event.MarketEvent{}, fmt.Errorf("%w: expected kline event, got %q", domain.ErrStreamFault, f.Event)
	}
	k := f.Kline
	var p floatParser
	c := domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Open:      p.parse("o", k.Open),
		High:      p.parse("h", k.High),
		Low:       p.parse("l", k.Low),
		Close:     p.parse("c", k.Close),
		Volume:    p.parse("v", k.Volume),
	}
	if p.err != nil {
		return event.MarketEvent{}, fmt.Errorf("%w: kline frame: %w", domain.ErrStreamFault, p.err)
	}
	return event.NewKline(symbol, c, k.Closed), nil
}

func decodeAggTrade(symbol string, raw []byte) (event.MarketEvent, error) {
	var f wsAggTradeFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return event.MarketEvent{}, fmt.Errorf("%w: aggTrade frame: %w", domain.ErrStreamFault, err)
	}
	if f.Event != "aggTrade" {
		return event.MarketEvent{}, fmt.Errorf("%w: expected aggTrade event, got %q", domain.ErrStreamFault, f.Event)
	}
	var p floatParser
	t := event.Trade{
		Price:        p.parse("p", f.Price),
		Qty:          p.parse("q", f.Qty),
		IsBuyerMaker: f.IsBuyerMaker,
		Time:         time.UnixMilli(f.TradeTime),
	}
	if p.err != nil {
		return event.MarketEvent{}, fmt.Errorf("%w: aggTrade frame: %w", domain.ErrStreamFault, p.err)
	}
	return event.NewTrade(symbol, t), nil
}

func decodeForceOrder(symbol string, raw []byte) (event.MarketEvent, error) {
	var f wsForceOrderFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return event.MarketEvent{}, fmt.Errorf("%w: forceOrder frame: %w", domain.ErrStreamFault, err)
	}
	if f.Event != "forceOrder" {
		return event.MarketEvent{}, fmt.Errorf("%w: expected forceOrder event, got %q", domain.ErrStreamFault, f.Event)
	}
	var p floatParser
	l := event.Liquidation{
		Side:  f.Order.Side,
		Qty:   p.parseOptional("q", f.Order.Qty),
		Price: p.parseOptional("p", f.Order.Price),
	}
	if p.err != nil {
		return event.MarketEvent{}, fmt.Errorf("%w: forceOrder frame: %w", domain.ErrStreamFault, p.err)
	}
	return event.NewLiquidation(symbol, l), nil
}

// floatParser keeps the first parse failure.
type floatParser struct {
	err error
}

func (p *floatParser) parse(field, s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("field %s: %w", field, err)
	}
	return v
}

func (p *floatParser) parseOptional(field, s string) float64 {
	if s == "" {
		return 0
	}
	return p.parse(field, s)
}
