package binance

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"futures_trader/internal/domain"
	"futures_trader/internal/event"
)

// StreamSource is a single-stream websocket feed of one event kind.
type StreamSource struct {
	kind        event.Kind
	baseURL     string
	stream      func(symbol string) string
	dialer      websocket.Dialer
	readTimeout time.Duration
	logger      *slog.Logger
}

func newStreamSource(kind event.Kind, baseURL string, stream func(string) string) *StreamSource {
	return &StreamSource{
		kind:        kind,
		baseURL:     strings.TrimRight(baseURL, "/"),
		stream:      stream,
		dialer:      websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		readTimeout: readTimeout,
		logger:      slog.Default().With("module", "binance_ws", "kind", string(kind)),
	}
}

// NewKlineSource streams candles of interval.
func NewKlineSource(baseURL, interval string) *StreamSource {
	return newStreamSource(event.KindKline, baseURL, func(symbol string) string {
		return strings.ToLower(symbol) + "@kline_" + interval
	})
}

// NewAggTradeSource streams aggregated trades.
func NewAggTradeSource(baseURL string) *StreamSource {
	return newStreamSource(event.KindTrade, baseURL, func(symbol string) string {
		return strings.ToLower(symbol) + "@aggTrade"
	})
}

// NewLiquidationSource streams forced orders.
func NewLiquidationSource(baseURL string) *StreamSource {
	return newStreamSource(event.KindLiquidation, baseURL, func(symbol string) string {
		return strings.ToLower(symbol) + "@forceOrder"
	})
}

// WithReadTimeout overrides the idle read deadline.
func (s *StreamSource) WithReadTimeout(d time.Duration) *StreamSource {
	s.readTimeout = d
	return s
}

func (s *StreamSource) Kind() event.Kind { return s.kind }

// Open connects and yields decoded events until ctx is cancelled or the connection fails.
// The final error is ctx.Err() on cancellation and wraps domain.ErrStreamFault otherwise.
func (s *StreamSource) Open(ctx context.Context, symbol string) iter.Seq2[event.MarketEvent, error] {
	return func(yield func(event.MarketEvent, error) bool) {
		url := s.baseURL + "/" + s.stream(symbol)
		conn, _, err := s.dialer.DialContext(ctx, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				yield(event.MarketEvent{}, ctx.Err())
				return
			}
			yield(event.MarketEvent{}, fmt.Errorf("%w: %w", domain.ErrStreamFault, domain.NewNetworkError("dial "+url, err)))
			return
		}
		defer conn.Close()

		// unblocks ReadMessage on cancellation
		stop := context.AfterFunc(ctx, func() { conn.Close() })
		defer stop()

		s.logger.Info("Websocket connected", slog.String("stream", s.stream(symbol)))

		extend := func() { _ = conn.SetReadDeadline(time.Now().Add(s.readTimeout)) }
		extend()
		conn.SetPingHandler(func(data string) error {
			extend()
			err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					yield(event.MarketEvent{}, ctx.Err())
					return
				}
				yield(event.MarketEvent{}, fmt.Errorf("%w: %w", domain.ErrStreamFault, domain.NewNetworkError("read "+string(s.kind), err)))
				return
			}
			extend()

			ev, err := decodeFrame(s.kind, symbol, msg)
			if errors.Is(err, errSkipFrame) {
				continue
			}
			if err != nil {
				yield(event.MarketEvent{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
