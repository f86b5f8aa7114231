package feed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"futures_trader/internal/domain"
	"futures_trader/internal/event"
)

// DefaultCapacity is the size of the merged event channel.
const DefaultCapacity = 512

// Source is a live market data feed of one event kind.
// The sequence ends when ctx is cancelled or the connection fails.
type Source interface {
	Kind() event.Kind
	Open(ctx context.Context, symbol string) iter.Seq2[event.MarketEvent, error]
}

// HistorySource fetches the bootstrap candles.
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
}

type Config struct {
	Symbol       string
	Interval     string
	HistoryLimit int
	Capacity     int
}

// Stream merges the bootstrap history and every live source into one ordered channel
// with a single reader.
type Stream struct {
	cfg     Config
	history HistorySource
	sources []Source
	events  chan event.MarketEvent
	logger  *slog.Logger

	sendMu sync.Mutex
	seq    uint64

	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	stopOnce sync.Once
}

func NewStream(cfg Config, history HistorySource, sources ...Source) *Stream {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 500
	}
	return &Stream{
		cfg:     cfg,
		history: history,
		sources: sources,
		events:  make(chan event.MarketEvent, cfg.Capacity),
		logger:  slog.Default().With("module", "feed", "symbol", cfg.Symbol),
	}
}

// Events returns the merged channel. It is closed by Stop.
func (s *Stream) Events() <-chan event.MarketEvent {
	return s.events
}

// Len returns the number of queued events.
func (s *Stream) Len() int {
	return len(s.events)
}

// Start fetches history, enqueues the bootstrap event and launches one listener per source.
// A history failure returns domain.ErrDataUnavailable and launches nothing.
// A stopped stream cannot be started again.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("stream already stopped")
	}
	if s.started {
		return errors.New("stream already started")
	}

	s.logger.Info("Starting market data stream", slog.String("interval", s.cfg.Interval), slog.Int("sources", len(s.sources)))
	klines, err := s.history.FetchHistory(ctx, s.cfg.Symbol, s.cfg.Interval, s.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("%w: fetch history: %w", domain.ErrDataUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	if !s.send(runCtx, event.NewBootstrap(s.cfg.Symbol, klines)) {
		return ctx.Err()
	}

	for _, src := range s.sources {
		s.wg.Add(1)
		go s.listen(runCtx, src)
	}
	return nil
}

func (s *Stream) listen(ctx context.Context, src Source) {
	defer s.wg.Done()
	logger := s.logger.With("kind", string(src.Kind()))

	for ev, err := range src.Open(ctx, s.cfg.Symbol) {
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("Listener cancelled")
				return
			}
			logger.Error("Listener faulted", slog.Any("error", err))
			return
		}
		if !s.send(ctx, ev) {
			logger.Debug("Listener cancelled")
			return
		}
	}
	logger.Info("Listener ended")
}

// send enqueues ev, blocking while the channel is full. Sequence numbers follow channel order.
func (s *Stream) send(ctx context.Context, ev event.MarketEvent) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	ev.Seq = s.seq + 1
	select {
	case s.events <- ev:
		s.seq++
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop cancels every listener, waits for them to return, discards undelivered
// events and closes the channel. It is safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()

		dropped := 0
	drain:
		for {
			select {
			case <-s.events:
				dropped++
			default:
				break drain
			}
		}
		close(s.events)
		s.logger.Info("Market data stream stopped", slog.Int("dropped", dropped))
	})
}
