package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"futures_trader/internal/domain"
	"futures_trader/internal/engine"
	"futures_trader/internal/execution"
	"futures_trader/internal/infra"
	"futures_trader/internal/infra/storage"
	"futures_trader/internal/strategy"
)

func openTestJournal(t *testing.T) *storage.Journal {
	t.Helper()
	j, err := storage.OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordCycleJournalsPositionLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	b := &Bootstrap{Symbol: "BTCUSDT", Journal: j, Metrics: infra.NewMetrics("BTCUSDT")}

	pos := domain.Position{
		Symbol:     "BTCUSDT",
		Direction:  domain.DirectionLong,
		EntryPrice: 30000,
		Quantity:   0.01,
		StopLoss:   29500,
		TakeProfit: 31000,
		OpenedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	b.recordCycle(ctx, engine.Cycle{
		Seq:      5,
		Symbol:   "BTCUSDT",
		Price:    30000,
		Decision: strategy.SignalDecision{Symbol: "BTCUSDT", Direction: domain.DirectionLong, Confidence: 0.7, Composite: 0.7, Reasons: []string{"trend up", "flow buy"}},
		Report: execution.Report{
			Opened:   true,
			Message:  execution.MsgOpened,
			Position: &pos,
			Orders:   []domain.OrderResult{{OrderID: 7, Status: "FILLED", Quantity: decimal.RequireFromString("0.01")}},
		},
	})

	open, err := j.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions failed: %v", err)
	}
	if len(open) != 1 || open[0].EntryOrderID != 7 {
		t.Fatalf("Expected one open position with entry order 7, got %+v", open)
	}

	b.recordCycle(ctx, engine.Cycle{
		Seq:      9,
		Symbol:   "BTCUSDT",
		Price:    30400,
		Decision: strategy.SignalDecision{Symbol: "BTCUSDT", Direction: domain.DirectionFlat},
		Report:   execution.Report{Closed: true, Message: execution.MsgClosedNeutral, Position: &pos},
	})

	open, _ = j.OpenPositions(ctx)
	if len(open) != 0 {
		t.Errorf("Expected no open positions, got %d", len(open))
	}
	history, err := j.PositionHistory(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("PositionHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].ClosePrice != 30400 || history[0].CloseReason != execution.MsgClosedNeutral {
		t.Errorf("Unexpected history %+v", history)
	}

	decisions, err := j.RecentDecisions(ctx, "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("RecentDecisions failed: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("Expected 2 decisions, got %d", len(decisions))
	}
	if decisions[1].Reasons != "trend up; flow buy" || decisions[1].Result != execution.MsgOpened {
		t.Errorf("Unexpected first decision %+v", decisions[1])
	}
	if decisions[0].Seq != 9 || decisions[0].Direction != "flat" {
		t.Errorf("Unexpected last decision %+v", decisions[0])
	}
}

func TestRecordProtectionFillClosesJournal(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	b := &Bootstrap{Symbol: "BTCUSDT", Journal: j, Metrics: infra.NewMetrics("BTCUSDT")}

	pos := domain.Position{Symbol: "BTCUSDT", Direction: domain.DirectionLong, EntryPrice: 30000, Quantity: 2, StopLoss: 29750, TakeProfit: 30400}
	b.recordCycle(ctx, engine.Cycle{
		Seq:    1,
		Symbol: "BTCUSDT",
		Price:  30000,
		Report: execution.Report{Opened: true, Message: execution.MsgOpened, Position: &pos, Orders: []domain.OrderResult{{OrderID: 1, Status: "FILLED"}}},
	})

	b.recordProtectionFill(ctx, pos, 29750)

	open, err := j.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions failed: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("Expected no open positions, got %d", len(open))
	}
	history, _ := j.PositionHistory(ctx, "BTCUSDT")
	if len(history) != 1 || history[0].ClosePrice != 29750 || history[0].CloseReason != MsgProtectionFilled {
		t.Errorf("Unexpected history %+v", history)
	}
}

func TestRecordCycleKeepsErrors(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)
	b := &Bootstrap{Symbol: "BTCUSDT", Journal: j}

	b.recordCycle(ctx, engine.Cycle{
		Seq:      3,
		Symbol:   "BTCUSDT",
		Decision: strategy.SignalDecision{Direction: domain.DirectionShort},
		Err:      fmt.Errorf("%w: margin", domain.ErrExchangeRejected),
	})

	decisions, _ := j.RecentDecisions(ctx, "BTCUSDT", 1)
	if len(decisions) != 1 || !strings.Contains(decisions[0].Error, "margin") {
		t.Errorf("Expected the error to be journaled, got %+v", decisions)
	}
}

func TestRecordCycleNotifies(t *testing.T) {
	bodies := make(chan map[string]any, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := &Bootstrap{Symbol: "BTCUSDT", Notifier: infra.NewWebhookNotifier(hook.URL)}
	go b.Notifier.Run(ctx)

	pos := domain.Position{Symbol: "BTCUSDT", Direction: domain.DirectionShort, EntryPrice: 100, Quantity: 2}
	b.recordCycle(ctx, engine.Cycle{Symbol: "BTCUSDT", Report: execution.Report{Message: execution.MsgHolding}})
	b.recordCycle(ctx, engine.Cycle{Symbol: "BTCUSDT", Report: execution.Report{Opened: true, Position: &pos}})
	b.recordCycle(ctx, engine.Cycle{Symbol: "BTCUSDT", Price: 95, Report: execution.Report{Closed: true, Message: execution.MsgReversal, Position: &pos}})

	for _, want := range []string{"Position opened", "Position closed"} {
		select {
		case body := <-bodies:
			if body["title"] != want {
				t.Errorf("Expected %q, got %v", want, body["title"])
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for %q", want)
		}
	}
}

// fakeBinance serves the REST and websocket endpoints a dry run touches.
func fakeBinance(t *testing.T, klineFrame string) (rest, ws *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timezone":"UTC","serverTime":1700000000000,
			"rateLimits":[{"rateLimitType":"REQUEST_WEIGHT","interval":"MINUTE","intervalNum":1,"limit":2400}],
			"symbols":[{"symbol":"BTCUSDT","pair":"BTCUSDT","status":"TRADING","filters":[
				{"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"0.10","maxPrice":"1000000"},
				{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"},
				{"filterType":"MARKET_LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"120"}]}]}`))
	})
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		rows := make([]string, 0, 30)
		for i := range 30 {
			open := int64(1700000000000) + int64(i)*60000
			c := 30000 + float64(i%5)*10
			rows = append(rows, fmt.Sprintf(`[%d,"%.1f","%.1f","%.1f","%.1f","10.0",%d,"300000.0",12,"5.0","150000.0","0"]`,
				open, c-5, c+20, c-20, c, open+59999))
		}
		w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	})
	rest = httptest.NewServer(mux)
	t.Cleanup(rest.Close)

	upgrader := websocket.Upgrader{}
	ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if strings.Contains(r.URL.Path, "@kline_") {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(klineFrame)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ws.Close)
	return rest, ws
}

func TestRunDryRunOnce(t *testing.T) {
	// closes the minute after the last history candle
	frame := `{"e":"kline","E":1700001860001,"s":"BTCUSDT","k":{"t":1700001800000,"T":1700001859999,"s":"BTCUSDT","i":"1m","o":"30040","c":"30055.5","h":"30070","l":"30030","v":"11","x":true}}`
	rest, ws := fakeBinance(t, frame)

	cfg := parseTestConfig(t, testConfig{
		receive: true,
		restURL: rest.URL,
		wsURL:   "ws" + strings.TrimPrefix(ws.URL, "http"),
	})
	j := openTestJournal(t)
	b := &Bootstrap{Config: cfg, Symbol: "BTCUSDT", Journal: j, Metrics: infra.NewMetrics("BTCUSDT")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := b.Run(ctx, true); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Expected Run to return after one cycle, not on timeout")
	}

	decisions, err := j.RecentDecisions(context.Background(), "BTCUSDT", 10)
	if err != nil {
		t.Fatalf("RecentDecisions failed: %v", err)
	}
	if len(decisions) != 1 {
		t.Fatalf("Expected 1 decision, got %d", len(decisions))
	}
	if decisions[0].Price != 30055.5 {
		t.Errorf("Expected decision at 30055.5, got %v", decisions[0].Price)
	}
	if decisions[0].Seq != 2 {
		t.Errorf("Expected the kline to be event 2, got %d", decisions[0].Seq)
	}
}

func TestRunUnknownSymbol(t *testing.T) {
	rest, ws := fakeBinance(t, `{}`)
	cfg := parseTestConfig(t, testConfig{
		receive: true,
		restURL: rest.URL,
		wsURL:   "ws" + strings.TrimPrefix(ws.URL, "http"),
	})
	b := &Bootstrap{Config: cfg, Symbol: "DOGEUSDT"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Run(ctx, true); !errors.Is(err, domain.ErrUnknownSymbol) {
		t.Errorf("Expected unknown symbol error, got %v", err)
	}
}
