package binance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"futures_trader/internal/domain"
	"futures_trader/internal/event"
)

var upgrader = websocket.Upgrader{}

// wsServer replays frames on every connection and then keeps it open until the client leaves.
func wsServer(t *testing.T, frames ...string) (*httptest.Server, chan string) {
	t.Helper()
	paths := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, paths
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamSourceYieldsEvents(t *testing.T) {
	srv, paths := wsServer(t,
		`{"result":null,"id":1}`,
		`{"e":"aggTrade","E":1,"p":"100","q":"2","T":1,"m":false}`,
		`{"e":"aggTrade","E":2,"p":"101","q":"3","T":2,"m":true}`,
	)
	src := NewAggTradeSource(wsURL(srv))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []event.MarketEvent
	for ev, err := range src.Open(ctx, "BTCUSDT") {
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		got = append(got, ev)
		if len(got) == 2 {
			break
		}
	}

	if p := <-paths; p != "/btcusdt@aggTrade" {
		t.Errorf("Expected stream path /btcusdt@aggTrade, got %s", p)
	}
	if got[0].Trade.Price != 100 || got[1].Trade.Qty != 3 || !got[1].Trade.IsBuyerMaker {
		t.Errorf("Unexpected trades %+v %+v", got[0].Trade, got[1].Trade)
	}
}

func TestStreamSourceErrorFrame(t *testing.T) {
	srv, _ := wsServer(t, `{"e":"error","type":"Overloaded","m":"slow down"}`)
	src := NewKlineSource(wsURL(srv), "1m")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var last error
	for _, err := range src.Open(ctx, "BTCUSDT") {
		last = err
	}
	if !errors.Is(last, domain.ErrStreamFault) {
		t.Errorf("Expected ErrStreamFault, got %v", last)
	}
}

func TestStreamSourceCancel(t *testing.T) {
	srv, paths := wsServer(t)
	src := NewLiquidationSource(wsURL(srv))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-paths
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		var last error
		for _, err := range src.Open(ctx, "BTCUSDT") {
			last = err
		}
		done <- last
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Source did not stop after cancel")
	}
}

func TestStreamSourceReadTimeout(t *testing.T) {
	srv, _ := wsServer(t)
	src := NewAggTradeSource(wsURL(srv)).WithReadTimeout(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var last error
	for _, err := range src.Open(ctx, "BTCUSDT") {
		last = err
	}
	if !errors.Is(last, domain.ErrStreamFault) {
		t.Errorf("Expected ErrStreamFault on a stalled connection, got %v", last)
	}
	if !domain.IsRetriable(last) {
		t.Error("Expected stalled read to be retriable")
	}
}
