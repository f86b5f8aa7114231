package binance

import (
	"encoding/json"
	"time"
)

// Binance USD-M futures endpoints
const (
	RESTURLMainnet = "https://fapi.binance.com"
	RESTURLTestnet = "https://testnet.binancefuture.com"
	WSURLMainnet   = "wss://fstream.binance.com/ws"
	WSURLTestnet   = "wss://stream.binancefuture.com/ws"

	handshakeTimeout = 10 * time.Second
	readTimeout      = 10 * time.Minute
	writeWait        = 5 * time.Second
)

// wsKlineFrame is a <symbol>@kline_<interval> payload.
// Keys differing only in case are all declared so decoding never mixes them up.
type wsKlineFrame struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		OpenTime    int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Open        string `json:"o"`
		High        string `json:"h"`
		Low         string `json:"l"`
		LastTradeID int64  `json:"L"`
		Close       string `json:"c"`
		Volume      string `json:"v"`
		BuyVolume   string `json:"V"`
		Closed      bool   `json:"x"`
	} `json:"k"`
}

// wsAggTradeFrame is a <symbol>@aggTrade payload.
type wsAggTradeFrame struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Price        string `json:"p"`
	Qty          string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
	BestMatch    bool   `json:"M"`
}

// wsForceOrderFrame is a <symbol>@forceOrder payload.
type wsForceOrderFrame struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Order     struct {
		Symbol string `json:"s"`
		Side   string `json:"S"`
		Qty    string `json:"q"`
		Price  string `json:"p"`
	} `json:"o"`
}

// wsErrorFrame is an error notice pushed on the stream.
type wsErrorFrame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"m"`
}
