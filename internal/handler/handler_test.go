package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nathanyu/polysim/internal/domain"
	"github.com/nathanyu/polysim/internal/marketdata"
)

func setupRouter(t *testing.T) (*gin.Engine, *marketdata.Publisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pub := marketdata.NewPublisher(2, nil)
	h := NewHandler("run-1", pub, nil)

	r := gin.New()
	h.RegisterRoutes(r)
	return r, pub
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func feed(pub *marketdata.Publisher) {
	pub.OnTrade(domain.TradeEvent{Seq: 1, Tick: 1, Trade: domain.Trade{BuyerID: 1, SellerID: 100, Price: 101, Quantity: 1}})
	pub.OnTrade(domain.TradeEvent{Seq: 2, Tick: 1, Trade: domain.Trade{BuyerID: 101, SellerID: 1, Price: 99, Quantity: 2}})
	pub.OnTickEnd(domain.TickReport{
		RunID: "run-1",
		Tick:  1,
		Book: domain.L2OrderBook{
			Bids: []domain.PriceLevel{{Price: 99, Quantity: 8}, {Price: 98, Quantity: 10}},
			Asks: []domain.PriceLevel{{Price: 101, Quantity: 9}},
		},
		Accounts: []domain.AccountView{
			{AgentID: 1, Cash: 1_000_000, Inventory: 10_000},
			{AgentID: 100, Cash: 10_101, Inventory: 99},
		},
	})
}

func TestHealth(t *testing.T) {
	r, _ := setupRouter(t)

	w := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "run-1", resp["run_id"])
}

func TestGetL2OrderBook(t *testing.T) {
	r, pub := setupRouter(t)
	feed(pub)

	w := get(t, r, "/v1/marketdata/orderBook/L2?depth=1")
	assert.Equal(t, http.StatusOK, w.Code)

	var book domain.L2OrderBook
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	require.Len(t, book.Bids, 1)
	assert.Equal(t, 99.0, book.Bids[0].Price)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, 101.0, book.Asks[0].Price)
}

func TestGetL2OrderBook_EmptyBook(t *testing.T) {
	r, _ := setupRouter(t)

	w := get(t, r, "/v1/marketdata/orderBook/L2?depth=abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"bids":[],"asks":[]}`, w.Body.String())
}

func TestGetSnapshot(t *testing.T) {
	r, pub := setupRouter(t)
	feed(pub)

	w := get(t, r, "/v1/marketdata/snapshot")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tick   uint64          `json:"tick"`
		Levels domain.Snapshot `json:"levels"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Tick)
	assert.Equal(t, domain.Snapshot{
		{Price: 98, Quantity: 10},
		{Price: 99, Quantity: 8},
		{Price: 101, Quantity: 9},
	}, resp.Levels)
}

func TestGetCandles(t *testing.T) {
	r, pub := setupRouter(t)
	feed(pub)

	w := get(t, r, "/v1/marketdata/candles?count=5")
	assert.Equal(t, http.StatusOK, w.Code)

	var candles []domain.Candlestick
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &candles))
	require.Len(t, candles, 1)
	assert.Equal(t, 101.0, candles[0].Open)
	assert.Equal(t, 99.0, candles[0].Close)
	assert.Equal(t, 3.0, candles[0].Volume)
}

func TestGetCandles_Empty(t *testing.T) {
	r, _ := setupRouter(t)

	w := get(t, r, "/v1/marketdata/candles")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestGetPrices(t *testing.T) {
	r, pub := setupRouter(t)
	feed(pub)

	w := get(t, r, "/v1/marketdata/prices")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"last":99,"history":[{"tick":1,"price":99}]}`, w.Body.String())
}

func TestGetTrades(t *testing.T) {
	r, pub := setupRouter(t)
	feed(pub)

	tests := []struct {
		name  string
		query string
		code  int
		count int
	}{
		{name: "all", query: "", code: http.StatusOK, count: 2},
		{name: "by agent", query: "?agent_id=100", code: http.StatusOK, count: 1},
		{name: "since seq", query: "?since=1", code: http.StatusOK, count: 1},
		{name: "unknown agent", query: "?agent_id=7", code: http.StatusOK, count: 0},
		{name: "bad agent", query: "?agent_id=x", code: http.StatusBadRequest},
		{name: "bad since", query: "?since=-1", code: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, r, "/v1/trades"+tt.query)
			require.Equal(t, tt.code, w.Code)
			if tt.code != http.StatusOK {
				return
			}
			var trades []domain.TradeEvent
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
			assert.Len(t, trades, tt.count)
		})
	}
}

func TestGetAgents(t *testing.T) {
	r, pub := setupRouter(t)

	w := get(t, r, "/v1/agents")
	assert.Equal(t, "[]", w.Body.String())

	feed(pub)
	w = get(t, r, "/v1/agents")
	assert.Equal(t, http.StatusOK, w.Code)

	var accounts []domain.AccountView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accounts))
	require.Len(t, accounts, 2)
	assert.Equal(t, uint64(100), accounts[1].AgentID)
	assert.Equal(t, 99.0, accounts[1].Inventory)
}

func TestStreamTrades(t *testing.T) {
	r, pub := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws/trades"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return pub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	pub.OnTrade(domain.TradeEvent{Seq: 5, Tick: 3, Trade: domain.Trade{BuyerID: 1, SellerID: 2, Price: 100, Quantity: 4}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type string            `json:"type"`
		Data domain.TradeEvent `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "trade", msg.Type)
	assert.Equal(t, uint64(5), msg.Data.Seq)
	assert.Equal(t, 4.0, msg.Data.Trade.Quantity)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return pub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
