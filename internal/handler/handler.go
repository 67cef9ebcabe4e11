package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nathanyu/polysim/internal/domain"
	"github.com/nathanyu/polysim/internal/logging"
	"github.com/nathanyu/polysim/internal/marketdata"
)

const tradeStreamBuffer = 64

// Handler serves a read-only view of a running simulation. Every response
// comes from the publisher, never from the live book.
type Handler struct {
	runID     string
	publisher *marketdata.Publisher
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(runID string, publisher *marketdata.Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		runID:     runID,
		publisher: publisher,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:    logging.OrNop(logger).Named("http"),
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	v1 := r.Group("/v1")
	{
		v1.GET("/marketdata/orderBook/L2", h.GetL2OrderBook)
		v1.GET("/marketdata/snapshot", h.GetSnapshot)
		v1.GET("/marketdata/candles", h.GetCandles)
		v1.GET("/marketdata/prices", h.GetPrices)
		v1.GET("/trades", h.GetTrades)
		v1.GET("/agents", h.GetAgents)
		v1.GET("/ws/trades", h.StreamTrades)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "polysim",
		"run_id":  h.runID,
		"tick":    h.publisher.Latest().Tick,
	})
}

// GetL2OrderBook handles GET /v1/marketdata/orderBook/L2.
func (h *Handler) GetL2OrderBook(c *gin.Context) {
	depthStr := c.DefaultQuery("depth", "10")
	depth, err := strconv.Atoi(depthStr)
	if err != nil || depth <= 0 {
		depth = 10
	}

	book := h.publisher.Book(depth)
	if book.Bids == nil {
		book.Bids = []domain.PriceLevel{}
	}
	if book.Asks == nil {
		book.Asks = []domain.PriceLevel{}
	}
	c.JSON(http.StatusOK, book)
}

// GetSnapshot handles GET /v1/marketdata/snapshot.
func (h *Handler) GetSnapshot(c *gin.Context) {
	snapshot := h.publisher.Snapshot()
	if snapshot == nil {
		snapshot = domain.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{
		"tick":   h.publisher.Latest().Tick,
		"levels": snapshot,
	})
}

// GetCandles handles GET /v1/marketdata/candles.
func (h *Handler) GetCandles(c *gin.Context) {
	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		count = 100
	}

	candles := h.publisher.GetCandles(count)
	if candles == nil {
		candles = []*domain.Candlestick{}
	}

	c.JSON(http.StatusOK, candles)
}

// GetPrices handles GET /v1/marketdata/prices.
func (h *Handler) GetPrices(c *gin.Context) {
	history := h.publisher.PriceHistory()
	if history == nil {
		history = []domain.PricePoint{}
	}

	resp := gin.H{"history": history}
	if price, ok := h.publisher.LastPrice(); ok {
		resp["last"] = price
	}
	c.JSON(http.StatusOK, resp)
}

// GetTrades handles GET /v1/trades.
func (h *Handler) GetTrades(c *gin.Context) {
	agentID, ok := parseUintQuery(c, "agent_id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id must be an unsigned integer"})
		return
	}
	since, ok := parseUintQuery(c, "since")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be a trade sequence number"})
		return
	}

	trades := h.publisher.GetTrades(agentID, since)
	if trades == nil {
		trades = []domain.TradeEvent{}
	}

	c.JSON(http.StatusOK, trades)
}

// GetAgents handles GET /v1/agents.
func (h *Handler) GetAgents(c *gin.Context) {
	accounts := h.publisher.Latest().Accounts
	if accounts == nil {
		accounts = []domain.AccountView{}
	}
	c.JSON(http.StatusOK, accounts)
}

// StreamTrades handles GET /v1/ws/trades. Each trade is written as a JSON
// message until the client goes away.
func (h *Handler) StreamTrades(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.publisher.Subscribe(tradeStreamBuffer)
	defer h.publisher.Unsubscribe(sub)

	// Drain reads so a client close is noticed while no trades arrive.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(gin.H{"type": "trade", "data": event}); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

// parseUintQuery returns 0 when key is absent.
func parseUintQuery(c *gin.Context, key string) (uint64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
