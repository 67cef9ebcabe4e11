package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nathanyu/polysim/internal/domain"
)

// Metrics groups the simulator's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// HTTPRequestDuration tracks request latency by method and path.
	HTTPRequestDuration *prometheus.HistogramVec

	// OrdersTotal counts accepted orders by side.
	OrdersTotal *prometheus.CounterVec

	// OrdersRejected counts orders the book refused.
	OrdersRejected prometheus.Counter

	// TradesTotal counts executed trades.
	TradesTotal prometheus.Counter

	// TradedVolume sums traded quantity.
	TradedVolume prometheus.Counter

	// TicksTotal counts completed simulation ticks.
	TicksTotal prometheus.Counter

	// OrderBookDepth tracks the number of price levels per side.
	OrderBookDepth *prometheus.GaugeVec

	// LastPrice is the most recent trade price.
	LastPrice prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path", "status"},
		),
		OrdersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "polysim_orders_total",
				Help: "Total number of orders accepted by the book, by side",
			},
			[]string{"side"},
		),
		OrdersRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "polysim_orders_rejected_total",
			Help: "Total number of orders rejected by the book",
		}),
		TradesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "polysim_trades_total",
			Help: "Total number of executed trades",
		}),
		TradedVolume: f.NewCounter(prometheus.CounterOpts{
			Name: "polysim_traded_volume_total",
			Help: "Total traded quantity",
		}),
		TicksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "polysim_ticks_total",
			Help: "Total number of completed simulation ticks",
		}),
		OrderBookDepth: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "polysim_orderbook_depth",
				Help: "Current number of price levels per side",
			},
			[]string{"side"},
		),
		LastPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "polysim_last_price",
			Help: "Most recent trade price",
		}),
	}
}

// ObserveOrder records an order accepted by the book.
func (m *Metrics) ObserveOrder(side domain.Side) {
	if m == nil {
		return
	}
	m.OrdersTotal.WithLabelValues(side.String()).Inc()
}

// ObserveRejected records an order refused by the book.
func (m *Metrics) ObserveRejected() {
	if m == nil {
		return
	}
	m.OrdersRejected.Inc()
}

// ObserveTrade records an executed trade.
func (m *Metrics) ObserveTrade(trade domain.Trade) {
	if m == nil {
		return
	}
	m.TradesTotal.Inc()
	m.TradedVolume.Add(trade.Quantity)
	m.LastPrice.Set(trade.Price)
}

// ObserveTick records the end of a tick and the book depth at that point.
func (m *Metrics) ObserveTick(bidLevels, askLevels int) {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
	m.OrderBookDepth.WithLabelValues(domain.SideBuy.String()).Set(float64(bidLevels))
	m.OrderBookDepth.WithLabelValues(domain.SideSell.String()).Set(float64(askLevels))
}

// GinMiddleware records request metrics.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		duration := time.Since(start).Seconds()

		m.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}
