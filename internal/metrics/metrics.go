package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	SourceManual = "manual"
	SourceSweep  = "sweep"
)

// Metrics holds the ledger collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	TradesOpened     *prometheus.CounterVec
	TradesClosed     *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	PriceUnavailable prometheus.Counter
	SweepFailures    prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TradesOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_trades_opened_total",
				Help: "Positions opened, by book",
			},
			[]string{"book"},
		),
		TradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_trades_closed_total",
				Help: "Positions closed, by book and close source",
			},
			[]string{"book", "source"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_sweep_duration_seconds",
				Help:    "Duration of one liquidation sweep cycle",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		PriceUnavailable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_sweep_price_unavailable_total",
				Help: "Sweep price lookups that returned no usable price",
			},
		),
		SweepFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_sweep_failures_total",
				Help: "Sweep cycles rolled back",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_http_requests_total",
				Help: "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
	}
	m.registry.MustRegister(
		m.TradesOpened,
		m.TradesClosed,
		m.SweepDuration,
		m.PriceUnavailable,
		m.SweepFailures,
		m.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument counts requests passing through next.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return promhttp.InstrumentHandlerCounter(m.HTTPRequests, next)
}

func (m *Metrics) TradeOpened(book string) {
	if m == nil {
		return
	}
	m.TradesOpened.WithLabelValues(book).Inc()
}

func (m *Metrics) TradeClosed(book, source string) {
	if m == nil {
		return
	}
	m.TradesClosed.WithLabelValues(book, source).Inc()
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

func (m *Metrics) SweepPriceUnavailable() {
	if m == nil {
		return
	}
	m.PriceUnavailable.Inc()
}

func (m *Metrics) SweepFailed() {
	if m == nil {
		return
	}
	m.SweepFailures.Inc()
}
