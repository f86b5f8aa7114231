package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "trader"

// Metrics holds the trader's Prometheus collectors on a private registry.
// All methods are safe on a nil receiver so metrics can be switched off.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	orders        *prometheus.CounterVec
	errors        *prometheus.CounterVec
	openPositions prometheus.Gauge
	lastPrice     prometheus.Gauge
	confidence    prometheus.Gauge
	composite     prometheus.Gauge
}

func NewMetrics(symbol string) *Metrics {
	labels := prometheus.Labels{"symbol": symbol}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "events_total",
			Help: "Market events consumed by kind", ConstLabels: labels,
		}, []string{"kind"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "decision_cycles_total",
			Help: "Closed-candle decision cycles by direction", ConstLabels: labels,
		}, []string{"direction"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "orders_total",
			Help: "Orders accepted by the gateway by status", ConstLabels: labels,
		}, []string{"status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "errors_total",
			Help: "Errors by stage", ConstLabels: labels,
		}, []string{"stage"}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "open_positions",
			Help: "Positions currently registered", ConstLabels: labels,
		}),
		lastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "last_price",
			Help: "Latest observed price", ConstLabels: labels,
		}),
		confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "signal_confidence",
			Help: "Confidence of the last decision", ConstLabels: labels,
		}),
		composite: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "signal_composite",
			Help: "Composite score of the last decision", ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.cycles, m.orders, m.errors,
		m.openPositions, m.lastPrice, m.confidence, m.composite,
	)
	return m
}

// Registry exposes the private registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterQueueDepth exports fn as the event queue depth gauge.
func (m *Metrics) RegisterQueueDepth(fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace, Name: "event_queue_depth",
		Help: "Events waiting in the market data channel",
	}, fn))
}

// RecordEvent counts one consumed event.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

// RecordPrice sets the latest price gauge.
func (m *Metrics) RecordPrice(price float64) {
	if m == nil {
		return
	}
	m.lastPrice.Set(price)
}

// RecordCycle records one decision and the resulting number of open positions.
func (m *Metrics) RecordCycle(direction string, confidence, composite float64, openPositions int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(direction).Inc()
	m.confidence.Set(confidence)
	m.composite.Set(composite)
	m.openPositions.Set(float64(openPositions))
}

// RecordOrder counts an accepted order by its exchange status.
func (m *Metrics) RecordOrder(status string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(status).Inc()
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(stage).Inc()
}
