package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Instrumentation receives bookkeeping events from the risk components.
// Implementations must be safe for concurrent use.
type Instrumentation interface {
	GateEvaluated(approved bool, violationTypes []string, elapsed time.Duration)
	BreakerTransition(name, from, to string)
	KillSwitchChanged(active bool)
	AlertProcessed(category, priority string, delivered bool)
	OperationCompleted(operation string, err error, elapsed time.Duration)
	PendingOrders(count int, exposure float64)
}

// Nop discards all events
type Nop struct{}

func (Nop) GateEvaluated(bool, []string, time.Duration)     {}
func (Nop) BreakerTransition(string, string, string)        {}
func (Nop) KillSwitchChanged(bool)                          {}
func (Nop) AlertProcessed(string, string, bool)             {}
func (Nop) OperationCompleted(string, error, time.Duration) {}
func (Nop) PendingOrders(int, float64)                      {}

// OrNop returns inst, or Nop when inst is nil
func OrNop(inst Instrumentation) Instrumentation {
	if inst == nil {
		return Nop{}
	}
	return inst
}

// PrometheusInstrumentation records events as Prometheus metrics on its own registry
type PrometheusInstrumentation struct {
	registry *prometheus.Registry

	decisionsTotal    *prometheus.CounterVec
	violationsTotal   *prometheus.CounterVec
	decisionLatency   prometheus.Histogram
	breakerTransition *prometheus.CounterVec
	breakerOpen       *prometheus.GaugeVec
	killSwitchActive  prometheus.Gauge
	alertsTotal       *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	pendingOrders     prometheus.Gauge
	pendingExposure   prometheus.Gauge
}

// NewPrometheusInstrumentation creates and registers all trade guard metrics
func NewPrometheusInstrumentation() *PrometheusInstrumentation {
	p := &PrometheusInstrumentation{
		registry: prometheus.NewRegistry(),

		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_guard_decisions_total",
				Help: "Total number of gate decisions",
			},
			[]string{"result"},
		),
		violationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_guard_violations_total",
				Help: "Total number of limit violations by type",
			},
			[]string{"type"},
		),
		decisionLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trade_guard_decision_seconds",
				Help:    "Gate evaluation latency",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		breakerTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_guard_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"name", "from", "to"},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trade_guard_breaker_open",
				Help: "1 when the named circuit breaker is open",
			},
			[]string{"name"},
		),
		killSwitchActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trade_guard_kill_switch_active",
				Help: "1 while trading is halted",
			},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_guard_alerts_total",
				Help: "Alerts processed by the dispatcher",
			},
			[]string{"category", "priority", "result"},
		),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_guard_operations_total",
				Help: "Registry operations executed",
			},
			[]string{"operation", "result"},
		),
		operationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trade_guard_operation_seconds",
				Help:    "Registry operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		pendingOrders: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trade_guard_pending_orders",
				Help: "Approved orders awaiting fill or cancel",
			},
		),
		pendingExposure: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trade_guard_pending_exposure",
				Help: "Notional of approved orders awaiting fill or cancel",
			},
		),
	}

	p.registry.MustRegister(
		p.decisionsTotal,
		p.violationsTotal,
		p.decisionLatency,
		p.breakerTransition,
		p.breakerOpen,
		p.killSwitchActive,
		p.alertsTotal,
		p.operationsTotal,
		p.operationLatency,
		p.pendingOrders,
		p.pendingExposure,
	)
	return p
}

// Registry exposes the underlying registry
func (p *PrometheusInstrumentation) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the Prometheus metrics endpoint
func (p *PrometheusInstrumentation) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// GateEvaluated records a gate decision
func (p *PrometheusInstrumentation) GateEvaluated(approved bool, violationTypes []string, elapsed time.Duration) {
	result := "approved"
	if !approved {
		result = "rejected"
	}
	p.decisionsTotal.WithLabelValues(result).Inc()
	for _, v := range violationTypes {
		p.violationsTotal.WithLabelValues(v).Inc()
	}
	p.decisionLatency.Observe(elapsed.Seconds())
}

// BreakerTransition records a breaker state change
func (p *PrometheusInstrumentation) BreakerTransition(name, from, to string) {
	p.breakerTransition.WithLabelValues(name, from, to).Inc()
	open := 0.0
	if to == "OPEN" {
		open = 1
	}
	p.breakerOpen.WithLabelValues(name).Set(open)
}

// KillSwitchChanged records the kill switch state
func (p *PrometheusInstrumentation) KillSwitchChanged(active bool) {
	if active {
		p.killSwitchActive.Set(1)
		return
	}
	p.killSwitchActive.Set(0)
}

// AlertProcessed records a dispatcher outcome
func (p *PrometheusInstrumentation) AlertProcessed(category, priority string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "suppressed"
	}
	p.alertsTotal.WithLabelValues(category, priority, result).Inc()
}

// OperationCompleted records a registry operation
func (p *PrometheusInstrumentation) OperationCompleted(operation string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.operationsTotal.WithLabelValues(operation, result).Inc()
	p.operationLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// PendingOrders records the pending order arena size
func (p *PrometheusInstrumentation) PendingOrders(count int, exposure float64) {
	p.pendingOrders.Set(float64(count))
	p.pendingExposure.Set(exposure)
}
