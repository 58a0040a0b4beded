// Package metrics exposes bridge activity in the Prometheus text format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"game-bridge/internal/protocol"
	"game-bridge/internal/router"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bridge"

// unknownOperation keeps unregistered names out of the label set.
const unknownOperation = "unknown"

// Bridge owns a private registry so several bridges can live in one process.
type Bridge struct {
	registry *prometheus.Registry

	requests            *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	operations          *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	scheduledExecuted   prometheus.Counter
	scheduledPending    prometheus.Gauge
	persistenceFailures *prometheus.CounterVec
}

// Probes are read at scrape time. Nil probes are skipped.
type Probes struct {
	Available func() bool
	Players   func() int
	// StoreHealthy reports the scheduled store backend, when it can fail
	// independently of the process.
	StoreHealthy func() bool
}

func New(probes Probes) *Bridge {
	b := &Bridge{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the bridge router.",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time spent serving bridge HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Dispatched operations by name and result code.",
		}, []string{"operation", "code"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation latency including the wait for the host thread.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		scheduledExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_commands_executed_total",
			Help:      "Scheduled commands handed to the host thread.",
		}),
		scheduledPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduled_commands_pending",
			Help:      "Scheduled commands waiting for their due time.",
		}),
		persistenceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Failed writes of the scheduled command store.",
		}, []string{"op"}),
	}

	b.registry.MustRegister(
		b.requests,
		b.requestDuration,
		b.operations,
		b.operationDuration,
		b.scheduledExecuted,
		b.scheduledPending,
		b.persistenceFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if probes.Available != nil {
		b.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "available",
			Help:      "1 while the bridge HTTP entry point is serving.",
		}, func() float64 {
			if probes.Available() {
				return 1
			}
			return 0
		}))
	}
	if probes.Players != nil {
		b.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_online",
			Help:      "Players in the bridge player cache.",
		}, func() float64 {
			return float64(probes.Players())
		}))
	}
	if probes.StoreHealthy != nil {
		b.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_healthy",
			Help:      "1 while the scheduled command store answers pings.",
		}, func() float64 {
			if probes.StoreHealthy() {
				return 1
			}
			return 0
		}))
	}
	return b
}

func (b *Bridge) Registry() *prometheus.Registry {
	return b.registry
}

// Handler serves the exposition format for this bridge's registry.
func (b *Bridge) Handler() http.Handler {
	return promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{})
}

// ObserveRequest has the router.Hook signature.
func (b *Bridge) ObserveRequest(ev router.Event) {
	b.requests.WithLabelValues(ev.Method, strconv.Itoa(ev.Status)).Inc()
	b.requestDuration.WithLabelValues(ev.Method).Observe(ev.Duration.Seconds())
}

func (b *Bridge) ObserveOperation(name string, code protocol.Code, d time.Duration) {
	if code == protocol.CodeOperationNotFound || name == "" {
		name = unknownOperation
	}
	label := string(code)
	if label == "" {
		label = "OK"
	}
	b.operations.WithLabelValues(name, label).Inc()
	b.operationDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (b *Bridge) ScheduledExecuted(n int) {
	b.scheduledExecuted.Add(float64(n))
}

func (b *Bridge) ScheduledPending(n int) {
	b.scheduledPending.Set(float64(n))
}

func (b *Bridge) PersistenceFailed(op string) {
	b.persistenceFailures.WithLabelValues(op).Inc()
}
