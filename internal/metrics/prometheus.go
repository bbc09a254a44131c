package metrics

import (
	"strconv"
	"sync"

	"github.com/arloliu/changefeed/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use, so constructing
// a PrometheusCollector that is never used leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	// processor metrics
	batchDocs       *prometheus.CounterVec
	batches         *prometheus.CounterVec
	handlerLatency  *prometheus.HistogramVec
	pollErrors      *prometheus.CounterVec
	maxItemCount    *prometheus.GaugeVec
	processorExits  *prometheus.CounterVec
	leaseOperations *prometheus.CounterVec
	leaseConflicts  *prometheus.CounterVec
	ownedLeases     prometheus.Gauge
	renewals        *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "changefeed" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "changefeed"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.batches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "batches_total",
			Help:      "Total change batches dispatched to the handler by partition.",
		}, []string{"partition"})

		p.batchDocs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "documents_total",
			Help:      "Total documents dispatched to the handler by partition.",
		}, []string{"partition"})

		p.handlerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "handler_duration_seconds",
			Help:      "Change handler execution time in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms .. ~3.8s
		}, []string{"partition"})

		p.pollErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "poll_errors_total",
			Help:      "Classified store faults observed while polling, by category.",
		}, []string{"partition", "category"})

		p.maxItemCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "max_item_count",
			Help:      "Effective max item count requested per page (0 = store default).",
		}, []string{"partition"})

		p.processorExits = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "processor",
			Name:      "exits_total",
			Help:      "Processor loop terminations by reason.",
		}, []string{"partition", "reason"})

		p.leaseOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "operations_total",
			Help:      "Lease manager operations by outcome.",
		}, []string{"op", "success"})

		p.leaseConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "lease",
			Name:      "conflicts_total",
			Help:      "Concurrency tag conflicts retried by the lease updater.",
		}, []string{"op"})

		p.ownedLeases = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "host",
			Name:      "owned_leases",
			Help:      "Number of leases currently owned by this host.",
		})

		p.renewals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "host",
			Name:      "renewals_total",
			Help:      "Lease renewal cycles by outcome.",
		}, []string{"success"})

		p.reg.MustRegister(p.batches)
		p.reg.MustRegister(p.batchDocs)
		p.reg.MustRegister(p.handlerLatency)
		p.reg.MustRegister(p.pollErrors)
		p.reg.MustRegister(p.maxItemCount)
		p.reg.MustRegister(p.processorExits)
		p.reg.MustRegister(p.leaseOperations)
		p.reg.MustRegister(p.leaseConflicts)
		p.reg.MustRegister(p.ownedLeases)
		p.reg.MustRegister(p.renewals)
	})
}

// RecordBatch counts a dispatched batch and observes handler latency.
func (p *PrometheusCollector) RecordBatch(partitionID string, documents int, duration float64) {
	p.ensureRegistered()
	p.batches.WithLabelValues(partitionID).Inc()
	p.batchDocs.WithLabelValues(partitionID).Add(float64(documents))
	p.handlerLatency.WithLabelValues(partitionID).Observe(duration)
}

// RecordPollError increments the poll error counter.
func (p *PrometheusCollector) RecordPollError(partitionID, category string) {
	p.ensureRegistered()
	p.pollErrors.WithLabelValues(partitionID, category).Inc()
}

// RecordMaxItemCount sets the effective max item count gauge.
func (p *PrometheusCollector) RecordMaxItemCount(partitionID string, count int) {
	p.ensureRegistered()
	p.maxItemCount.WithLabelValues(partitionID).Set(float64(count))
}

// RecordProcessorExit increments the processor exit counter.
func (p *PrometheusCollector) RecordProcessorExit(partitionID, reason string) {
	p.ensureRegistered()
	p.processorExits.WithLabelValues(partitionID, reason).Inc()
}

// RecordLeaseOperation increments the lease operation counter.
func (p *PrometheusCollector) RecordLeaseOperation(operation string, success bool) {
	p.ensureRegistered()
	p.leaseOperations.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

// RecordLeaseConflict increments the lease conflict counter.
func (p *PrometheusCollector) RecordLeaseConflict(operation string) {
	p.ensureRegistered()
	p.leaseConflicts.WithLabelValues(operation).Inc()
}

// RecordOwnedLeases sets the owned leases gauge.
func (p *PrometheusCollector) RecordOwnedLeases(count int) {
	p.ensureRegistered()
	p.ownedLeases.Set(float64(count))
}

// RecordRenewal increments the renewal counter.
func (p *PrometheusCollector) RecordRenewal(success bool) {
	p.ensureRegistered()
	p.renewals.WithLabelValues(strconv.FormatBool(success)).Inc()
}
