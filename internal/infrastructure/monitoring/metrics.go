// Package monitoring exposes the engine's Prometheus metrics: queue
// depth, worker loop latency, node status transitions, run completions,
// and event-log rotations. The server records only the HTTP request,
// workspace count and connected-runner collectors; the others are
// registered and exported but nothing records into them.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the engine registers.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WorkspacesActive   prometheus.Gauge
	ModQueueDepth      *prometheus.GaugeVec
	WorkerApplySeconds *prometheus.HistogramVec

	NodeStatusTransitionsTotal *prometheus.CounterVec
	RunsCreatedTotal           prometheus.Counter
	RunsCompletedTotal         prometheus.Counter
	RunsRejectedTotal          prometheus.Counter
	RunsActive                 prometheus.Gauge

	EventsPublishedTotal *prometheus.CounterVec
	EventLogRotations    prometheus.Counter

	RunnersConnected prometheus.Gauge
}

// New creates and registers every collector under namespace (defaulting
// to "graflow").
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "graflow"
	}

	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		WorkspacesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspaces_active",
			Help:      "Number of workspace contexts currently alive",
		}),
		ModQueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mod_queue_depth",
				Help:      "Pending mutations in a workspace's modification queue",
			},
			[]string{"workspace_id"},
		),
		WorkerApplySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_apply_seconds",
				Help:      "Time for the graph worker to apply one mutation record",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"kind"},
		),

		NodeStatusTransitionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "node_status_transitions_total",
				Help:      "Total number of node status transitions applied",
			},
			[]string{"to_status"},
		),
		RunsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_created_total",
			Help:      "Total number of runs accepted by the run controller",
		}),
		RunsCompletedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of runs that reached RUN_COMPLETE",
		}),
		RunsRejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_rejected_total",
			Help:      "Total number of /run requests rejected (cycle, empty selection, conflicting owner)",
		}),
		RunsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of runs currently registered across all workspaces",
		}),

		EventsPublishedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of domain events published on the event bus",
			},
			[]string{"kind"},
		),
		EventLogRotations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_log_rotations_total",
			Help:      "Total number of event-log rotations across all workspaces",
		}),

		RunnersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runners_connected",
			Help:      "Number of runner clients currently registered",
		}),
	}
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordApply records the time taken to apply one mutation of the given
// kind.
func (m *Metrics) RecordApply(kind string, duration time.Duration) {
	m.WorkerApplySeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordNodeTransition records a node entering toStatus.
func (m *Metrics) RecordNodeTransition(toStatus string) {
	m.NodeStatusTransitionsTotal.WithLabelValues(toStatus).Inc()
}

// RecordEvent records one event published on an event bus.
func (m *Metrics) RecordEvent(kind string) {
	m.EventsPublishedTotal.WithLabelValues(kind).Inc()
}
