// Package metrics defines the Prometheus collectors exported by the API server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finance"

// Metrics groups the application collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	probes            *prometheus.CounterVec
	recoveryRuns      *prometheus.CounterVec
	importedDocuments *prometheus.CounterVec
	importErrors      *prometheus.CounterVec
	syncRuns          *prometheus.CounterVec
	syncDocuments     *prometheus.CounterVec
	rpcRequests       *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		probes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "probes_total",
			Help:      "Collection probes by location convention and outcome.",
		}, []string{"location", "outcome"}),
		recoveryRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "runs_total",
			Help:      "Recovery runs by terminal state.",
		}, []string{"state"}),
		importedDocuments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "imported_documents_total",
			Help:      "Recovered documents imported into the live managers.",
		}, []string{"kind"}),
		importErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "import_errors_total",
			Help:      "Recovered documents rejected by the live managers.",
		}, []string{"kind"}),
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Cloud sync runs by direction and outcome.",
		}, []string{"direction", "outcome"}),
		syncDocuments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "documents_total",
			Help:      "Documents written to or read from the document store.",
		}, []string{"direction"}),
		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Connect RPC requests by procedure and result code.",
		}, []string{"procedure", "code"}),
		rpcDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Connect RPC latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveProbe(location, outcome string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(location, outcome).Inc()
}

func (m *Metrics) ObserveRecoveryRun(state string) {
	if m == nil {
		return
	}
	m.recoveryRuns.WithLabelValues(state).Inc()
}

func (m *Metrics) ObserveImport(kind string, imported, failed int) {
	if m == nil {
		return
	}
	m.importedDocuments.WithLabelValues(kind).Add(float64(imported))
	m.importErrors.WithLabelValues(kind).Add(float64(failed))
}

func (m *Metrics) ObserveSync(direction string, documents int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.syncRuns.WithLabelValues(direction, outcome).Inc()
	m.syncDocuments.WithLabelValues(direction).Add(float64(documents))
}

func (m *Metrics) ObserveRPC(procedure, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcDuration.WithLabelValues(procedure).Observe(elapsed.Seconds())
}
