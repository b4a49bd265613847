// -----------------------------------------------------------------------
// Metrics - Prometheus sink for orchestration metrics
// -----------------------------------------------------------------------

package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harmony-svc/orchestrator/internal/interfaces"
)

const namespace = "harmony_services"

// PrometheusSink implements MetricsSink over a dedicated Prometheus
// registry. The configured client ID distinguishes environments sharing one
// scrape target.
type PrometheusSink struct {
	registry    *prometheus.Registry
	clientID    string
	failureRate *prometheus.GaugeVec
	dispatched  *prometheus.CounterVec
	completed   *prometheus.CounterVec
}

// NewPrometheusSink creates a sink with its own registry
func NewPrometheusSink(clientID string) *PrometheusSink {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &PrometheusSink{
		registry: registry,
		// Prometheus label values may carry hyphens; metric names may not
		clientID: clientID,
		failureRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failure_rate_percent",
			Help:      "Work item failure percentage per service over the lookback window",
		}, []string{"client_id", "service"}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_dispatched_total",
			Help:      "Work items handed to workers",
		}, []string{"client_id", "service"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "work_items_completed_total",
			Help:      "Terminal work item transitions by final status",
		}, []string{"client_id", "service", "status"}),
	}
	registry.MustRegister(s.failureRate, s.dispatched, s.completed)
	return s
}

func (s *PrometheusSink) PublishServiceFailureRate(serviceID string, percent float64) {
	s.failureRate.WithLabelValues(s.clientID, canonicalService(serviceID)).Set(percent)
}

func (s *PrometheusSink) RecordDispatch(serviceID string) {
	s.dispatched.WithLabelValues(s.clientID, canonicalService(serviceID)).Inc()
}

func (s *PrometheusSink) RecordCompletion(serviceID, status string) {
	s.completed.WithLabelValues(s.clientID, canonicalService(serviceID), status).Inc()
}

// Handler returns the scrape endpoint handler for this sink's registry
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// canonicalService strips the image tag from a service ID, so
// "harmonyservices/query-cmr:latest" and ":stable" publish as one series.
func canonicalService(serviceID string) string {
	if i := strings.LastIndex(serviceID, ":"); i > 0 {
		return serviceID[:i]
	}
	return serviceID
}

var _ interfaces.MetricsSink = (*PrometheusSink)(nil)
