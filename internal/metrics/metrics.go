// Package metrics records engine activity as Prometheus metrics and keeps
// graph execution statistics for the /stats endpoint.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/specialistvlad/valuegrid/internal/job"
)

// sampleSize bounds the job durations kept for statistics.
const sampleSize = 1024

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	graphsBuilt    *prometheus.CounterVec
	graphNodes     prometheus.Histogram
	jobsTotal      *prometheus.CounterVec
	jobDuration    prometheus.Histogram
	jobRetries     prometheus.Counter
	itemsTotal     *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	cyclesTotal    *prometheus.CounterVec
	unsatisfiables prometheus.Counter

	mu        sync.Mutex
	processed int
	executed  int
	jobs      int
	items     int
	durations []float64
	next      int
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		graphsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuegrid", Name: "graphs_built_total",
			Help: "Dependency graphs built, by calculation configuration.",
		}, []string{"calc_config"}),
		graphNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "valuegrid", Name: "graph_nodes",
			Help:    "Number of nodes per dependency graph.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuegrid", Name: "jobs_total",
			Help: "Calculation jobs completed, by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "valuegrid", Name: "job_duration_seconds",
			Help:    "Time spent executing a calculation job on a node.",
			Buckets: prometheus.DefBuckets,
		}),
		jobRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "valuegrid", Name: "job_retries_total",
			Help: "Calculation jobs re-dispatched after a node failure.",
		}),
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuegrid", Name: "job_items_total",
			Help: "Function invocations, by status.",
		}, []string{"status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuegrid", Name: "cache_lookups_total",
			Help: "View computation cache lookups, by tier and result.",
		}, []string{"tier", "result"}),
		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "valuegrid", Name: "cycles_total",
			Help: "Calculation configuration executions, by final state.",
		}, []string{"state"}),
		unsatisfiables: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "valuegrid", Name: "unsatisfied_requirements_total",
			Help: "Requested values no function could produce.",
		}),
	}
	m.registry.MustRegister(m.graphsBuilt, m.graphNodes, m.jobsTotal, m.jobDuration, m.jobRetries,
		m.itemsTotal, m.cacheLookups, m.cyclesTotal, m.unsatisfiables)
	return m
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GraphBuilt records a compiled graph.
func (m *Metrics) GraphBuilt(calcConfig string, nodes, failures int) {
	if m == nil {
		return
	}
	m.graphsBuilt.WithLabelValues(calcConfig).Inc()
	m.graphNodes.Observe(float64(nodes))
	m.unsatisfiables.Add(float64(failures))

	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

// GraphExecuted records a graph whose jobs have all finished.
func (m *Metrics) GraphExecuted(state string) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(state).Inc()

	m.mu.Lock()
	m.executed++
	m.mu.Unlock()
}

// JobRetried records a re-dispatch.
func (m *Metrics) JobRetried() {
	if m == nil {
		return
	}
	m.jobRetries.Inc()
}

// JobCompleted records the result of one job.
func (m *Metrics) JobCompleted(result *job.CalculationJobResult) {
	if m == nil || result == nil {
		return
	}
	outcome := "success"
	switch {
	case result.Failure != nil:
		outcome = "failure"
	case !result.Succeeded():
		outcome = "partial"
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(result.Duration.Seconds())
	for _, item := range result.Items {
		m.itemsTotal.WithLabelValues(item.Status.String()).Inc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs++
	m.items += len(result.Items)
	ms := float64(result.Duration) / float64(time.Millisecond)
	if len(m.durations) < sampleSize {
		m.durations = append(m.durations, ms)
	} else {
		m.durations[m.next] = ms
		m.next = (m.next + 1) % sampleSize
	}
}

// CacheLookup implements cache.Observer.
func (m *Metrics) CacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

// Statistics summarizes graph execution since startup.
type Statistics struct {
	ProcessedGraphs int     `json:"processed_graphs"`
	ExecutedGraphs  int     `json:"executed_graphs"`
	Jobs            int     `json:"jobs"`
	AverageJobSize  float64 `json:"average_job_size"`
	MeanJobMillis   float64 `json:"mean_job_ms"`
	P95JobMillis    float64 `json:"p95_job_ms"`
}

// Snapshot returns the current statistics. Durations cover the most recent
// jobs only.
func (m *Metrics) Snapshot() Statistics {
	if m == nil {
		return Statistics{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Statistics{ProcessedGraphs: m.processed, ExecutedGraphs: m.executed, Jobs: m.jobs}
	if m.jobs > 0 {
		s.AverageJobSize = float64(m.items) / float64(m.jobs)
	}
	if len(m.durations) > 0 {
		s.MeanJobMillis, _ = stats.Mean(m.durations)
		s.P95JobMillis, _ = stats.Percentile(m.durations, 95)
	}
	return s
}
