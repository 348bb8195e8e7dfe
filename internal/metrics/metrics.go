package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the process metrics on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	JobsProcessed *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	IngestedItems *prometheus.CounterVec
	ModelCalls    *prometheus.CounterVec
}

func New(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Background jobs processed, by type and outcome.",
		}, []string{"type", "outcome"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		IngestedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_items_total",
			Help:      "Items written to downstream stores, by store, kind and outcome.",
		}, []string{"store", "kind", "outcome"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Language model calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	reg.MustRegister(
		c.JobsProcessed,
		c.JobDuration,
		c.IngestedItems,
		c.ModelCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveJob(jobType, outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.JobsProcessed.WithLabelValues(jobType, outcome).Inc()
	c.JobDuration.WithLabelValues(jobType).Observe(took.Seconds())
}

func (c *Collector) Ingested(store, kind string, err error) {
	if c == nil {
		return
	}
	c.IngestedItems.WithLabelValues(store, kind, outcome(err)).Inc()
}

func (c *Collector) ModelCall(op string, err error) {
	if c == nil {
		return
	}
	c.ModelCalls.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
