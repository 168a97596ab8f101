package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RubachokBoss/video-submission-checker/internal/models"
)

// Collector records submission outcomes. It satisfies the coordinator's
// observer interface.
type Collector struct {
	registry   *prometheus.Registry
	verdicts   *prometheus.CounterVec
	anomalies  *prometheus.CounterVec
	suspicious prometheus.Counter
	failures   *prometheus.CounterVec
	latency    prometheus.Histogram
}

func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Submissions classified, by status and duplicate reason.",
		}, []string{"status", "reason"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomaly labels raised.",
		}, []string{"label"}),
		suspicious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suspicious_total",
			Help:      "Submissions that raised the suspicious-worker condition.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processing_failures_total",
			Help:      "Submissions that failed without a verdict, by stage.",
		}, []string{"stage"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_seconds",
			Help:      "Time to produce and record a verdict.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}

	c.registry.MustRegister(
		c.verdicts,
		c.anomalies,
		c.suspicious,
		c.failures,
		c.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

func (c *Collector) ObserveDecision(d *models.Decision, elapsed time.Duration) {
	c.verdicts.WithLabelValues(d.Verdict.Status(), d.Verdict.DuplicateReason.String()).Inc()
	for _, l := range d.Verdict.Anomalies {
		c.anomalies.WithLabelValues(l.String()).Inc()
	}
	if d.Suspicious {
		c.suspicious.Inc()
	}
	c.latency.Observe(elapsed.Seconds())
}

func (c *Collector) ObserveFailure(stage string) {
	c.failures.WithLabelValues(stage).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
