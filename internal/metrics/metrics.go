// Package metrics exposes ingestion counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akave-ai/gameevents/internal/model"
)

const namespace = "gameevents"

type Metrics struct {
	records       *prometheus.CounterVec
	claimRetries  prometheus.Counter
	failOpen      prometheus.Counter
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// New registers the ingestion metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records processed, by outcome and skip reason.",
		}, []string{"outcome", "reason"}),
		claimRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claim_retries_total",
			Help:      "Dedup claim attempts retried after a store error.",
		}),
		failOpen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_failopen_total",
			Help:      "Duplicate checks that failed and were treated as not-a-duplicate.",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches handled, by status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent on one batch.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.records, m.claimRetries, m.failOpen, m.batches, m.batchDuration)
	return m
}

func (m *Metrics) ObserveOutcome(o model.Outcome) {
	m.records.WithLabelValues(string(o.Status), string(o.Reason)).Inc()
}

func (m *Metrics) ClaimRetry() { m.claimRetries.Inc() }

func (m *Metrics) FailOpen() { m.failOpen.Inc() }

func (m *Metrics) ObserveBatch(d time.Duration, fatal bool) {
	status := "ok"
	if fatal {
		status = "fatal"
	}
	m.batches.WithLabelValues(status).Inc()
	m.batchDuration.Observe(d.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
