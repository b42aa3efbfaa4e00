package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreement_pipeline_runs_total",
			Help: "Pipeline runs by outcome (ok, error)",
		},
		[]string{"outcome"},
	)

	pipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agreement_pipeline_duration_seconds",
			Help:    "Wall time of a full ingest and aggregate run",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	corpusTriples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agreement_corpus_triples",
			Help: "Populated (round, group, category) triples in the most recent corpus",
		},
	)

	skippedGroups = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agreement_skipped_groups_total",
			Help: "Round/group directories skipped because they held no rating files",
		},
	)

	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agreement_cache_requests_total",
			Help: "Pipeline cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
)

// ObservePipelineRun records one pipeline run.
func ObservePipelineRun(d time.Duration, triples int, err error) {
	pipelineDuration.Observe(d.Seconds())
	if err != nil {
		pipelineRuns.WithLabelValues("error").Inc()
		return
	}
	pipelineRuns.WithLabelValues("ok").Inc()
	corpusTriples.Set(float64(triples))
}

// ObserveSkippedGroup counts a round/group without rating files.
func ObserveSkippedGroup() { skippedGroups.Inc() }

// ObserveCache counts a cache lookup; result is "hit", "miss" or "error".
func ObserveCache(result string) { cacheRequests.WithLabelValues(result).Inc() }
