// Package metrics exports Cardigan's operational gauges/counters/histograms
// for the control API's GET /api/v1/metrics (SPEC_FULL §4.9), grounded on
// AltairaLabs-PromptKit's runtime/metrics/prometheus package: a private
// registry, one package-level collector per signal, and a small set of
// Record*/Set* functions called from the packages that produce the signal
// rather than having those packages import prometheus directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cardigan"

var (
	// jobsByStatus is a gauge of current job counts per status (spec §4.9
	// "per-status job gauges"), sampled periodically by pkg/queue's
	// WorkerPool against pkg/store.CountJobsByStatus.
	jobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_by_status",
			Help:      "Current number of jobs in each status",
		},
		[]string{"status"},
	)

	// queueDepth is a gauge of pending jobs awaiting a worker.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs currently pending",
		},
	)

	// tierCallsTotal counts phase runs per final tier/phase/outcome (spec
	// §4.9 "per-tier call counters"): pkg/queue increments it once per
	// phase.Runner.Run, labelled with the tier the run ended on, not once
	// per LLM call.
	tierCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_calls_total",
			Help:      "Total phase runs per final tier and phase",
		},
		[]string{"tier", "phase", "status"}, // status: success, error
	)

	// jobCostHistogram observes a job's actual cost on completion
	// (spec §4.9 "per-job cost histograms").
	jobCostHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_cost_usd",
			Help:      "Histogram of completed job cost in USD",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
	)

	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(jobsByStatus, queueDepth, tierCallsTotal, jobCostHistogram)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// SetJobsByStatus replaces the sampled per-status gauge values. Statuses
// absent from counts are not zeroed by this call; callers that want a
// clean reset pass a full map (pkg/queue's periodic sampler always does).
func SetJobsByStatus(counts map[string]int) {
	for status, count := range counts {
		jobsByStatus.WithLabelValues(status).Set(float64(count))
	}
}

// SetQueueDepth sets the pending-job gauge.
func SetQueueDepth(depth int) {
	queueDepth.Set(float64(depth))
}

// RecordTierCall increments the per-tier/phase call counter.
func RecordTierCall(tier, phase, status string) {
	tierCallsTotal.WithLabelValues(tier, phase, status).Inc()
}

// ObserveJobCost records one completed job's final actual cost.
func ObserveJobCost(cost float64) {
	jobCostHistogram.Observe(cost)
}

// Handler returns the http.Handler the control API mounts at
// GET /api/v1/metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
