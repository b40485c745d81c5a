// Package metrics holds the Prometheus collectors shared by the API and worker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Prefix = "upscaled_"

var waitBuckets = []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

var throttleWaitHist = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    Prefix + "admission_throttle_wait_seconds",
		Help:    "Time a job waited for its arrival slot",
		Buckets: waitBuckets,
	},
)

var permitWaitHist = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    Prefix + "admission_permit_wait_seconds",
		Help:    "Time a job waited for a concurrency permit",
		Buckets: waitBuckets,
	},
)

var permitsInUse = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: Prefix + "admission_permits_in_use",
		Help: "Number of workers currently holding a permit",
	},
)

var runsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: Prefix + "runs_total",
		Help: "Number of worker runs by outcome",
	},
	[]string{"outcome"},
)

var runDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    Prefix + "run_duration_seconds",
		Help:    "Wall-clock duration of worker runs",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300, 600},
	},
	[]string{"outcome"},
)

var jobsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: Prefix + "jobs_total",
		Help: "Number of queued jobs processed by final status",
	},
	[]string{"status"},
)

// OutcomeOK labels a successful run; failures use the upscale error kind.
const OutcomeOK = "ok"

func RecordThrottleWait(d time.Duration) {
	throttleWaitHist.Observe(d.Seconds())
}

func RecordPermitWait(d time.Duration) {
	permitWaitHist.Observe(d.Seconds())
}

func PermitAcquired() {
	permitsInUse.Inc()
}

func PermitReleased() {
	permitsInUse.Dec()
}

func RecordRun(outcome string, d time.Duration) {
	runsCounter.WithLabelValues(outcome).Inc()
	runDurationHist.WithLabelValues(outcome).Observe(d.Seconds())
}

func RecordJob(status string) {
	jobsCounter.WithLabelValues(status).Inc()
}
