// Package metrics exposes Prometheus instrumentation for the parser daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "rteval_parser_"

var jobsProcessedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "jobs_processed_total",
		Help: "Number of submissions that reached a terminal status",
	},
	[]string{"status"},
)

var jobDurationHist = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    prefix + "job_duration_seconds",
		Help:    "Time taken to parse and register one submission",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	},
)

var rowsInsertedCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "rows_inserted_total",
		Help: "Number of rows inserted, by table",
	},
	[]string{"table"},
)

var insertDurationHist = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    prefix + "insert_duration_seconds",
		Help:    "Time taken by one record set insert, by table",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	},
	[]string{"table"},
)

var insertErrorsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "insert_errors_total",
		Help: "Number of failed record set inserts, by table and support code",
	},
	[]string{"table", "code"},
)

var checkoutsCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "checkouts_total",
		Help: "Queue checkout attempts, by result (job, empty, error)",
	},
	[]string{"result"},
)

var queueJobsGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: prefix + "queue_jobs",
		Help: "Jobs in the submission queue, by status",
	},
	[]string{"status"},
)

var stuckJobsGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: prefix + "stuck_jobs",
		Help: "Jobs assigned or in progress for longer than the stuck threshold",
	},
)

var busyWorkersGauge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: prefix + "busy_workers",
		Help: "Workers currently processing a submission",
	},
)

// Checkout results.
const (
	CheckoutJob   = "job"
	CheckoutEmpty = "empty"
	CheckoutError = "error"
)

func RecordJob(status string, d time.Duration) {
	jobsProcessedCounter.WithLabelValues(status).Inc()
	jobDurationHist.Observe(d.Seconds())
}

// RecordInsert records one core insert call. code is empty on success.
func RecordInsert(table string, rows int, d time.Duration, code string) {
	insertDurationHist.WithLabelValues(table).Observe(d.Seconds())
	if code != "" {
		insertErrorsCounter.WithLabelValues(table, code).Inc()
		return
	}
	rowsInsertedCounter.WithLabelValues(table).Add(float64(rows))
}

func RecordCheckout(result string) {
	checkoutsCounter.WithLabelValues(result).Inc()
}

// SetQueueCounts replaces the per-status queue gauge. Statuses missing
// from counts are dropped.
func SetQueueCounts(counts map[string]int64) {
	queueJobsGauge.Reset()
	for status, n := range counts {
		queueJobsGauge.WithLabelValues(status).Set(float64(n))
	}
}

func SetStuckJobs(n int) {
	stuckJobsGauge.Set(float64(n))
}

func WorkerBusy() {
	busyWorkersGauge.Inc()
}

func WorkerIdle() {
	busyWorkersGauge.Dec()
}
