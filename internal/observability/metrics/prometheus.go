package metrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

const namespace = "jobqueue"

// PrometheusObserver exports executor dispatch events as Prometheus metrics.
type PrometheusObserver struct {
	started   *prometheus.CounterVec
	finished  *prometheus.CounterVec
	discarded *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	inFlight  prometheus.Gauge
}

var _ Observer = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates the executor metrics and registers them with reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Jobs handed to a handler.",
		}, []string{"job_type"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Dispatches by the state the job moved to.",
		}, []string{"job_type", "state"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_discarded_total",
			Help:      "Results dropped because the job had already left processing, by the state it was found in.",
		}, []string{"job_type", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Handler execution time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_type"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently executing in this process.",
		}),
	}
	for _, c := range []prometheus.Collector{o.started, o.finished, o.discarded, o.duration, o.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) ObserveStart(jobType model.JobType) {
	o.inFlight.Inc()
	o.started.WithLabelValues(string(jobType)).Inc()
}

func (o *PrometheusObserver) ObserveFinish(jobType model.JobType, state model.JobState, elapsed time.Duration) {
	o.inFlight.Dec()
	o.finished.WithLabelValues(string(jobType), string(state)).Inc()
	o.duration.WithLabelValues(string(jobType)).Observe(elapsed.Seconds())
}

func (o *PrometheusObserver) ObserveDiscard(jobType model.JobType, current model.JobState) {
	o.inFlight.Dec()
	o.discarded.WithLabelValues(string(jobType), string(current)).Inc()
}

// StatsSource supplies the queue counters.
type StatsSource interface {
	Stats(ctx context.Context) (model.QueueStats, error)
}

// QueueStatsCollector reads the queue counters on every scrape.
type QueueStatsCollector struct {
	source  StatsSource
	timeout time.Duration
	logger  *slog.Logger

	jobs      *prometheus.Desc
	rate      *prometheus.Desc
	scrapeErr *prometheus.Desc
}

var _ prometheus.Collector = (*QueueStatsCollector)(nil)

// NewQueueStatsCollector builds the collector. A non-positive timeout defaults to 5s.
func NewQueueStatsCollector(source StatsSource, timeout time.Duration, logger *slog.Logger) (*QueueStatsCollector, error) {
	if source == nil {
		return nil, errors.New("stats source is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueStatsCollector{
		source:  source,
		timeout: timeout,
		logger:  logger,
		jobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "jobs"),
			"Jobs by state as tracked by the queue counters; state=\"total\" counts every job ever enqueued.",
			[]string{"state"}, nil,
		),
		rate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "rate"),
			"Completed or failed jobs over total jobs.",
			[]string{"kind"}, nil,
		),
		scrapeErr: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "scrape_error"),
			"1 when the last counter read failed.",
			nil, nil,
		),
	}, nil
}

func (c *QueueStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.rate
	ch <- c.scrapeErr
}

func (c *QueueStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		c.logger.Warn("queue stats scrape failed", "error", err)
		ch <- prometheus.MustNewConstMetric(c.scrapeErr, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErr, prometheus.GaugeValue, 0)

	byState := map[string]int64{
		"total":                          stats.TotalJobs,
		string(model.JobStateQueued):     stats.QueuedJobs,
		string(model.JobStateProcessing): stats.ProcessingJobs,
		string(model.JobStateRetrying):   stats.RetryingJobs,
		string(model.JobStateCompleted):  stats.CompletedJobs,
		string(model.JobStateFailed):     stats.FailedJobs,
		string(model.JobStateCancelled):  stats.CancelledJobs,
	}
	for state, v := range byState {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(v), state)
	}
	ch <- prometheus.MustNewConstMetric(c.rate, prometheus.GaugeValue, stats.SuccessRate, "success")
	ch <- prometheus.MustNewConstMetric(c.rate, prometheus.GaugeValue, stats.ErrorRate, "error")
}
