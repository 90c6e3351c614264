package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-jobqueue/internal/domain/model"
)

type fakeStats struct {
	stats model.QueueStats
	err   error
}

func (f fakeStats) Stats(context.Context) (model.QueueStats, error) { return f.stats, f.err }

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver(reg)
	require.NoError(t, err)

	o.ObserveStart("email.send")
	o.ObserveStart("email.send")
	o.ObserveFinish("email.send", model.JobStateCompleted, 20*time.Millisecond)
	o.ObserveStart("email.send")
	o.ObserveDiscard("email.send", model.JobStateCancelled)

	assert.InDelta(t, 1, testutil.ToFloat64(o.inFlight), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(o.started.WithLabelValues("email.send")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.finished.WithLabelValues("email.send", "completed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.discarded.WithLabelValues("email.send", "cancelled")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(o.finished), "discard is not a finish")

	_, err = NewPrometheusObserver(reg)
	require.Error(t, err, "duplicate registration")
}

func TestQueueStatsCollector(t *testing.T) {
	c, err := NewQueueStatsCollector(fakeStats{stats: model.QueueStats{
		TotalJobs:     10,
		QueuedJobs:    3,
		CompletedJobs: 6,
		FailedJobs:    1,
		SuccessRate:   0.6,
		ErrorRate:     0.1,
	}}, time.Second, nil)
	require.NoError(t, err)

	expected := `
# HELP jobqueue_queue_rate Completed or failed jobs over total jobs.
# TYPE jobqueue_queue_rate gauge
jobqueue_queue_rate{kind="error"} 0.1
jobqueue_queue_rate{kind="success"} 0.6
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "jobqueue_queue_rate"))
	assert.Equal(t, 10, testutil.CollectAndCount(c))
}

func TestQueueStatsCollector_ScrapeError(t *testing.T) {
	c, err := NewQueueStatsCollector(fakeStats{err: errors.New("down")}, 0, nil)
	require.NoError(t, err)

	expected := `
# HELP jobqueue_queue_scrape_error 1 when the last counter read failed.
# TYPE jobqueue_queue_scrape_error gauge
jobqueue_queue_scrape_error 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "jobqueue_queue_scrape_error"))

	_, err = NewQueueStatsCollector(nil, 0, nil)
	require.Error(t, err)
}
