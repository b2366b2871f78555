package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics{}

	// Should not panic
	m.Counter("test", 1)
	m.Gauge("test", 1.0)
	m.Timing("test", time.Second)
}

func TestInMemoryMetrics(t *testing.T) {
	t.Run("Counter", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Counter(MetricFiringsTotal, 1)
		m.Counter(MetricFiringsTotal, 1)
		m.Counter(MetricFiringsTotal, 1)

		assert.Equal(t, int64(3), m.GetCounter(MetricFiringsTotal))
	})

	t.Run("Counter with tags", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Counter(MetricFiringsTotal, 1, T("trigger", "job_completed"))
		m.Counter(MetricFiringsTotal, 1, T("trigger", "invoice_overdue"))
		m.Counter(MetricFiringsTotal, 1, T("trigger", "job_completed"))

		assert.Equal(t, int64(2), m.GetCounter(MetricFiringsTotal, T("trigger", "job_completed")))
		assert.Equal(t, int64(1), m.GetCounter(MetricFiringsTotal, T("trigger", "invoice_overdue")))
	})

	t.Run("Gauge", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Gauge(MetricQueueLag, 25.5)
		assert.Equal(t, 25.5, m.GetGauge(MetricQueueLag))

		m.Gauge(MetricQueueLag, 30.0)
		assert.Equal(t, 30.0, m.GetGauge(MetricQueueLag))
	})

	t.Run("Timing", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Timing(MetricFiringDuration, 100*time.Millisecond)
		m.Timing(MetricFiringDuration, 200*time.Millisecond)

		timings := m.GetTimings(MetricFiringDuration)
		assert.Len(t, timings, 2)
		assert.Contains(t, timings, 100*time.Millisecond)
		assert.Contains(t, timings, 200*time.Millisecond)
	})

	t.Run("Counters snapshot is a copy", func(t *testing.T) {
		m := NewInMemoryMetrics()
		m.Counter(MetricQueueDelivered, 2, T("channel", "sms"))

		snap := m.Counters()
		assert.Equal(t, int64(2), snap["callout.queue.delivered:channel=sms"])

		snap["callout.queue.delivered:channel=sms"] = 99
		assert.Equal(t, int64(2), m.GetCounter(MetricQueueDelivered, T("channel", "sms")))
	})

	t.Run("Reset", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Counter("test", 1)
		m.Gauge("test", 1.0)
		m.Timing("test", time.Second)

		m.Reset()

		assert.Equal(t, int64(0), m.GetCounter("test"))
		assert.Equal(t, 0.0, m.GetGauge("test"))
		assert.Empty(t, m.GetTimings("test"))
	})
}

func TestFormatKey(t *testing.T) {
	tests := []struct {
		name     string
		metric   string
		tags     []Tag
		expected string
	}{
		{
			name:     "no tags",
			metric:   "firings",
			tags:     nil,
			expected: "firings",
		},
		{
			name:     "single tag",
			metric:   "firings",
			tags:     []Tag{T("trigger", "job_completed")},
			expected: "firings:trigger=job_completed",
		},
		{
			name:     "multiple tags",
			metric:   "firings",
			tags:     []Tag{T("trigger", "job_completed"), T("status", "success")},
			expected: "firings:trigger=job_completed:status=success",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatKey(tt.metric, tt.tags)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTimer(t *testing.T) {
	t.Run("records duration and count", func(t *testing.T) {
		m := NewInMemoryMetrics()

		timer := StartTimer("queue.process_batch").WithMetrics(m)
		time.Sleep(time.Millisecond)
		d := timer.Stop()

		assert.Greater(t, d, time.Duration(0))
		assert.Equal(t, int64(1), m.GetCounter(MetricOperationTotal, T("operation", "queue.process_batch")))
		assert.Len(t, m.GetTimings(MetricOperationDuration, T("operation", "queue.process_batch")), 1)
		assert.Equal(t, int64(0), m.GetCounter(MetricOperationErrors, T("operation", "queue.process_batch")))
	})

	t.Run("counts errors", func(t *testing.T) {
		m := NewInMemoryMetrics()

		timer := StartTimer("queue.process_batch").WithMetrics(m)
		timer.StopWithError(errors.New("boom"))

		assert.Equal(t, int64(1), m.GetCounter(MetricOperationErrors, T("operation", "queue.process_batch")))
	})

	t.Run("extra tags are kept", func(t *testing.T) {
		m := NewInMemoryMetrics()

		StartTimer("firing").WithMetrics(m).WithTags(T("trigger", "job_completed")).Stop()

		assert.Equal(t, int64(1), m.GetCounter(MetricOperationTotal,
			T("trigger", "job_completed"), T("operation", "firing")))
	})

	t.Run("no metrics sink is a no-op", func(t *testing.T) {
		d := StartTimer("firing").Stop()
		assert.GreaterOrEqual(t, d, time.Duration(0))
	})
}
