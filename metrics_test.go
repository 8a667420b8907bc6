package boxumco

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMetricsDisabledRecordsNothing(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.Inc(MetricRegistrationSuccess)
	m.Observe(MetricLoginLatency, time.Millisecond)

	assert.Zero(t, m.Value(MetricRegistrationSuccess))
	snap := m.Snapshot()
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Histograms)
}

func TestMetricsCountersUnderContention(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	var g errgroup.Group
	for w := 0; w < 16; w++ {
		g.Go(func() error {
			for i := 0; i < 2500; i++ {
				m.Inc(MetricRefreshSuccess)
				if i%5 == 0 {
					m.Inc(MetricRefreshFailure)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, uint64(16*2500), m.Value(MetricRefreshSuccess))
	assert.Equal(t, uint64(16*500), m.Value(MetricRefreshFailure))
}

func TestMetricsLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	// One sample per bucket, smallest to overflow.
	for _, d := range []time.Duration{
		5 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		time.Second,
		3 * time.Second,
	} {
		m.Observe(MetricLoginLatency, d)
	}
	// Observing a counter id is ignored.
	m.Observe(MetricLoginSuccess, time.Millisecond)

	snap := m.Snapshot()
	require.Len(t, snap.Histograms[MetricLoginLatency], HistogramBucketCount)
	for i, n := range snap.Histograms[MetricLoginLatency] {
		assert.Equalf(t, uint64(1), n, "bucket %d", i)
	}
	assert.NotContains(t, snap.Histograms, MetricLoginSuccess)
	assert.NotContains(t, snap.Counters, MetricLoginLatency)
}

func TestMetricsHistogramsNeedOptIn(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricRegistrationLatency, 2*time.Millisecond)
	m.Inc(MetricLoginFailure)

	snap := m.Snapshot()
	assert.Empty(t, snap.Histograms)
	assert.Equal(t, uint64(1), snap.Counters[MetricLoginFailure])
}

func TestEngineCountsAccountFlows(t *testing.T) {
	env := newTestEnv(t)
	env.registerActive(t, "metrics@example.com", "correct-horse-battery")
	ctx := context.Background()

	_, err := env.engine.Login(ctx, "metrics@example.com", "wrong-password-here")
	require.Error(t, err)
	_, err = env.engine.Login(ctx, "metrics@example.com", "correct-horse-battery")
	require.NoError(t, err)

	snap := env.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricRegistrationSuccess])
	assert.Equal(t, uint64(1), snap.Counters[MetricLoginSuccess])
	assert.Equal(t, uint64(1), snap.Counters[MetricLoginFailure])
}
