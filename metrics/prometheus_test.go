package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	rec.IncCounter(VerifyRejected, map[string]string{"network": "eth", "reason": "REPLAY_BLOCKED"})
	rec.IncCounter(VerifyRejected, map[string]string{"network": "eth", "reason": "REPLAY_BLOCKED"})
	rec.IncCounter(VerifyConfirmed, map[string]string{"network": "eth"})

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.counters.WithLabelValues(VerifyRejected, "eth", "REPLAY_BLOCKED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.counters.WithLabelValues(VerifyConfirmed, "eth", "")))

	rec.ObserveLatency("verify", 150*time.Millisecond, map[string]string{"network": "eth"})
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))
}

func TestPrometheusRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err)
}
