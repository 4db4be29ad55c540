package redis

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfDay(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"midday", time.Date(2024, 3, 10, 13, 45, 0, 0, time.UTC), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"midnight", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"last second", time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, startOfDay(tt.in))
		})
	}
}

func TestQuotaCounter_BuildKey(t *testing.T) {
	q := &QuotaCounter{keyPrefix: "quota:scans"}
	key := q.buildKey("org-1", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "quota:scans:org-1:20240102", key)
}

func TestRetryBackoff(t *testing.T) {
	minDelay := 100 * time.Millisecond
	maxDelay := time.Second

	assert.Equal(t, 100*time.Millisecond, retryBackoff(minDelay, maxDelay, 0))
	assert.Equal(t, 400*time.Millisecond, retryBackoff(minDelay, maxDelay, 2))
	assert.Equal(t, time.Second, retryBackoff(minDelay, maxDelay, 10))
}

func TestNewCache_Validation(t *testing.T) {
	_, err := NewCache[string](nil, "plan", time.Minute)
	require.Error(t, err)

	c := &Client{}
	_, err = NewCache[string](c, "", time.Minute)
	require.Error(t, err)

	_, err = NewCache[string](c, "plan", 0)
	require.Error(t, err)

	cache, err := NewCache[string](c, "plan", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "plan:org-1", cache.buildKey("org-1"))
	assert.Equal(t, time.Minute, cache.TTL())
}

func TestMetrics_QuotaReservation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordQuotaReservation(true)
	m.RecordQuotaReservation(true)
	m.RecordQuotaReservation(false)

	var out dto.Metric
	require.NoError(t, m.quotaReserved.WithLabelValues("granted").Write(&out))
	assert.InDelta(t, 2, out.GetCounter().GetValue(), 0)

	require.NoError(t, m.quotaReserved.WithLabelValues("refused").Write(&out))
	assert.InDelta(t, 1, out.GetCounter().GetValue(), 0)
}
