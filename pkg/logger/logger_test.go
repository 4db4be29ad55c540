package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_RedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Output: &buf})

	log.Info("connect",
		"password", "hunter2",
		"scm_access_token", "ghp_abc",
		"email", "a@example.com",
		"plan", "PRO",
		"interval", "1m",
	)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, redacted, lines[0]["password"])
	assert.Equal(t, redacted, lines[0]["scm_access_token"])
	assert.Equal(t, redacted, lines[0]["email"])
	assert.Equal(t, "PRO", lines[0]["plan"])
	assert.Equal(t, "1m", lines[0]["interval"])
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf})

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, ContextKeyOrgID, "org-9")
	log.WithContext(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0]["request_id"])
	assert.Equal(t, "org-9", lines[0]["org_id"])
	assert.NotContains(t, lines[0], "user_id")
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info("quiet")
	log.Warn("loud")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "loud", lines[0]["msg"])
}

func TestFromContext(t *testing.T) {
	nop := NewNop()
	ctx := ToContext(context.Background(), nop)
	assert.Same(t, nop, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestSampling(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{
		Output: &buf,
		Sampling: SamplingConfig{
			Enabled:      true,
			Tick:         time.Hour,
			Threshold:    3,
			Every:        5,
			KeepPrefixes: []string{"audit:"},
		},
	})

	before := DroppedTotal("info")
	for i := 0; i < 13; i++ {
		log.Info("scan dispatched")
	}
	for i := 0; i < 5; i++ {
		log.Info("audit: plan changed")
		log.Warn("quota nearly exhausted")
	}

	lines := decodeLines(t, &buf)
	counts := map[string]int{}
	for _, l := range lines {
		counts[l["msg"].(string)]++
	}

	// 3 under threshold, then records 8 and 13.
	assert.Equal(t, 5, counts["scan dispatched"])
	assert.Equal(t, 5, counts["audit: plan changed"])
	assert.Equal(t, 5, counts["quota nearly exhausted"])
	assert.Equal(t, float64(8), DroppedTotal("info")-before)
}

func TestSampling_WindowReset(t *testing.T) {
	s := &sampler{
		cfg:         SamplingConfig{Tick: time.Second, Threshold: 1, Every: 100, MaxKeys: 10},
		windowStart: time.Unix(0, 0),
		counts:      map[string]uint64{},
	}
	now := time.Unix(0, 0)

	var r = newRecord("tick")
	assert.True(t, s.keep(r, now))
	assert.False(t, s.keep(r, now.Add(10*time.Millisecond)))
	assert.True(t, s.keep(r, now.Add(2*time.Second)))
}

func TestSampling_DisabledReturnsInner(t *testing.T) {
	inner := New(Config{Output: &bytes.Buffer{}}).Handler()
	assert.Equal(t, inner, NewSamplingHandler(inner, SamplingConfig{}))
}
