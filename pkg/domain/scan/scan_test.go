package scan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

func newQueued(t *testing.T) *Scan {
	t.Helper()
	s, err := NewScan(shared.NewID(), shared.NewID(), shared.NewID(), "main", TriggerManual, nil)
	require.NoError(t, err)
	return s
}

func TestNewScan(t *testing.T) {
	s := newQueued(t)
	assert.Equal(t, StatusQueued, s.Status())
	assert.False(t, s.IsTerminal())
	assert.Nil(t, s.StartedAt())

	_, err := NewScan(shared.NewID(), shared.NewID(), shared.NewID(), "", TriggerManual, nil)
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewScan(shared.NewID(), shared.NewID(), shared.NewID(), "main", "cron", nil)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestScanLifecycle_Complete(t *testing.T) {
	s := newQueued(t)
	require.NoError(t, s.Start("abc123"))
	assert.Equal(t, StatusRunning, s.Status())
	assert.Equal(t, "abc123", s.CommitSHA())

	sum := Summary{High: 2, Low: 1}
	require.NoError(t, s.Complete(json.RawMessage(`{"ok":true}`), sum))
	assert.Equal(t, StatusCompleted, s.Status())
	assert.True(t, s.IsTerminal())
	assert.Equal(t, 3, s.Summary().Total())
	assert.NotNil(t, s.FinishedAt())
	assert.GreaterOrEqual(t, s.Duration().Nanoseconds(), int64(0))
}

func TestScanTransitions(t *testing.T) {
	tests := []struct {
		name string
		prep func(*Scan)
		op   func(*Scan) error
		ok   bool
	}{
		{"complete queued", func(*Scan) {}, func(s *Scan) error { return s.Complete(nil, Summary{}) }, false},
		{"fail queued", func(*Scan) {}, func(s *Scan) error { return s.Fail("x") }, false},
		{"cancel queued", func(*Scan) {}, (*Scan).Cancel, true},
		{"cancel running", func(s *Scan) { _ = s.Start("c") }, (*Scan).Cancel, true},
		{"fail running", func(s *Scan) { _ = s.Start("c") }, func(s *Scan) error { return s.Fail("boom") }, true},
		{"start running", func(s *Scan) { _ = s.Start("c") }, func(s *Scan) error { return s.Start("d") }, false},
		{"cancel canceled", func(s *Scan) { _ = s.Cancel() }, (*Scan).Cancel, false},
		{"start completed", func(s *Scan) { _ = s.Start("c"); _ = s.Complete(nil, Summary{}) }, func(s *Scan) error { return s.Start("d") }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newQueued(t)
			tt.prep(s)
			err := tt.op(s)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, shared.ErrConflict)
			}
		})
	}
}

func TestSummaryAdd(t *testing.T) {
	var s Summary
	for _, sev := range []string{"critical", "ERROR", "warning", "note", "none", "high"} {
		s.Add(sev)
	}
	assert.Equal(t, Summary{Critical: 1, High: 2, Medium: 1, Low: 1, Info: 1}, s)
}
