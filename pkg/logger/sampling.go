package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// SamplingConfig controls how repeated log messages are thinned out.
//
// Within each Tick, the first Threshold records sharing a level and message
// are always written. After that only every Every-th record is written.
// Records at warn level or above are never sampled, and neither are messages
// starting with one of the KeepPrefixes.
type SamplingConfig struct {
	Enabled      bool
	Tick         time.Duration
	Threshold    uint64
	Every        uint64
	KeepPrefixes []string
	// MaxKeys caps the number of distinct messages tracked per tick.
	MaxKeys int
}

// Sampling defaults.
const (
	DefaultSamplingThreshold = 100
	DefaultSamplingEvery     = 10
	DefaultSamplingMaxKeys   = 10000
)

var logsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reposcan",
		Subsystem: "logger",
		Name:      "logs_dropped_total",
		Help:      "Total number of log records dropped by sampling",
	},
	[]string{"level"},
)

type sampler struct {
	cfg SamplingConfig

	mu          sync.Mutex
	windowStart time.Time
	counts      map[string]uint64
}

type samplingHandler struct {
	next    slog.Handler
	sampler *sampler
}

// NewSamplingHandler wraps h with sampling. It returns h unchanged when
// sampling is disabled.
func NewSamplingHandler(h slog.Handler, cfg SamplingConfig) slog.Handler {
	if !cfg.Enabled {
		return h
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultSamplingThreshold
	}
	if cfg.Every == 0 {
		cfg.Every = DefaultSamplingEvery
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = DefaultSamplingMaxKeys
	}
	return &samplingHandler{
		next: h,
		sampler: &sampler{
			cfg:         cfg,
			windowStart: time.Now(),
			counts:      make(map[string]uint64),
		},
	}
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.sampler.keep(r, time.Now()) {
		logsDroppedTotal.WithLabelValues(levelLabel(r.Level)).Inc()
		return nil
	}
	return h.next.Handle(ctx, r)
}

// Derived handlers share the sampler so a message counts once regardless of
// the attributes attached to it.
func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{next: h.next.WithAttrs(attrs), sampler: h.sampler}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{next: h.next.WithGroup(name), sampler: h.sampler}
}

func (s *sampler) keep(r slog.Record, now time.Time) bool {
	if r.Level >= slog.LevelWarn {
		return true
	}
	for _, prefix := range s.cfg.KeepPrefixes {
		if strings.HasPrefix(r.Message, prefix) {
			return true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.windowStart) >= s.cfg.Tick {
		s.windowStart = now
		clear(s.counts)
	}

	key := r.Level.String() + ":" + r.Message
	n, tracked := s.counts[key]
	if !tracked && len(s.counts) >= s.cfg.MaxKeys {
		return true
	}
	n++
	s.counts[key] = n

	if n <= s.cfg.Threshold {
		return true
	}
	return (n-s.cfg.Threshold)%s.cfg.Every == 0
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// DroppedTotal returns the number of records dropped by sampling at level.
func DroppedTotal(level string) float64 {
	c, err := logsDroppedTotal.GetMetricWithLabelValues(level)
	if err != nil {
		return 0
	}
	var m dto.Metric
	if err := c.Write(&m); err != nil || m.Counter == nil {
		return 0
	}
	return m.Counter.GetValue()
}
