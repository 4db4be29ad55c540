package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/openctemio/reposcan/internal/config"
	redisinfra "github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/logger"
)

// idleVisitorTTL is how long an IP bucket survives without traffic.
const idleVisitorTTL = 3 * time.Minute

// RateLimiter is an in-process token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	log      *logger.Logger

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter starts a limiter and its eviction loop.
func NewRateLimiter(cfg config.RateLimitConfig, log *logger.Logger) *RateLimiter {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(cfg.RequestsPerSec),
		burst:    cfg.Burst,
		log:      log,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go rl.evictLoop(interval)
	return rl
}

// Stop ends the eviction loop. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
	<-rl.stopped
}

func (rl *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

func (rl *RateLimiter) evictLoop(interval time.Duration) {
	defer close(rl.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if now.Sub(v.lastSeen) > idleVisitorTTL {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the bucket with 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			now := time.Now()
			limiter := rl.limiterFor(ip, now)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
			if !limiter.AllowN(now, 1) {
				RateLimitedTotal.WithLabelValues("ip").Inc()
				rl.log.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "request_id", GetRequestID(r.Context()))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")
				apierror.TooManyRequests("").WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}
			remaining := int(math.Max(0, math.Floor(limiter.TokensAt(now))))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit returns the per-IP middleware and its stop function. A disabled
// config yields a pass-through.
func RateLimit(cfg config.RateLimitConfig, log *logger.Logger) (func(http.Handler) http.Handler, func()) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, func() {}
	}
	rl := NewRateLimiter(cfg, log)
	return rl.Middleware(), rl.Stop
}

// WindowLimiter is a shared sliding-window limiter such as the Redis one.
type WindowLimiter interface {
	Allow(ctx context.Context, key string) (*redisinfra.RateLimitResult, error)
}

// LoginRateLimit throttles the credential endpoints per client IP. When the
// limiter itself fails the request is let through.
func LoginRateLimit(limiter WindowLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			res, err := limiter.Allow(r.Context(), "login:"+ip)
			if err != nil {
				log.Warn("login rate limiter unavailable", "error", err, "request_id", GetRequestID(r.Context()))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				RateLimitedTotal.WithLabelValues("login").Inc()
				retry := int(math.Ceil(time.Until(res.RetryAt).Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				apierror.TooManyRequests("Too many login attempts, try again later").
					WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of RemoteAddr. The router's RealIP
// middleware has already applied trusted proxy headers by then.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
