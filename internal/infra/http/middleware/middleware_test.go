package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/internal/config"
	redisinfra "github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/jwt"
	"github.com/openctemio/reposcan/pkg/logger"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type errorBody struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details"`
	RequestID string          `json:"request_id"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"generated when absent", "", false},
		{"client value reused", "req-123", true},
		{"oversized value replaced", strings.Repeat("x", 200), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
			if tt.keep {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.NotEqual(t, tt.header, seen)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	h := RequestID()(Recovery(logger.NewNop(), true)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.NotEmpty(t, body.RequestID)
}

func TestCORS(t *testing.T) {
	cfg := config.CORSConfig{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}
	h := CORS(cfg)(http.HandlerFunc(ok))

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/scans", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(SecurityHeadersConfig{HSTSEnabled: true})(http.HandlerFunc(ok)).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "max-age=31536000", rec.Header().Get("Strict-Transport-Security"))
}

func TestBodyLimit(t *testing.T) {
	h := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("much longer than eight")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	rec := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "TIMEOUT", decodeError(t, rec).Code)

	rec = httptest.NewRecorder()
	Timeout(time.Second)(http.HandlerFunc(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDecompress(t *testing.T) {
	payload := []byte(`{"version":"2.1.0","runs":[]}`)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write(payload)
	require.NoError(t, gw.Close())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	zs := enc.EncodeAll(payload, nil)
	require.NoError(t, enc.Close())

	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Content-Encoding"))
		_, _ = io.Copy(w, r.Body)
	})

	tests := []struct {
		name     string
		encoding string
		body     []byte
		cfg      DecompressConfig
		status   int
	}{
		{"plain", "", payload, DefaultDecompressConfig(), http.StatusOK},
		{"gzip", "gzip", gz.Bytes(), DefaultDecompressConfig(), http.StatusOK},
		{"zstd", "zstd", zs, DefaultDecompressConfig(), http.StatusOK},
		{"unsupported", "br", payload, DefaultDecompressConfig(), http.StatusUnsupportedMediaType},
		{"corrupt gzip", "gzip", []byte("not gzip"), DefaultDecompressConfig(), http.StatusBadRequest},
		{"too large", "gzip", gz.Bytes(), DecompressConfig{MaxCompressedSize: 1 << 20, MaxDecompressedSize: 4, MaxRatio: 100}, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(tt.body))
			if tt.encoding != "" {
				req.Header.Set("Content-Encoding", tt.encoding)
			}
			rec := httptest.NewRecorder()
			Decompress(tt.cfg)(echo).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, payload, rec.Body.Bytes())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	mw, stop := RateLimit(config.RateLimitConfig{Enabled: true, RequestsPerSec: 0.001, Burst: 2, CleanupInterval: time.Minute}, logger.NewNop())
	defer stop()
	h := mw(http.HandlerFunc(ok))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "198.51.100.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	mw, stop := RateLimit(config.RateLimitConfig{}, logger.NewNop())
	stop()
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(ok)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type stubWindow struct {
	keys   []string
	result *redisinfra.RateLimitResult
	err    error
}

func (s *stubWindow) Allow(_ context.Context, key string) (*redisinfra.RateLimitResult, error) {
	s.keys = append(s.keys, key)
	return s.result, s.err
}

func TestLoginRateLimit(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		lim := &stubWindow{result: &redisinfra.RateLimitResult{Allowed: false, RetryAt: time.Now().Add(30 * time.Second)}}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		LoginRateLimit(lim, logger.NewNop())(http.HandlerFunc(ok)).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, []string{"login:203.0.113.9"}, lim.keys)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("limiter failure lets the request through", func(t *testing.T) {
		lim := &stubWindow{err: errors.New("redis down")}
		rec := httptest.NewRecorder()
		LoginRateLimit(lim, logger.NewNop())(http.HandlerFunc(ok)).
			ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func newTokens(t *testing.T, role string) (*jwt.Generator, string, shared.ID, shared.ID) {
	t.Helper()
	gen := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               "test-secret-that-is-long-enough-for-hs256",
		Issuer:               "reposcan-test",
		AccessTokenDuration:  time.Minute,
		RefreshTokenDuration: time.Hour,
	})
	userID, orgID := shared.NewID(), shared.NewID()
	pair, err := gen.GenerateTokenPair(jwt.Identity{
		UserID: userID.String(),
		Email:  "ada@example.com",
		OrgID:  orgID.String(),
		Role:   role,
	})
	require.NoError(t, err)
	return gen, pair.AccessToken, userID, orgID
}

func TestAuthenticate(t *testing.T) {
	gen, token, userID, orgID := newTokens(t, "member")

	var actor app.Actor
	h := Authenticate(gen)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ = ActorFrom(r)
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, userID, actor.UserID)
		assert.Equal(t, orgID, actor.OrgID)
		assert.Equal(t, organization.RoleMember, actor.Role)
		assert.Equal(t, "ada@example.com", actor.Email)
	})

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer not-a-jwt"} {
		t.Run("rejects "+header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireOrgRole(t *testing.T) {
	tests := []struct {
		role   string
		min    organization.Role
		status int
	}{
		{"owner", organization.RoleOwner, http.StatusOK},
		{"admin", organization.RoleOwner, http.StatusForbidden},
		{"admin", organization.RoleAdmin, http.StatusOK},
		{"viewer", organization.RoleMember, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.role+">="+tt.min.String(), func(t *testing.T) {
			gen, token, _, _ := newTokens(t, tt.role)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			Authenticate(gen)(RequireOrgRole(tt.min)(http.HandlerFunc(ok))).ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

type stubChecker struct{ err error }

func (s stubChecker) Authorize(context.Context, app.Actor, string) error { return s.err }

func TestRequirePermission(t *testing.T) {
	gen, token, _, _ := newTokens(t, "member")

	run := func(checker PermissionChecker) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		Authenticate(gen)(RequirePermission(checker, plan.PermScanSchedule, logger.NewNop())(http.HandlerFunc(ok))).
			ServeHTTP(rec, req)
		return rec
	}

	t.Run("allowed", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, run(stubChecker{}).Code)
	})

	t.Run("plan restricted", func(t *testing.T) {
		rec := run(stubChecker{err: &app.PlanRestrictedError{Plan: plan.Starter, Permission: plan.PermScanSchedule, Required: plan.Pro}})
		require.Equal(t, http.StatusForbidden, rec.Code)

		body := decodeError(t, rec)
		assert.Equal(t, "PLAN_UPGRADE_REQUIRED", body.Code)
		assert.JSONEq(t, `{"current_plan":"STARTER","permission":"SCAN:SCHEDULE","required_plan":"PRO"}`, string(body.Details))
	})

	t.Run("lookup failure", func(t *testing.T) {
		assert.Equal(t, http.StatusInternalServerError, run(stubChecker{err: errors.New("db down")}).Code)
	})
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/scans/{id}/results",
		NormalizePath("/api/v1/scans/0b8e5c1e-7a43-4c53-9a0f-3c1d2f6e9a10/results"))
	assert.Equal(t, "/api/v1/plans", NormalizePath("/api/v1/plans"))
}
