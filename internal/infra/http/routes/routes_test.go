package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/internal/config"
	infrahttp "github.com/openctemio/reposcan/internal/infra/http"
	"github.com/openctemio/reposcan/internal/infra/http/handler"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	redisinfra "github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/internal/infra/websocket"
	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/jwt"
	"github.com/openctemio/reposcan/pkg/logger"
)

// starterPlan grants what the Starter plan grants.
type starterPlan struct{}

func (starterPlan) Authorize(_ context.Context, _ app.Actor, perm string) error {
	if ok, _ := plan.HasPermission(plan.Starter, perm); ok {
		return nil
	}
	required, _ := plan.MinimumPlanFor(perm)
	return &app.PlanRestrictedError{Plan: plan.Starter, Permission: perm, Required: required}
}

// noPlan grants nothing, as for an organization whose plan was revoked.
type noPlan struct{}

func (noPlan) Authorize(_ context.Context, _ app.Actor, perm string) error {
	required, _ := plan.MinimumPlanFor(perm)
	return &app.PlanRestrictedError{Plan: plan.Starter, Permission: perm, Required: required}
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (*redisinfra.RateLimitResult, error) {
	return &redisinfra.RateLimitResult{Allowed: false, RetryAt: time.Now().Add(time.Minute)}, nil
}

var tokens = jwt.NewGenerator(jwt.TokenConfig{
	Secret:               "test-secret-that-is-long-enough-for-hs256",
	Issuer:               "reposcan-test",
	AccessTokenDuration:  time.Minute,
	RefreshTokenDuration: time.Hour,
})

func tokenFor(t *testing.T, role string) string {
	t.Helper()
	pair, err := tokens.GenerateTokenPair(jwt.Identity{
		UserID: shared.NewID().String(),
		Email:  "ada@example.com",
		OrgID:  shared.NewID().String(),
		Role:   role,
	})
	require.NoError(t, err)
	return pair.AccessToken
}

func newTestRouter(t *testing.T, limiter middleware.WindowLimiter, checker middleware.PermissionChecker) Router {
	t.Helper()
	if checker == nil {
		checker = starterPlan{}
	}
	log := logger.NewNop()
	cfg := &config.Config{Server: config.ServerConfig{MaxBodySize: 1 << 20, MaxUploadSize: 4 << 20}}

	hub := websocket.NewHub(log)
	router := infrahttp.NewChiRouter()
	Register(router, Handlers{
		Health:       handler.NewHealthHandler(),
		Auth:         &handler.AuthHandler{},
		User:         &handler.UserHandler{},
		Organization: &handler.OrganizationHandler{},
		Plan:         handler.NewPlanHandler(),
		Workspace:    &handler.WorkspaceHandler{},
		Repository:   &handler.RepositoryHandler{},
		Scan:         &handler.ScanHandler{},
		Schedule:     &handler.ScheduleHandler{},
		Audit:        &handler.AuditHandler{},
		WebSocket:    websocket.NewHandler(hub, func(*http.Request) (string, string) { return "", "" }, nil, log),
	}, Guards{
		Tokens:       tokens,
		Entitlements: checker,
		LoginLimiter: limiter,
	}, cfg, log)
	return router
}

func TestRegister_Routes(t *testing.T) {
	router := newTestRouter(t, nil, nil)

	var got []string
	require.NoError(t, router.Walk(func(method, path string) error {
		got = append(got, method+" "+strings.TrimSuffix(path, "/"))
		return nil
	}))

	for _, want := range []string{
		"GET /health",
		"GET /ready",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/refresh",
		"GET /api/v1/me",
		"POST /api/v1/me/password",
		"GET /api/v1/plans",
		"PUT /api/v1/organization/plan",
		"GET /api/v1/organization/entitlements",
		"DELETE /api/v1/organization/members/{userId}",
		"POST /api/v1/workspaces",
		"DELETE /api/v1/workspaces/{id}/members/{userId}",
		"POST /api/v1/workspaces/{id}/repositories",
		"POST /api/v1/repositories/{id}/verify",
		"POST /api/v1/scans/{id}/results",
		"POST /api/v1/scans/{id}/report",
		"POST /api/v1/schedules/{id}/enable",
		"GET /api/v1/audit-logs",
		"GET /api/v1/audit-logs/export",
		"GET /api/v1/scans/{id}",
		"GET /api/v1/ws",
	} {
		assert.Contains(t, got, want)
	}
}

func TestRegister_Guards(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		role       string // empty sends no token
		limiter    middleware.WindowLimiter
		checker    middleware.PermissionChecker
		wantStatus int
		wantCode   apierror.Code
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK},
		{name: "plans are public", method: http.MethodGet, path: "/api/v1/plans", wantStatus: http.StatusOK},
		{name: "metrics are public", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "scans need a token", method: http.MethodGet, path: "/api/v1/scans", wantStatus: http.StatusUnauthorized, wantCode: apierror.CodeUnauthorized},
		{name: "viewer cannot create workspaces", method: http.MethodPost, path: "/api/v1/workspaces", role: "viewer", wantStatus: http.StatusForbidden, wantCode: apierror.CodeForbidden},
		{name: "member cannot change plan", method: http.MethodPut, path: "/api/v1/organization/plan", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodeForbidden},
		{name: "member cannot rename organization", method: http.MethodPatch, path: "/api/v1/organization", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodeForbidden},
		{name: "starter cannot schedule", method: http.MethodPost, path: "/api/v1/schedules", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "starter cannot export", method: http.MethodPost, path: "/api/v1/scans/" + shared.NewID().String() + "/report", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "starter cannot upload results", method: http.MethodPost, path: "/api/v1/scans/" + shared.NewID().String() + "/results", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "audit needs admin", method: http.MethodGet, path: "/api/v1/audit-logs", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodeForbidden},
		{name: "audit needs plan", method: http.MethodGet, path: "/api/v1/audit-logs", role: "owner", wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "audit export needs admin", method: http.MethodGet, path: "/api/v1/audit-logs/export", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodeForbidden},
		{name: "audit export needs plan", method: http.MethodGet, path: "/api/v1/audit-logs/export", role: "owner", wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "scan list needs view permission", method: http.MethodGet, path: "/api/v1/scans", role: "viewer", checker: noPlan{}, wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "scan detail needs view permission", method: http.MethodGet, path: "/api/v1/scans/" + shared.NewID().String(), role: "viewer", checker: noPlan{}, wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "realtime needs plan", method: http.MethodGet, path: "/api/v1/ws", role: "member", wantStatus: http.StatusForbidden, wantCode: apierror.CodePlanUpgradeRequired},
		{name: "login is rate limited", method: http.MethodPost, path: "/api/v1/auth/login", limiter: denyAll{}, wantStatus: http.StatusTooManyRequests, wantCode: apierror.CodeRateLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(t, tt.limiter, tt.checker).Handler()

			r := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			if tt.role != "" {
				r.Header.Set("Authorization", "Bearer "+tokenFor(t, tt.role))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantCode != "" {
				var resp apierror.Response
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantCode, resp.Code)
			}
		})
	}
}
