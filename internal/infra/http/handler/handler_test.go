package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/internal/infra/scm"
	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/jwt"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/pagination"
	"github.com/openctemio/reposcan/pkg/validator"
)

func newResponder() responder {
	return responder{validator: validator.New(), logger: logger.NewNop()}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apierror.Response {
	t.Helper()
	var resp apierror.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAPIError(t *testing.T) {
	h := newResponder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/scans/x", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   apierror.Code
		wantMsg    string
	}{
		{"not found", fmt.Errorf("%w: scan", shared.ErrNotFound), http.StatusNotFound, apierror.CodeNotFound, "Scan not found"},
		{"already exists", fmt.Errorf("%w: repository already connected", shared.ErrAlreadyExists), http.StatusConflict, apierror.CodeConflict, "Repository already connected"},
		{"conflict", fmt.Errorf("%w: scan is not running", shared.ErrConflict), http.StatusConflict, apierror.CodeConflict, "Scan is not running"},
		{"validation", fmt.Errorf("%w: bad cron", shared.ErrValidation), http.StatusBadRequest, apierror.CodeBadRequest, "Bad cron"},
		{"forbidden", fmt.Errorf("%w: requires admin role", shared.ErrForbidden), http.StatusForbidden, apierror.CodeForbidden, "Requires admin role"},
		{"remote", fmt.Errorf("ls-remote: %w", scm.ErrRemoteUnavailable), http.StatusBadGateway, "REMOTE_UNAVAILABLE", ""},
		{"plan", &app.PlanRestrictedError{Plan: plan.Starter, Permission: plan.PermScanSchedule, Required: plan.Pro}, http.StatusForbidden, apierror.CodePlanUpgradeRequired, ""},
		{"quota", &app.QuotaExceededError{Plan: plan.Starter, Limit: plan.LimitScansPerDay, Max: 3, Used: 3}, http.StatusTooManyRequests, apierror.CodeQuotaExceeded, "Your STARTER plan allows 3 scansPerDay"},
		{"unknown", errors.New("db exploded"), http.StatusInternalServerError, apierror.CodeInternalError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.apiError(r, "Scan", tt.err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, got.Message)
			}
		})
	}
}

func TestAPIError_QuotaDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/scans", nil)
	newResponder().serviceError(rec, r, "Scan", &app.QuotaExceededError{
		Plan: plan.Pro, Limit: plan.LimitMaxWorkspaces, Max: 5, Used: 5,
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	details, _ := json.Marshal(body["details"])
	assert.JSONEq(t, `{"current_plan":"PRO","limit":"maxWorkspaces","max":5,"used":5}`, string(details))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Bad cron", userMessage(fmt.Errorf("%w: bad cron", shared.ErrValidation), "x"))
	assert.Equal(t, "Plain", userMessage(errors.New("plain"), "x"))
	assert.Equal(t, "fallback", userMessage(errors.New("prefix: "), "fallback"))
}

type createThing struct {
	Name string `json:"name" validate:"required,max=10"`
}

func TestResponderDecode(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		limit      int64
		wantOK     bool
		wantStatus int
	}{
		{name: "valid", body: `{"name":"ok"}`, wantOK: true},
		{name: "unknown field", body: `{"name":"ok","extra":1}`, wantStatus: http.StatusBadRequest},
		{name: "trailing data", body: `{"name":"ok"}{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"name":`, wantStatus: http.StatusBadRequest},
		{name: "validation", body: `{"name":""}`, wantStatus: http.StatusUnprocessableEntity},
		{name: "too large", body: `{"name":"` + strings.Repeat("a", 64) + `"}`, limit: 16, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				r.Body = http.MaxBytesReader(rec, r.Body, tt.limit)
			}
			var dst createThing
			ok := newResponder().decode(rec, r, &dst)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestResponderDecode_ValidationDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))
	var dst createThing
	require.False(t, newResponder().decode(rec, r, &dst))

	resp := decodeError(t, rec)
	assert.Equal(t, apierror.CodeValidationFailed, resp.Code)
	assert.NotEmpty(t, resp.Details)
}

func TestNewListResponse(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/scans?status=queued&page=2&per_page=10", nil)
	res := pagination.NewResult([]int{1, 2, 3}, 35, pagination.New(2, 10))

	got := newListResponse(r, res, func(i int) string { return fmt.Sprint(i * 10) })

	assert.Equal(t, []string{"10", "20", "30"}, got.Data)
	assert.Equal(t, 4, got.TotalPages)
	require.NotNil(t, got.Links)
	assert.Contains(t, got.Links.Next, "page=3")
	assert.Contains(t, got.Links.Next, "status=queued")
	assert.Contains(t, got.Links.Prev, "page=1")
	assert.Contains(t, got.Links.Last, "page=4")
}

func TestNewPaginationLinks_Empty(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	assert.Nil(t, newPaginationLinks(r, 1, 20, 0))
}

func TestParseQueryArray(t *testing.T) {
	assert.Nil(t, parseQueryArray(""))
	assert.Equal(t, []string{"a", "b"}, parseQueryArray(" a, ,b "))
}

func TestParseScanFilter(t *testing.T) {
	wsID := shared.NewID()
	tests := []struct {
		name    string
		query   string
		wantErr bool
		check   func(t *testing.T, f scan.Filter)
	}{
		{
			name:  "all fields",
			query: "workspace_id=" + wsID.String() + "&status=running&trigger=scheduled&since=2026-01-02T03:04:05Z",
			check: func(t *testing.T, f scan.Filter) {
				require.NotNil(t, f.WorkspaceID)
				assert.Equal(t, wsID, *f.WorkspaceID)
				assert.Equal(t, scan.StatusRunning, *f.Status)
				assert.Equal(t, scan.TriggerScheduled, *f.Trigger)
				assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), f.Since.UTC())
			},
		},
		{name: "empty", query: "", check: func(t *testing.T, f scan.Filter) { assert.Nil(t, f.Status) }},
		{name: "bad status", query: "status=sleeping", wantErr: true},
		{name: "bad trigger", query: "trigger=cosmic", wantErr: true},
		{name: "bad since", query: "since=yesterday", wantErr: true},
		{name: "bad workspace", query: "workspace_id=nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/scans?"+tt.query, nil)
			f, err := parseScanFilter(r)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, shared.ErrValidation)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestParseAuditFilter(t *testing.T) {
	actorID := shared.NewID()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?actor_id="+actorID.String()+
		"&action="+string(audit.ActionScanTriggered)+","+string(audit.ActionOrganizationPlanChanged)+
		"&result=success&since=2026-01-01T00:00:00Z&until=2026-02-01T00:00:00Z", nil)

	f, err := parseAuditFilter(r)
	require.NoError(t, err)
	assert.Equal(t, actorID, *f.ActorID)
	assert.Equal(t, []audit.Action{audit.ActionScanTriggered, audit.ActionOrganizationPlanChanged}, f.Actions)
	assert.Equal(t, []audit.Result{audit.ResultSuccess}, f.Results)
	require.NotNil(t, f.Since)
	require.NotNil(t, f.Until)

	for _, q := range []string{
		"action=made.up",
		"result=maybe",
		"resource_type=planet",
		"since=2026-02-01T00:00:00Z&until=2026-01-01T00:00:00Z",
	} {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?"+q, nil)
		_, err := parseAuditFilter(r)
		assert.ErrorIs(t, err, shared.ErrValidation, q)
	}
}

func TestPlanHandler_List(t *testing.T) {
	rec := httptest.NewRecorder()
	NewPlanHandler().List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data      []PlanResponse `json:"data"`
		Unlimited int            `json:"unlimited"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 4)
	assert.Equal(t, -1, body.Unlimited)
	assert.Equal(t, "STARTER", body.Data[0].Name)
	assert.Equal(t, 3, body.Data[0].Limits.ScansPerDay)
	assert.Equal(t, "ENTERPRISE", body.Data[3].Name)
	assert.Equal(t, plan.Unlimited, body.Data[3].Limits.ScansPerDay)
	assert.Contains(t, body.Data[3].Permissions, plan.PermSSOUse)
	assert.NotContains(t, body.Data[0].Permissions, plan.PermScanSchedule)
}

type pingFunc func() error

func (f pingFunc) Ping(_ context.Context) error { return f() }

func TestHealthHandler(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(WithVersion("1.2.3")).Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)
	})

	t.Run("ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := NewHealthHandler(WithCheck("postgres", pingFunc(func() error { return nil })))
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		var resp ReadyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Checks["postgres"].Status)
	})

	t.Run("not ready", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h := NewHealthHandler(
			WithCheck("postgres", pingFunc(func() error { return nil })),
			WithCheck("redis", pingFunc(func() error { return errors.New("connection refused") })),
		)
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp ReadyResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp.Checks["redis"].Status)
		assert.Equal(t, "connection refused", resp.Checks["redis"].Error)
	})
}

// authenticated wraps h so it sees a member of a fresh organization.
func authenticated(t *testing.T, h http.HandlerFunc) (http.Handler, string) {
	t.Helper()
	gen := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               "test-secret-that-is-long-enough-for-hs256",
		Issuer:               "reposcan-test",
		AccessTokenDuration:  time.Minute,
		RefreshTokenDuration: time.Hour,
	})
	pair, err := gen.GenerateTokenPair(jwt.Identity{
		UserID: shared.NewID().String(),
		Email:  "ada@example.com",
		OrgID:  shared.NewID().String(),
		Role:   "member",
	})
	require.NoError(t, err)
	return middleware.Authenticate(gen)(h), pair.AccessToken
}

func TestScheduleHandler_ListRequiresWorkspace(t *testing.T) {
	h := NewScheduleHandler(nil, validator.New(), logger.NewNop())
	handler, token := authenticated(t, h.List)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/schedules", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Workspace_id is required", decodeError(t, rec).Message)
}

func TestHandlers_RequireActor(t *testing.T) {
	v, log := validator.New(), logger.NewNop()
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"scan list", NewScanHandler(nil, v, log).List},
		{"schedule list", NewScheduleHandler(nil, v, log).List},
		{"audit list", NewAuditHandler(nil, v, log).List},
		{"workspace list", NewWorkspaceHandler(nil, v, log).List},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
