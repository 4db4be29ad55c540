package apierror

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONWithRequestID(t *testing.T) {
	rec := httptest.NewRecorder()

	PlanUpgradeRequired(PlanDetails{
		CurrentPlan:  "STARTER",
		Permission:   "API:USE",
		RequiredPlan: "BUSINESS",
	}).WriteJSONWithRequestID(rec, "req-42")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PLAN_UPGRADE_REQUIRED", body["code"])
	assert.Equal(t, "req-42", body["request_id"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "BUSINESS", details["required_plan"])
}

func TestInternalError_HidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(errors.New("pq: connection refused")).WriteJSON(rec)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	apiErr := NotFound("Scan")
	assert.Same(t, apiErr, FromError(apiErr))

	wrapped := FromError(errors.New("boom"))
	assert.Equal(t, CodeInternalError, wrapped.Code)
}

func TestQuotaExceeded(t *testing.T) {
	e := QuotaExceeded("", &QuotaDetails{CurrentPlan: "STARTER", Limit: "scansPerDay", Max: 3, Used: 3})
	assert.Equal(t, http.StatusTooManyRequests, e.Status)
	assert.Equal(t, "Plan limit reached", e.Message)
}

func TestValidationErrors(t *testing.T) {
	var v ValidationErrors
	assert.False(t, v.HasErrors())

	v.Add("cron", "is invalid")
	require.True(t, v.HasErrors())
	assert.Equal(t, http.StatusUnprocessableEntity, v.ToAPIError().Status)
}
