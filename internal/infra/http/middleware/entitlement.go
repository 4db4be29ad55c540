package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/logger"
)

// PermissionChecker decides whether the caller's plan includes a permission.
// *app.EntitlementService satisfies it.
type PermissionChecker interface {
	Authorize(ctx context.Context, actor app.Actor, perm string) error
}

// RequirePermission rejects requests whose organization plan lacks perm with
// 403 PLAN_UPGRADE_REQUIRED. It must run after Authenticate.
func RequirePermission(checker PermissionChecker, perm string, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			actor, ok := ActorFrom(r)
			if !ok {
				apierror.Unauthorized("").WriteJSONWithRequestID(w, requestID)
				return
			}

			err := checker.Authorize(r.Context(), actor, perm)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			var restricted *app.PlanRestrictedError
			if errors.As(err, &restricted) {
				PlanRestricted(restricted).WriteJSONWithRequestID(w, requestID)
				return
			}
			log.Error("entitlement check failed", "permission", perm, "error", err, "request_id", requestID)
			apierror.InternalError(err).WriteJSONWithRequestID(w, requestID)
		})
	}
}

// PlanRestricted converts a plan denial into its API error.
func PlanRestricted(e *app.PlanRestrictedError) *apierror.Error {
	return apierror.PlanUpgradeRequired(apierror.PlanDetails{
		CurrentPlan:  e.Plan.String(),
		Permission:   e.Permission,
		RequiredPlan: e.Required.String(),
	})
}
