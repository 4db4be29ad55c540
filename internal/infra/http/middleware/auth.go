package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/jwt"
	"github.com/openctemio/reposcan/pkg/logger"
)

type authKey string

const (
	// UserIDKey and OrgIDKey are shared with the logger so log lines carry them.
	UserIDKey = logger.ContextKeyUserID
	OrgIDKey  = logger.ContextKeyOrgID

	roleKey  authKey = "role"
	emailKey authKey = "email"
)

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// Authenticate requires a valid access token and stores the caller's
// identity in the request context.
func Authenticate(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			token, ok := bearerToken(r)
			if !ok {
				AuthFailuresTotal.WithLabelValues("missing_token").Inc()
				apierror.Unauthorized("").WriteJSONWithRequestID(w, requestID)
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				reason := "invalid_token"
				msg := "Invalid token"
				if errors.Is(err, jwt.ErrExpiredToken) {
					reason, msg = "expired_token", "Token has expired"
				}
				AuthFailuresTotal.WithLabelValues(reason).Inc()
				apierror.Unauthorized(msg).WriteJSONWithRequestID(w, requestID)
				return
			}

			userID, uerr := shared.IDFromString(claims.UserID)
			orgID, oerr := shared.IDFromString(claims.OrgID)
			role, rok := organization.ParseRole(claims.Role)
			if uerr != nil || oerr != nil || !rok {
				AuthFailuresTotal.WithLabelValues("malformed_claims").Inc()
				apierror.Unauthorized("Invalid token").WriteJSONWithRequestID(w, requestID)
				return
			}

			ctx := r.Context()
			ctx = context.WithValue(ctx, UserIDKey, userID.String())
			ctx = context.WithValue(ctx, OrgIDKey, orgID.String())
			ctx = context.WithValue(ctx, roleKey, role)
			ctx = context.WithValue(ctx, emailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header. WebSocket upgrades may pass
// the token as the access_token query parameter instead.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" && isUpgrade(r) {
		token := r.URL.Query().Get("access_token")
		return token, token != ""
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetUserID returns the authenticated user ID, or an empty string.
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetOrgID returns the organization the token was issued for.
func GetOrgID(ctx context.Context) string {
	v, _ := ctx.Value(OrgIDKey).(string)
	return v
}

// GetRole returns the caller's organization role.
func GetRole(ctx context.Context) organization.Role {
	v, _ := ctx.Value(roleKey).(organization.Role)
	return v
}

// GetEmail returns the caller's email.
func GetEmail(ctx context.Context) string {
	v, _ := ctx.Value(emailKey).(string)
	return v
}

// ActorFrom builds the service actor for an authenticated request. It
// returns false when Authenticate has not run.
func ActorFrom(r *http.Request) (app.Actor, bool) {
	ctx := r.Context()
	userID, err := shared.IDFromString(GetUserID(ctx))
	if err != nil {
		return app.Actor{}, false
	}
	orgID, err := shared.IDFromString(GetOrgID(ctx))
	if err != nil {
		return app.Actor{}, false
	}
	return app.Actor{
		UserID:    userID,
		OrgID:     orgID,
		Role:      GetRole(ctx),
		Email:     GetEmail(ctx),
		IP:        ClientIP(r),
		RequestID: GetRequestID(ctx),
	}, true
}

// RequireOrgRole rejects callers whose organization role is below min.
func RequireOrgRole(min organization.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			if role == "" {
				apierror.Unauthorized("").WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}
			if !role.IsAtLeast(min) {
				apierror.Forbidden("Requires "+min.String()+" role").
					WriteJSONWithRequestID(w, GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
