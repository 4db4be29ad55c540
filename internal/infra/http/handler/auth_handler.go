package handler

import (
	"net/http"
	"strings"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/pkg/jwt"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// AuthHandler serves registration, login and token refresh.
type AuthHandler struct {
	responder
	service *app.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *app.AuthService, v *validator.Validator, log *logger.Logger) *AuthHandler {
	return &AuthHandler{responder: responder{validator: v, logger: log}, service: svc}
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	User         UserResponse         `json:"user"`
	Organization OrganizationResponse `json:"organization"`
	Role         string               `json:"role"`
	Tokens       *jwt.TokenPair       `json:"tokens"`
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *AuthHandler) meta(r *http.Request) app.RequestMeta {
	return app.RequestMeta{IP: middleware.ClientIP(r), RequestID: h.requestID(r)}
}

func toAuthResponse(res *app.AuthResult) AuthResponse {
	return AuthResponse{
		User:         toUserResponse(res.User),
		Organization: toOrganizationResponse(res.Organization),
		Role:         res.Role.String(),
		Tokens:       res.Tokens,
	}
}

// Register handles POST /api/v1/auth/register.
// @Summary      Register
// @Description  Creates a user and an organization on the STARTER plan
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      app.RegisterInput  true  "Registration"
// @Success      201  {object}  AuthResponse
// @Failure      400  {object}  apierror.Response
// @Failure      409  {object}  apierror.Response
// @Router       /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in app.RegisterInput
	if !h.decode(w, r, &in) {
		return
	}
	res, err := h.service.Register(r.Context(), in, h.meta(r))
	if err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(res))
}

// Login handles POST /api/v1/auth/login.
// @Summary      Login
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      app.LoginInput  true  "Credentials"
// @Success      200  {object}  AuthResponse
// @Failure      401  {object}  apierror.Response
// @Failure      429  {object}  apierror.Response
// @Router       /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in app.LoginInput
	if !h.decode(w, r, &in) {
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	res, err := h.service.Login(r.Context(), in, h.meta(r))
	if err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(res))
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var in RefreshRequest
	if !h.decode(w, r, &in) {
		return
	}
	pair, err := h.service.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
