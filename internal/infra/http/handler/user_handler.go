package handler

import (
	"net/http"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/user"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// UserHandler serves the caller's own profile.
type UserHandler struct {
	responder
	service *app.UserService
	auth    *app.AuthService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc *app.UserService, auth *app.AuthService, v *validator.Validator, log *logger.Logger) *UserHandler {
	return &UserHandler{responder: responder{validator: v, logger: log}, service: svc, auth: auth}
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MembershipResponse is one organization the user belongs to.
type MembershipResponse struct {
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// ProfileResponse is the body of GET /me.
type ProfileResponse struct {
	UserResponse
	CurrentOrganizationID string               `json:"current_organization_id"`
	Role                  string               `json:"role"`
	Memberships           []MembershipResponse `json:"memberships"`
}

// ChangePasswordRequest is the body of POST /me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:          u.ID().String(),
		Email:       u.Email(),
		Name:        u.Name(),
		Status:      u.Status().String(),
		LastLoginAt: u.LastLoginAt(),
		CreatedAt:   u.CreatedAt(),
		UpdatedAt:   u.UpdatedAt(),
	}
}

func toMembershipResponses(ms []*organization.Membership) []MembershipResponse {
	out := make([]MembershipResponse, len(ms))
	for i, m := range ms {
		out[i] = MembershipResponse{OrganizationID: m.OrgID().String(), Role: m.Role().String(), JoinedAt: m.JoinedAt()}
	}
	return out
}

// GetMe handles GET /api/v1/me.
// @Summary      Current user
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  ProfileResponse
// @Router       /me [get]
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetProfile(r.Context(), actor)
	if err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{
		UserResponse:          toUserResponse(p.User),
		CurrentOrganizationID: actor.OrgID.String(),
		Role:                  actor.Role.String(),
		Memberships:           toMembershipResponses(p.Memberships),
	})
}

// UpdateMe handles PATCH /api/v1/me.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.UpdateProfileInput
	if !h.decode(w, r, &in) {
		return
	}
	u, err := h.service.UpdateProfile(r.Context(), actor, in)
	if err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// ChangePassword handles POST /api/v1/me/password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in ChangePasswordRequest
	if !h.decode(w, r, &in) {
		return
	}
	if err := h.auth.ChangePassword(r.Context(), actor, in.CurrentPassword, in.NewPassword); err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
