package handler

import (
	"net/http"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// OrganizationHandler serves the caller's organization, its plan and members.
type OrganizationHandler struct {
	responder
	service      *app.OrganizationService
	entitlements *app.EntitlementService
}

// NewOrganizationHandler creates a new organization handler.
func NewOrganizationHandler(svc *app.OrganizationService, ent *app.EntitlementService, v *validator.Validator, log *logger.Logger) *OrganizationHandler {
	return &OrganizationHandler{responder: responder{validator: v, logger: log}, service: svc, entitlements: ent}
}

// OrganizationResponse represents an organization in API responses.
type OrganizationResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	Plan          string     `json:"plan"`
	OwnerID       string     `json:"owner_id"`
	PlanChangedAt *time.Time `json:"plan_changed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// MemberResponse is an organization member.
type MemberResponse struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	Name     string    `json:"name,omitempty"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// RenameOrganizationRequest is the body of PATCH /organization.
type RenameOrganizationRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// ChangePlanRequest is the body of PUT /organization/plan.
type ChangePlanRequest struct {
	Plan string `json:"plan" validate:"required,plan"`
}

// UpdateMemberRoleRequest is the body of PATCH /organization/members/{userId}.
type UpdateMemberRoleRequest struct {
	Role string `json:"role" validate:"required,org_role"`
}

func toOrganizationResponse(o *organization.Organization) OrganizationResponse {
	return OrganizationResponse{
		ID:            o.ID().String(),
		Name:          o.Name(),
		Slug:          o.Slug(),
		Plan:          o.Plan().String(),
		OwnerID:       o.OwnerID().String(),
		PlanChangedAt: o.PlanChangedAt(),
		CreatedAt:     o.CreatedAt(),
		UpdatedAt:     o.UpdatedAt(),
	}
}

func toMemberResponse(m organization.Member) MemberResponse {
	return MemberResponse{UserID: m.UserID.String(), Email: m.Email, Name: m.Name, Role: m.Role.String(), JoinedAt: m.JoinedAt}
}

// Get handles GET /api/v1/organization.
// @Summary      Current organization
// @Tags         Organization
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  OrganizationResponse
// @Router       /organization [get]
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	org, err := h.service.Get(r.Context(), actor)
	if err != nil {
		h.serviceError(w, r, "Organization", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// Rename handles PATCH /api/v1/organization.
func (h *OrganizationHandler) Rename(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in RenameOrganizationRequest
	if !h.decode(w, r, &in) {
		return
	}
	org, err := h.service.Rename(r.Context(), actor, in.Name)
	if err != nil {
		h.serviceError(w, r, "Organization", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// Entitlements handles GET /api/v1/organization/entitlements.
// @Summary      Plan entitlements
// @Description  Returns the plan, its permissions, limits and current usage
// @Tags         Organization
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  app.EntitlementSummary
// @Router       /organization/entitlements [get]
func (h *OrganizationHandler) Entitlements(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	summary, err := h.entitlements.Summary(r.Context(), actor.OrgID)
	if err != nil {
		h.serviceError(w, r, "Organization", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ChangePlan handles PUT /api/v1/organization/plan.
// @Summary      Change plan
// @Description  Owner only. Downgrades are refused while usage exceeds the target plan's limits.
// @Tags         Organization
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      ChangePlanRequest  true  "Target plan"
// @Success      200  {object}  OrganizationResponse
// @Failure      403  {object}  apierror.Response
// @Failure      409  {object}  apierror.Response
// @Router       /organization/plan [put]
func (h *OrganizationHandler) ChangePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in ChangePlanRequest
	if !h.decode(w, r, &in) {
		return
	}
	target, err := plan.ParsePlan(in.Plan)
	if err != nil {
		h.serviceError(w, r, "Plan", err)
		return
	}
	org, err := h.service.ChangePlan(r.Context(), actor, target)
	if err != nil {
		h.serviceError(w, r, "Organization", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// ListMembers handles GET /api/v1/organization/members.
func (h *OrganizationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	members, err := h.service.ListMembers(r.Context(), actor)
	if err != nil {
		h.serviceError(w, r, "Organization", err)
		return
	}
	out := make([]MemberResponse, len(members))
	for i, m := range members {
		out[i] = toMemberResponse(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// AddMember handles POST /api/v1/organization/members.
func (h *OrganizationHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.AddMemberInput
	if !h.decode(w, r, &in) {
		return
	}
	m, err := h.service.AddMember(r.Context(), actor, in)
	if err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	writeJSON(w, http.StatusCreated, MemberResponse{
		UserID:   m.UserID().String(),
		Email:    in.Email,
		Role:     m.Role().String(),
		JoinedAt: m.JoinedAt(),
	})
}

// UpdateMemberRole handles PATCH /api/v1/organization/members/{userId}.
func (h *OrganizationHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userId")
	if !ok {
		return
	}
	var in UpdateMemberRoleRequest
	if !h.decode(w, r, &in) {
		return
	}
	m, err := h.service.UpdateMemberRole(r.Context(), actor, userID, in.Role)
	if err != nil {
		h.serviceError(w, r, "Member", err)
		return
	}
	writeJSON(w, http.StatusOK, MemberResponse{UserID: m.UserID().String(), Role: m.Role().String(), JoinedAt: m.JoinedAt()})
}

// RemoveMember handles DELETE /api/v1/organization/members/{userId}.
func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userId")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), actor, userID); err != nil {
		h.serviceError(w, r, "Member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
