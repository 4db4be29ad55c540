package handler

import (
	"net/http"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// WorkspaceHandler serves workspaces and their members.
type WorkspaceHandler struct {
	responder
	service *app.WorkspaceService
}

// NewWorkspaceHandler creates a new workspace handler.
func NewWorkspaceHandler(svc *app.WorkspaceService, v *validator.Validator, log *logger.Logger) *WorkspaceHandler {
	return &WorkspaceHandler{responder: responder{validator: v, logger: log}, service: svc}
}

// WorkspaceResponse represents a workspace in API responses.
type WorkspaceResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// WorkspaceMemberResponse is a user with access to a workspace.
type WorkspaceMemberResponse struct {
	UserID  string    `json:"user_id"`
	Email   string    `json:"email"`
	Name    string    `json:"name"`
	AddedAt time.Time `json:"added_at"`
}

// AddWorkspaceMemberRequest is the body of POST /workspaces/{id}/members.
type AddWorkspaceMemberRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

func toWorkspaceResponse(ws *workspace.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:          ws.ID().String(),
		Name:        ws.Name(),
		Description: ws.Description(),
		CreatedBy:   ws.CreatedBy().String(),
		CreatedAt:   ws.CreatedAt(),
		UpdatedAt:   ws.UpdatedAt(),
	}
}

// Create handles POST /api/v1/workspaces.
// @Summary      Create workspace
// @Description  Counts against the plan's maxWorkspaces limit
// @Tags         Workspaces
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      app.CreateWorkspaceInput  true  "Workspace"
// @Success      201  {object}  WorkspaceResponse
// @Failure      429  {object}  apierror.Response
// @Router       /workspaces [post]
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.CreateWorkspaceInput
	if !h.decode(w, r, &in) {
		return
	}
	ws, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkspaceResponse(ws))
}

// List handles GET /api/v1/workspaces.
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	out := make([]WorkspaceResponse, len(items))
	for i, ws := range items {
		out[i] = toWorkspaceResponse(ws)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// Get handles GET /api/v1/workspaces/{id}.
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	ws, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceResponse(ws))
}

// Update handles PATCH /api/v1/workspaces/{id}.
func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in app.UpdateWorkspaceInput
	if !h.decode(w, r, &in) {
		return
	}
	ws, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkspaceResponse(ws))
}

// Delete handles DELETE /api/v1/workspaces/{id}.
func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles GET /api/v1/workspaces/{id}/members.
func (h *WorkspaceHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	members, err := h.service.ListMembers(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	out := make([]WorkspaceMemberResponse, len(members))
	for i, m := range members {
		out[i] = WorkspaceMemberResponse{UserID: m.UserID.String(), Email: m.Email, Name: m.Name, AddedAt: m.AddedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// AddMember handles POST /api/v1/workspaces/{id}/members.
// @Summary      Grant workspace access
// @Description  A second member needs WORKSPACE:INVITE and counts against maxUsersPerWorkspace
// @Tags         Workspaces
// @Accept       json
// @Security     BearerAuth
// @Param        id       path      string                     true  "Workspace ID"
// @Param        request  body      AddWorkspaceMemberRequest  true  "Member"
// @Success      204
// @Failure      403  {object}  apierror.Response
// @Failure      429  {object}  apierror.Response
// @Router       /workspaces/{id}/members [post]
func (h *WorkspaceHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in AddWorkspaceMemberRequest
	if !h.decode(w, r, &in) {
		return
	}
	userID, err := parseID(in.UserID)
	if err != nil {
		h.serviceError(w, r, "User", err)
		return
	}
	if err := h.service.AddMember(r.Context(), actor, id, userID); err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember handles DELETE /api/v1/workspaces/{id}/members/{userId}.
func (h *WorkspaceHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userId")
	if !ok {
		return
	}
	if err := h.service.RemoveMember(r.Context(), actor, id, userID); err != nil {
		h.serviceError(w, r, "Workspace member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
