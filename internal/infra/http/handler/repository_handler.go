package handler

import (
	"net/http"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// RepositoryHandler serves connected source repositories.
type RepositoryHandler struct {
	responder
	service *app.RepositoryService
}

// NewRepositoryHandler creates a new repository handler.
func NewRepositoryHandler(svc *app.RepositoryService, v *validator.Validator, log *logger.Logger) *RepositoryHandler {
	return &RepositoryHandler{responder: responder{validator: v, logger: log}, service: svc}
}

// RepositoryResponse represents a repository in API responses. Access tokens
// are never returned.
type RepositoryResponse struct {
	ID             string     `json:"id"`
	WorkspaceID    string     `json:"workspace_id"`
	Provider       string     `json:"provider"`
	Name           string     `json:"name"`
	FullName       string     `json:"full_name"`
	URL            string     `json:"url"`
	DefaultBranch  string     `json:"default_branch"`
	HasToken       bool       `json:"has_token"`
	LastCommit     string     `json:"last_commit,omitempty"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// VerifyResponse is the outcome of POST /repositories/{id}/verify.
type VerifyResponse struct {
	Repository RepositoryResponse `json:"repository"`
	Branch     string             `json:"branch"`
	Commit     string             `json:"commit"`
	Refs       int                `json:"refs"`
}

func toRepositoryResponse(repo *sourcerepo.Repository) RepositoryResponse {
	return RepositoryResponse{
		ID:             repo.ID().String(),
		WorkspaceID:    repo.WorkspaceID().String(),
		Provider:       repo.Provider().String(),
		Name:           repo.Name(),
		FullName:       repo.URL().FullName(),
		URL:            repo.URL().String(),
		DefaultBranch:  repo.DefaultBranch(),
		HasToken:       repo.HasToken(),
		LastCommit:     repo.LastCommit(),
		LastVerifiedAt: repo.LastVerifiedAt(),
		CreatedAt:      repo.CreatedAt(),
		UpdatedAt:      repo.UpdatedAt(),
	}
}

// Connect handles POST /api/v1/workspaces/{id}/repositories.
// @Summary      Connect repository
// @Tags         Repositories
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                      true  "Workspace ID"
// @Param        request  body      app.ConnectRepositoryInput  true  "Repository"
// @Success      201  {object}  RepositoryResponse
// @Failure      409  {object}  apierror.Response
// @Failure      502  {object}  apierror.Response
// @Router       /workspaces/{id}/repositories [post]
func (h *RepositoryHandler) Connect(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	workspaceID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in app.ConnectRepositoryInput
	if !h.decode(w, r, &in) {
		return
	}
	repo, err := h.service.Connect(r.Context(), actor, workspaceID, in)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRepositoryResponse(repo))
}

// List handles GET /api/v1/workspaces/{id}/repositories.
func (h *RepositoryHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	workspaceID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	repos, err := h.service.List(r.Context(), actor, workspaceID)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	out := make([]RepositoryResponse, len(repos))
	for i, repo := range repos {
		out[i] = toRepositoryResponse(repo)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// Get handles GET /api/v1/repositories/{id}.
func (h *RepositoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	repo, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, r, "Repository", err)
		return
	}
	writeJSON(w, http.StatusOK, toRepositoryResponse(repo))
}

// Update handles PATCH /api/v1/repositories/{id}.
func (h *RepositoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var in app.UpdateRepositoryInput
	if !h.decode(w, r, &in) {
		return
	}
	repo, err := h.service.Update(r.Context(), actor, id, in)
	if err != nil {
		h.serviceError(w, r, "Repository", err)
		return
	}
	writeJSON(w, http.StatusOK, toRepositoryResponse(repo))
}

// Disconnect handles DELETE /api/v1/repositories/{id}.
func (h *RepositoryHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Disconnect(r.Context(), actor, id); err != nil {
		h.serviceError(w, r, "Repository", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify handles POST /api/v1/repositories/{id}/verify. It contacts the
// remote and records the default branch head.
func (h *RepositoryHandler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	repo, head, err := h.service.Verify(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, r, "Repository", err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{
		Repository: toRepositoryResponse(repo),
		Branch:     head.Branch,
		Commit:     head.Commit,
		Refs:       head.Refs,
	})
}
