package app

import (
	"context"
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// WorkspaceService handles workspace operations.
type WorkspaceService struct {
	repo         workspace.Repository
	orgRepo      organization.Repository
	entitlements *EntitlementService
	auditService *AuditService
	logger       *logger.Logger
}

// NewWorkspaceService creates a new WorkspaceService.
func NewWorkspaceService(
	repo workspace.Repository,
	orgRepo organization.Repository,
	entitlements *EntitlementService,
	auditService *AuditService,
	log *logger.Logger,
) *WorkspaceService {
	return &WorkspaceService{
		repo:         repo,
		orgRepo:      orgRepo,
		entitlements: entitlements,
		auditService: auditService,
		logger:       log.With("service", "workspace"),
	}
}

// CreateWorkspaceInput represents the input for creating a workspace.
type CreateWorkspaceInput struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=1000"`
}

// Create creates a workspace and adds the caller as its first member.
func (s *WorkspaceService) Create(ctx context.Context, actor Actor, input CreateWorkspaceInput) (*workspace.Workspace, error) {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return nil, err
	}
	if err := s.entitlements.Authorize(ctx, actor, plan.PermWorkspaceCreate); err != nil {
		return nil, err
	}

	count, err := s.repo.CountByOrg(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	if err := s.entitlements.CheckLimit(ctx, actor.OrgID, plan.LimitMaxWorkspaces, count); err != nil {
		return nil, err
	}

	ws, err := workspace.NewWorkspace(actor.OrgID,
		validator.SanitizeText(input.Name), validator.SanitizeText(input.Description), actor.UserID)
	if err != nil {
		return nil, err
	}
	if actor.IsSystem() {
		err = s.repo.Create(ctx, ws)
	} else {
		err = s.repo.CreateWithMember(ctx, ws, actor.UserID)
	}
	if err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionWorkspaceCreated, audit.ResourceTypeWorkspace, ws.ID().String()).
		WithMetadata("name", ws.Name()))
	s.logger.Info("workspace created", "workspace_id", ws.ID().String(), "org_id", actor.OrgID.String())
	return ws, nil
}

// Get returns a workspace of the caller's organization. Workspaces of other
// organizations are reported as not found.
func (s *WorkspaceService) Get(ctx context.Context, actor Actor, id shared.ID) (*workspace.Workspace, error) {
	ws, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ws.BelongsTo(actor.OrgID) {
		return nil, workspace.ErrWorkspaceNotFound
	}
	return ws, nil
}

// List returns the organization's workspaces.
func (s *WorkspaceService) List(ctx context.Context, actor Actor) ([]*workspace.Workspace, error) {
	return s.repo.ListByOrg(ctx, actor.OrgID)
}

// UpdateWorkspaceInput represents the input for updating a workspace.
type UpdateWorkspaceInput struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

// Update changes a workspace's name or description.
func (s *WorkspaceService) Update(ctx context.Context, actor Actor, id shared.ID, input UpdateWorkspaceInput) (*workspace.Workspace, error) {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return nil, err
	}
	ws, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	name, desc := ws.Name(), ws.Description()
	if input.Name != nil {
		name = validator.SanitizeText(*input.Name)
	}
	if input.Description != nil {
		desc = validator.SanitizeText(*input.Description)
	}

	changes := audit.NewChanges()
	if name != ws.Name() {
		changes.Set("name", ws.Name(), name)
	}
	if desc != ws.Description() {
		changes.Set("description", ws.Description(), desc)
	}
	if changes.IsEmpty() {
		return ws, nil
	}

	if err := ws.Update(name, desc); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, ws); err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionWorkspaceUpdated, audit.ResourceTypeWorkspace, ws.ID().String()).
		WithChanges(changes))
	return ws, nil
}

// Delete removes a workspace with its repositories, scans and schedules.
func (s *WorkspaceService) Delete(ctx context.Context, actor Actor, id shared.ID) error {
	if err := actor.requireRole(organization.RoleAdmin); err != nil {
		return err
	}
	ws, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, ws.ID()); err != nil {
		return err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionWorkspaceDeleted, audit.ResourceTypeWorkspace, ws.ID().String()).
		WithMetadata("name", ws.Name()))
	s.logger.Info("workspace deleted", "workspace_id", ws.ID().String(), "org_id", actor.OrgID.String())
	return nil
}

// AddMember gives an organization member access to a workspace. Inviting
// beyond the first member needs WORKSPACE:INVITE, and the plan caps the
// number of members per workspace.
func (s *WorkspaceService) AddMember(ctx context.Context, actor Actor, workspaceID, userID shared.ID) error {
	if err := actor.requireRole(organization.RoleAdmin); err != nil {
		return err
	}
	ws, err := s.Get(ctx, actor, workspaceID)
	if err != nil {
		return err
	}
	if _, err := s.orgRepo.GetMembership(ctx, actor.OrgID, userID); err != nil {
		if shared.IsNotFound(err) {
			return fmt.Errorf("%w: user is not a member of the organization", shared.ErrValidation)
		}
		return err
	}

	count, err := s.repo.CountMembers(ctx, ws.ID())
	if err != nil {
		return err
	}
	if count > 0 {
		if err := s.entitlements.Authorize(ctx, actor, plan.PermWorkspaceInvite); err != nil {
			return err
		}
	}
	if err := s.entitlements.CheckLimit(ctx, actor.OrgID, plan.LimitMaxUsersPerWorkspace, count); err != nil {
		return err
	}

	if err := s.repo.AddMember(ctx, ws.ID(), userID); err != nil {
		return err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionWorkspaceMemberAdded, audit.ResourceTypeWorkspace, ws.ID().String()).
		WithMetadata("user_id", userID.String()))
	return nil
}

// RemoveMember revokes a user's access to a workspace.
func (s *WorkspaceService) RemoveMember(ctx context.Context, actor Actor, workspaceID, userID shared.ID) error {
	if err := actor.requireRole(organization.RoleAdmin); err != nil {
		return err
	}
	ws, err := s.Get(ctx, actor, workspaceID)
	if err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, ws.ID(), userID); err != nil {
		return err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionWorkspaceMemberRemoved, audit.ResourceTypeWorkspace, ws.ID().String()).
		WithMetadata("user_id", userID.String()))
	return nil
}

// ListMembers returns the members of a workspace.
func (s *WorkspaceService) ListMembers(ctx context.Context, actor Actor, workspaceID shared.ID) ([]workspace.Member, error) {
	ws, err := s.Get(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, ws.ID())
}
