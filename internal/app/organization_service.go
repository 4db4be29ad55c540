package app

import (
	"context"
	"fmt"

	"github.com/openctemio/reposcan/internal/metrics"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/user"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// OrganizationService manages the caller's organization, its plan and its members.
type OrganizationService struct {
	orgRepo       organization.Repository
	userRepo      user.Repository
	workspaceRepo workspace.Repository
	entitlements  *EntitlementService
	auditService  *AuditService
	logger        *logger.Logger
}

// NewOrganizationService creates a new OrganizationService.
func NewOrganizationService(
	orgRepo organization.Repository,
	userRepo user.Repository,
	workspaceRepo workspace.Repository,
	entitlements *EntitlementService,
	auditService *AuditService,
	log *logger.Logger,
) *OrganizationService {
	return &OrganizationService{
		orgRepo:       orgRepo,
		userRepo:      userRepo,
		workspaceRepo: workspaceRepo,
		entitlements:  entitlements,
		auditService:  auditService,
		logger:        log.With("service", "organization"),
	}
}

// Get returns the caller's organization.
func (s *OrganizationService) Get(ctx context.Context, actor Actor) (*organization.Organization, error) {
	return s.orgRepo.GetByID(ctx, actor.OrgID)
}

// Rename changes the organization's display name. Admins only.
func (s *OrganizationService) Rename(ctx context.Context, actor Actor, name string) (*organization.Organization, error) {
	if err := actor.requireRole(organization.RoleAdmin); err != nil {
		return nil, err
	}
	org, err := s.orgRepo.GetByID(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}

	before := org.Name()
	if err := org.Rename(validator.SanitizeText(name)); err != nil {
		return nil, err
	}
	if err := s.orgRepo.Update(ctx, org); err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionOrganizationUpdated, audit.ResourceTypeOrganization, org.ID().String()).
		WithChanges(audit.NewChanges().Set("name", before, org.Name())))
	return org, nil
}

// ChangePlan moves the organization to another plan. Owner only. A downgrade
// is refused while the organization has more workspaces than the target plan
// allows.
func (s *OrganizationService) ChangePlan(ctx context.Context, actor Actor, target plan.Plan) (*organization.Organization, error) {
	if err := actor.requireRole(organization.RoleOwner); err != nil {
		return nil, err
	}
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: %q", plan.ErrInvalidPlan, string(target))
	}

	org, err := s.orgRepo.GetByID(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	current := org.Plan()

	if current.IsValid() && target.Rank() < current.Rank() {
		if err := s.checkDowngrade(ctx, org.ID(), target); err != nil {
			return nil, err
		}
	}

	changed, err := org.ChangePlan(target)
	if err != nil {
		return nil, err
	}
	if !changed {
		return org, nil
	}
	if err := s.orgRepo.Update(ctx, org); err != nil {
		return nil, err
	}
	invalidateErr := s.entitlements.Invalidate(ctx, org.ID())

	metrics.PlanChangesTotal.WithLabelValues(current.String(), target.String()).Inc()
	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionOrganizationPlanChanged, audit.ResourceTypeOrganization, org.ID().String()).
		WithChanges(audit.NewChanges().Set("plan", current.String(), target.String())))
	s.logger.Info("plan changed", "org_id", org.ID().String(), "from", current.String(), "to", target.String())

	// The stored plan is already changed; callers must still learn that the
	// old plan can be served from cache until it expires.
	if invalidateErr != nil {
		s.logger.Error("plan changed but cache still holds the old plan", "org_id", org.ID().String(), "error", invalidateErr)
		return nil, invalidateErr
	}
	return org, nil
}

func (s *OrganizationService) checkDowngrade(ctx context.Context, orgID shared.ID, target plan.Plan) error {
	limit, err := plan.Lookup(target, plan.LimitMaxWorkspaces)
	if err != nil {
		return err
	}
	if limit.IsUnlimited() {
		return nil
	}
	count, err := s.workspaceRepo.CountByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	if count > limit.Max() {
		return fmt.Errorf("%w: organization has %d workspaces but %s allows %d; delete workspaces before downgrading",
			shared.ErrConflict, count, target, limit.Max())
	}
	return nil
}

// ListMembers returns the organization's members.
func (s *OrganizationService) ListMembers(ctx context.Context, actor Actor) ([]organization.Member, error) {
	return s.orgRepo.ListMembers(ctx, actor.OrgID)
}

// AddMemberInput represents the input for adding a member.
type AddMemberInput struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required,org_role"`
}

// AddMember adds an existing user to the organization.
func (s *OrganizationService) AddMember(ctx context.Context, actor Actor, input AddMemberInput) (*organization.Membership, error) {
	role, ok := organization.ParseRole(input.Role)
	if !ok {
		return nil, fmt.Errorf("%w: invalid role %q", shared.ErrValidation, input.Role)
	}
	if !actor.Role.CanAssign(role) {
		return nil, fmt.Errorf("%w: cannot grant the %s role", shared.ErrForbidden, role)
	}

	email, err := user.NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	m, err := organization.NewMembership(actor.OrgID, u.ID(), role)
	if err != nil {
		return nil, err
	}
	if err := s.orgRepo.AddMember(ctx, m); err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionMemberAdded, audit.ResourceTypeMembership, u.ID().String()).
		WithMetadata("role", role.String()))
	return m, nil
}

// UpdateMemberRole changes a member's role. Callers can only manage members
// whose current and new roles they could grant.
func (s *OrganizationService) UpdateMemberRole(ctx context.Context, actor Actor, userID shared.ID, roleName string) (*organization.Membership, error) {
	role, ok := organization.ParseRole(roleName)
	if !ok {
		return nil, fmt.Errorf("%w: invalid role %q", shared.ErrValidation, roleName)
	}
	m, err := s.orgRepo.GetMembership(ctx, actor.OrgID, userID)
	if err != nil {
		return nil, err
	}
	if m.Role() == organization.RoleOwner {
		return nil, fmt.Errorf("%w: the owner's role cannot be changed", shared.ErrConflict)
	}
	if !actor.Role.CanAssign(role) || !actor.Role.CanAssign(m.Role()) {
		return nil, fmt.Errorf("%w: insufficient role", shared.ErrForbidden)
	}

	before := m.Role()
	if err := m.ChangeRole(role); err != nil {
		return nil, err
	}
	if err := s.orgRepo.UpdateMembership(ctx, m); err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionMemberRoleChanged, audit.ResourceTypeMembership, userID.String()).
		WithChanges(audit.NewChanges().Set("role", before.String(), role.String())))
	return m, nil
}

// RemoveMember removes a member from the organization and all its
// workspaces. The owner cannot be removed.
func (s *OrganizationService) RemoveMember(ctx context.Context, actor Actor, userID shared.ID) error {
	m, err := s.orgRepo.GetMembership(ctx, actor.OrgID, userID)
	if err != nil {
		return err
	}
	if m.Role() == organization.RoleOwner {
		return fmt.Errorf("%w: the owner cannot be removed", shared.ErrConflict)
	}
	if !actor.UserID.Equals(userID) && !actor.Role.CanAssign(m.Role()) {
		return fmt.Errorf("%w: insufficient role", shared.ErrForbidden)
	}

	if err := s.orgRepo.RemoveMember(ctx, actor.OrgID, userID); err != nil {
		return err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionMemberRemoved, audit.ResourceTypeMembership, userID.String()))
	return nil
}
