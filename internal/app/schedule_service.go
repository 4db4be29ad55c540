package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/internal/metrics"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/schedule"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
	"github.com/openctemio/reposcan/pkg/logger"
)

// ScheduleService manages recurring scans.
type ScheduleService struct {
	repo         schedule.Repository
	repos        *RepositoryService
	workspaces   *WorkspaceService
	scans        *ScanService
	entitlements *EntitlementService
	auditService *AuditService
	logger       *logger.Logger
	now          func() time.Time
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(
	repo schedule.Repository,
	repos *RepositoryService,
	workspaces *WorkspaceService,
	scans *ScanService,
	entitlements *EntitlementService,
	auditService *AuditService,
	log *logger.Logger,
) *ScheduleService {
	return &ScheduleService{
		repo:         repo,
		repos:        repos,
		workspaces:   workspaces,
		scans:        scans,
		entitlements: entitlements,
		auditService: auditService,
		logger:       log.With("service", "schedule"),
		now:          time.Now,
	}
}

// CreateScheduleInput represents the input for creating a schedule.
type CreateScheduleInput struct {
	RepositoryID string `json:"repository_id" validate:"required,uuid"`
	Cron         string `json:"cron" validate:"required,cron"`
	// Branch may be empty to scan the repository's default branch.
	Branch string `json:"branch" validate:"omitempty,branch"`
}

// Create schedules recurring scans of a repository.
func (s *ScheduleService) Create(ctx context.Context, actor Actor, input CreateScheduleInput) (*schedule.Schedule, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	repoID, err := shared.IDFromString(input.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid repository id", shared.ErrValidation)
	}
	repo, err := s.repos.Get(ctx, actor, repoID)
	if err != nil {
		return nil, err
	}
	if input.Branch != "" {
		if err := sourcerepo.ValidateBranch(input.Branch); err != nil {
			return nil, err
		}
	}

	sch, err := schedule.NewSchedule(actor.OrgID, repo.WorkspaceID(), repo.ID(), input.Cron, input.Branch, actor.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sch); err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionScheduleCreated, audit.ResourceTypeSchedule, sch.ID().String()).
		WithMetadata("cron", sch.Cron()).
		WithMetadata("repository_id", repo.ID().String()))
	return sch, nil
}

func (s *ScheduleService) authorize(ctx context.Context, actor Actor) error {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return err
	}
	return s.entitlements.Authorize(ctx, actor, plan.PermScanSchedule)
}

// Get returns a schedule of the caller's organization.
func (s *ScheduleService) Get(ctx context.Context, actor Actor, id shared.ID) (*schedule.Schedule, error) {
	sch, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sch.OrgID().Equals(actor.OrgID) {
		return nil, schedule.ErrScheduleNotFound
	}
	return sch, nil
}

// List returns the schedules of a workspace.
func (s *ScheduleService) List(ctx context.Context, actor Actor, workspaceID shared.ID) ([]*schedule.Schedule, error) {
	ws, err := s.workspaces.Get(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByWorkspace(ctx, ws.ID())
}

// UpdateScheduleInput represents the input for updating a schedule.
type UpdateScheduleInput struct {
	Cron    *string `json:"cron" validate:"omitempty,cron"`
	Branch  *string `json:"branch" validate:"omitempty,max=255"`
	Enabled *bool   `json:"enabled"`
}

// Update changes a schedule's expression, branch or state.
func (s *ScheduleService) Update(ctx context.Context, actor Actor, id shared.ID, input UpdateScheduleInput) (*schedule.Schedule, error) {
	if err := s.authorize(ctx, actor); err != nil {
		return nil, err
	}
	sch, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	changes := audit.NewChanges()
	if input.Cron != nil && *input.Cron != sch.Cron() {
		before := sch.Cron()
		if err := sch.UpdateCron(*input.Cron, now); err != nil {
			return nil, err
		}
		changes.Set("cron", before, sch.Cron())
	}
	if input.Branch != nil && *input.Branch != sch.Branch() {
		if *input.Branch != "" {
			if err := sourcerepo.ValidateBranch(*input.Branch); err != nil {
				return nil, err
			}
		}
		changes.Set("branch", sch.Branch(), *input.Branch)
		sch.SetBranch(*input.Branch)
	}
	if input.Enabled != nil && *input.Enabled != sch.Enabled() {
		changes.Set("enabled", sch.Enabled(), *input.Enabled)
		if err := setEnabled(sch, *input.Enabled, now); err != nil {
			return nil, err
		}
	}
	if changes.IsEmpty() {
		return sch, nil
	}

	if err := s.repo.Update(ctx, sch); err != nil {
		return nil, err
	}
	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionScheduleUpdated, audit.ResourceTypeSchedule, sch.ID().String()).
		WithChanges(changes))
	return sch, nil
}

// Enable turns a schedule on.
func (s *ScheduleService) Enable(ctx context.Context, actor Actor, id shared.ID) (*schedule.Schedule, error) {
	enabled := true
	return s.Update(ctx, actor, id, UpdateScheduleInput{Enabled: &enabled})
}

// Disable turns a schedule off.
func (s *ScheduleService) Disable(ctx context.Context, actor Actor, id shared.ID) (*schedule.Schedule, error) {
	enabled := false
	return s.Update(ctx, actor, id, UpdateScheduleInput{Enabled: &enabled})
}

func setEnabled(sch *schedule.Schedule, enabled bool, now time.Time) error {
	if enabled {
		return sch.Enable(now)
	}
	sch.Disable()
	return nil
}

// Delete removes a schedule.
func (s *ScheduleService) Delete(ctx context.Context, actor Actor, id shared.ID) error {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return err
	}
	sch, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, sch.ID()); err != nil {
		return err
	}
	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionScheduleDeleted, audit.ResourceTypeSchedule, sch.ID().String()))
	return nil
}

// DispatchDue triggers scans for up to batch due schedules and moves each
// to its next run, whether or not its scan could be queued. It returns the
// number of schedules processed.
func (s *ScheduleService) DispatchDue(ctx context.Context, now time.Time, batch int) (int, error) {
	due, err := s.repo.ListDue(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	var firstErr error
	for _, sch := range due {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		s.dispatch(ctx, sch)

		if sch.Enabled() {
			if err := sch.MarkRun(now); err != nil {
				s.logger.Error("failed to reschedule", "schedule_id", sch.ID().String(), "error", err)
				sch.Disable()
			}
		}
		if err := s.repo.Update(ctx, sch); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("update schedule %s: %w", sch.ID(), err)
		}
	}
	return len(due), firstErr
}

func (s *ScheduleService) dispatch(ctx context.Context, sch *schedule.Schedule) {
	actor := SystemActor(sch.OrgID())
	// The plan may have been downgraded since the schedule was created.
	var sc *scan.Scan
	err := s.entitlements.Authorize(ctx, actor, plan.PermScanSchedule)
	if err == nil {
		sc, err = s.scans.Trigger(ctx, actor, sch.RepositoryID(), sch.Branch(), scan.TriggerScheduled)
	}

	switch {
	case err == nil:
		metrics.SchedulesDispatchedTotal.WithLabelValues("queued").Inc()
		s.logger.Debug("scheduled scan queued", "schedule_id", sch.ID().String(), "scan_id", sc.ID().String())
	case errors.Is(err, shared.ErrPlanRestricted), errors.Is(err, shared.ErrQuotaExceeded):
		metrics.SchedulesDispatchedTotal.WithLabelValues("denied").Inc()
		s.logger.Warn("scheduled scan denied",
			"schedule_id", sch.ID().String(),
			"org_id", sch.OrgID().String(),
			"reason", err.Error())
	case shared.IsNotFound(err):
		metrics.SchedulesDispatchedTotal.WithLabelValues("error").Inc()
		s.logger.Warn("schedule target gone, disabling", "schedule_id", sch.ID().String(), "error", err)
		sch.Disable()
	default:
		metrics.SchedulesDispatchedTotal.WithLabelValues("error").Inc()
		s.logger.Error("failed to dispatch schedule", "schedule_id", sch.ID().String(), "error", err)
	}
}
