package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/openctemio/reposcan/internal/metrics"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
	"github.com/openctemio/reposcan/pkg/logger"
)

// PlanCache caches an organization's plan by organization ID.
type PlanCache interface {
	GetOrLoad(ctx context.Context, key string, loader func(ctx context.Context) (plan.Plan, error)) (plan.Plan, error)
	Delete(ctx context.Context, key string) error
}

// UsageCounter reports today's scan usage. ok is false when no counter
// exists yet.
type UsageCounter interface {
	Used(ctx context.Context, orgID string) (used int, ok bool, err error)
}

// EntitlementService resolves what an organization's plan allows.
type EntitlementService struct {
	orgRepo       organization.Repository
	workspaceRepo workspace.Repository
	scanRepo      scan.Repository
	cache         PlanCache
	usage         UsageCounter
	auditService  *AuditService
	loads         singleflight.Group
	logger        *logger.Logger
	now           func() time.Time
}

// NewEntitlementService creates a new EntitlementService. cache and usage
// may be nil, in which case plans are read from the database on every call
// and usage is counted from stored scans.
func NewEntitlementService(
	orgRepo organization.Repository,
	workspaceRepo workspace.Repository,
	scanRepo scan.Repository,
	cache PlanCache,
	usage UsageCounter,
	log *logger.Logger,
) *EntitlementService {
	return &EntitlementService{
		orgRepo:       orgRepo,
		workspaceRepo: workspaceRepo,
		scanRepo:      scanRepo,
		cache:         cache,
		usage:         usage,
		logger:        log.With("service", "entitlement"),
		now:           time.Now,
	}
}

// SetAuditService enables audit entries for denied permissions.
func (s *EntitlementService) SetAuditService(auditSvc *AuditService) {
	s.auditService = auditSvc
}

// PlanForOrg returns the organization's current plan. Concurrent misses for
// the same organization share one load.
func (s *EntitlementService) PlanForOrg(ctx context.Context, orgID shared.ID) (plan.Plan, error) {
	key := orgID.String()
	v, err, _ := s.loads.Do(key, func() (any, error) {
		if s.cache == nil {
			return s.loadPlan(ctx, orgID)
		}
		return s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (plan.Plan, error) {
			return s.loadPlan(ctx, orgID)
		})
	})
	if err != nil {
		return "", err
	}
	return v.(plan.Plan), nil
}

func (s *EntitlementService) loadPlan(ctx context.Context, orgID shared.ID) (plan.Plan, error) {
	org, err := s.orgRepo.GetByID(ctx, orgID)
	if err != nil {
		return "", err
	}
	if !org.Plan().IsValid() {
		// Never fall back to a default plan's permissions.
		return "", fmt.Errorf("%w: organization %s has plan %q", plan.ErrInvalidPlan, orgID, string(org.Plan()))
	}
	return org.Plan(), nil
}

// Invalidate drops the cached plan of an organization. A failed delete is
// tried once more.
func (s *EntitlementService) Invalidate(ctx context.Context, orgID shared.ID) error {
	if s.cache == nil {
		return nil
	}
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = s.cache.Delete(ctx, orgID.String()); err == nil {
			return nil
		}
		s.logger.Warn("failed to invalidate plan cache", "org_id", orgID.String(), "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("invalidate plan cache: %w", err)
}

// Require returns a *PlanRestrictedError when the organization's plan lacks perm.
func (s *EntitlementService) Require(ctx context.Context, orgID shared.ID, perm string) error {
	p, err := s.PlanForOrg(ctx, orgID)
	if err != nil {
		return err
	}
	ok, err := plan.HasPermission(p, perm)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	metrics.EntitlementDeniedTotal.WithLabelValues(p.String(), perm).Inc()
	required, _ := plan.MinimumPlanFor(perm)
	return &PlanRestrictedError{Plan: p, Permission: perm, Required: required}
}

// Authorize is Require for a caller. Denials are audited.
func (s *EntitlementService) Authorize(ctx context.Context, actor Actor, perm string) error {
	err := s.Require(ctx, actor.OrgID, perm)
	var restricted *PlanRestrictedError
	if errors.As(err, &restricted) {
		s.auditService.log(ctx, actor,
			NewDeniedEvent(audit.ActionEntitlementDenied, audit.ResourceTypePermission, perm, "plan does not include permission").
				WithMetadata("plan", restricted.Plan.String()))
	}
	return err
}

// Limit returns the organization's plan and the given limit.
func (s *EntitlementService) Limit(ctx context.Context, orgID shared.ID, name plan.LimitName) (plan.Plan, plan.Limit, error) {
	p, err := s.PlanForOrg(ctx, orgID)
	if err != nil {
		return "", plan.Limit{}, err
	}
	l, err := plan.Lookup(p, name)
	if err != nil {
		return "", plan.Limit{}, err
	}
	return p, l, nil
}

// CheckLimit returns a *QuotaExceededError when usage units already in use
// leave no room under the limit.
func (s *EntitlementService) CheckLimit(ctx context.Context, orgID shared.ID, name plan.LimitName, usage int) error {
	p, l, err := s.Limit(ctx, orgID, name)
	if err != nil {
		return err
	}
	if l.Allows(usage) {
		return nil
	}
	metrics.QuotaExceededTotal.WithLabelValues(p.String(), string(name)).Inc()
	return &QuotaExceededError{Plan: p, Limit: name, Max: l.Max(), Used: usage}
}

// Usage is the organization's current consumption of its limits.
type Usage struct {
	ScansToday int `json:"scans_today"`
	Workspaces int `json:"workspaces"`
}

// EntitlementSummary describes what an organization may do and how much of
// it is used.
type EntitlementSummary struct {
	Plan        plan.Plan       `json:"plan"`
	Permissions []string        `json:"permissions"`
	Limits      plan.PlanLimits `json:"limits"`
	Usage       Usage           `json:"usage"`
	ResetsAt    time.Time       `json:"resets_at"`
}

// Summary collects plan, limits and usage. Usage counters are read
// concurrently.
func (s *EntitlementService) Summary(ctx context.Context, orgID shared.ID) (*EntitlementSummary, error) {
	p, err := s.PlanForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	perms, err := plan.Permissions(p)
	if err != nil {
		return nil, err
	}
	limits, err := plan.Limits(p)
	if err != nil {
		return nil, err
	}

	var usage Usage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.ScansToday(gctx, orgID)
		usage.ScansToday = n
		return err
	})
	g.Go(func() error {
		n, err := s.workspaceRepo.CountByOrg(gctx, orgID)
		usage.Workspaces = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect usage: %w", err)
	}

	return &EntitlementSummary{
		Plan:        p,
		Permissions: perms,
		Limits:      limits,
		Usage:       usage,
		ResetsAt:    startOfUTCDay(s.now()).AddDate(0, 0, 1),
	}, nil
}

// ScansToday returns the scans queued since UTC midnight. The live counter
// is preferred; stored scans are counted when it is missing.
func (s *EntitlementService) ScansToday(ctx context.Context, orgID shared.ID) (int, error) {
	if s.usage != nil {
		n, ok, err := s.usage.Used(ctx, orgID.String())
		if err == nil && ok {
			return n, nil
		}
		if err != nil {
			s.logger.Warn("usage counter unavailable", "org_id", orgID.String(), "error", err)
		}
	}
	return s.scanRepo.CountSince(ctx, orgID, startOfUTCDay(s.now()))
}

func startOfUTCDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
