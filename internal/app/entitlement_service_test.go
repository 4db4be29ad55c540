package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
)

type countingCache struct {
	mu      sync.Mutex
	values  map[string]plan.Plan
	loads   int
	deletes int
	// failDeletes makes that many Delete calls fail.
	failDeletes int
}

func (c *countingCache) GetOrLoad(ctx context.Context, key string, loader func(context.Context) (plan.Plan, error)) (plan.Plan, error) {
	c.mu.Lock()
	if p, ok := c.values[key]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	p, err := loader(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.loads++
	c.values[key] = p
	c.mu.Unlock()
	return p, nil
}

func (c *countingCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDeletes > 0 {
		c.failDeletes--
		return errBoom
	}
	delete(c.values, key)
	c.deletes++
	return nil
}

func TestEntitlementService_Require(t *testing.T) {
	tests := []struct {
		name         string
		plan         plan.Plan
		perm         string
		wantRequired plan.Plan
		wantErr      bool
	}{
		{name: "starter runs scans", plan: plan.Starter, perm: plan.PermScanRun},
		{name: "starter cannot schedule", plan: plan.Starter, perm: plan.PermScanSchedule, wantRequired: plan.Pro, wantErr: true},
		{name: "pro cannot read audit", plan: plan.Pro, perm: plan.PermAuditRead, wantRequired: plan.Business, wantErr: true},
		{name: "enterprise has sso", plan: plan.Enterprise, perm: plan.PermSSOUse},
		{name: "unknown permission", plan: plan.Enterprise, perm: "scan:run", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, owner := f.newOrg(tt.plan)

			err := f.entitlements.Require(context.Background(), owner.OrgID, tt.perm)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			var restricted *PlanRestrictedError
			require.True(t, errors.As(err, &restricted))
			assert.True(t, errors.Is(err, shared.ErrPlanRestricted))
			assert.Equal(t, tt.plan, restricted.Plan)
			assert.Equal(t, tt.wantRequired, restricted.Required)
		})
	}
}

func TestEntitlementService_AuthorizeAuditsDenial(t *testing.T) {
	f := newFixture()
	_, owner := f.newOrg(plan.Starter)

	err := f.entitlements.Authorize(context.Background(), owner, plan.PermReportExport)
	require.ErrorIs(t, err, shared.ErrPlanRestricted)

	denied := f.audits.withResult(audit.ResultDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, audit.ActionEntitlementDenied, denied[0].Action())
	assert.Equal(t, plan.PermReportExport, denied[0].ResourceID())
	assert.Equal(t, "STARTER", denied[0].Metadata()["plan"])
}

func TestEntitlementService_InvalidStoredPlan(t *testing.T) {
	f := newFixture()
	now := time.Now()
	org := organization.Reconstitute(shared.NewID(), "Legacy", "legacy", plan.Plan("FREE"), shared.NewID(), nil, now, now)
	require.NoError(t, f.orgs.Create(context.Background(), org))

	err := f.entitlements.Require(context.Background(), org.ID(), plan.PermScanRun)
	require.Error(t, err)
	assert.ErrorIs(t, err, plan.ErrInvalidPlan)
	assert.False(t, errors.Is(err, shared.ErrPlanRestricted), "an invalid plan must not be treated as a plan without the permission")
}

func TestEntitlementService_CheckLimit(t *testing.T) {
	tests := []struct {
		name    string
		plan    plan.Plan
		limit   plan.LimitName
		usage   int
		wantMax int
		wantErr bool
	}{
		{name: "below cap", plan: plan.Starter, limit: plan.LimitMaxWorkspaces, usage: 0},
		{name: "at cap", plan: plan.Starter, limit: plan.LimitMaxWorkspaces, usage: 1, wantMax: 1, wantErr: true},
		{name: "pro users", plan: plan.Pro, limit: plan.LimitMaxUsersPerWorkspace, usage: 10, wantMax: 10, wantErr: true},
		{name: "unlimited", plan: plan.Enterprise, limit: plan.LimitScansPerDay, usage: 1_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, owner := f.newOrg(tt.plan)

			err := f.entitlements.CheckLimit(context.Background(), owner.OrgID, tt.limit, tt.usage)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var quota *QuotaExceededError
			require.True(t, errors.As(err, &quota))
			assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
			assert.Equal(t, tt.wantMax, quota.Max)
			assert.Equal(t, tt.usage, quota.Used)
			assert.Equal(t, tt.limit, quota.Limit)
		})
	}
}

func TestEntitlementService_Summary(t *testing.T) {
	f := newFixture()
	_, owner := f.newOrg(plan.Pro)
	_, repo := f.seedRepo(owner)
	_, err := f.scanSvc.Trigger(context.Background(), owner, repo.ID(), "", "manual")
	require.NoError(t, err)

	summary, err := f.entitlements.Summary(context.Background(), owner.OrgID)
	require.NoError(t, err)

	assert.Equal(t, plan.Pro, summary.Plan)
	assert.Contains(t, summary.Permissions, plan.PermScanSchedule)
	assert.Equal(t, 25, summary.Limits.ScansPerDay)
	assert.Equal(t, 1, summary.Usage.ScansToday)
	assert.Equal(t, 1, summary.Usage.Workspaces)
	assert.True(t, summary.ResetsAt.After(time.Now()))
	assert.Equal(t, 0, summary.ResetsAt.Hour())
}

func TestEntitlementService_PlanCache(t *testing.T) {
	f := newFixture()
	org, owner := f.newOrg(plan.Starter)
	cache := &countingCache{values: map[string]plan.Plan{}}
	svc := NewEntitlementService(f.orgs, f.workspaces, f.scans, cache, nil, logger.NewNop())
	ctx := context.Background()

	for range 3 {
		p, err := svc.PlanForOrg(ctx, owner.OrgID)
		require.NoError(t, err)
		assert.Equal(t, plan.Starter, p)
	}
	assert.Equal(t, 1, cache.loads)

	_, err := org.ChangePlan(plan.Business)
	require.NoError(t, err)
	p, _ := svc.PlanForOrg(ctx, owner.OrgID)
	assert.Equal(t, plan.Starter, p, "stale until invalidated")

	require.NoError(t, svc.Invalidate(ctx, owner.OrgID))
	p, err = svc.PlanForOrg(ctx, owner.OrgID)
	require.NoError(t, err)
	assert.Equal(t, plan.Business, p)
	assert.Equal(t, 1, cache.deletes)
}
