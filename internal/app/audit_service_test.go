package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
)

func TestAuditService_Export(t *testing.T) {
	ctx := context.Background()

	seed := func(f *fixture, actor Actor, n int) {
		for range n {
			require.NoError(t, f.auditSvc.LogEvent(ctx, actor.AuditContext(),
				NewSuccessEvent(audit.ActionWorkspaceCreated, audit.ResourceTypeWorkspace, shared.NewID().String())))
		}
	}

	t.Run("enterprise admin exports own organization", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Enterprise)
		_, other := f.newOrg(plan.Enterprise)
		seed(f, owner, 3)
		seed(f, other, 2)

		entries, truncated, err := f.auditSvc.Export(ctx, owner, audit.Filter{})
		require.NoError(t, err)
		assert.False(t, truncated)
		require.Len(t, entries, 3)
		for _, e := range entries {
			assert.True(t, e.OrgID().Equals(owner.OrgID))
		}
		assert.Contains(t, f.audits.actions(), audit.ActionAuditExported)
	})

	t.Run("business lacks export", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Business)

		_, _, err := f.auditSvc.Export(ctx, owner, audit.Filter{})
		var restricted *PlanRestrictedError
		require.ErrorAs(t, err, &restricted)
		assert.Equal(t, plan.Enterprise, restricted.Required)
		assert.NotContains(t, f.audits.actions(), audit.ActionAuditExported)
	})

	t.Run("members cannot export", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Enterprise)
		member := f.addMember(owner, organization.RoleMember)

		_, _, err := f.auditSvc.Export(ctx, member, audit.Filter{})
		require.ErrorIs(t, err, shared.ErrForbidden)
	})
}
