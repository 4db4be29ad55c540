package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
)

func TestWorkspaceService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("starter allows one workspace", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)

		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend", Description: "  services "})
		require.NoError(t, err)
		assert.Equal(t, "services", ws.Description())

		member, err := f.workspaces.IsMember(ctx, ws.ID(), owner.UserID)
		require.NoError(t, err)
		assert.True(t, member, "creator joins the workspace")

		_, err = f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Frontend"})
		var quotaErr *QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		assert.Equal(t, plan.LimitMaxWorkspaces, quotaErr.Limit)
		assert.Equal(t, 1, quotaErr.Max)
		assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
	})

	t.Run("failed membership leaves no workspace", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		f.workspaces.memberErr = errBoom

		_, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
		require.ErrorIs(t, err, errBoom)
		n, _ := f.workspaces.CountByOrg(ctx, owner.OrgID)
		assert.Zero(t, n)
		assert.NotContains(t, f.audits.actions(), audit.ActionWorkspaceCreated)

		f.workspaces.memberErr = nil
		_, err = f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
		require.NoError(t, err, "the quota slot is still free")
	})

	t.Run("enterprise is unlimited", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Enterprise)
		for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
			_, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: name})
			require.NoError(t, err)
		}
		n, _ := f.workspaces.CountByOrg(ctx, owner.OrgID)
		assert.Equal(t, 7, n)
	})

	t.Run("viewer cannot create", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Pro)
		viewer := f.addMember(owner, organization.RoleViewer)

		_, err := f.workspaceSvc.Create(ctx, viewer, CreateWorkspaceInput{Name: "x"})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}

func TestWorkspaceService_Get_OtherOrganization(t *testing.T) {
	f := newFixture()
	_, a := f.newOrg(plan.Pro)
	_, b := f.newOrg(plan.Pro)
	ctx := context.Background()

	ws, err := f.workspaceSvc.Create(ctx, a, CreateWorkspaceInput{Name: "Private"})
	require.NoError(t, err)

	_, err = f.workspaceSvc.Get(ctx, b, ws.ID())
	assert.ErrorIs(t, err, workspace.ErrWorkspaceNotFound)
}

func TestWorkspaceService_AddMember(t *testing.T) {
	ctx := context.Background()

	t.Run("starter needs invite permission for a second member", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Solo"})
		require.NoError(t, err)
		colleague := f.addMember(owner, organization.RoleMember)

		err = f.workspaceSvc.AddMember(ctx, owner, ws.ID(), colleague.UserID)
		var planErr *PlanRestrictedError
		require.ErrorAs(t, err, &planErr)
		assert.Equal(t, plan.PermWorkspaceInvite, planErr.Permission)
		assert.Equal(t, plan.Pro, planErr.Required)
	})

	t.Run("pro caps members per workspace", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Pro)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Team"})
		require.NoError(t, err)

		for range 9 {
			m := f.addMember(owner, organization.RoleMember)
			require.NoError(t, f.workspaceSvc.AddMember(ctx, owner, ws.ID(), m.UserID))
		}
		extra := f.addMember(owner, organization.RoleMember)
		err = f.workspaceSvc.AddMember(ctx, owner, ws.ID(), extra.UserID)
		require.True(t, errors.Is(err, shared.ErrQuotaExceeded), "got %v", err)

		members, err := f.workspaceSvc.ListMembers(ctx, owner, ws.ID())
		require.NoError(t, err)
		assert.Len(t, members, 10)
	})

	t.Run("user outside the organization", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Pro)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Team"})
		require.NoError(t, err)
		stranger := f.newUser()

		err = f.workspaceSvc.AddMember(ctx, owner, ws.ID(), stranger.ID())
		assert.ErrorIs(t, err, shared.ErrValidation)
	})
}

func TestWorkspaceService_UpdateAndDelete(t *testing.T) {
	f := newFixture()
	_, owner := f.newOrg(plan.Pro)
	member := f.addMember(owner, organization.RoleMember)
	ctx := context.Background()

	ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Old"})
	require.NoError(t, err)

	name := "New"
	ws, err = f.workspaceSvc.Update(ctx, member, ws.ID(), UpdateWorkspaceInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "New", ws.Name())

	assert.ErrorIs(t, f.workspaceSvc.Delete(ctx, member, ws.ID()), shared.ErrForbidden)
	require.NoError(t, f.workspaceSvc.Delete(ctx, owner, ws.ID()))

	_, err = f.workspaceSvc.Get(ctx, owner, ws.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Subset(t, f.audits.actions(), []audit.Action{
		audit.ActionWorkspaceCreated, audit.ActionWorkspaceUpdated, audit.ActionWorkspaceDeleted,
	})
}
