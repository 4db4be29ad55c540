package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/internal/infra/scm"
	"github.com/openctemio/reposcan/pkg/crypto"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

func TestRepositoryService_Connect(t *testing.T) {
	ctx := context.Background()

	t.Run("detects provider and defaults branch", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
		require.NoError(t, err)

		repo, err := f.repositorySvc.Connect(ctx, owner, ws.ID(), ConnectRepositoryInput{
			URL:   "https://github.com/acme/web.git",
			Token: "ghp_secret",
		})
		require.NoError(t, err)
		assert.Equal(t, sourcerepo.ProviderGitHub, repo.Provider())
		assert.Equal(t, sourcerepo.DefaultBranch, repo.DefaultBranch())
		assert.True(t, repo.HasToken())
		assert.Nil(t, repo.LastVerifiedAt())
		assert.Empty(t, f.resolver.reqs, "no remote call without verify")
	})

	t.Run("verify records the head commit", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
		require.NoError(t, err)

		repo, err := f.repositorySvc.Connect(ctx, owner, ws.ID(), ConnectRepositoryInput{
			URL:    "https://gitlab.com/acme/web",
			Token:  "glpat",
			Verify: true,
		})
		require.NoError(t, err)
		assert.Equal(t, f.resolver.head.Commit, repo.LastCommit())
		require.Len(t, f.resolver.reqs, 1)
		assert.Equal(t, "glpat", f.resolver.reqs[0].Token)
		assert.Equal(t, "main", f.resolver.reqs[0].Branch)
	})

	t.Run("duplicate url in the same workspace", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		ws, repo := f.seedRepo(owner)

		_, err := f.repositorySvc.Connect(ctx, owner, ws.ID(), ConnectRepositoryInput{URL: repo.URL().String()})
		assert.ErrorIs(t, err, sourcerepo.ErrAlreadyConnected)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("unreachable remote on verify", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
		require.NoError(t, err)
		f.resolver.err = scm.ErrRemoteUnavailable.Wrap(errBoom)

		_, err = f.repositorySvc.Connect(ctx, owner, ws.ID(), ConnectRepositoryInput{
			URL: "https://github.com/acme/web", Verify: true,
		})
		assert.ErrorIs(t, err, scm.ErrRemoteUnavailable)
		assert.NotErrorIs(t, err, shared.ErrValidation)
	})

	t.Run("unknown branch on verify", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
		require.NoError(t, err)
		f.resolver.err = scm.ErrBranchNotFound

		_, err = f.repositorySvc.Connect(ctx, owner, ws.ID(), ConnectRepositoryInput{
			URL: "https://github.com/acme/web", DefaultBranch: "release", Verify: true,
		})
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.ErrorIs(t, err, scm.ErrBranchNotFound)
	})

	t.Run("viewer is forbidden", func(t *testing.T) {
		f := newFixture()
		_, owner := f.newOrg(plan.Starter)
		ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
		require.NoError(t, err)
		viewer := f.addMember(owner, organization.RoleViewer)

		_, err = f.repositorySvc.Connect(ctx, viewer, ws.ID(), ConnectRepositoryInput{URL: "https://github.com/acme/web"})
		assert.ErrorIs(t, err, shared.ErrForbidden)
	})
}

func TestRepositoryService_Connect_HostPolicy(t *testing.T) {
	f := newFixture()
	svc := NewRepositoryService(f.repos, f.workspaceSvc, crypto.NoOpEncryptor{}, f.resolver,
		validator.NewHostPolicy(), f.entitlements, f.auditSvc, logger.NewNop())
	_, owner := f.newOrg(plan.Starter)
	ctx := context.Background()
	ws, err := f.workspaceSvc.Create(ctx, owner, CreateWorkspaceInput{Name: "Backend"})
	require.NoError(t, err)

	_, err = svc.Connect(ctx, owner, ws.ID(), ConnectRepositoryInput{URL: "https://localhost/acme/web.git"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Connect(ctx, owner, ws.ID(), ConnectRepositoryInput{URL: "https://github.com/acme/web.git"})
	assert.NoError(t, err)
}

func TestRepositoryService_UpdateAndVerify(t *testing.T) {
	f := newFixture()
	_, owner := f.newOrg(plan.Starter)
	_, repo := f.seedRepo(owner)
	ctx := context.Background()

	token := "rotated"
	branch := "develop"
	updated, err := f.repositorySvc.Update(ctx, owner, repo.ID(), UpdateRepositoryInput{
		Token:         &token,
		DefaultBranch: &branch,
	})
	require.NoError(t, err)
	assert.Equal(t, "develop", updated.DefaultBranch())

	_, head, err := f.repositorySvc.Verify(ctx, owner, repo.ID())
	require.NoError(t, err)
	assert.Equal(t, f.resolver.head.Commit, head.Commit)
	last := f.resolver.reqs[len(f.resolver.reqs)-1]
	assert.Equal(t, "rotated", last.Token)
	assert.Equal(t, "develop", last.Branch)

	updated, err = f.repositorySvc.Update(ctx, owner, repo.ID(), UpdateRepositoryInput{ClearToken: true})
	require.NoError(t, err)
	assert.False(t, updated.HasToken())
}

func TestRepositoryService_OtherOrganization(t *testing.T) {
	f := newFixture()
	_, a := f.newOrg(plan.Pro)
	_, b := f.newOrg(plan.Pro)
	_, repo := f.seedRepo(a)
	ctx := context.Background()

	_, err := f.repositorySvc.Get(ctx, b, repo.ID())
	assert.ErrorIs(t, err, sourcerepo.ErrRepositoryNotFound)
	assert.ErrorIs(t, f.repositorySvc.Disconnect(ctx, b, repo.ID()), shared.ErrNotFound)
	require.NoError(t, f.repositorySvc.Disconnect(ctx, a, repo.ID()))
}
