package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/internal/infra/scm"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// TokenCipher encrypts repository access tokens at rest. The context binds a
// ciphertext to the repository it belongs to.
type TokenCipher interface {
	Seal(plaintext, context string) (string, error)
	Open(encoded, context string) (string, error)
}

// HostChecker rejects hosts the server must not reach.
type HostChecker interface {
	Check(host string) error
}

// RepositoryService connects source repositories to workspaces.
type RepositoryService struct {
	store      sourcerepo.Store
	workspaces *WorkspaceService
	cipher     TokenCipher
	resolver   scm.Resolver
	hosts      HostChecker

	entitlements *EntitlementService
	auditService *AuditService
	logger       *logger.Logger
	now          func() time.Time
}

// NewRepositoryService creates a new RepositoryService. hosts may be nil to
// allow any host.
func NewRepositoryService(
	store sourcerepo.Store,
	workspaces *WorkspaceService,
	cipher TokenCipher,
	resolver scm.Resolver,
	hosts HostChecker,
	entitlements *EntitlementService,
	auditService *AuditService,
	log *logger.Logger,
) *RepositoryService {
	return &RepositoryService{
		store:        store,
		workspaces:   workspaces,
		cipher:       cipher,
		resolver:     resolver,
		hosts:        hosts,
		entitlements: entitlements,
		auditService: auditService,
		logger:       log.With("service", "repository"),
		now:          time.Now,
	}
}

// ConnectRepositoryInput represents the input for connecting a repository.
type ConnectRepositoryInput struct {
	URL           string `json:"url" validate:"required,max=2048"`
	Name          string `json:"name" validate:"max=255"`
	Provider      string `json:"provider" validate:"omitempty,scm_provider"`
	DefaultBranch string `json:"default_branch" validate:"omitempty,branch"`
	Token         string `json:"token" validate:"max=4096"`
	// Verify resolves the default branch before saving.
	Verify bool `json:"verify"`
}

// Connect adds a repository to a workspace.
func (s *RepositoryService) Connect(ctx context.Context, actor Actor, workspaceID shared.ID, input ConnectRepositoryInput) (*sourcerepo.Repository, error) {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return nil, err
	}
	if err := s.entitlements.Authorize(ctx, actor, plan.PermRepositoryConnect); err != nil {
		return nil, err
	}
	ws, err := s.workspaces.Get(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}

	repo, err := sourcerepo.NewRepository(actor.OrgID, ws.ID(), sourcerepo.Provider(input.Provider),
		validator.SanitizeText(input.Name), input.URL, input.DefaultBranch, actor.UserID)
	if err != nil {
		return nil, err
	}
	if s.hosts != nil {
		if err := s.hosts.Check(repo.URL().Host); err != nil {
			return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
		}
	}

	exists, err := s.store.ExistsByURL(ctx, ws.ID(), repo.URL().String())
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, sourcerepo.ErrAlreadyConnected
	}

	if input.Token != "" {
		sealed, err := s.cipher.Seal(input.Token, repo.ID().String())
		if err != nil {
			return nil, fmt.Errorf("encrypt token: %w", err)
		}
		repo.SetEncryptedToken(sealed)
	}

	if input.Verify {
		head, err := s.resolve(ctx, repo, repo.DefaultBranch(), input.Token)
		if err != nil {
			return nil, err
		}
		repo.MarkVerified(head.Commit, s.now())
	}

	if err := s.store.Create(ctx, repo); err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionRepositoryConnected, audit.ResourceTypeRepository, repo.ID().String()).
		WithMetadata("url", repo.URL().String()).
		WithMetadata("workspace_id", ws.ID().String()))
	s.logger.Info("repository connected", "repository_id", repo.ID().String(), "host", repo.URL().Host)
	return repo, nil
}

// Get returns a repository of the caller's organization.
func (s *RepositoryService) Get(ctx context.Context, actor Actor, id shared.ID) (*sourcerepo.Repository, error) {
	repo, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !repo.OrgID().Equals(actor.OrgID) {
		return nil, sourcerepo.ErrRepositoryNotFound
	}
	return repo, nil
}

// List returns the repositories of a workspace.
func (s *RepositoryService) List(ctx context.Context, actor Actor, workspaceID shared.ID) ([]*sourcerepo.Repository, error) {
	ws, err := s.workspaces.Get(ctx, actor, workspaceID)
	if err != nil {
		return nil, err
	}
	return s.store.ListByWorkspace(ctx, ws.ID())
}

// UpdateRepositoryInput represents the input for updating a repository.
// An empty Token leaves the stored token alone; ClearToken removes it.
type UpdateRepositoryInput struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=255"`
	DefaultBranch *string `json:"default_branch" validate:"omitempty,branch"`
	Token         *string `json:"token" validate:"omitempty,max=4096"`
	ClearToken    bool    `json:"clear_token"`
}

// Update changes a repository's name, default branch or token.
func (s *RepositoryService) Update(ctx context.Context, actor Actor, id shared.ID, input UpdateRepositoryInput) (*sourcerepo.Repository, error) {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return nil, err
	}
	repo, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	changes := audit.NewChanges()
	if input.Name != nil {
		name := validator.SanitizeText(*input.Name)
		if name != repo.Name() {
			changes.Set("name", repo.Name(), name)
			if err := repo.Rename(name); err != nil {
				return nil, err
			}
		}
	}
	if input.DefaultBranch != nil && *input.DefaultBranch != repo.DefaultBranch() {
		changes.Set("default_branch", repo.DefaultBranch(), *input.DefaultBranch)
		if err := repo.SetDefaultBranch(*input.DefaultBranch); err != nil {
			return nil, err
		}
	}
	switch {
	case input.ClearToken:
		if repo.HasToken() {
			changes.Set("token", "set", "cleared")
			repo.SetEncryptedToken("")
		}
	case input.Token != nil && *input.Token != "":
		sealed, err := s.cipher.Seal(*input.Token, repo.ID().String())
		if err != nil {
			return nil, fmt.Errorf("encrypt token: %w", err)
		}
		changes.Set("token", "", "rotated")
		repo.SetEncryptedToken(sealed)
	}
	if changes.IsEmpty() {
		return repo, nil
	}

	if err := s.store.Update(ctx, repo); err != nil {
		return nil, err
	}
	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionRepositoryUpdated, audit.ResourceTypeRepository, repo.ID().String()).
		WithChanges(changes))
	return repo, nil
}

// Disconnect removes a repository with its scans and schedules.
func (s *RepositoryService) Disconnect(ctx context.Context, actor Actor, id shared.ID) error {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return err
	}
	repo, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, repo.ID()); err != nil {
		return err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionRepositoryDisconnected, audit.ResourceTypeRepository, repo.ID().String()).
		WithMetadata("url", repo.URL().String()))
	return nil
}

// Verify resolves the default branch on the remote and records its commit.
func (s *RepositoryService) Verify(ctx context.Context, actor Actor, id shared.ID) (*sourcerepo.Repository, *scm.Head, error) {
	repo, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	token, err := s.token(repo)
	if err != nil {
		return nil, nil, err
	}
	head, err := s.resolve(ctx, repo, repo.DefaultBranch(), token)
	if err != nil {
		return nil, nil, err
	}

	repo.MarkVerified(head.Commit, s.now())
	if err := s.store.Update(ctx, repo); err != nil {
		return nil, nil, err
	}
	return repo, head, nil
}

// ResolveHead resolves branch of a stored repository. It is used by scan
// execution and does no access checks.
func (s *RepositoryService) ResolveHead(ctx context.Context, repo *sourcerepo.Repository, branch string) (*scm.Head, error) {
	token, err := s.token(repo)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, repo, branch, token)
}

func (s *RepositoryService) token(repo *sourcerepo.Repository) (string, error) {
	if !repo.HasToken() {
		return "", nil
	}
	token, err := s.cipher.Open(repo.EncryptedToken(), repo.ID().String())
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return token, nil
}

func (s *RepositoryService) resolve(ctx context.Context, repo *sourcerepo.Repository, branch, token string) (*scm.Head, error) {
	if s.resolver == nil {
		return nil, fmt.Errorf("%w: repository verification is not configured", shared.ErrInternal)
	}
	head, err := s.resolver.ResolveHead(ctx, scm.ResolveRequest{
		URL:      repo.URL(),
		Provider: repo.Provider(),
		Branch:   branch,
		Token:    token,
	})
	if errors.Is(err, scm.ErrRemoteUnavailable) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return head, nil
}
