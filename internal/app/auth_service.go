package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/internal/config"
	"github.com/openctemio/reposcan/internal/metrics"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/user"
	"github.com/openctemio/reposcan/pkg/jwt"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/password"
	"github.com/openctemio/reposcan/pkg/validator"
)

// AuthService errors.
var (
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid email or password", shared.ErrUnauthorized)
	ErrAccountSuspended     = fmt.Errorf("%w: account is suspended", shared.ErrForbidden)
	ErrRegistrationDisabled = fmt.Errorf("%w: registration is disabled", shared.ErrForbidden)
	ErrPasswordMismatch     = fmt.Errorf("%w: current password is incorrect", shared.ErrValidation)
	ErrNotAMember           = fmt.Errorf("%w: user is not a member of the organization", shared.ErrForbidden)
)

// slugAttempts bounds retries when a generated organization slug is taken.
const slugAttempts = 3

// AuthService handles registration, login and token refresh.
type AuthService struct {
	userRepo       user.Repository
	orgRepo        organization.Repository
	passwordHasher *password.Hasher
	tokenGenerator *jwt.Generator
	config         config.AuthConfig
	auditService   *AuditService
	logger         *logger.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	userRepo user.Repository,
	orgRepo organization.Repository,
	auditService *AuditService,
	cfg config.AuthConfig,
	log *logger.Logger,
) *AuthService {
	hasher := password.New(password.WithPolicy(password.Policy{
		MinLength:     cfg.PasswordMinLength,
		RequireUpper:  cfg.PasswordRequireUpper,
		RequireLower:  cfg.PasswordRequireLower,
		RequireNumber: cfg.PasswordRequireNumber,
	}))

	tokenGen := jwt.NewGenerator(jwt.TokenConfig{
		Secret:               cfg.JWTSecret,
		Issuer:               cfg.JWTIssuer,
		AccessTokenDuration:  cfg.AccessTokenDuration,
		RefreshTokenDuration: cfg.RefreshTokenDuration,
	})

	return &AuthService{
		userRepo:       userRepo,
		orgRepo:        orgRepo,
		passwordHasher: hasher,
		tokenGenerator: tokenGen,
		config:         cfg,
		auditService:   auditService,
		logger:         log.With("service", "auth"),
	}
}

// TokenGenerator exposes the generator used to validate access tokens.
func (s *AuthService) TokenGenerator() *jwt.Generator {
	return s.tokenGenerator
}

// RequestMeta carries request details recorded in the audit trail.
type RequestMeta struct {
	IP        string
	RequestID string
}

// RegisterInput represents the input for registration.
type RegisterInput struct {
	Email            string `json:"email" validate:"required,email,max=255"`
	Password         string `json:"password" validate:"required,min=8,max=72"`
	Name             string `json:"name" validate:"required,max=255"`
	OrganizationName string `json:"organization_name" validate:"required,max=100"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User         *user.User
	Organization *organization.Organization
	Role         organization.Role
	Tokens       *jwt.TokenPair
}

// Register creates a user, an organization on the STARTER plan owned by
// that user, and returns a token pair.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, meta RequestMeta) (*AuthResult, error) {
	if !s.config.AllowRegistration {
		return nil, ErrRegistrationDisabled
	}
	if err := s.passwordHasher.Validate(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	u, err := user.NewUser(input.Email, validator.SanitizeText(input.Name))
	if err != nil {
		return nil, err
	}
	hash, err := s.passwordHasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u.SetPasswordHash(hash)

	if err := s.userRepo.Create(ctx, u); err != nil {
		return nil, err
	}

	org, err := s.createOrganization(ctx, validator.SanitizeText(input.OrganizationName), u.ID())
	if err != nil {
		return nil, err
	}

	m, err := organization.NewMembership(org.ID(), u.ID(), organization.RoleOwner)
	if err != nil {
		return nil, err
	}
	if err := s.orgRepo.AddMember(ctx, m); err != nil {
		return nil, fmt.Errorf("add owner membership: %w", err)
	}

	actor := Actor{UserID: u.ID(), OrgID: org.ID(), Role: organization.RoleOwner, Email: u.Email(), IP: meta.IP, RequestID: meta.RequestID}
	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionUserRegistered, audit.ResourceTypeUser, u.ID().String()))
	s.logger.Info("user registered", "user_id", u.ID().String(), "org_id", org.ID().String())

	tokens, err := s.issue(u, org.ID(), organization.RoleOwner)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Organization: org, Role: organization.RoleOwner, Tokens: tokens}, nil
}

// createOrganization derives a slug from name, appending a random suffix
// when it is too short or already taken.
func (s *AuthService) createOrganization(ctx context.Context, name string, ownerID shared.ID) (*organization.Organization, error) {
	base := organization.Slugify(name)
	slug := base
	if len(slug) < organization.MinSlugLength {
		slug = joinSlug(base, randomSuffix())
	}

	for attempt := 0; ; attempt++ {
		org, err := organization.NewOrganization(name, slug, ownerID)
		if err != nil {
			return nil, err
		}
		err = s.orgRepo.Create(ctx, org)
		if err == nil {
			return org, nil
		}
		if !errors.Is(err, organization.ErrSlugTaken) || attempt+1 >= slugAttempts {
			return nil, err
		}
		slug = joinSlug(base, randomSuffix())
	}
}

func joinSlug(base, suffix string) string {
	if base == "" {
		return "org-" + suffix
	}
	room := organization.MaxSlugLength - len(suffix) - 1
	if len(base) > room {
		base = base[:room]
	}
	return base + "-" + suffix
}

func randomSuffix() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// LoginInput represents the input for login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	// OrganizationID selects the organization for the token. Defaults to the
	// user's oldest membership.
	OrganizationID string `json:"organization_id" validate:"omitempty,uuid"`
}

// Login checks credentials and returns a token pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput, meta RequestMeta) (*AuthResult, error) {
	email, err := user.NormalizeEmail(input.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if shared.IsNotFound(err) {
			metrics.LoginAttemptsTotal.WithLabelValues("unknown_user").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !u.HasPassword() || s.passwordHasher.Verify(input.Password, u.PasswordHash()) != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("bad_password").Inc()
		s.auditService.log(ctx, Actor{UserID: u.ID(), Email: email, IP: meta.IP, RequestID: meta.RequestID},
			NewFailureEvent(audit.ActionUserLogin, audit.ResourceTypeUser, u.ID().String(), nil).
				WithMessage("invalid credentials"))
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive() {
		metrics.LoginAttemptsTotal.WithLabelValues("suspended").Inc()
		return nil, ErrAccountSuspended
	}

	membership, err := s.pickMembership(ctx, u.ID(), input.OrganizationID)
	if err != nil {
		return nil, err
	}

	u.RecordLogin(time.Now().UTC())
	if err := s.userRepo.Update(ctx, u); err != nil {
		s.logger.Warn("failed to record login", "user_id", u.ID().String(), "error", err)
	}

	result := &AuthResult{User: u}
	var orgID shared.ID
	if membership != nil {
		org, err := s.orgRepo.GetByID(ctx, membership.OrgID())
		if err != nil {
			return nil, err
		}
		orgID = org.ID()
		result.Organization = org
		result.Role = membership.Role()
	}

	result.Tokens, err = s.issue(u, orgID, result.Role)
	if err != nil {
		return nil, err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.auditService.log(ctx, Actor{UserID: u.ID(), OrgID: orgID, Role: result.Role, Email: u.Email(), IP: meta.IP, RequestID: meta.RequestID},
		NewSuccessEvent(audit.ActionUserLogin, audit.ResourceTypeUser, u.ID().String()))
	return result, nil
}

// pickMembership returns the membership for orgID, or the oldest one when
// orgID is empty. It returns nil when the user belongs to no organization.
func (s *AuthService) pickMembership(ctx context.Context, userID shared.ID, orgID string) (*organization.Membership, error) {
	if orgID != "" {
		id, err := shared.IDFromString(orgID)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid organization id", shared.ErrValidation)
		}
		m, err := s.orgRepo.GetMembership(ctx, id, userID)
		if err != nil {
			if shared.IsNotFound(err) {
				return nil, ErrNotAMember
			}
			return nil, err
		}
		return m, nil
	}

	memberships, err := s.orgRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(memberships) == 0 {
		return nil, nil
	}
	return memberships[0], nil
}

// Refresh exchanges a refresh token for a new pair. The role is re-read so
// role changes and removals take effect.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	claims, err := s.tokenGenerator.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}

	userID, err := shared.IDFromString(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid subject", shared.ErrUnauthorized)
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, fmt.Errorf("%w: user no longer exists", shared.ErrUnauthorized)
		}
		return nil, err
	}
	if !u.IsActive() {
		return nil, ErrAccountSuspended
	}

	var (
		orgID shared.ID
		role  organization.Role
	)
	if claims.OrgID != "" {
		m, err := s.pickMembership(ctx, userID, claims.OrgID)
		if err != nil {
			return nil, err
		}
		orgID, role = m.OrgID(), m.Role()
	}
	return s.issue(u, orgID, role)
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, actor Actor, current, next string) error {
	u, err := s.userRepo.GetByID(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if s.passwordHasher.Verify(current, u.PasswordHash()) != nil {
		return ErrPasswordMismatch
	}
	if err := s.passwordHasher.Validate(next); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	hash, err := s.passwordHasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.SetPasswordHash(hash)
	if err := s.userRepo.Update(ctx, u); err != nil {
		return err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionUserPasswordChanged, audit.ResourceTypeUser, u.ID().String()))
	return nil
}

func (s *AuthService) issue(u *user.User, orgID shared.ID, role organization.Role) (*jwt.TokenPair, error) {
	id := jwt.Identity{UserID: u.ID().String(), Email: u.Email(), Role: role.String()}
	if !orgID.IsZero() {
		id.OrgID = orgID.String()
	}
	pair, err := s.tokenGenerator.GenerateTokenPair(id)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}
	return pair, nil
}
