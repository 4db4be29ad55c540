package app

import (
	"context"

	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/user"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// UserService handles the caller's own profile.
type UserService struct {
	repo    user.Repository
	orgRepo organization.Repository
	logger  *logger.Logger
}

// NewUserService creates a new UserService.
func NewUserService(repo user.Repository, orgRepo organization.Repository, log *logger.Logger) *UserService {
	return &UserService{
		repo:    repo,
		orgRepo: orgRepo,
		logger:  log.With("service", "user"),
	}
}

// Profile is a user with their organization memberships.
type Profile struct {
	User        *user.User
	Memberships []*organization.Membership
}

// GetProfile returns the caller's profile.
func (s *UserService) GetProfile(ctx context.Context, actor Actor) (*Profile, error) {
	u, err := s.repo.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	memberships, err := s.orgRepo.ListForUser(ctx, u.ID())
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, Memberships: memberships}, nil
}

// UpdateProfileInput represents the input for a profile update.
type UpdateProfileInput struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=255"`
}

// UpdateProfile updates the caller's display name.
func (s *UserService) UpdateProfile(ctx context.Context, actor Actor, input UpdateProfileInput) (*user.User, error) {
	u, err := s.repo.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		if err := u.UpdateName(validator.SanitizeText(*input.Name)); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Debug("profile updated", "user_id", u.ID().String())
	return u, nil
}
