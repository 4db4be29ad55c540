package organization

import (
	"context"
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Errors.
var (
	ErrOrganizationNotFound = fmt.Errorf("%w: organization not found", shared.ErrNotFound)
	ErrSlugTaken            = fmt.Errorf("%w: organization slug already taken", shared.ErrAlreadyExists)
	ErrMembershipNotFound   = fmt.Errorf("%w: membership not found", shared.ErrNotFound)
	ErrAlreadyMember        = fmt.Errorf("%w: user is already a member", shared.ErrAlreadyExists)
)

// Repository persists organizations and their memberships.
type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id shared.ID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	Update(ctx context.Context, o *Organization) error
	// List returns organizations in creation order starting after the given
	// ID; a zero ID starts from the beginning.
	List(ctx context.Context, after shared.ID, limit int) ([]*Organization, error)

	AddMember(ctx context.Context, m *Membership) error
	GetMembership(ctx context.Context, orgID, userID shared.ID) (*Membership, error)
	UpdateMembership(ctx context.Context, m *Membership) error
	RemoveMember(ctx context.Context, orgID, userID shared.ID) error
	ListMembers(ctx context.Context, orgID shared.ID) ([]Member, error)
	// ListForUser returns the memberships of a user, oldest first.
	ListForUser(ctx context.Context, userID shared.ID) ([]*Membership, error)
}
