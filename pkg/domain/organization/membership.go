package organization

import (
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Membership links a user to an organization with a role.
type Membership struct {
	orgID    shared.ID
	userID   shared.ID
	role     Role
	joinedAt time.Time
}

// NewMembership creates a membership.
func NewMembership(orgID, userID shared.ID, role Role) (*Membership, error) {
	if orgID.IsZero() || userID.IsZero() {
		return nil, fmt.Errorf("%w: organization and user are required", shared.ErrValidation)
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: invalid role %q", shared.ErrValidation, string(role))
	}
	return &Membership{orgID: orgID, userID: userID, role: role, joinedAt: time.Now().UTC()}, nil
}

// ReconstituteMembership recreates a Membership from persistence.
func ReconstituteMembership(orgID, userID shared.ID, role Role, joinedAt time.Time) *Membership {
	return &Membership{orgID: orgID, userID: userID, role: role, joinedAt: joinedAt}
}

func (m *Membership) OrgID() shared.ID    { return m.orgID }
func (m *Membership) UserID() shared.ID   { return m.userID }
func (m *Membership) Role() Role          { return m.role }
func (m *Membership) JoinedAt() time.Time { return m.joinedAt }

// ChangeRole updates the role. The owner role cannot be granted or revoked
// this way.
func (m *Membership) ChangeRole(role Role) error {
	if m.role == RoleOwner {
		return fmt.Errorf("%w: the owner's role cannot be changed", shared.ErrConflict)
	}
	if role == RoleOwner || !role.IsValid() {
		return fmt.Errorf("%w: invalid role %q", shared.ErrValidation, string(role))
	}
	m.role = role
	return nil
}

// Member is a membership joined with user details for listing.
type Member struct {
	UserID   shared.ID
	Email    string
	Name     string
	Role     Role
	JoinedAt time.Time
}
