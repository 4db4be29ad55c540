package app

import (
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID    shared.ID
	OrgID     shared.ID
	Role      organization.Role
	Email     string
	IP        string
	RequestID string
}

// SystemActor is used by background work such as schedule dispatch.
func SystemActor(orgID shared.ID) Actor {
	return Actor{OrgID: orgID, Email: "system"}
}

// IsSystem reports whether the actor is not a user.
func (a Actor) IsSystem() bool {
	return a.UserID.IsZero()
}

// AuditContext returns the audit context for the actor.
func (a Actor) AuditContext() AuditContext {
	return AuditContext{
		OrgID:      a.OrgID,
		ActorID:    a.UserID,
		ActorEmail: a.Email,
		ActorIP:    a.IP,
		RequestID:  a.RequestID,
	}
}

// requireRole fails with ErrForbidden when the actor's role is below min.
// System actors pass.
func (a Actor) requireRole(min organization.Role) error {
	if a.IsSystem() || a.Role.IsAtLeast(min) {
		return nil
	}
	return fmt.Errorf("%w: requires %s role", shared.ErrForbidden, min)
}

// createdBy returns the user ID for ownership fields, nil for system actors.
func (a Actor) createdBy() *shared.ID {
	if a.IsSystem() {
		return nil
	}
	id := a.UserID
	return &id
}
