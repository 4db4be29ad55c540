package organization

// Role is a member's role within an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// AssignableRoles can be granted through the members API. Ownership is
// never assigned, only created with the organization.
var AssignableRoles = []Role{RoleAdmin, RoleMember, RoleViewer}

// IsValid checks if the role is valid.
func (r Role) IsValid() bool {
	return r.Priority() > 0
}

func (r Role) String() string {
	return string(r)
}

// Priority orders roles; higher means more privileges.
func (r Role) Priority() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// IsAtLeast reports whether r has at least min's privileges.
func (r Role) IsAtLeast(min Role) bool {
	return r.IsValid() && r.Priority() >= min.Priority()
}

// CanWrite reports whether r may create and modify resources.
func (r Role) CanWrite() bool {
	return r.IsAtLeast(RoleMember)
}

// CanManageMembers reports whether r may add, update and remove members.
func (r Role) CanManageMembers() bool {
	return r.IsAtLeast(RoleAdmin)
}

// CanAssign reports whether r may grant target to someone else.
func (r Role) CanAssign(target Role) bool {
	switch r {
	case RoleOwner:
		return target != RoleOwner && target.IsValid()
	case RoleAdmin:
		return target == RoleMember || target == RoleViewer
	}
	return false
}

// ParseRole parses a role name.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.IsValid()
}
