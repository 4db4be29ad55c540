package audit

import "fmt"

// Action is what happened.
type Action string

const (
	ActionUserRegistered      Action = "user.registered"
	ActionUserLogin           Action = "user.login"
	ActionUserPasswordChanged Action = "user.password_changed"

	ActionOrganizationUpdated     Action = "organization.updated"
	ActionOrganizationPlanChanged Action = "organization.plan_changed"

	ActionMemberAdded       Action = "member.added"
	ActionMemberRemoved     Action = "member.removed"
	ActionMemberRoleChanged Action = "member.role_changed"

	ActionWorkspaceCreated       Action = "workspace.created"
	ActionWorkspaceUpdated       Action = "workspace.updated"
	ActionWorkspaceDeleted       Action = "workspace.deleted"
	ActionWorkspaceMemberAdded   Action = "workspace.member_added"
	ActionWorkspaceMemberRemoved Action = "workspace.member_removed"

	ActionRepositoryConnected    Action = "repository.connected"
	ActionRepositoryUpdated      Action = "repository.updated"
	ActionRepositoryDisconnected Action = "repository.disconnected"

	ActionScanTriggered       Action = "scan.triggered"
	ActionScanCanceled        Action = "scan.canceled"
	ActionScanCompleted       Action = "scan.completed"
	ActionScanFailed          Action = "scan.failed"
	ActionScanResultsUploaded Action = "scan.results_uploaded"
	ActionReportExported      Action = "report.exported"

	ActionScheduleCreated Action = "schedule.created"
	ActionScheduleUpdated Action = "schedule.updated"
	ActionScheduleDeleted Action = "schedule.deleted"

	ActionEntitlementDenied Action = "entitlement.denied"
	ActionAuditExported     Action = "audit.exported"
)

var allActions = []Action{
	ActionUserRegistered, ActionUserLogin, ActionUserPasswordChanged,
	ActionOrganizationUpdated, ActionOrganizationPlanChanged,
	ActionMemberAdded, ActionMemberRemoved, ActionMemberRoleChanged,
	ActionWorkspaceCreated, ActionWorkspaceUpdated, ActionWorkspaceDeleted,
	ActionWorkspaceMemberAdded, ActionWorkspaceMemberRemoved,
	ActionRepositoryConnected, ActionRepositoryUpdated, ActionRepositoryDisconnected,
	ActionScanTriggered, ActionScanCanceled, ActionScanCompleted, ActionScanFailed,
	ActionScanResultsUploaded, ActionReportExported,
	ActionScheduleCreated, ActionScheduleUpdated, ActionScheduleDeleted,
	ActionEntitlementDenied, ActionAuditExported,
}

// AllActions returns every known action.
func AllActions() []Action {
	out := make([]Action, len(allActions))
	copy(out, allActions)
	return out
}

func (a Action) String() string {
	return string(a)
}

// IsValid checks if the action is known.
func (a Action) IsValid() bool {
	for _, known := range allActions {
		if a == known {
			return true
		}
	}
	return false
}

// Category returns the part before the dot, e.g. "scan".
func (a Action) Category() string {
	for i := 0; i < len(a); i++ {
		if a[i] == '.' {
			return string(a[:i])
		}
	}
	return "unknown"
}

// ResourceType is the kind of object acted upon.
type ResourceType string

const (
	ResourceTypeUser         ResourceType = "user"
	ResourceTypeOrganization ResourceType = "organization"
	ResourceTypeMembership   ResourceType = "membership"
	ResourceTypeWorkspace    ResourceType = "workspace"
	ResourceTypeRepository   ResourceType = "repository"
	ResourceTypeScan         ResourceType = "scan"
	ResourceTypeSchedule     ResourceType = "schedule"
	ResourceTypePermission   ResourceType = "permission"
)

func (r ResourceType) String() string {
	return string(r)
}

// IsValid checks if the resource type is known.
func (r ResourceType) IsValid() bool {
	switch r {
	case ResourceTypeUser, ResourceTypeOrganization, ResourceTypeMembership,
		ResourceTypeWorkspace, ResourceTypeRepository, ResourceTypeScan,
		ResourceTypeSchedule, ResourceTypePermission:
		return true
	}
	return false
}

// Result is the outcome of an action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultDenied  Result = "denied"
)

func (r Result) String() string {
	return string(r)
}

// IsValid checks if the result is known.
func (r Result) IsValid() bool {
	switch r {
	case ResultSuccess, ResultFailure, ResultDenied:
		return true
	}
	return false
}

// Severity ranks how interesting an entry is to an administrator.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) String() string {
	return string(s)
}

// IsValid checks if the severity is known.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeverityForAction returns the default severity for an action.
func SeverityForAction(a Action) Severity {
	switch a {
	case ActionOrganizationPlanChanged, ActionEntitlementDenied:
		return SeverityCritical
	case ActionMemberRemoved, ActionMemberRoleChanged, ActionWorkspaceDeleted,
		ActionRepositoryDisconnected, ActionUserPasswordChanged:
		return SeverityHigh
	case ActionMemberAdded, ActionWorkspaceCreated, ActionRepositoryConnected,
		ActionScheduleCreated, ActionScheduleDeleted, ActionReportExported, ActionUserRegistered:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Changes holds before/after values for an update.
type Changes struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// NewChanges creates an empty Changes.
func NewChanges() *Changes {
	return &Changes{
		Before: make(map[string]any),
		After:  make(map[string]any),
	}
}

// Set records both values for key.
func (c *Changes) Set(key string, before, after any) *Changes {
	c.Before[key] = before
	c.After[key] = after
	return c
}

// IsEmpty checks if nothing was recorded.
func (c *Changes) IsEmpty() bool {
	return len(c.Before) == 0 && len(c.After) == 0
}

func (c *Changes) String() string {
	if c.IsEmpty() {
		return "no changes"
	}
	return fmt.Sprintf("before: %v, after: %v", c.Before, c.After)
}
