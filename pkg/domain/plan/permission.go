package plan

import "fmt"

// Permission strings checked against a plan. Matching is exact and
// case-sensitive.
const (
	PermScanRun           = "SCAN:RUN"
	PermScanView          = "SCAN:VIEW"
	PermRepositoryConnect = "REPOSITORY:CONNECT"
	PermWorkspaceCreate   = "WORKSPACE:CREATE"
	PermReportView        = "REPORT:VIEW"

	PermScanSchedule    = "SCAN:SCHEDULE"
	PermReportExport    = "REPORT:EXPORT"
	PermWorkspaceInvite = "WORKSPACE:INVITE"
	PermResultsUpload   = "RESULTS:UPLOAD"

	PermAPIUse       = "API:USE"
	PermAuditRead    = "AUDIT:READ"
	PermScanRealtime = "SCAN:REALTIME"

	PermSSOUse            = "SSO:USE"
	PermAuditExport       = "AUDIT:EXPORT"
	PermRetentionExtended = "RETENTION:EXTENDED"
)

var starterPermissions = []string{
	PermScanRun,
	PermScanView,
	PermRepositoryConnect,
	PermWorkspaceCreate,
	PermReportView,
}

var proPermissions = append(clone(starterPermissions),
	PermScanSchedule,
	PermReportExport,
	PermWorkspaceInvite,
	PermResultsUpload,
)

var businessPermissions = append(clone(proPermissions),
	PermAPIUse,
	PermAuditRead,
	PermScanRealtime,
)

var enterprisePermissions = append(clone(businessPermissions),
	PermSSOUse,
	PermAuditExport,
	PermRetentionExtended,
)

// planPermissions lists each plan's permissions in presentation order.
var planPermissions = map[Plan][]string{
	Starter:    starterPermissions,
	Pro:        proPermissions,
	Business:   businessPermissions,
	Enterprise: enterprisePermissions,
}

// permissionIndex is derived from planPermissions during init.
var permissionIndex map[Plan]map[string]struct{}

// HasPermission reports whether plan p grants perm. It fails with
// ErrInvalidPlan for a plan outside the defined set.
func HasPermission(p Plan, perm string) (bool, error) {
	set, ok := permissionIndex[p]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidPlan, string(p))
	}
	_, granted := set[perm]
	return granted, nil
}

// Permissions returns a copy of the permissions granted by plan p.
func Permissions(p Plan) ([]string, error) {
	perms, ok := planPermissions[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPlan, string(p))
	}
	return clone(perms), nil
}

// KnownPermissions returns every permission granted by at least one plan, in
// first-granted order.
func KnownPermissions() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range allPlans {
		for _, perm := range planPermissions[p] {
			if _, ok := seen[perm]; ok {
				continue
			}
			seen[perm] = struct{}{}
			out = append(out, perm)
		}
	}
	return out
}

// MinimumPlanFor returns the lowest plan granting perm. ok is false when no
// plan grants it.
func MinimumPlanFor(perm string) (p Plan, ok bool) {
	for _, candidate := range allPlans {
		if _, granted := permissionIndex[candidate][perm]; granted {
			return candidate, true
		}
	}
	return "", false
}

func clone(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
