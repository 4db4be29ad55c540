package plan

import (
	"fmt"
	"slices"
)

func init() {
	if err := validateTables(allPlans, planPermissions, planLimits); err != nil {
		panic(err)
	}
	permissionIndex = buildIndex(planPermissions)
}

// validateTables checks that every plan has exactly one entry in both tables
// and that no table holds an entry for an undefined plan.
func validateTables(plans []Plan, perms map[Plan][]string, limits map[Plan]PlanLimits) error {
	for _, p := range plans {
		if _, ok := perms[p]; !ok {
			return fmt.Errorf("plan: %s has no permission entry", p)
		}
		if _, ok := limits[p]; !ok {
			return fmt.Errorf("plan: %s has no limits entry", p)
		}
	}
	for p := range perms {
		if !slices.Contains(plans, p) {
			return fmt.Errorf("plan: permission entry for undefined plan %s", p)
		}
	}
	for p, l := range limits {
		if !slices.Contains(plans, p) {
			return fmt.Errorf("plan: limits entry for undefined plan %s", p)
		}
		for _, name := range limitNames {
			v, _ := l.get(name)
			if v < Unlimited {
				return fmt.Errorf("plan: %s %s must be %d or non-negative, got %d", p, name, Unlimited, v)
			}
		}
	}
	return nil
}

func buildIndex(perms map[Plan][]string) map[Plan]map[string]struct{} {
	index := make(map[Plan]map[string]struct{}, len(perms))
	for p, list := range perms {
		set := make(map[string]struct{}, len(list))
		for _, perm := range list {
			set[perm] = struct{}{}
		}
		index[p] = set
	}
	return index
}

// Violation describes a permission a plan lacks although a lower plan grants it.
type Violation struct {
	Permission string
	GrantedBy  Plan
	MissingIn  Plan
}

func (v Violation) String() string {
	return fmt.Sprintf("%s granted by %s but missing in %s", v.Permission, v.GrantedBy, v.MissingIn)
}

// CheckMonotonic lists every permission that is granted by a plan but not by
// a higher plan. The tables are authored by hand, so an empty result is a
// convention rather than something enforced at init.
func CheckMonotonic() []Violation {
	return checkMonotonic(allPlans, planPermissions)
}

func checkMonotonic(plans []Plan, perms map[Plan][]string) []Violation {
	index := buildIndex(perms)
	var violations []Violation
	for i, lower := range plans {
		for _, perm := range perms[lower] {
			for _, higher := range plans[i+1:] {
				if _, ok := index[higher][perm]; !ok {
					violations = append(violations, Violation{Permission: perm, GrantedBy: lower, MissingIn: higher})
				}
			}
		}
	}
	return violations
}
