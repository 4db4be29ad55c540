// Package plan resolves subscription plan entitlements.
//
// A plan grants a fixed set of permission strings and a fixed set of numeric
// limits. Both tables are package-level constants: they are checked for
// exhaustiveness when the package is initialised and never change afterwards,
// so every lookup is safe for concurrent use without locking.
package plan

import (
	"fmt"
	"strings"
)

// Plan is a subscription tier.
type Plan string

// Plans ordered by increasing entitlement.
const (
	Starter    Plan = "STARTER"
	Pro        Plan = "PRO"
	Business   Plan = "BUSINESS"
	Enterprise Plan = "ENTERPRISE"
)

// Default is the plan assigned to newly created organizations.
const Default = Starter

var allPlans = []Plan{Starter, Pro, Business, Enterprise}

// All returns every plan ordered by increasing entitlement.
func All() []Plan {
	out := make([]Plan, len(allPlans))
	copy(out, allPlans)
	return out
}

// IsValid checks if the plan is one of the defined tiers.
func (p Plan) IsValid() bool {
	return p.Rank() >= 0
}

// Rank returns the position of the plan in entitlement order, or -1 if the
// plan is not defined.
func (p Plan) Rank() int {
	for i, candidate := range allPlans {
		if candidate == p {
			return i
		}
	}
	return -1
}

// IsUpgradeFrom reports whether p grants more than other.
func (p Plan) IsUpgradeFrom(other Plan) bool {
	return p.Rank() > other.Rank()
}

func (p Plan) String() string {
	return string(p)
}

// ParsePlan parses a plan name. Matching is case-insensitive on input but
// the returned value is always canonical.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
	return p, nil
}
