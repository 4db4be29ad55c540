package app

import (
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// PlanRestrictedError reports a permission missing from an organization's plan.
type PlanRestrictedError struct {
	Plan       plan.Plan
	Permission string
	// Required is the lowest plan granting Permission, empty when none does.
	Required plan.Plan
}

func (e *PlanRestrictedError) Error() string {
	return fmt.Sprintf("plan restricted: %s does not include %s", e.Plan, e.Permission)
}

func (e *PlanRestrictedError) Unwrap() error { return shared.ErrPlanRestricted }

// QuotaExceededError reports an exhausted plan limit.
type QuotaExceededError struct {
	Plan  plan.Plan
	Limit plan.LimitName
	Max   int
	Used  int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s allows %d %s, %d used", e.Plan, e.Max, e.Limit, e.Used)
}

func (e *QuotaExceededError) Unwrap() error { return shared.ErrQuotaExceeded }
