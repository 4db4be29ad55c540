package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/pagination"
)

// InvalidFilterError returns a validation error for a bad filter.
func InvalidFilterError(reason string) error {
	return fmt.Errorf("%w: invalid filter: %s", shared.ErrValidation, reason)
}

// Repository persists audit entries.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*AuditLog], error)

	// DeleteOlderThan removes the organization's entries created before
	// cutoff and returns how many were removed.
	DeleteOlderThan(ctx context.Context, orgID shared.ID, cutoff time.Time) (int64, error)
}

// Filter narrows List results.
type Filter struct {
	OrgID        shared.ID
	ActorID      *shared.ID
	Actions      []Action
	ResourceType *ResourceType
	ResourceID   *string
	Results      []Result
	Since        *time.Time
	Until        *time.Time
}

// Validate checks the filter is usable.
func (f Filter) Validate() error {
	if f.OrgID.IsZero() {
		return InvalidFilterError("organization is required")
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return InvalidFilterError("until is before since")
	}
	for _, a := range f.Actions {
		if !a.IsValid() {
			return InvalidFilterError("unknown action " + string(a))
		}
	}
	for _, r := range f.Results {
		if !r.IsValid() {
			return InvalidFilterError("unknown result " + string(r))
		}
	}
	return nil
}
