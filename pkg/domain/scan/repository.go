package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/pagination"
)

// ErrScanNotFound is returned when a scan does not exist.
var ErrScanNotFound = fmt.Errorf("%w: scan not found", shared.ErrNotFound)

// Filter narrows List results. OrgID is always required.
type Filter struct {
	OrgID        shared.ID
	WorkspaceID  *shared.ID
	RepositoryID *shared.ID
	Status       *Status
	Trigger      *Trigger
	Since        *time.Time
}

// Repository persists scans.
type Repository interface {
	Create(ctx context.Context, s *Scan) error
	GetByID(ctx context.Context, id shared.ID) (*Scan, error)
	Update(ctx context.Context, s *Scan) error
	List(ctx context.Context, filter Filter, page pagination.Pagination) (pagination.Result[*Scan], error)

	// CountSince counts scans queued for the organization at or after since.
	CountSince(ctx context.Context, orgID shared.ID, since time.Time) (int, error)

	// DeleteOlderThan removes up to batch terminal scans queued before cutoff
	// and returns how many were removed.
	DeleteOlderThan(ctx context.Context, orgID shared.ID, cutoff time.Time, batch int) (int, error)
}
