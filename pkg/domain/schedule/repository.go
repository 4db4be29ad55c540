package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// ErrScheduleNotFound is returned when a schedule does not exist.
var ErrScheduleNotFound = fmt.Errorf("%w: schedule not found", shared.ErrNotFound)

// Repository persists schedules.
type Repository interface {
	Create(ctx context.Context, s *Schedule) error
	GetByID(ctx context.Context, id shared.ID) (*Schedule, error)
	ListByWorkspace(ctx context.Context, workspaceID shared.ID) ([]*Schedule, error)

	// ListDue returns enabled schedules whose next run is at or before now,
	// oldest first, at most limit rows.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Schedule, error)

	Update(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, id shared.ID) error
}
