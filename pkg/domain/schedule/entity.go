// Package schedule models recurring scans.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Schedule triggers a scan of one repository branch on a cron cadence.
type Schedule struct {
	id           shared.ID
	orgID        shared.ID
	workspaceID  shared.ID
	repositoryID shared.ID
	cron         string
	branch       string
	enabled      bool
	nextRunAt    *time.Time
	lastRunAt    *time.Time
	createdBy    shared.ID
	createdAt    time.Time
	updatedAt    time.Time
}

// NewSchedule creates an enabled schedule with nextRunAt computed from now.
func NewSchedule(orgID, workspaceID, repositoryID shared.ID, cronExpr, branch string, createdBy shared.ID, now time.Time) (*Schedule, error) {
	if orgID.IsZero() || workspaceID.IsZero() || repositoryID.IsZero() {
		return nil, fmt.Errorf("%w: organization, workspace and repository are required", shared.ErrValidation)
	}
	cronExpr = strings.TrimSpace(cronExpr)
	if err := ValidateCron(cronExpr); err != nil {
		return nil, err
	}
	now = now.UTC()
	s := &Schedule{
		id:           shared.NewID(),
		orgID:        orgID,
		workspaceID:  workspaceID,
		repositoryID: repositoryID,
		cron:         cronExpr,
		branch:       branch,
		enabled:      true,
		createdBy:    createdBy,
		createdAt:    now,
		updatedAt:    now,
	}
	if err := s.Reschedule(now); err != nil {
		return nil, err
	}
	return s, nil
}

// Reconstitute recreates a Schedule from persistence.
func Reconstitute(
	id, orgID, workspaceID, repositoryID shared.ID,
	cronExpr, branch string,
	enabled bool,
	nextRunAt, lastRunAt *time.Time,
	createdBy shared.ID,
	createdAt, updatedAt time.Time,
) *Schedule {
	return &Schedule{
		id:           id,
		orgID:        orgID,
		workspaceID:  workspaceID,
		repositoryID: repositoryID,
		cron:         cronExpr,
		branch:       branch,
		enabled:      enabled,
		nextRunAt:    nextRunAt,
		lastRunAt:    lastRunAt,
		createdBy:    createdBy,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

func (s *Schedule) ID() shared.ID           { return s.id }
func (s *Schedule) OrgID() shared.ID        { return s.orgID }
func (s *Schedule) WorkspaceID() shared.ID  { return s.workspaceID }
func (s *Schedule) RepositoryID() shared.ID { return s.repositoryID }
func (s *Schedule) Cron() string            { return s.cron }
func (s *Schedule) Branch() string          { return s.branch }
func (s *Schedule) Enabled() bool           { return s.enabled }
func (s *Schedule) NextRunAt() *time.Time   { return s.nextRunAt }
func (s *Schedule) LastRunAt() *time.Time   { return s.lastRunAt }
func (s *Schedule) CreatedBy() shared.ID    { return s.createdBy }
func (s *Schedule) CreatedAt() time.Time    { return s.createdAt }
func (s *Schedule) UpdatedAt() time.Time    { return s.updatedAt }

// IsDue reports whether an enabled schedule should fire at now.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.enabled && s.nextRunAt != nil && !s.nextRunAt.After(now)
}

// Reschedule sets nextRunAt to the first activation after now.
func (s *Schedule) Reschedule(now time.Time) error {
	next, err := NextRun(s.cron, now)
	if err != nil {
		return err
	}
	s.nextRunAt = &next
	s.updatedAt = now.UTC()
	return nil
}

// MarkRun records a dispatch at now and computes the following run.
func (s *Schedule) MarkRun(now time.Time) error {
	now = now.UTC()
	s.lastRunAt = &now
	return s.Reschedule(now)
}

// UpdateCron replaces the expression and recomputes nextRunAt.
func (s *Schedule) UpdateCron(expr string, now time.Time) error {
	expr = strings.TrimSpace(expr)
	if err := ValidateCron(expr); err != nil {
		return err
	}
	s.cron = expr
	return s.Reschedule(now)
}

// SetBranch changes the branch; empty means the repository default.
func (s *Schedule) SetBranch(branch string) {
	s.branch = branch
	s.updatedAt = time.Now().UTC()
}

// Enable turns the schedule on and recomputes nextRunAt.
func (s *Schedule) Enable(now time.Time) error {
	s.enabled = true
	return s.Reschedule(now)
}

// Disable turns the schedule off and clears nextRunAt.
func (s *Schedule) Disable() {
	s.enabled = false
	s.nextRunAt = nil
	s.updatedAt = time.Now().UTC()
}
