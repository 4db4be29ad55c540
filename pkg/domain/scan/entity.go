// Package scan models scan runs against connected repositories.
package scan

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Scan is a single run against one branch of a repository.
type Scan struct {
	id           shared.ID
	orgID        shared.ID
	workspaceID  shared.ID
	repositoryID shared.ID
	branch       string
	commitSHA    string
	trigger      Trigger
	status       Status
	results      json.RawMessage
	summary      Summary
	errorMessage string
	queuedAt     time.Time
	startedAt    *time.Time
	finishedAt   *time.Time
	createdBy    *shared.ID
}

// NewScan creates a queued scan. createdBy is nil for scheduled runs.
func NewScan(orgID, workspaceID, repositoryID shared.ID, branch string, trigger Trigger, createdBy *shared.ID) (*Scan, error) {
	if orgID.IsZero() || workspaceID.IsZero() || repositoryID.IsZero() {
		return nil, fmt.Errorf("%w: organization, workspace and repository are required", shared.ErrValidation)
	}
	if branch == "" {
		return nil, fmt.Errorf("%w: branch is required", shared.ErrValidation)
	}
	if !trigger.IsValid() {
		return nil, fmt.Errorf("%w: invalid trigger %q", shared.ErrValidation, string(trigger))
	}
	return &Scan{
		id:           shared.NewID(),
		orgID:        orgID,
		workspaceID:  workspaceID,
		repositoryID: repositoryID,
		branch:       branch,
		trigger:      trigger,
		status:       StatusQueued,
		queuedAt:     time.Now().UTC(),
		createdBy:    createdBy,
	}, nil
}

// Reconstitute recreates a Scan from persistence.
func Reconstitute(
	id, orgID, workspaceID, repositoryID shared.ID,
	branch, commitSHA string,
	trigger Trigger,
	status Status,
	results json.RawMessage,
	summary Summary,
	errorMessage string,
	queuedAt time.Time,
	startedAt, finishedAt *time.Time,
	createdBy *shared.ID,
) *Scan {
	return &Scan{
		id:           id,
		orgID:        orgID,
		workspaceID:  workspaceID,
		repositoryID: repositoryID,
		branch:       branch,
		commitSHA:    commitSHA,
		trigger:      trigger,
		status:       status,
		results:      results,
		summary:      summary,
		errorMessage: errorMessage,
		queuedAt:     queuedAt,
		startedAt:    startedAt,
		finishedAt:   finishedAt,
		createdBy:    createdBy,
	}
}

func (s *Scan) ID() shared.ID            { return s.id }
func (s *Scan) OrgID() shared.ID         { return s.orgID }
func (s *Scan) WorkspaceID() shared.ID   { return s.workspaceID }
func (s *Scan) RepositoryID() shared.ID  { return s.repositoryID }
func (s *Scan) Branch() string           { return s.branch }
func (s *Scan) CommitSHA() string        { return s.commitSHA }
func (s *Scan) Trigger() Trigger         { return s.trigger }
func (s *Scan) Status() Status           { return s.status }
func (s *Scan) Results() json.RawMessage { return s.results }
func (s *Scan) Summary() Summary         { return s.summary }
func (s *Scan) ErrorMessage() string     { return s.errorMessage }
func (s *Scan) QueuedAt() time.Time      { return s.queuedAt }
func (s *Scan) StartedAt() *time.Time    { return s.startedAt }
func (s *Scan) FinishedAt() *time.Time   { return s.finishedAt }
func (s *Scan) CreatedBy() *shared.ID    { return s.createdBy }
func (s *Scan) IsTerminal() bool         { return s.status.IsTerminal() }

// Duration is the time between start and finish, zero until both are set.
func (s *Scan) Duration() time.Duration {
	if s.startedAt == nil || s.finishedAt == nil {
		return 0
	}
	return s.finishedAt.Sub(*s.startedAt)
}

func (s *Scan) transition(next Status) error {
	if !s.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: cannot move scan from %s to %s", shared.ErrConflict, s.status, next)
	}
	s.status = next
	return nil
}

// Start marks the scan running at the given commit.
func (s *Scan) Start(commitSHA string) error {
	if err := s.transition(StatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.commitSHA = commitSHA
	s.startedAt = &now
	return nil
}

// Complete stores the results and marks the scan completed.
func (s *Scan) Complete(results json.RawMessage, summary Summary) error {
	if err := s.transition(StatusCompleted); err != nil {
		return err
	}
	s.results = results
	s.summary = summary
	s.finish()
	return nil
}

// Fail marks the scan failed with a message.
func (s *Scan) Fail(msg string) error {
	if err := s.transition(StatusFailed); err != nil {
		return err
	}
	s.errorMessage = msg
	s.finish()
	return nil
}

// Cancel stops a queued or running scan.
func (s *Scan) Cancel() error {
	if err := s.transition(StatusCanceled); err != nil {
		return err
	}
	s.finish()
	return nil
}

func (s *Scan) finish() {
	now := time.Now().UTC()
	s.finishedAt = &now
}
