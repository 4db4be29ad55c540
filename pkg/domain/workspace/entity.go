// Package workspace groups repositories and the people who scan them.
package workspace

import (
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Field bounds.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000
)

// Workspace is a collection of repositories inside an organization.
type Workspace struct {
	id          shared.ID
	orgID       shared.ID
	name        string
	description string
	createdBy   shared.ID
	createdAt   time.Time
	updatedAt   time.Time
}

// NewWorkspace creates a new Workspace.
func NewWorkspace(orgID shared.ID, name, description string, createdBy shared.ID) (*Workspace, error) {
	if orgID.IsZero() {
		return nil, fmt.Errorf("%w: organization is required", shared.ErrValidation)
	}
	w := &Workspace{
		id:        shared.NewID(),
		orgID:     orgID,
		createdBy: createdBy,
	}
	if err := w.Update(name, description); err != nil {
		return nil, err
	}
	w.createdAt = w.updatedAt
	return w, nil
}

// Reconstitute recreates a Workspace from persistence.
func Reconstitute(id, orgID shared.ID, name, description string, createdBy shared.ID, createdAt, updatedAt time.Time) *Workspace {
	return &Workspace{
		id:          id,
		orgID:       orgID,
		name:        name,
		description: description,
		createdBy:   createdBy,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

func (w *Workspace) ID() shared.ID        { return w.id }
func (w *Workspace) OrgID() shared.ID     { return w.orgID }
func (w *Workspace) Name() string         { return w.name }
func (w *Workspace) Description() string  { return w.description }
func (w *Workspace) CreatedBy() shared.ID { return w.createdBy }
func (w *Workspace) CreatedAt() time.Time { return w.createdAt }
func (w *Workspace) UpdatedAt() time.Time { return w.updatedAt }

// Update replaces name and description.
func (w *Workspace) Update(name, description string) error {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", shared.ErrValidation, MaxNameLength)
	}
	if len(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d characters", shared.ErrValidation, MaxDescriptionLength)
	}
	w.name = name
	w.description = description
	w.updatedAt = time.Now().UTC()
	return nil
}

// BelongsTo reports whether the workspace is owned by orgID.
func (w *Workspace) BelongsTo(orgID shared.ID) bool {
	return w.orgID.Equals(orgID)
}

// Member is a user with access to a workspace.
type Member struct {
	WorkspaceID shared.ID
	UserID      shared.ID
	Email       string
	Name        string
	AddedAt     time.Time
}
