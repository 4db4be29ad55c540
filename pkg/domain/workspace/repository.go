package workspace

import (
	"context"
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Errors.
var (
	ErrWorkspaceNotFound = fmt.Errorf("%w: workspace not found", shared.ErrNotFound)
	ErrNameTaken         = fmt.Errorf("%w: workspace name already used", shared.ErrAlreadyExists)
	ErrMemberNotFound    = fmt.Errorf("%w: workspace member not found", shared.ErrNotFound)
	ErrAlreadyMember     = fmt.Errorf("%w: user already has access to the workspace", shared.ErrAlreadyExists)
)

// Repository persists workspaces and their members.
type Repository interface {
	Create(ctx context.Context, w *Workspace) error
	// CreateWithMember stores w and grants userID access in one step. Neither
	// is kept if either fails.
	CreateWithMember(ctx context.Context, w *Workspace, userID shared.ID) error
	GetByID(ctx context.Context, id shared.ID) (*Workspace, error)
	ListByOrg(ctx context.Context, orgID shared.ID) ([]*Workspace, error)
	CountByOrg(ctx context.Context, orgID shared.ID) (int, error)
	Update(ctx context.Context, w *Workspace) error
	Delete(ctx context.Context, id shared.ID) error

	AddMember(ctx context.Context, workspaceID, userID shared.ID) error
	RemoveMember(ctx context.Context, workspaceID, userID shared.ID) error
	ListMembers(ctx context.Context, workspaceID shared.ID) ([]Member, error)
	CountMembers(ctx context.Context, workspaceID shared.ID) (int, error)
	IsMember(ctx context.Context, workspaceID, userID shared.ID) (bool, error)
}
