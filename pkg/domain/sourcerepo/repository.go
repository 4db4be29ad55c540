package sourcerepo

import (
	"context"
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Errors.
var (
	ErrRepositoryNotFound = fmt.Errorf("%w: repository not found", shared.ErrNotFound)
	ErrAlreadyConnected   = fmt.Errorf("%w: repository already connected to this workspace", shared.ErrAlreadyExists)
)

// Store persists connected repositories.
type Store interface {
	Create(ctx context.Context, r *Repository) error
	GetByID(ctx context.Context, id shared.ID) (*Repository, error)
	ListByWorkspace(ctx context.Context, workspaceID shared.ID) ([]*Repository, error)
	Update(ctx context.Context, r *Repository) error
	Delete(ctx context.Context, id shared.ID) error
	ExistsByURL(ctx context.Context, workspaceID shared.ID, url string) (bool, error)
}
