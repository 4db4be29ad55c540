package user

import (
	"context"
	"fmt"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Errors.
var (
	ErrUserNotFound      = fmt.Errorf("%w: user not found", shared.ErrNotFound)
	ErrEmailAlreadyTaken = fmt.Errorf("%w: email already registered", shared.ErrAlreadyExists)
)

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id shared.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
}
