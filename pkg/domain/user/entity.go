// Package user provides the user domain model.
package user

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// Status represents the user account status.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusSuspended
}

func (s Status) String() string {
	return string(s)
}

// MaxNameLength bounds display names.
const MaxNameLength = 120

// User is an account that can sign in and belong to organizations.
type User struct {
	id           shared.ID
	email        string
	name         string
	passwordHash string
	status       Status
	lastLoginAt  *time.Time
	createdAt    time.Time
	updatedAt    time.Time
}

// NewUser creates an active user. The password hash is set separately.
func NewUser(email, name string) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", shared.ErrValidation, MaxNameLength)
	}

	now := time.Now().UTC()
	return &User{
		id:        shared.NewID(),
		email:     normalized,
		name:      name,
		status:    StatusActive,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstitute recreates a User from persistence.
func Reconstitute(
	id shared.ID,
	email, name, passwordHash string,
	status Status,
	lastLoginAt *time.Time,
	createdAt, updatedAt time.Time,
) *User {
	return &User{
		id:           id,
		email:        email,
		name:         name,
		passwordHash: passwordHash,
		status:       status,
		lastLoginAt:  lastLoginAt,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", shared.ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", shared.ErrValidation)
	}
	return email, nil
}

func (u *User) ID() shared.ID           { return u.id }
func (u *User) Email() string           { return u.email }
func (u *User) Name() string            { return u.name }
func (u *User) PasswordHash() string    { return u.passwordHash }
func (u *User) Status() Status          { return u.status }
func (u *User) LastLoginAt() *time.Time { return u.lastLoginAt }
func (u *User) CreatedAt() time.Time    { return u.createdAt }
func (u *User) UpdatedAt() time.Time    { return u.updatedAt }
func (u *User) IsActive() bool          { return u.status == StatusActive }
func (u *User) HasPassword() bool       { return u.passwordHash != "" }

// SetPasswordHash stores a new password hash.
func (u *User) SetPasswordHash(hash string) {
	u.passwordHash = hash
	u.updatedAt = time.Now().UTC()
}

// UpdateName changes the display name.
func (u *User) UpdateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", shared.ErrValidation, MaxNameLength)
	}
	u.name = name
	u.updatedAt = time.Now().UTC()
	return nil
}

// RecordLogin stamps a successful sign-in.
func (u *User) RecordLogin(at time.Time) {
	at = at.UTC()
	u.lastLoginAt = &at
	u.updatedAt = at
}

// Suspend blocks the user from signing in.
func (u *User) Suspend() {
	u.status = StatusSuspended
	u.updatedAt = time.Now().UTC()
}

// Activate lifts a suspension.
func (u *User) Activate() {
	u.status = StatusActive
	u.updatedAt = time.Now().UTC()
}
