// Package password hashes and checks user passwords with bcrypt.
package password

import (
	"errors"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Errors for password operations.
var (
	ErrPasswordTooShort    = errors.New("password is too short")
	ErrPasswordTooLong     = errors.New("password is too long")
	ErrPasswordNoUppercase = errors.New("password must contain at least one uppercase letter")
	ErrPasswordNoLowercase = errors.New("password must contain at least one lowercase letter")
	ErrPasswordNoNumber    = errors.New("password must contain at least one number")
	ErrPasswordMismatch    = errors.New("password does not match")
	ErrInvalidHash         = errors.New("invalid password hash")
)

// DefaultCost is the default bcrypt cost factor.
const DefaultCost = 12

// maxBytes is the bcrypt input limit.
const maxBytes = 72

// Policy defines password requirements.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireNumber bool
}

// DefaultPolicy returns the policy applied at registration.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireNumber: true,
	}
}

// Hasher hashes and verifies passwords.
type Hasher struct {
	cost   int
	policy Policy
}

// Option configures the Hasher.
type Option func(*Hasher)

// WithCost sets the bcrypt cost factor. Out of range values are ignored.
func WithCost(cost int) Option {
	return func(h *Hasher) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
	}
}

// WithPolicy sets the password policy.
func WithPolicy(policy Policy) Option {
	return func(h *Hasher) {
		h.policy = policy
	}
}

// New creates a new password hasher.
func New(opts ...Option) *Hasher {
	h := &Hasher{cost: DefaultCost, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Hash hashes a password.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) > maxBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify checks password against hash.
func (h *Hasher) Verify(password, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrPasswordMismatch
	default:
		return ErrInvalidHash
	}
}

// NeedsRehash reports whether hash was produced with a different cost.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != h.cost
}

// Validate checks a password against the hasher's policy.
func (h *Hasher) Validate(password string) error {
	p := h.policy
	if utf8.RuneCountInString(password) < p.MinLength {
		return ErrPasswordTooShort
	}
	if len(password) > maxBytes {
		return ErrPasswordTooLong
	}

	var upper, lower, number bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsNumber(r):
			number = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return ErrPasswordNoUppercase
	case p.RequireLower && !lower:
		return ErrPasswordNoLowercase
	case p.RequireNumber && !number:
		return ErrPasswordNoNumber
	}
	return nil
}
