// Package scm talks to source code hosts. Only the git smart protocol is used,
// so any host that serves git over https or ssh works without a
// provider-specific API client.
package scm

import (
	"context"

	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
)

// ResolveRequest identifies a remote ref to resolve.
type ResolveRequest struct {
	URL      sourcerepo.CloneURL
	Provider sourcerepo.Provider
	// Branch may be empty to follow the remote HEAD.
	Branch string
	// Token is the decrypted access token, if any.
	Token string
}

// Head is the resolved state of a remote branch.
type Head struct {
	Branch string `json:"branch"`
	Commit string `json:"commit"`
	// Refs is the number of refs the remote advertised.
	Refs int `json:"refs"`
}

// Resolver resolves the current commit of a remote branch.
type Resolver interface {
	ResolveHead(ctx context.Context, req ResolveRequest) (*Head, error)
}

// Common errors
var (
	ErrAuthFailed        = NewSCMError("authentication failed", "AUTH_FAILED")
	ErrNotFound          = NewSCMError("repository not found", "NOT_FOUND")
	ErrBranchNotFound    = NewSCMError("branch not found", "BRANCH_NOT_FOUND")
	ErrEmptyRepository   = NewSCMError("repository is empty", "EMPTY_REPOSITORY")
	ErrHostNotAllowed    = NewSCMError("host not allowed", "HOST_NOT_ALLOWED")
	ErrRemoteUnavailable = NewSCMError("remote unavailable", "REMOTE_UNAVAILABLE")
)

// SCMError represents an error from an SCM host.
type SCMError struct {
	Message string
	Code    string
	Wrapped error
}

// NewSCMError creates a new SCMError
func NewSCMError(message, code string) *SCMError {
	return &SCMError{Message: message, Code: code}
}

// Error implements the error interface
func (e *SCMError) Error() string {
	if e.Wrapped != nil {
		return e.Message + ": " + e.Wrapped.Error()
	}
	return e.Message
}

// Wrap wraps an underlying error
func (e *SCMError) Wrap(err error) *SCMError {
	return &SCMError{
		Message: e.Message,
		Code:    e.Code,
		Wrapped: err,
	}
}

// Unwrap returns the wrapped error
func (e *SCMError) Unwrap() error {
	return e.Wrapped
}

// Is matches SCMErrors by code so wrapped copies compare equal to the
// package sentinels.
func (e *SCMError) Is(target error) bool {
	t, ok := target.(*SCMError)
	return ok && t.Code == e.Code
}
