package scm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/openctemio/reposcan/pkg/logger"
)

// HostChecker vets a host before any connection is made.
type HostChecker interface {
	Check(host string) error
}

// GitResolver resolves branch heads with an in-memory ls-remote.
type GitResolver struct {
	timeout time.Duration
	hosts   HostChecker
	logger  *logger.Logger
}

// NewGitResolver creates a resolver. hosts may be nil to skip host checks.
func NewGitResolver(timeout time.Duration, hosts HostChecker, log *logger.Logger) *GitResolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitResolver{
		timeout: timeout,
		hosts:   hosts,
		logger:  log.With("component", "git_resolver"),
	}
}

// ResolveHead lists the remote refs and returns the commit of the requested
// branch, or of the remote HEAD when no branch is given.
func (r *GitResolver) ResolveHead(ctx context.Context, req ResolveRequest) (*Head, error) {
	if r.hosts != nil {
		if err := r.hosts.Check(req.URL.Host); err != nil {
			return nil, ErrHostNotAllowed.Wrap(err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: "origin",
		URLs: []string{req.URL.String()},
	})

	start := time.Now()
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: authFor(req)})
	if err != nil {
		r.logger.Debug("ls-remote failed", "host", req.URL.Host, "error", err)
		return nil, mapTransportError(err)
	}
	r.logger.Debug("ls-remote completed", "host", req.URL.Host, "refs", len(refs), "duration", time.Since(start))

	return selectHead(refs, req.Branch)
}

// authFor returns token auth for https remotes. SSH remotes rely on the
// environment's agent.
func authFor(req ResolveRequest) transport.AuthMethod {
	if req.Token == "" || req.URL.Scheme != "https" {
		return nil
	}
	return &http.BasicAuth{
		Username: req.Provider.TokenUsername(),
		Password: req.Token,
	}
}

func selectHead(refs []*plumbing.Reference, branch string) (*Head, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyRepository
	}

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	var target plumbing.ReferenceName
	if branch != "" {
		target = plumbing.NewBranchReferenceName(branch)
	} else {
		head, ok := byName[plumbing.HEAD]
		if !ok {
			return nil, ErrBranchNotFound.Wrap(errors.New("remote does not advertise HEAD"))
		}
		if head.Type() == plumbing.HashReference {
			// Servers without symref support send HEAD as a bare hash.
			return &Head{Branch: branchFor(byName, head.Hash()), Commit: head.Hash().String(), Refs: len(refs)}, nil
		}
		target = head.Target()
	}

	ref, ok := byName[target]
	if !ok || ref.Type() != plumbing.HashReference {
		return nil, ErrBranchNotFound.Wrap(fmt.Errorf("%s", target.Short()))
	}
	return &Head{Branch: target.Short(), Commit: ref.Hash().String(), Refs: len(refs)}, nil
}

// branchFor finds a branch pointing at hash, preferring main and master.
func branchFor(byName map[plumbing.ReferenceName]*plumbing.Reference, hash plumbing.Hash) string {
	for _, name := range []string{"main", "master"} {
		if ref, ok := byName[plumbing.NewBranchReferenceName(name)]; ok && ref.Hash() == hash {
			return name
		}
	}
	for name, ref := range byName {
		if name.IsBranch() && ref.Hash() == hash {
			return name.Short()
		}
	}
	return ""
}

func mapTransportError(err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return ErrAuthFailed.Wrap(err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return ErrNotFound.Wrap(err)
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return ErrEmptyRepository.Wrap(err)
	case errors.Is(err, context.DeadlineExceeded):
		return ErrRemoteUnavailable.Wrap(errors.New("timed out"))
	}
	return ErrRemoteUnavailable.Wrap(err)
}
