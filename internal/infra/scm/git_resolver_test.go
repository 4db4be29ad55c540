package scm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
	"github.com/openctemio/reposcan/pkg/logger"
)

const (
	mainSHA    = "1111111111111111111111111111111111111111"
	developSHA = "2222222222222222222222222222222222222222"
)

func testRefs() []*plumbing.Reference {
	return []*plumbing.Reference{
		plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main")),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), plumbing.NewHash(mainSHA)),
		plumbing.NewHashReference(plumbing.NewBranchReferenceName("develop"), plumbing.NewHash(developSHA)),
		plumbing.NewHashReference(plumbing.NewTagReferenceName("v1.0.0"), plumbing.NewHash(mainSHA)),
	}
}

func TestSelectHead(t *testing.T) {
	tests := []struct {
		name       string
		refs       []*plumbing.Reference
		branch     string
		wantBranch string
		wantCommit string
		wantErr    error
	}{
		{name: "follows HEAD", refs: testRefs(), wantBranch: "main", wantCommit: mainSHA},
		{name: "explicit branch", refs: testRefs(), branch: "develop", wantBranch: "develop", wantCommit: developSHA},
		{name: "missing branch", refs: testRefs(), branch: "nope", wantErr: ErrBranchNotFound},
		{name: "empty remote", refs: nil, wantErr: ErrEmptyRepository},
		{
			name: "hash HEAD",
			refs: []*plumbing.Reference{
				plumbing.NewHashReference(plumbing.HEAD, plumbing.NewHash(developSHA)),
				plumbing.NewHashReference(plumbing.NewBranchReferenceName("develop"), plumbing.NewHash(developSHA)),
			},
			wantBranch: "develop",
			wantCommit: developSHA,
		},
		{
			name:    "no HEAD advertised",
			refs:    []*plumbing.Reference{plumbing.NewHashReference(plumbing.NewBranchReferenceName("x"), plumbing.NewHash(mainSHA))},
			wantErr: ErrBranchNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, err := selectHead(tt.refs, tt.branch)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBranch, head.Branch)
			assert.Equal(t, tt.wantCommit, head.Commit)
			assert.Equal(t, len(tt.refs), head.Refs)
		})
	}
}

func TestMapTransportError(t *testing.T) {
	assert.ErrorIs(t, mapTransportError(transport.ErrAuthenticationRequired), ErrAuthFailed)
	assert.ErrorIs(t, mapTransportError(transport.ErrRepositoryNotFound), ErrNotFound)
	assert.ErrorIs(t, mapTransportError(fmt.Errorf("dial: %w", context.DeadlineExceeded)), ErrRemoteUnavailable)
	assert.ErrorIs(t, mapTransportError(errors.New("boom")), ErrRemoteUnavailable)
}

func TestAuthFor(t *testing.T) {
	u, err := sourcerepo.ParseCloneURL("https://gitlab.com/acme/api.git")
	require.NoError(t, err)

	auth := authFor(ResolveRequest{URL: u, Provider: sourcerepo.ProviderGitLab, Token: "glpat"})
	basic, ok := auth.(*http.BasicAuth)
	require.True(t, ok)
	assert.Equal(t, "oauth2", basic.Username)
	assert.Equal(t, "glpat", basic.Password)

	assert.Nil(t, authFor(ResolveRequest{URL: u}))
}

type denyAll struct{}

func (denyAll) Check(string) error { return errors.New("private address") }

func TestResolveHead_HostDenied(t *testing.T) {
	u, err := sourcerepo.ParseCloneURL("https://internal.example/acme/api.git")
	require.NoError(t, err)

	r := NewGitResolver(0, denyAll{}, logger.NewNop())
	_, err = r.ResolveHead(context.Background(), ResolveRequest{URL: u})
	require.ErrorIs(t, err, ErrHostNotAllowed)
}
