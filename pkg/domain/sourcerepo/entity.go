// Package sourcerepo models source repositories connected for scanning.
package sourcerepo

import (
	"fmt"
	"strings"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// DefaultBranch is used when none is given at connect time.
const DefaultBranch = "main"

// Repository is a connected source repository. The access token is only
// ever held in encrypted form.
type Repository struct {
	id             shared.ID
	orgID          shared.ID
	workspaceID    shared.ID
	provider       Provider
	name           string
	url            CloneURL
	defaultBranch  string
	encryptedToken string
	lastCommit     string
	lastVerifiedAt *time.Time
	createdBy      shared.ID
	createdAt      time.Time
	updatedAt      time.Time
}

// NewRepository creates a Repository from a raw clone URL. When provider is
// empty it is detected from the host; when name is empty it is derived from
// the URL path.
func NewRepository(orgID, workspaceID shared.ID, provider Provider, name, rawURL, branch string, createdBy shared.ID) (*Repository, error) {
	if orgID.IsZero() || workspaceID.IsZero() {
		return nil, fmt.Errorf("%w: organization and workspace are required", shared.ErrValidation)
	}
	u, err := ParseCloneURL(rawURL)
	if err != nil {
		return nil, err
	}
	if provider == "" {
		provider = DetectProvider(u.Host)
	}
	if !provider.IsValid() {
		return nil, fmt.Errorf("%w: unsupported provider %q", shared.ErrValidation, string(provider))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = u.FullName()
	}
	if branch == "" {
		branch = DefaultBranch
	}
	if err := ValidateBranch(branch); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Repository{
		id:            shared.NewID(),
		orgID:         orgID,
		workspaceID:   workspaceID,
		provider:      provider,
		name:          name,
		url:           u,
		defaultBranch: branch,
		createdBy:     createdBy,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// Reconstitute recreates a Repository from persistence. The stored URL is
// already canonical.
func Reconstitute(
	id, orgID, workspaceID shared.ID,
	provider Provider,
	name, rawURL, defaultBranch, encryptedToken, lastCommit string,
	lastVerifiedAt *time.Time,
	createdBy shared.ID,
	createdAt, updatedAt time.Time,
) *Repository {
	u, err := ParseCloneURL(rawURL)
	if err != nil {
		u = CloneURL{Scheme: "https", Path: rawURL}
	}
	return &Repository{
		id:             id,
		orgID:          orgID,
		workspaceID:    workspaceID,
		provider:       provider,
		name:           name,
		url:            u,
		defaultBranch:  defaultBranch,
		encryptedToken: encryptedToken,
		lastCommit:     lastCommit,
		lastVerifiedAt: lastVerifiedAt,
		createdBy:      createdBy,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

func (r *Repository) ID() shared.ID              { return r.id }
func (r *Repository) OrgID() shared.ID           { return r.orgID }
func (r *Repository) WorkspaceID() shared.ID     { return r.workspaceID }
func (r *Repository) Provider() Provider         { return r.provider }
func (r *Repository) Name() string               { return r.name }
func (r *Repository) URL() CloneURL              { return r.url }
func (r *Repository) DefaultBranch() string      { return r.defaultBranch }
func (r *Repository) EncryptedToken() string     { return r.encryptedToken }
func (r *Repository) HasToken() bool             { return r.encryptedToken != "" }
func (r *Repository) LastCommit() string         { return r.lastCommit }
func (r *Repository) LastVerifiedAt() *time.Time { return r.lastVerifiedAt }
func (r *Repository) CreatedBy() shared.ID       { return r.createdBy }
func (r *Repository) CreatedAt() time.Time       { return r.createdAt }
func (r *Repository) UpdatedAt() time.Time       { return r.updatedAt }

// SetEncryptedToken replaces the stored credential. An empty value removes it.
func (r *Repository) SetEncryptedToken(token string) {
	r.encryptedToken = token
	r.updatedAt = time.Now().UTC()
}

// Rename changes the display name.
func (r *Repository) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	r.name = name
	r.updatedAt = time.Now().UTC()
	return nil
}

// SetDefaultBranch changes the branch scanned when none is requested.
func (r *Repository) SetDefaultBranch(branch string) error {
	if err := ValidateBranch(branch); err != nil {
		return err
	}
	r.defaultBranch = branch
	r.updatedAt = time.Now().UTC()
	return nil
}

// MarkVerified records a successful remote lookup.
func (r *Repository) MarkVerified(commit string, at time.Time) {
	at = at.UTC()
	r.lastCommit = commit
	r.lastVerifiedAt = &at
	r.updatedAt = at
}

// ValidateBranch applies the subset of git check-ref-format rules that
// matter for user input.
func ValidateBranch(branch string) error {
	switch {
	case branch == "":
		return fmt.Errorf("%w: branch is required", shared.ErrValidation)
	case len(branch) > 255:
		return fmt.Errorf("%w: branch name too long", shared.ErrValidation)
	case strings.HasPrefix(branch, "-"), strings.HasPrefix(branch, "/"), strings.HasSuffix(branch, "/"),
		strings.HasSuffix(branch, ".lock"), strings.Contains(branch, ".."), strings.Contains(branch, "@{"),
		strings.ContainsAny(branch, " ~^:?*[\\"):
		return fmt.Errorf("%w: invalid branch name %q", shared.ErrValidation, branch)
	}
	for _, r := range branch {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: invalid branch name", shared.ErrValidation)
		}
	}
	return nil
}
