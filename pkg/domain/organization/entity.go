// Package organization models the tenant that owns workspaces and holds the
// subscription plan.
package organization

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Name and slug bounds.
const (
	MaxNameLength = 100
	MinSlugLength = 3
	MaxSlugLength = 50
)

// Organization is a tenant. Every workspace, repository and scan belongs to
// exactly one organization, and the organization's plan governs them all.
type Organization struct {
	id            shared.ID
	name          string
	slug          string
	plan          plan.Plan
	ownerID       shared.ID
	planChangedAt *time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

// NewOrganization creates an organization on the default plan.
func NewOrganization(name, slug string, ownerID shared.ID) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if len(name) > MaxNameLength {
		return nil, fmt.Errorf("%w: name must be at most %d characters", shared.ErrValidation, MaxNameLength)
	}
	if !IsValidSlug(slug) {
		return nil, fmt.Errorf("%w: invalid slug (use %d-%d lowercase letters, numbers and hyphens)",
			shared.ErrValidation, MinSlugLength, MaxSlugLength)
	}
	if ownerID.IsZero() {
		return nil, fmt.Errorf("%w: owner is required", shared.ErrValidation)
	}

	now := time.Now().UTC()
	return &Organization{
		id:        shared.NewID(),
		name:      name,
		slug:      slug,
		plan:      plan.Default,
		ownerID:   ownerID,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// Reconstitute recreates an Organization from persistence.
func Reconstitute(
	id shared.ID,
	name, slug string,
	p plan.Plan,
	ownerID shared.ID,
	planChangedAt *time.Time,
	createdAt, updatedAt time.Time,
) *Organization {
	return &Organization{
		id:            id,
		name:          name,
		slug:          slug,
		plan:          p,
		ownerID:       ownerID,
		planChangedAt: planChangedAt,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}

// IsValidSlug checks the slug format.
func IsValidSlug(slug string) bool {
	return len(slug) >= MinSlugLength && len(slug) <= MaxSlugLength && slugRegex.MatchString(slug)
}

// Slugify derives a slug candidate from a display name.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimSuffix(slug[:MaxSlugLength], "-")
	}
	return slug
}

func (o *Organization) ID() shared.ID             { return o.id }
func (o *Organization) Name() string              { return o.name }
func (o *Organization) Slug() string              { return o.slug }
func (o *Organization) Plan() plan.Plan           { return o.plan }
func (o *Organization) OwnerID() shared.ID        { return o.ownerID }
func (o *Organization) PlanChangedAt() *time.Time { return o.planChangedAt }
func (o *Organization) CreatedAt() time.Time      { return o.createdAt }
func (o *Organization) UpdatedAt() time.Time      { return o.updatedAt }

// Rename changes the display name. The slug is stable.
func (o *Organization) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name must be at most %d characters", shared.ErrValidation, MaxNameLength)
	}
	o.name = name
	o.updatedAt = time.Now().UTC()
	return nil
}

// ChangePlan moves the organization to p. It returns false when p is
// already the current plan.
func (o *Organization) ChangePlan(p plan.Plan) (bool, error) {
	if !p.IsValid() {
		return false, fmt.Errorf("%w: %q", plan.ErrInvalidPlan, string(p))
	}
	if p == o.plan {
		return false, nil
	}
	now := time.Now().UTC()
	o.plan = p
	o.planChangedAt = &now
	o.updatedAt = now
	return true, nil
}
