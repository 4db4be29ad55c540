package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// OrganizationRepository implements organization.Repository using PostgreSQL.
type OrganizationRepository struct {
	db *DB
}

// NewOrganizationRepository creates a new OrganizationRepository.
func NewOrganizationRepository(db *DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, slug, plan, owner_id, plan_changed_at, created_at, updated_at`

// Create persists a new organization.
func (r *OrganizationRepository) Create(ctx context.Context, o *organization.Organization) error {
	query := `INSERT INTO organizations (` + organizationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		o.ID().String(), o.Name(), o.Slug(), o.Plan().String(), o.OwnerID().String(),
		nullTime(o.PlanChangedAt()), o.CreatedAt(), o.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return organization.ErrSlugTaken
		}
		return fmt.Errorf("failed to create organization: %w", err)
	}
	return nil
}

// GetByID retrieves an organization by ID.
func (r *OrganizationRepository) GetByID(ctx context.Context, id shared.ID) (*organization.Organization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE id = $1`, id.String())
	return scanOrganization(row)
}

// GetBySlug retrieves an organization by slug.
func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*organization.Organization, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE slug = $1`, slug)
	return scanOrganization(row)
}

// Update saves name and plan changes.
func (r *OrganizationRepository) Update(ctx context.Context, o *organization.Organization) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = $2, plan = $3, plan_changed_at = $4, updated_at = $5 WHERE id = $1`,
		o.ID().String(), o.Name(), o.Plan().String(), nullTime(o.PlanChangedAt()), o.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return organization.ErrOrganizationNotFound
	}
	return nil
}

// List pages through organizations by ID for background jobs.
func (r *OrganizationRepository) List(ctx context.Context, after shared.ID, limit int) ([]*organization.Organization, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if after.IsZero() {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+organizationColumns+` FROM organizations ORDER BY id LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+organizationColumns+` FROM organizations WHERE id > $1 ORDER BY id LIMIT $2`, after.String(), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var out []*organization.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrganization(row scanner) (*organization.Organization, error) {
	var (
		id, name, slug, p, ownerID string
		planChangedAt              sql.NullTime
		createdAt, updatedAt       time.Time
	)
	if err := row.Scan(&id, &name, &slug, &p, &ownerID, &planChangedAt, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, organization.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to scan organization: %w", err)
	}
	return organization.Reconstitute(
		shared.MustIDFromString(id), name, slug, plan.Plan(p), shared.MustIDFromString(ownerID),
		nullTimeValue(planChangedAt), createdAt, updatedAt,
	), nil
}

// AddMember inserts a membership.
func (r *OrganizationRepository) AddMember(ctx context.Context, m *organization.Membership) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		m.OrgID().String(), m.UserID().String(), m.Role().String(), m.JoinedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return organization.ErrAlreadyMember
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// GetMembership retrieves a user's membership in an organization.
func (r *OrganizationRepository) GetMembership(ctx context.Context, orgID, userID shared.ID) (*organization.Membership, error) {
	var (
		role     string
		joinedAt time.Time
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT role, joined_at FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID.String(), userID.String(),
	).Scan(&role, &joinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, organization.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return organization.ReconstituteMembership(orgID, userID, organization.Role(role), joinedAt), nil
}

// UpdateMembership saves a role change.
func (r *OrganizationRepository) UpdateMembership(ctx context.Context, m *organization.Membership) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE organization_members SET role = $3 WHERE organization_id = $1 AND user_id = $2`,
		m.OrgID().String(), m.UserID().String(), m.Role().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return organization.ErrMembershipNotFound
	}
	return nil
}

// RemoveMember deletes a membership and the user's workspace access in the
// organization.
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID shared.ID) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
			orgID.String(), userID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return organization.ErrMembershipNotFound
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM workspace_members wm
			USING workspaces w
			WHERE wm.workspace_id = w.id AND w.organization_id = $1 AND wm.user_id = $2`,
			orgID.String(), userID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to remove workspace access: %w", err)
		}
		return nil
	})
}

// ListMembers lists memberships joined with user details.
func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID shared.ID) ([]organization.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, m.role, m.joined_at
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.joined_at`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []organization.Member
	for rows.Next() {
		var (
			m        organization.Member
			id, role string
		)
		if err := rows.Scan(&id, &m.Email, &m.Name, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.UserID = shared.MustIDFromString(id)
		m.Role = organization.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListForUser lists a user's memberships, oldest first.
func (r *OrganizationRepository) ListForUser(ctx context.Context, userID shared.ID) ([]*organization.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT organization_id, role, joined_at FROM organization_members WHERE user_id = $1 ORDER BY joined_at`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var out []*organization.Membership
	for rows.Next() {
		var (
			orgID, role string
			joinedAt    time.Time
		)
		if err := rows.Scan(&orgID, &role, &joinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		out = append(out, organization.ReconstituteMembership(
			shared.MustIDFromString(orgID), userID, organization.Role(role), joinedAt))
	}
	return out, rows.Err()
}
