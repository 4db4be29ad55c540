package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
)

// WorkspaceRepository implements workspace.Repository using PostgreSQL.
type WorkspaceRepository struct {
	db *DB
}

// NewWorkspaceRepository creates a new WorkspaceRepository.
func NewWorkspaceRepository(db *DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

const workspaceColumns = `id, organization_id, name, description, created_by, created_at, updated_at`

// execer is satisfied by both *DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create persists a new workspace.
func (r *WorkspaceRepository) Create(ctx context.Context, w *workspace.Workspace) error {
	return insertWorkspace(ctx, r.db, w)
}

// CreateWithMember persists a workspace together with its first member.
func (r *WorkspaceRepository) CreateWithMember(ctx context.Context, w *workspace.Workspace, userID shared.ID) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := insertWorkspace(ctx, tx, w); err != nil {
			return err
		}
		return insertWorkspaceMember(ctx, tx, w.ID(), userID)
	})
}

func insertWorkspace(ctx context.Context, ex execer, w *workspace.Workspace) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO workspaces (`+workspaceColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID().String(), w.OrgID().String(), w.Name(), nullString(w.Description()),
		nullIDValue(w.CreatedBy()), w.CreatedAt(), w.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return workspace.ErrNameTaken
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetByID retrieves a workspace by ID.
func (r *WorkspaceRepository) GetByID(ctx context.Context, id shared.ID) (*workspace.Workspace, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id = $1`, id.String())
	return scanWorkspace(row)
}

// ListByOrg lists an organization's workspaces by name.
func (r *WorkspaceRepository) ListByOrg(ctx context.Context, orgID shared.ID) ([]*workspace.Workspace, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE organization_id = $1 ORDER BY lower(name)`, orgID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*workspace.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CountByOrg counts an organization's workspaces.
func (r *WorkspaceRepository) CountByOrg(ctx context.Context, orgID shared.ID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE organization_id = $1`, orgID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count workspaces: %w", err)
	}
	return n, nil
}

// Update saves name and description.
func (r *WorkspaceRepository) Update(ctx context.Context, w *workspace.Workspace) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE workspaces SET name = $2, description = $3, updated_at = $4 WHERE id = $1`,
		w.ID().String(), w.Name(), nullString(w.Description()), w.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return workspace.ErrNameTaken
		}
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	return expectOne(res, workspace.ErrWorkspaceNotFound)
}

// Delete removes a workspace; repositories, scans and schedules cascade.
func (r *WorkspaceRepository) Delete(ctx context.Context, id shared.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return expectOne(res, workspace.ErrWorkspaceNotFound)
}

func scanWorkspace(row scanner) (*workspace.Workspace, error) {
	var (
		id, orgID, name      string
		description          sql.NullString
		createdBy            sql.NullString
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &orgID, &name, &description, &createdBy, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, workspace.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}
	return workspace.Reconstitute(
		shared.MustIDFromString(id), shared.MustIDFromString(orgID),
		name, description.String, idValue(createdBy), createdAt, updatedAt,
	), nil
}

// AddMember grants a user access to a workspace.
func (r *WorkspaceRepository) AddMember(ctx context.Context, workspaceID, userID shared.ID) error {
	return insertWorkspaceMember(ctx, r.db, workspaceID, userID)
}

func insertWorkspaceMember(ctx context.Context, ex execer, workspaceID, userID shared.ID) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, added_at) VALUES ($1, $2, NOW())`,
		workspaceID.String(), userID.String(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return workspace.ErrAlreadyMember
		}
		return fmt.Errorf("failed to add workspace member: %w", err)
	}
	return nil
}

// RemoveMember revokes a user's access.
func (r *WorkspaceRepository) RemoveMember(ctx context.Context, workspaceID, userID shared.ID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to remove workspace member: %w", err)
	}
	return expectOne(res, workspace.ErrMemberNotFound)
}

// ListMembers lists members with user details.
func (r *WorkspaceRepository) ListMembers(ctx context.Context, workspaceID shared.ID) ([]workspace.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name, m.added_at
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.added_at`, workspaceID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace members: %w", err)
	}
	defer rows.Close()

	var out []workspace.Member
	for rows.Next() {
		m := workspace.Member{WorkspaceID: workspaceID}
		var id string
		if err := rows.Scan(&id, &m.Email, &m.Name, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace member: %w", err)
		}
		m.UserID = shared.MustIDFromString(id)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMembers counts a workspace's members.
func (r *WorkspaceRepository) CountMembers(ctx context.Context, workspaceID shared.ID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1`, workspaceID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count workspace members: %w", err)
	}
	return n, nil
}

// IsMember reports whether the user has access to the workspace.
func (r *WorkspaceRepository) IsMember(ctx context.Context, workspaceID, userID shared.ID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2)`,
		workspaceID.String(), userID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check workspace membership: %w", err)
	}
	return exists, nil
}
