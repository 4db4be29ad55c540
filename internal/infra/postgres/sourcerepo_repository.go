package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
)

// SourceRepoRepository implements sourcerepo.Store using PostgreSQL.
type SourceRepoRepository struct {
	db *DB
}

// NewSourceRepoRepository creates a new SourceRepoRepository.
func NewSourceRepoRepository(db *DB) *SourceRepoRepository {
	return &SourceRepoRepository{db: db}
}

const repositoryColumns = `id, organization_id, workspace_id, provider, name, url, default_branch,
	encrypted_token, last_commit, last_verified_at, created_by, created_at, updated_at`

// Create persists a connected repository.
func (r *SourceRepoRepository) Create(ctx context.Context, repo *sourcerepo.Repository) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO repositories (`+repositoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		repo.ID().String(), repo.OrgID().String(), repo.WorkspaceID().String(),
		repo.Provider().String(), repo.Name(), repo.URL().String(), repo.DefaultBranch(),
		nullString(repo.EncryptedToken()), nullString(repo.LastCommit()), nullTime(repo.LastVerifiedAt()),
		nullIDValue(repo.CreatedBy()), repo.CreatedAt(), repo.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sourcerepo.ErrAlreadyConnected
		}
		return fmt.Errorf("failed to create repository: %w", err)
	}
	return nil
}

// GetByID retrieves a repository by ID.
func (r *SourceRepoRepository) GetByID(ctx context.Context, id shared.ID) (*sourcerepo.Repository, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = $1`, id.String())
	return scanSourceRepo(row)
}

// ListByWorkspace lists a workspace's repositories by name.
func (r *SourceRepoRepository) ListByWorkspace(ctx context.Context, workspaceID shared.ID) ([]*sourcerepo.Repository, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE workspace_id = $1 ORDER BY name`, workspaceID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list repositories: %w", err)
	}
	defer rows.Close()

	var out []*sourcerepo.Repository
	for rows.Next() {
		repo, err := scanSourceRepo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, repo)
	}
	return out, rows.Err()
}

// Update saves mutable fields.
func (r *SourceRepoRepository) Update(ctx context.Context, repo *sourcerepo.Repository) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE repositories
		SET name = $2, default_branch = $3, encrypted_token = $4, last_commit = $5,
			last_verified_at = $6, updated_at = $7
		WHERE id = $1`,
		repo.ID().String(), repo.Name(), repo.DefaultBranch(), nullString(repo.EncryptedToken()),
		nullString(repo.LastCommit()), nullTime(repo.LastVerifiedAt()), repo.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update repository: %w", err)
	}
	return expectOne(res, sourcerepo.ErrRepositoryNotFound)
}

// Delete disconnects a repository. Its scans and schedules cascade.
func (r *SourceRepoRepository) Delete(ctx context.Context, id shared.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM repositories WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete repository: %w", err)
	}
	return expectOne(res, sourcerepo.ErrRepositoryNotFound)
}

// ExistsByURL reports whether the canonical URL is already connected to the
// workspace.
func (r *SourceRepoRepository) ExistsByURL(ctx context.Context, workspaceID shared.ID, url string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM repositories WHERE workspace_id = $1 AND url = $2)`,
		workspaceID.String(), url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check repository url: %w", err)
	}
	return exists, nil
}

func scanSourceRepo(row scanner) (*sourcerepo.Repository, error) {
	var (
		id, orgID, wsID, provider, name, url, branch string
		token, lastCommit, createdBy                 sql.NullString
		lastVerifiedAt                               sql.NullTime
		createdAt, updatedAt                         time.Time
	)
	err := row.Scan(&id, &orgID, &wsID, &provider, &name, &url, &branch,
		&token, &lastCommit, &lastVerifiedAt, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sourcerepo.ErrRepositoryNotFound
		}
		return nil, fmt.Errorf("failed to scan repository: %w", err)
	}
	return sourcerepo.Reconstitute(
		shared.MustIDFromString(id), shared.MustIDFromString(orgID), shared.MustIDFromString(wsID),
		sourcerepo.Provider(provider), name, url, branch, token.String, lastCommit.String,
		nullTimeValue(lastVerifiedAt), idValue(createdBy), createdAt, updatedAt,
	), nil
}
