package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/pagination"
)

// ScanRepository implements scan.Repository using PostgreSQL.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new ScanRepository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

const scanColumns = `id, organization_id, workspace_id, repository_id, branch, commit_sha, trigger, status,
	results, summary, error_message, queued_at, started_at, finished_at, created_by`

// Listing omits the results document; it can be megabytes.
const scanListColumns = `id, organization_id, workspace_id, repository_id, branch, commit_sha, trigger, status,
	NULL::jsonb, summary, error_message, queued_at, started_at, finished_at, created_by`

// Create persists a queued scan.
func (r *ScanRepository) Create(ctx context.Context, s *scan.Scan) error {
	summary, err := toJSONB(s.Summary())
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO scans (`+scanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID().String(), s.OrgID().String(), s.WorkspaceID().String(), s.RepositoryID().String(),
		s.Branch(), nullString(s.CommitSHA()), s.Trigger().String(), s.Status().String(),
		nullBytes(s.Results()), summary, nullString(s.ErrorMessage()),
		s.QueuedAt(), nullTime(s.StartedAt()), nullTime(s.FinishedAt()), nullID(s.CreatedBy()),
	)
	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}
	return nil
}

// GetByID retrieves a scan including its results.
func (r *ScanRepository) GetByID(ctx context.Context, id shared.ID) (*scan.Scan, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM scans WHERE id = $1`, id.String())
	return scanScan(row)
}

// Update saves lifecycle fields.
func (r *ScanRepository) Update(ctx context.Context, s *scan.Scan) error {
	summary, err := toJSONB(s.Summary())
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE scans
		SET commit_sha = $2, status = $3, results = $4, summary = $5, error_message = $6,
			started_at = $7, finished_at = $8
		WHERE id = $1`,
		s.ID().String(), nullString(s.CommitSHA()), s.Status().String(), nullBytes(s.Results()),
		summary, nullString(s.ErrorMessage()), nullTime(s.StartedAt()), nullTime(s.FinishedAt()),
	)
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	return expectOne(res, scan.ErrScanNotFound)
}

// List returns one page of scans, newest first.
func (r *ScanRepository) List(ctx context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	var where whereBuilder
	where.add("organization_id = ?", filter.OrgID.String())
	if filter.WorkspaceID != nil {
		where.add("workspace_id = ?", filter.WorkspaceID.String())
	}
	if filter.RepositoryID != nil {
		where.add("repository_id = ?", filter.RepositoryID.String())
	}
	if filter.Status != nil {
		where.add("status = ?", filter.Status.String())
	}
	if filter.Trigger != nil {
		where.add("trigger = ?", filter.Trigger.String())
	}
	if filter.Since != nil {
		where.add("queued_at >= ?", *filter.Since)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`+where.clause(), where.args...).Scan(&total); err != nil {
		return pagination.Result[*scan.Scan]{}, fmt.Errorf("failed to count scans: %w", err)
	}

	args := append(where.args, page.Limit(), page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM scans%s ORDER BY queued_at DESC, id LIMIT $%d OFFSET $%d`,
		scanListColumns, where.clause(), len(where.args)+1, len(where.args)+2)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Result[*scan.Scan]{}, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var scans []*scan.Scan
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return pagination.Result[*scan.Scan]{}, err
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return pagination.Result[*scan.Scan]{}, err
	}
	return pagination.NewResult(scans, total, page), nil
}

// CountSince counts scans queued at or after since. Canceled and failed scans
// still count; the quota is spent when the scan is accepted.
func (r *ScanRepository) CountSince(ctx context.Context, orgID shared.ID, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scans WHERE organization_id = $1 AND queued_at >= $2`,
		orgID.String(), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return n, nil
}

// DeleteOlderThan removes up to batch terminal scans queued before cutoff.
func (r *ScanRepository) DeleteOlderThan(ctx context.Context, orgID shared.ID, cutoff time.Time, batch int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM scans WHERE id IN (
			SELECT id FROM scans
			WHERE organization_id = $1 AND queued_at < $2
				AND status IN ('completed', 'failed', 'canceled')
			ORDER BY queued_at
			LIMIT $3
		)`, orgID.String(), cutoff, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old scans: %w", err)
	}
	n, err := rowsAffected(res)
	return int(n), err
}

func scanScan(row scanner) (*scan.Scan, error) {
	var (
		id, orgID, wsID, repoID, branch, trigger, status string
		commitSHA, errorMessage, createdBy               sql.NullString
		results, summaryRaw                              []byte
		queuedAt                                         time.Time
		startedAt, finishedAt                            sql.NullTime
	)
	err := row.Scan(&id, &orgID, &wsID, &repoID, &branch, &commitSHA, &trigger, &status,
		&results, &summaryRaw, &errorMessage, &queuedAt, &startedAt, &finishedAt, &createdBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, scan.ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to scan scan row: %w", err)
	}
	var summary scan.Summary
	if err := fromJSONB(summaryRaw, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return scan.Reconstitute(
		shared.MustIDFromString(id), shared.MustIDFromString(orgID), shared.MustIDFromString(wsID),
		shared.MustIDFromString(repoID), branch, commitSHA.String,
		scan.Trigger(trigger), scan.Status(status), results, summary, errorMessage.String,
		queuedAt.UTC(), nullTimeValue(startedAt), nullTimeValue(finishedAt), parseNullID(createdBy),
	), nil
}
