package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/schedule"
	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// ScheduleRepository implements schedule.Repository using PostgreSQL.
type ScheduleRepository struct {
	db *DB
}

// NewScheduleRepository creates a new ScheduleRepository.
func NewScheduleRepository(db *DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, organization_id, workspace_id, repository_id, cron, branch, enabled,
	next_run_at, last_run_at, created_by, created_at, updated_at`

// Create persists a schedule.
func (r *ScheduleRepository) Create(ctx context.Context, s *schedule.Schedule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID().String(), s.OrgID().String(), s.WorkspaceID().String(), s.RepositoryID().String(),
		s.Cron(), nullString(s.Branch()), s.Enabled(), nullTime(s.NextRunAt()), nullTime(s.LastRunAt()),
		nullIDValue(s.CreatedBy()), s.CreatedAt(), s.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// GetByID retrieves a schedule.
func (r *ScheduleRepository) GetByID(ctx context.Context, id shared.ID) (*schedule.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id.String())
	return scanSchedule(row)
}

// ListByWorkspace lists a workspace's schedules.
func (r *ScheduleRepository) ListByWorkspace(ctx context.Context, workspaceID shared.ID) ([]*schedule.Schedule, error) {
	return r.list(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE workspace_id = $1 ORDER BY created_at`,
		workspaceID.String())
}

// ListDue returns enabled schedules whose next run has passed.
func (r *ScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	return r.list(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE enabled AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
		LIMIT $2`, now, limit)
}

func (r *ScheduleRepository) list(ctx context.Context, query string, args ...any) ([]*schedule.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []*schedule.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update saves mutable fields.
func (r *ScheduleRepository) Update(ctx context.Context, s *schedule.Schedule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET cron = $2, branch = $3, enabled = $4, next_run_at = $5, last_run_at = $6, updated_at = $7
		WHERE id = $1`,
		s.ID().String(), s.Cron(), nullString(s.Branch()), s.Enabled(),
		nullTime(s.NextRunAt()), nullTime(s.LastRunAt()), s.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return expectOne(res, schedule.ErrScheduleNotFound)
}

// Delete removes a schedule.
func (r *ScheduleRepository) Delete(ctx context.Context, id shared.ID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return expectOne(res, schedule.ErrScheduleNotFound)
}

func scanSchedule(row scanner) (*schedule.Schedule, error) {
	var (
		id, orgID, wsID, repoID, cron string
		branch, createdBy             sql.NullString
		enabled                       bool
		nextRunAt, lastRunAt          sql.NullTime
		createdAt, updatedAt          time.Time
	)
	err := row.Scan(&id, &orgID, &wsID, &repoID, &cron, &branch, &enabled,
		&nextRunAt, &lastRunAt, &createdBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, schedule.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	return schedule.Reconstitute(
		shared.MustIDFromString(id), shared.MustIDFromString(orgID), shared.MustIDFromString(wsID),
		shared.MustIDFromString(repoID), cron, branch.String, enabled,
		nullTimeValue(nextRunAt), nullTimeValue(lastRunAt), idValue(createdBy), createdAt, updatedAt,
	), nil
}
