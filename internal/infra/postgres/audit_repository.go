package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/pagination"
)

// AuditRepository implements audit.Repository using PostgreSQL.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, organization_id, actor_id, actor_email, actor_ip, action, resource_type, resource_id,
	changes, result, severity, message, metadata, request_id, created_at`

// Create persists a new audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *audit.AuditLog) error {
	var changesJSON any
	if c := log.Changes(); c != nil && !c.IsEmpty() {
		b, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changesJSON = b
	}

	metadataJSON, err := json.Marshal(log.Metadata())
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		log.ID().String(),
		nullID(log.OrgID()),
		nullID(log.ActorID()),
		nullString(log.ActorEmail()),
		nullString(log.ActorIP()),
		log.Action().String(),
		log.ResourceType().String(),
		nullString(log.ResourceID()),
		changesJSON,
		log.Result().String(),
		log.Severity().String(),
		nullString(log.Message()),
		metadataJSON,
		nullString(log.RequestID()),
		log.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// List returns one page of audit logs matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter audit.Filter, page pagination.Pagination) (pagination.Result[*audit.AuditLog], error) {
	var empty pagination.Result[*audit.AuditLog]
	if err := filter.Validate(); err != nil {
		return empty, err
	}

	var where whereBuilder
	where.add("organization_id = ?", filter.OrgID.String())
	if filter.ActorID != nil {
		where.add("actor_id = ?", filter.ActorID.String())
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = a.String()
		}
		where.addIn("action", actions)
	}
	if filter.ResourceType != nil {
		where.add("resource_type = ?", filter.ResourceType.String())
	}
	if filter.ResourceID != nil {
		where.add("resource_id = ?", *filter.ResourceID)
	}
	if len(filter.Results) > 0 {
		results := make([]string, len(filter.Results))
		for i, res := range filter.Results {
			results[i] = res.String()
		}
		where.addIn("result", results)
	}
	if filter.Since != nil {
		where.add("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		where.add("created_at <= ?", *filter.Until)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs`+where.clause(), where.args...).Scan(&total); err != nil {
		return empty, fmt.Errorf("failed to count audit logs: %w", err)
	}

	args := append(where.args, page.Limit(), page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM audit_logs%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		auditColumns, where.clause(), len(where.args)+1, len(where.args)+2)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return empty, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*audit.AuditLog
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return empty, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return empty, err
	}
	return pagination.NewResult(logs, total, page), nil
}

// DeleteOlderThan removes the organization's entries created before cutoff.
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, orgID shared.ID, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM audit_logs WHERE organization_id = $1 AND created_at < $2`,
		orgID.String(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit logs: %w", err)
	}
	return rowsAffected(res)
}

func scanAuditLog(row scanner) (*audit.AuditLog, error) {
	var (
		id, action, resourceType, result, severity      string
		orgID, actorID, actorEmail, actorIP, resourceID sql.NullString
		message, requestID                              sql.NullString
		changesJSON, metadataJSON                       []byte
		createdAt                                       time.Time
	)
	err := row.Scan(&id, &orgID, &actorID, &actorEmail, &actorIP, &action, &resourceType, &resourceID,
		&changesJSON, &result, &severity, &message, &metadataJSON, &requestID, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: audit log not found", shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	var changes *audit.Changes
	if len(changesJSON) > 0 {
		changes = audit.NewChanges()
		if err := json.Unmarshal(changesJSON, changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
	}
	var metadata map[string]any
	if err := fromJSONB(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return audit.Reconstitute(
		shared.MustIDFromString(id),
		parseNullID(orgID),
		parseNullID(actorID),
		actorEmail.String,
		actorIP.String,
		audit.Action(action),
		audit.ResourceType(resourceType),
		resourceID.String,
		changes,
		audit.Result(result),
		audit.Severity(severity),
		message.String,
		metadata,
		requestID.String,
		createdAt.UTC(),
	), nil
}
