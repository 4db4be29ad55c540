package app

import (
	"context"

	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/pagination"
)

// AuditService records and queries the audit trail.
type AuditService struct {
	auditRepo    audit.Repository
	entitlements *EntitlementService
	logger       *logger.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo audit.Repository, entitlements *EntitlementService, log *logger.Logger) *AuditService {
	return &AuditService{
		auditRepo:    repo,
		entitlements: entitlements,
		logger:       log.With("service", "audit"),
	}
}

// AuditContext holds who did something and from where.
type AuditContext struct {
	OrgID      shared.ID
	ActorID    shared.ID
	ActorEmail string
	ActorIP    string
	RequestID  string
}

// AuditEvent is what happened.
type AuditEvent struct {
	Action       audit.Action
	ResourceType audit.ResourceType
	ResourceID   string
	Result       audit.Result
	Severity     audit.Severity
	Changes      *audit.Changes
	Message      string
	Metadata     map[string]any
}

// NewSuccessEvent creates a success audit event.
func NewSuccessEvent(action audit.Action, resourceType audit.ResourceType, resourceID string) AuditEvent {
	return AuditEvent{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Result:       audit.ResultSuccess,
		Metadata:     make(map[string]any),
	}
}

// NewFailureEvent creates a failure audit event.
func NewFailureEvent(action audit.Action, resourceType audit.ResourceType, resourceID string, err error) AuditEvent {
	e := NewSuccessEvent(action, resourceType, resourceID)
	e.Result = audit.ResultFailure
	if err != nil {
		e.Metadata["error"] = err.Error()
	}
	return e
}

// NewDeniedEvent creates a denied audit event.
func NewDeniedEvent(action audit.Action, resourceType audit.ResourceType, resourceID, reason string) AuditEvent {
	e := NewSuccessEvent(action, resourceType, resourceID)
	e.Result = audit.ResultDenied
	if reason != "" {
		e.Metadata["reason"] = reason
	}
	return e
}

// WithChanges sets the changes.
func (e AuditEvent) WithChanges(changes *audit.Changes) AuditEvent {
	e.Changes = changes
	return e
}

// WithMessage sets the message.
func (e AuditEvent) WithMessage(message string) AuditEvent {
	e.Message = message
	return e
}

// WithMetadata adds a metadata entry.
func (e AuditEvent) WithMetadata(key string, value any) AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	e.Metadata[key] = value
	return e
}

// LogEvent persists an audit entry. Failures are logged and returned; most
// callers ignore the error so auditing never fails the audited operation.
func (s *AuditService) LogEvent(ctx context.Context, actx AuditContext, event AuditEvent) error {
	entry, err := audit.NewAuditLog(event.Action, event.ResourceType, event.ResourceID, event.Result)
	if err != nil {
		s.logger.Error("invalid audit event", "error", err, "action", event.Action)
		return err
	}

	if !actx.OrgID.IsZero() {
		entry.WithOrgID(actx.OrgID)
	}
	if !actx.ActorID.IsZero() {
		entry.WithActor(actx.ActorID, actx.ActorEmail)
	} else if actx.ActorEmail != "" {
		entry.WithActor(shared.ID{}, actx.ActorEmail)
	}
	if actx.ActorIP != "" {
		entry.WithActorIP(actx.ActorIP)
	}
	if actx.RequestID != "" {
		entry.WithRequestID(actx.RequestID)
	}
	if event.Severity != "" {
		entry.WithSeverity(event.Severity)
	}
	if event.Changes != nil && !event.Changes.IsEmpty() {
		entry.WithChanges(event.Changes)
	}
	if event.Message != "" {
		entry.WithMessage(event.Message)
	}
	for k, v := range event.Metadata {
		entry.WithMetadata(k, v)
	}

	if err := s.auditRepo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to persist audit log",
			"error", err,
			"action", event.Action,
			"resource_type", event.ResourceType,
			"resource_id", event.ResourceID,
		)
		return err
	}

	s.logger.Debug("audit event",
		"action", event.Action.String(),
		"resource_id", event.ResourceID,
		"result", event.Result.String(),
		"org_id", actx.OrgID.String(),
	)
	return nil
}

// log records an event for actor, ignoring persistence errors.
func (s *AuditService) log(ctx context.Context, actor Actor, event AuditEvent) {
	if s == nil {
		return
	}
	_ = s.LogEvent(ctx, actor.AuditContext(), event)
}

// List returns the organization's audit trail. It needs an admin and a plan
// with AUDIT:READ.
func (s *AuditService) List(ctx context.Context, actor Actor, filter audit.Filter, page pagination.Pagination) (pagination.Result[*audit.AuditLog], error) {
	if err := actor.requireRole(organization.RoleAdmin); err != nil {
		return pagination.Result[*audit.AuditLog]{}, err
	}
	if err := s.entitlements.Authorize(ctx, actor, plan.PermAuditRead); err != nil {
		return pagination.Result[*audit.AuditLog]{}, err
	}

	filter.OrgID = actor.OrgID
	return s.auditRepo.List(ctx, filter, page)
}

// auditExportLimit caps one export.
const auditExportLimit = 10000

// Export returns the organization's audit entries matching filter, up to
// auditExportLimit of them. truncated reports whether more matched. It needs
// an admin and a plan with AUDIT:EXPORT.
func (s *AuditService) Export(ctx context.Context, actor Actor, filter audit.Filter) (entries []*audit.AuditLog, truncated bool, err error) {
	if err := actor.requireRole(organization.RoleAdmin); err != nil {
		return nil, false, err
	}
	if err := s.entitlements.Authorize(ctx, actor, plan.PermAuditExport); err != nil {
		return nil, false, err
	}

	filter.OrgID = actor.OrgID
	var total int64
	for page := 1; len(entries) < auditExportLimit; page++ {
		res, err := s.auditRepo.List(ctx, filter, pagination.New(page, pagination.MaxPerPage))
		if err != nil {
			return nil, false, err
		}
		total = res.Total
		entries = append(entries, res.Data...)
		if len(res.Data) == 0 || int64(len(entries)) >= total {
			break
		}
	}
	if len(entries) > auditExportLimit {
		entries = entries[:auditExportLimit]
	}
	truncated = total > int64(len(entries))

	s.log(ctx, actor, NewSuccessEvent(audit.ActionAuditExported, audit.ResourceTypeOrganization, actor.OrgID.String()).
		WithMetadata("entries", len(entries)).
		WithMetadata("truncated", truncated))
	return entries, truncated, nil
}
