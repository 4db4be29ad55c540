// Package audit records security-relevant actions per organization.
package audit

import (
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/shared"
)

// AuditLog is one immutable audit entry.
type AuditLog struct {
	id           shared.ID
	orgID        *shared.ID // nil for events outside an organization
	actorID      *shared.ID // nil for system actions
	actorEmail   string
	actorIP      string
	action       Action
	resourceType ResourceType
	resourceID   string
	changes      *Changes
	result       Result
	severity     Severity
	message      string
	metadata     map[string]any
	requestID    string
	createdAt    time.Time
}

// NewAuditLog creates a new audit entry.
func NewAuditLog(action Action, resourceType ResourceType, resourceID string, result Result) (*AuditLog, error) {
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: invalid action %q", shared.ErrValidation, string(action))
	}
	if !resourceType.IsValid() {
		return nil, fmt.Errorf("%w: invalid resource type", shared.ErrValidation)
	}
	if !result.IsValid() {
		return nil, fmt.Errorf("%w: invalid result", shared.ErrValidation)
	}
	return &AuditLog{
		id:           shared.NewID(),
		action:       action,
		resourceType: resourceType,
		resourceID:   resourceID,
		result:       result,
		severity:     SeverityForAction(action),
		metadata:     make(map[string]any),
		createdAt:    time.Now().UTC(),
	}, nil
}

// Reconstitute recreates an AuditLog from persistence.
func Reconstitute(
	id shared.ID,
	orgID, actorID *shared.ID,
	actorEmail, actorIP string,
	action Action,
	resourceType ResourceType,
	resourceID string,
	changes *Changes,
	result Result,
	severity Severity,
	message string,
	metadata map[string]any,
	requestID string,
	createdAt time.Time,
) *AuditLog {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &AuditLog{
		id:           id,
		orgID:        orgID,
		actorID:      actorID,
		actorEmail:   actorEmail,
		actorIP:      actorIP,
		action:       action,
		resourceType: resourceType,
		resourceID:   resourceID,
		changes:      changes,
		result:       result,
		severity:     severity,
		message:      message,
		metadata:     metadata,
		requestID:    requestID,
		createdAt:    createdAt,
	}
}

func (a *AuditLog) ID() shared.ID              { return a.id }
func (a *AuditLog) OrgID() *shared.ID          { return a.orgID }
func (a *AuditLog) ActorID() *shared.ID        { return a.actorID }
func (a *AuditLog) ActorEmail() string         { return a.actorEmail }
func (a *AuditLog) ActorIP() string            { return a.actorIP }
func (a *AuditLog) Action() Action             { return a.action }
func (a *AuditLog) ResourceType() ResourceType { return a.resourceType }
func (a *AuditLog) ResourceID() string         { return a.resourceID }
func (a *AuditLog) Changes() *Changes          { return a.changes }
func (a *AuditLog) Result() Result             { return a.result }
func (a *AuditLog) Severity() Severity         { return a.severity }
func (a *AuditLog) RequestID() string          { return a.requestID }
func (a *AuditLog) CreatedAt() time.Time       { return a.createdAt }

// Metadata returns a copy of the metadata.
func (a *AuditLog) Metadata() map[string]any {
	out := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		out[k] = v
	}
	return out
}

// Message returns the stored message or a generated one.
func (a *AuditLog) Message() string {
	if a.message != "" {
		return a.message
	}
	actor := "system"
	if a.actorEmail != "" {
		actor = a.actorEmail
	}
	if a.resourceID != "" {
		return fmt.Sprintf("%s performed %s on %s %s (%s)", actor, a.action, a.resourceType, a.resourceID, a.result)
	}
	return fmt.Sprintf("%s performed %s on %s (%s)", actor, a.action, a.resourceType, a.result)
}

// WithOrgID sets the organization.
func (a *AuditLog) WithOrgID(orgID shared.ID) *AuditLog {
	a.orgID = &orgID
	return a
}

// WithActor sets who performed the action.
func (a *AuditLog) WithActor(actorID shared.ID, email string) *AuditLog {
	a.actorID = &actorID
	a.actorEmail = email
	return a
}

func (a *AuditLog) WithActorIP(ip string) *AuditLog {
	a.actorIP = ip
	return a
}

func (a *AuditLog) WithChanges(c *Changes) *AuditLog {
	a.changes = c
	return a
}

func (a *AuditLog) WithMessage(msg string) *AuditLog {
	a.message = msg
	return a
}

// WithMetadata sets one metadata key.
func (a *AuditLog) WithMetadata(key string, value any) *AuditLog {
	a.metadata[key] = value
	return a
}

func (a *AuditLog) WithRequestID(id string) *AuditLog {
	a.requestID = id
	return a
}

func (a *AuditLog) WithSeverity(s Severity) *AuditLog {
	a.severity = s
	return a
}

func (a *AuditLog) IsDenied() bool { return a.result == ResultDenied }
