package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// AuditHandler exposes the organization audit trail.
type AuditHandler struct {
	responder
	service *app.AuditService
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(svc *app.AuditService, v *validator.Validator, log *logger.Logger) *AuditHandler {
	return &AuditHandler{responder: responder{validator: v, logger: log}, service: svc}
}

// AuditLogResponse represents an audit entry in API responses.
type AuditLogResponse struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actor_id,omitempty"`
	ActorEmail   string         `json:"actor_email,omitempty"`
	ActorIP      string         `json:"actor_ip,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Changes      *audit.Changes `json:"changes,omitempty"`
	Result       string         `json:"result"`
	Severity     string         `json:"severity"`
	Message      string         `json:"message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func toAuditLogResponse(a *audit.AuditLog) AuditLogResponse {
	resp := AuditLogResponse{
		ID:           a.ID().String(),
		ActorEmail:   a.ActorEmail(),
		ActorIP:      a.ActorIP(),
		Action:       string(a.Action()),
		ResourceType: string(a.ResourceType()),
		ResourceID:   a.ResourceID(),
		Result:       string(a.Result()),
		Severity:     string(a.Severity()),
		Message:      a.Message(),
		Metadata:     a.Metadata(),
		RequestID:    a.RequestID(),
		CreatedAt:    a.CreatedAt(),
	}
	if a.ActorID() != nil {
		resp.ActorID = a.ActorID().String()
	}
	if c := a.Changes(); c != nil && !c.IsEmpty() {
		resp.Changes = c
	}
	return resp
}

// List handles GET /api/v1/audit-logs.
// @Summary      List audit logs
// @Description  Admin only. Needs AUDIT:READ. Repeat or comma-separate action and result.
// @Tags         Audit
// @Produce      json
// @Security     BearerAuth
// @Param        actor_id       query  string  false  "Actor user ID"
// @Param        action         query  string  false  "Actions"
// @Param        resource_type  query  string  false  "Resource type"
// @Param        resource_id    query  string  false  "Resource ID"
// @Param        result         query  string  false  "Results"
// @Param        since          query  string  false  "Filter since (RFC3339)"
// @Param        until          query  string  false  "Filter until (RFC3339)"
// @Param        page           query  int     false  "Page"
// @Param        per_page       query  int     false  "Items per page"
// @Success      200  {object}  ListResponse[AuditLogResponse]
// @Failure      403  {object}  apierror.Response
// @Router       /audit-logs [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := parseAuditFilter(r)
	if err != nil {
		h.serviceError(w, r, "Audit log", err)
		return
	}
	res, err := h.service.List(r.Context(), actor, filter, parsePagination(r))
	if err != nil {
		h.serviceError(w, r, "Audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(r, res, toAuditLogResponse))
}

// Export handles GET /api/v1/audit-logs/export.
// @Summary      Export audit logs
// @Description  Admin only. Needs AUDIT:EXPORT. One JSON object per line, same filters as the list.
// @Tags         Audit
// @Produce      application/x-ndjson
// @Security     BearerAuth
// @Success      200
// @Failure      403  {object}  apierror.Response
// @Router       /audit-logs/export [get]
func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := parseAuditFilter(r)
	if err != nil {
		h.serviceError(w, r, "Audit log", err)
		return
	}
	entries, truncated, err := h.service.Export(r.Context(), actor, filter)
	if err != nil {
		h.serviceError(w, r, "Audit log", err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="audit-logs-%s.ndjson"`, time.Now().UTC().Format("20060102")))
	w.Header().Set("X-Export-Truncated", strconv.FormatBool(truncated))
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(toAuditLogResponse(e)); err != nil {
			h.logger.Warn("audit export interrupted", "error", err)
			return
		}
	}
}

func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	var f audit.Filter

	if v := q.Get("actor_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			return f, err
		}
		f.ActorID = &id
	}
	for _, raw := range multiValue(q["action"]) {
		a := audit.Action(raw)
		if !a.IsValid() {
			return f, fmt.Errorf("%w: unknown action %q", shared.ErrValidation, raw)
		}
		f.Actions = append(f.Actions, a)
	}
	if v := q.Get("resource_type"); v != "" {
		rt := audit.ResourceType(v)
		if !rt.IsValid() {
			return f, fmt.Errorf("%w: unknown resource_type %q", shared.ErrValidation, v)
		}
		f.ResourceType = &rt
	}
	if v := q.Get("resource_id"); v != "" {
		f.ResourceID = &v
	}
	for _, raw := range multiValue(q["result"]) {
		res := audit.Result(raw)
		if !res.IsValid() {
			return f, fmt.Errorf("%w: unknown result %q", shared.ErrValidation, raw)
		}
		f.Results = append(f.Results, res)
	}
	var err error
	if f.Since, err = parseTimeParam(q.Get("since"), "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(q.Get("until"), "until"); err != nil {
		return f, err
	}
	if f.Since != nil && f.Until != nil && f.Until.Before(*f.Since) {
		return f, fmt.Errorf("%w: until is before since", shared.ErrValidation)
	}
	return f, nil
}

// multiValue flattens repeated and comma separated query values.
func multiValue(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, parseQueryArray(v)...)
	}
	return out
}

func parseTimeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", shared.ErrValidation, name)
	}
	return &t, nil
}
