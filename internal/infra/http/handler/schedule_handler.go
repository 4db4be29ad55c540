package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/domain/schedule"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// ScheduleHandler serves recurring scan schedules.
type ScheduleHandler struct {
	responder
	service *app.ScheduleService
}

// NewScheduleHandler creates a new schedule handler.
func NewScheduleHandler(svc *app.ScheduleService, v *validator.Validator, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{responder: responder{validator: v, logger: log}, service: svc}
}

// ScheduleResponse represents a schedule in API responses.
type ScheduleResponse struct {
	ID           string     `json:"id"`
	WorkspaceID  string     `json:"workspace_id"`
	RepositoryID string     `json:"repository_id"`
	Cron         string     `json:"cron"`
	Branch       string     `json:"branch,omitempty"`
	Enabled      bool       `json:"enabled"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toScheduleResponse(s *schedule.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:           s.ID().String(),
		WorkspaceID:  s.WorkspaceID().String(),
		RepositoryID: s.RepositoryID().String(),
		Cron:         s.Cron(),
		Branch:       s.Branch(),
		Enabled:      s.Enabled(),
		NextRunAt:    s.NextRunAt(),
		LastRunAt:    s.LastRunAt(),
		CreatedBy:    s.CreatedBy().String(),
		CreatedAt:    s.CreatedAt(),
		UpdatedAt:    s.UpdatedAt(),
	}
}

// Create handles POST /api/v1/schedules.
// @Summary      Create schedule
// @Description  Five-field cron expression evaluated in UTC. Needs SCAN:SCHEDULE.
// @Tags         Schedules
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      app.CreateScheduleInput  true  "Schedule"
// @Success      201  {object}  ScheduleResponse
// @Failure      403  {object}  apierror.Response
// @Router       /schedules [post]
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.CreateScheduleInput
	if !h.decode(w, r, &in) {
		return
	}
	s, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.serviceError(w, r, "Repository", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleResponse(s))
}

// List handles GET /api/v1/schedules?workspace_id=.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	raw := r.URL.Query().Get("workspace_id")
	if raw == "" {
		h.serviceError(w, r, "Workspace", fmt.Errorf("%w: workspace_id is required", shared.ErrValidation))
		return
	}
	workspaceID, err := parseID(raw)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	items, err := h.service.List(r.Context(), actor, workspaceID)
	if err != nil {
		h.serviceError(w, r, "Workspace", err)
		return
	}
	out := make([]ScheduleResponse, len(items))
	for i, s := range items {
		out[i] = toScheduleResponse(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// Get handles GET /api/v1/schedules/{id}.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withSchedule(w, r, func(actor app.Actor, id shared.ID) (*schedule.Schedule, error) {
		return h.service.Get(r.Context(), actor, id)
	})
}

// Update handles PATCH /api/v1/schedules/{id}.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in app.UpdateScheduleInput
	h.withSchedule(w, r, func(actor app.Actor, id shared.ID) (*schedule.Schedule, error) {
		if !h.decode(w, r, &in) {
			return nil, nil
		}
		return h.service.Update(r.Context(), actor, id, in)
	})
}

// Enable handles POST /api/v1/schedules/{id}/enable.
func (h *ScheduleHandler) Enable(w http.ResponseWriter, r *http.Request) {
	h.withSchedule(w, r, func(actor app.Actor, id shared.ID) (*schedule.Schedule, error) {
		return h.service.Enable(r.Context(), actor, id)
	})
}

// Disable handles POST /api/v1/schedules/{id}/disable.
func (h *ScheduleHandler) Disable(w http.ResponseWriter, r *http.Request) {
	h.withSchedule(w, r, func(actor app.Actor, id shared.ID) (*schedule.Schedule, error) {
		return h.service.Disable(r.Context(), actor, id)
	})
}

// Delete handles DELETE /api/v1/schedules/{id}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.serviceError(w, r, "Schedule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSchedule runs fn for the {id} schedule and writes the result. A nil
// schedule with a nil error means fn already responded.
func (h *ScheduleHandler) withSchedule(w http.ResponseWriter, r *http.Request, fn func(app.Actor, shared.ID) (*schedule.Schedule, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	s, err := fn(actor, id)
	if err != nil {
		h.serviceError(w, r, "Schedule", err)
		return
	}
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, toScheduleResponse(s))
}
