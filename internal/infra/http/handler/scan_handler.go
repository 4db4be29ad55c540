package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/validator"
)

// ScanHandler serves scans, SARIF uploads and report exports.
type ScanHandler struct {
	responder
	service *app.ScanService
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(svc *app.ScanService, v *validator.Validator, log *logger.Logger) *ScanHandler {
	return &ScanHandler{responder: responder{validator: v, logger: log}, service: svc}
}

// ScanResponse represents a scan in API responses.
type ScanResponse struct {
	ID           string          `json:"id"`
	WorkspaceID  string          `json:"workspace_id"`
	RepositoryID string          `json:"repository_id"`
	Branch       string          `json:"branch"`
	CommitSHA    string          `json:"commit_sha,omitempty"`
	Trigger      string          `json:"trigger"`
	Status       string          `json:"status"`
	Summary      scan.Summary    `json:"summary"`
	Findings     int             `json:"findings"`
	Error        string          `json:"error,omitempty"`
	Results      json.RawMessage `json:"results,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
	QueuedAt     time.Time       `json:"queued_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	DurationMS   int64           `json:"duration_ms,omitempty"`
}

func toScanResponse(sc *scan.Scan, withResults bool) ScanResponse {
	resp := ScanResponse{
		ID:           sc.ID().String(),
		WorkspaceID:  sc.WorkspaceID().String(),
		RepositoryID: sc.RepositoryID().String(),
		Branch:       sc.Branch(),
		CommitSHA:    sc.CommitSHA(),
		Trigger:      sc.Trigger().String(),
		Status:       sc.Status().String(),
		Summary:      sc.Summary(),
		Findings:     sc.Summary().Total(),
		Error:        sc.ErrorMessage(),
		QueuedAt:     sc.QueuedAt(),
		StartedAt:    sc.StartedAt(),
		FinishedAt:   sc.FinishedAt(),
		DurationMS:   sc.Duration().Milliseconds(),
	}
	if by := sc.CreatedBy(); by != nil {
		resp.CreatedBy = by.String()
	}
	if withResults {
		resp.Results = sc.Results()
	}
	return resp
}

// Trigger handles POST /api/v1/scans.
// @Summary      Trigger scan
// @Description  Queues a scan. Each call takes one slot of the plan's daily scansPerDay quota.
// @Tags         Scans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      app.TriggerScanInput  true  "Scan"
// @Success      202  {object}  ScanResponse
// @Failure      403  {object}  apierror.Response
// @Failure      429  {object}  apierror.Response
// @Router       /scans [post]
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in app.TriggerScanInput
	if !h.decode(w, r, &in) {
		return
	}
	repoID, err := parseID(in.RepositoryID)
	if err != nil {
		h.serviceError(w, r, "Repository", err)
		return
	}
	sc, err := h.service.Trigger(r.Context(), actor, repoID, in.Branch, scan.TriggerManual)
	if err != nil {
		h.serviceError(w, r, "Repository", err)
		return
	}
	writeJSON(w, http.StatusAccepted, toScanResponse(sc, false))
}

// List handles GET /api/v1/scans.
// @Summary      List scans
// @Tags         Scans
// @Produce      json
// @Security     BearerAuth
// @Param        workspace_id   query  string  false  "Workspace ID"
// @Param        repository_id  query  string  false  "Repository ID"
// @Param        status         query  string  false  "queued, running, completed, failed or canceled"
// @Param        trigger        query  string  false  "manual, scheduled or api"
// @Param        since          query  string  false  "RFC3339 lower bound on queued_at"
// @Param        page           query  int     false  "Page number"
// @Param        per_page       query  int     false  "Items per page"
// @Success      200  {object}  ListResponse[ScanResponse]
// @Router       /scans [get]
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	filter, err := parseScanFilter(r)
	if err != nil {
		h.serviceError(w, r, "Scan", err)
		return
	}
	res, err := h.service.List(r.Context(), actor, filter, parsePagination(r))
	if err != nil {
		h.serviceError(w, r, "Scan", err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(r, res, func(sc *scan.Scan) ScanResponse {
		return toScanResponse(sc, false)
	}))
}

func parseScanFilter(r *http.Request) (scan.Filter, error) {
	q := r.URL.Query()
	var f scan.Filter
	if v := q.Get("workspace_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			return f, err
		}
		f.WorkspaceID = &id
	}
	if v := q.Get("repository_id"); v != "" {
		id, err := parseID(v)
		if err != nil {
			return f, err
		}
		f.RepositoryID = &id
	}
	if v := q.Get("status"); v != "" {
		st := scan.Status(v)
		if !st.IsValid() {
			return f, fmt.Errorf("%w: unknown status", shared.ErrValidation)
		}
		f.Status = &st
	}
	if v := q.Get("trigger"); v != "" {
		tr := scan.Trigger(v)
		if !tr.IsValid() {
			return f, fmt.Errorf("%w: unknown trigger", shared.ErrValidation)
		}
		f.Trigger = &tr
	}
	since, err := parseTimeParam(q.Get("since"), "since")
	if err != nil {
		return f, err
	}
	f.Since = since
	return f, nil
}

// Get handles GET /api/v1/scans/{id}. Uploaded results are included.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	sc, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, r, "Scan", err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(sc, true))
}

// Cancel handles POST /api/v1/scans/{id}/cancel.
func (h *ScanHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	sc, err := h.service.Cancel(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, r, "Scan", err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(sc, false))
}

// SubmitResults handles POST /api/v1/scans/{id}/results. The body is a
// SARIF 2.1.0 log, optionally gzip or zstd encoded.
// @Summary      Upload SARIF results
// @Tags         Scans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Scan ID"
// @Success      200  {object}  ScanResponse
// @Failure      403  {object}  apierror.Response
// @Failure      409  {object}  apierror.Response
// @Failure      413  {object}  apierror.Response
// @Router       /scans/{id}/results [post]
func (h *ScanHandler) SubmitResults(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierror.New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Results exceed the upload limit").
				WriteJSONWithRequestID(w, h.requestID(r))
			return
		}
		apierror.SafeBadRequest(err).WriteJSONWithRequestID(w, h.requestID(r))
		return
	}
	sc, err := h.service.SubmitResults(r.Context(), actor, id, data)
	if err != nil {
		h.serviceError(w, r, "Scan", err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(sc, false))
}

// ExportReport handles POST /api/v1/scans/{id}/report.
// @Summary      Export report
// @Description  Stores a compressed JSON report and returns a presigned download link
// @Tags         Scans
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Scan ID"
// @Success      201  {object}  app.ReportLink
// @Failure      403  {object}  apierror.Response
// @Failure      409  {object}  apierror.Response
// @Router       /scans/{id}/report [post]
func (h *ScanHandler) ExportReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	link, err := h.service.ExportReport(r.Context(), actor, id)
	if err != nil {
		h.serviceError(w, r, "Scan", err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}
