// Package handler implements the REST endpoints on top of the app services.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/openctemio/reposcan/internal/app"
	"github.com/openctemio/reposcan/internal/infra/http/middleware"
	"github.com/openctemio/reposcan/internal/infra/scm"
	"github.com/openctemio/reposcan/pkg/apierror"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/pagination"
	"github.com/openctemio/reposcan/pkg/validator"
)

// PaginationLinks are navigation links for list responses.
type PaginationLinks struct {
	Self  string `json:"self"`
	First string `json:"first,omitempty"`
	Prev  string `json:"prev,omitempty"`
	Next  string `json:"next,omitempty"`
	Last  string `json:"last,omitempty"`
}

// ListResponse is a page of T.
type ListResponse[T any] struct {
	Data       []T              `json:"data"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
	Links      *PaginationLinks `json:"links,omitempty"`
}

func newListResponse[T, U any](r *http.Request, res pagination.Result[T], fn func(T) U) ListResponse[U] {
	mapped := pagination.Map(res, fn)
	return ListResponse[U]{
		Data:       mapped.Data,
		Total:      mapped.Total,
		Page:       mapped.Page,
		PerPage:    mapped.PerPage,
		TotalPages: mapped.TotalPages,
		Links:      newPaginationLinks(r, mapped.Page, mapped.PerPage, mapped.TotalPages),
	}
}

// newPaginationLinks keeps the request's other query parameters.
func newPaginationLinks(r *http.Request, page, perPage, totalPages int) *PaginationLinks {
	if totalPages == 0 {
		return nil
	}
	base := r.URL.Path
	query := r.URL.Query()

	links := &PaginationLinks{
		Self:  pageURL(base, query, page, perPage),
		First: pageURL(base, query, 1, perPage),
	}
	if page > 1 {
		links.Prev = pageURL(base, query, page-1, perPage)
	}
	if page < totalPages {
		links.Next = pageURL(base, query, page+1, perPage)
	}
	if totalPages > 1 {
		links.Last = pageURL(base, query, totalPages, perPage)
	}
	return links
}

func pageURL(base string, query url.Values, page, perPage int) string {
	params := make(url.Values, len(query)+2)
	for k, v := range query {
		params[k] = v
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	return base + "?" + params.Encode()
}

func parsePagination(r *http.Request) pagination.Pagination {
	q := r.URL.Query()
	return pagination.New(parseQueryInt(q.Get("page"), 1), parseQueryInt(q.Get("per_page"), pagination.DefaultPerPage))
}

// parseQueryInt returns defaultVal when s is empty or not a number.
func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func parseQueryArray(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var errBodyTooLarge = errors.New("request body too large")

// decodeJSON decodes a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errBodyTooLarge
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// responder writes errors the same way for every handler.
type responder struct {
	validator *validator.Validator
	logger    *logger.Logger
}

func (h responder) requestID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// actor returns the caller or writes 401.
func (h responder) actor(w http.ResponseWriter, r *http.Request) (app.Actor, bool) {
	actor, ok := middleware.ActorFrom(r)
	if !ok {
		apierror.Unauthorized("").WriteJSONWithRequestID(w, h.requestID(r))
	}
	return actor, ok
}

// pathID parses a UUID route parameter or writes 400.
func (h responder) pathID(w http.ResponseWriter, r *http.Request, param string) (shared.ID, bool) {
	id, err := shared.IDFromString(chi.URLParam(r, param))
	if err != nil {
		apierror.BadRequest(fmt.Sprintf("Invalid %s", param)).WriteJSONWithRequestID(w, h.requestID(r))
		return shared.ID{}, false
	}
	return id, true
}

// decode reads and validates a request body, writing the error response
// itself when it fails.
func (h responder) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			apierror.New(http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large").
				WriteJSONWithRequestID(w, h.requestID(r))
			return false
		}
		apierror.SafeBadRequest(err).WriteJSONWithRequestID(w, h.requestID(r))
		return false
	}
	if err := h.validator.Validate(dst); err != nil {
		h.validationError(w, r, err)
		return false
	}
	return true
}

func (h responder) validationError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(apierror.ValidationErrors, 0, len(verrs))
		for _, ve := range verrs {
			details.Add(ve.Field, ve.Message)
		}
		details.ToAPIError().WriteJSONWithRequestID(w, h.requestID(r))
		return
	}
	apierror.BadRequest("Validation failed").WriteJSONWithRequestID(w, h.requestID(r))
}

// serviceError maps service and domain errors to API errors. resource names
// the thing a 404 refers to.
func (h responder) serviceError(w http.ResponseWriter, r *http.Request, resource string, err error) {
	h.apiError(r, resource, err).WriteJSONWithRequestID(w, h.requestID(r))
}

func (h responder) apiError(r *http.Request, resource string, err error) *apierror.Error {
	var (
		restricted *app.PlanRestrictedError
		quota      *app.QuotaExceededError
		apiErr     *apierror.Error
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &restricted):
		return middleware.PlanRestricted(restricted)
	case errors.As(err, &quota):
		return apierror.QuotaExceeded(
			fmt.Sprintf("Your %s plan allows %d %s", quota.Plan, quota.Max, quota.Limit),
			&apierror.QuotaDetails{
				CurrentPlan: quota.Plan.String(),
				Limit:       string(quota.Limit),
				Max:         quota.Max,
				Used:        quota.Used,
			})
	case errors.Is(err, scm.ErrRemoteUnavailable):
		return apierror.New(http.StatusBadGateway, "REMOTE_UNAVAILABLE", "The repository host could not be reached").WithError(err)
	case errors.Is(err, shared.ErrNotFound):
		return apierror.NotFound(resource)
	case errors.Is(err, shared.ErrAlreadyExists):
		return apierror.Conflict(userMessage(err, resource+" already exists"))
	case errors.Is(err, shared.ErrConflict):
		return apierror.Conflict(userMessage(err, "Conflict"))
	case errors.Is(err, shared.ErrValidation):
		return apierror.BadRequest(userMessage(err, "Invalid request"))
	case errors.Is(err, shared.ErrUnauthorized):
		return apierror.Unauthorized(userMessage(err, ""))
	case errors.Is(err, shared.ErrForbidden):
		return apierror.Forbidden(userMessage(err, ""))
	default:
		h.logger.Error("service error", "error", err, "path", r.URL.Path, "request_id", h.requestID(r))
		return apierror.InternalError(err)
	}
}

// userMessage strips the sentinel prefix from err, e.g. "validation error:
// bad cron" becomes "Bad cron".
func userMessage(err error, fallback string) string {
	msg := err.Error()
	if _, rest, ok := strings.Cut(msg, ": "); ok {
		msg = rest
	}
	if msg == "" {
		return fallback
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

// parseID parses a body field already checked by the uuid validator.
func parseID(s string) (shared.ID, error) {
	id, err := shared.IDFromString(s)
	if err != nil {
		return shared.ID{}, fmt.Errorf("%w: invalid id", shared.ErrValidation)
	}
	return id, nil
}
