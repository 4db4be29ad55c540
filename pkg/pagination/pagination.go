// Package pagination provides page/size handling for list endpoints.
package pagination

import "strings"

// Defaults applied by New.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Pagination holds 1-based page parameters.
type Pagination struct {
	Page    int
	PerPage int
}

// New creates a Pagination, clamping invalid values.
func New(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset returns the SQL offset.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit returns the SQL limit.
func (p Pagination) Limit() int {
	return p.PerPage
}

// Result is one page of T.
type Result[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// NewResult creates a Result from one page of data and the overall total.
func NewResult[T any](data []T, total int64, p Pagination) Result[T] {
	if data == nil {
		data = make([]T, 0)
	}
	perPage := p.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	pages := int((total + int64(perPage) - 1) / int64(perPage))
	return Result[T]{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    perPage,
		TotalPages: pages,
	}
}

// Map converts the items of a Result, keeping the page metadata.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	out := make([]U, len(r.Data))
	for i, item := range r.Data {
		out[i] = fn(item)
	}
	return Result[U]{
		Data:       out,
		Total:      r.Total,
		Page:       r.Page,
		PerPage:    r.PerPage,
		TotalPages: r.TotalPages,
	}
}

// SortOrder is a sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "ASC"
	SortDesc SortOrder = "DESC"
)

// Sort is one ORDER BY term.
type Sort struct {
	Column string
	Order  SortOrder
}

// ParseSort parses "-created_at,name" into ORDER BY terms. Only fields present
// in allowed are kept; allowed maps request field names to column names.
func ParseSort(s string, allowed map[string]string) []Sort {
	var sorts []Sort
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		order := SortAsc
		switch {
		case strings.HasPrefix(part, "-"):
			order = SortDesc
			part = part[1:]
		case strings.HasPrefix(part, "+"):
			part = part[1:]
		}
		if column, ok := allowed[part]; ok {
			sorts = append(sorts, Sort{Column: column, Order: order})
		}
	}
	return sorts
}

// OrderBy renders sorts for an ORDER BY clause, or fallback when empty.
func OrderBy(sorts []Sort, fallback string) string {
	if len(sorts) == 0 {
		return fallback
	}
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		parts[i] = s.Column + " " + string(s.Order)
	}
	return strings.Join(parts, ", ")
}
