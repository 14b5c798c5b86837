// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"storecount/internal/core/apperror"
	"storecount/internal/core/id"
	"storecount/internal/domain"
)

// PageQuery contains limit/offset pagination parameters.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Page converts the query into a domain page.
func (q PageQuery) Page() domain.Page {
	return domain.Page{Limit: q.Limit, Offset: q.Offset}.Normalize()
}

// ListResponse wraps list results with pagination.
type ListResponse[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// NewListResponse maps a domain result item by item.
func NewListResponse[S, T any](r domain.ListResult[S], convert func(S) T) ListResponse[T] {
	items := make([]T, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, convert(it))
	}
	return ListResponse[T]{
		Items:      items,
		TotalCount: r.TotalCount,
		Limit:      r.Limit,
		Offset:     r.Offset,
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ParseIDs parses a list of ids, naming field in the validation error.
func ParseIDs(field string, raw []string) ([]id.ID, error) {
	ids := make([]id.ID, 0, len(raw))
	for _, s := range raw {
		v, err := id.Parse(s)
		if err != nil {
			return nil, apperror.NewValidation("invalid id").WithDetail("field", field).WithDetail("value", s)
		}
		ids = append(ids, v)
	}
	return ids, nil
}
