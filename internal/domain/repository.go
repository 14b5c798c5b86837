// Package domain provides types shared by the domain packages.
package domain

// Page holds pagination options for list operations.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// Slice applies the page to an in-memory result set.
func Slice[T any](all []T, page Page) ListResult[T] {
	page = page.Normalize()
	result := ListResult[T]{
		Items:      []T{},
		TotalCount: int64(len(all)),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if page.Offset >= len(all) {
		return result
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	result.Items = all[page.Offset:end]
	return result
}
