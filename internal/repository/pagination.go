package repository

// Session history paging bounds.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

// normalized clamps out-of-range values instead of rejecting them.
func (p PageRequest) normalized() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	switch {
	case p.PageSize < 1:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func (p PageRequest) offset() int {
	return (p.Page - 1) * p.PageSize
}

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func newPageResult[T any](req PageRequest, items []T, total int64) PageResult[T] {
	return PageResult[T]{
		Items:      items,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: pageCount(total, req.PageSize),
	}
}

// MapPage converts the items of a page and keeps its paging metadata.
func MapPage[T, U any](in PageResult[T], fn func(*T) U) PageResult[U] {
	out := PageResult[U]{
		Items:      make([]U, 0, len(in.Items)),
		Page:       in.Page,
		PageSize:   in.PageSize,
		Total:      in.Total,
		TotalPages: in.TotalPages,
	}
	for i := range in.Items {
		out.Items = append(out.Items, fn(&in.Items[i]))
	}
	return out
}

func pageCount(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
