// Package utils holds small helpers shared by the HTTP layer that carry no
// domain rules of their own.
package utils

import "strconv"

// Page bounds for list endpoints.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
// Surrounding whitespace is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampPage parses raw page and page_size query values. Missing or invalid
// values fall back to the defaults; page is at least 1 and the size lies in
// [1, MaxPageSize].
func ClampPage(rawPage, rawSize string) (page, pageSize int) {
	page = AtoiDefault(rawPage, DefaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = AtoiDefault(rawSize, DefaultPageSize)
	switch {
	case pageSize < 1:
		pageSize = 1
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// NewPagination derives page counts for total items. pageSize must be positive.
func NewPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}
