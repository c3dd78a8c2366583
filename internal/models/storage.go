package models

import "time"

// SessionQuery filters a user's session history.
type SessionQuery struct {
	Status SessionStatus // empty matches every status
	Start  *time.Time    // inclusive, on started_at
	End    *time.Time    // exclusive
	Limit  int
	Offset int
}

// RecordQuery filters the personal record log.
type RecordQuery struct {
	ExerciseName string // empty matches every exercise
	Limit        int
	Offset       int
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// DefaultPageSize applies when a caller asks for a page without a size.
const DefaultPageSize = 20

// PageBounds converts a 1-based page and a size to limit/offset.
func PageBounds(page, size int) (limit, offset int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return size, (page - 1) * size
}
