package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidScan wraps every Normalize failure.
var ErrInvalidScan = errors.New("invalid list request")

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// ScanRequest is the list/filter/paginate body shared by list endpoints.
type ScanRequest struct {
	Filters   []*CommonFilter `json:"filters"`
	From      int             `json:"from"`
	Size      int             `json:"size"`
	SortBy    string          `json:"sort_by"`
	SortOrder string          `json:"sort_order"`
}

// Normalize validates filters and sort field against allowed and clamps
// pagination. defaultSort is used when SortBy is empty.
func (r *ScanRequest) Normalize(allowed map[string]bool, defaultSort string) error {
	for _, f := range r.Filters {
		if f == nil {
			return fmt.Errorf("%w: nil filter", ErrInvalidScan)
		}
		if err := f.Validate(allowed); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScan, err)
		}
	}
	if r.From < 0 {
		r.From = 0
	}
	if r.Size <= 0 {
		r.Size = DefaultPageSize
	}
	if r.Size > MaxPageSize {
		r.Size = MaxPageSize
	}
	if r.SortBy == "" {
		r.SortBy = defaultSort
	}
	if !allowed[r.SortBy] {
		return fmt.Errorf("%w: sort field %q is not allowed", ErrInvalidScan, r.SortBy)
	}
	switch strings.ToLower(r.SortOrder) {
	case "", "desc":
		r.SortOrder = "desc"
	case "asc":
		r.SortOrder = "asc"
	default:
		return fmt.Errorf("%w: sort order %q must be asc or desc", ErrInvalidScan, r.SortOrder)
	}
	return nil
}

// OrderClause renders the sort for gorm's Order.
func (r *ScanRequest) OrderClause() string {
	return r.SortBy + " " + r.SortOrder
}
