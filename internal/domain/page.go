package domain

import (
	"fmt"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Sortable order fields, named as clients send them.
const (
	SortTotalAmount = "totalAmount"
	SortStatus      = "status"
	SortCreatedAt   = "createdAt"
)

// PageQuery selects one page of a user's orders. OrderBy is "field" or
// "field asc|desc"; an empty OrderBy means newest first.
type PageQuery struct {
	Page     int
	PageSize int
	OrderBy  string
}

type Page[T any] struct {
	Count int64
	Data  []T
}

// Sort is a parsed OrderBy clause.
type Sort struct {
	Field string
	Desc  bool
}

// Normalize fills defaults and rejects out-of-range values.
func (q PageQuery) Normalize() (PageQuery, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	if q.Page < 1 {
		return q, NewError(KindValidation, "page query", fmt.Errorf("%w: page must be >= 1", ErrInvalidPageQuery))
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return q, NewError(KindValidation, "page query",
			fmt.Errorf("%w: pageSize must be between 1 and %d", ErrInvalidPageQuery, MaxPageSize))
	}
	if _, err := q.Sort(); err != nil {
		return q, err
	}
	return q, nil
}

func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

func (q PageQuery) Sort() (Sort, error) {
	clause := strings.TrimSpace(q.OrderBy)
	if clause == "" {
		return Sort{Field: SortCreatedAt, Desc: true}, nil
	}

	parts := strings.Fields(clause)
	if len(parts) > 2 {
		return Sort{}, NewError(KindValidation, "page query", fmt.Errorf("%w: orderBy %q", ErrInvalidPageQuery, q.OrderBy))
	}

	s := Sort{}
	switch parts[0] {
	case SortTotalAmount, SortStatus, SortCreatedAt:
		s.Field = parts[0]
	default:
		return Sort{}, NewError(KindValidation, "page query", fmt.Errorf("%w: cannot order by %q", ErrInvalidPageQuery, parts[0]))
	}

	if len(parts) == 2 {
		switch strings.ToLower(parts[1]) {
		case "asc":
		case "desc":
			s.Desc = true
		default:
			return Sort{}, NewError(KindValidation, "page query", fmt.Errorf("%w: direction %q", ErrInvalidPageQuery, parts[1]))
		}
	}
	return s, nil
}
