/*
 * Copyright 2025 the strata authors.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package filters

import (
	"fmt"

	"github.com/uptrace/bun"
)

// ErrUnsupportedFilter is returned when a filter cannot be folded into a
// query. It signals a programmer error and is never swallowed.
var ErrUnsupportedFilter = fmt.Errorf("unsupported filter")

// SortOrder selects the direction of an OrderBy filter.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filter describes one predicate or query-shaping directive. Filters are
// immutable value objects constructed per call and discarded after the
// query executes. The set of filter kinds is sealed; all predicates of a
// query combine conjunctively in the order they are given.
type Filter interface {
	applyFilter(q *bun.SelectQuery) (*bun.SelectQuery, error)
}

// Apply folds an ordered sequence of filters into a select query,
// preserving the order given. A nil filter fails fast with
// ErrUnsupportedFilter instead of being silently ignored.
func Apply(q *bun.SelectQuery, fs ...Filter) (*bun.SelectQuery, error) {
	for _, f := range fs {
		if f == nil {
			return nil, fmt.Errorf("%w: <nil>", ErrUnsupportedFilter)
		}
		var err error
		q, err = f.applyFilter(q)
		if err != nil {
			return nil, err
		}
	}
	return q, nil
}

// WithoutPagination returns the filters with any LimitOffset removed.
// Count queries use this so that the total ignores the result window.
func WithoutPagination(fs []Filter) []Filter {
	out := make([]Filter, 0, len(fs))
	for _, f := range fs {
		if _, ok := f.(LimitOffset); ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// OnlyPredicates returns the filters with query-shaping directives
// (LimitOffset and OrderBy) removed, leaving only row predicates.
// Count and existence queries use this.
func OnlyPredicates(fs []Filter) []Filter {
	out := make([]Filter, 0, len(fs))
	for _, f := range fs {
		switch f.(type) {
		case LimitOffset, OrderBy:
			continue
		}
		out = append(out, f)
	}
	return out
}

// FindLimitOffset returns the first LimitOffset among the filters, or nil.
func FindLimitOffset(fs ...Filter) *LimitOffset {
	for _, f := range fs {
		if lo, ok := f.(LimitOffset); ok {
			return &lo
		}
	}
	return nil
}

// Eq restricts a field to exactly the given value.
type Eq struct {
	Field string
	Value any
}

// ByEq constructs an attribute-equality filter.
func ByEq(field string, value any) Eq {
	return Eq{Field: field, Value: value}
}

func (f Eq) applyFilter(q *bun.SelectQuery) (*bun.SelectQuery, error) {
	if f.Field == "" {
		return nil, fmt.Errorf("%w: equality filter requires a field", ErrUnsupportedFilter)
	}
	return q.Where("? = ?", bun.Ident(f.Field), f.Value), nil
}

// Range restricts a field to lie between an optional lower and upper
// bound. A nil bound leaves that end open. Bounds are inclusive unless
// Exclusive is set.
type Range struct {
	Field     string
	Lower     any
	Upper     any
	Exclusive bool
}

// ByRange constructs an inclusive range filter; either bound may be nil.
func ByRange(field string, lower, upper any) Range {
	return Range{Field: field, Lower: lower, Upper: upper}
}

func (f Range) applyFilter(q *bun.SelectQuery) (*bun.SelectQuery, error) {
	if f.Field == "" {
		return nil, fmt.Errorf("%w: range filter requires a field", ErrUnsupportedFilter)
	}
	if f.Lower != nil {
		if f.Exclusive {
			q = q.Where("? > ?", bun.Ident(f.Field), f.Lower)
		} else {
			q = q.Where("? >= ?", bun.Ident(f.Field), f.Lower)
		}
	}
	if f.Upper != nil {
		if f.Exclusive {
			q = q.Where("? < ?", bun.Ident(f.Field), f.Upper)
		} else {
			q = q.Where("? <= ?", bun.Ident(f.Field), f.Upper)
		}
	}
	return q, nil
}

// Collection restricts a field to a set of values.
//
// The nil/empty distinction is deliberate and load bearing:
//   - include, Values == nil: the filter is not applied.
//   - include, len(Values) == 0: no rows match.
//   - exclude, nil or empty: no restriction, all rows pass.
type Collection[V any] struct {
	Field   string
	Values  []V
	Exclude bool
}

// ByValues constructs an inclusion filter (field IN values).
func ByValues[V any](field string, values ...V) Collection[V] {
	return Collection[V]{Field: field, Values: values}
}

// ByNotValues constructs an exclusion filter (field NOT IN values).
func ByNotValues[V any](field string, values ...V) Collection[V] {
	return Collection[V]{Field: field, Values: values, Exclude: true}
}

func (f Collection[V]) applyFilter(q *bun.SelectQuery) (*bun.SelectQuery, error) {
	if f.Field == "" {
		return nil, fmt.Errorf("%w: collection filter requires a field", ErrUnsupportedFilter)
	}
	if f.Exclude {
		if len(f.Values) == 0 {
			return q, nil
		}
		return q.Where("? NOT IN (?)", bun.Ident(f.Field), bun.In(f.Values)), nil
	}
	if f.Values == nil {
		return q, nil
	}
	if len(f.Values) == 0 {
		// Empty IN clause is unsatisfiable.
		return q.Where("1 = 0"), nil
	}
	return q.Where("? IN (?)", bun.Ident(f.Field), bun.In(f.Values)), nil
}

// Search restricts a field with a substring match. IgnoreCase lowers both
// sides of the comparison; Exclude negates the match.
type Search struct {
	Field      string
	Value      string
	IgnoreCase bool
	Exclude    bool
}

// BySearch constructs a case-sensitive substring filter.
func BySearch(field, value string) Search {
	return Search{Field: field, Value: value}
}

func (f Search) applyFilter(q *bun.SelectQuery) (*bun.SelectQuery, error) {
	if f.Field == "" {
		return nil, fmt.Errorf("%w: search filter requires a field", ErrUnsupportedFilter)
	}
	pattern := "%" + f.Value + "%"
	switch {
	case f.IgnoreCase && f.Exclude:
		return q.Where("LOWER(?) NOT LIKE LOWER(?)", bun.Ident(f.Field), pattern), nil
	case f.IgnoreCase:
		return q.Where("LOWER(?) LIKE LOWER(?)", bun.Ident(f.Field), pattern), nil
	case f.Exclude:
		return q.Where("? NOT LIKE ?", bun.Ident(f.Field), pattern), nil
	default:
		return q.Where("? LIKE ?", bun.Ident(f.Field), pattern), nil
	}
}

// OrderBy appends a sort key. Multiple OrderBy filters compose as a
// stable multi-key sort in the order received.
type OrderBy struct {
	Field string
	Order SortOrder
}

// ByOrder constructs an ascending sort filter.
func ByOrder(field string) OrderBy {
	return OrderBy{Field: field, Order: SortAsc}
}

// ByOrderDesc constructs a descending sort filter.
func ByOrderDesc(field string) OrderBy {
	return OrderBy{Field: field, Order: SortDesc}
}

func (f OrderBy) applyFilter(q *bun.SelectQuery) (*bun.SelectQuery, error) {
	if f.Field == "" {
		return nil, fmt.Errorf("%w: order filter requires a field", ErrUnsupportedFilter)
	}
	switch f.Order {
	case SortDesc:
		return q.OrderExpr("? DESC", bun.Ident(f.Field)), nil
	case SortAsc, "":
		return q.OrderExpr("? ASC", bun.Ident(f.Field)), nil
	default:
		return nil, fmt.Errorf("%w: sort order %q", ErrUnsupportedFilter, f.Order)
	}
}

// LimitOffset bounds the result window: skip Offset rows, take Limit.
type LimitOffset struct {
	Limit  int
	Offset int
}

// ByPage converts 1-based page/pageSize values into a LimitOffset.
func ByPage(page, pageSize int) LimitOffset {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	return LimitOffset{Limit: pageSize, Offset: (page - 1) * pageSize}
}

func (f LimitOffset) applyFilter(q *bun.SelectQuery) (*bun.SelectQuery, error) {
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q, nil
}
