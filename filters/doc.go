// Package filters provides immutable value objects describing query
// predicates and query-shaping directives for the generic repository.
package filters
