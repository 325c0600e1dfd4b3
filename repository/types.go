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

package repository

import (
	"context"

	"github.com/strata-db/strata/filters"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// DefaultChunkSize bounds the number of rows touched by one batch
// statement; larger inputs are split transparently into multiple
// round-trips to stay under driver parameter-count limits.
const DefaultChunkSize = 950

// ReadRepository defines filtered read operations for a generic entity
// type. All operations combine their filters conjunctively.
type ReadRepository[T any] interface {
	// Count returns the number of records matching the filters, ignoring
	// any LimitOffset filter.
	Count(ctx context.Context, fs ...filters.Filter) (int, error)

	// Exists reports whether at least one record matches, without
	// materializing rows.
	Exists(ctx context.Context, fs ...filters.Filter) (bool, error)

	// Get returns the record with the given primary key value. Zero
	// matches yield ErrNotFound, more than one ErrMultipleResults.
	Get(ctx context.Context, id any) (*T, error)

	// GetOne returns the single record matching the filters, with the
	// same zero/multiple semantics as Get.
	GetOne(ctx context.Context, fs ...filters.Filter) (*T, error)

	// GetOneOrNone returns nil without error when no record matches, but
	// still fails with ErrMultipleResults on more than one match.
	GetOneOrNone(ctx context.Context, fs ...filters.Filter) (*T, error)

	// List returns the records matching the filters.
	List(ctx context.Context, fs ...filters.Filter) ([]*T, error)

	// ListAndCount returns the filtered, paginated records together with
	// the unpaginated total.
	ListAndCount(ctx context.Context, fs ...filters.Filter) ([]*T, int, error)
}

// WriteRepository defines create, update, upsert, and delete operations.
type WriteRepository[T any] interface {
	Create(ctx context.Context, model *T) (*T, error)
	CreateMany(ctx context.Context, models []*T) ([]*T, error)

	// Update modifies the record identified by the model's primary key;
	// an unresolvable identity fails with ErrMissingIdentifier before
	// touching the database.
	Update(ctx context.Context, model *T) (*T, error)
	UpdateMany(ctx context.Context, models []*T) ([]*T, error)

	// Upsert updates the record matched by matchFields (default: the
	// primary key) or inserts a new one.
	Upsert(ctx context.Context, model *T, matchFields ...string) (*T, error)
	UpsertMany(ctx context.Context, models []*T, matchFields ...string) ([]*T, error)

	// GetOrUpsert looks a record up by matchFields and creates or
	// updates it from the remaining values. The bool reports whether a
	// new record was created.
	GetOrUpsert(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error)

	// GetAndUpdate looks a record up by matchFields, failing with
	// ErrNotFound when absent, and applies the remaining values. The
	// bool reports whether anything changed.
	GetAndUpdate(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error)

	// Delete removes the record with the given primary key value and
	// returns it.
	Delete(ctx context.Context, id any) (*T, error)

	// DeleteMany removes the records with the given primary key values,
	// chunking as needed, and returns them in input order.
	DeleteMany(ctx context.Context, ids []any) ([]*T, error)

	// DeleteWhere removes all records matching the filters and returns
	// them.
	DeleteWhere(ctx context.Context, fs ...filters.Filter) ([]*T, error)
}

// Repository combines filtered reads, writes, and model construction and
// exposes Bun query builders for advanced use cases.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]

	// NewModel builds a model from a field-name-to-value mapping.
	NewModel(values map[string]any) (*T, error)

	// IDValue reads the model's primary key value; false when unset.
	IDValue(model *T) (any, bool)

	DB() bun.IDB
	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}

// Option customizes repository construction.
type Option func(*options)

type options struct {
	idColumn            string
	chunkSize           int
	forceBasicQueryMode bool
	plainUpserts        bool
}

// WithIDColumn overrides the primary key column used for identity
// lookups; the default is the model's pk-tagged field, falling back to
// the column named "id".
func WithIDColumn(name string) Option {
	return func(o *options) { o.idColumn = name }
}

// WithChunkSize overrides the batch chunk size.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithForceBasicQueryMode makes ListAndCount issue two plain queries
// instead of the combined scan-and-count path. Results are identical in
// either mode.
func WithForceBasicQueryMode() Option {
	return func(o *options) { o.forceBasicQueryMode = true }
}

// WithPlainUpserts makes UpsertMany perform row-by-row upserts instead
// of batched statements. The outcome is behaviorally equivalent; only
// the number of emitted statements differs.
func WithPlainUpserts() Option {
	return func(o *options) { o.plainUpserts = true }
}

// AnySlice widens a typed slice for APIs taking []any, such as
// DeleteMany.
func AnySlice[V any](values []V) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
