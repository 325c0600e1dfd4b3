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
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/strata-db/strata/database"
	"github.com/strata-db/strata/filters"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	db   bun.IDB
	meta *modelMeta[T]
	opts options
}

// NewRepository returns a generic repository over the provided Bun
// database or transaction. The caller owns the session scope; the
// repository performs no commits, rollbacks, or retries of its own.
func NewRepository[T any](db bun.IDB, opts ...Option) (Repository[T], error) {
	if db == nil {
		return nil, fmt.Errorf("database handle cannot be empty")
	}
	o := options{chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(&o)
	}
	meta, err := newModelMeta[T](o.idColumn)
	if err != nil {
		return nil, err
	}
	return &baseRepositoryImpl[T]{db: db, meta: meta, opts: o}, nil
}

func (r *baseRepositoryImpl[T]) DB() bun.IDB { return r.db }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepositoryImpl[T]) NewModel(values map[string]any) (*T, error) {
	return r.meta.fromMap(values)
}

func (r *baseRepositoryImpl[T]) IDValue(model *T) (any, bool) {
	return r.meta.idValue(model)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, fs ...filters.Filter) (int, error) {
	q, err := filters.Apply(r.db.NewSelect().Model((*T)(nil)), filters.OnlyPredicates(fs)...)
	if err != nil {
		return 0, err
	}
	return q.Count(ctx)
}

func (r *baseRepositoryImpl[T]) Exists(ctx context.Context, fs ...filters.Filter) (bool, error) {
	q, err := filters.Apply(r.db.NewSelect().Model((*T)(nil)), filters.OnlyPredicates(fs)...)
	if err != nil {
		return false, err
	}
	return q.Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	pk, err := r.meta.pkColumn()
	if err != nil {
		return nil, err
	}
	return r.GetOne(ctx, filters.ByEq(pk, id))
}

func (r *baseRepositoryImpl[T]) GetOne(ctx context.Context, fs ...filters.Filter) (*T, error) {
	entity, err := r.scanOne(ctx, fs)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: no row matched", ErrNotFound)
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) GetOneOrNone(ctx context.Context, fs ...filters.Filter) (*T, error) {
	return r.scanOne(ctx, fs)
}

// scanOne fetches up to two rows so a key collision is observable
// without materializing the full match set.
func (r *baseRepositoryImpl[T]) scanOne(ctx context.Context, fs []filters.Filter) (*T, error) {
	var entities []*T
	q, err := filters.Apply(r.db.NewSelect().Model(&entities), fs...)
	if err != nil {
		return nil, err
	}
	if err := q.Limit(2).Scan(ctx); err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, nil
	case 1:
		return entities[0], nil
	default:
		return nil, fmt.Errorf("%w: query matched %d rows", ErrMultipleResults, len(entities))
	}
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, fs ...filters.Filter) ([]*T, error) {
	var entities []*T
	q, err := filters.Apply(r.db.NewSelect().Model(&entities), fs...)
	if err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) ListAndCount(ctx context.Context, fs ...filters.Filter) ([]*T, int, error) {
	if r.opts.forceBasicQueryMode {
		total, err := r.Count(ctx, fs...)
		if err != nil {
			return nil, 0, err
		}
		entities, err := r.List(ctx, fs...)
		if err != nil {
			return nil, 0, err
		}
		return entities, total, nil
	}

	var entities []*T
	q, err := filters.Apply(r.db.NewSelect().Model(&entities), fs...)
	if err != nil {
		return nil, 0, err
	}
	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

func (r *baseRepositoryImpl[T]) Create(ctx context.Context, model *T) (*T, error) {
	if _, err := r.db.NewInsert().Model(model).Exec(ctx); err != nil {
		return nil, err
	}
	return model, nil
}

func (r *baseRepositoryImpl[T]) CreateMany(ctx context.Context, models []*T) ([]*T, error) {
	for _, chunk := range chunkSlice(models, r.opts.chunkSize) {
		batch := chunk
		if _, err := r.db.NewInsert().Model(&batch).Exec(ctx); err != nil {
			return nil, err
		}
	}
	return models, nil
}

func (r *baseRepositoryImpl[T]) Update(ctx context.Context, model *T) (*T, error) {
	if _, ok := r.meta.idValue(model); !ok {
		return nil, fmt.Errorf("%w: update requires a primary key value on the input", ErrMissingIdentifier)
	}
	res, err := r.db.NewUpdate().Model(model).WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		// Some drivers count changed rows rather than matched rows, so a
		// zero count alone does not prove the row is missing. Confirm by
		// primary key before reporting not-found.
		pk, err := r.meta.pkColumn()
		if err != nil {
			return nil, err
		}
		id, _ := r.meta.idValue(model)
		exists, err := r.Exists(ctx, filters.ByEq(pk, id))
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: no row with the given primary key", ErrNotFound)
		}
	}
	return model, nil
}

func (r *baseRepositoryImpl[T]) UpdateMany(ctx context.Context, models []*T) ([]*T, error) {
	// Validate identities up front so a bad input fails before any
	// round-trip.
	for _, model := range models {
		if _, ok := r.meta.idValue(model); !ok {
			return nil, fmt.Errorf("%w: update requires a primary key value on every input", ErrMissingIdentifier)
		}
	}
	bulk := r.db.Dialect().Features().Has(feature.UpdateFromTable)
	for _, chunk := range chunkSlice(models, r.opts.chunkSize) {
		if bulk && len(chunk) > 1 {
			batch := chunk
			if _, err := r.db.NewUpdate().Model(&batch).Bulk().Exec(ctx); err != nil {
				return nil, err
			}
			continue
		}
		for _, model := range chunk {
			if _, err := r.db.NewUpdate().Model(model).WherePK().Exec(ctx); err != nil {
				return nil, err
			}
		}
	}
	return models, nil
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, model *T, matchFields ...string) (*T, error) {
	cols, err := r.matchColumns(matchFields)
	if err != nil {
		return nil, err
	}
	if err := r.upsertBatch(ctx, []*T{model}, cols); err != nil {
		return nil, err
	}
	return model, nil
}

func (r *baseRepositoryImpl[T]) UpsertMany(ctx context.Context, models []*T, matchFields ...string) ([]*T, error) {
	cols, err := r.matchColumns(matchFields)
	if err != nil {
		return nil, err
	}
	for _, chunk := range chunkSlice(models, r.opts.chunkSize) {
		if r.opts.plainUpserts {
			for _, model := range chunk {
				if err := r.upsertBatch(ctx, []*T{model}, cols); err != nil {
					return nil, err
				}
			}
			continue
		}
		if err := r.upsertBatch(ctx, chunk, cols); err != nil {
			return nil, err
		}
	}
	return models, nil
}

// upsertBatch dispatches on dialect capability: INSERT ... ON CONFLICT
// for postgres/sqlite, ON DUPLICATE KEY for mysql, and a lookup-based
// fallback elsewhere. All three paths produce the same end state.
func (r *baseRepositoryImpl[T]) upsertBatch(ctx context.Context, models []*T, matchCols []string) error {
	feats := r.db.Dialect().Features()
	switch {
	case feats.Has(feature.InsertOnConflict):
		return r.upsertOnConflict(ctx, models, matchCols)
	case feats.Has(feature.InsertOnDuplicateKey):
		return r.upsertOnDuplicateKey(ctx, models, matchCols)
	default:
		for _, model := range models {
			if err := r.upsertByLookup(ctx, model, matchCols); err != nil {
				return err
			}
		}
		return nil
	}
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, models []*T, matchCols []string) error {
	batch := models
	q := r.db.NewInsert().Model(&batch)
	setCols := r.meta.columnsExcept(matchCols)
	if len(setCols) == 0 {
		q = q.On("CONFLICT (" + strings.Join(matchCols, ", ") + ") DO NOTHING")
	} else {
		assignments := make([]string, len(setCols))
		for i, col := range setCols {
			assignments[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
		}
		q = q.On("CONFLICT (" + strings.Join(matchCols, ", ") + ") DO UPDATE").
			Set(strings.Join(assignments, ", "))
	}
	feats := r.db.Dialect().Features()
	if feats.Has(feature.InsertReturning) || feats.Has(feature.Returning) {
		q = q.Returning("*")
	}
	_, err := q.Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, models []*T, matchCols []string) error {
	batch := models
	setCols := r.meta.columnsExcept(matchCols)
	if len(setCols) == 0 {
		setCols = matchCols
	}
	assignments := make([]string, len(setCols))
	for i, col := range setCols {
		assignments[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	_, err := r.db.NewInsert().
		Model(&batch).
		On("DUPLICATE KEY UPDATE " + strings.Join(assignments, ", ")).
		Exec(ctx)
	return err
}

func (r *baseRepositoryImpl[T]) upsertByLookup(ctx context.Context, model *T, matchCols []string) error {
	eqs, err := r.matchFilters(model, matchCols)
	if err != nil {
		return err
	}
	existing, err := r.GetOneOrNone(ctx, eqs...)
	if err != nil {
		return err
	}
	if existing != nil {
		id, _ := r.meta.idValue(existing)
		if err := r.meta.setID(model, id); err != nil {
			return err
		}
		_, err := r.Update(ctx, model)
		return err
	}
	if _, err := r.Create(ctx, model); err != nil {
		// A concurrent insert can beat the lookup; fold it into an
		// update when the driver reports a duplicate key.
		if is, kind := database.IsSqlError(err); is && kind == database.DuplicateKeyErr {
			existing, lookupErr := r.GetOne(ctx, eqs...)
			if lookupErr != nil {
				return fmt.Errorf("upsert failed: insert error: %v, lookup error: %w", err, lookupErr)
			}
			id, _ := r.meta.idValue(existing)
			if err := r.meta.setID(model, id); err != nil {
				return err
			}
			_, err = r.Update(ctx, model)
			return err
		}
		return err
	}
	return nil
}

func (r *baseRepositoryImpl[T]) GetOrUpsert(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error) {
	cols, err := r.defaultMatchColumns(values, matchFields)
	if err != nil {
		return nil, false, err
	}
	eqs, err := r.valueFilters(values, cols)
	if err != nil {
		return nil, false, err
	}
	existing, err := r.GetOneOrNone(ctx, eqs...)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		model, err := r.meta.fromMap(values)
		if err != nil {
			return nil, false, err
		}
		created, err := r.Create(ctx, model)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}
	if _, err := r.applyValues(ctx, existing, values, cols); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *baseRepositoryImpl[T]) GetAndUpdate(ctx context.Context, values map[string]any, matchFields ...string) (*T, bool, error) {
	cols, err := r.defaultMatchColumns(values, matchFields)
	if err != nil {
		return nil, false, err
	}
	eqs, err := r.valueFilters(values, cols)
	if err != nil {
		return nil, false, err
	}
	existing, err := r.GetOne(ctx, eqs...)
	if err != nil {
		return nil, false, err
	}
	changed, err := r.applyValues(ctx, existing, values, cols)
	if err != nil {
		return nil, false, err
	}
	return existing, changed, nil
}

// applyValues assigns the non-match values onto the model and persists
// it when anything actually changed.
func (r *baseRepositoryImpl[T]) applyValues(ctx context.Context, model *T, values map[string]any, matchCols []string) (bool, error) {
	matched := make(map[string]struct{}, len(matchCols))
	for _, c := range matchCols {
		matched[c] = struct{}{}
		if rc, ok := r.meta.byName[c]; ok {
			matched[rc.goName] = struct{}{}
		}
	}
	changed := false
	for name, value := range values {
		if _, ok := matched[name]; ok {
			continue
		}
		before, err := r.meta.fieldValue(model, name)
		if err != nil {
			return false, err
		}
		if err := r.meta.applyMap(model, map[string]any{name: value}); err != nil {
			return false, err
		}
		after, _ := r.meta.fieldValue(model, name)
		if !reflect.DeepEqual(before, after) {
			changed = true
		}
	}
	if changed {
		if _, err := r.Update(ctx, model); err != nil {
			return false, err
		}
	}
	return changed, nil
}

func (r *baseRepositoryImpl[T]) Delete(ctx context.Context, id any) (*T, error) {
	entity, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pk, err := r.meta.pkColumn()
	if err != nil {
		return nil, err
	}
	if _, err := r.db.NewDelete().Model((*T)(nil)).Where("? = ?", bun.Ident(pk), id).Exec(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) DeleteMany(ctx context.Context, ids []any) ([]*T, error) {
	pk, err := r.meta.pkColumn()
	if err != nil {
		return nil, err
	}
	deleted := make([]*T, 0, len(ids))
	for _, chunk := range chunkSlice(ids, r.opts.chunkSize) {
		rows, err := r.deleteByID(ctx, pk, chunk)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, r.orderByIDs(rows, chunk)...)
	}
	return deleted, nil
}

func (r *baseRepositoryImpl[T]) DeleteWhere(ctx context.Context, fs ...filters.Filter) ([]*T, error) {
	rows, err := r.List(ctx, fs...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}
	pk, err := r.meta.pkColumn()
	if err != nil {
		return nil, err
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		id, ok := r.meta.idValue(row)
		if !ok {
			return nil, fmt.Errorf("%w: matched row has no primary key value", ErrMissingIdentifier)
		}
		ids = append(ids, id)
	}
	for _, chunk := range chunkSlice(ids, r.opts.chunkSize) {
		q := r.db.NewDelete().Model((*T)(nil)).Where("? IN (?)", bun.Ident(pk), bun.In(chunk))
		if _, err := q.Exec(ctx); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// deleteByID removes one chunk of ids, collecting the removed rows via
// RETURNING where the dialect supports it and a preceding select where
// it does not.
func (r *baseRepositoryImpl[T]) deleteByID(ctx context.Context, pk string, ids []any) ([]*T, error) {
	if r.db.Dialect().Features().Has(feature.Returning) {
		var rows []*T
		q := r.db.NewDelete().
			Model((*T)(nil)).
			Where("? IN (?)", bun.Ident(pk), bun.In(ids)).
			Returning("*")
		if _, err := q.Exec(ctx, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}

	rows, err := r.List(ctx, filters.ByValues(pk, ids...))
	if err != nil {
		return nil, err
	}
	q := r.db.NewDelete().Model((*T)(nil)).Where("? IN (?)", bun.Ident(pk), bun.In(ids))
	if _, err := q.Exec(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

// orderByIDs re-sorts returned rows into the caller's id order; the
// database gives no ordering guarantee for IN deletes.
func (r *baseRepositoryImpl[T]) orderByIDs(rows []*T, ids []any) []*T {
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[fmt.Sprint(id)] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		vi, _ := r.meta.idValue(rows[i])
		vj, _ := r.meta.idValue(rows[j])
		return pos[fmt.Sprint(vi)] < pos[fmt.Sprint(vj)]
	})
	return rows
}

// matchColumns resolves upsert match fields, defaulting to the primary
// key column.
func (r *baseRepositoryImpl[T]) matchColumns(matchFields []string) ([]string, error) {
	if len(matchFields) == 0 {
		pk, err := r.meta.pkColumn()
		if err != nil {
			return nil, err
		}
		return []string{pk}, nil
	}
	return r.meta.resolveColumns(matchFields)
}

// defaultMatchColumns resolves match fields for map-based operations:
// the explicit fields, the primary key when present in the values, or
// every provided key.
func (r *baseRepositoryImpl[T]) defaultMatchColumns(values map[string]any, matchFields []string) ([]string, error) {
	if len(matchFields) > 0 {
		return r.meta.resolveColumns(matchFields)
	}
	if pk, err := r.meta.pkColumn(); err == nil {
		if _, ok := values[pk]; ok {
			return []string{pk}, nil
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return r.meta.resolveColumns(keys)
}

func (r *baseRepositoryImpl[T]) matchFilters(model *T, cols []string) ([]filters.Filter, error) {
	fs := make([]filters.Filter, 0, len(cols))
	for _, col := range cols {
		v, err := r.meta.fieldValue(model, col)
		if err != nil {
			return nil, err
		}
		fs = append(fs, filters.ByEq(col, v))
	}
	return fs, nil
}

func (r *baseRepositoryImpl[T]) valueFilters(values map[string]any, cols []string) ([]filters.Filter, error) {
	fs := make([]filters.Filter, 0, len(cols))
	for _, col := range cols {
		v, ok := values[col]
		if !ok {
			if c, found := r.meta.byName[col]; found {
				v, ok = values[c.goName]
			}
		}
		if !ok {
			return nil, fmt.Errorf("match field %q has no value", col)
		}
		fs = append(fs, filters.ByEq(col, v))
	}
	return fs, nil
}

func chunkSlice[E any](items []E, size int) [][]E {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(items) == 0 {
		return nil
	}
	chunks := make([][]E, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
