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

package strata

import (
	"fmt"
	"reflect"

	"github.com/strata-db/strata/filters"
	"github.com/strata-db/strata/repository"
	"github.com/strata-db/strata/types"
)

// ModelInput is implemented by schema types that can report their
// explicitly-set field values. Unset fields are excluded from the
// returned map, which is what gives partial-update semantics.
type ModelInput interface {
	ModelValues() map[string]any
}

// toModel coerces a supported input shape into a model instance:
// *T and T pass through, map[string]any and ModelInput build a model
// from named values, and plain structs carrying types.Optional fields
// contribute only their set fields.
func toModel[T any](repo repository.Repository[T], data any) (*T, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("cannot convert nil to a model")
	case *T:
		return v, nil
	case T:
		return &v, nil
	case map[string]any:
		return repo.NewModel(v)
	case ModelInput:
		return repo.NewModel(v.ModelValues())
	}

	if values, ok := optionalValues(data); ok {
		return repo.NewModel(values)
	}
	return nil, fmt.Errorf("cannot convert %T to a model", data)
}

func toModels[T any](repo repository.Repository[T], data []any) ([]*T, error) {
	models := make([]*T, len(data))
	for i, d := range data {
		model, err := toModel(repo, d)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		models[i] = model
	}
	return models, nil
}

// optionalValues extracts field values from a struct (or struct
// pointer) whose fields use types.Optional. Unset optionals are
// skipped, explicit nulls become nil values, and plain fields are
// always included under their Go field name.
func optionalValues(data any) (map[string]any, bool) {
	rv := reflect.ValueOf(data)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	values := make(map[string]any)
	sawOptional := false
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		fv := rv.Field(i)
		if opt, ok := fv.Interface().(types.OptionalValue); ok {
			sawOptional = true
			if !opt.IsSet() {
				continue
			}
			values[f.Name] = opt.FieldValue()
			continue
		}
		values[f.Name] = fv.Interface()
	}
	if !sawOptional {
		return nil, false
	}
	return values, true
}

// ToDTO wraps a result slice and total in a pagination envelope. Limit
// and offset come from the first LimitOffset among the filters; absent
// one, limit defaults to the item count and offset to zero.
func ToDTO[T any](items []*T, total int, fs ...filters.Filter) *types.OffsetPagination[*T] {
	limit := len(items)
	offset := 0
	if lo := filters.FindLimitOffset(fs...); lo != nil {
		limit = lo.Limit
		offset = lo.Offset
	}
	return types.NewOffsetPagination(items, limit, offset, total)
}

// ToSchema converts a slice of models through a caller-supplied
// conversion function.
func ToSchema[T, S any](items []*T, convert func(*T) S) []S {
	out := make([]S, len(items))
	for i, item := range items {
		out[i] = convert(item)
	}
	return out
}

// ToSchemaPage converts a model pagination envelope into a schema one,
// preserving limit, offset, and total.
func ToSchemaPage[T, S any](page *types.OffsetPagination[*T], convert func(*T) S) *types.OffsetPagination[S] {
	if page == nil {
		return types.NewOffsetPagination[S](nil, 0, 0, 0)
	}
	return types.NewOffsetPagination(
		ToSchema(page.Items, convert),
		page.Limit,
		page.Offset,
		page.Total,
	)
}
