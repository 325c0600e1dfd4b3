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
	"fmt"
	"reflect"
	"strings"

	"github.com/uptrace/bun"
)

// column describes one mapped struct field of a model type.
type column struct {
	name   string // SQL column name
	goName string
	index  []int // reflect field index path
	isPK   bool
}

// modelMeta resolves column and primary key information for a model type
// from its bun struct tags. The repository treats the model as an opaque
// bag of named attributes; this is the only place that inspects it.
type modelMeta[T any] struct {
	typ     reflect.Type
	columns []column
	byName  map[string]*column
	pk      *column
}

var baseModelType = reflect.TypeOf(bun.BaseModel{})

func newModelMeta[T any](idColumn string) (*modelMeta[T], error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("model type %T must be a struct", zero)
	}

	m := &modelMeta[T]{typ: typ, byName: make(map[string]*column)}
	m.collectColumns(typ, nil)

	if idColumn == "" {
		idColumn = "id"
	}
	for i := range m.columns {
		c := &m.columns[i]
		if c.isPK {
			m.pk = c
			break
		}
	}
	if m.pk == nil {
		if c, ok := m.byName[idColumn]; ok {
			m.pk = c
		}
	}
	return m, nil
}

func (m *modelMeta[T]) collectColumns(typ reflect.Type, prefix []int) {
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Type == baseModelType {
			continue
		}
		index := append(append([]int{}, prefix...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			m.collectColumns(f.Type, index)
			continue
		}
		if !f.IsExported() {
			continue
		}

		tag := f.Tag.Get("bun")
		if tag == "-" || strings.HasPrefix(tag, "rel:") || strings.HasPrefix(tag, "m2m:") {
			continue
		}
		parts := strings.Split(tag, ",")
		name := parts[0]
		if name == "" {
			name = toSnake(f.Name)
		}
		isPK := false
		for _, opt := range parts[1:] {
			if opt == "pk" || strings.HasPrefix(opt, "pk:") {
				isPK = true
			}
		}

		m.columns = append(m.columns, column{name: name, goName: f.Name, index: index, isPK: isPK})
		c := &m.columns[len(m.columns)-1]
		m.byName[name] = c
		if _, exists := m.byName[f.Name]; !exists {
			m.byName[f.Name] = c
		}
	}
}

// pkColumn returns the primary key column name.
func (m *modelMeta[T]) pkColumn() (string, error) {
	if m.pk == nil {
		return "", fmt.Errorf("%w: model %s has no primary key column", ErrMissingIdentifier, m.typ)
	}
	return m.pk.name, nil
}

// idValue reads the primary key value of a model. The second return is
// false when the key is absent or holds its zero value.
func (m *modelMeta[T]) idValue(model *T) (any, bool) {
	if m.pk == nil || model == nil {
		return nil, false
	}
	fv := reflect.ValueOf(model).Elem().FieldByIndex(m.pk.index)
	if fv.IsZero() {
		return fv.Interface(), false
	}
	return fv.Interface(), true
}

// setID writes the primary key value on a model.
func (m *modelMeta[T]) setID(model *T, id any) error {
	if m.pk == nil {
		return fmt.Errorf("%w: model %s has no primary key column", ErrMissingIdentifier, m.typ)
	}
	return m.setField(model, m.pk, id)
}

// fieldValue reads a field value by SQL column name or Go field name.
func (m *modelMeta[T]) fieldValue(model *T, name string) (any, error) {
	c, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("model %s has no field %q", m.typ, name)
	}
	return reflect.ValueOf(model).Elem().FieldByIndex(c.index).Interface(), nil
}

func (m *modelMeta[T]) setField(model *T, c *column, value any) error {
	fv := reflect.ValueOf(model).Elem().FieldByIndex(c.index)
	if value == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	switch {
	case vv.Type().AssignableTo(fv.Type()):
		fv.Set(vv)
	case vv.Type().ConvertibleTo(fv.Type()):
		fv.Set(vv.Convert(fv.Type()))
	default:
		return fmt.Errorf("cannot assign %T to field %s.%s", value, m.typ, c.goName)
	}
	return nil
}

// fromMap builds a model from a field-name-to-value mapping. Keys may be
// SQL column names or Go field names; keys absent from the map leave the
// corresponding field at its zero value, which is how partial inputs are
// expressed.
func (m *modelMeta[T]) fromMap(values map[string]any) (*T, error) {
	model := new(T)
	if err := m.applyMap(model, values); err != nil {
		return nil, err
	}
	return model, nil
}

// applyMap assigns mapped values onto an existing model.
func (m *modelMeta[T]) applyMap(model *T, values map[string]any) error {
	for name, value := range values {
		c, ok := m.byName[name]
		if !ok {
			return fmt.Errorf("model %s has no field %q", m.typ, name)
		}
		if err := m.setField(model, c, value); err != nil {
			return err
		}
	}
	return nil
}

// columnNames returns the SQL names of all mapped columns.
func (m *modelMeta[T]) columnNames() []string {
	names := make([]string, len(m.columns))
	for i, c := range m.columns {
		names[i] = c.name
	}
	return names
}

// columnsExcept returns the SQL column names not present in skip; used to
// build upsert SET clauses over the non-match columns.
func (m *modelMeta[T]) columnsExcept(skip []string) []string {
	skipped := make(map[string]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
		if c, ok := m.byName[s]; ok {
			skipped[c.name] = struct{}{}
		}
	}
	var names []string
	for _, c := range m.columns {
		if _, ok := skipped[c.name]; ok {
			continue
		}
		names = append(names, c.name)
	}
	return names
}

// resolveColumns maps field or column names onto SQL column names.
func (m *modelMeta[T]) resolveColumns(names []string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		c, ok := m.byName[n]
		if !ok {
			return nil, fmt.Errorf("model %s has no field %q", m.typ, n)
		}
		out[i] = c.name
	}
	return out, nil
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (s[i-1] < 'A' || s[i-1] > 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
