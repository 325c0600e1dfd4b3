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

package types

import "encoding/json"

const (
	optionalUnset uint8 = iota
	optionalNull
	optionalSet
)

// OptionalValue is the type-erased view of an Optional field, used by
// reflection-based input conversion to skip unset fields.
type OptionalValue interface {
	IsSet() bool
	IsNull() bool
	FieldValue() any
}

// Optional is a tri-state field value for schema inputs: unset, set to
// null, or set to a value. It lets partial updates distinguish "field
// deliberately cleared" from "field not provided"; both behaviors are
// preserved independently.
type Optional[V any] struct {
	value V
	state uint8
}

// Some returns an Optional holding the given value.
func Some[V any](v V) Optional[V] {
	return Optional[V]{value: v, state: optionalSet}
}

// Null returns an Optional explicitly set to null.
func Null[V any]() Optional[V] {
	return Optional[V]{state: optionalNull}
}

// Unset returns an Optional that was never provided.
func Unset[V any]() Optional[V] {
	return Optional[V]{}
}

// IsSet reports whether the field was provided at all, including an
// explicit null.
func (o Optional[V]) IsSet() bool { return o.state != optionalUnset }

// IsNull reports whether the field was explicitly set to null.
func (o Optional[V]) IsNull() bool { return o.state == optionalNull }

// Get returns the value and whether a non-null value is present.
func (o Optional[V]) Get() (V, bool) {
	return o.value, o.state == optionalSet
}

// OrZero returns the value, or the zero value when unset or null.
func (o Optional[V]) OrZero() V { return o.value }

// FieldValue returns the wire value for a set field: the value itself,
// or nil for an explicit null.
func (o Optional[V]) FieldValue() any {
	if o.state == optionalSet {
		return o.value
	}
	return nil
}

// MarshalJSON encodes set values directly and null for explicit nulls.
// Unset values also encode as null; callers that need to omit unset
// fields should consult IsSet before serializing.
func (o Optional[V]) MarshalJSON() ([]byte, error) {
	if o.state == optionalSet {
		return json.Marshal(o.value)
	}
	return []byte("null"), nil
}

// UnmarshalJSON marks the field as provided; a JSON null becomes an
// explicit null, anything else a value.
func (o *Optional[V]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Null[V]()
		return nil
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
